package cmd

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/ubuntu-core/serial-vault-charm/internal/app"
)

var statusFlags = struct {
	localDir string
}{}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the persisted service flags and the resolved database",
		Long: `Show the persisted available and active flags, the lifecycle phase
they imply and the database the unit would bind to. Nothing is changed.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
	cmd.Flags().StringVar(&statusFlags.localDir, "local-dir", "", "Read relations from a local environment directory")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(statusConfig())
	if err != nil {
		return err
	}
	defer application.Close()

	report, err := application.Status(cmd.Context())
	if err != nil {
		return err
	}
	renderStatus(cmd.OutOrStdout(), report)
	return nil
}

// statusConfig is the configuration of the read-only status command: host
// changes are disabled and logs stay on stderr.
func statusConfig() *app.Config {
	mode := app.ModeHook
	if statusFlags.localDir != "" {
		mode = app.ModeLocal
	}
	cfg := newAppConfig(mode)
	cfg.LocalDir = statusFlags.localDir
	cfg.DryRun = true
	cfg.NoJujuLog = true
	return cfg
}

// renderStatus writes report as a two-column table.
func renderStatus(w io.Writer, report app.StatusReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{text.Bold.Sprint("PROPERTY"), text.Bold.Sprint("VALUE")})

	t.AppendRow(table.Row{"Available", flagText(report.State.Available)})
	t.AppendRow(table.Row{"Active", flagText(report.State.Active)})
	t.AppendRow(table.Row{"Phase", string(report.Phase)})
	t.AppendRow(table.Row{"Database", databaseText(report)})
	t.Render()
}

func flagText(set bool) string {
	if set {
		return text.FgGreen.Sprint("yes")
	}
	return text.FgYellow.Sprint("no")
}

func databaseText(report app.StatusReport) string {
	switch {
	case report.BindingErr != nil:
		return text.FgRed.Sprintf("error: %v", report.BindingErr)
	case report.Binding == nil:
		return text.FgYellow.Sprint("not ready")
	}
	b := report.Binding
	return fmt.Sprintf("%s %s@%s:%s/%s", b.Unit, b.Credentials.User, b.Host, b.Port, b.DatabaseName)
}
