package installer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// execCommandContext is a variable to allow mocking in tests
var execCommandContext = exec.CommandContext

// Command is one external command invocation.
type Command struct {
	Name string
	Args []string

	// Env is added to the process environment.
	Env []string

	// Dir is the working directory, empty for the current one.
	Dir string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner runs a command.
type Runner func(ctx context.Context, cmd Command) error

func execRunner(ctx context.Context, c Command) error {
	cmd := execCommandContext(ctx, c.Name, c.Args...)
	if len(c.Env) > 0 {
		base := cmd.Env
		if base == nil {
			base = os.Environ()
		}
		cmd.Env = append(base, c.Env...)
	}
	cmd.Dir = c.Dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", c.Name, err, strings.TrimSpace(out.String()))
	}
	return nil
}
