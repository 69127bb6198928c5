package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ubuntu-core/serial-vault-charm/internal/config"
	"github.com/ubuntu-core/serial-vault-charm/internal/dependency"
	"github.com/ubuntu-core/serial-vault-charm/internal/ports"
	"github.com/ubuntu-core/serial-vault-charm/internal/state"
	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
	svstrings "github.com/ubuntu-core/serial-vault-charm/pkg/strings"
)

const subsystem = "Engine"

// SettingsTemplate is the template rendered into the service settings.
const SettingsTemplate = "settings.yaml"

// Status messages reported while the service is not active.
const (
	MsgWaitingForDatabase = "Waiting for database"
	MsgWaitingForInstall  = "Waiting for installation"
	MsgConfiguring        = "Configuring service"
	MsgRefreshing         = "Refresh the service"
	MsgRestarting         = "Restarting service"
)

// Options are the fixed parameters of an engine.
type Options struct {
	// ServiceName is the init-system unit, e.g. "serial-vault.service".
	ServiceName string

	// DatabaseRelation and WebsiteRelation are the relation endpoint names.
	DatabaseRelation string
	WebsiteRelation  string

	// DatabaseName is the logical database requested from the backend.
	DatabaseName string

	// DocRoot is where the static assets are served from.
	DocRoot string
}

// Deps are the collaborators an engine drives. Proxy and Metrics are
// optional.
type Deps struct {
	Platform   Platform
	Store      state.Store
	Installer  Installer
	Renderer   Renderer
	Applier    ConfigApplier
	Controller ServiceController
	Proxy      ProxyConfigurer
	Metrics    Recorder
}

// Engine is the reconciliation engine for one service instance.
type Engine struct {
	opts Options
	deps Deps
}

// New creates an engine. All collaborators except Proxy and Metrics are
// required.
func New(opts Options, deps Deps) (*Engine, error) {
	var missing []string
	if deps.Platform == nil {
		missing = append(missing, "platform")
	}
	if deps.Store == nil {
		missing = append(missing, "store")
	}
	if deps.Installer == nil {
		missing = append(missing, "installer")
	}
	if deps.Renderer == nil {
		missing = append(missing, "renderer")
	}
	if deps.Applier == nil {
		missing = append(missing, "applier")
	}
	if deps.Controller == nil {
		missing = append(missing, "controller")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("engine: missing collaborators: %s", strings.Join(missing, ", "))
	}

	if opts.ServiceName == "" {
		opts.ServiceName = config.DefaultServiceName
	}
	if opts.DatabaseRelation == "" {
		opts.DatabaseRelation = config.DefaultDatabaseRelation
	}
	if opts.WebsiteRelation == "" {
		opts.WebsiteRelation = config.DefaultWebsiteRelation
	}
	if opts.DatabaseName == "" {
		opts.DatabaseName = dependency.DefaultDatabaseName
	}
	if opts.DocRoot == "" {
		opts.DocRoot = config.DefaultAssetsDir
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}

	return &Engine{opts: opts, deps: deps}, nil
}

// Options returns the engine's fixed parameters.
func (e *Engine) Options() Options {
	return e.opts
}

// pass carries the bookkeeping of one running pass.
type pass struct {
	id      string
	trigger Trigger
	started time.Time
	result  Result
}

func (e *Engine) begin(trigger Trigger) *pass {
	p := &pass{
		id:      uuid.NewString(),
		trigger: trigger,
		started: time.Now(),
	}
	p.result = Result{PassID: p.id, Trigger: trigger}
	logging.Debug(subsystem, "Pass %s started by %s", p.id, trigger)
	return p
}

// finish completes the pass with outcome, refreshing the reported state
// from the store.
func (e *Engine) finish(ctx context.Context, p *pass, outcome Outcome, failure error) (Result, error) {
	p.result.Outcome = outcome
	p.result.Failure = failure
	p.result.Duration = time.Since(p.started)

	st, err := e.deps.Store.Get(ctx)
	if err != nil {
		return p.result, fmt.Errorf("read service state: %w", err)
	}
	p.result.State = st

	e.deps.Metrics.ObservePass(string(p.trigger), string(outcome), p.result.Duration)
	logging.Info(subsystem, "Pass %s (%s) %s in %s: available=%t active=%t",
		p.id, p.trigger, outcome, p.result.Duration.Round(time.Millisecond), st.Available, st.Active)
	return p.result, nil
}

// fail reports a collaborator failure and ends the pass without touching
// the flags.
func (e *Engine) fail(ctx context.Context, p *pass, step Step, err error) (Result, error) {
	failure := collaboratorFailure(step, err)
	logging.Error(subsystem, err, "Pass %s: %s step failed", p.id, step)
	e.report(ctx, StatusMaintenance, failureMessage(step, err))
	return e.finish(ctx, p, OutcomeFailed, failure)
}

func failureMessage(step Step, err error) string {
	label := strings.ToUpper(string(step[:1])) + string(step[1:])
	return svstrings.StatusMessage(fmt.Sprintf("%s failed: %v", label, err))
}

func (e *Engine) report(ctx context.Context, st StatusState, message string) {
	if err := e.deps.Platform.SetStatus(ctx, Status{State: st, Message: message}); err != nil {
		logging.Warn(subsystem, "Failed to set status %s %q: %v", st, message, err)
	}
}

// OnInstall fetches and installs the payload the first time it runs. Once
// available is set it does nothing.
func (e *Engine) OnInstall(ctx context.Context) (Result, error) {
	p := e.begin(TriggerInstall)

	current, err := e.deps.Store.Get(ctx)
	if err != nil {
		return p.result, fmt.Errorf("read service state: %w", err)
	}
	if current.Available {
		logging.Debug(subsystem, "Pass %s: payload already installed", p.id)
		p.result.Target = TargetState{Phase: PhaseInstalling, Current: current}
		return e.finish(ctx, p, OutcomeNoop, nil)
	}

	cfg, err := e.deps.Platform.ServiceConfig(ctx)
	if err != nil {
		return e.fail(ctx, p, StepConfig, err)
	}
	e.warnInvalid(p, cfg)

	target := DeriveTargetState(cfg, nil, current)
	p.result.Target = target

	if err := e.configureProxy(ctx, cfg); err != nil {
		return e.fail(ctx, p, StepProxy, err)
	}

	if err := e.applyPorts(ctx, target.Ports); err != nil {
		return e.fail(ctx, p, StepPorts, err)
	}

	e.report(ctx, StatusMaintenance, fmt.Sprintf("Installing %s (%s)", e.opts.ServiceName, cfg.Channel))
	if err := e.deps.Installer.Install(ctx, cfg); err != nil {
		return e.fail(ctx, p, StepInstall, err)
	}

	// The unit is enabled but not started; it has no settings until a
	// database is bound.
	if err := e.deps.Controller.Enable(ctx, e.opts.ServiceName); err != nil {
		return e.fail(ctx, p, StepEnable, err)
	}

	e.report(ctx, StatusMaintenance, MsgWaitingForDatabase)
	if err := e.deps.Store.MarkAvailable(ctx); err != nil {
		return p.result, fmt.Errorf("mark available: %w", err)
	}
	return e.finish(ctx, p, OutcomeApplied, nil)
}

// OnConfigChanged reconciles after a configuration change.
func (e *Engine) OnConfigChanged(ctx context.Context) (Result, error) {
	return e.reconcile(ctx, TriggerConfigChanged)
}

// OnDependencyRelationChanged reconciles after the database relation data
// changed. It runs the same pass as OnConfigChanged.
func (e *Engine) OnDependencyRelationChanged(ctx context.Context) (Result, error) {
	return e.reconcile(ctx, TriggerDependencyChanged)
}

// reconcile is the pass shared by the configuration and dependency
// triggers.
func (e *Engine) reconcile(ctx context.Context, trigger Trigger) (Result, error) {
	p := e.begin(trigger)

	current, err := e.deps.Store.Get(ctx)
	if err != nil {
		return p.result, fmt.Errorf("read service state: %w", err)
	}

	cfg, err := e.deps.Platform.ServiceConfig(ctx)
	if err != nil {
		return e.fail(ctx, p, StepConfig, err)
	}
	e.warnInvalid(p, cfg)

	binding, err := e.resolve(ctx)
	if err != nil {
		return e.fail(ctx, p, StepRelation, err)
	}

	target := DeriveTargetState(cfg, binding, current)
	p.result.Target = target

	switch target.Phase {
	case PhaseInstalling:
		logging.Info(subsystem, "Pass %s: payload not installed yet, skipping it for now", p.id)
		e.report(ctx, StatusMaintenance, MsgWaitingForInstall)
		return e.finish(ctx, p, OutcomeDeferred, nil)
	case PhaseAwaitingDependency:
		logging.Info(subsystem, "Pass %s: database not ready yet, skipping it for now", p.id)
		e.report(ctx, StatusMaintenance, MsgWaitingForDatabase)
		return e.finish(ctx, p, OutcomeDeferred, nil)
	}

	if err := e.applyPorts(ctx, target.Ports); err != nil {
		return e.fail(ctx, p, StepPorts, err)
	}

	if step, err := e.renderAndApply(ctx, cfg, target.Binding); err != nil {
		return e.fail(ctx, p, step, err)
	}

	if err := e.restartAndMarkActive(ctx); err != nil {
		if errors.Is(err, errStore) {
			return p.result, err
		}
		return e.fail(ctx, p, StepRestart, err)
	}
	return e.finish(ctx, p, OutcomeApplied, nil)
}

// OnDependencyRelationJoined asks the newly joined database for the
// expected logical database.
func (e *Engine) OnDependencyRelationJoined(ctx context.Context) (Result, error) {
	p := e.begin(TriggerDependencyJoined)

	settings := map[string]string{dependency.KeyDatabase: e.opts.DatabaseName}
	if err := e.deps.Platform.SetRelation(ctx, e.opts.DatabaseRelation, settings); err != nil {
		return e.fail(ctx, p, StepRelation, err)
	}
	logging.Info(subsystem, "Pass %s: requested database %s on %s", p.id, e.opts.DatabaseName, e.opts.DatabaseRelation)
	return e.finish(ctx, p, OutcomeApplied, nil)
}

// OnUpgrade refreshes the payload for the configured channel and restarts
// the service, whatever the current state.
//
// It does not wait for the database: when no binding has ever been
// configured the service restarts without valid settings. That gap is
// logged, not closed.
func (e *Engine) OnUpgrade(ctx context.Context) (Result, error) {
	p := e.begin(TriggerUpgrade)

	current, err := e.deps.Store.Get(ctx)
	if err != nil {
		return p.result, fmt.Errorf("read service state: %w", err)
	}

	cfg, err := e.deps.Platform.ServiceConfig(ctx)
	if err != nil {
		return e.fail(ctx, p, StepConfig, err)
	}

	binding, err := e.resolve(ctx)
	if err != nil {
		logging.Debug(subsystem, "Pass %s: could not read %s relation: %v", p.id, e.opts.DatabaseRelation, err)
	}
	if binding == nil || !current.Active {
		logging.Warn(subsystem, "Pass %s: upgrading without a configured database; the service restarts with stale or absent settings", p.id)
	}
	p.result.Target = TargetState{
		Phase:   PhaseActive,
		Ports:   ports.PlanFor(cfg.ServiceRole),
		Binding: binding,
		Current: current,
	}

	// Hooks run in fresh processes, so the proxy exported during install is
	// gone by now.
	if err := e.configureProxy(ctx, cfg); err != nil {
		return e.fail(ctx, p, StepProxy, err)
	}

	e.report(ctx, StatusMaintenance, MsgRefreshing)
	if err := e.deps.Installer.Upgrade(ctx, cfg); err != nil {
		return e.fail(ctx, p, StepUpgrade, err)
	}
	if err := e.deps.Store.MarkAvailable(ctx); err != nil {
		return p.result, fmt.Errorf("mark available: %w", err)
	}

	if err := e.restartAndMarkActive(ctx); err != nil {
		if errors.Is(err, errStore) {
			return p.result, err
		}
		return e.fail(ctx, p, StepRestart, err)
	}
	return e.finish(ctx, p, OutcomeApplied, nil)
}

// configureProxy points payload downloads at the configured proxy, if any.
func (e *Engine) configureProxy(ctx context.Context, cfg config.ServiceConfig) error {
	if cfg.Proxy == "" || e.deps.Proxy == nil {
		return nil
	}
	return e.deps.Proxy.Configure(ctx, cfg.Proxy)
}

// OnWebsiteRelationChanged tells a reverse proxy where the service
// listens.
func (e *Engine) OnWebsiteRelationChanged(ctx context.Context) (Result, error) {
	p := e.begin(TriggerWebsiteRelationSync)

	cfg, err := e.deps.Platform.ServiceConfig(ctx)
	if err != nil {
		return e.fail(ctx, p, StepConfig, err)
	}

	settings := map[string]string{
		"port":     strconv.Itoa(ports.ServingPort(cfg.ServiceRole)),
		"hostname": applicationName(e.deps.Platform.UnitName()),
	}
	if err := e.deps.Platform.SetRelation(ctx, e.opts.WebsiteRelation, settings); err != nil {
		return e.fail(ctx, p, StepRelation, err)
	}
	return e.finish(ctx, p, OutcomeApplied, nil)
}

// resolve reads the database relation and picks a binding. A nil binding
// with a nil error means the database is not ready.
func (e *Engine) resolve(ctx context.Context) (*dependency.Binding, error) {
	ads, err := e.deps.Platform.Advertisements(ctx, e.opts.DatabaseRelation)
	if err != nil {
		return nil, err
	}
	binding, err := dependency.Resolve(e.opts.DatabaseName, ads)
	if errors.Is(err, dependency.ErrNotReady) {
		return nil, nil
	}
	return binding, err
}

func (e *Engine) applyPorts(ctx context.Context, plan ports.Plan) error {
	if plan.Empty() {
		logging.Debug(subsystem, "No port plan for the configured role, leaving ports untouched")
		return nil
	}
	if err := e.deps.Platform.OpenPort(ctx, plan.Open); err != nil {
		return fmt.Errorf("open %s: %w", plan.Open, err)
	}
	for _, port := range plan.Close {
		if err := e.deps.Platform.ClosePort(ctx, port); err != nil {
			return fmt.Errorf("close %s: %w", port, err)
		}
	}
	return nil
}

// SettingsContext is the data the settings template is rendered with.
type SettingsContext struct {
	DocRoot        string
	KeystoreSecret string
	ServiceType    string
	CSRFAuthKey    string
	URLHost        string
	EnableUserAuth bool
	JWTSecret      string
	DB             dependency.Binding
}

// renderAndApply renders the settings for binding and pushes them into the
// service. The step is returned alongside a failure.
func (e *Engine) renderAndApply(ctx context.Context, cfg config.ServiceConfig, binding *dependency.Binding) (Step, error) {
	if err := cfg.ValidateForRender(); err != nil {
		return StepRender, err
	}

	e.report(ctx, StatusMaintenance, MsgConfiguring)
	data := SettingsContext{
		DocRoot:        e.opts.DocRoot,
		KeystoreSecret: cfg.KeystoreSecret,
		ServiceType:    string(cfg.ServiceRole),
		CSRFAuthKey:    cfg.CSRFAuthKey,
		URLHost:        cfg.URLHost,
		EnableUserAuth: cfg.EnableUserAuth,
		JWTSecret:      cfg.JWTSecret,
		DB:             *binding,
	}

	artifact, err := e.deps.Renderer.Render(ctx, SettingsTemplate, data)
	if err != nil {
		return StepRender, err
	}
	if err := e.deps.Applier.Apply(ctx, artifact); err != nil {
		return StepApply, err
	}
	return "", nil
}

// errStore marks failures of the state store during restartAndMarkActive.
var errStore = errors.New("state store")

func (e *Engine) restartAndMarkActive(ctx context.Context) error {
	e.report(ctx, StatusMaintenance, MsgRestarting)
	if err := e.deps.Controller.Restart(ctx, e.opts.ServiceName); err != nil {
		return err
	}
	if err := e.deps.Store.MarkActive(ctx); err != nil {
		return fmt.Errorf("%w: mark active: %v", errStore, err)
	}
	e.report(ctx, StatusActive, "")
	return nil
}

func (e *Engine) warnInvalid(p *pass, cfg config.ServiceConfig) {
	if err := cfg.Validate(); err != nil {
		logging.Warn(subsystem, "Pass %s: configuration has problems: %v", p.id, err)
	}
}

// applicationName strips the unit number from a unit identifier.
func applicationName(unit string) string {
	app, _, _ := strings.Cut(unit, "/")
	return app
}
