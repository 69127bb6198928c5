package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ubuntu-core/serial-vault-charm/internal/config"
	"github.com/ubuntu-core/serial-vault-charm/internal/dependency"
	"github.com/ubuntu-core/serial-vault-charm/internal/ports"
	"github.com/ubuntu-core/serial-vault-charm/internal/state"
)

// callLog records collaborator calls in order across all fakes.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.all() {
		if c == call {
			n++
		}
	}
	return n
}

func (l *callLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

type mockPlatform struct {
	log      *callLog
	cfg      config.ServiceConfig
	cfgErr   error
	ads      map[string][]dependency.Advertisement
	adsErr   error
	unit     string
	statuses []Status
	relData  map[string]map[string]string
	open     map[ports.Port]bool
	portErr  error
}

func newMockPlatform(log *callLog, cfg config.ServiceConfig) *mockPlatform {
	return &mockPlatform{
		log:     log,
		cfg:     cfg,
		ads:     make(map[string][]dependency.Advertisement),
		unit:    "serial-vault/0",
		relData: make(map[string]map[string]string),
		open:    make(map[ports.Port]bool),
	}
}

func (m *mockPlatform) ServiceConfig(ctx context.Context) (config.ServiceConfig, error) {
	return m.cfg, m.cfgErr
}

func (m *mockPlatform) Advertisements(ctx context.Context, relation string) ([]dependency.Advertisement, error) {
	if m.adsErr != nil {
		return nil, m.adsErr
	}
	return m.ads[relation], nil
}

func (m *mockPlatform) SetRelation(ctx context.Context, relation string, settings map[string]string) error {
	m.log.add("relation-set %s", relation)
	m.relData[relation] = settings
	return nil
}

func (m *mockPlatform) OpenPort(ctx context.Context, port ports.Port) error {
	if m.portErr != nil {
		return m.portErr
	}
	m.log.add("open %s", port)
	m.open[port] = true
	return nil
}

func (m *mockPlatform) ClosePort(ctx context.Context, port ports.Port) error {
	m.log.add("close %s", port)
	delete(m.open, port)
	return nil
}

func (m *mockPlatform) SetStatus(ctx context.Context, status Status) error {
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *mockPlatform) UnitName() string { return m.unit }

func (m *mockPlatform) lastStatus() Status {
	if len(m.statuses) == 0 {
		return Status{}
	}
	return m.statuses[len(m.statuses)-1]
}

func (m *mockPlatform) openPorts() []int {
	var out []int
	for _, role := range ports.Roles {
		p := ports.PlanFor(role).Open
		if m.open[p] {
			out = append(out, p.Number)
		}
	}
	return out
}

type mockInstaller struct {
	log        *callLog
	installErr error
	upgradeErr error
	channels   []config.Channel
}

func (m *mockInstaller) Install(ctx context.Context, cfg config.ServiceConfig) error {
	m.log.add("install")
	if m.installErr != nil {
		return m.installErr
	}
	m.channels = append(m.channels, cfg.Channel)
	return nil
}

func (m *mockInstaller) Upgrade(ctx context.Context, cfg config.ServiceConfig) error {
	m.log.add("upgrade")
	if m.upgradeErr != nil {
		return m.upgradeErr
	}
	m.channels = append(m.channels, cfg.Channel)
	return nil
}

type mockRenderer struct {
	log  *callLog
	err  error
	data []SettingsContext
}

func (m *mockRenderer) Render(ctx context.Context, template string, data interface{}) (string, error) {
	m.log.add("render %s", template)
	if m.err != nil {
		return "", m.err
	}
	if sc, ok := data.(SettingsContext); ok {
		m.data = append(m.data, sc)
	}
	return "/tmp/rendered/" + template, nil
}

func (m *mockRenderer) last() SettingsContext {
	return m.data[len(m.data)-1]
}

type mockApplier struct {
	log *callLog
	err error
}

func (m *mockApplier) Apply(ctx context.Context, artifactPath string) error {
	m.log.add("apply %s", artifactPath)
	return m.err
}

type mockController struct {
	log        *callLog
	enableErr  error
	restartErr error
}

func (m *mockController) Enable(ctx context.Context, unit string) error {
	m.log.add("enable %s", unit)
	return m.enableErr
}

func (m *mockController) Restart(ctx context.Context, unit string) error {
	m.log.add("restart %s", unit)
	return m.restartErr
}

type mockProxy struct {
	log *callLog
	err error
}

func (m *mockProxy) Configure(ctx context.Context, proxyURL string) error {
	m.log.add("proxy %s", proxyURL)
	return m.err
}

type mockRecorder struct {
	mu     sync.Mutex
	passes []string
}

func (m *mockRecorder) ObservePass(trigger, outcome string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes = append(m.passes, trigger+"/"+outcome)
}

// fixture bundles an engine with its fakes.
type fixture struct {
	log        *callLog
	platform   *mockPlatform
	store      *state.MemoryStore
	installer  *mockInstaller
	renderer   *mockRenderer
	applier    *mockApplier
	controller *mockController
	proxy      *mockProxy
	recorder   *mockRecorder
	engine     *Engine
}

func testConfig(role ports.Role) config.ServiceConfig {
	return config.ServiceConfig{
		ServiceRole:    role,
		Channel:        config.ChannelStable,
		KeystoreSecret: "s3cret",
		CSRFAuthKey:    "csrf",
		URLHost:        "vault.example.com",
		EnableUserAuth: true,
		JWTSecret:      "jwt",
	}
}

func masterAd(unit string) dependency.Advertisement {
	return dependency.Advertisement{
		Unit: unit,
		Settings: map[string]string{
			dependency.KeyDatabase: "serialvault",
			dependency.KeyState:    "master",
			dependency.KeyHost:     "10.0.0.5",
			dependency.KeyPort:     "5432",
			dependency.KeyUser:     "vault",
			dependency.KeyPassword: "pw",
		},
	}
}

func newFixture(cfg config.ServiceConfig, initial state.ServiceState) *fixture {
	log := &callLog{}
	f := &fixture{
		log:        log,
		platform:   newMockPlatform(log, cfg),
		store:      state.NewMemoryStore(initial),
		installer:  &mockInstaller{log: log},
		renderer:   &mockRenderer{log: log},
		applier:    &mockApplier{log: log},
		controller: &mockController{log: log},
		proxy:      &mockProxy{log: log},
		recorder:   &mockRecorder{},
	}
	e, err := New(Options{}, Deps{
		Platform:   f.platform,
		Store:      f.store,
		Installer:  f.installer,
		Renderer:   f.renderer,
		Applier:    f.applier,
		Controller: f.controller,
		Proxy:      f.proxy,
		Metrics:    f.recorder,
	})
	if err != nil {
		panic(err)
	}
	f.engine = e
	return f
}

func (f *fixture) advertise(ads ...dependency.Advertisement) {
	f.platform.ads["database"] = ads
}
