package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubuntu-core/serial-vault-charm/internal/config"
	"github.com/ubuntu-core/serial-vault-charm/internal/dependency"
	"github.com/ubuntu-core/serial-vault-charm/internal/ports"
	"github.com/ubuntu-core/serial-vault-charm/internal/state"
)

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{}, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform")
	assert.Contains(t, err.Error(), "controller")
}

func TestNew_Defaults(t *testing.T) {
	f := newFixture(testConfig(ports.RoleSigning), state.ServiceState{})
	opts := f.engine.Options()
	assert.Equal(t, "serial-vault.service", opts.ServiceName)
	assert.Equal(t, "database", opts.DatabaseRelation)
	assert.Equal(t, "website", opts.WebsiteRelation)
	assert.Equal(t, "serialvault", opts.DatabaseName)
}

func TestOnInstall_FreshUnit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testConfig(ports.RoleSigning), state.ServiceState{})

	res, err := f.engine.OnInstall(ctx)
	require.NoError(t, err)

	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.NotEmpty(t, res.PassID)
	assert.True(t, res.State.Available)
	assert.False(t, res.State.Active)
	assert.Equal(t, []string{
		"open 8080/TCP",
		"close 8081/TCP",
		"close 8082/TCP",
		"install",
		"enable serial-vault.service",
	}, f.log.all())
	assert.Equal(t, Status{State: StatusMaintenance, Message: MsgWaitingForDatabase}, f.platform.lastStatus())
	assert.Equal(t, []config.Channel{config.ChannelStable}, f.installer.channels)
	assert.Equal(t, []string{"install/applied"}, f.recorder.passes)
}

func TestOnInstall_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testConfig(ports.RoleSigning), state.ServiceState{})

	_, err := f.engine.OnInstall(ctx)
	require.NoError(t, err)
	writes := f.store.Writes
	f.log.reset()

	res, err := f.engine.OnInstall(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, res.Outcome)
	assert.Empty(t, f.log.all(), "second install must not touch collaborators")
	assert.Equal(t, writes, f.store.Writes)
	assert.True(t, res.State.Available)
}

func TestOnInstall_ConfiguresProxyFirst(t *testing.T) {
	cfg := testConfig(ports.RoleAdmin)
	cfg.Proxy = "http://squid.internal:3128"
	f := newFixture(cfg, state.ServiceState{})

	_, err := f.engine.OnInstall(context.Background())
	require.NoError(t, err)
	calls := f.log.all()
	require.NotEmpty(t, calls)
	assert.Equal(t, "proxy http://squid.internal:3128", calls[0])
}

func TestOnInstall_Failures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fixture)
		wantStep Step
		wantMsg  string
	}{
		{
			name:     "installer fails",
			setup:    func(f *fixture) { f.installer.installErr = errors.New("snap store unreachable") },
			wantStep: StepInstall,
			wantMsg:  "Install failed: snap store unreachable",
		},
		{
			name:     "enable fails",
			setup:    func(f *fixture) { f.controller.enableErr = errors.New("no such unit") },
			wantStep: StepEnable,
			wantMsg:  "Enable failed: no such unit",
		},
		{
			name: "proxy fails",
			setup: func(f *fixture) {
				f.platform.cfg.Proxy = "http://proxy:3128"
				f.proxy.err = errors.New("snap set refused")
			},
			wantStep: StepProxy,
			wantMsg:  "Proxy failed: snap set refused",
		},
		{
			name:     "ports fail",
			setup:    func(f *fixture) { f.platform.portErr = errors.New("open-port denied") },
			wantStep: StepPorts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(testConfig(ports.RoleSigning), state.ServiceState{})
			tt.setup(f)

			res, err := f.engine.OnInstall(context.Background())
			require.NoError(t, err, "collaborator failures are absorbed")
			assert.Equal(t, OutcomeFailed, res.Outcome)
			assert.False(t, res.State.Available)

			step, ok := IsCollaboratorFailure(res.Failure)
			require.True(t, ok)
			assert.Equal(t, tt.wantStep, step)

			last := f.platform.lastStatus()
			assert.Equal(t, StatusMaintenance, last.State)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, last.Message)
			}
		})
	}
}

func TestReconcile_DefersWithoutDatabase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testConfig(ports.RoleSigning), state.ServiceState{Available: true})
	stale := masterAd("postgresql/0")
	stale.Settings[dependency.KeyDatabase] = "other"
	f.advertise(stale)

	res, err := f.engine.OnDependencyRelationChanged(ctx)
	require.NoError(t, err)

	assert.Equal(t, OutcomeDeferred, res.Outcome)
	assert.Equal(t, PhaseAwaitingDependency, res.Target.Phase)
	assert.Empty(t, f.log.all())
	assert.Equal(t, 0, f.store.Writes)
	assert.Equal(t, Status{State: StatusMaintenance, Message: MsgWaitingForDatabase}, f.platform.lastStatus())
}

func TestReconcile_DefersBeforeInstall(t *testing.T) {
	f := newFixture(testConfig(ports.RoleSigning), state.ServiceState{})
	f.advertise(masterAd("postgresql/0"))

	res, err := f.engine.OnConfigChanged(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeDeferred, res.Outcome)
	assert.Equal(t, PhaseInstalling, res.Target.Phase)
	assert.False(t, res.State.Active)
	assert.Empty(t, f.log.all())
	assert.Equal(t, MsgWaitingForInstall, f.platform.lastStatus().Message)
}

func TestReconcile_Configures(t *testing.T) {
	f := newFixture(testConfig(ports.RoleSigning), state.ServiceState{Available: true})
	f.advertise(masterAd("postgresql/0"))

	res, err := f.engine.OnConfigChanged(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, state.ServiceState{Available: true, Active: true}, res.State)
	assert.Equal(t, []string{
		"open 8080/TCP",
		"close 8081/TCP",
		"close 8082/TCP",
		"render settings.yaml",
		"apply /tmp/rendered/settings.yaml",
		"restart serial-vault.service",
	}, f.log.all())
	assert.Equal(t, Status{State: StatusActive}, f.platform.lastStatus())

	data := f.renderer.last()
	assert.Equal(t, "s3cret", data.KeystoreSecret)
	assert.Equal(t, "signing", data.ServiceType)
	assert.Equal(t, "10.0.0.5", data.DB.Host)
	assert.Equal(t, "vault", data.DB.Credentials.User)
	assert.Equal(t, config.DefaultAssetsDir, data.DocRoot)
}

func TestReconcile_ConfluentAcrossTriggers(t *testing.T) {
	ctx := context.Background()
	ads := []dependency.Advertisement{masterAd("postgresql/1"), masterAd("postgresql/0")}

	viaConfig := newFixture(testConfig(ports.RoleAdmin), state.ServiceState{Available: true})
	viaConfig.advertise(ads...)
	_, err := viaConfig.engine.OnConfigChanged(ctx)
	require.NoError(t, err)
	_, err = viaConfig.engine.OnDependencyRelationChanged(ctx)
	require.NoError(t, err)

	viaRelation := newFixture(testConfig(ports.RoleAdmin), state.ServiceState{Available: true})
	viaRelation.advertise(ads[1], ads[0])
	_, err = viaRelation.engine.OnDependencyRelationChanged(ctx)
	require.NoError(t, err)
	_, err = viaRelation.engine.OnConfigChanged(ctx)
	require.NoError(t, err)

	a, _ := viaConfig.store.Get(ctx)
	b, _ := viaRelation.store.Get(ctx)
	assert.Equal(t, a, b)
	assert.Equal(t, viaConfig.platform.openPorts(), viaRelation.platform.openPorts())
	assert.Equal(t, viaConfig.renderer.last(), viaRelation.renderer.last())
	assert.Equal(t, "postgresql/0", viaConfig.renderer.last().DB.Unit)
}

func TestReconcile_RoleSwitch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testConfig(ports.RoleAdmin), state.ServiceState{Available: true})
	f.advertise(masterAd("postgresql/0"))

	_, err := f.engine.OnConfigChanged(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{8081}, f.platform.openPorts())

	f.platform.cfg.ServiceRole = ports.RoleSigning
	f.log.reset()
	res, err := f.engine.OnConfigChanged(ctx)
	require.NoError(t, err)

	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, []int{8080}, f.platform.openPorts())
	calls := f.log.all()
	assert.Contains(t, calls, "open 8080/TCP")
	assert.Contains(t, calls, "close 8081/TCP")
	assert.Contains(t, calls, "close 8082/TCP")
	assert.Equal(t, "signing", f.renderer.last().ServiceType)
}

func TestReconcile_UnknownRoleLeavesPortsAlone(t *testing.T) {
	cfg := testConfig(ports.Role("auditor"))
	f := newFixture(cfg, state.ServiceState{Available: true})
	f.advertise(masterAd("postgresql/0"))

	res, err := f.engine.OnConfigChanged(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Target.Ports.Empty())
	assert.Equal(t, OutcomeFailed, res.Outcome, "settings cannot be rendered for an unknown role")
	step, ok := IsCollaboratorFailure(res.Failure)
	require.True(t, ok)
	assert.Equal(t, StepRender, step)
	for _, c := range f.log.all() {
		assert.NotContains(t, c, "open ")
		assert.NotContains(t, c, "close ")
	}
}

func TestReconcile_FailuresKeepActiveUnset(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fixture)
		wantStep Step
		noCall   string
	}{
		{
			name:     "render fails",
			setup:    func(f *fixture) { f.renderer.err = errors.New("template missing") },
			wantStep: StepRender,
			noCall:   "restart serial-vault.service",
		},
		{
			name:     "missing keystore secret",
			setup:    func(f *fixture) { f.platform.cfg.KeystoreSecret = "" },
			wantStep: StepRender,
			noCall:   "render settings.yaml",
		},
		{
			name:     "apply fails",
			setup:    func(f *fixture) { f.applier.err = errors.New("read-only fs") },
			wantStep: StepApply,
			noCall:   "restart serial-vault.service",
		},
		{
			name:     "restart fails",
			setup:    func(f *fixture) { f.controller.restartErr = errors.New("unit failed") },
			wantStep: StepRestart,
		},
		{
			name:     "relation read fails",
			setup:    func(f *fixture) { f.platform.adsErr = errors.New("relation-ids exited 1") },
			wantStep: StepRelation,
			noCall:   "render settings.yaml",
		},
		{
			name:     "config read fails",
			setup:    func(f *fixture) { f.platform.cfgErr = errors.New("config-get exited 1") },
			wantStep: StepConfig,
			noCall:   "render settings.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(testConfig(ports.RoleSigning), state.ServiceState{Available: true})
			f.advertise(masterAd("postgresql/0"))
			tt.setup(f)

			res, err := f.engine.OnConfigChanged(context.Background())
			require.NoError(t, err)

			assert.Equal(t, OutcomeFailed, res.Outcome)
			assert.False(t, res.State.Active)
			step, ok := IsCollaboratorFailure(res.Failure)
			require.True(t, ok)
			assert.Equal(t, tt.wantStep, step)
			assert.Equal(t, StatusMaintenance, f.platform.lastStatus().State)
			if tt.noCall != "" {
				assert.Zero(t, f.log.count(tt.noCall))
			}
		})
	}
}

func TestReconcile_RetriesAfterFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testConfig(ports.RoleSigning), state.ServiceState{Available: true})
	f.advertise(masterAd("postgresql/0"))
	f.controller.restartErr = errors.New("transient")

	res, err := f.engine.OnConfigChanged(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)

	f.controller.restartErr = nil
	res, err = f.engine.OnDependencyRelationChanged(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.True(t, res.State.Active)
}

func TestEndToEnd_InstallThenConfigure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testConfig(ports.RoleSigning), state.ServiceState{})

	_, err := f.engine.OnInstall(ctx)
	require.NoError(t, err)

	res, err := f.engine.OnDependencyRelationJoined(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, map[string]string{"database": "serialvault"}, f.platform.relData["database"])

	f.advertise(masterAd("postgresql/0"))
	res, err = f.engine.OnConfigChanged(ctx)
	require.NoError(t, err)

	assert.Equal(t, state.ServiceState{Available: true, Active: true}, res.State)
	assert.Equal(t, []int{8080}, f.platform.openPorts())
	assert.Equal(t, 1, f.log.count("install"))
	assert.Equal(t, 1, f.log.count("restart serial-vault.service"))
	assert.Equal(t, StatusActive, f.platform.lastStatus().State)
}

func TestOnDependencyRelationJoined_NoServiceMutation(t *testing.T) {
	f := newFixture(testConfig(ports.RoleSigning), state.ServiceState{})

	_, err := f.engine.OnDependencyRelationJoined(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"relation-set database"}, f.log.all())
	assert.Equal(t, 0, f.store.Writes)
}

func TestOnUpgrade(t *testing.T) {
	ctx := context.Background()

	t.Run("configured unit", func(t *testing.T) {
		cfg := testConfig(ports.RoleSigning)
		cfg.Channel = config.ChannelEdge
		f := newFixture(cfg, state.ServiceState{Available: true, Active: true})
		f.advertise(masterAd("postgresql/0"))

		res, err := f.engine.OnUpgrade(ctx)
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, res.Outcome)
		assert.Equal(t, []string{"upgrade", "restart serial-vault.service"}, f.log.all())
		assert.Equal(t, []config.Channel{config.ChannelEdge}, f.installer.channels)
	})

	t.Run("not gated on the database", func(t *testing.T) {
		f := newFixture(testConfig(ports.RoleSigning), state.ServiceState{})

		res, err := f.engine.OnUpgrade(ctx)
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, res.Outcome)
		assert.Equal(t, state.ServiceState{Available: true, Active: true}, res.State)
		assert.Nil(t, res.Target.Binding)
	})

	t.Run("upgrade fails", func(t *testing.T) {
		f := newFixture(testConfig(ports.RoleSigning), state.ServiceState{Available: true})
		f.installer.upgradeErr = errors.New("refresh conflict")

		res, err := f.engine.OnUpgrade(ctx)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.False(t, res.State.Active)
		assert.Zero(t, f.log.count("restart serial-vault.service"))
		assert.Equal(t, "Upgrade failed: refresh conflict", f.platform.lastStatus().Message)
	})

	t.Run("proxy configured before the payload refresh", func(t *testing.T) {
		cfg := testConfig(ports.RoleSigning)
		cfg.Proxy = "http://squid.internal:3128"
		f := newFixture(cfg, state.ServiceState{Available: true, Active: true})

		res, err := f.engine.OnUpgrade(ctx)
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, res.Outcome)
		assert.Equal(t, []string{
			"proxy http://squid.internal:3128",
			"upgrade",
			"restart serial-vault.service",
		}, f.log.all())
	})

	t.Run("proxy fails", func(t *testing.T) {
		cfg := testConfig(ports.RoleSigning)
		cfg.Proxy = "http://squid.internal:3128"
		f := newFixture(cfg, state.ServiceState{Available: true})
		f.proxy.err = errors.New("snapd unavailable")

		res, err := f.engine.OnUpgrade(ctx)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, res.Outcome)
		step, ok := IsCollaboratorFailure(res.Failure)
		require.True(t, ok)
		assert.Equal(t, StepProxy, step)
		assert.Zero(t, f.log.count("upgrade"))
		assert.Equal(t, "Proxy failed: snapd unavailable", f.platform.lastStatus().Message)
	})
}

func TestOnWebsiteRelationChanged(t *testing.T) {
	f := newFixture(testConfig(ports.RoleAdmin), state.ServiceState{})
	f.platform.unit = "vault-admin/3"

	res, err := f.engine.OnWebsiteRelationChanged(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, map[string]string{"port": "8081", "hostname": "vault-admin"}, f.platform.relData["website"])
}
