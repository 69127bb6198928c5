package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubuntu-core/serial-vault-charm/internal/engine"
)

type mockReconciler struct {
	mu       sync.Mutex
	calls    []engine.Trigger
	inFlight int32
	maxSeen  int32
	delay    time.Duration
	err      error
}

func (m *mockReconciler) run(trigger engine.Trigger) (engine.Result, error) {
	n := atomic.AddInt32(&m.inFlight, 1)
	for {
		seen := atomic.LoadInt32(&m.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&m.maxSeen, seen, n) {
			break
		}
	}
	time.Sleep(m.delay)
	atomic.AddInt32(&m.inFlight, -1)

	m.mu.Lock()
	m.calls = append(m.calls, trigger)
	m.mu.Unlock()
	return engine.Result{Trigger: trigger, Outcome: engine.OutcomeApplied}, m.err
}

func (m *mockReconciler) OnInstall(ctx context.Context) (engine.Result, error) {
	return m.run(engine.TriggerInstall)
}

func (m *mockReconciler) OnConfigChanged(ctx context.Context) (engine.Result, error) {
	return m.run(engine.TriggerConfigChanged)
}

func (m *mockReconciler) OnDependencyRelationJoined(ctx context.Context) (engine.Result, error) {
	return m.run(engine.TriggerDependencyJoined)
}

func (m *mockReconciler) OnDependencyRelationChanged(ctx context.Context) (engine.Result, error) {
	return m.run(engine.TriggerDependencyChanged)
}

func (m *mockReconciler) OnUpgrade(ctx context.Context) (engine.Result, error) {
	return m.run(engine.TriggerUpgrade)
}

func (m *mockReconciler) OnWebsiteRelationChanged(ctx context.Context) (engine.Result, error) {
	return m.run(engine.TriggerWebsiteRelationSync)
}

func TestDispatch_Routes(t *testing.T) {
	tests := []struct {
		event string
		want  engine.Trigger
	}{
		{"install", engine.TriggerInstall},
		{"config-changed", engine.TriggerConfigChanged},
		{"database-relation-joined", engine.TriggerDependencyJoined},
		{"database-relation-changed", engine.TriggerDependencyChanged},
		{"upgrade", engine.TriggerUpgrade},
		{"upgrade-charm", engine.TriggerUpgrade},
		{"website-relation-changed", engine.TriggerWebsiteRelationSync},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			r := &mockReconciler{}
			d := New(r, Options{})

			res, err := d.Dispatch(context.Background(), tt.event)
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.Equal(t, tt.want, res.Trigger)
			assert.Equal(t, []engine.Trigger{tt.want}, r.calls)
		})
	}
}

func TestDispatch_UnknownEventIgnored(t *testing.T) {
	r := &mockReconciler{}
	d := New(r, Options{})

	res, err := d.Dispatch(context.Background(), "leader-elected")
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, r.calls)
	assert.False(t, d.Handles("leader-elected"))
}

func TestDispatch_CustomRelationPrefix(t *testing.T) {
	r := &mockReconciler{}
	d := New(r, Options{DatabaseRelation: "db", WebsiteRelation: "proxy"})

	assert.True(t, d.Handles("db-relation-changed"))
	assert.True(t, d.Handles("proxy-relation-changed"))
	assert.False(t, d.Handles("database-relation-changed"))
	assert.Equal(t, []string{
		"config-changed",
		"db-relation-changed",
		"db-relation-joined",
		"install",
		"proxy-relation-changed",
		"upgrade",
		"upgrade-charm",
	}, d.Events())
}

func TestDispatch_PropagatesStoreErrors(t *testing.T) {
	r := &mockReconciler{err: errors.New("state dir unwritable")}
	d := New(r, Options{})

	res, err := d.Dispatch(context.Background(), "install")
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, engine.TriggerInstall, res.Trigger)
}

func TestDispatch_CancelledContext(t *testing.T) {
	r := &mockReconciler{}
	d := New(r, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Dispatch(ctx, "install")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.calls)
}

func TestDispatch_Serialises(t *testing.T) {
	r := &mockReconciler{delay: 5 * time.Millisecond}
	d := New(r, Options{})

	var wg sync.WaitGroup
	for _, event := range []string{"config-changed", "database-relation-changed", "config-changed", "upgrade"} {
		wg.Add(1)
		go func(event string) {
			defer wg.Done()
			_, _ = d.Dispatch(context.Background(), event)
		}(event)
	}
	wg.Wait()

	assert.Len(t, r.calls, 4)
	assert.Equal(t, int32(1), atomic.LoadInt32(&r.maxSeen))
}
