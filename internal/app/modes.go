package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ubuntu-core/serial-vault-charm/internal/watch"
	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

// startupEvents are dispatched when Serve starts so the unit converges
// without waiting for a file change.
var startupEvents = []string{"install", "config-changed"}

// Serve watches the local environment directory and dispatches an event
// for every change until ctx is done. With a metrics address it also
// serves /metrics.
func (a *Application) Serve(ctx context.Context) error {
	local := a.services.Local
	if local == nil {
		return errors.New("serve requires local mode")
	}

	g, ctx := errgroup.WithContext(ctx)

	events := make(chan watch.Event, 32)
	detector := watch.NewDetector(local.Dir(), 0)
	if err := detector.Start(ctx, events); err != nil {
		return err
	}
	defer detector.Stop()

	g.Go(func() error {
		for _, event := range startupEvents {
			if _, err := a.Dispatch(ctx, event); err != nil {
				return err
			}
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-events:
				if _, err := a.Dispatch(ctx, ev.Name); err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
			}
		}
	})

	if addr := a.config.Runtime.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.services.Metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			logging.Info("Serve", "Serving metrics on %s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logging.Info("Serve", "Reconciling %s", local.Dir())
	return g.Wait()
}
