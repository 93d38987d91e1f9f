package bootstrap

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"go.uber.org/fx"
)

// Runnable is anything with a background Run loop and a graceful Stop,
// satisfied by *worker.Worker's consume/reap loops.
type Runnable interface {
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}

// RegisterRunnable starts r in a background goroutine on fx start and
// calls its Stop on fx stop, so the worker's consume/reap loops share the
// same shutdown ordering as every other component wired through fx.
func RegisterRunnable(lc fx.Lifecycle, logger *log.Logger, name string, r Runnable) {
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Info("starting runnable", "name", name)
				if err := r.Run(runCtx); err != nil && err != context.Canceled {
					logger.Error("runnable exited with error", "name", name, "error", err)
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			return r.Stop(stopCtx)
		},
	})
}

// StartHTTPServer registers an fx lifecycle hook that serves router on
// addr, logging a non-graceful-shutdown error and shutting the listener
// down cleanly when fx stops.
func StartHTTPServer(lc fx.Lifecycle, logger *log.Logger, addr string, handler http.Handler) {
	srv := &http.Server{Addr: addr, Handler: handler}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Info("starting http server", "address", addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("http server error", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
