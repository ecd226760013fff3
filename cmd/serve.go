package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/moodmusic/internal/server"
	"github.com/desertthunder/moodmusic/internal/tasks"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
	"github.com/urfave/cli/v3"
)

// supervisor builds the root supervisor, reporting restarts and failures through the runner's logger.
func (r *Runner) supervisor() *suture.Supervisor {
	hook := (&sutureslog.Handler{Logger: slog.New(r.logger)}).MustHook()
	return suture.New("moodmusic", suture.Spec{
		EventHook:        hook,
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          15 * time.Second,
	})
}

// Serve runs the HTTP API and, unless disabled, the library poller until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.Engine()
	if err != nil {
		return err
	}
	provider, err := r.Provider()
	if err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	api := server.New(engine, provider, server.Options{
		RequestsPerMinute: r.config.Server.RequestsPerMinute,
		Logger:            r.logger,
	})
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sup := r.supervisor()
	sup.Add(server.NewService(httpServer, 10*time.Second))

	interval := r.config.Sync.Interval()
	if cmd.Bool("no-poll") {
		interval = 0
	}
	if interval > 0 {
		sup.Add(tasks.NewPoller(engine, interval, nil))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("serving", "addr", addr, "poll_interval", interval)
	err = sup.Serve(ctx)
	if ctx.Err() != nil {
		r.logger.Info("shut down")
		return nil
	}
	return err
}
