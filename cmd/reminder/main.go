package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reminders/internal/app"
	"reminders/internal/config"
	"reminders/internal/logging"
)

func main() {
	cfg := config.Load()
	logging.Init("reminder", logging.Options{
		Format: cfg.LogFormat,
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
		MaxAge: cfg.LogMaxAge,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}

	if len(os.Args) > 1 {
		op := &operator{
			store:    a.Store,
			runner:   a.Discovery,
			location: a.Location,
			now:      time.Now,
			out:      os.Stdout,
		}
		err := op.run(ctx, os.Args[1:])
		a.Close()
		if err != nil {
			slog.Error("command failed", "command", os.Args[1], "err", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("reminder service starting",
		"timezone", a.Location.String(),
		"delivery_interval", cfg.DeliveryInterval,
	)
	runErr := a.Run(ctx)

	// both timers have returned; the pool is no longer in use
	a.Close()
	if runErr != nil {
		slog.Error("reminder service stopped", "err", runErr)
		os.Exit(1)
	}
	slog.Info("reminder service stopped")
}
