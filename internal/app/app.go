// Package app holds the application context: every long-lived component of
// the reminder service, built once at startup and handed to whoever needs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"reminders/internal/config"
	"reminders/internal/confirmation"
	"reminders/internal/discovery"
	"reminders/internal/httpserver"
	"reminders/internal/observability"
	"reminders/internal/providers/gesthor"
	"reminders/internal/providers/omniplus"
	"reminders/internal/scheduler"
	"reminders/internal/store/pg"
	"reminders/internal/worker"
)

type App struct {
	Config   config.Config
	Location *time.Location
	Registry *prometheus.Registry

	Pool  *pgxpool.Pool // nil when built over another pg.DB
	Store *pg.Store

	Source  *gesthor.Client
	Gateway *omniplus.Client

	Discovery    *discovery.Service
	Delivery     *worker.Processor
	Confirmation *confirmation.Service
	Scheduler    *scheduler.Scheduler

	HTTP *http.Server
}

// Open connects the pool and builds the application over it.
func Open(ctx context.Context, cfg config.Config) (*App, error) {
	pool, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:          cfg.DBPoolMaxConns,
		MinConns:          cfg.DBPoolMinConns,
		MaxConnLifetime:   cfg.DBPoolMaxConnLifetime,
		MaxConnIdleTime:   cfg.DBPoolMaxConnIdleTime,
		HealthCheckPeriod: cfg.DBPoolHealthCheckPeriod,
	})
	if err != nil {
		return nil, err
	}
	a, err := Build(cfg, pool, pool.Ping)
	if err != nil {
		pool.Close()
		return nil, err
	}
	a.Pool = pool
	return a, nil
}

// Build wires every component over db. ping backs the readiness check.
func Build(cfg config.Config, db pg.DB, ping httpserver.ReadyzCheck) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("app: timezone %q: %w", cfg.Timezone, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observability.Register(reg)

	st := pg.New(db)
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	src := gesthor.New(httpClient, cfg.GesthorScheme, cfg.GesthorBasePath)
	gw := omniplus.New(httpClient, cfg.OmniplusScheme, cfg.OmniplusBasePath)

	a := &App{
		Config:   cfg,
		Location: loc,
		Registry: reg,
		Store:    st,
		Source:   src,
		Gateway:  gw,
	}
	a.Discovery = &discovery.Service{Store: st, Source: src, Location: loc}
	a.Delivery = &worker.Processor{
		Store:       st,
		Sender:      gw,
		Limiter:     rate.NewLimiter(rate.Limit(cfg.GatewayRPS), cfg.GatewayBurst),
		Breakers:    worker.NewBreakers(cfg.BreakerMaxFailures, cfg.BreakerTimeout),
		Location:    loc,
		SendTimeout: cfg.HTTPTimeout,
	}
	a.Confirmation = &confirmation.Service{Store: st, Backend: src, Affirmative: cfg.AffirmativeValues}
	a.Scheduler = &scheduler.Scheduler{
		Discovery: a.Discovery,
		Delivery:  a.Delivery,
		Interval:  cfg.DeliveryInterval,
		Location:  loc,
	}

	srv := httpserver.New(reg)
	srv.Mux.HandleFunc("/healthz", httpserver.Healthz()).Methods(http.MethodGet)
	srv.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second, ping)).Methods(http.MethodGet)
	(&httpserver.API{Confirmer: a.Confirmation}).Register(srv.Mux)

	a.HTTP = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(observability.APIRequests),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a, nil
}

// Run serves HTTP and runs both timers until ctx is cancelled or one of them
// fails. It returns after the HTTP server is shut down and both timers have
// finished their current iteration.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http listening", "addr", a.HTTP.Addr)
		if err := a.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.Scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.HTTP.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases the pool. Call it only after Run has returned.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}
