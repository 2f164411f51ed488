// Package scheduler runs the two background loops: an hourly discovery pass
// and a fixed-interval delivery drain.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"reminders/internal/util"
	"reminders/internal/worker"
)

type Discovery interface {
	RunHour(ctx context.Context, now time.Time) error
}

type Delivery interface {
	Drain(ctx context.Context, now time.Time) (worker.Summary, error)
}

type Scheduler struct {
	Discovery Discovery
	Delivery  Delivery
	Interval  time.Duration
	Location  *time.Location

	// test hooks
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run starts both loops and blocks until both have returned. Cancelling ctx
// stops each loop at its next sleep; an iteration already running is allowed
// to finish. A discovery failure is returned and stops the delivery loop too.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.RunDiscovery(gctx) })
	g.Go(func() error { return s.RunDelivery(gctx) })
	return g.Wait()
}

// RunDiscovery runs a pass, then sleeps until the next hour boundary.
func (s *Scheduler) RunDiscovery(ctx context.Context) error {
	for ctx.Err() == nil {
		if err := s.Discovery.RunHour(context.WithoutCancel(ctx), s.now()); err != nil {
			slog.Error("discovery loop stopped", "err", err)
			return fmt.Errorf("scheduler: discovery: %w", err)
		}
		wait := util.UntilNextHour(s.now())
		slog.Debug("discovery sleeping", "wait", wait)
		if err := s.sleep(ctx, wait); err != nil {
			break
		}
	}
	slog.Info("discovery loop stopped")
	return nil
}

// RunDelivery drains the queue every Interval. Drain errors are logged and the
// loop carries on.
func (s *Scheduler) RunDelivery(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	for ctx.Err() == nil {
		if _, err := s.Delivery.Drain(context.WithoutCancel(ctx), s.now()); err != nil {
			slog.Error("delivery cycle failed", "err", err)
		}
		if err := s.sleep(ctx, interval); err != nil {
			break
		}
	}
	slog.Info("delivery loop stopped")
	return nil
}

func (s *Scheduler) now() time.Time {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	if s.Location != nil {
		now = now.In(s.Location)
	}
	return now
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
