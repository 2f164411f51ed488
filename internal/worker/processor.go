package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"reminders/internal/domain"
	"reminders/internal/observability"
	"reminders/internal/providers/omniplus"
	"reminders/internal/store"
	"reminders/internal/util"
)

type Store interface {
	DueForDelivery(ctx context.Context, today time.Time) ([]store.DueRecord, error)
	AdvanceToSent(ctx context.Context, rec domain.ControlRecord) (bool, error)
}

type Sender interface {
	Send(ctx context.Context, req omniplus.SendRequest) (int, []byte, error)
}

// Result labels the outcome of one delivery attempt. Values double as metric labels.
type Result string

const (
	ResultSent         Result = "ok"
	ResultFailed       Result = "error"
	ResultConfigError  Result = "config_error"
	ResultRateLimited  Result = "rate_limited_local"
	ResultBreakerOpen  Result = "cb_open"
	ResultDeferred     Result = "deferred"
	ResultAlreadyMoved Result = "already_moved"
)

type Processor struct {
	Store       Store
	Sender      Sender
	Limiter     *rate.Limiter
	Breakers    *Breakers
	Location    *time.Location
	SendTimeout time.Duration
}

// Summary counts one drain cycle.
type Summary struct {
	Due      int
	Sent     int
	Failed   int
	Skipped  int
	Deferred int
}

// Drain sends every due reminder once, one at a time in query order. Records
// left Queued are retried on the next call. Only a failed due query is returned. A record whose contact already got
// a reminder on the same gateway domain earlier in this cycle is deferred.
func (p *Processor) Drain(ctx context.Context, now time.Time) (Summary, error) {
	var sum Summary
	runID := util.NewRunID("delivery")
	today := util.Day(now, p.location())

	due, err := p.Store.DueForDelivery(ctx, today)
	if err != nil {
		return sum, fmt.Errorf("worker: due query: %w", err)
	}
	sum.Due = len(due)
	if len(due) == 0 {
		return sum, nil
	}

	start := time.Now()
	sent := make(map[string]bool)
	for _, d := range due {
		key := d.Record.Contact + "|" + d.Record.GatewayDomain
		if sent[key] {
			sum.Deferred++
			observability.Delivery.WithLabelValues(string(ResultDeferred), "0").Inc()
			continue
		}

		res, err := p.Deliver(ctx, d)
		if err != nil {
			// the gateway accepted the message; only the state update failed
			slog.Error("delivery state update failed", "run_id", runID, "record_id", d.Record.ID, "err", err)
			sent[key] = true
			sum.Failed++
			continue
		}
		switch res {
		case ResultSent:
			sent[key] = true
			sum.Sent++
		case ResultFailed, ResultRateLimited, ResultBreakerOpen:
			sum.Failed++
		default:
			sum.Skipped++
		}
	}

	slog.Info("delivery cycle complete",
		"run_id", runID,
		"due", sum.Due,
		"sent", sum.Sent,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"deferred", sum.Deferred,
		"duration", time.Since(start),
	)
	return sum, nil
}

// Deliver sends one reminder and advances it to Sent on a 2xx answer. Gateway
// and configuration problems are logged and reported through the Result; the
// returned error is reserved for store failures.
func (p *Processor) Deliver(ctx context.Context, d store.DueRecord) (Result, error) {
	rec := d.Record
	log := slog.With("record_id", rec.ID, "tenant", rec.SourceDomain, "gateway", rec.GatewayDomain, "appt_id", rec.AppointmentID)

	if rec.GatewayDomain == "" {
		log.Error("delivery skipped", "err", domain.ErrGatewayDomainMissing)
		observability.Delivery.WithLabelValues(string(ResultConfigError), "0").Inc()
		return ResultConfigError, nil
	}
	if d.Template() == "" {
		log.Error("delivery skipped", "err", domain.ErrTemplateMissing, "type", rec.Type.Label())
		observability.Delivery.WithLabelValues(string(ResultConfigError), "0").Inc()
		return ResultConfigError, nil
	}

	// 1) Rate limit before calling the gateway
	if p.Limiter != nil {
		waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Second)
		err := p.Limiter.Wait(waitCtx)
		cancelWait()
		if err != nil {
			observability.Delivery.WithLabelValues(string(ResultRateLimited), "0").Inc()
			log.Warn("delivery rate limited", "err", err)
			return ResultRateLimited, nil
		}
	}

	// 2) Circuit breaker per gateway domain wraps the call
	start := time.Now()
	resAny, err := p.executeWithBreaker(ctx, rec.GatewayDomain, omniplus.SendRequest{
		Domain:  rec.GatewayDomain,
		Token:   d.GatewayToken,
		Message: BuildMessage(d),
	})

	// 3) Breaker open: fail fast, the record stays Queued
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		observability.Delivery.WithLabelValues(string(ResultBreakerOpen), "0").Inc()
		log.Warn("delivery breaker open", "err", err)
		return ResultBreakerOpen, nil
	}

	if err != nil {
		var httpStatus int
		var raw []byte
		var ce sendCallError
		if errors.As(err, &ce) {
			httpStatus, raw = ce.httpStatus, ce.raw
		}
		observability.Delivery.WithLabelValues(string(ResultFailed), strconv.Itoa(httpStatus)).Inc()
		log.Error("delivery failed",
			"http_status", httpStatus,
			"transient", omniplus.Transient(err, httpStatus),
			"response", string(raw),
			"err", err,
		)
		return ResultFailed, nil
	}

	r := resAny.(sendResult)
	observability.Delivery.WithLabelValues(string(ResultSent), strconv.Itoa(r.httpStatus)).Inc()
	observability.GatewayLatency.Observe(time.Since(start).Seconds())

	moved, err := p.Store.AdvanceToSent(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("worker: advance %d: %w", rec.ID, err)
	}
	if !moved {
		log.Warn("reminder sent but record no longer queued")
		return ResultAlreadyMoved, nil
	}
	log.Info("reminder sent",
		"http_status", r.httpStatus,
		"status", domain.StatusSent.String(),
		"response", string(r.raw),
	)
	return ResultSent, nil
}

// BuildMessage renders the gateway payload for a due reminder.
func BuildMessage(d store.DueRecord) omniplus.Message {
	rec := d.Record
	return omniplus.Message{
		Contact: omniplus.Contact{ChannelAddress: util.ChannelAddress(rec.Contact)},
		Template: omniplus.Template{
			ID: d.Template(),
			Variables: []string{
				rec.PatientName,
				rec.PatientID,
				rec.AppointmentID,
				rec.FormattedDate(),
				rec.Time,
			},
		},
		Channel: d.Channel,
	}
}

func (p *Processor) executeWithBreaker(ctx context.Context, gatewayDomain string, req omniplus.SendRequest) (any, error) {
	call := func() (any, error) {
		timeout := p.SendTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		httpStatus, raw, callErr := p.Sender.Send(reqCtx, req)
		if callErr != nil {
			return nil, sendCallError{err: callErr, httpStatus: httpStatus, raw: raw}
		}
		return sendResult{httpStatus: httpStatus, raw: raw}, nil
	}

	if p.Breakers == nil {
		return call()
	}
	return p.Breakers.For(gatewayDomain).Execute(call)
}

func (p *Processor) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// Breakers hands out one circuit breaker per gateway domain, so one tenant's
// failing gateway does not stop delivery for the others.
type Breakers struct {
	mu          sync.Mutex
	m           map[string]*gobreaker.CircuitBreaker
	maxFailures uint32
	timeout     time.Duration
}

func NewBreakers(maxFailures uint32, timeout time.Duration) *Breakers {
	if maxFailures == 0 {
		maxFailures = 5
	}
	return &Breakers{m: make(map[string]*gobreaker.CircuitBreaker), maxFailures: maxFailures, timeout: timeout}
}

func (b *Breakers) For(gatewayDomain string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.m[gatewayDomain]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "omniplus:" + gatewayDomain,
		MaxRequests: 1,
		Timeout:     b.timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= b.maxFailures },
		// rejected requests (4xx) say nothing about gateway health
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var ce sendCallError
			if errors.As(err, &ce) {
				return !omniplus.Transient(ce.err, ce.httpStatus)
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("gateway breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	b.m[gatewayDomain] = cb
	return cb
}

type sendResult struct {
	httpStatus int
	raw        []byte
}

type sendCallError struct {
	err        error
	httpStatus int
	raw        []byte
}

func (e sendCallError) Error() string { return e.err.Error() }
func (e sendCallError) Unwrap() error { return e.err }
