// Package discovery polls each tenant's scheduling backend and queues one
// reminder per appointment that falls on its type's target day.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reminders/internal/domain"
	"reminders/internal/observability"
	"reminders/internal/providers/gesthor"
	"reminders/internal/store"
	"reminders/internal/util"
)

type Source interface {
	Plans(ctx context.Context, cred gesthor.Credentials) ([]gesthor.Plan, error)
	Schedules(ctx context.Context, cred gesthor.Credentials, planID string) ([]gesthor.Schedule, error)
	Appointments(ctx context.Context, cred gesthor.Credentials, scheduleID string, from, to time.Time) ([]gesthor.Appointment, error)
	PatientContact(ctx context.Context, cred gesthor.Credentials, patientID string) (string, error)
}

type Store interface {
	ListActiveTenants(ctx context.Context) ([]domain.TenantConfig, error)
	InsertControl(ctx context.Context, rec domain.ControlRecord) (store.InsertResult, error)
}

type Service struct {
	Store    Store
	Source   Source
	Location *time.Location
}

// Summary counts what one tenant pass did.
type Summary struct {
	Fetched    int
	Queued     int
	Duplicates int
	Dropped    int
}

// RunHour runs a pass for every active tenant with a trigger slot at now's
// hour. Tenants are handled one at a time in registry order; a failing tenant
// is logged and skipped. Only a failure to read the registry is returned.
func (s *Service) RunHour(ctx context.Context, now time.Time) error {
	now = now.In(s.location())
	runID := util.NewRunID("discovery")

	tenants, err := s.Store.ListActiveTenants(ctx)
	if err != nil {
		return fmt.Errorf("discovery: list tenants: %w", err)
	}

	today := util.Day(now, s.location())
	for _, tc := range tenants {
		slot, ok := tc.SlotAt(now.Hour())
		if !ok {
			continue
		}
		log := slog.With("run_id", runID, "tenant", tc.Domain, "slot", string(slot))

		start := time.Now()
		sum, err := s.RunTenant(ctx, tc, today)
		if err != nil {
			observability.DiscoveryTenants.WithLabelValues("error").Inc()
			log.Error("discovery tenant failed", "err", err, "queued", sum.Queued)
			continue
		}
		observability.DiscoveryTenants.WithLabelValues("ok").Inc()
		log.Info("discovery tenant done",
			"fetched", sum.Fetched,
			"queued", sum.Queued,
			"duplicates", sum.Duplicates,
			"dropped", sum.Dropped,
			"duration", time.Since(start),
		)
	}
	return nil
}

// RunTenant performs the plan, schedule, appointment walk for one tenant.
// Only the first plan is used. An empty plan or schedule listing ends the pass
// without error; a schedule whose listing fails is skipped.
func (s *Service) RunTenant(ctx context.Context, tc domain.TenantConfig, today time.Time) (Summary, error) {
	var sum Summary
	if tc.Domain == "" {
		return sum, domain.ErrSourceDomainMissing
	}
	cred := gesthor.Credentials{Domain: tc.Domain, ClientID: tc.ClientID, Token: tc.SourceToken}

	plans, err := s.Source.Plans(ctx, cred)
	if err != nil {
		return sum, err
	}
	if len(plans) == 0 {
		slog.Debug("no plans found", "tenant", tc.Domain)
		return sum, nil
	}

	schedules, err := s.Source.Schedules(ctx, cred, plans[0].ID.String())
	if err != nil {
		return sum, err
	}
	if len(schedules) == 0 {
		slog.Debug("no schedules found", "tenant", tc.Domain, "plan_id", plans[0].ID)
		return sum, nil
	}

	to := util.AddDays(today, tc.MaxLeadDays())
	for _, sc := range schedules {
		appts, err := s.Source.Appointments(ctx, cred, sc.ID.String(), today, to)
		if err != nil {
			slog.Error("list appointments failed", "tenant", tc.Domain, "schedule_id", sc.ID, "err", err)
			continue
		}
		if len(appts) == 0 {
			slog.Debug("no appointments in schedule", "tenant", tc.Domain, "schedule_id", sc.ID)
			continue
		}

		for _, a := range appts {
			sum.Fetched++
			res, err := s.handle(ctx, tc, cred, a, sc.ID.String(), today)
			if err != nil {
				return sum, err
			}
			observability.DiscoveryAppointments.WithLabelValues(string(res)).Inc()
			switch res {
			case ResultQueued:
				sum.Queued++
			case ResultDuplicate:
				sum.Duplicates++
			default:
				sum.Dropped++
			}
		}
	}
	return sum, nil
}

func (s *Service) handle(ctx context.Context, tc domain.TenantConfig, cred gesthor.Credentials, a gesthor.Appointment, scheduleID string, today time.Time) (Result, error) {
	appt, res := Filter(tc, a, scheduleID, today)
	if res != ResultAccepted {
		slog.Debug("appointment dropped", "tenant", tc.Domain, "appt_id", a.ID, "type", a.Type, "date", a.Date, "reason", string(res))
		return res, nil
	}

	raw, err := s.Source.PatientContact(ctx, cred, appt.PatientID)
	if err != nil {
		slog.Warn("patient lookup failed", "tenant", tc.Domain, "appt_id", appt.ID, "patient_id", appt.PatientID, "err", err)
		return ResultLookupFailed, nil
	}
	appt.Contact = util.NormalizePhone(raw)
	if appt.Contact == "" {
		slog.Debug("appointment dropped", "tenant", tc.Domain, "appt_id", appt.ID, "reason", string(ResultNoContact))
		return ResultNoContact, nil
	}

	ins, err := s.Store.InsertControl(ctx, NewControlRecord(tc, appt))
	if err != nil {
		return "", fmt.Errorf("discovery: queue %s: %w", appt.ID, err)
	}
	if ins.Duplicate {
		return ResultDuplicate, nil
	}
	slog.Info("reminder queued",
		"tenant", tc.Domain,
		"record_id", ins.ID,
		"appt_id", appt.ID,
		"type", appt.Type.Label(),
		"date", appt.Date.Format("2006-01-02"),
		"status", domain.StatusQueued.String(),
	)
	return ResultQueued, nil
}

func (s *Service) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}
