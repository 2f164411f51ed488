package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"reminders/internal/discovery"
	"reminders/internal/domain"
	"reminders/internal/util"
)

type opsStore interface {
	GetTenant(ctx context.Context, tenantDomain string) (domain.TenantConfig, bool, error)
	ListLogEntries(ctx context.Context, appointmentID string) ([]domain.LogEntry, error)
}

type tenantRunner interface {
	RunTenant(ctx context.Context, tc domain.TenantConfig, today time.Time) (discovery.Summary, error)
}

var errUsage = errors.New("usage: reminder [discover <tenant-domain> | history <appt_id>]")

// operator runs the one-shot commands that sit next to the long-running service.
type operator struct {
	store    opsStore
	runner   tenantRunner
	location *time.Location
	now      func() time.Time
	out      io.Writer
}

func (o *operator) run(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	switch args[0] {
	case "discover":
		return o.discover(ctx, args[1])
	case "history":
		return o.history(ctx, args[1])
	default:
		return errUsage
	}
}

// discover runs one pass for a tenant now, regardless of its trigger hours.
func (o *operator) discover(ctx context.Context, tenantDomain string) error {
	tc, ok, err := o.store.GetTenant(ctx, tenantDomain)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("tenant %q not registered", tenantDomain)
	}
	if !tc.Active {
		slog.Warn("tenant is inactive; running anyway", "tenant", tc.Domain)
	}

	sum, err := o.runner.RunTenant(ctx, tc, util.Day(o.now(), o.location))
	if err != nil {
		return err
	}
	slog.Info("manual discovery complete",
		"tenant", tc.Domain,
		"fetched", sum.Fetched,
		"queued", sum.Queued,
		"duplicates", sum.Duplicates,
		"dropped", sum.Dropped,
	)
	return nil
}

type historyLine struct {
	At            time.Time `json:"at"`
	GatewayDomain string    `json:"gateway_domain"`
	Contact       string    `json:"contact"`
	PatientID     string    `json:"patient_id"`
	Type          string    `json:"type"`
	AppointmentID string    `json:"appt_id"`
	Status        string    `json:"status"`
	Confirmation  string    `json:"confirmation"`
	ScheduleID    string    `json:"schedule_id"`
}

// history prints an appointment's log rows, oldest first, one JSON object per line.
func (o *operator) history(ctx context.Context, appointmentID string) error {
	entries, err := o.store.ListLogEntries(ctx, appointmentID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(o.out)
	for _, e := range entries {
		if err := enc.Encode(historyLine{
			At:            e.At,
			GatewayDomain: e.GatewayDomain,
			Contact:       e.Contact,
			PatientID:     e.PatientID,
			Type:          e.Type.Label(),
			AppointmentID: e.AppointmentID,
			Status:        e.Status.String(),
			Confirmation:  e.Confirmation,
			ScheduleID:    e.ScheduleID,
		}); err != nil {
			return err
		}
	}
	if len(entries) == 0 {
		slog.Info("no log entries", "appt_id", appointmentID)
	}
	return nil
}
