// Package confirmation closes the reminder loop: it records a patient's answer
// and relays it to the scheduling backend.
package confirmation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"reminders/internal/domain"
	"reminders/internal/observability"
	"reminders/internal/providers/gesthor"
	"reminders/internal/store"
	"reminders/internal/util"
)

type Store interface {
	FindSentForConfirmation(ctx context.Context, contact, token string) (store.ConfirmationTarget, bool, error)
	MarkReceived(ctx context.Context, rec domain.ControlRecord, confirmation string) (bool, error)
	MarkResponded(ctx context.Context, rec domain.ControlRecord, confirmation string) (bool, error)
}

type Backend interface {
	Confirm(ctx context.Context, cred gesthor.Credentials, patientID, appointmentID string, affirmative bool) error
}

type Outcome string

const (
	OutcomeResponded Outcome = "responded"
	OutcomeNotFound  Outcome = "not_found"
	// OutcomeReceived means the answer is stored but the backend relay failed.
	OutcomeReceived Outcome = "received"
	OutcomeError    Outcome = "error"
)

type Service struct {
	Store       Store
	Backend     Backend
	Affirmative []string // defaults to "sim"
}

// Handle records req against the contact's sent reminder. The Received state
// is kept even when the relay to the backend fails; the error is still
// returned so the caller can report failure.
func (s *Service) Handle(ctx context.Context, req domain.ConfirmationRequest) (out Outcome, err error) {
	defer func() { observability.Confirmations.WithLabelValues(string(out)).Inc() }()

	if err := req.Validate(); err != nil {
		return OutcomeError, err
	}
	contact := util.NormalizePhone(req.Contact)

	target, found, err := s.Store.FindSentForConfirmation(ctx, contact, req.Token)
	if err != nil {
		return OutcomeError, fmt.Errorf("confirmation: lookup: %w", err)
	}
	if !found {
		slog.Info("confirmation without sent reminder", "contact", contact)
		return OutcomeNotFound, nil
	}
	rec := target.Record
	log := slog.With("record_id", rec.ID, "tenant", target.Domain, "appt_id", rec.AppointmentID)

	moved, err := s.Store.MarkReceived(ctx, rec, req.Confirmation)
	if err != nil {
		return OutcomeError, fmt.Errorf("confirmation: mark received: %w", err)
	}
	if !moved {
		log.Info("confirmation raced with another answer")
		return OutcomeNotFound, nil
	}
	rec.Status = domain.StatusReceived
	rec.Confirmation = req.Confirmation
	log.Info("confirmation received", "confirmation", req.Confirmation, "status", rec.Status.String())

	affirmative := IsAffirmative(req.Confirmation, s.Affirmative)
	cred := gesthor.Credentials{Domain: target.Domain, ClientID: target.ClientID, Token: target.SourceToken}
	if err := s.Backend.Confirm(ctx, cred, rec.PatientID, rec.AppointmentID, affirmative); err != nil {
		log.Error("confirmation relay failed", "affirmative", affirmative, "err", err)
		return OutcomeReceived, fmt.Errorf("confirmation: relay: %w", err)
	}

	moved, err = s.Store.MarkResponded(ctx, rec, req.Confirmation)
	if err != nil {
		return OutcomeReceived, fmt.Errorf("confirmation: mark responded: %w", err)
	}
	if !moved {
		log.Warn("confirmation relayed but record no longer received", "affirmative", affirmative)
		return OutcomeNotFound, nil
	}
	log.Info("confirmation relayed", "affirmative", affirmative, "status", domain.StatusResponded.String())
	return OutcomeResponded, nil
}

// IsAffirmative compares v against the accepted values ignoring case and
// surrounding space.
func IsAffirmative(v string, accepted []string) bool {
	v = strings.TrimSpace(v)
	if len(accepted) == 0 {
		return strings.EqualFold(v, "sim")
	}
	for _, a := range accepted {
		if strings.EqualFold(v, strings.TrimSpace(a)) {
			return true
		}
	}
	return false
}
