package store

import "reminders/internal/domain"

// InsertResult reports whether a discovery insert hit an existing
// (appointment, contact) pair.
type InsertResult struct {
	ID        int64
	Duplicate bool
}

// DueRecord is a queued reminder joined with the sending tenant's gateway settings.
type DueRecord struct {
	Record       domain.ControlRecord
	GatewayToken string
	Channel      string
	Templates    map[domain.AppointmentType]string
}

func (d DueRecord) Template() string {
	return d.Templates[d.Record.Type]
}

// ConfirmationTarget is a sent reminder joined with the scheduling-backend
// credentials needed to relay the patient's answer.
type ConfirmationTarget struct {
	Record      domain.ControlRecord
	Domain      string
	ClientID    string
	SourceToken string
}

type Transition struct {
	Record       domain.ControlRecord
	From         domain.Status
	To           domain.Status
	Confirmation string
}
