package discovery

import (
	"time"

	"reminders/internal/domain"
	"reminders/internal/providers/gesthor"
	"reminders/internal/util"
)

// Result labels the fate of one fetched appointment. Values double as metric labels.
type Result string

const (
	ResultQueued        Result = "queued"
	ResultDuplicate     Result = "duplicate"
	ResultUnknownType   Result = "unknown_type"
	ResultOutOfWindow   Result = "out_of_window"
	ResultBadDate       Result = "bad_date"
	ResultMissingFields Result = "missing_fields"
	ResultNoContact     Result = "no_contact"
	ResultLookupFailed  Result = "lookup_failed"
	ResultAccepted      Result = "accepted"
)

// TargetDay is the only appointment date that gets a reminder today for typ:
// exactly lead days after today.
func TargetDay(tc domain.TenantConfig, typ domain.AppointmentType, today time.Time) (time.Time, bool) {
	lead, ok := tc.LeadDays(typ)
	if !ok || !typ.Valid() {
		return time.Time{}, false
	}
	return util.AddDays(today, lead), true
}

// Filter turns a fetched appointment into a domain appointment when its date
// matches the type's target day. today must be midnight in the tenant's zone.
// The contact is left empty; it is resolved only for accepted appointments.
func Filter(tc domain.TenantConfig, a gesthor.Appointment, scheduleID string, today time.Time) (domain.Appointment, Result) {
	typ := domain.AppointmentType(a.Type)
	target, ok := TargetDay(tc, typ, today)
	if !ok {
		return domain.Appointment{}, ResultUnknownType
	}

	day, err := a.Day(today.Location())
	if err != nil {
		return domain.Appointment{}, ResultBadDate
	}
	if !util.SameDay(day, target) {
		return domain.Appointment{}, ResultOutOfWindow
	}

	if a.ID == "" || a.PatientID == "" {
		return domain.Appointment{}, ResultMissingFields
	}

	if scheduleID == "" {
		scheduleID = a.ScheduleID.String()
	}
	return domain.Appointment{
		ID:          a.ID.String(),
		Type:        typ,
		Date:        day,
		Time:        a.Time.String() + "h",
		PatientID:   a.PatientID.String(),
		PatientName: a.PatientName.String(),
		ScheduleID:  scheduleID,
	}, ResultAccepted
}

// NewControlRecord builds the queued record for an accepted appointment.
func NewControlRecord(tc domain.TenantConfig, a domain.Appointment) domain.ControlRecord {
	return domain.ControlRecord{
		GatewayDomain: tc.GatewayDomain,
		Contact:       a.Contact,
		PatientID:     a.PatientID,
		PatientName:   a.PatientName,
		Type:          a.Type,
		AppointmentID: a.ID,
		Date:          a.Date,
		Time:          a.Time,
		SourceDomain:  tc.Domain,
		ScheduleID:    a.ScheduleID,
		Status:        domain.StatusQueued,
		Confirmation:  domain.NoConfirmation,
	}
}
