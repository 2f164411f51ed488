package domain

import (
	"errors"
	"time"
)

// Status is the lifecycle of a reminder. Values are persisted as integers.
type Status int

const (
	StatusQueued    Status = 0
	StatusSent      Status = 1
	StatusReceived  Status = 2
	StatusResponded Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusSent:
		return "sent"
	case StatusReceived:
		return "received"
	case StatusResponded:
		return "responded"
	default:
		return "unknown"
	}
}

// Next reports the only status s may advance to.
func (s Status) Next() (Status, bool) {
	if s < StatusQueued || s >= StatusResponded {
		return s, false
	}
	return s + 1, true
}

// AppointmentType uses the scheduling backend's single-letter codes.
type AppointmentType string

const (
	TypeConsultation AppointmentType = "C"
	TypeExam         AppointmentType = "E"
	TypeFollowUp     AppointmentType = "R"
	TypeProcedure    AppointmentType = "P"
)

var AppointmentTypes = []AppointmentType{TypeConsultation, TypeExam, TypeFollowUp, TypeProcedure}

func (t AppointmentType) Valid() bool {
	switch t {
	case TypeConsultation, TypeExam, TypeFollowUp, TypeProcedure:
		return true
	}
	return false
}

func (t AppointmentType) Label() string {
	switch t {
	case TypeConsultation:
		return "consultation"
	case TypeExam:
		return "exam"
	case TypeFollowUp:
		return "follow_up"
	case TypeProcedure:
		return "procedure"
	default:
		return "unknown"
	}
}

// NoConfirmation is stored until the patient answers.
const NoConfirmation = "nao"

// Slot names the daily trigger hours of a tenant.
type Slot string

const (
	SlotMorning   Slot = "morning"
	SlotAfternoon Slot = "afternoon"
	SlotEvening   Slot = "evening"
)

// TypeSettings is the per-appointment-type part of a tenant's configuration.
type TypeSettings struct {
	TemplateID string
	LeadDays   int
}

type TenantConfig struct {
	Domain        string // scheduling backend host, unique
	ClientID      string
	SourceToken   string
	GatewayDomain string
	GatewayToken  string
	Channel       string
	HourMorning   int
	HourAfternoon int
	HourEvening   int
	Types         map[AppointmentType]TypeSettings
	Active        bool
}

// SlotAt returns the first slot whose trigger hour equals hour.
func (t TenantConfig) SlotAt(hour int) (Slot, bool) {
	switch hour {
	case t.HourMorning:
		return SlotMorning, true
	case t.HourAfternoon:
		return SlotAfternoon, true
	case t.HourEvening:
		return SlotEvening, true
	}
	return "", false
}

func (t TenantConfig) LeadDays(typ AppointmentType) (int, bool) {
	s, ok := t.Types[typ]
	if !ok {
		return 0, false
	}
	return s.LeadDays, true
}

func (t TenantConfig) Template(typ AppointmentType) string {
	return t.Types[typ].TemplateID
}

// MaxLeadDays is the farthest horizon across all appointment types.
func (t TenantConfig) MaxLeadDays() int {
	max := 0
	for _, s := range t.Types {
		if s.LeadDays > max {
			max = s.LeadDays
		}
	}
	return max
}

// Appointment is a transient view of a scheduling-backend appointment.
type Appointment struct {
	ID          string
	Type        AppointmentType
	Date        time.Time // midnight in the tenant's zone
	Time        string
	PatientID   string
	PatientName string
	Contact     string
	ScheduleID  string
}

type ControlRecord struct {
	ID            int64
	GatewayDomain string
	Contact       string
	PatientID     string
	PatientName   string
	Type          AppointmentType
	AppointmentID string
	Date          time.Time
	Time          string
	SourceDomain  string
	ScheduleID    string
	Status        Status
	Confirmation  string
}

// FormattedDate renders the appointment date the way patients read it.
func (r ControlRecord) FormattedDate() string {
	return r.Date.Format("02/01/2006")
}

type LogEntry struct {
	At            time.Time
	GatewayDomain string
	Contact       string
	PatientID     string
	PatientName   string
	Type          AppointmentType
	AppointmentID string
	Status        Status
	Confirmation  string
	ScheduleID    string
}

func NewLogEntry(r ControlRecord, status Status, confirmation string) LogEntry {
	return LogEntry{
		GatewayDomain: r.GatewayDomain,
		Contact:       r.Contact,
		PatientID:     r.PatientID,
		PatientName:   r.PatientName,
		Type:          r.Type,
		AppointmentID: r.AppointmentID,
		Status:        status,
		Confirmation:  confirmation,
		ScheduleID:    r.ScheduleID,
	}
}

// ConfirmationRequest is the inbound confirmation callback.
type ConfirmationRequest struct {
	Contact      string `json:"contact"`
	Confirmation string `json:"confirmation"`
	Token        string `json:"-"`
}

func (r ConfirmationRequest) Validate() error {
	if r.Contact == "" || r.Confirmation == "" || r.Token == "" {
		return ErrMissingFields
	}
	return nil
}

var (
	ErrMissingFields        = errors.New("missing required fields")
	ErrGatewayDomainMissing = errors.New("gateway domain is empty")
	ErrTemplateMissing      = errors.New("template id is empty")
	ErrSourceDomainMissing  = errors.New("source domain is empty")
)
