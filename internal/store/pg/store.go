package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"reminders/internal/domain"
	"reminders/internal/store"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type scanner interface {
	Scan(dest ...any) error
}

// Store owns every write to control_record and log_entry.
type Store struct {
	DB DB
}

func New(db DB) *Store { return &Store{DB: db} }

const tenantColumns = `
	domain, COALESCE(client_id,''), COALESCE(source_token,''),
	COALESCE(gateway_domain,''), COALESCE(gateway_token,''), COALESCE(channel,''),
	hour_am, hour_pm, hour_eve,
	COALESCE(template_consultation,''), lead_days_consultation,
	COALESCE(template_exam,''), lead_days_exam,
	COALESCE(template_followup,''), lead_days_followup,
	COALESCE(template_procedure,''), lead_days_procedure,
	active`

const recordColumns = `
	a.id, a.gateway_domain, a.contact, a.patient_id, a.patient_name, a.appt_type, a.appt_id,
	a.appt_date, a.appt_time, a.source_domain, a.schedule_id, a.status, a.confirmation`

func (s *Store) ListActiveTenants(ctx context.Context) ([]domain.TenantConfig, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+tenantColumns+` FROM tenant_config WHERE active ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("pg: list tenants: %w", err)
	}
	defer rows.Close()

	var out []domain.TenantConfig
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("pg: scan tenant: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg: list tenants: %w", err)
	}
	return out, nil
}

func (s *Store) GetTenant(ctx context.Context, tenantDomain string) (domain.TenantConfig, bool, error) {
	t, err := scanTenant(s.DB.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenant_config WHERE domain=$1`, tenantDomain))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TenantConfig{}, false, nil
		}
		return domain.TenantConfig{}, false, fmt.Errorf("pg: get tenant: %w", err)
	}
	return t, true, nil
}

// InsertControl queues a reminder unless the (appointment, contact) pair is
// already known, in which case nothing is written.
func (s *Store) InsertControl(ctx context.Context, rec domain.ControlRecord) (store.InsertResult, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return store.InsertResult{}, fmt.Errorf("pg: insert control: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO control_record (gateway_domain, contact, patient_id, patient_name, appt_type, appt_id,
		                            appt_date, appt_time, source_domain, schedule_id, status, confirmation)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (appt_id, contact) DO NOTHING
		RETURNING id
	`, rec.GatewayDomain, rec.Contact, rec.PatientID, rec.PatientName, string(rec.Type), rec.AppointmentID,
		rec.Date, rec.Time, rec.SourceDomain, rec.ScheduleID, int(domain.StatusQueued), domain.NoConfirmation).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.InsertResult{Duplicate: true}, nil
		}
		return store.InsertResult{}, fmt.Errorf("pg: insert control: %w", err)
	}

	if err := insertLog(ctx, tx, domain.NewLogEntry(rec, domain.StatusQueued, domain.NoConfirmation)); err != nil {
		return store.InsertResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return store.InsertResult{}, fmt.Errorf("pg: insert control: commit: %w", err)
	}
	return store.InsertResult{ID: id}, nil
}

// DueForDelivery returns queued reminders for today or later whose contact has
// no other reminder already sent on the same gateway domain for today or later.
func (s *Store) DueForDelivery(ctx context.Context, today time.Time) ([]store.DueRecord, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+recordColumns+`,
		       COALESCE(b.gateway_token,''), COALESCE(b.channel,''),
		       COALESCE(b.template_consultation,''), COALESCE(b.template_exam,''),
		       COALESCE(b.template_followup,''), COALESCE(b.template_procedure,'')
		FROM control_record a
		JOIN tenant_config b ON a.source_domain = b.domain
		WHERE a.status = 0
		  AND b.active
		  AND a.appt_date >= $1
		  AND NOT EXISTS (
		      SELECT 1 FROM control_record c
		      WHERE c.contact = a.contact
		        AND c.gateway_domain = a.gateway_domain
		        AND c.appt_date >= $1
		        AND c.status = 1
		  )
		ORDER BY a.id
	`, today)
	if err != nil {
		return nil, fmt.Errorf("pg: due for delivery: %w", err)
	}
	defer rows.Close()

	var out []store.DueRecord
	for rows.Next() {
		var d store.DueRecord
		var tc, te, tr, tp string
		dest := append(recordDest(&d.Record), &d.GatewayToken, &d.Channel, &tc, &te, &tr, &tp)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("pg: scan due record: %w", err)
		}
		d.Templates = map[domain.AppointmentType]string{
			domain.TypeConsultation: tc,
			domain.TypeExam:         te,
			domain.TypeFollowUp:     tr,
			domain.TypeProcedure:    tp,
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg: due for delivery: %w", err)
	}
	return out, nil
}

// FindSentForConfirmation looks up the sent reminder for contact whose tenant
// authenticates with token. The earliest appointment wins when several match.
func (s *Store) FindSentForConfirmation(ctx context.Context, contact, token string) (store.ConfirmationTarget, bool, error) {
	var out store.ConfirmationTarget
	dest := append(recordDest(&out.Record), &out.Domain, &out.ClientID, &out.SourceToken)
	err := s.DB.QueryRow(ctx, `
		SELECT `+recordColumns+`, b.domain, COALESCE(b.client_id,''), COALESCE(b.source_token,'')
		FROM control_record a
		JOIN tenant_config b ON a.source_domain = b.domain
		WHERE a.contact = $1
		  AND b.source_token = $2
		  AND a.status = 1
		ORDER BY a.appt_date, a.id
		LIMIT 1
	`, contact, token).Scan(dest...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ConfirmationTarget{}, false, nil
		}
		return store.ConfirmationTarget{}, false, fmt.Errorf("pg: find sent: %w", err)
	}
	return out, true, nil
}

func (s *Store) AdvanceToSent(ctx context.Context, rec domain.ControlRecord) (bool, error) {
	return s.Transition(ctx, store.Transition{
		Record: rec, From: domain.StatusQueued, To: domain.StatusSent, Confirmation: rec.Confirmation,
	})
}

func (s *Store) MarkReceived(ctx context.Context, rec domain.ControlRecord, confirmation string) (bool, error) {
	return s.Transition(ctx, store.Transition{
		Record: rec, From: domain.StatusSent, To: domain.StatusReceived, Confirmation: confirmation,
	})
}

func (s *Store) MarkResponded(ctx context.Context, rec domain.ControlRecord, confirmation string) (bool, error) {
	return s.Transition(ctx, store.Transition{
		Record: rec, From: domain.StatusReceived, To: domain.StatusResponded, Confirmation: confirmation,
	})
}

// Transition moves a record one step forward and appends the matching log
// row. It reports false, writing nothing, when the record is no longer in From.
func (s *Store) Transition(ctx context.Context, in store.Transition) (bool, error) {
	if next, ok := in.From.Next(); !ok || next != in.To {
		return false, fmt.Errorf("pg: invalid transition %s -> %s", in.From, in.To)
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("pg: transition: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE control_record SET status=$2, confirmation=$3, updated_at=now()
		WHERE id=$1 AND status=$4
	`, in.Record.ID, int(in.To), in.Confirmation, int(in.From))
	if err != nil {
		return false, fmt.Errorf("pg: transition %s: %w", in.To, err)
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}

	if err := insertLog(ctx, tx, domain.NewLogEntry(in.Record, in.To, in.Confirmation)); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("pg: transition: commit: %w", err)
	}
	return true, nil
}

func (s *Store) ListLogEntries(ctx context.Context, appointmentID string) ([]domain.LogEntry, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT logged_at, gateway_domain, contact, patient_id, patient_name, appt_type, appt_id,
		       status, confirmation, schedule_id
		FROM log_entry WHERE appt_id=$1
		ORDER BY logged_at, id
	`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("pg: list log entries: %w", err)
	}
	defer rows.Close()

	var out []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		var typ string
		var status int
		if err := rows.Scan(&e.At, &e.GatewayDomain, &e.Contact, &e.PatientID, &e.PatientName, &typ,
			&e.AppointmentID, &status, &e.Confirmation, &e.ScheduleID); err != nil {
			return nil, fmt.Errorf("pg: scan log entry: %w", err)
		}
		e.Type = domain.AppointmentType(typ)
		e.Status = domain.Status(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertLog(ctx context.Context, q execer, e domain.LogEntry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO log_entry (logged_at, gateway_domain, contact, patient_id, patient_name, appt_type, appt_id,
		                       status, confirmation, schedule_id)
		VALUES (now(),$1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, e.GatewayDomain, e.Contact, e.PatientID, e.PatientName, string(e.Type), e.AppointmentID,
		int(e.Status), e.Confirmation, e.ScheduleID)
	if err != nil {
		return fmt.Errorf("pg: insert log: %w", err)
	}
	return nil
}

func scanTenant(row scanner) (domain.TenantConfig, error) {
	var t domain.TenantConfig
	var tc, te, tr, tp string
	var dc, de, dr, dp int
	err := row.Scan(&t.Domain, &t.ClientID, &t.SourceToken, &t.GatewayDomain, &t.GatewayToken, &t.Channel,
		&t.HourMorning, &t.HourAfternoon, &t.HourEvening,
		&tc, &dc, &te, &de, &tr, &dr, &tp, &dp, &t.Active)
	if err != nil {
		return domain.TenantConfig{}, err
	}
	t.Types = map[domain.AppointmentType]domain.TypeSettings{
		domain.TypeConsultation: {TemplateID: tc, LeadDays: dc},
		domain.TypeExam:         {TemplateID: te, LeadDays: de},
		domain.TypeFollowUp:     {TemplateID: tr, LeadDays: dr},
		domain.TypeProcedure:    {TemplateID: tp, LeadDays: dp},
	}
	return t, nil
}

// recordDest returns scan targets matching recordColumns. Type and status
// are scanned through typed pointers pgx can fill directly.
func recordDest(r *domain.ControlRecord) []any {
	return []any{
		&r.ID, &r.GatewayDomain, &r.Contact, &r.PatientID, &r.PatientName, (*string)(&r.Type), &r.AppointmentID,
		&r.Date, &r.Time, &r.SourceDomain, &r.ScheduleID, (*int)(&r.Status), &r.Confirmation,
	}
}
