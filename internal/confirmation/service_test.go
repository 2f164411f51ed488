package confirmation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminders/internal/domain"
	"reminders/internal/providers/gesthor"
	"reminders/internal/store"
)

// memStore keeps a single record and enforces the status preconditions the
// real store applies in SQL.
type memStore struct {
	rec     domain.ControlRecord
	token   string
	history []domain.Status
	findErr error
}

func (m *memStore) FindSentForConfirmation(ctx context.Context, contact, token string) (store.ConfirmationTarget, bool, error) {
	if m.findErr != nil {
		return store.ConfirmationTarget{}, false, m.findErr
	}
	if contact != m.rec.Contact || token != m.token || m.rec.Status != domain.StatusSent {
		return store.ConfirmationTarget{}, false, nil
	}
	return store.ConfirmationTarget{Record: m.rec, Domain: "clinic.example", ClientID: "cid", SourceToken: m.token}, true, nil
}

func (m *memStore) move(from, to domain.Status, confirmation string) bool {
	if m.rec.Status != from {
		return false
	}
	m.rec.Status = to
	m.rec.Confirmation = confirmation
	m.history = append(m.history, to)
	return true
}

func (m *memStore) MarkReceived(ctx context.Context, rec domain.ControlRecord, confirmation string) (bool, error) {
	return m.move(domain.StatusSent, domain.StatusReceived, confirmation), nil
}

func (m *memStore) MarkResponded(ctx context.Context, rec domain.ControlRecord, confirmation string) (bool, error) {
	return m.move(domain.StatusReceived, domain.StatusResponded, confirmation), nil
}

type fakeBackend struct {
	err         error
	calls       int
	affirmative bool
	cred        gesthor.Credentials
}

func (f *fakeBackend) Confirm(ctx context.Context, cred gesthor.Credentials, patientID, appointmentID string, affirmative bool) error {
	f.calls++
	f.cred = cred
	f.affirmative = affirmative
	return f.err
}

func sentStore() *memStore {
	return &memStore{
		token: "src-token",
		rec: domain.ControlRecord{
			ID: 1, Contact: "5511988887777", PatientID: "77", AppointmentID: "901",
			GatewayDomain: "gw.example", SourceDomain: "clinic.example",
			Status: domain.StatusSent, Confirmation: domain.NoConfirmation,
		},
	}
}

func TestHandleAffirmativeReachesResponded(t *testing.T) {
	st := sentStore()
	be := &fakeBackend{}
	svc := &Service{Store: st, Backend: be, Affirmative: []string{"sim"}}

	out, err := svc.Handle(context.Background(), domain.ConfirmationRequest{
		Contact: "5511988887777", Confirmation: "sim", Token: "src-token",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeResponded, out)
	assert.Equal(t, []domain.Status{domain.StatusReceived, domain.StatusResponded}, st.history)
	assert.Equal(t, "sim", st.rec.Confirmation)
	assert.True(t, be.affirmative)
	assert.Equal(t, gesthor.Credentials{Domain: "clinic.example", ClientID: "cid", Token: "src-token"}, be.cred)
}

func TestHandleNegativeUsesNotConfirm(t *testing.T) {
	be := &fakeBackend{}
	svc := &Service{Store: sentStore(), Backend: be}

	out, err := svc.Handle(context.Background(), domain.ConfirmationRequest{
		Contact: "+5511988887777", Confirmation: "não", Token: "src-token",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeResponded, out)
	assert.False(t, be.affirmative)
}

func TestHandleRelayFailureKeepsReceived(t *testing.T) {
	st := sentStore()
	svc := &Service{Store: st, Backend: &fakeBackend{err: errors.New("backend down")}}

	out, err := svc.Handle(context.Background(), domain.ConfirmationRequest{
		Contact: "5511988887777", Confirmation: "sim", Token: "src-token",
	})
	assert.Error(t, err)
	assert.Equal(t, OutcomeReceived, out)
	assert.Equal(t, domain.StatusReceived, st.rec.Status)
	assert.Equal(t, []domain.Status{domain.StatusReceived}, st.history)
}

// movedOnStore simulates another writer moving the record between the relay
// and the final state update.
type movedOnStore struct{ *memStore }

func (m movedOnStore) MarkResponded(ctx context.Context, rec domain.ControlRecord, confirmation string) (bool, error) {
	m.rec.Status = domain.StatusResponded
	return false, nil
}

func TestHandleRespondedRaceIsNotReportedAsResponded(t *testing.T) {
	st := sentStore()
	be := &fakeBackend{}
	svc := &Service{Store: movedOnStore{st}, Backend: be}

	out, err := svc.Handle(context.Background(), domain.ConfirmationRequest{
		Contact: "5511988887777", Confirmation: "sim", Token: "src-token",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, out)
	assert.Equal(t, 1, be.calls)
	assert.Equal(t, []domain.Status{domain.StatusReceived}, st.history)
}

func TestHandleNotFound(t *testing.T) {
	be := &fakeBackend{}
	svc := &Service{Store: sentStore(), Backend: be}

	out, err := svc.Handle(context.Background(), domain.ConfirmationRequest{
		Contact: "5511988887777", Confirmation: "sim", Token: "wrong",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, out)
	assert.Zero(t, be.calls)
}

func TestHandleSecondAnswerIsNotFound(t *testing.T) {
	st := sentStore()
	svc := &Service{Store: st, Backend: &fakeBackend{}}
	req := domain.ConfirmationRequest{Contact: "5511988887777", Confirmation: "sim", Token: "src-token"}

	_, err := svc.Handle(context.Background(), req)
	require.NoError(t, err)
	out, err := svc.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, out)
	assert.Len(t, st.history, 2)
}

func TestHandleValidation(t *testing.T) {
	svc := &Service{Store: sentStore(), Backend: &fakeBackend{}}
	_, err := svc.Handle(context.Background(), domain.ConfirmationRequest{Contact: "1", Confirmation: "sim"})
	assert.ErrorIs(t, err, domain.ErrMissingFields)
}

func TestHandleLookupError(t *testing.T) {
	st := sentStore()
	st.findErr = errors.New("db down")
	out, err := (&Service{Store: st, Backend: &fakeBackend{}}).Handle(context.Background(),
		domain.ConfirmationRequest{Contact: "1", Confirmation: "sim", Token: "t"})
	assert.Error(t, err)
	assert.Equal(t, OutcomeError, out)
}

func TestIsAffirmative(t *testing.T) {
	assert.True(t, IsAffirmative(" SIM ", nil))
	assert.True(t, IsAffirmative("Yes", []string{"sim", "yes"}))
	assert.False(t, IsAffirmative("nao", []string{"sim"}))
}
