package gesthor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, Credentials) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(srv.Client(), "http", "/gthWS")
	return c, Credentials{Domain: strings.TrimPrefix(srv.URL, "http://"), ClientID: "cid", Token: "tok"}
}

func TestHeaders(t *testing.T) {
	h := Headers("cid", "tok")
	assert.Equal(t, "cid", h.Get("CLIENT_ID"))
	assert.Equal(t, "Bearer tok", h.Get("Authorization"))

	// each call is independent
	h.Set("CLIENT_ID", "other")
	assert.Equal(t, "cid", Headers("cid", "tok").Get("CLIENT_ID"))
}

func TestTextAcceptsNumbersAndStrings(t *testing.T) {
	var a Appointment
	require.NoError(t, json.Unmarshal([]byte(`{"AGD_ID": 901, "PACIENTE_ID": "77", "HORA": "14:30", "AGENDA_ID": null}`), &a))
	assert.Equal(t, Text("901"), a.ID)
	assert.Equal(t, Text("77"), a.PatientID)
	assert.Equal(t, Text("14:30"), a.Time)
	assert.Equal(t, Text(""), a.ScheduleID)

	var bad Text
	assert.Error(t, json.Unmarshal([]byte(`{"x":1}`), &bad))
}

func TestAppointmentDay(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	d, err := Appointment{Date: "2026-05-07"}.Day(loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 7, 0, 0, 0, 0, loc), d)

	d, err = Appointment{Date: "2026-05-07T00:00:00"}.Day(loc)
	require.NoError(t, err)
	assert.Equal(t, 7, d.Day())

	_, err = Appointment{Date: "07/05/2026"}.Day(loc)
	assert.Error(t, err)
}

func TestReadFlow(t *testing.T) {
	c, cred := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cid", r.Header.Get("CLIENT_ID"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/gthWS/convenio/getAll":
			_, _ = w.Write([]byte(`[{"ID": 4}, {"ID": 5}]`))
		case "/gthWS/agenda/getAll":
			assert.Equal(t, "4", r.URL.Query().Get("CONVENIO_ID"))
			_, _ = w.Write([]byte(`[{"ID": "33"}]`))
		case "/gthWS/agendamento/getPeriod":
			q := r.URL.Query()
			assert.Equal(t, "33", q.Get("AGENDA_ID"))
			assert.Equal(t, "2026-05-04", q.Get("DATA_INI"))
			assert.Equal(t, "2026-05-11", q.Get("DATA_FIM"))
			assert.Equal(t, "A", q.Get("STATUS"))
			_, _ = w.Write([]byte(`[{"AGD_ID": 1, "DATA": "2026-05-05", "HORA": "09:00", "TIPO": "C", "PACIENTE_ID": 9, "PACIENTE": "Ana", "AGENDA_ID": 33}]`))
		case "/gthWS/paciente/getId":
			assert.Equal(t, "9", r.URL.Query().Get("ID"))
			_, _ = w.Write([]byte(`{"TELEFONE": "+55 11 98888-7777"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	plans, err := c.Plans(ctx, cred)
	require.NoError(t, err)
	require.Len(t, plans, 2)

	schedules, err := c.Schedules(ctx, cred, plans[0].ID.String())
	require.NoError(t, err)
	require.Equal(t, []Schedule{{ID: "33"}}, schedules)

	from := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	appts, err := c.Appointments(ctx, cred, "33", from, from.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, Text("C"), appts[0].Type)
	assert.Equal(t, Text("Ana"), appts[0].PatientName)

	phone, err := c.PatientContact(ctx, cred, "9")
	require.NoError(t, err)
	assert.Equal(t, "+55 11 98888-7777", phone)
}

func TestEmptyAndNullListings(t *testing.T) {
	c, cred := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gthWS/convenio/getAll" {
			_, _ = w.Write([]byte(`null`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	plans, err := c.Plans(context.Background(), cred)
	require.NoError(t, err)
	assert.Empty(t, plans)

	schedules, err := c.Schedules(context.Background(), cred, "1")
	require.NoError(t, err)
	assert.Empty(t, schedules)
}

func TestStatusError(t *testing.T) {
	c, cred := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`denied`))
	})

	_, err := c.Plans(context.Background(), cred)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, "convenio/getAll", se.Endpoint)
	assert.Equal(t, "denied", string(se.Body))
}

func TestEmptyDomain(t *testing.T) {
	c := New(nil, "http", "/gthWS")
	_, err := c.Plans(context.Background(), Credentials{})
	assert.Error(t, err)
}

func TestConfirmPicksEndpoint(t *testing.T) {
	var paths []string
	c, cred := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "12", r.URL.Query().Get("PACIENTE_ID"))
		assert.Equal(t, "34", r.URL.Query().Get("AGD_ID"))
		paths = append(paths, r.URL.Path)
	})

	require.NoError(t, c.Confirm(context.Background(), cred, "12", "34", true))
	require.NoError(t, c.Confirm(context.Background(), cred, "12", "34", false))
	assert.Equal(t, []string{"/gthWS/agendamento/confirm", "/gthWS/agendamento/notConfirm"}, paths)
}
