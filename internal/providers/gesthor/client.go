// Package gesthor is a client for the clinic scheduling backend's read and
// confirmation API.
package gesthor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reminders/internal/observability"
)

const dateLayout = "2006-01-02"

// Credentials select and authenticate one tenant on the backend.
type Credentials struct {
	Domain   string
	ClientID string
	Token    string
}

// Headers builds the request headers for a tenant. The result is a fresh map
// the caller may modify.
func Headers(clientID, token string) http.Header {
	h := http.Header{}
	h.Set("CLIENT_ID", clientID)
	h.Set("Authorization", "Bearer "+token)
	h.Set("Content-Type", "application/json")
	return h
}

// Text is a scalar the backend may send either as a JSON string or a number.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("gesthor: unexpected value %s", b)
	}
	*t = Text(n.String())
	return nil
}

func (t Text) String() string { return string(t) }

type Plan struct {
	ID Text `json:"ID"`
}

type Schedule struct {
	ID Text `json:"ID"`
}

type Appointment struct {
	ID          Text `json:"AGD_ID"`
	Date        Text `json:"DATA"`
	Time        Text `json:"HORA"`
	Type        Text `json:"TIPO"`
	Status      Text `json:"STATUS"`
	PatientID   Text `json:"PACIENTE_ID"`
	PatientName Text `json:"PACIENTE"`
	ScheduleID  Text `json:"AGENDA_ID"`
}

// Day parses DATA in loc. The backend sends YYYY-MM-DD, sometimes followed by
// a time part that is ignored.
func (a Appointment) Day(loc *time.Location) (time.Time, error) {
	s := string(a.Date)
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	return time.ParseInLocation(dateLayout, s, loc)
}

type patient struct {
	Phone Text `json:"TELEFONE"`
}

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gesthor: %s: status %d", e.Endpoint, e.StatusCode)
}

type Client struct {
	HTTP     *http.Client
	Scheme   string // http unless configured
	BasePath string // e.g. /gthWS
}

func New(httpClient *http.Client, scheme, basePath string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{HTTP: httpClient, Scheme: scheme, BasePath: basePath}
}

func (c *Client) baseURL(domain string) string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + domain + "/" + strings.Trim(c.BasePath, "/")
}

// Plans lists the tenant's insurance plans.
func (c *Client) Plans(ctx context.Context, cred Credentials) ([]Plan, error) {
	var out []Plan
	err := c.get(ctx, cred, "convenio/getAll", nil, &out)
	return out, err
}

func (c *Client) Schedules(ctx context.Context, cred Credentials, planID string) ([]Schedule, error) {
	var out []Schedule
	err := c.get(ctx, cred, "agenda/getAll", url.Values{"CONVENIO_ID": {planID}}, &out)
	return out, err
}

// Appointments lists active appointments of a schedule dated between from and
// to, both inclusive.
func (c *Client) Appointments(ctx context.Context, cred Credentials, scheduleID string, from, to time.Time) ([]Appointment, error) {
	q := url.Values{}
	q.Set("AGENDA_ID", scheduleID)
	q.Set("DATA_INI", from.Format(dateLayout))
	q.Set("DATA_FIM", to.Format(dateLayout))
	q.Set("STATUS", "A")

	var out []Appointment
	err := c.get(ctx, cred, "agendamento/getPeriod", q, &out)
	return out, err
}

// PatientContact returns the patient's phone as stored by the backend, or ""
// when the patient has none.
func (c *Client) PatientContact(ctx context.Context, cred Credentials, patientID string) (string, error) {
	var p patient
	if err := c.get(ctx, cred, "paciente/getId", url.Values{"ID": {patientID}}, &p); err != nil {
		return "", err
	}
	return string(p.Phone), nil
}

// Confirm relays a patient's answer for one appointment.
func (c *Client) Confirm(ctx context.Context, cred Credentials, patientID, appointmentID string, affirmative bool) error {
	endpoint := "agendamento/notConfirm"
	if affirmative {
		endpoint = "agendamento/confirm"
	}
	q := url.Values{}
	q.Set("PACIENTE_ID", patientID)
	q.Set("AGD_ID", appointmentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL(cred.Domain)+"/"+endpoint+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("gesthor: %s: %w", endpoint, err)
	}
	req.Header = Headers(cred.ClientID, cred.Token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err = c.do(req, endpoint)
	return err
}

func (c *Client) get(ctx context.Context, cred Credentials, endpoint string, q url.Values, out any) error {
	if cred.Domain == "" {
		return errors.New("gesthor: empty domain")
	}
	u := c.baseURL(cred.Domain) + "/" + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("gesthor: %s: %w", endpoint, err)
	}
	req.Header = Headers(cred.ClientID, cred.Token)

	b, err := c.do(req, endpoint)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		observability.SourceRequests.WithLabelValues(endpoint, "decode_error").Inc()
		return fmt.Errorf("gesthor: %s: decode: %w", endpoint, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		observability.SourceRequests.WithLabelValues(endpoint, "network_error").Inc()
		return nil, fmt.Errorf("gesthor: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.SourceRequests.WithLabelValues(endpoint, "http_error").Inc()
		return b, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: b}
	}
	observability.SourceRequests.WithLabelValues(endpoint, "ok").Inc()
	return b, nil
}
