// Command mock-gateway fakes the messaging gateway's template-send endpoint
// for local end-to-end runs, and can answer each reminder by calling the
// service's confirmation callback.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"

	"reminders/internal/httpserver"
	"reminders/internal/logging"
	"reminders/internal/providers/omniplus"
)

type config struct {
	Port        string  `envconfig:"PORT" default:"8090"`
	BasePath    string  `envconfig:"MOCK_BASE_PATH" default:"/api/v1"`
	Token       string  `envconfig:"MOCK_GATEWAY_TOKEN" default:""`
	OutcomeMode string  `envconfig:"MOCK_OUTCOME_MODE" default:"fixed"`
	OutcomesRaw string  `envconfig:"MOCK_OUTCOMES" default:"ok"`
	SuccessRate float64 `envconfig:"MOCK_SUCCESS_RATE" default:"0.95"`
	DelayMs     int     `envconfig:"MOCK_DELAY_MS" default:"0"`

	// When set, every accepted message is answered through the service's
	// confirmation callback after CallbackDelayMs.
	CallbackURL     string `envconfig:"MOCK_CALLBACK_URL" default:""`
	CallbackToken   string `envconfig:"MOCK_CALLBACK_TOKEN" default:""`
	CallbackAnswer  string `envconfig:"MOCK_CALLBACK_ANSWER" default:"sim"`
	CallbackDelayMs int    `envconfig:"MOCK_CALLBACK_DELAY_MS" default:"500"`
	CallbackRetries int    `envconfig:"MOCK_CALLBACK_MAX_RETRIES" default:"3"`

	Outcomes      []string
	Delay         time.Duration
	CallbackDelay time.Duration
}

type server struct {
	cfg    config
	idx    uint64
	rng    *rand.Rand
	rngMu  sync.Mutex
	client *http.Client
}

func main() {
	logging.Init("mock-gateway", logging.Options{Format: os.Getenv("LOG_FORMAT"), Level: os.Getenv("LOG_LEVEL")})
	cfg := loadConfig()

	s := &server{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		client: &http.Client{Timeout: 5 * time.Second},
	}

	router := mux.NewRouter()
	router.HandleFunc(strings.TrimRight(cfg.BasePath, "/")+"/template/send", s.handleSend).Methods(http.MethodPost)

	slog.Info("mock gateway listening", "port", cfg.Port, "mode", cfg.OutcomeMode)
	if err := http.ListenAndServe(":"+cfg.Port, httpserver.Logging(router)); err != nil {
		slog.Error("mock gateway server failed", "err", err)
		os.Exit(1)
	}
}

func loadConfig() config {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("mock gateway config load failed", "err", err)
		os.Exit(1)
	}
	cfg.OutcomeMode = strings.ToLower(cfg.OutcomeMode)
	cfg.Outcomes = parseCSV(cfg.OutcomesRaw)
	cfg.Delay = time.Duration(cfg.DelayMs) * time.Millisecond
	cfg.CallbackDelay = time.Duration(cfg.CallbackDelayMs) * time.Millisecond
	cfg.CallbackURL = strings.TrimSpace(cfg.CallbackURL)
	if cfg.CallbackRetries < 0 {
		cfg.CallbackRetries = 0
	}
	return cfg
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Token != "" && httpserver.BearerToken(r) != s.cfg.Token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		return
	}

	var msg omniplus.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if msg.Contact.ChannelAddress == "" || msg.Template.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "contato.canalCliente and template._id are required"})
		return
	}

	if s.cfg.Delay > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(s.cfg.Delay):
		}
	}

	status := statusFor(s.nextOutcome())
	if status < 200 || status >= 300 {
		writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
		return
	}

	id := fmt.Sprintf("msg-%06d", atomic.AddUint64(&s.idx, 1))
	writeJSON(w, status, map[string]string{"id": id, "status": "accepted"})
	slog.Info("mock gateway accepted", "id", id, "contact", msg.Contact.ChannelAddress, "template", msg.Template.ID)

	if s.cfg.CallbackURL != "" {
		go s.answer(msg.Contact.ChannelAddress)
	}
}

// answer plays the patient: it replies to the reminder through the
// confirmation callback, retrying on 5xx and transport errors.
func (s *server) answer(contact string) {
	time.Sleep(s.cfg.CallbackDelay)
	body, _ := json.Marshal(map[string]string{"contact": contact, "confirmation": s.cfg.CallbackAnswer})

	for attempt := 0; attempt <= s.cfg.CallbackRetries; attempt++ {
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, s.cfg.CallbackURL, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.cfg.CallbackToken)

		resp, err := s.client.Do(req)
		status := 0
		if resp != nil {
			status = resp.StatusCode
			_ = resp.Body.Close()
		}
		if err == nil && status < 500 {
			slog.Info("mock callback delivered", "contact", contact, "status", status)
			return
		}
		wait := time.Duration(250*(1<<attempt)) * time.Millisecond
		slog.Warn("mock callback retrying", "contact", contact, "attempt", attempt+1, "status", status, "err", err, "wait", wait)
		time.Sleep(wait)
	}
	slog.Error("mock callback gave up", "contact", contact)
}

func (s *server) nextOutcome() string {
	switch s.cfg.OutcomeMode {
	case "round_robin":
		idx := atomic.AddUint64(&s.idx, 1) - 1
		return s.cfg.Outcomes[int(idx)%len(s.cfg.Outcomes)]
	case "weighted":
		s.rngMu.Lock()
		ok := s.rng.Float64() <= s.cfg.SuccessRate
		s.rngMu.Unlock()
		if ok {
			return "ok"
		}
		return "server_error"
	case "random":
		s.rngMu.Lock()
		i := s.rng.Intn(len(s.cfg.Outcomes))
		s.rngMu.Unlock()
		return s.cfg.Outcomes[i]
	default:
		return s.cfg.Outcomes[0]
	}
}

// statusFor maps an outcome token (ok, bad_request, rate_limit, server_error
// or a bare status code) to the HTTP status to answer with.
func statusFor(outcome string) int {
	switch outcome {
	case "ok", "success":
		return http.StatusOK
	case "bad_request":
		return http.StatusBadRequest
	case "unauthorized":
		return http.StatusUnauthorized
	case "rate_limit":
		return http.StatusTooManyRequests
	case "server_error":
		return http.StatusInternalServerError
	}
	if code, err := strconv.Atoi(outcome); err == nil && code >= 100 && code <= 599 {
		return code
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return []string{"ok"}
	}
	return out
}
