package omniplus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	HTTP     *http.Client
	Scheme   string
	BasePath string // e.g. /api/v1
}

func New(httpClient *http.Client, scheme, basePath string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{HTTP: httpClient, Scheme: scheme, BasePath: basePath}
}

type Contact struct {
	ChannelAddress string `json:"canalCliente"`
}

type Template struct {
	ID        string   `json:"_id"`
	Variables []string `json:"variaveis"`
}

// Message is the template-send payload.
type Message struct {
	Contact  Contact  `json:"contato"`
	Template Template `json:"template"`
	Channel  string   `json:"canal"`
}

type SendRequest struct {
	Domain  string // tenant-specific gateway host
	Token   string
	Message Message
}

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("omniplus: send: status %d", e.StatusCode)
}

// Send posts one template message. It returns the HTTP status (0 when no
// response was received) and the raw response body.
func (c *Client) Send(ctx context.Context, req SendRequest) (int, []byte, error) {
	if req.Domain == "" {
		return 0, nil, errors.New("omniplus: empty gateway domain")
	}
	payload, err := json.Marshal(req.Message)
	if err != nil {
		return 0, nil, fmt.Errorf("omniplus: encode: %w", err)
	}

	scheme := c.Scheme
	if scheme == "" {
		scheme = "https"
	}
	endpoint := scheme + "://" + req.Domain + "/" + strings.Trim(c.BasePath, "/") + "/template/send"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("omniplus: send: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Token)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("omniplus: send: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, b, &StatusError{StatusCode: resp.StatusCode, Body: b}
	}
	return resp.StatusCode, b, nil
}

// Transient reports whether a failed send points at gateway trouble rather
// than a problem with the request itself.
func Transient(err error, httpStatus int) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if httpStatus == 0 {
		return true
	}
	if httpStatus == http.StatusTooManyRequests || httpStatus == http.StatusRequestTimeout {
		return true
	}
	return httpStatus >= 500 && httpStatus <= 599
}
