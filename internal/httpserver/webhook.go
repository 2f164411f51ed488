package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"reminders/internal/domain"
)

// confirmationBody accepts the current field names and the older
// numero/confirma pair some gateway flows still send.
type confirmationBody struct {
	Contact      string `json:"contact"`
	Confirmation string `json:"confirmation"`
	Numero       string `json:"numero"`
	Confirma     string `json:"confirma"`
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header,
// or "" when the header is missing or uses another scheme.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// DecodeConfirmation reads the callback body and bearer credential. Field
// presence is checked later by ConfirmationRequest.Validate.
func DecodeConfirmation(r *http.Request) (domain.ConfirmationRequest, error) {
	var body confirmationBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err != nil {
		return domain.ConfirmationRequest{}, err
	}
	req := domain.ConfirmationRequest{
		Contact:      strings.TrimSpace(body.Contact),
		Confirmation: strings.TrimSpace(body.Confirmation),
		Token:        BearerToken(r),
	}
	if req.Contact == "" {
		req.Contact = strings.TrimSpace(body.Numero)
	}
	if req.Confirmation == "" {
		req.Confirmation = strings.TrimSpace(body.Confirma)
	}
	return req, nil
}
