package httpserver

const (
	ErrInvalidJSON   = "invalid json"
	ErrMissingFields = "missing required fields or invalid token"
	ErrNotFound      = "no matching record found"
	ErrRelayFailed   = "confirmation stored, relay to scheduling backend failed"
	ErrInternal      = "internal server error"
	ErrNotReady      = "not ready"

	MsgConfirmed = "confirmation recorded and relayed"
)
