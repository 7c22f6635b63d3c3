package oauth2

// Envelope is the response wrapper used by every backend endpoint:
//
//	{ "data": ..., "message": "..." }
//
// Error responses carry the message (or "error") field only.
type Envelope[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorMessage returns the human readable error text, preferring "message".
func (e Envelope[T]) ErrorMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}
