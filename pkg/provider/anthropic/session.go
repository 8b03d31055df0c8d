package anthropic

import (
	"net/http"

	"github.com/rhuss/claudepipe/pkg/api"
)

// Session holds the state of one gateway call. It replaces any notion of
// a provider-wide "last request id": each call gets its own Session and
// the id only enriches that call's errors.
type Session struct {
	requestID string
}

// NewSession creates an empty Session.
func NewSession() *Session {
	return &Session{}
}

// Observe records the upstream x-request-id, if the response carries one.
func (s *Session) Observe(h http.Header) {
	if id := h.Get("x-request-id"); id != "" {
		s.requestID = id
	}
}

// RequestID returns the last upstream request id seen in this session.
func (s *Session) RequestID() string {
	return s.requestID
}

// Annotate attaches the session's request id to err.
func (s *Session) Annotate(err *api.APIError) *api.APIError {
	if err == nil {
		return nil
	}
	return err.WithRequestID(s.requestID)
}
