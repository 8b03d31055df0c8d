package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/rhuss/claudepipe/pkg/api"
)

// maxErrorBody bounds how much of an error body is read and echoed.
const maxErrorBody = 4096

// mapHTTPError converts a non-200 upstream response into an APIError. The
// vendor envelope's type and message are surfaced verbatim when present;
// otherwise the raw body is used as the message.
func mapHTTPError(status int, body []byte) *api.APIError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return api.NewUpstreamError(status, env.Error.Type, env.Error.Message)
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if msg == "" {
		msg = "empty response body"
	}
	return api.NewUpstreamError(status, "", msg)
}

// mapNetworkError converts a failure to reach the upstream into a
// transport error. Deadline expiry is reported as a timeout.
func mapNetworkError(err error) *api.APIError {
	if isTimeout(err) {
		return api.NewTransportError("Request timed out", true)
	}
	return api.NewTransportError(fmt.Sprintf("Request failed: %s", err.Error()), false)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// streamError converts an in-stream {"type":"error"} event.
func streamError(vendorType, message string) *api.APIError {
	if message == "" {
		message = "upstream stream error"
	}
	return &api.APIError{
		Type:    api.ErrorTypeUpstream,
		Code:    vendorType,
		Message: "Stream error: " + message,
	}
}
