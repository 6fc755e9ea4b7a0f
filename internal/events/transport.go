package events

import (
	"context"
	"net/http"

	"github.com/ham-dashboard/ham-client/internal/errors"
)

// Transport opens server-push streams.
type Transport interface {
	// Open connects with the given bearer credential. The stream must stop
	// producing messages once ctx is canceled.
	Open(ctx context.Context, token string) (Stream, error)
}

// Stream yields raw message bodies in arrival order.
type Stream interface {
	// Next blocks until the next message arrives or the stream ends.
	Next() ([]byte, error)
	Close() error
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// statusError maps a refused stream response to a typed error.
func statusError(url string, status int) *errors.Error {
	details := map[string]any{"status": status, "url": url}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return errors.Create(errors.CodeUnauthorized).WithDetails(details)
	}
	return errors.Create(errors.CodeUnexpectedStatus).
		WithMessagef("event stream refused with status %d", status).
		WithDetails(details)
}
