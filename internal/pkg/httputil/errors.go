package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/opshield/incident-sentry/internal/pkg/ctxlog"
)

// ErrorMapping defines how a domain error maps to an HTTP response.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // if empty, uses err.Error()
}

// exposeDetails controls whether unmapped errors reach the response body.
var exposeDetails bool

// ExposeErrorDetails makes unmapped errors return their own message on the
// 500 response instead of a generic one. Enabled outside production. Set
// once at startup, before the server accepts requests.
func ExposeErrorDetails(enabled bool) {
	exposeDetails = enabled
}

// HandleError maps a domain error to an HTTP response using provided mappings.
// If no mapping matches, logs the error and returns 500 Internal Server Error.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Error) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			Error(w, m.Status, msg)
			return
		}
	}
	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	msg := "internal error"
	if exposeDetails {
		msg = err.Error()
	}
	Error(w, http.StatusInternalServerError, msg)
}
