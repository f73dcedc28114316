package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"nightlife-core/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

func requireAuth(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	return nil
}

func isOperator(e *core.RequestEvent) bool {
	return e.Auth != nil && (e.Auth.IsSuperuser() || e.Auth.GetString("role") == "operator")
}

func requireOperator(e *core.RequestEvent) error {
	if err := requireAuth(e); err != nil {
		return err
	}
	if !isOperator(e) {
		return apis.NewForbiddenError("Operator access required", nil)
	}
	return nil
}

// apiError converts a service error into the matching API response.
func apiError(op string, err error) error {
	switch {
	case errors.Is(err, status.ErrAuthenticity):
		return apis.NewBadRequestError("Invalid signature", nil)
	case errors.Is(err, status.ErrMalformedPayload):
		return apis.NewBadRequestError("Malformed request", nil)
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Not found", nil)
	case errors.Is(err, status.ErrWrongVenue):
		return apis.NewForbiddenError("Ticket belongs to another venue", nil)
	case errors.Is(err, status.ErrTicketNotValid):
		return apis.NewApiError(http.StatusConflict, "Ticket is not valid for entry", nil)
	case errors.Is(err, status.ErrInvalidTransition):
		return apis.NewApiError(http.StatusConflict, "Invalid status transition", nil)
	case errors.Is(err, status.ErrContention):
		return apis.NewApiError(http.StatusServiceUnavailable, "Busy, try again", nil)
	default:
		slog.Error(op, "error", err)
		return apis.NewInternalServerError("internal error", nil)
	}
}
