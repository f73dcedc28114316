package handlers

import (
	"net/http"

	"nightlife-core/internal/services"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type CheckinHandler struct {
	checkins *services.CheckinService
}

func NewCheckinHandler(checkins *services.CheckinService) *CheckinHandler {
	return &CheckinHandler{checkins: checkins}
}

type checkinRequest struct {
	ConfirmationCode string `json:"confirmation_code"`
	VenueID          string `json:"venue_id"`
}

// CheckIn - Redeem a ticket at the door
func (h *CheckinHandler) CheckIn(e *core.RequestEvent) error {
	if err := requireOperator(e); err != nil {
		return err
	}

	var req checkinRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.ConfirmationCode == "" || req.VenueID == "" {
		return apis.NewBadRequestError("confirmation_code and venue_id are required", nil)
	}

	res, err := h.checkins.CheckIn(e.Request.Context(), req.ConfirmationCode, req.VenueID)
	if err != nil {
		return apiError("h.checkins.CheckIn()", err)
	}

	guest := map[string]any{
		"user_id":  res.Ticket.UserID,
		"quantity": res.Ticket.Quantity,
	}
	if res.Guest != nil {
		guest["name"] = res.Guest.Name
	}

	return e.JSON(http.StatusOK, map[string]any{
		"outcome":       res.Outcome,
		"ticket_id":     res.Ticket.ID,
		"checked_in_at": res.Ticket.CheckedInAt,
		"guest":         guest,
		"event": map[string]any{
			"id":   res.Event.ID,
			"name": res.Event.Name,
		},
	})
}
