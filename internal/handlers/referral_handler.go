package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"nightlife-core/internal/services"
	"nightlife-core/internal/status"
	"nightlife-core/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type ReferralHandler struct {
	referrals *services.ReferralService
}

func NewReferralHandler(referrals *services.ReferralService) *ReferralHandler {
	return &ReferralHandler{referrals: referrals}
}

type signupReferralRequest struct {
	Code string `json:"code"`
}

type rsvpReferralRequest struct {
	Code     string `json:"code"`
	EventID  string `json:"event_id"`
	TicketID string `json:"ticket_id"`
}

// Signup - Credit the referrer of the signed-in user
func (h *ReferralHandler) Signup(e *core.RequestEvent) error {
	if err := requireAuth(e); err != nil {
		return err
	}

	var req signupReferralRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	attr, err := h.referrals.RecordSignupReferral(e.Request.Context(), req.Code, e.Auth.Id)
	return h.respond(e, attr, err)
}

// RSVP - Credit the referrer of an event rsvp
func (h *ReferralHandler) RSVP(e *core.RequestEvent) error {
	if err := requireAuth(e); err != nil {
		return err
	}

	var req rsvpReferralRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	attr, err := h.referrals.RecordRsvpReferral(e.Request.Context(), req.Code, e.Auth.Id, models.AttributionContext{
		EventID:  req.EventID,
		TicketID: req.TicketID,
	})
	return h.respond(e, attr, err)
}

func (h *ReferralHandler) respond(e *core.RequestEvent, attr *models.Attribution, err error) error {
	if errors.Is(err, status.ErrInvalidReferral) {
		slog.Info("referral not credited", "user_id", e.Auth.Id, "reason", attr.Reason)
		return e.JSON(http.StatusOK, attr)
	}
	if err != nil {
		return apiError("h.referrals.Record()", err)
	}
	return e.JSON(http.StatusOK, attr)
}
