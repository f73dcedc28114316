package handlers

import (
	"net/http"
	"strconv"

	"nightlife-core/internal/services"
	"nightlife-core/internal/store"
	"nightlife-core/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type AdminHandler struct {
	store        store.Store
	reservations *services.ReservationService
}

func NewAdminHandler(s store.Store, reservations *services.ReservationService) *AdminHandler {
	return &AdminHandler{store: s, reservations: reservations}
}

// GetConflicts - Paid purchases waiting for manual reconciliation
func (h *AdminHandler) GetConflicts(e *core.RequestEvent) error {
	if err := requireOperator(e); err != nil {
		return err
	}

	query := e.Request.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	unresolvedOnly := query.Get("all") != "true"

	conflicts, err := h.store.ListConflicts(e.Request.Context(), unresolvedOnly, limit)
	if err != nil {
		return apiError("h.store.ListConflicts()", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"items": conflicts})
}

type transitionRequest struct {
	Status models.VIPStatus `json:"status"`
}

// TransitionReservation - Operator moves a VIP reservation
func (h *AdminHandler) TransitionReservation(e *core.RequestEvent) error {
	if err := requireOperator(e); err != nil {
		return err
	}

	var req transitionRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	reservation, err := h.reservations.Transition(e.Request.Context(), e.Request.PathValue("id"), req.Status)
	if err != nil {
		return apiError("h.reservations.Transition()", err)
	}
	return e.JSON(http.StatusOK, reservation)
}
