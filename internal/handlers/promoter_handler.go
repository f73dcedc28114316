package handlers

import (
	"net/http"
	"strconv"

	"nightlife-core/internal/services"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type PromoterHandler struct {
	promoters *services.PromoterService
	referrals *services.ReferralService
}

func NewPromoterHandler(promoters *services.PromoterService, referrals *services.ReferralService) *PromoterHandler {
	return &PromoterHandler{promoters: promoters, referrals: referrals}
}

func (h *PromoterHandler) authorize(e *core.RequestEvent) (string, error) {
	if err := requireAuth(e); err != nil {
		return "", err
	}
	userID := e.Request.PathValue("userId")
	if userID != e.Auth.Id && !isOperator(e) {
		return "", apis.NewForbiddenError("Access denied", nil)
	}
	return userID, nil
}

// GetTier - Current promoter tier and commission rate
func (h *PromoterHandler) GetTier(e *core.RequestEvent) error {
	userID, err := h.authorize(e)
	if err != nil {
		return err
	}

	assignment, err := h.promoters.RecomputeTier(e.Request.Context(), userID)
	if err != nil {
		return apiError("h.promoters.RecomputeTier()", err)
	}
	return e.JSON(http.StatusOK, assignment)
}

// GetCommission - Commission owed on a gross amount at the promoter's tier
func (h *PromoterHandler) GetCommission(e *core.RequestEvent) error {
	userID, err := h.authorize(e)
	if err != nil {
		return err
	}

	gross, err := decimal.NewFromString(e.Request.URL.Query().Get("gross"))
	if err != nil || gross.IsNegative() {
		return apis.NewBadRequestError("gross must be a non-negative amount", nil)
	}

	commission, err := h.promoters.CommissionFor(e.Request.Context(), userID, gross)
	if err != nil {
		return apiError("h.promoters.CommissionFor()", err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"user_id":    userID,
		"gross":      gross.StringFixed(2),
		"commission": commission.StringFixed(2),
	})
}

// GetReferrals - Latest referrals credited to the promoter
func (h *PromoterHandler) GetReferrals(e *core.RequestEvent) error {
	userID, err := h.authorize(e)
	if err != nil {
		return err
	}

	limit, _ := strconv.Atoi(e.Request.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	referrals, err := h.referrals.ListReferrals(e.Request.Context(), userID, limit)
	if err != nil {
		return apiError("h.referrals.ListReferrals()", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"items": referrals})
}
