package services

import (
	"context"
	"fmt"
	"log/slog"

	"nightlife-core/internal/status"
	"nightlife-core/internal/store"
	"nightlife-core/models"
	"nightlife-core/monitoring"

	"github.com/shopspring/decimal"
)

const maxTierAttempts = 5

type PromoterService struct {
	store store.Store
	tiers models.TierTable
}

func NewPromoterService(s store.Store, tiers models.TierTable) *PromoterService {
	return &PromoterService{store: s, tiers: tiers}
}

func (s *PromoterService) Tiers() models.TierTable {
	return s.tiers
}

// RecomputeTier promotes the user when their points reach a higher tier.
// Tiers never go down.
func (s *PromoterService) RecomputeTier(ctx context.Context, userID string) (*models.TierAssignment, error) {
	for attempt := 0; attempt < maxTierAttempts; attempt++ {
		user, err := s.store.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}

		target := s.tiers.TierFor(user.ReferralPoints)
		current := user.PromoterTier
		if s.tiers.Rank(target) <= s.tiers.Rank(current) {
			return &models.TierAssignment{
				UserID:         userID,
				Points:         user.ReferralPoints,
				Tier:           current,
				CommissionRate: s.tiers.RateFor(current),
			}, nil
		}

		rate := s.tiers.RateFor(target)
		ok, err := s.store.SetPromoterTier(ctx, userID, current, target, rate)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		monitoring.TrackTierPromotion(string(target))
		slog.Info("promoter tier changed", "user_id", userID, "from", current, "to", target, "points", user.ReferralPoints)
		return &models.TierAssignment{
			UserID:         userID,
			Points:         user.ReferralPoints,
			Tier:           target,
			CommissionRate: rate,
			Promoted:       true,
		}, nil
	}

	return nil, fmt.Errorf("recompute tier for %s: %w", userID, status.ErrContention)
}

// CommissionFor returns the user's commission on gross, rounded to cents.
func (s *PromoterService) CommissionFor(ctx context.Context, userID string, gross decimal.Decimal) (decimal.Decimal, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	rate := s.tiers.RateFor(user.PromoterTier)
	if s.tiers.Rank(user.PromoterTier) < 0 {
		rate = user.CommissionRate
	}
	return gross.Mul(rate).Round(2), nil
}
