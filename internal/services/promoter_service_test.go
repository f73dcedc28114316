package services

import (
	"context"
	"testing"

	"nightlife-core/internal/status"
	"nightlife-core/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecomputeTier_Thresholds(t *testing.T) {
	tests := []struct {
		points  int
		tier    models.Tier
		rate    string
		promote bool
	}{
		{0, models.TierBronze, "0.10", true},
		{499, models.TierBronze, "0.10", true},
		{500, models.TierSilver, "0.125", true},
		{1999, models.TierSilver, "0.125", true},
		{2000, models.TierGold, "0.15", true},
		{5000, models.TierPlatinum, "0.20", true},
	}

	for _, tt := range tests {
		f := newFixture()
		f.store.PutUser(models.User{ID: "p", ReferralPoints: tt.points})

		got, err := f.promoters.RecomputeTier(context.Background(), "p")
		require.NoError(t, err)
		assert.Equal(t, tt.tier, got.Tier, "points %d", tt.points)
		assert.True(t, got.CommissionRate.Equal(decimal.RequireFromString(tt.rate)), "points %d", tt.points)
		assert.Equal(t, tt.promote, got.Promoted)

		again, err := f.promoters.RecomputeTier(context.Background(), "p")
		require.NoError(t, err)
		assert.False(t, again.Promoted)
		assert.Equal(t, tt.tier, again.Tier)
	}
}

func TestRecomputeTier_NeverDemotes(t *testing.T) {
	f := newFixture()
	f.store.PutUser(models.User{ID: "p", ReferralPoints: 100, PromoterTier: models.TierGold})

	got, err := f.promoters.RecomputeTier(context.Background(), "p")
	require.NoError(t, err)

	assert.Equal(t, models.TierGold, got.Tier)
	assert.False(t, got.Promoted)

	user, err := f.store.GetUser(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, models.TierGold, user.PromoterTier)
}

func TestRecomputeTier_UnknownUser(t *testing.T) {
	f := newFixture()

	_, err := f.promoters.RecomputeTier(context.Background(), "ghost")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestCommissionFor(t *testing.T) {
	f := newFixture()
	f.store.PutUser(models.User{ID: "gold", PromoterTier: models.TierGold})
	f.store.PutUser(models.User{ID: "silver", PromoterTier: models.TierSilver})
	f.store.PutUser(models.User{ID: "legacy", PromoterTier: "ambassador", CommissionRate: decimal.RequireFromString("0.3")})
	ctx := context.Background()

	tests := []struct {
		user  string
		gross string
		want  string
	}{
		{"gold", "100.00", "15"},
		{"silver", "33.33", "4.17"},
		{"legacy", "10.00", "3"},
	}
	for _, tt := range tests {
		got, err := f.promoters.CommissionFor(ctx, tt.user, decimal.RequireFromString(tt.gross))
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "%s: got %s", tt.user, got)
	}
}
