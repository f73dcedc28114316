package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// User is the promoter-relevant subset of a platform user.
type User struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	ReferralCode   string          `json:"referral_code,omitempty"`
	ReferralPoints int             `json:"referral_points"`
	PromoterTier   Tier            `json:"promoter_tier,omitempty"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

type TierThreshold struct {
	Tier      Tier            `json:"tier"`
	MinPoints int             `json:"min_points"`
	Rate      decimal.Decimal `json:"rate"`
}

// TierTable is ordered by ascending MinPoints.
type TierTable []TierThreshold

func DefaultTierTable() TierTable {
	return TierTable{
		{Tier: TierBronze, MinPoints: 0, Rate: decimal.RequireFromString("0.10")},
		{Tier: TierSilver, MinPoints: 500, Rate: decimal.RequireFromString("0.125")},
		{Tier: TierGold, MinPoints: 2000, Rate: decimal.RequireFromString("0.15")},
		{Tier: TierPlatinum, MinPoints: 5000, Rate: decimal.RequireFromString("0.20")},
	}
}

// Validate checks the table is non-empty, starts at zero, has strictly
// increasing thresholds and non-decreasing rates.
func (t TierTable) Validate() error {
	if len(t) == 0 {
		return errors.New("tier table: empty")
	}
	if t[0].MinPoints != 0 {
		return fmt.Errorf("tier table: first tier %q must start at 0 points", t[0].Tier)
	}
	seen := make(map[Tier]bool, len(t))
	for i, th := range t {
		if th.Tier == "" {
			return fmt.Errorf("tier table: entry %d has no name", i)
		}
		if seen[th.Tier] {
			return fmt.Errorf("tier table: duplicate tier %q", th.Tier)
		}
		seen[th.Tier] = true
		if th.Rate.IsNegative() || th.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("tier table: rate of %q out of range", th.Tier)
		}
		if i == 0 {
			continue
		}
		if th.MinPoints <= t[i-1].MinPoints {
			return fmt.Errorf("tier table: %q threshold must exceed %q", th.Tier, t[i-1].Tier)
		}
		if th.Rate.LessThan(t[i-1].Rate) {
			return fmt.Errorf("tier table: %q rate lower than %q", th.Tier, t[i-1].Tier)
		}
	}
	return nil
}

// TierFor returns the highest tier whose threshold points reaches.
func (t TierTable) TierFor(points int) Tier {
	tier := t[0].Tier
	for _, th := range t {
		if points < th.MinPoints {
			break
		}
		tier = th.Tier
	}
	return tier
}

// Rank is the position of tier in the table, -1 when unknown.
func (t TierTable) Rank(tier Tier) int {
	for i, th := range t {
		if th.Tier == tier {
			return i
		}
	}
	return -1
}

// RateFor returns the commission rate of tier, zero when unknown.
func (t TierTable) RateFor(tier Tier) decimal.Decimal {
	if i := t.Rank(tier); i >= 0 {
		return t[i].Rate
	}
	return decimal.Zero
}

// TierAssignment is the outcome of a tier recomputation.
type TierAssignment struct {
	UserID         string          `json:"user_id"`
	Points         int             `json:"points"`
	Tier           Tier            `json:"tier"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	Promoted       bool            `json:"promoted"`
}
