package config

import (
	"fmt"
	"os"

	"nightlife-core/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ReferralProgram holds the point awards and promoter tier table.
type ReferralProgram struct {
	SignupPoints int
	RSVPPoints   int
	Tiers        models.TierTable
}

func DefaultReferralProgram() ReferralProgram {
	return ReferralProgram{
		SignupPoints: 50,
		RSVPPoints:   25,
		Tiers:        models.DefaultTierTable(),
	}
}

// PointsFor returns the award of a qualifying action.
func (p ReferralProgram) PointsFor(action models.ReferralAction) int {
	switch action {
	case models.ActionSignup:
		return p.SignupPoints
	case models.ActionRSVP:
		return p.RSVPPoints
	}
	return 0
}

type programFile struct {
	Points struct {
		Signup *int `yaml:"signup"`
		RSVP   *int `yaml:"rsvp"`
	} `yaml:"points"`
	Tiers []struct {
		Tier      string  `yaml:"tier"`
		MinPoints int     `yaml:"min_points"`
		Rate      float64 `yaml:"rate"`
	} `yaml:"tiers"`
}

// LoadReferralProgram reads a YAML program file. Omitted sections keep the
// defaults.
func LoadReferralProgram(path string) (*ReferralProgram, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read referral program: %w", err)
	}
	return ParseReferralProgram(data)
}

func ParseReferralProgram(data []byte) (*ReferralProgram, error) {
	var file programFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse referral program: %w", err)
	}

	program := DefaultReferralProgram()
	if file.Points.Signup != nil {
		program.SignupPoints = *file.Points.Signup
	}
	if file.Points.RSVP != nil {
		program.RSVPPoints = *file.Points.RSVP
	}
	if program.SignupPoints < 0 || program.RSVPPoints < 0 {
		return nil, fmt.Errorf("referral program: point awards must not be negative")
	}

	if len(file.Tiers) > 0 {
		tiers := make(models.TierTable, 0, len(file.Tiers))
		for _, t := range file.Tiers {
			tiers = append(tiers, models.TierThreshold{
				Tier:      models.Tier(t.Tier),
				MinPoints: t.MinPoints,
				Rate:      decimal.NewFromFloat(t.Rate),
			})
		}
		program.Tiers = tiers
	}

	if err := program.Tiers.Validate(); err != nil {
		return nil, err
	}
	return &program, nil
}
