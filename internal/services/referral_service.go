package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"nightlife-core/config"
	"nightlife-core/internal/status"
	"nightlife-core/internal/store"
	"nightlife-core/models"
	"nightlife-core/monitoring"
)

type ReferralService struct {
	store     store.Store
	program   config.ReferralProgram
	promoters *PromoterService
}

func NewReferralService(s store.Store, program config.ReferralProgram, promoters *PromoterService) *ReferralService {
	return &ReferralService{
		store:     s,
		program:   program,
		promoters: promoters,
	}
}

// Attribute credits the owner of code for an action performed by referredID.
// Business rejections are reported through Attribution.Reason with a nil
// error; only store failures return an error.
func (s *ReferralService) Attribute(ctx context.Context, code, referredID string, action models.ReferralAction, actx models.AttributionContext) (*models.Attribution, error) {
	attr, err := s.attribute(ctx, strings.TrimSpace(code), referredID, action, actx)
	if err != nil {
		monitoring.TrackReferral(string(action), "error")
		return nil, err
	}

	if !attr.Credited {
		monitoring.TrackReferral(string(action), attr.Reason)
		return attr, nil
	}
	monitoring.TrackReferral(string(action), "credited")

	if s.promoters != nil {
		if _, err := s.promoters.RecomputeTier(ctx, attr.ReferrerID); err != nil {
			slog.Error("s.promoters.RecomputeTier()", "user_id", attr.ReferrerID, "error", err)
		}
	}
	return attr, nil
}

func (s *ReferralService) attribute(ctx context.Context, code, referredID string, action models.ReferralAction, actx models.AttributionContext) (*models.Attribution, error) {
	if !action.Valid() {
		return &models.Attribution{Reason: models.ReasonInvalidAction}, nil
	}
	if action == models.ActionRSVP && actx.EventID == "" {
		return &models.Attribution{Reason: models.ReasonMissingEvent}, nil
	}
	if code == "" {
		return &models.Attribution{Reason: models.ReasonInvalidCode}, nil
	}

	attr := &models.Attribution{}
	err := s.store.Transact(ctx, func(tx store.Store) error {
		referrer, err := tx.FindUserByReferralCode(ctx, code)
		if errors.Is(err, status.ErrNotFound) {
			attr.Reason = models.ReasonInvalidCode
			return nil
		}
		if err != nil {
			return err
		}
		attr.ReferrerID = referrer.ID

		if referrer.ID == referredID {
			attr.Reason = models.ReasonSelfReferral
			return nil
		}

		if action == models.ActionRSVP {
			reason, err := verifyRSVP(ctx, tx, referredID, &actx)
			if err != nil {
				return err
			}
			if reason != "" {
				attr.Reason = reason
				return nil
			}
		}

		points := s.program.PointsFor(action)
		referral := &models.Referral{
			ReferrerID:    referrer.ID,
			ReferredID:    referredID,
			Action:        action,
			EventID:       actx.EventID,
			VenueID:       actx.VenueID,
			TicketID:      actx.TicketID,
			PointsAwarded: points,
			DedupeKey:     models.ReferralDedupeKey(action, referredID, actx.EventID),
		}
		err = tx.InsertReferral(ctx, referral)
		if errors.Is(err, status.ErrDuplicate) {
			attr.Reason = models.ReasonDuplicate
			return nil
		}
		if err != nil {
			return err
		}

		total, err := tx.AddReferralPoints(ctx, referrer.ID, points)
		if err != nil {
			return err
		}

		attr.Credited = true
		attr.Points = points
		attr.Total = total
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attr, nil
}

// verifyRSVP checks that the rsvp is backed by a live ticket the referred user
// holds for the event, and fills in the venue from the stored event.
func verifyRSVP(ctx context.Context, tx store.Store, referredID string, actx *models.AttributionContext) (string, error) {
	if actx.TicketID == "" {
		return models.ReasonInvalidTicket, nil
	}

	ticket, err := tx.GetTicket(ctx, actx.TicketID)
	if errors.Is(err, status.ErrNotFound) {
		return models.ReasonInvalidTicket, nil
	}
	if err != nil {
		return "", err
	}
	if ticket.UserID != referredID || ticket.EventID != actx.EventID || !ticket.Redeemable() {
		return models.ReasonInvalidTicket, nil
	}

	event, err := tx.GetEvent(ctx, ticket.EventID)
	if errors.Is(err, status.ErrNotFound) {
		return models.ReasonInvalidTicket, nil
	}
	if err != nil {
		return "", err
	}
	actx.VenueID = event.VenueID
	return "", nil
}

// RecordSignupReferral credits a signup. A rejected attribution is returned
// together with an error wrapping status.ErrInvalidReferral.
func (s *ReferralService) RecordSignupReferral(ctx context.Context, code, referredID string) (*models.Attribution, error) {
	attr, err := s.Attribute(ctx, code, referredID, models.ActionSignup, models.AttributionContext{})
	return attr, rejection(attr, err)
}

// RecordRsvpReferral credits an rsvp for actx.EventID. actx.TicketID must be
// a confirmed ticket of referredID for that event.
func (s *ReferralService) RecordRsvpReferral(ctx context.Context, code, referredID string, actx models.AttributionContext) (*models.Attribution, error) {
	attr, err := s.Attribute(ctx, code, referredID, models.ActionRSVP, actx)
	return attr, rejection(attr, err)
}

// ListReferrals returns the newest referrals credited to referrerID.
func (s *ReferralService) ListReferrals(ctx context.Context, referrerID string, limit int) ([]*models.Referral, error) {
	return s.store.ListReferralsByReferrer(ctx, referrerID, limit)
}

func rejection(attr *models.Attribution, err error) error {
	if err != nil {
		return err
	}
	if !attr.Credited {
		return fmt.Errorf("%s: %w", attr.Reason, status.ErrInvalidReferral)
	}
	return nil
}
