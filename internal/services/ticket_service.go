package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"nightlife-core/internal/status"
	"nightlife-core/internal/store"
	"nightlife-core/models"
	"nightlife-core/monitoring"
	"nightlife-core/utils"

	"github.com/shopspring/decimal"
)

const maxCodeAttempts = 5

type IssueOutcome string

const (
	IssueIssued   IssueOutcome = "issued"
	IssueConflict IssueOutcome = "conflict"
)

type IssueRequest struct {
	EventID      string
	UserID       string
	Quantity     int
	AmountPaid   decimal.Decimal
	ProviderRef  string
	ReferralCode string
}

type IssueResult struct {
	Ticket     *models.Ticket `json:"ticket,omitempty"`
	Outcome    IssueOutcome   `json:"outcome"`
	Replay     bool           `json:"replay"`
	ConflictID string         `json:"conflict_id,omitempty"`
	Remaining  int            `json:"remaining"`
}

type TicketService struct {
	store        store.Store
	inventory    *InventoryService
	referrals    *ReferralService
	notifier     Notifier
	generateCode func() (string, error)
}

func NewTicketService(s store.Store, inventory *InventoryService, referrals *ReferralService, notifier Notifier) *TicketService {
	return &TicketService{
		store:        s,
		inventory:    inventory,
		referrals:    referrals,
		notifier:     notifier,
		generateCode: utils.GenerateConfirmationCode,
	}
}

// Issue converts a confirmed payment into a ticket exactly once per provider
// reference. When the event is sold out the payment is recorded as a conflict
// and the result is returned with an error wrapping status.ErrOversell.
func (s *TicketService) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	if req.ProviderRef == "" || req.EventID == "" || req.UserID == "" || req.Quantity < 1 {
		return nil, fmt.Errorf("issue ticket: incomplete request: %w", status.ErrMalformedPayload)
	}

	key := models.TicketClaimKey(req.ProviderRef)
	var (
		result *IssueResult
		event  *models.Event
	)
	err := s.store.Transact(ctx, func(tx store.Store) error {
		claimed, err := tx.Claim(ctx, key, models.ClaimScopeTicket)
		if err != nil {
			return err
		}
		if claimed {
			result, err = replayIssue(ctx, tx, key, req.ProviderRef)
			return err
		}

		res, err := s.inventory.with(tx).Reserve(ctx, req.EventID, req.Quantity)
		if errors.Is(err, status.ErrOversell) {
			conflict := &models.PaymentConflict{
				ProviderRef: req.ProviderRef,
				EventID:     req.EventID,
				UserID:      req.UserID,
				Quantity:    req.Quantity,
				Amount:      req.AmountPaid,
				Reason:      models.ConflictReasonOversold,
			}
			if err := tx.InsertConflict(ctx, conflict); err != nil {
				return err
			}
			if err := tx.ResolveClaim(ctx, key, models.ClaimConflict, conflict.ID); err != nil {
				return err
			}
			result = &IssueResult{Outcome: IssueConflict, ConflictID: conflict.ID, Remaining: res.Remaining}
			return nil
		}
		if err != nil {
			return err
		}

		if event, err = tx.GetEvent(ctx, req.EventID); err != nil {
			return err
		}

		ticket, err := s.insertTicket(ctx, tx, req)
		if err != nil {
			return err
		}
		if err := tx.ResolveClaim(ctx, key, models.ClaimIssued, ticket.ID); err != nil {
			return err
		}
		result = &IssueResult{Ticket: ticket, Outcome: IssueIssued, Remaining: res.Remaining}
		return nil
	})
	if err != nil {
		monitoring.TrackTicketIssuance("error")
		return nil, err
	}

	if result.Outcome == IssueConflict {
		if !result.Replay {
			monitoring.TrackOversell(req.EventID)
			slog.Error("paid purchase oversold, flagged for reconciliation",
				"event_id", req.EventID, "user_id", req.UserID, "provider_ref", req.ProviderRef,
				"quantity", req.Quantity, "conflict_id", result.ConflictID)
		}
		monitoring.TrackTicketIssuance(string(IssueConflict))
		return result, fmt.Errorf("event %s: %w", req.EventID, status.ErrOversell)
	}
	if result.Replay {
		monitoring.TrackTicketIssuance("replay")
		// A credit lost after the ticket committed is retried on redelivery;
		// the dedupe key keeps it exactly-once.
		s.creditReferral(ctx, result.Ticket, true)
		return result, nil
	}

	monitoring.TrackTicketIssuance(string(IssueIssued))
	s.creditReferral(ctx, result.Ticket, false)
	if s.notifier != nil {
		s.notifier.TicketConfirmed(ctx, result.Ticket, event)
	}
	return result, nil
}

func replayIssue(ctx context.Context, tx store.Store, key, providerRef string) (*IssueResult, error) {
	claim, err := tx.GetClaim(ctx, key)
	if err != nil {
		return nil, err
	}

	switch claim.Outcome {
	case models.ClaimIssued:
		ticket, err := tx.FindTicketByPaymentRef(ctx, providerRef)
		if err != nil {
			return nil, err
		}
		return &IssueResult{Ticket: ticket, Outcome: IssueIssued, Replay: true}, nil
	case models.ClaimConflict:
		return &IssueResult{Outcome: IssueConflict, Replay: true, ConflictID: claim.SubjectID}, nil
	default:
		return nil, fmt.Errorf("claim %s is %s: %w", key, claim.Outcome, status.ErrContention)
	}
}

func (s *TicketService) insertTicket(ctx context.Context, tx store.Store, req IssueRequest) (*models.Ticket, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			return nil, err
		}

		ticket := &models.Ticket{
			UserID:             req.UserID,
			EventID:            req.EventID,
			Quantity:           req.Quantity,
			IsPaid:             true,
			AmountPaid:         req.AmountPaid,
			Status:             models.TicketConfirmed,
			ConfirmationCode:   code,
			ReferredByCode:     req.ReferralCode,
			ProviderPaymentRef: req.ProviderRef,
		}
		err = tx.InsertTicket(ctx, ticket)
		if errors.Is(err, status.ErrCodeCollision) {
			slog.Warn("confirmation code collision, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		return ticket, nil
	}
	return nil, fmt.Errorf("ticket for %s: %d attempts: %w", req.ProviderRef, maxCodeAttempts, status.ErrCodeCollision)
}

// creditReferral credits the rsvp carried by the ticket. It never fails the
// purchase.
func (s *TicketService) creditReferral(ctx context.Context, ticket *models.Ticket, replay bool) {
	if ticket == nil || ticket.ReferredByCode == "" || s.referrals == nil {
		return
	}

	actx := models.AttributionContext{EventID: ticket.EventID, TicketID: ticket.ID}
	attr, err := s.referrals.RecordRsvpReferral(ctx, ticket.ReferredByCode, ticket.UserID, actx)
	switch {
	case err == nil:
		slog.Info("rsvp referral credited", "ticket_id", ticket.ID, "referrer_id", attr.ReferrerID, "points", attr.Points, "replay", replay)
	case replay && attr != nil && attr.Reason == models.ReasonDuplicate:
		slog.Debug("rsvp referral already credited", "ticket_id", ticket.ID)
	default:
		slog.Warn("rsvp referral not credited", "ticket_id", ticket.ID, "code", ticket.ReferredByCode, "error", err)
	}
}
