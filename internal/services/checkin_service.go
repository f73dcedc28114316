package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nightlife-core/internal/status"
	"nightlife-core/internal/store"
	"nightlife-core/models"
	"nightlife-core/utils"
)

type CheckinOutcome string

const (
	CheckedIn        CheckinOutcome = "checked_in"
	AlreadyCheckedIn CheckinOutcome = "already_checked_in"
)

type CheckinResult struct {
	Outcome CheckinOutcome
	Ticket  *models.Ticket
	Event   *models.Event
	Guest   *models.User
}

type CheckinService struct {
	store store.Store
	now   func() time.Time
}

func NewCheckinService(s store.Store) *CheckinService {
	return &CheckinService{store: s, now: time.Now}
}

// CheckIn redeems a ticket at the door. Presenting the same code again
// reports AlreadyCheckedIn.
func (s *CheckinService) CheckIn(ctx context.Context, code, venueID string) (*CheckinResult, error) {
	code = utils.NormalizeConfirmationCode(code)
	if !utils.IsConfirmationCode(code) {
		return nil, fmt.Errorf("confirmation code %q: %w", code, status.ErrNotFound)
	}

	ticket, err := s.store.FindTicketByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	event, err := s.store.GetEvent(ctx, ticket.EventID)
	if err != nil {
		return nil, err
	}
	if event.VenueID != venueID {
		return nil, fmt.Errorf("ticket %s at venue %s: %w", ticket.ID, venueID, status.ErrWrongVenue)
	}
	if !ticket.Redeemable() {
		return nil, fmt.Errorf("ticket %s is %s: %w", ticket.ID, ticket.Status, status.ErrTicketNotValid)
	}

	result := &CheckinResult{Outcome: AlreadyCheckedIn, Ticket: ticket, Event: event}
	if !ticket.CheckedIn {
		ok, err := s.store.MarkTicketCheckedIn(ctx, ticket.ID, s.now())
		if err != nil {
			return nil, err
		}
		if ok {
			result.Outcome = CheckedIn
			if result.Ticket, err = s.store.GetTicket(ctx, ticket.ID); err != nil {
				return nil, err
			}
		}
	}

	guest, err := s.store.GetUser(ctx, ticket.UserID)
	switch {
	case err == nil:
		result.Guest = guest
	case errors.Is(err, status.ErrNotFound):
		slog.Warn("ticket holder not found", "ticket_id", ticket.ID, "user_id", ticket.UserID)
	default:
		return nil, err
	}
	return result, nil
}
