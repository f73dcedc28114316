// Package store defines the transactional persistence contract of the payment
// pipeline. Every method that mutates shared state is a single atomic
// operation at the store level; callers never read-then-write counters.
package store

import (
	"context"
	"time"

	"nightlife-core/models"

	"github.com/shopspring/decimal"
)

// Store is implemented by the PocketBase store in production and by
// storetest.Memory in tests.
//
// Lookups return status.ErrNotFound for missing rows. Inserts return
// status.ErrDuplicate when a uniqueness constraint rejects the row, or
// status.ErrCodeCollision when the violated constraint is a confirmation code.
type Store interface {
	// Transact runs fn as one unit of work. fn must only use tx.
	Transact(ctx context.Context, fn func(tx Store) error) error

	// Claim inserts an idempotency claim and reports whether the key was
	// already claimed.
	Claim(ctx context.Context, key string, scope models.ClaimScope) (alreadyClaimed bool, err error)
	GetClaim(ctx context.Context, key string) (*models.Claim, error)
	ResolveClaim(ctx context.Context, key string, outcome models.ClaimOutcome, subjectID string) error

	GetEvent(ctx context.Context, id string) (*models.Event, error)
	// ReserveInventory adds quantity to tickets_sold only when the event is
	// unlimited or the result stays within ticket_count.
	ReserveInventory(ctx context.Context, eventID string, quantity int) (*models.InventoryReservation, error)

	InsertTicket(ctx context.Context, t *models.Ticket) error
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	FindTicketByPaymentRef(ctx context.Context, ref string) (*models.Ticket, error)
	FindTicketByCode(ctx context.Context, code string) (*models.Ticket, error)
	// MarkTicketCheckedIn sets checked_in when it is not set yet and reports
	// whether this call did it.
	MarkTicketCheckedIn(ctx context.Context, id string, at time.Time) (bool, error)

	GetVIPReservation(ctx context.Context, id string) (*models.VIPReservation, error)
	// TransitionVIP moves a reservation from -> to when its current status is
	// from, and reports whether the row was updated.
	TransitionVIP(ctx context.Context, id string, from, to models.VIPStatus, change models.VIPChange) (bool, error)

	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByReferralCode(ctx context.Context, code string) (*models.User, error)
	// AddReferralPoints atomically increments referral_points and returns the
	// new total.
	AddReferralPoints(ctx context.Context, userID string, points int) (int, error)
	// SetPromoterTier swaps the stored tier from -> to and reports whether the
	// swap happened.
	SetPromoterTier(ctx context.Context, userID string, from, to models.Tier, rate decimal.Decimal) (bool, error)

	InsertReferral(ctx context.Context, r *models.Referral) error
	ListReferralsByReferrer(ctx context.Context, referrerID string, limit int) ([]*models.Referral, error)

	InsertConflict(ctx context.Context, c *models.PaymentConflict) error
	ListConflicts(ctx context.Context, unresolvedOnly bool, limit int) ([]*models.PaymentConflict, error)
}
