package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"nightlife-core/config"
	"nightlife-core/internal/status"
	"nightlife-core/internal/store"
	"nightlife-core/internal/store/storetest"
	"nightlife-core/models"
	"nightlife-core/utils"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) TicketConfirmed(ctx context.Context, ticket *models.Ticket, event *models.Event) {
	m.Called(ticket, event)
}

func (m *mockNotifier) ReservationConfirmed(ctx context.Context, reservation *models.VIPReservation) {
	m.Called(reservation)
}

func newMockNotifier() *mockNotifier {
	n := &mockNotifier{}
	n.On("TicketConfirmed", mock.Anything, mock.Anything).Return()
	n.On("ReservationConfirmed", mock.Anything).Return()
	return n
}

type fixture struct {
	store        *storetest.Memory
	notifier     *mockNotifier
	promoters    *PromoterService
	referrals    *ReferralService
	inventory    *InventoryService
	tickets      *TicketService
	reservations *ReservationService
	checkins     *CheckinService
}

func newFixture() *fixture {
	st := storetest.NewMemory()
	n := newMockNotifier()
	program := config.DefaultReferralProgram()

	f := &fixture{store: st, notifier: n}
	f.promoters = NewPromoterService(st, program.Tiers)
	f.referrals = NewReferralService(st, program, f.promoters)
	f.inventory = NewInventoryService(st)
	f.tickets = NewTicketService(st, f.inventory, f.referrals, n)
	f.reservations = NewReservationService(st, n)
	f.checkins = NewCheckinService(st)
	return f
}

func capacity(n int) *int { return &n }

// codeSequence returns the given codes in order, then fresh unique ones.
func codeSequence(codes ...string) func() (string, error) {
	var (
		mu sync.Mutex
		i  int
	)
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		i++
		if i <= len(codes) {
			return codes[i-1], nil
		}
		return fmt.Sprintf("ZZZZ%04d", i), nil
	}
}

// putTicket stores a confirmed ticket held by userID for eventID.
func putTicket(t *testing.T, st *storetest.Memory, userID, eventID string) *models.Ticket {
	t.Helper()
	code, err := utils.GenerateConfirmationCode()
	require.NoError(t, err)

	ticket := &models.Ticket{
		UserID:           userID,
		EventID:          eventID,
		Quantity:         1,
		IsPaid:           true,
		Status:           models.TicketConfirmed,
		ConfirmationCode: code,
	}
	require.NoError(t, st.InsertTicket(context.Background(), ticket))
	return ticket
}

var errPointsUnavailable = fmt.Errorf("points column locked: %w", status.ErrStore)

// flakyPoints fails AddReferralPoints the first failures times, inside and
// outside transactions.
type flakyPoints struct {
	store.Store
	failures *atomic.Int32
}

func newFlakyPoints(s store.Store, failures int32) *flakyPoints {
	n := &atomic.Int32{}
	n.Store(failures)
	return &flakyPoints{Store: s, failures: n}
}

func (f *flakyPoints) Transact(ctx context.Context, fn func(tx store.Store) error) error {
	return f.Store.Transact(ctx, func(tx store.Store) error {
		return fn(&flakyPoints{Store: tx, failures: f.failures})
	})
}

func (f *flakyPoints) AddReferralPoints(ctx context.Context, userID string, points int) (int, error) {
	if f.failures.Add(-1) >= 0 {
		return 0, errPointsUnavailable
	}
	return f.Store.AddReferralPoints(ctx, userID, points)
}
