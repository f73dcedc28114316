package services

import (
	"context"
	"testing"

	"nightlife-core/internal/status"
	"nightlife-core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTicket(t *testing.T, f *fixture, code string, st models.TicketStatus) *models.Ticket {
	t.Helper()
	f.store.PutEvent(models.Event{ID: "ev1", VenueID: "v1", Name: "Friday"})
	f.store.PutUser(models.User{ID: "buyer", Name: "Alex"})

	ticket := &models.Ticket{
		UserID:             "buyer",
		EventID:            "ev1",
		Quantity:           2,
		IsPaid:             true,
		Status:             st,
		ConfirmationCode:   code,
		ProviderPaymentRef: "pi_" + code,
	}
	require.NoError(t, f.store.InsertTicket(context.Background(), ticket))
	return ticket
}

func TestCheckIn(t *testing.T) {
	f := newFixture()
	seedTicket(t, f, "ABCD2345", models.TicketConfirmed)
	ctx := context.Background()

	first, err := f.checkins.CheckIn(ctx, "abcd-2345", "v1")
	require.NoError(t, err)
	assert.Equal(t, CheckedIn, first.Outcome)
	assert.True(t, first.Ticket.CheckedIn)
	require.NotNil(t, first.Ticket.CheckedInAt)
	assert.Equal(t, "Friday", first.Event.Name)
	require.NotNil(t, first.Guest)
	assert.Equal(t, "Alex", first.Guest.Name)

	second, err := f.checkins.CheckIn(ctx, "ABCD2345", "v1")
	require.NoError(t, err)
	assert.Equal(t, AlreadyCheckedIn, second.Outcome)
	assert.Equal(t, first.Ticket.CheckedInAt, second.Ticket.CheckedInAt)
}

func TestCheckIn_Errors(t *testing.T) {
	f := newFixture()
	seedTicket(t, f, "ABCD2345", models.TicketConfirmed)
	ctx := context.Background()

	_, err := f.checkins.CheckIn(ctx, "ABCD2345", "other-venue")
	assert.ErrorIs(t, err, status.ErrWrongVenue)

	_, err = f.checkins.CheckIn(ctx, "ZZZZ9999", "v1")
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = f.checkins.CheckIn(ctx, "not a code", "v1")
	assert.ErrorIs(t, err, status.ErrNotFound)

	ticket, err := f.store.FindTicketByCode(ctx, "ABCD2345")
	require.NoError(t, err)
	assert.False(t, ticket.CheckedIn, "failed check-ins must not redeem the ticket")
}

func TestCheckIn_NotRedeemable(t *testing.T) {
	for _, st := range []models.TicketStatus{models.TicketPending, models.TicketCancelled, models.TicketRefunded} {
		f := newFixture()
		seedTicket(t, f, "ABCD2345", st)

		_, err := f.checkins.CheckIn(context.Background(), "ABCD2345", "v1")
		assert.ErrorIs(t, err, status.ErrTicketNotValid, string(st))
	}
}
