package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nightlife-core/internal/store/storetest"
	"nightlife-core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	name string
	err  error

	mu   sync.Mutex
	sent []Notification
}

func (p *recordingPublisher) Name() string { return p.name }

func (p *recordingPublisher) Publish(ctx context.Context, n Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
	return p.err
}

func (p *recordingPublisher) Sent() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Notification(nil), p.sent...)
}

func TestNotificationService_TicketConfirmed(t *testing.T) {
	st := storetest.NewMemory()
	st.PutUser(models.User{ID: "buyer", Name: "Alex", Email: "alex@example.com"})
	failing := &recordingPublisher{name: "pubnub", err: errors.New("offline")}
	email := &recordingPublisher{name: "email"}
	svc := NewNotificationService(st, time.Second, failing, email)

	ticket := &models.Ticket{ID: "t1", UserID: "buyer", EventID: "ev1", Quantity: 2, ConfirmationCode: "ABCD2345"}
	svc.TicketConfirmed(context.Background(), ticket, &models.Event{ID: "ev1", Name: "Friday"})
	svc.Wait()

	assert.Len(t, failing.Sent(), 1)
	sent := email.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ticket_confirmed", sent[0].Kind)
	assert.Equal(t, "alex@example.com", sent[0].Email)
	assert.Equal(t, "Your tickets for Friday", sent[0].Subject)
	assert.Contains(t, sent[0].Text, "ABCD2345")
	assert.Equal(t, "ABCD2345", sent[0].Data["confirmation_code"])
}

func TestNotificationService_UnknownBuyerStillPublishes(t *testing.T) {
	realtime := &recordingPublisher{name: "pubnub"}
	svc := NewNotificationService(storetest.NewMemory(), time.Second, realtime)

	svc.TicketConfirmed(context.Background(), &models.Ticket{ID: "t1", UserID: "ghost"}, nil)
	svc.Wait()

	sent := realtime.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ghost", sent[0].UserID)
	assert.Empty(t, sent[0].Email)
}

func TestNotificationService_ReservationConfirmed(t *testing.T) {
	email := &recordingPublisher{name: "email"}
	svc := NewNotificationService(storetest.NewMemory(), time.Second, email)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.ReservationConfirmed(ctx, &models.VIPReservation{
		ID: "r1", GuestName: "Sam", GuestEmail: "sam@example.com", PartySize: 6, ConfirmationCode: "VIPC0DE2",
	})
	svc.Wait()

	sent := email.Sent()
	require.Len(t, sent, 1, "a finished request must not cancel delivery")
	assert.Equal(t, "reservation_confirmed", sent[0].Kind)
	assert.Equal(t, "sam@example.com", sent[0].Email)
	assert.Contains(t, sent[0].Text, "VIPC0DE2")
}

func TestPublishers_SkipMissingRecipient(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, NewRealtimePublisher(nil).Publish(ctx, Notification{Kind: "ticket_confirmed"}))
	assert.NoError(t, NewEmailPublisher("key", "Nightlife", "no-reply@example.com").Publish(ctx, Notification{UserID: "u1"}))
	assert.Equal(t, "user-u1", UserChannel("u1"))
}
