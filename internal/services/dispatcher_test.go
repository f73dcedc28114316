package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"nightlife-core/internal/status"
	"nightlife-core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go"
)

const testSecret = "whsec_test_secret"

func checkoutEvent(t *testing.T, id, eventType string, session map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": session},
	})
	require.NoError(t, err)
	return payload
}

func ticketSession(ref string, meta map[string]string) map[string]any {
	return map[string]any{
		"id":             "cs_" + ref,
		"object":         "checkout.session",
		"payment_intent": ref,
		"amount_total":   4000,
		"currency":       "usd",
		"payment_status": "paid",
		"metadata":       meta,
	}
}

func sign(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newTestDispatcher(f *fixture, lock *EventLock) *Dispatcher {
	return NewDispatcher(testSecret, f.tickets, f.reservations, lock)
}

func TestDispatch_IssuesTicket(t *testing.T) {
	f := newFixture()
	f.store.PutEvent(models.Event{ID: "ev1", VenueID: "v1", TicketCount: capacity(10)})
	d := newTestDispatcher(f, nil)
	ctx := context.Background()

	payload := checkoutEvent(t, "evt_1", EventCheckoutCompleted, ticketSession("pi_1", map[string]string{
		"event_id": "ev1", "user_id": "buyer", "quantity": "2",
	}))

	res, err := d.Dispatch(ctx, payload, sign(payload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Equal(t, models.SubjectTicket, res.Subject)
	require.NotNil(t, res.Ticket)
	assert.Equal(t, 2, res.Ticket.Quantity)
	assert.Equal(t, "40", res.Ticket.AmountPaid.String())

	again, err := d.Dispatch(ctx, payload, sign(payload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplay, again.Outcome)
	assert.Equal(t, res.Ticket.ConfirmationCode, again.Ticket.ConfirmationCode)

	event, err := f.store.GetEvent(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, 2, event.TicketsSold)
}

func TestDispatch_RejectsBadSignature(t *testing.T) {
	f := newFixture()
	f.store.PutEvent(models.Event{ID: "ev1", VenueID: "v1"})
	d := newTestDispatcher(f, nil)

	payload := checkoutEvent(t, "evt_1", EventCheckoutCompleted, ticketSession("pi_1", map[string]string{
		"event_id": "ev1", "user_id": "buyer",
	}))

	for name, header := range map[string]string{
		"missing":      "",
		"wrong secret": sign(payload, "whsec_other"),
		"garbled":      "not-a-signature",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), payload, header)
			assert.ErrorIs(t, err, status.ErrAuthenticity)
		})
	}

	event, err := f.store.GetEvent(context.Background(), "ev1")
	require.NoError(t, err)
	assert.Zero(t, event.TicketsSold)
}

func TestDispatch_IgnoredEvents(t *testing.T) {
	f := newFixture()
	d := newTestDispatcher(f, nil)

	other := checkoutEvent(t, "evt_1", "customer.created", map[string]any{"id": "cus_1"})
	res, err := d.Dispatch(context.Background(), other, sign(other, testSecret))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	session := ticketSession("pi_1", map[string]string{"event_id": "ev1", "user_id": "buyer"})
	session["payment_status"] = "unpaid"
	unpaid := checkoutEvent(t, "evt_2", EventCheckoutCompleted, session)
	res, err = d.Dispatch(context.Background(), unpaid, sign(unpaid, testSecret))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
}

func TestDispatch_MalformedMetadata(t *testing.T) {
	tests := map[string]map[string]string{
		"no event":            {"user_id": "buyer"},
		"no buyer":            {"event_id": "ev1"},
		"bad quantity":        {"event_id": "ev1", "user_id": "buyer", "quantity": "two"},
		"zero quantity":       {"event_id": "ev1", "user_id": "buyer", "quantity": "0"},
		"vip without subject": {"subject_type": "vip_reservation"},
	}

	for name, meta := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			d := newTestDispatcher(f, nil)
			payload := checkoutEvent(t, "evt_1", EventCheckoutCompleted, ticketSession("pi_1", meta))

			_, err := d.Dispatch(context.Background(), payload, sign(payload, testSecret))
			assert.ErrorIs(t, err, status.ErrMalformedPayload)
		})
	}
}

func TestDispatch_MalformedBody(t *testing.T) {
	f := newFixture()
	d := newTestDispatcher(f, nil)
	payload := []byte(`{"id": "evt_1", "type": `)

	_, err := d.Dispatch(context.Background(), payload, sign(payload, testSecret))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, status.ErrAuthenticity)
}

func TestDispatch_UnknownSubjectFallsBackToTicket(t *testing.T) {
	f := newFixture()
	f.store.PutEvent(models.Event{ID: "ev1", VenueID: "v1"})
	d := newTestDispatcher(f, nil)

	payload := checkoutEvent(t, "evt_1", EventCheckoutCompleted, ticketSession("pi_1", map[string]string{
		"subject_type": "merch", "event_id": "ev1", "user_id": "buyer",
	}))
	res, err := d.Dispatch(context.Background(), payload, sign(payload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Equal(t, models.SubjectTicket, res.Subject)
	assert.Equal(t, 1, res.Ticket.Quantity)
}

func TestDispatch_OversellIsAcknowledged(t *testing.T) {
	f := newFixture()
	f.store.PutEvent(models.Event{ID: "ev1", VenueID: "v1", TicketCount: capacity(1), TicketsSold: 1})
	d := newTestDispatcher(f, nil)

	payload := checkoutEvent(t, "evt_1", EventCheckoutCompleted, ticketSession("pi_1", map[string]string{
		"event_id": "ev1", "user_id": "buyer",
	}))
	res, err := d.Dispatch(context.Background(), payload, sign(payload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConflict, res.Outcome)
	assert.NotEmpty(t, res.ConflictID)
}

func TestDispatch_ConfirmsReservation(t *testing.T) {
	f := newFixture()
	f.store.PutVIPReservation(pendingReservation("r1"))
	cancelled := pendingReservation("r2")
	cancelled.Status = models.VIPCancelled
	f.store.PutVIPReservation(cancelled)
	d := newTestDispatcher(f, nil)
	ctx := context.Background()

	payload := checkoutEvent(t, "evt_1", EventCheckoutCompleted, ticketSession("pi_vip", map[string]string{
		"subject_type": "vip_reservation", "reservation_id": "r1",
	}))
	res, err := d.Dispatch(ctx, payload, sign(payload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	require.NotNil(t, res.Reservation)
	assert.Equal(t, models.VIPConfirmed, res.Reservation.Status)

	late := checkoutEvent(t, "evt_2", EventCheckoutCompleted, ticketSession("pi_late", map[string]string{
		"subject_type": "vip_reservation", "reservation_id": "r2",
	}))
	res, err = d.Dispatch(ctx, late, sign(late, testSecret))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
}

func TestDispatch_WithoutSecretSkipsVerification(t *testing.T) {
	f := newFixture()
	f.store.PutEvent(models.Event{ID: "ev1", VenueID: "v1"})
	d := NewDispatcher("", f.tickets, f.reservations, nil)

	payload := checkoutEvent(t, "evt_1", EventCheckoutCompleted, ticketSession("pi_1", map[string]string{
		"event_id": "ev1", "user_id": "buyer",
	}))
	res, err := d.Dispatch(context.Background(), payload, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
}

func TestDispatch_EventLock(t *testing.T) {
	f := newFixture()
	f.store.PutEvent(models.Event{ID: "ev1", VenueID: "v1"})
	lock, mock := newTestLock()
	d := newTestDispatcher(f, lock)
	ctx := context.Background()

	payload := checkoutEvent(t, "evt_1", EventCheckoutCompleted, ticketSession("pi_1", map[string]string{
		"event_id": "ev1", "user_id": "buyer",
	}))

	mock.ExpectExists("webhook:done:evt_1").SetVal(0)
	mock.ExpectSetNX("webhook:lock:evt_1", "owner-token", testLockTTL).SetVal(false)
	res, err := d.Dispatch(ctx, payload, sign(payload, testSecret))
	require.ErrorIs(t, err, status.ErrContention, "a held lock must make the provider redeliver")
	assert.Equal(t, OutcomeInFlight, res.Outcome)

	_, err = f.store.GetClaim(ctx, models.TicketClaimKey("pi_1"))
	assert.ErrorIs(t, err, status.ErrNotFound, "nothing may be issued while another delivery holds the lock")

	mock.ExpectExists("webhook:done:evt_1").SetVal(0)
	mock.ExpectSetNX("webhook:lock:evt_1", "owner-token", testLockTTL).SetVal(true)
	mock.ExpectSet("webhook:done:evt_1", "1", testDoneTTL).SetVal("OK")
	mock.ExpectEvalSha(releaseScript.Hash(), []string{"webhook:lock:evt_1"}, "owner-token").SetVal(int64(1))
	res, err = d.Dispatch(ctx, payload, sign(payload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, res.Outcome)

	mock.ExpectExists("webhook:done:evt_1").SetVal(1)
	res, err = d.Dispatch(ctx, payload, sign(payload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplay, res.Outcome)

	assert.NoError(t, mock.ExpectationsWereMet())
}

