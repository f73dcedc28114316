package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"nightlife-core/internal/status"
	"nightlife-core/models"
	"nightlife-core/monitoring"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go"
	"github.com/stripe/stripe-go/webhook"
)

const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
)

// Dispatch outcomes. All but OutcomeInFlight are acknowledged to the provider;
// an in-flight delivery comes back with status.ErrContention so it is retried.
const (
	OutcomeProcessed = "processed"
	OutcomeReplay    = "replay"
	OutcomeInFlight  = "in_flight"
	OutcomeIgnored   = "ignored"
	OutcomeConflict  = "conflict"
	OutcomeRejected  = "rejected"
)

type DispatchResult struct {
	EventID     string                 `json:"event_id"`
	EventType   string                 `json:"event_type"`
	Outcome     string                 `json:"outcome"`
	Subject     models.SubjectType     `json:"subject_type,omitempty"`
	Ticket      *models.Ticket         `json:"ticket,omitempty"`
	Reservation *models.VIPReservation `json:"reservation,omitempty"`
	ConflictID  string                 `json:"conflict_id,omitempty"`
}

type Dispatcher struct {
	secret       string
	tickets      *TicketService
	reservations *ReservationService
	lock         *EventLock
}

func NewDispatcher(secret string, tickets *TicketService, reservations *ReservationService, lock *EventLock) *Dispatcher {
	if secret == "" {
		slog.Warn("no webhook secret configured, signatures will not be verified")
	}
	return &Dispatcher{
		secret:       secret,
		tickets:      tickets,
		reservations: reservations,
		lock:         lock,
	}
}

// checkoutSession is the part of a Checkout Session the pipeline reads.
type checkoutSession struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

func (c checkoutSession) paid() bool {
	return c.PaymentStatus == "paid" || c.PaymentStatus == "no_payment_required"
}

// Dispatch verifies a provider notification and routes it to ticket issuance
// or VIP confirmation. The returned error is only set for unauthenticated or
// malformed input and for failures the provider should retry.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte, signature string) (*DispatchResult, error) {
	start := time.Now()

	event, err := d.verify(payload, signature)
	if err != nil {
		monitoring.TrackPaymentEvent("unknown", "unauthenticated", time.Since(start))
		return nil, err
	}

	result, err := d.route(ctx, event)
	outcome := "error"
	if result != nil {
		outcome = result.Outcome
	}
	monitoring.TrackPaymentEvent(event.Type, outcome, time.Since(start))
	return result, err
}

func (d *Dispatcher) verify(payload []byte, signature string) (stripe.Event, error) {
	if d.secret == "" {
		var event stripe.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return event, fmt.Errorf("decode event: %v: %w", err, status.ErrMalformedPayload)
		}
		return event, nil
	}

	event, err := webhook.ConstructEvent(payload, signature, d.secret)
	switch {
	case err == nil:
		return event, nil
	case errors.Is(err, webhook.ErrNotSigned),
		errors.Is(err, webhook.ErrInvalidHeader),
		errors.Is(err, webhook.ErrNoValidSignature),
		errors.Is(err, webhook.ErrTooOld):
		return event, fmt.Errorf("%v: %w", err, status.ErrAuthenticity)
	default:
		return event, fmt.Errorf("%v: %w", err, status.ErrMalformedPayload)
	}
}

func (d *Dispatcher) route(ctx context.Context, event stripe.Event) (*DispatchResult, error) {
	result := &DispatchResult{EventID: event.ID, EventType: event.Type, Outcome: OutcomeIgnored}
	if event.Type != EventCheckoutCompleted && event.Type != EventCheckoutAsyncSucceeded {
		return result, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("event %s has no data: %w", event.ID, status.ErrMalformedPayload)
	}

	var session checkoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("decode checkout session: %v: %w", err, status.ErrMalformedPayload)
	}
	if !session.paid() {
		slog.Info("checkout session not paid yet", "event_id", event.ID, "session_id", session.ID, "payment_status", session.PaymentStatus)
		return result, nil
	}

	intent, err := purchaseIntent(event.ID, session)
	if err != nil {
		return nil, err
	}
	result.Subject = intent.SubjectType

	state, release := d.lock.Acquire(ctx, event.ID)
	switch state {
	case LockProcessed:
		result.Outcome = OutcomeReplay
		return result, nil
	case LockHeld:
		result.Outcome = OutcomeInFlight
		return result, fmt.Errorf("event %s is being processed: %w", event.ID, status.ErrContention)
	}

	processed := false
	defer func() { release(processed) }()

	if intent.SubjectType == models.SubjectVIPReservation {
		err = d.confirmReservation(ctx, intent, result)
	} else {
		err = d.issueTickets(ctx, intent, result)
	}
	if err != nil {
		return nil, err
	}
	processed = true
	return result, nil
}

func (d *Dispatcher) issueTickets(ctx context.Context, intent *models.PurchaseIntent, result *DispatchResult) error {
	issued, err := d.tickets.Issue(ctx, IssueRequest{
		EventID:      intent.SubjectID,
		UserID:       intent.BuyerID,
		Quantity:     intent.Quantity,
		AmountPaid:   intent.Amount,
		ProviderRef:  intent.ProviderRef,
		ReferralCode: intent.ReferralCode,
	})
	switch {
	case errors.Is(err, status.ErrOversell):
		result.Outcome = OutcomeConflict
		result.ConflictID = issued.ConflictID
		return nil
	case errors.Is(err, status.ErrNotFound):
		slog.Error("ticket purchase for unknown event", "event_id", intent.SubjectID, "provider_ref", intent.ProviderRef, "error", err)
		result.Outcome = OutcomeRejected
		return nil
	case err != nil:
		slog.Error("d.tickets.Issue()", "provider_ref", intent.ProviderRef, "error", err)
		return err
	}

	result.Ticket = issued.Ticket
	result.Outcome = OutcomeProcessed
	if issued.Replay {
		result.Outcome = OutcomeReplay
	}
	return nil
}

func (d *Dispatcher) confirmReservation(ctx context.Context, intent *models.PurchaseIntent, result *DispatchResult) error {
	reservation, err := d.reservations.ConfirmDeposit(ctx, intent.SubjectID, intent.ProviderRef)
	switch {
	case errors.Is(err, status.ErrInvalidTransition):
		result.Outcome = OutcomeRejected
		return nil
	case errors.Is(err, status.ErrNotFound):
		slog.Error("deposit for unknown reservation", "reservation_id", intent.SubjectID, "provider_ref", intent.ProviderRef, "error", err)
		result.Outcome = OutcomeRejected
		return nil
	case err != nil:
		slog.Error("d.reservations.ConfirmDeposit()", "reservation_id", intent.SubjectID, "error", err)
		return err
	}

	result.Reservation = reservation
	result.Outcome = OutcomeProcessed
	return nil
}

// purchaseIntent reads the checkout metadata. Sessions without a subject
// type are ticket purchases.
func purchaseIntent(eventID string, session checkoutSession) (*models.PurchaseIntent, error) {
	meta := session.Metadata
	intent := &models.PurchaseIntent{
		SubjectType:   models.SubjectType(meta["subject_type"]),
		BuyerID:       meta["user_id"],
		Quantity:      1,
		Amount:        decimal.New(session.AmountTotal, -2),
		ReferralCode:  meta["referral_code"],
		ProviderRef:   session.PaymentIntent,
		ProviderEvent: eventID,
	}
	if intent.ProviderRef == "" {
		intent.ProviderRef = session.ID
	}
	if intent.ProviderRef == "" {
		return nil, fmt.Errorf("event %s: no payment reference: %w", eventID, status.ErrMalformedPayload)
	}

	if intent.SubjectType == models.SubjectVIPReservation {
		intent.SubjectID = meta["reservation_id"]
		if intent.SubjectID == "" {
			return nil, fmt.Errorf("event %s: missing reservation_id: %w", eventID, status.ErrMalformedPayload)
		}
		return intent, nil
	}

	intent.SubjectType = models.SubjectTicket
	intent.SubjectID = meta["event_id"]
	if intent.SubjectID == "" || intent.BuyerID == "" {
		return nil, fmt.Errorf("event %s: missing event_id or user_id: %w", eventID, status.ErrMalformedPayload)
	}
	if q, ok := meta["quantity"]; ok && q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("event %s: quantity %q: %w", eventID, q, status.ErrMalformedPayload)
		}
		intent.Quantity = n
	}
	return intent, nil
}
