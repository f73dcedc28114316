package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nightlife-core/internal/store"
	"nightlife-core/models"
	"nightlife-core/monitoring"
	"nightlife-core/utils"

	"github.com/mailersend/mailersend-go"
	pubnub "github.com/pubnub/go/v7"
)

// Notifier receives confirmation events. Implementations must not block the
// caller; delivery is best effort.
type Notifier interface {
	TicketConfirmed(ctx context.Context, ticket *models.Ticket, event *models.Event)
	ReservationConfirmed(ctx context.Context, reservation *models.VIPReservation)
}

type Notification struct {
	Kind    string         `json:"type"`
	UserID  string         `json:"user_id,omitempty"`
	Email   string         `json:"-"`
	Name    string         `json:"-"`
	Subject string         `json:"-"`
	Text    string         `json:"-"`
	Data    map[string]any `json:"data"`
}

// Publisher delivers a notification over one channel.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, n Notification) error
}

type NotificationService struct {
	store      store.Store
	publishers []Publisher
	timeout    time.Duration
	wg         sync.WaitGroup
}

func NewNotificationService(s store.Store, timeout time.Duration, publishers ...Publisher) *NotificationService {
	return &NotificationService{
		store:      s,
		publishers: publishers,
		timeout:    timeout,
	}
}

func (s *NotificationService) TicketConfirmed(ctx context.Context, ticket *models.Ticket, event *models.Event) {
	s.async(ctx, func(ctx context.Context) (Notification, error) {
		return s.ticketNotification(ctx, ticket, event)
	})
}

func (s *NotificationService) ReservationConfirmed(ctx context.Context, reservation *models.VIPReservation) {
	s.async(ctx, func(ctx context.Context) (Notification, error) {
		return reservationNotification(reservation), nil
	})
}

// Wait blocks until in-flight deliveries finish.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func (s *NotificationService) async(ctx context.Context, build func(context.Context) (Notification, error)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		n, err := build(ctx)
		if err != nil {
			slog.Warn("failed to build notification", "error", err)
			return
		}
		s.deliver(ctx, n)
	}()
}

func (s *NotificationService) deliver(ctx context.Context, n Notification) {
	for _, p := range s.publishers {
		if err := p.Publish(ctx, n); err != nil {
			monitoring.TrackNotificationFailure(p.Name())
			slog.Warn("notification not delivered", "channel", p.Name(), "kind", n.Kind, "user_id", n.UserID, "error", err)
		}
	}
}

func (s *NotificationService) ticketNotification(ctx context.Context, ticket *models.Ticket, event *models.Event) (Notification, error) {
	n := Notification{
		Kind:    "ticket_confirmed",
		UserID:  ticket.UserID,
		Subject: "Your tickets are confirmed",
		Text: fmt.Sprintf("Your confirmation code is %s for %d ticket(s).",
			ticket.ConfirmationCode, ticket.Quantity),
		Data: map[string]any{
			"ticket_id":         ticket.ID,
			"event_id":          ticket.EventID,
			"confirmation_code": ticket.ConfirmationCode,
			"quantity":          ticket.Quantity,
		},
	}
	if event != nil && event.Name != "" {
		n.Subject = "Your tickets for " + event.Name
	}

	user, err := s.store.GetUser(ctx, ticket.UserID)
	if err != nil {
		// realtime delivery still works without the address
		slog.Warn("ticket buyer not found for email", "user_id", ticket.UserID, "error", err)
		return n, nil
	}
	n.Email = user.Email
	n.Name = user.Name
	return n, nil
}

func reservationNotification(r *models.VIPReservation) Notification {
	return Notification{
		Kind:    "reservation_confirmed",
		UserID:  r.UserID,
		Email:   r.GuestEmail,
		Name:    r.GuestName,
		Subject: "Your VIP reservation is confirmed",
		Text: fmt.Sprintf("Your reservation for %d guest(s) is confirmed. Confirmation code: %s.",
			r.PartySize, r.ConfirmationCode),
		Data: map[string]any{
			"reservation_id":    r.ID,
			"venue_id":          r.VenueID,
			"confirmation_code": r.ConfirmationCode,
		},
	}
}

// RealtimePublisher pushes notifications to the buyer's PubNub channel.
type RealtimePublisher struct {
	pn *pubnub.PubNub
}

func NewRealtimePublisher(pn *pubnub.PubNub) *RealtimePublisher {
	return &RealtimePublisher{pn: pn}
}

func (p *RealtimePublisher) Name() string { return "pubnub" }

func UserChannel(userID string) string {
	return "user-" + userID
}

func (p *RealtimePublisher) Publish(ctx context.Context, n Notification) error {
	if n.UserID == "" {
		return nil
	}
	_, _, err := p.pn.Publish().
		Channel(UserChannel(n.UserID)).
		Message(n).
		Execute()
	if err != nil {
		return fmt.Errorf("pubnub publish: %w", err)
	}
	return nil
}

// EmailPublisher sends notifications through MailerSend behind a circuit
// breaker.
type EmailPublisher struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	breaker *utils.CircuitBreaker
}

func NewEmailPublisher(apiKey, fromName, fromEmail string) *EmailPublisher {
	return &EmailPublisher{
		client:  mailersend.NewMailersend(apiKey),
		from:    mailersend.From{Name: fromName, Email: fromEmail},
		breaker: utils.NewCircuitBreaker("mailersend"),
	}
}

func (p *EmailPublisher) Name() string { return "email" }

func (p *EmailPublisher) Publish(ctx context.Context, n Notification) error {
	if n.Email == "" {
		return nil
	}

	message := p.client.Email.NewMessage()
	message.SetFrom(p.from)
	message.SetRecipients([]mailersend.Recipient{{Name: n.Name, Email: n.Email}})
	message.SetSubject(n.Subject)
	message.SetText(n.Text)

	_, err := p.breaker.Execute(ctx, func() (any, error) {
		res, err := p.client.Email.Send(ctx, message)
		if err != nil {
			return nil, err
		}
		slog.Debug("email sent", "kind", n.Kind, "message_id", res.Header.Get("X-Message-Id"))
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
