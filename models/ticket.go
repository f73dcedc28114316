package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketPending   TicketStatus = "pending"
	TicketConfirmed TicketStatus = "confirmed"
	TicketCancelled TicketStatus = "cancelled"
	TicketRefunded  TicketStatus = "refunded"
)

type Ticket struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	EventID            string          `json:"event_id"`
	Quantity           int             `json:"quantity"`
	IsPaid             bool            `json:"is_paid"`
	AmountPaid         decimal.Decimal `json:"amount_paid"`
	Status             TicketStatus    `json:"status"`
	ConfirmationCode   string          `json:"confirmation_code"`
	ReferredByCode     string          `json:"referred_by_code,omitempty"`
	ProviderPaymentRef string          `json:"provider_payment_ref"`
	CheckedIn          bool            `json:"checked_in"`
	CheckedInAt        *time.Time      `json:"checked_in_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Redeemable reports whether the ticket may be used at the door.
func (t *Ticket) Redeemable() bool {
	return t.Status == TicketConfirmed
}
