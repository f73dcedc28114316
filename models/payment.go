package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubjectType discriminates what a checkout session paid for.
type SubjectType string

const (
	SubjectTicket         SubjectType = "ticket"
	SubjectVIPReservation SubjectType = "vip_reservation"
)

// PurchaseIntent is the correlation data embedded in the provider's checkout
// session metadata. It is read-only input.
type PurchaseIntent struct {
	SubjectType   SubjectType     `json:"subject_type"`
	SubjectID     string          `json:"subject_id"`
	BuyerID       string          `json:"buyer_id"`
	Quantity      int             `json:"quantity"`
	Amount        decimal.Decimal `json:"amount"`
	ReferralCode  string          `json:"referral_code,omitempty"`
	ProviderRef   string          `json:"provider_ref"`
	ProviderEvent string          `json:"provider_event"`
}

type ClaimOutcome string

const (
	ClaimProcessing ClaimOutcome = "processing"
	ClaimIssued     ClaimOutcome = "issued"
	ClaimConfirmed  ClaimOutcome = "confirmed"
	ClaimConflict   ClaimOutcome = "conflict"
)

type ClaimScope string

const (
	ClaimScopeTicket ClaimScope = "ticket"
	ClaimScopeVIP    ClaimScope = "vip"
)

// Claim is a uniqueness-constrained marker that a logical event was handled.
type Claim struct {
	Key       string       `json:"key"`
	Scope     ClaimScope   `json:"scope"`
	Outcome   ClaimOutcome `json:"outcome"`
	SubjectID string       `json:"subject_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// TicketClaimKey is the idempotency key of a ticket purchase.
func TicketClaimKey(providerRef string) string {
	return "ticket:" + providerRef
}

// VIPClaimKey is the idempotency key of a VIP deposit.
func VIPClaimKey(providerRef string) string {
	return "vip:" + providerRef
}

// PaymentConflict records a paid purchase that could not be fulfilled and
// needs manual reconciliation.
type PaymentConflict struct {
	ID          string          `json:"id"`
	ProviderRef string          `json:"provider_ref"`
	EventID     string          `json:"event_id"`
	UserID      string          `json:"user_id"`
	Quantity    int             `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	Resolved    bool            `json:"resolved"`
	CreatedAt   time.Time       `json:"created_at"`
}

const ConflictReasonOversold = "oversold"
