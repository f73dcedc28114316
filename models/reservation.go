package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type VIPStatus string

const (
	VIPPending   VIPStatus = "pending"
	VIPConfirmed VIPStatus = "confirmed"
	VIPCancelled VIPStatus = "cancelled"
	VIPCompleted VIPStatus = "completed"
	VIPNoShow    VIPStatus = "no_show"
)

// VIPTransitions is the legal transition table for table reservations.
// States missing from the table, or mapped to an empty set, are terminal.
var VIPTransitions = map[VIPStatus][]VIPStatus{
	VIPPending:   {VIPConfirmed, VIPCancelled},
	VIPConfirmed: {VIPCompleted, VIPNoShow, VIPCancelled},
	VIPCompleted: {},
	VIPCancelled: {},
	VIPNoShow:    {},
}

// CanTransitionVIP reports whether from -> to is a legal move.
func CanTransitionVIP(from, to VIPStatus) bool {
	for _, s := range VIPTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s VIPStatus) Terminal() bool {
	return len(VIPTransitions[s]) == 0
}

func (s VIPStatus) Valid() bool {
	_, ok := VIPTransitions[s]
	return ok
}

type VIPReservation struct {
	ID                 string          `json:"id"`
	VenueID            string          `json:"venue_id"`
	PackageID          string          `json:"package_id,omitempty"`
	UserID             string          `json:"user_id,omitempty"`
	GuestName          string          `json:"guest_name"`
	GuestEmail         string          `json:"guest_email"`
	GuestPhone         string          `json:"guest_phone,omitempty"`
	PartySize          int             `json:"party_size"`
	MinSpend           decimal.Decimal `json:"min_spend"`
	DepositAmount      decimal.Decimal `json:"deposit_amount"`
	DepositPaid        bool            `json:"deposit_paid"`
	Status             VIPStatus       `json:"status"`
	ConfirmationCode   string          `json:"confirmation_code,omitempty"`
	ProviderPaymentRef string          `json:"provider_payment_ref,omitempty"`
	ConfirmedAt        *time.Time      `json:"confirmed_at,omitempty"`
}

// VIPChange carries the fields written together with a status transition.
// Zero values are left untouched.
type VIPChange struct {
	DepositPaid        bool
	ConfirmationCode   string
	ProviderPaymentRef string
	ConfirmedAt        *time.Time
}
