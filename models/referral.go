package models

import "time"

type ReferralAction string

const (
	ActionSignup ReferralAction = "signup"
	ActionRSVP   ReferralAction = "rsvp"
)

func (a ReferralAction) Valid() bool {
	return a == ActionSignup || a == ActionRSVP
}

// Reasons a referral was not credited.
const (
	ReasonInvalidCode   = "invalid_code"
	ReasonSelfReferral  = "self_referral"
	ReasonDuplicate     = "duplicate"
	ReasonInvalidAction = "invalid_action"
	ReasonMissingEvent  = "missing_event"
	ReasonInvalidTicket = "invalid_ticket"
)

type Referral struct {
	ID            string         `json:"id"`
	ReferrerID    string         `json:"referrer_id"`
	ReferredID    string         `json:"referred_id"`
	Action        ReferralAction `json:"action"`
	EventID       string         `json:"event_id,omitempty"`
	VenueID       string         `json:"venue_id,omitempty"`
	TicketID      string         `json:"ticket_id,omitempty"`
	PointsAwarded int            `json:"points_awarded"`
	DedupeKey     string         `json:"dedupe_key"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ReferralDedupeKey is the uniqueness key of a qualifying action: one signup
// per referred user, one rsvp per referred user and event.
func ReferralDedupeKey(action ReferralAction, referredID, eventID string) string {
	if action == ActionRSVP {
		return "rsvp:" + referredID + ":" + eventID
	}
	return string(action) + ":" + referredID
}

// AttributionContext carries the optional subject of a qualifying action.
type AttributionContext struct {
	EventID  string `json:"event_id,omitempty"`
	VenueID  string `json:"venue_id,omitempty"`
	TicketID string `json:"ticket_id,omitempty"`
}

// Attribution is the result of a referral attempt.
type Attribution struct {
	Credited   bool   `json:"credited"`
	Reason     string `json:"reason,omitempty"`
	ReferrerID string `json:"referrer_id,omitempty"`
	Points     int    `json:"points,omitempty"`
	Total      int    `json:"total_points,omitempty"`
}
