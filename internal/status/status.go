package status

import "errors"

var (
	ErrAuthenticity      = errors.New("webhook: signature verification failed")
	ErrMalformedPayload  = errors.New("webhook: malformed payload")
	ErrOversell          = errors.New("inventory: event sold out")
	ErrInvalidTransition = errors.New("reservation: invalid status transition")
	ErrInvalidReferral   = errors.New("referral: not credited")
	ErrTicketNotValid    = errors.New("ticket: not redeemable")
	ErrWrongVenue        = errors.New("ticket: belongs to another venue")

	ErrNotFound      = errors.New("store: record not found")
	ErrDuplicate     = errors.New("store: unique constraint violated")
	ErrCodeCollision = errors.New("store: confirmation code already in use")
	ErrStore         = errors.New("store: operation failed")
	ErrContention    = errors.New("store: too many concurrent updates")
)
