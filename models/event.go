package models

// Event is the inventory-relevant slice of an event row.
type Event struct {
	ID          string `json:"id"`
	VenueID     string `json:"venue_id"`
	Name        string `json:"name"`
	TicketCount *int   `json:"ticket_count,omitempty"` // nil means unlimited
	TicketsSold int    `json:"tickets_sold"`
}

// Unlimited reports whether the event has no capacity limit. A zero count is
// a real limit and means nothing can be sold.
func (e *Event) Unlimited() bool {
	return e.TicketCount == nil
}

// Remaining returns the unsold capacity, or -1 for unlimited events.
func (e *Event) Remaining() int {
	if e.Unlimited() {
		return -1
	}
	if left := *e.TicketCount - e.TicketsSold; left > 0 {
		return left
	}
	return 0
}

// InventoryReservation is the outcome of an inventory reserve call.
type InventoryReservation struct {
	OK        bool `json:"ok"`
	Remaining int  `json:"remaining"` // -1 for unlimited events
}
