package services

import (
	"context"
	"fmt"

	"nightlife-core/internal/status"
	"nightlife-core/internal/store"
	"nightlife-core/models"
)

// InventoryService is the only writer of Event.TicketsSold.
type InventoryService struct {
	store store.Store
}

func NewInventoryService(s store.Store) *InventoryService {
	return &InventoryService{store: s}
}

// with binds the ledger to a running transaction.
func (s *InventoryService) with(tx store.Store) *InventoryService {
	return &InventoryService{store: tx}
}

// Reserve takes quantity seats from the event in one guarded update. When the
// event cannot hold them the reservation is returned with OK=false together
// with status.ErrOversell.
func (s *InventoryService) Reserve(ctx context.Context, eventID string, quantity int) (*models.InventoryReservation, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("reserve %d tickets: %w", quantity, status.ErrMalformedPayload)
	}

	res, err := s.store.ReserveInventory(ctx, eventID, quantity)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return res, fmt.Errorf("event %s: %w", eventID, status.ErrOversell)
	}
	return res, nil
}
