package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nightlife-core/internal/status"
	"nightlife-core/internal/store"
	"nightlife-core/models"
	"nightlife-core/monitoring"
	"nightlife-core/utils"
)

const maxTransitionAttempts = 5

// errLostRace means the reservation changed between read and swap.
var errLostRace = errors.New("reservation changed concurrently")

type ReservationService struct {
	store        store.Store
	notifier     Notifier
	generateCode func() (string, error)
	now          func() time.Time
}

func NewReservationService(s store.Store, notifier Notifier) *ReservationService {
	return &ReservationService{
		store:        s,
		notifier:     notifier,
		generateCode: utils.GenerateConfirmationCode,
		now:          time.Now,
	}
}

// ConfirmDeposit moves a pending reservation to confirmed once its deposit is
// paid. Redelivery of the same payment returns the reservation unchanged.
func (s *ReservationService) ConfirmDeposit(ctx context.Context, reservationID, providerRef string) (*models.VIPReservation, error) {
	if reservationID == "" || providerRef == "" {
		return nil, fmt.Errorf("confirm deposit: missing reservation or payment: %w", status.ErrMalformedPayload)
	}

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		reservation, from, replay, err := s.confirmOnce(ctx, reservationID, providerRef)
		switch {
		case errors.Is(err, errLostRace), errors.Is(err, status.ErrCodeCollision):
			continue
		case errors.Is(err, status.ErrInvalidTransition):
			monitoring.TrackVIPTransition(string(from), string(models.VIPConfirmed), "invalid")
			slog.Error("deposit confirmation rejected", "reservation_id", reservationID, "provider_ref", providerRef, "error", err)
			return nil, err
		case err != nil:
			return nil, err
		}

		if replay {
			monitoring.TrackVIPTransition(string(models.VIPConfirmed), string(models.VIPConfirmed), "replay")
			return reservation, nil
		}

		monitoring.TrackVIPTransition(string(from), string(models.VIPConfirmed), "ok")
		if s.notifier != nil {
			s.notifier.ReservationConfirmed(ctx, reservation)
		}
		return reservation, nil
	}

	return nil, fmt.Errorf("confirm deposit %s: %w", reservationID, status.ErrContention)
}

func (s *ReservationService) confirmOnce(ctx context.Context, id, providerRef string) (out *models.VIPReservation, from models.VIPStatus, replay bool, err error) {
	key := models.VIPClaimKey(providerRef)
	err = s.store.Transact(ctx, func(tx store.Store) error {
		r, err := tx.GetVIPReservation(ctx, id)
		if err != nil {
			return err
		}
		from = r.Status

		if r.Status == models.VIPConfirmed && r.ProviderPaymentRef == providerRef {
			out, replay = r, true
			return nil
		}
		if !models.CanTransitionVIP(r.Status, models.VIPConfirmed) {
			return fmt.Errorf("reservation %s is %s: %w", id, r.Status, status.ErrInvalidTransition)
		}

		claimed, err := tx.Claim(ctx, key, models.ClaimScopeVIP)
		if err != nil {
			return err
		}
		if claimed {
			return fmt.Errorf("payment %s already applied: %w", providerRef, status.ErrInvalidTransition)
		}

		code := r.ConfirmationCode
		if code == "" {
			if code, err = s.generateCode(); err != nil {
				return err
			}
		}
		now := s.now()
		ok, err := tx.TransitionVIP(ctx, id, r.Status, models.VIPConfirmed, models.VIPChange{
			DepositPaid:        true,
			ConfirmationCode:   code,
			ProviderPaymentRef: providerRef,
			ConfirmedAt:        &now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		if err := tx.ResolveClaim(ctx, key, models.ClaimConfirmed, id); err != nil {
			return err
		}

		out, err = tx.GetVIPReservation(ctx, id)
		return err
	})
	return out, from, replay, err
}

// Transition applies an operator move such as completed, no_show or
// cancelled. Confirmation only happens through ConfirmDeposit. Requesting the
// current status is a no-op.
func (s *ReservationService) Transition(ctx context.Context, reservationID string, target models.VIPStatus) (*models.VIPReservation, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", target, status.ErrInvalidTransition)
	}

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		r, err := s.store.GetVIPReservation(ctx, reservationID)
		if err != nil {
			return nil, err
		}
		if r.Status == target {
			return r, nil
		}
		if target == models.VIPConfirmed || !models.CanTransitionVIP(r.Status, target) {
			monitoring.TrackVIPTransition(string(r.Status), string(target), "invalid")
			return nil, fmt.Errorf("reservation %s %s -> %s: %w", reservationID, r.Status, target, status.ErrInvalidTransition)
		}

		ok, err := s.store.TransitionVIP(ctx, reservationID, r.Status, target, models.VIPChange{})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		monitoring.TrackVIPTransition(string(r.Status), string(target), "ok")
		slog.Info("vip reservation transitioned", "reservation_id", reservationID, "from", r.Status, "to", target)
		return s.store.GetVIPReservation(ctx, reservationID)
	}

	return nil, fmt.Errorf("transition %s: %w", reservationID, status.ErrContention)
}
