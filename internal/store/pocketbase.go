package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"nightlife-core/internal/status"
	"nightlife-core/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
)

const (
	collEvents       = "events"
	collTickets      = "tickets"
	collReservations = "vip_reservations"
	collReferrals    = "referrals"
	collClaims       = "payment_claims"
	collConflicts    = "payment_conflicts"
	collUsers        = "users"
)

// PocketBase is the Store backed by the application's SQLite database.
// Counters are mutated with single guarded UPDATE statements; uniqueness is
// enforced by the collection indexes created in migrations.
type PocketBase struct {
	app core.App
}

func NewPocketBase(app core.App) *PocketBase {
	return &PocketBase{app: app}
}

func (s *PocketBase) Transact(ctx context.Context, fn func(tx Store) error) error {
	return s.app.RunInTransaction(func(txApp core.App) error {
		return fn(&PocketBase{app: txApp})
	})
}

func (s *PocketBase) Claim(ctx context.Context, key string, scope models.ClaimScope) (bool, error) {
	record, err := s.newRecord(collClaims)
	if err != nil {
		return false, err
	}
	record.Set("key", key)
	record.Set("scope", string(scope))
	record.Set("outcome", string(models.ClaimProcessing))

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		if _, dup := uniqueViolation(err); dup {
			return true, nil
		}
		return false, storeErr("claim "+key, err)
	}
	return false, nil
}

func (s *PocketBase) GetClaim(ctx context.Context, key string) (*models.Claim, error) {
	record, err := s.app.FindFirstRecordByData(collClaims, "key", key)
	if err != nil {
		return nil, lookupErr("claim "+key, err)
	}
	return &models.Claim{
		Key:       record.GetString("key"),
		Scope:     models.ClaimScope(record.GetString("scope")),
		Outcome:   models.ClaimOutcome(record.GetString("outcome")),
		SubjectID: record.GetString("subject_id"),
		CreatedAt: record.GetDateTime("created").Time(),
	}, nil
}

func (s *PocketBase) ResolveClaim(ctx context.Context, key string, outcome models.ClaimOutcome, subjectID string) error {
	res, err := s.app.DB().Update(collClaims,
		dbx.Params{"outcome": string(outcome), "subject_id": subjectID},
		dbx.HashExp{"key": key},
	).WithContext(ctx).Execute()
	if err != nil {
		return storeErr("resolve claim "+key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("claim %s: %w", key, status.ErrNotFound)
	}
	return nil
}

func (s *PocketBase) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	record, err := s.app.FindRecordById(collEvents, id)
	if err != nil {
		return nil, lookupErr("event "+id, err)
	}
	return eventFromRecord(record), nil
}

type inventoryRow struct {
	Unlimited   bool `db:"unlimited"`
	TicketCount int  `db:"ticket_count"`
	TicketsSold int  `db:"tickets_sold"`
}

func (s *PocketBase) ReserveInventory(ctx context.Context, eventID string, quantity int) (*models.InventoryReservation, error) {
	var row inventoryRow
	err := s.app.DB().NewQuery(`
		UPDATE events
		SET tickets_sold = tickets_sold + {:qty}
		WHERE id = {:id}
		  AND (unlimited = TRUE OR tickets_sold + {:qty} <= ticket_count)
		RETURNING unlimited, ticket_count, tickets_sold`).
		WithContext(ctx).
		Bind(dbx.Params{"id": eventID, "qty": quantity}).
		One(&row)

	switch {
	case err == nil:
		return &models.InventoryReservation{OK: true, Remaining: remaining(row)}, nil
	case errors.Is(err, sql.ErrNoRows):
		// Either the event is missing or the guard rejected the increment.
		event, lookup := s.GetEvent(ctx, eventID)
		if lookup != nil {
			return nil, lookup
		}
		return &models.InventoryReservation{OK: false, Remaining: event.Remaining()}, nil
	default:
		return nil, storeErr("reserve inventory "+eventID, err)
	}
}

func remaining(row inventoryRow) int {
	if row.Unlimited {
		return -1
	}
	if left := row.TicketCount - row.TicketsSold; left > 0 {
		return left
	}
	return 0
}

func (s *PocketBase) InsertTicket(ctx context.Context, t *models.Ticket) error {
	record, err := s.newRecord(collTickets)
	if err != nil {
		return err
	}
	record.Set("user_id", t.UserID)
	record.Set("event_id", t.EventID)
	record.Set("quantity", t.Quantity)
	record.Set("is_paid", t.IsPaid)
	record.Set("amount_paid", t.AmountPaid.InexactFloat64())
	record.Set("status", string(t.Status))
	record.Set("confirmation_code", t.ConfirmationCode)
	record.Set("referred_by_code", t.ReferredByCode)
	record.Set("provider_payment_ref", t.ProviderPaymentRef)
	record.Set("checked_in", t.CheckedIn)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return insertErr("ticket", err)
	}

	t.ID = record.Id
	t.CreatedAt = record.GetDateTime("created").Time()
	return nil
}

func (s *PocketBase) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	record, err := s.app.FindRecordById(collTickets, id)
	if err != nil {
		return nil, lookupErr("ticket "+id, err)
	}
	return ticketFromRecord(record), nil
}

func (s *PocketBase) FindTicketByPaymentRef(ctx context.Context, ref string) (*models.Ticket, error) {
	record, err := s.app.FindFirstRecordByData(collTickets, "provider_payment_ref", ref)
	if err != nil {
		return nil, lookupErr("ticket ref "+ref, err)
	}
	return ticketFromRecord(record), nil
}

func (s *PocketBase) FindTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	record, err := s.app.FindFirstRecordByData(collTickets, "confirmation_code", code)
	if err != nil {
		return nil, lookupErr("ticket code "+code, err)
	}
	return ticketFromRecord(record), nil
}

func (s *PocketBase) MarkTicketCheckedIn(ctx context.Context, id string, at time.Time) (bool, error) {
	checkedAt, err := types.ParseDateTime(at)
	if err != nil {
		return false, err
	}

	res, err := s.app.DB().Update(collTickets,
		dbx.Params{"checked_in": true, "checked_in_at": checkedAt.String()},
		dbx.And(dbx.HashExp{"id": id}, dbx.NewExp("checked_in = FALSE")),
	).WithContext(ctx).Execute()
	if err != nil {
		return false, storeErr("check in ticket "+id, err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		return true, nil
	}
	if _, err := s.GetTicket(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PocketBase) GetVIPReservation(ctx context.Context, id string) (*models.VIPReservation, error) {
	record, err := s.app.FindRecordById(collReservations, id)
	if err != nil {
		return nil, lookupErr("vip reservation "+id, err)
	}
	return reservationFromRecord(record), nil
}

func (s *PocketBase) TransitionVIP(ctx context.Context, id string, from, to models.VIPStatus, change models.VIPChange) (bool, error) {
	params := dbx.Params{"status": string(to)}
	if change.DepositPaid {
		params["deposit_paid"] = true
	}
	if change.ConfirmationCode != "" {
		params["confirmation_code"] = change.ConfirmationCode
	}
	if change.ProviderPaymentRef != "" {
		params["provider_payment_ref"] = change.ProviderPaymentRef
	}
	if change.ConfirmedAt != nil {
		confirmedAt, err := types.ParseDateTime(*change.ConfirmedAt)
		if err != nil {
			return false, err
		}
		params["confirmed_at"] = confirmedAt.String()
	}

	res, err := s.app.DB().Update(collReservations, params,
		dbx.HashExp{"id": id, "status": string(from)},
	).WithContext(ctx).Execute()
	if err != nil {
		if field, dup := uniqueViolation(err); dup && strings.Contains(field, "confirmation_code") {
			return false, fmt.Errorf("vip reservation %s: %w", id, status.ErrCodeCollision)
		}
		return false, storeErr("transition vip reservation "+id, err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		return true, nil
	}
	if _, err := s.GetVIPReservation(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PocketBase) GetUser(ctx context.Context, id string) (*models.User, error) {
	record, err := s.app.FindRecordById(collUsers, id)
	if err != nil {
		return nil, lookupErr("user "+id, err)
	}
	return userFromRecord(record), nil
}

func (s *PocketBase) FindUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	if code == "" {
		return nil, fmt.Errorf("referral code: %w", status.ErrNotFound)
	}
	record, err := s.app.FindFirstRecordByData(collUsers, "referral_code", code)
	if err != nil {
		return nil, lookupErr("referral code "+code, err)
	}
	return userFromRecord(record), nil
}

func (s *PocketBase) AddReferralPoints(ctx context.Context, userID string, points int) (int, error) {
	var total struct {
		Points int `db:"referral_points"`
	}
	err := s.app.DB().NewQuery(`
		UPDATE users
		SET referral_points = referral_points + {:points}
		WHERE id = {:id}
		RETURNING referral_points`).
		WithContext(ctx).
		Bind(dbx.Params{"id": userID, "points": points}).
		One(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("user %s: %w", userID, status.ErrNotFound)
	}
	if err != nil {
		return 0, storeErr("add referral points "+userID, err)
	}
	return total.Points, nil
}

func (s *PocketBase) SetPromoterTier(ctx context.Context, userID string, from, to models.Tier, rate decimal.Decimal) (bool, error) {
	res, err := s.app.DB().Update(collUsers,
		dbx.Params{"promoter_tier": string(to), "commission_rate": rate.InexactFloat64()},
		dbx.HashExp{"id": userID, "promoter_tier": string(from)},
	).WithContext(ctx).Execute()
	if err != nil {
		return false, storeErr("set promoter tier "+userID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PocketBase) InsertReferral(ctx context.Context, r *models.Referral) error {
	record, err := s.newRecord(collReferrals)
	if err != nil {
		return err
	}
	record.Set("referrer_id", r.ReferrerID)
	record.Set("referred_id", r.ReferredID)
	record.Set("action", string(r.Action))
	record.Set("event_id", r.EventID)
	record.Set("venue_id", r.VenueID)
	record.Set("ticket_id", r.TicketID)
	record.Set("points_awarded", r.PointsAwarded)
	record.Set("dedupe_key", r.DedupeKey)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return insertErr("referral", err)
	}

	r.ID = record.Id
	r.CreatedAt = record.GetDateTime("created").Time()
	return nil
}

func (s *PocketBase) ListReferralsByReferrer(ctx context.Context, referrerID string, limit int) ([]*models.Referral, error) {
	records, err := s.app.FindRecordsByFilter(collReferrals,
		"referrer_id = {:referrer}", "-created", limit, 0,
		dbx.Params{"referrer": referrerID},
	)
	if err != nil {
		return nil, storeErr("list referrals "+referrerID, err)
	}

	out := make([]*models.Referral, 0, len(records))
	for _, record := range records {
		out = append(out, &models.Referral{
			ID:            record.Id,
			ReferrerID:    record.GetString("referrer_id"),
			ReferredID:    record.GetString("referred_id"),
			Action:        models.ReferralAction(record.GetString("action")),
			EventID:       record.GetString("event_id"),
			VenueID:       record.GetString("venue_id"),
			TicketID:      record.GetString("ticket_id"),
			PointsAwarded: record.GetInt("points_awarded"),
			DedupeKey:     record.GetString("dedupe_key"),
			CreatedAt:     record.GetDateTime("created").Time(),
		})
	}
	return out, nil
}

func (s *PocketBase) InsertConflict(ctx context.Context, c *models.PaymentConflict) error {
	record, err := s.newRecord(collConflicts)
	if err != nil {
		return err
	}
	record.Set("provider_ref", c.ProviderRef)
	record.Set("event_id", c.EventID)
	record.Set("user_id", c.UserID)
	record.Set("quantity", c.Quantity)
	record.Set("amount", c.Amount.InexactFloat64())
	record.Set("reason", c.Reason)
	record.Set("resolved", c.Resolved)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return insertErr("payment conflict", err)
	}

	c.ID = record.Id
	c.CreatedAt = record.GetDateTime("created").Time()
	return nil
}

func (s *PocketBase) ListConflicts(ctx context.Context, unresolvedOnly bool, limit int) ([]*models.PaymentConflict, error) {
	filter := "id != ''"
	if unresolvedOnly {
		filter = "resolved = false"
	}

	records, err := s.app.FindRecordsByFilter(collConflicts, filter, "-created", limit, 0)
	if err != nil {
		return nil, storeErr("list payment conflicts", err)
	}

	out := make([]*models.PaymentConflict, 0, len(records))
	for _, record := range records {
		out = append(out, &models.PaymentConflict{
			ID:          record.Id,
			ProviderRef: record.GetString("provider_ref"),
			EventID:     record.GetString("event_id"),
			UserID:      record.GetString("user_id"),
			Quantity:    record.GetInt("quantity"),
			Amount:      decimal.NewFromFloat(record.GetFloat("amount")),
			Reason:      record.GetString("reason"),
			Resolved:    record.GetBool("resolved"),
			CreatedAt:   record.GetDateTime("created").Time(),
		})
	}
	return out, nil
}

func (s *PocketBase) newRecord(collection string) (*core.Record, error) {
	c, err := s.app.FindCachedCollectionByNameOrId(collection)
	if err != nil {
		return nil, storeErr("find collection "+collection, err)
	}
	return core.NewRecord(c), nil
}

func eventFromRecord(record *core.Record) *models.Event {
	e := &models.Event{
		ID:          record.Id,
		VenueID:     record.GetString("venue_id"),
		Name:        record.GetString("name"),
		TicketsSold: record.GetInt("tickets_sold"),
	}
	if !record.GetBool("unlimited") {
		count := record.GetInt("ticket_count")
		e.TicketCount = &count
	}
	return e
}

func ticketFromRecord(record *core.Record) *models.Ticket {
	t := &models.Ticket{
		ID:                 record.Id,
		UserID:             record.GetString("user_id"),
		EventID:            record.GetString("event_id"),
		Quantity:           record.GetInt("quantity"),
		IsPaid:             record.GetBool("is_paid"),
		AmountPaid:         decimal.NewFromFloat(record.GetFloat("amount_paid")),
		Status:             models.TicketStatus(record.GetString("status")),
		ConfirmationCode:   record.GetString("confirmation_code"),
		ReferredByCode:     record.GetString("referred_by_code"),
		ProviderPaymentRef: record.GetString("provider_payment_ref"),
		CheckedIn:          record.GetBool("checked_in"),
		CreatedAt:          record.GetDateTime("created").Time(),
	}
	if at := record.GetDateTime("checked_in_at"); !at.IsZero() {
		checkedIn := at.Time()
		t.CheckedInAt = &checkedIn
	}
	return t
}

func reservationFromRecord(record *core.Record) *models.VIPReservation {
	r := &models.VIPReservation{
		ID:                 record.Id,
		VenueID:            record.GetString("venue_id"),
		PackageID:          record.GetString("package_id"),
		UserID:             record.GetString("user_id"),
		GuestName:          record.GetString("guest_name"),
		GuestEmail:         record.GetString("guest_email"),
		GuestPhone:         record.GetString("guest_phone"),
		PartySize:          record.GetInt("party_size"),
		MinSpend:           decimal.NewFromFloat(record.GetFloat("min_spend")),
		DepositAmount:      decimal.NewFromFloat(record.GetFloat("deposit_amount")),
		DepositPaid:        record.GetBool("deposit_paid"),
		Status:             models.VIPStatus(record.GetString("status")),
		ConfirmationCode:   record.GetString("confirmation_code"),
		ProviderPaymentRef: record.GetString("provider_payment_ref"),
	}
	if at := record.GetDateTime("confirmed_at"); !at.IsZero() {
		confirmed := at.Time()
		r.ConfirmedAt = &confirmed
	}
	return r
}

func userFromRecord(record *core.Record) *models.User {
	return &models.User{
		ID:             record.Id,
		Name:           record.GetString("name"),
		Email:          record.Email(),
		ReferralCode:   record.GetString("referral_code"),
		ReferralPoints: record.GetInt("referral_points"),
		PromoterTier:   models.Tier(record.GetString("promoter_tier")),
		CommissionRate: decimal.NewFromFloat(record.GetFloat("commission_rate")),
	}
}

// uniqueViolation reports whether err comes from a unique index, either as
// PocketBase's normalized validation error or as the raw SQLite message, and
// names the offending field when it can.
func uniqueViolation(err error) (string, bool) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			var verr validation.Error
			if errors.As(ferr, &verr) && verr.Code() == "validation_not_unique" {
				return field, true
			}
		}
	}

	msg := err.Error()
	if i := strings.Index(msg, "UNIQUE constraint failed"); i >= 0 {
		return msg[i:], true
	}
	return "", false
}

func insertErr(what string, err error) error {
	field, dup := uniqueViolation(err)
	switch {
	case dup && strings.Contains(field, "confirmation_code"):
		return fmt.Errorf("%s: %w", what, status.ErrCodeCollision)
	case dup:
		return fmt.Errorf("%s %s: %w", what, field, status.ErrDuplicate)
	default:
		return storeErr("insert "+what, err)
	}
}

func lookupErr(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, status.ErrNotFound)
	}
	return storeErr("find "+what, err)
}

func storeErr(what string, err error) error {
	return fmt.Errorf("%s: %w: %v", what, status.ErrStore, err)
}
