// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"nightlife-core/internal/status"
	"nightlife-core/internal/store"
	"nightlife-core/models"
	"nightlife-core/utils"

	"github.com/shopspring/decimal"
)

// Memory is a mutex-guarded store.Store. A transaction holds the lock for its whole
// duration and restores a snapshot when fn fails, so it has the same
// all-or-nothing behaviour as the SQL store.
type Memory struct {
	mu   sync.Mutex
	data *memData
	now  func() time.Time
}

var (
	_ store.Store = (*Memory)(nil)
	_ store.Store = (*memTx)(nil)
)

func NewMemory() *Memory {
	return &Memory{data: newMemData(), now: time.Now}
}

type memData struct {
	claims            map[string]models.Claim
	events            map[string]models.Event
	tickets           map[string]models.Ticket
	ticketByRef       map[string]string
	ticketByCode      map[string]string
	reservations      map[string]models.VIPReservation
	reservationByCode map[string]string
	users             map[string]models.User
	userByCode        map[string]string
	referrals         map[string]models.Referral
	referralByKey     map[string]string
	conflicts         []models.PaymentConflict
}

func newMemData() *memData {
	return &memData{
		claims:            map[string]models.Claim{},
		events:            map[string]models.Event{},
		tickets:           map[string]models.Ticket{},
		ticketByRef:       map[string]string{},
		ticketByCode:      map[string]string{},
		reservations:      map[string]models.VIPReservation{},
		reservationByCode: map[string]string{},
		users:             map[string]models.User{},
		userByCode:        map[string]string{},
		referrals:         map[string]models.Referral{},
		referralByKey:     map[string]string{},
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.claims {
		c.claims[k] = v
	}
	for k, v := range d.events {
		c.events[k] = v
	}
	for k, v := range d.tickets {
		c.tickets[k] = v
	}
	for k, v := range d.ticketByRef {
		c.ticketByRef[k] = v
	}
	for k, v := range d.ticketByCode {
		c.ticketByCode[k] = v
	}
	for k, v := range d.reservations {
		c.reservations[k] = v
	}
	for k, v := range d.reservationByCode {
		c.reservationByCode[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.userByCode {
		c.userByCode[k] = v
	}
	for k, v := range d.referrals {
		c.referrals[k] = v
	}
	for k, v := range d.referralByKey {
		c.referralByKey[k] = v
	}
	c.conflicts = append([]models.PaymentConflict(nil), d.conflicts...)
	return c
}

// PutEvent seeds or replaces an event.
func (m *Memory) PutEvent(e models.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.TicketCount != nil {
		n := *e.TicketCount
		e.TicketCount = &n
	}
	m.data.events[e.ID] = e
}

// PutUser seeds or replaces a user.
func (m *Memory) PutUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data.users[u.ID]; ok && old.ReferralCode != "" {
		delete(m.data.userByCode, old.ReferralCode)
	}
	m.data.users[u.ID] = u
	if u.ReferralCode != "" {
		m.data.userByCode[u.ReferralCode] = u.ID
	}
}

// PutTicket seeds or replaces a ticket.
func (m *Memory) PutTicket(tk models.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data.tickets[tk.ID]; ok {
		delete(m.data.ticketByCode, old.ConfirmationCode)
		delete(m.data.ticketByRef, old.ProviderPaymentRef)
	}
	m.data.tickets[tk.ID] = tk
	m.data.ticketByCode[tk.ConfirmationCode] = tk.ID
	if tk.ProviderPaymentRef != "" {
		m.data.ticketByRef[tk.ProviderPaymentRef] = tk.ID
	}
}

// PutVIPReservation seeds or replaces a reservation.
func (m *Memory) PutVIPReservation(r models.VIPReservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.reservations[r.ID] = r
	if r.ConfirmationCode != "" {
		m.data.reservationByCode[r.ConfirmationCode] = r.ID
	}
}

func (m *Memory) tx() *memTx {
	return &memTx{d: m.data, now: m.now}
}

func (m *Memory) Transact(ctx context.Context, fn func(tx store.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(m.tx()); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (m *Memory) Claim(ctx context.Context, key string, scope models.ClaimScope) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().Claim(ctx, key, scope)
}

func (m *Memory) GetClaim(ctx context.Context, key string) (*models.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().GetClaim(ctx, key)
}

func (m *Memory) ResolveClaim(ctx context.Context, key string, outcome models.ClaimOutcome, subjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().ResolveClaim(ctx, key, outcome, subjectID)
}

func (m *Memory) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().GetEvent(ctx, id)
}

func (m *Memory) ReserveInventory(ctx context.Context, eventID string, quantity int) (*models.InventoryReservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().ReserveInventory(ctx, eventID, quantity)
}

func (m *Memory) InsertTicket(ctx context.Context, t *models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().InsertTicket(ctx, t)
}

func (m *Memory) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().GetTicket(ctx, id)
}

func (m *Memory) FindTicketByPaymentRef(ctx context.Context, ref string) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().FindTicketByPaymentRef(ctx, ref)
}

func (m *Memory) FindTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().FindTicketByCode(ctx, code)
}

func (m *Memory) MarkTicketCheckedIn(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().MarkTicketCheckedIn(ctx, id, at)
}

func (m *Memory) GetVIPReservation(ctx context.Context, id string) (*models.VIPReservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().GetVIPReservation(ctx, id)
}

func (m *Memory) TransitionVIP(ctx context.Context, id string, from, to models.VIPStatus, change models.VIPChange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().TransitionVIP(ctx, id, from, to, change)
}

func (m *Memory) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().GetUser(ctx, id)
}

func (m *Memory) FindUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().FindUserByReferralCode(ctx, code)
}

func (m *Memory) AddReferralPoints(ctx context.Context, userID string, points int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().AddReferralPoints(ctx, userID, points)
}

func (m *Memory) SetPromoterTier(ctx context.Context, userID string, from, to models.Tier, rate decimal.Decimal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().SetPromoterTier(ctx, userID, from, to, rate)
}

func (m *Memory) InsertReferral(ctx context.Context, r *models.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().InsertReferral(ctx, r)
}

func (m *Memory) ListReferralsByReferrer(ctx context.Context, referrerID string, limit int) ([]*models.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().ListReferralsByReferrer(ctx, referrerID, limit)
}

func (m *Memory) InsertConflict(ctx context.Context, c *models.PaymentConflict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().InsertConflict(ctx, c)
}

func (m *Memory) ListConflicts(ctx context.Context, unresolvedOnly bool, limit int) ([]*models.PaymentConflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().ListConflicts(ctx, unresolvedOnly, limit)
}

// memTx operates on memData with the Memory lock already held.
type memTx struct {
	d   *memData
	now func() time.Time
}

func (t *memTx) Transact(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

func (t *memTx) Claim(ctx context.Context, key string, scope models.ClaimScope) (bool, error) {
	if _, ok := t.d.claims[key]; ok {
		return true, nil
	}
	t.d.claims[key] = models.Claim{
		Key:       key,
		Scope:     scope,
		Outcome:   models.ClaimProcessing,
		CreatedAt: t.now(),
	}
	return false, nil
}

func (t *memTx) GetClaim(ctx context.Context, key string) (*models.Claim, error) {
	c, ok := t.d.claims[key]
	if !ok {
		return nil, fmt.Errorf("claim %s: %w", key, status.ErrNotFound)
	}
	return &c, nil
}

func (t *memTx) ResolveClaim(ctx context.Context, key string, outcome models.ClaimOutcome, subjectID string) error {
	c, ok := t.d.claims[key]
	if !ok {
		return fmt.Errorf("claim %s: %w", key, status.ErrNotFound)
	}
	c.Outcome = outcome
	c.SubjectID = subjectID
	t.d.claims[key] = c
	return nil
}

func (t *memTx) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	e, ok := t.d.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, status.ErrNotFound)
	}
	if e.TicketCount != nil {
		n := *e.TicketCount
		e.TicketCount = &n
	}
	return &e, nil
}

func (t *memTx) ReserveInventory(ctx context.Context, eventID string, quantity int) (*models.InventoryReservation, error) {
	e, ok := t.d.events[eventID]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", eventID, status.ErrNotFound)
	}
	if !e.Unlimited() && e.TicketsSold+quantity > *e.TicketCount {
		return &models.InventoryReservation{OK: false, Remaining: e.Remaining()}, nil
	}
	e.TicketsSold += quantity
	t.d.events[eventID] = e
	return &models.InventoryReservation{OK: true, Remaining: e.Remaining()}, nil
}

func (t *memTx) InsertTicket(ctx context.Context, tk *models.Ticket) error {
	if _, ok := t.d.ticketByCode[tk.ConfirmationCode]; ok {
		return fmt.Errorf("ticket code %s: %w", tk.ConfirmationCode, status.ErrCodeCollision)
	}
	if _, ok := t.d.ticketByRef[tk.ProviderPaymentRef]; ok && tk.ProviderPaymentRef != "" {
		return fmt.Errorf("ticket ref %s: %w", tk.ProviderPaymentRef, status.ErrDuplicate)
	}
	if tk.ID == "" {
		id, err := utils.GenerateID(15)
		if err != nil {
			return err
		}
		tk.ID = id
	}
	if tk.CreatedAt.IsZero() {
		tk.CreatedAt = t.now()
	}
	t.d.tickets[tk.ID] = *tk
	t.d.ticketByCode[tk.ConfirmationCode] = tk.ID
	if tk.ProviderPaymentRef != "" {
		t.d.ticketByRef[tk.ProviderPaymentRef] = tk.ID
	}
	return nil
}

func (t *memTx) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	tk, ok := t.d.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", id, status.ErrNotFound)
	}
	return &tk, nil
}

func (t *memTx) FindTicketByPaymentRef(ctx context.Context, ref string) (*models.Ticket, error) {
	id, ok := t.d.ticketByRef[ref]
	if !ok {
		return nil, fmt.Errorf("ticket ref %s: %w", ref, status.ErrNotFound)
	}
	return t.GetTicket(ctx, id)
}

func (t *memTx) FindTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	id, ok := t.d.ticketByCode[code]
	if !ok {
		return nil, fmt.Errorf("ticket code %s: %w", code, status.ErrNotFound)
	}
	return t.GetTicket(ctx, id)
}

func (t *memTx) MarkTicketCheckedIn(ctx context.Context, id string, at time.Time) (bool, error) {
	tk, ok := t.d.tickets[id]
	if !ok {
		return false, fmt.Errorf("ticket %s: %w", id, status.ErrNotFound)
	}
	if tk.CheckedIn {
		return false, nil
	}
	tk.CheckedIn = true
	tk.CheckedInAt = &at
	t.d.tickets[id] = tk
	return true, nil
}

func (t *memTx) GetVIPReservation(ctx context.Context, id string) (*models.VIPReservation, error) {
	r, ok := t.d.reservations[id]
	if !ok {
		return nil, fmt.Errorf("vip reservation %s: %w", id, status.ErrNotFound)
	}
	return &r, nil
}

func (t *memTx) TransitionVIP(ctx context.Context, id string, from, to models.VIPStatus, change models.VIPChange) (bool, error) {
	r, ok := t.d.reservations[id]
	if !ok {
		return false, fmt.Errorf("vip reservation %s: %w", id, status.ErrNotFound)
	}
	if r.Status != from {
		return false, nil
	}
	if code := change.ConfirmationCode; code != "" && code != r.ConfirmationCode {
		if _, taken := t.d.reservationByCode[code]; taken {
			return false, fmt.Errorf("vip code %s: %w", code, status.ErrCodeCollision)
		}
		delete(t.d.reservationByCode, r.ConfirmationCode)
		r.ConfirmationCode = code
		t.d.reservationByCode[code] = id
	}
	r.Status = to
	if change.DepositPaid {
		r.DepositPaid = true
	}
	if change.ProviderPaymentRef != "" {
		r.ProviderPaymentRef = change.ProviderPaymentRef
	}
	if change.ConfirmedAt != nil {
		at := *change.ConfirmedAt
		r.ConfirmedAt = &at
	}
	t.d.reservations[id] = r
	return true, nil
}

func (t *memTx) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, ok := t.d.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, status.ErrNotFound)
	}
	return &u, nil
}

func (t *memTx) FindUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	id, ok := t.d.userByCode[code]
	if !ok || code == "" {
		return nil, fmt.Errorf("referral code %s: %w", code, status.ErrNotFound)
	}
	return t.GetUser(ctx, id)
}

func (t *memTx) AddReferralPoints(ctx context.Context, userID string, points int) (int, error) {
	u, ok := t.d.users[userID]
	if !ok {
		return 0, fmt.Errorf("user %s: %w", userID, status.ErrNotFound)
	}
	u.ReferralPoints += points
	t.d.users[userID] = u
	return u.ReferralPoints, nil
}

func (t *memTx) SetPromoterTier(ctx context.Context, userID string, from, to models.Tier, rate decimal.Decimal) (bool, error) {
	u, ok := t.d.users[userID]
	if !ok {
		return false, fmt.Errorf("user %s: %w", userID, status.ErrNotFound)
	}
	if u.PromoterTier != from {
		return false, nil
	}
	u.PromoterTier = to
	u.CommissionRate = rate
	t.d.users[userID] = u
	return true, nil
}

func (t *memTx) InsertReferral(ctx context.Context, r *models.Referral) error {
	if _, ok := t.d.referralByKey[r.DedupeKey]; ok {
		return fmt.Errorf("referral %s: %w", r.DedupeKey, status.ErrDuplicate)
	}
	if r.ID == "" {
		id, err := utils.GenerateID(15)
		if err != nil {
			return err
		}
		r.ID = id
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = t.now()
	}
	t.d.referrals[r.ID] = *r
	t.d.referralByKey[r.DedupeKey] = r.ID
	return nil
}

func (t *memTx) ListReferralsByReferrer(ctx context.Context, referrerID string, limit int) ([]*models.Referral, error) {
	out := []*models.Referral{}
	for _, r := range t.d.referrals {
		if r.ReferrerID == referrerID {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) InsertConflict(ctx context.Context, c *models.PaymentConflict) error {
	if c.ID == "" {
		id, err := utils.GenerateID(15)
		if err != nil {
			return err
		}
		c.ID = id
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = t.now()
	}
	t.d.conflicts = append(t.d.conflicts, *c)
	return nil
}

func (t *memTx) ListConflicts(ctx context.Context, unresolvedOnly bool, limit int) ([]*models.PaymentConflict, error) {
	out := []*models.PaymentConflict{}
	for i := len(t.d.conflicts) - 1; i >= 0; i-- {
		c := t.d.conflicts[i]
		if unresolvedOnly && c.Resolved {
			continue
		}
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
