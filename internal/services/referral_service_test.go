package services

import (
	"context"
	"sync"
	"testing"

	"nightlife-core/internal/status"
	"nightlife-core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttribute_SignupCredited(t *testing.T) {
	f := newFixture()
	f.store.PutUser(models.User{ID: "promoter", ReferralCode: "PROMO1"})
	ctx := context.Background()

	attr, err := f.referrals.RecordSignupReferral(ctx, " PROMO1 ", "newbie")
	require.NoError(t, err)

	assert.True(t, attr.Credited)
	assert.Equal(t, "promoter", attr.ReferrerID)
	assert.Equal(t, 50, attr.Points)
	assert.Equal(t, 50, attr.Total)

	promoter, err := f.store.GetUser(ctx, "promoter")
	require.NoError(t, err)
	assert.Equal(t, 50, promoter.ReferralPoints)
	assert.Equal(t, models.TierBronze, promoter.PromoterTier)
}

func TestAttribute_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		referred string
		action   models.ReferralAction
		actx     models.AttributionContext
		reason   string
	}{
		{"unknown code", "NOPE", "newbie", models.ActionSignup, models.AttributionContext{}, models.ReasonInvalidCode},
		{"empty code", "", "newbie", models.ActionSignup, models.AttributionContext{}, models.ReasonInvalidCode},
		{"self referral", "PROMO1", "promoter", models.ActionSignup, models.AttributionContext{}, models.ReasonSelfReferral},
		{"self rsvp", "PROMO1", "promoter", models.ActionRSVP, models.AttributionContext{EventID: "ev1"}, models.ReasonSelfReferral},
		{"rsvp without event", "PROMO1", "newbie", models.ActionRSVP, models.AttributionContext{}, models.ReasonMissingEvent},
		{"unknown action", "PROMO1", "newbie", models.ReferralAction("share"), models.AttributionContext{}, models.ReasonInvalidAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.store.PutUser(models.User{ID: "promoter", ReferralCode: "PROMO1"})
			ctx := context.Background()

			attr, err := f.referrals.Attribute(ctx, tt.code, tt.referred, tt.action, tt.actx)
			require.NoError(t, err)
			assert.False(t, attr.Credited)
			assert.Equal(t, tt.reason, attr.Reason)

			promoter, err := f.store.GetUser(ctx, "promoter")
			require.NoError(t, err)
			assert.Zero(t, promoter.ReferralPoints)
		})
	}
}

func TestAttribute_DuplicateSignup(t *testing.T) {
	f := newFixture()
	f.store.PutUser(models.User{ID: "promoter", ReferralCode: "PROMO1"})
	f.store.PutUser(models.User{ID: "other", ReferralCode: "OTHER1"})
	ctx := context.Background()

	_, err := f.referrals.RecordSignupReferral(ctx, "PROMO1", "newbie")
	require.NoError(t, err)

	attr, err := f.referrals.RecordSignupReferral(ctx, "OTHER1", "newbie")
	require.ErrorIs(t, err, status.ErrInvalidReferral)
	assert.Equal(t, models.ReasonDuplicate, attr.Reason)

	other, err := f.store.GetUser(ctx, "other")
	require.NoError(t, err)
	assert.Zero(t, other.ReferralPoints)
}

func TestAttribute_RsvpRequiresHeldTicket(t *testing.T) {
	f := newFixture()
	f.store.PutUser(models.User{ID: "promoter", ReferralCode: "PROMO1"})
	f.store.PutEvent(models.Event{ID: "ev1", VenueID: "v1"})
	f.store.PutEvent(models.Event{ID: "ev2", VenueID: "v1"})
	ctx := context.Background()

	mine := putTicket(t, f.store, "guest", "ev1")
	theirs := putTicket(t, f.store, "other", "ev1")
	cancelled := putTicket(t, f.store, "guest", "ev2")
	cancelled.Status = models.TicketCancelled
	f.store.PutTicket(*cancelled)

	tests := map[string]models.AttributionContext{
		"no ticket":        {EventID: "ev1"},
		"unknown ticket":   {EventID: "ev1", TicketID: "nope"},
		"someone else's":   {EventID: "ev1", TicketID: theirs.ID},
		"different event":  {EventID: "fake-event", TicketID: mine.ID},
		"cancelled ticket": {EventID: "ev2", TicketID: cancelled.ID},
	}
	for name, actx := range tests {
		t.Run(name, func(t *testing.T) {
			attr, err := f.referrals.RecordRsvpReferral(ctx, "PROMO1", "guest", actx)
			require.ErrorIs(t, err, status.ErrInvalidReferral)
			assert.Equal(t, models.ReasonInvalidTicket, attr.Reason)
		})
	}

	promoter, err := f.store.GetUser(ctx, "promoter")
	require.NoError(t, err)
	assert.Zero(t, promoter.ReferralPoints)

	attr, err := f.referrals.RecordRsvpReferral(ctx, "PROMO1", "guest", models.AttributionContext{EventID: "ev1", TicketID: mine.ID})
	require.NoError(t, err)
	assert.Equal(t, 25, attr.Total)
}

func TestAttribute_RsvpExactlyOnce(t *testing.T) {
	f := newFixture()
	f.store.PutUser(models.User{ID: "promoter", ReferralCode: "PROMO1"})
	f.store.PutEvent(models.Event{ID: "ev1", VenueID: "v1"})
	f.store.PutEvent(models.Event{ID: "ev2", VenueID: "v2"})
	ctx := context.Background()
	actx := models.AttributionContext{EventID: "ev1", TicketID: putTicket(t, f.store, "guest", "ev1").ID}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		credited int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attr, err := f.referrals.Attribute(ctx, "PROMO1", "guest", models.ActionRSVP, actx)
			if !assert.NoError(t, err) {
				return
			}
			if attr.Credited {
				mu.Lock()
				credited++
				mu.Unlock()
			} else {
				assert.Equal(t, models.ReasonDuplicate, attr.Reason)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, credited)
	promoter, err := f.store.GetUser(ctx, "promoter")
	require.NoError(t, err)
	assert.Equal(t, 25, promoter.ReferralPoints)

	refs, err := f.store.ListReferralsByReferrer(ctx, "promoter", 0)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "v1", refs[0].VenueID)

	// another event is a new qualifying action
	second := models.AttributionContext{EventID: "ev2", TicketID: putTicket(t, f.store, "guest", "ev2").ID}
	attr, err := f.referrals.RecordRsvpReferral(ctx, "PROMO1", "guest", second)
	require.NoError(t, err)
	assert.Equal(t, 50, attr.Total)
}

func TestAttribute_ConcurrentReferralsKeepEveryPoint(t *testing.T) {
	f := newFixture()
	f.store.PutUser(models.User{ID: "promoter", ReferralCode: "PROMO1"})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.referrals.RecordSignupReferral(ctx, "PROMO1", "user-"+string(rune('a'+i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	promoter, err := f.store.GetUser(ctx, "promoter")
	require.NoError(t, err)
	assert.Equal(t, 1500, promoter.ReferralPoints)
	assert.Equal(t, models.TierSilver, promoter.PromoterTier)
}

func TestAttribute_PromotesAtThreshold(t *testing.T) {
	f := newFixture()
	f.store.PutUser(models.User{ID: "promoter", ReferralCode: "PROMO1", ReferralPoints: 1975, PromoterTier: models.TierSilver})
	f.store.PutEvent(models.Event{ID: "ev1", VenueID: "v1"})
	ctx := context.Background()

	actx := models.AttributionContext{EventID: "ev1", TicketID: putTicket(t, f.store, "guest", "ev1").ID}
	_, err := f.referrals.RecordRsvpReferral(ctx, "PROMO1", "guest", actx)
	require.NoError(t, err)

	promoter, err := f.store.GetUser(ctx, "promoter")
	require.NoError(t, err)
	assert.Equal(t, 2000, promoter.ReferralPoints)
	assert.Equal(t, models.TierGold, promoter.PromoterTier)
	assert.Equal(t, "0.15", promoter.CommissionRate.String())
}

func TestListReferrals(t *testing.T) {
	f := newFixture()
	f.store.PutUser(models.User{ID: "promoter", ReferralCode: "PROMO1"})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := f.referrals.RecordSignupReferral(ctx, "PROMO1", id)
		require.NoError(t, err)
	}

	refs, err := f.referrals.ListReferrals(ctx, "promoter", 2)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}
