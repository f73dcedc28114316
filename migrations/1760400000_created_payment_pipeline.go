package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		events := core.NewBaseCollection("events")
		events.Fields.Add(
			&core.TextField{Name: "name", Required: true},
			&core.TextField{Name: "venue_id", Required: true},
			&core.BoolField{Name: "unlimited"},
			&core.NumberField{Name: "ticket_count", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.NumberField{Name: "tickets_sold", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		events.AddIndex("idx_events_venue", false, "venue_id", "")
		if err := app.Save(events); err != nil {
			return err
		}

		tickets := core.NewBaseCollection("tickets")
		tickets.Fields.Add(
			&core.TextField{Name: "user_id", Required: true},
			&core.TextField{Name: "event_id", Required: true},
			&core.NumberField{Name: "quantity", OnlyInt: true, Min: types.Pointer(1.0)},
			&core.BoolField{Name: "is_paid"},
			&core.NumberField{Name: "amount_paid", Min: types.Pointer(0.0)},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"pending", "confirmed", "cancelled", "refunded"},
			},
			&core.TextField{Name: "confirmation_code", Required: true, Max: 16},
			&core.TextField{Name: "referred_by_code"},
			&core.TextField{Name: "provider_payment_ref"},
			&core.BoolField{Name: "checked_in"},
			&core.DateField{Name: "checked_in_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		tickets.AddIndex("idx_tickets_confirmation_code", true, "confirmation_code", "")
		tickets.AddIndex("idx_tickets_provider_payment_ref", true, "provider_payment_ref", "provider_payment_ref != ''")
		tickets.AddIndex("idx_tickets_event", false, "event_id", "")
		if err := app.Save(tickets); err != nil {
			return err
		}

		reservations := core.NewBaseCollection("vip_reservations")
		reservations.Fields.Add(
			&core.TextField{Name: "venue_id", Required: true},
			&core.TextField{Name: "package_id"},
			&core.TextField{Name: "user_id"},
			&core.TextField{Name: "guest_name"},
			&core.EmailField{Name: "guest_email"},
			&core.TextField{Name: "guest_phone"},
			&core.NumberField{Name: "party_size", OnlyInt: true, Min: types.Pointer(1.0)},
			&core.NumberField{Name: "min_spend", Min: types.Pointer(0.0)},
			&core.NumberField{Name: "deposit_amount", Min: types.Pointer(0.0)},
			&core.BoolField{Name: "deposit_paid"},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"pending", "confirmed", "cancelled", "completed", "no_show"},
			},
			&core.TextField{Name: "confirmation_code", Max: 16},
			&core.TextField{Name: "provider_payment_ref"},
			&core.DateField{Name: "confirmed_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		reservations.AddIndex("idx_vip_confirmation_code", true, "confirmation_code", "confirmation_code != ''")
		if err := app.Save(reservations); err != nil {
			return err
		}

		referrals := core.NewBaseCollection("referrals")
		referrals.Fields.Add(
			&core.TextField{Name: "referrer_id", Required: true},
			&core.TextField{Name: "referred_id", Required: true},
			&core.SelectField{Name: "action", Required: true, MaxSelect: 1, Values: []string{"signup", "rsvp"}},
			&core.TextField{Name: "event_id"},
			&core.TextField{Name: "venue_id"},
			&core.TextField{Name: "ticket_id"},
			&core.NumberField{Name: "points_awarded", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.TextField{Name: "dedupe_key", Required: true},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		referrals.AddIndex("idx_referrals_dedupe_key", true, "dedupe_key", "")
		referrals.AddIndex("idx_referrals_referrer", false, "referrer_id", "")
		if err := app.Save(referrals); err != nil {
			return err
		}

		claims := core.NewBaseCollection("payment_claims")
		claims.Fields.Add(
			&core.TextField{Name: "key", Required: true},
			&core.TextField{Name: "scope"},
			&core.SelectField{Name: "outcome", MaxSelect: 1, Values: []string{"processing", "issued", "confirmed", "conflict"}},
			&core.TextField{Name: "subject_id"},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		claims.AddIndex("idx_payment_claims_key", true, "key", "")
		if err := app.Save(claims); err != nil {
			return err
		}

		conflicts := core.NewBaseCollection("payment_conflicts")
		conflicts.Fields.Add(
			&core.TextField{Name: "provider_ref", Required: true},
			&core.TextField{Name: "event_id"},
			&core.TextField{Name: "user_id"},
			&core.NumberField{Name: "quantity", OnlyInt: true},
			&core.NumberField{Name: "amount"},
			&core.TextField{Name: "reason"},
			&core.BoolField{Name: "resolved"},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		if err := app.Save(conflicts); err != nil {
			return err
		}

		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}
		users.Fields.Add(
			&core.TextField{Name: "referral_code", Max: 32},
			&core.NumberField{Name: "referral_points", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.TextField{Name: "promoter_tier", Max: 32},
			&core.NumberField{Name: "commission_rate", Min: types.Pointer(0.0), Max: types.Pointer(1.0)},
			&core.SelectField{Name: "role", MaxSelect: 1, Values: []string{"guest", "promoter", "operator"}},
		)
		users.AddIndex("idx_users_referral_code", true, "referral_code", "referral_code != ''")
		return app.Save(users)
	}, func(app core.App) error {
		for _, name := range []string{"payment_conflicts", "payment_claims", "referrals", "vip_reservations", "tickets", "events"} {
			collection, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				return err
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}

		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}
		users.RemoveIndex("idx_users_referral_code")
		for _, field := range []string{"referral_code", "referral_points", "promoter_tier", "commission_rate", "role"} {
			users.Fields.RemoveByName(field)
		}
		return app.Save(users)
	})
}
