package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	paymentEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_events_total",
			Help: "Payment provider notifications by event type and outcome",
		},
		[]string{"type", "outcome"},
	)

	webhookDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_webhook_duration_seconds",
			Help:    "Time spent handling a payment provider notification",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	ticketIssuance = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_issuance_total",
			Help: "Ticket issuance attempts by outcome",
		},
		[]string{"outcome"},
	)

	oversellConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oversell_conflicts_total",
			Help: "Paid purchases rejected because the event was sold out",
		},
		[]string{"event_id"},
	)

	vipTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vip_reservation_transitions_total",
			Help: "VIP reservation transition attempts",
		},
		[]string{"from", "to", "result"},
	)

	referralAttributions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_attributions_total",
			Help: "Referral attribution attempts by action and result",
		},
		[]string{"action", "result"},
	)

	tierPromotions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promoter_tier_promotions_total",
			Help: "Promoter tier promotions by target tier",
		},
		[]string{"tier"},
	)

	notificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Failed fire-and-forget notifications by channel",
		},
		[]string{"channel"},
	)
)

func TrackPaymentEvent(eventType, outcome string, took time.Duration) {
	paymentEvents.WithLabelValues(eventType, outcome).Inc()
	webhookDuration.WithLabelValues(outcome).Observe(took.Seconds())
}

func TrackTicketIssuance(outcome string) {
	ticketIssuance.WithLabelValues(outcome).Inc()
}

func TrackOversell(eventID string) {
	oversellConflicts.WithLabelValues(eventID).Inc()
}

func TrackVIPTransition(from, to, result string) {
	vipTransitions.WithLabelValues(from, to, result).Inc()
}

func TrackReferral(action, result string) {
	referralAttributions.WithLabelValues(action, result).Inc()
}

func TrackTierPromotion(tier string) {
	tierPromotions.WithLabelValues(tier).Inc()
}

func TrackNotificationFailure(channel string) {
	notificationFailures.WithLabelValues(channel).Inc()
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
