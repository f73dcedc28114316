package cmd

import (
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"nightlife-core/config"
	"nightlife-core/internal/handlers"
	"nightlife-core/internal/services"
	"nightlife-core/internal/store"
	_ "nightlife-core/migrations"
	"nightlife-core/monitoring"
	"nightlife-core/security"
	"nightlife-core/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go/v7"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	setupLogger(cfg)

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}

	// Notification channels
	var publishers []services.Publisher
	if cfg.PubNubPublishKey != "" {
		pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUserID))
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		publishers = append(publishers, services.NewRealtimePublisher(pubnub.NewPubNub(pnConfig)))
	} else {
		slog.Warn("pubnub not configured, realtime notifications disabled")
	}
	if cfg.MailerSendAPIKey != "" {
		publishers = append(publishers, services.NewEmailPublisher(cfg.MailerSendAPIKey, cfg.MailerSendFromName, cfg.MailerSendFromEmail))
	} else {
		slog.Warn("mailersend not configured, email notifications disabled")
	}

	// Initialize services
	st := store.NewPocketBase(app)
	notifications := services.NewNotificationService(st, cfg.NotificationTimeout, publishers...)
	promoterService := services.NewPromoterService(st, cfg.Program.Tiers)
	referralService := services.NewReferralService(st, cfg.Program, promoterService)
	inventoryService := services.NewInventoryService(st)
	ticketService := services.NewTicketService(st, inventoryService, referralService, notifications)
	reservationService := services.NewReservationService(st, notifications)
	checkinService := services.NewCheckinService(st)
	eventLock := services.NewEventLock(redisClient, cfg.WebhookLockTTL, cfg.WebhookProcessedTTL)
	dispatcher := services.NewDispatcher(cfg.StripeWebhookSecret, ticketService, reservationService, eventLock)

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(dispatcher)
	checkinHandler := handlers.NewCheckinHandler(checkinService)
	referralHandler := handlers.NewReferralHandler(referralService)
	promoterHandler := handlers.NewPromoterHandler(promoterService, referralService)
	adminHandler := handlers.NewAdminHandler(st, reservationService)
	limiter := security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.IsDevelopment(),
	})

	if cfg.EnableMetrics {
		go serveMetrics(cfg.MetricsPort)
	}

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Payment provider
		e.Router.POST("/api/v1/payments/webhook", paymentHandler.StripeWebhook)

		// Door
		e.Router.POST("/api/v1/checkin", checkinHandler.CheckIn).BindFunc(limiter.Middleware("checkin"))

		// Referrals
		e.Router.POST("/api/v1/referrals/signup", referralHandler.Signup).BindFunc(limiter.Middleware("referrals"))
		e.Router.POST("/api/v1/referrals/rsvp", referralHandler.RSVP).BindFunc(limiter.Middleware("referrals"))

		// Promoters
		e.Router.GET("/api/v1/promoters/{userId}/tier", promoterHandler.GetTier)
		e.Router.GET("/api/v1/promoters/{userId}/referrals", promoterHandler.GetReferrals)
		e.Router.GET("/api/v1/promoters/{userId}/commission", promoterHandler.GetCommission)

		// Operator endpoints
		e.Router.GET("/api/v1/admin/conflicts", adminHandler.GetConflicts)
		e.Router.POST("/api/v1/vip/{id}/transition", adminHandler.TransitionReservation)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		notifications.Wait()
		if err := redisClient.Close(); err != nil {
			slog.Warn("failed to close redis", "error", err)
		}
		return e.Next()
	})

	// Serve on PORT when started without a subcommand
	if len(os.Args) == 1 {
		app.RootCmd.SetArgs([]string{"serve", "--http", "0.0.0.0:" + cfg.Port})
	}

	return app.Start()
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("metrics server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server stopped", "error", err)
	}
}
