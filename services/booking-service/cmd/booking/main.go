package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/Leis4/parkshare-ru-part1/pkg/config"
	"github.com/Leis4/parkshare-ru-part1/pkg/db"
	"github.com/Leis4/parkshare-ru-part1/pkg/mq"
	"github.com/Leis4/parkshare-ru-part1/pkg/obs"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/consumer"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/events"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/gateway"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/handlers"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/pricing"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/realtime"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/repository"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/repository/memory"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/repository/postgres"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/service"
)

type Cfg struct {
	config.App

	// empty runs on the in-memory store
	PGBookingDSN string `envconfig:"PG_BOOKING_DSN"`
	HTTPAddr     string `envconfig:"BOOKING_HTTP_ADDR" default:":8080"`
	LogSQL       bool   `envconfig:"LOG_SQL" default:"false"`

	// RabbitMQ: booking.* / payment.* events out, relayed webhooks in
	PublishEvents   bool   `envconfig:"PUBLISH_EVENTS" default:"true"`
	BookingExchange string `envconfig:"BOOKING_EXCHANGE" default:"booking.exchange"`
	WebhookQueue    string `envconfig:"BOOKING_WEBHOOK_QUEUE" default:"booking.webhook.q"`
	// direct | relay
	WebhookMode string `envconfig:"WEBHOOK_MODE" default:"direct"`

	PaymentProvider       string        `envconfig:"PAYMENT_PROVIDER" default:"yookassa"`
	GatewayTimeout        time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"15s"`
	OmisePublicKey        string        `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey        string        `envconfig:"OMISE_SECRET_KEY"`
	OmiseWebhookSecret    string        `envconfig:"OMISE_WEBHOOK_SECRET"`
	OmiseSourceType       string        `envconfig:"OMISE_SOURCE_TYPE" default:"mobile_banking_kbank"`
	YooKassaShopID        string        `envconfig:"YOOKASSA_SHOP_ID"`
	YooKassaSecretKey     string        `envconfig:"YOOKASSA_SECRET_KEY"`
	YooKassaWebhookSecret string        `envconfig:"YOOKASSA_WEBHOOK_SECRET"`
	YooKassaBaseURL       string        `envconfig:"YOOKASSA_BASE_URL" default:"https://api.yookassa.ru/v3"`

	Currency          string          `envconfig:"CURRENCY" default:"RUB"`
	CommissionPercent decimal.Decimal `envconfig:"COMMISSION_PERCENT" default:"10"`
	PaymentWindow     time.Duration   `envconfig:"PAYMENT_WINDOW" default:"15m"`
	PaymentLeadTime   time.Duration   `envconfig:"PAYMENT_LEAD_TIME" default:"0s"`
	ReturnURL         string          `envconfig:"PAYMENT_RETURN_URL" default:"http://localhost:8080/payments/return"`
	StalePaymentAfter time.Duration   `envconfig:"STALE_PAYMENT_AFTER" default:"15m"`
	SweepInterval     time.Duration   `envconfig:"SWEEP_INTERVAL" default:"10m"`
	SweepBatch        int             `envconfig:"SWEEP_BATCH" default:"100"`
	MaxRefundAttempts int             `envconfig:"MAX_REFUND_ATTEMPTS" default:"5"`

	// AI pricing service; empty disables dynamic pricing
	PricingURL     string        `envconfig:"PRICING_URL"`
	PricingTimeout time.Duration `envconfig:"PRICING_TIMEOUT" default:"2s"`
}

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func main() {
	var cfg Cfg
	must(0, config.Load(&cfg))
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer := must(obs.InitTracer(ctx, obs.TracerOptions{
		ServiceName: "booking-service",
		Version:     cfg.Version,
		Env:         cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
	}))

	// DB
	var store repository.Store
	if cfg.PGBookingDSN == "" {
		log.Println("[booking] PG_BOOKING_DSN not set, using the in-memory store")
		store = memory.New()
	} else {
		gdb := must(db.Open(cfg.PGBookingDSN, db.Options{LogSQL: cfg.LogSQL}))
		pg := postgres.NewStore(gdb)
		must(0, pg.Migrate(ctx))
		store = pg
	}

	// events go to websocket clients and, when enabled, to RabbitMQ
	hub := realtime.NewHub(256)
	go hub.Run(ctx)
	pubs := events.Multi{hub}
	var bookingPub *mq.Publisher
	if cfg.PublishEvents {
		bookingPub = must(mq.NewPublisher(cfg.RabbitURL, cfg.BookingExchange, "booking-service"))
		defer bookingPub.Close()
		pubs = append(pubs, bookingPub)
	}

	gw := must(gateway.New(gateway.Config{
		Provider: domain.Provider(cfg.PaymentProvider),
		Timeout:  cfg.GatewayTimeout,
		Omise: gateway.OmiseConfig{
			PublicKey:     cfg.OmisePublicKey,
			SecretKey:     cfg.OmiseSecretKey,
			WebhookSecret: cfg.OmiseWebhookSecret,
			SourceType:    cfg.OmiseSourceType,
		},
		YooKassa: gateway.YooKassaConfig{
			ShopID:        cfg.YooKassaShopID,
			SecretKey:     cfg.YooKassaSecretKey,
			WebhookSecret: cfg.YooKassaWebhookSecret,
			BaseURL:       cfg.YooKassaBaseURL,
		},
	}))

	var rec pricing.Recommender
	if cfg.PricingURL != "" {
		rec = pricing.NewHTTPRecommender(cfg.PricingURL, cfg.PricingTimeout)
	}

	deps := service.Deps{Store: store, Publisher: pubs, Recommender: rec}
	waitlist := service.NewWaitlistNotifier(deps)
	deps.Waitlist = waitlist
	scfg := service.Config{
		Currency:          cfg.Currency,
		CommissionPercent: cfg.CommissionPercent,
		PaymentWindow:     cfg.PaymentWindow,
		PaymentLeadTime:   cfg.PaymentLeadTime,
		ReturnURL:         cfg.ReturnURL,
		StalePaymentAfter: cfg.StalePaymentAfter,
		SweepInterval:     cfg.SweepInterval,
		SweepBatch:        cfg.SweepBatch,
		MaxRefundAttempts: cfg.MaxRefundAttempts,
	}
	bookings := service.NewBookingSvc(deps, scfg)
	payments := service.NewPaymentSvc(deps, gw, bookings, scfg)
	go service.NewSweeper(deps, bookings, payments, scfg).Run(ctx)

	var sink handlers.WebhookSink = handlers.DirectSink{Payments: payments}
	if cfg.WebhookMode == "relay" {
		if bookingPub == nil {
			log.Fatal("[booking] WEBHOOK_MODE=relay needs PUBLISH_EVENTS=true")
		}
		sink = handlers.RelaySink{Pub: bookingPub}
		webhookCons := must(mq.NewConsumer(cfg.RabbitURL, cfg.BookingExchange, cfg.WebhookQueue, []string{events.RKPaymentWebhook}, 8))
		defer webhookCons.Close()
		must(0, consumer.NewWebhookConsumer(payments, webhookCons).Run(ctx))
		log.Println("[booking] consumer started (payment.webhook)")
	}

	r := handlers.NewRouter(handlers.Deps{
		Bookings:  bookings,
		Payments:  payments,
		Spots:     service.NewSpotSvc(store),
		Waitlist:  waitlist,
		Gateway:   gw,
		Sink:      sink,
		Hub:       hub,
		JWTSecret: cfg.JWTSecret,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Printf("[booking] HTTP listening on %s (provider=%s webhook=%s)", cfg.HTTPAddr, gw.Provider(), cfg.WebhookMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Printf("[booking] http shutdown: %v", err)
	}
	if err := shutdownTracer(sctx); err != nil {
		log.Printf("[booking] tracer shutdown: %v", err)
	}
	log.Println("[booking] stopped")
}
