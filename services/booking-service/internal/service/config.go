package service

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/events"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/pricing"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/repository"
)

// Config carries the engine settings. The zero value of a field means its default.
type Config struct {
	Currency          string
	CommissionPercent decimal.Decimal
	// PaymentWindow is how long a PENDING booking waits for payment.
	PaymentWindow time.Duration
	// PaymentLeadTime pulls the deadline to this long before start when that is earlier.
	PaymentLeadTime   time.Duration
	ReturnURL         string
	StalePaymentAfter time.Duration
	SweepInterval     time.Duration
	SweepTimeout      time.Duration
	SweepBatch        int
	MaxRefundAttempts int
}

func (c Config) withDefaults() Config {
	if c.Currency == "" {
		c.Currency = "RUB"
	}
	if c.PaymentWindow <= 0 {
		c.PaymentWindow = 15 * time.Minute
	}
	if c.StalePaymentAfter <= 0 {
		c.StalePaymentAfter = 15 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Minute
	}
	if c.SweepTimeout <= 0 {
		c.SweepTimeout = 2 * time.Minute
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = 100
	}
	if c.MaxRefundAttempts <= 0 {
		c.MaxRefundAttempts = 5
	}
	return c
}

// Deps are the collaborators shared by the services. Publisher, Waitlist and
// Recommender may be nil.
type Deps struct {
	Store       repository.Store
	Publisher   events.Publisher
	Waitlist    WaitlistSink
	Recommender pricing.Recommender
	Clock       func() time.Time
}

func (d Deps) clock() func() time.Time {
	if d.Clock != nil {
		return d.Clock
	}
	return func() time.Time { return time.Now().UTC() }
}

var tracer = otel.Tracer("github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/service")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// publish is best effort: the state change is already committed.
func publish(ctx context.Context, pub events.Publisher, key string, v any) {
	if pub == nil {
		return
	}
	if err := pub.PublishJSON(ctx, key, v); err != nil {
		log.Printf("[booking] publish %s failed: %v", key, err)
	}
}
