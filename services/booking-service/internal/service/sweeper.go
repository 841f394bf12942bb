package service

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/repository"
)

type SweepReport struct {
	Reconciled int
	Expired    int
	Activated  int
	Completed  int
	Refunded   int
	Failed     int
}

func (r SweepReport) Empty() bool { return r == SweepReport{} }

// Sweeper drives everything that happens because time passed: stale payment
// reconciliation, deadline expiry, clock transitions and orphan refunds.
type Sweeper struct {
	store    repository.Store
	bookings *BookingSvc
	payments *PaymentSvc
	cfg      Config
	now      func() time.Time
}

func NewSweeper(d Deps, bookings *BookingSvc, payments *PaymentSvc, cfg Config) *Sweeper {
	return &Sweeper{store: d.Store, bookings: bookings, payments: payments, cfg: cfg.withDefaults(), now: d.clock()}
}

// Run ticks every SweepInterval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.cfg.SweepInterval)
	defer t.Stop()
	log.Printf("[sweeper] started interval=%s", s.cfg.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[sweeper] stopped")
			return
		case <-t.C:
			tctx, cancel := context.WithTimeout(ctx, s.cfg.SweepTimeout)
			rep := s.Tick(tctx)
			cancel()
			if !rep.Empty() {
				log.Printf("[sweeper] reconciled=%d expired=%d activated=%d completed=%d refunded=%d failed=%d",
					rep.Reconciled, rep.Expired, rep.Activated, rep.Completed, rep.Refunded, rep.Failed)
			}
		}
	}
}

// Tick runs one pass. Reconciliation goes first so a payment that succeeded
// without a webhook confirms its booking before expiry looks at it.
func (s *Sweeper) Tick(ctx context.Context) (rep SweepReport) {
	ctx, span := startSpan(ctx, "Sweeper.Tick")
	defer func() {
		span.SetAttributes(attribute.Int("expired", rep.Expired), attribute.Int("failed", rep.Failed))
		span.End()
	}()

	if s.payments != nil {
		n, failed := s.payments.ReconcileStale(ctx)
		rep.Reconciled, rep.Failed = n, rep.Failed+failed
	}

	due, err := s.store.Bookings().ListExpirable(ctx, s.now(), s.cfg.SweepBatch)
	if err != nil {
		log.Printf("[sweeper] list expirable bookings: %v", err)
		rep.Failed++
	}
	for _, b := range due {
		_, expired, err := s.bookings.Expire(ctx, b.ID)
		if err != nil {
			log.Printf("[sweeper] expire booking %s: %v", b.ID, err)
			rep.Failed++
			continue
		}
		if expired {
			rep.Expired++
		}
	}

	due, err = s.store.Bookings().ListClockDue(ctx, s.now(), s.cfg.SweepBatch)
	if err != nil {
		log.Printf("[sweeper] list clock-due bookings: %v", err)
		rep.Failed++
	}
	for _, b := range due {
		nb, err := s.bookings.AdvanceByClock(ctx, b.ID)
		if err != nil {
			log.Printf("[sweeper] advance booking %s: %v", b.ID, err)
			rep.Failed++
			continue
		}
		if b.Status == domain.BookingConfirmed && nb.Status != domain.BookingConfirmed {
			rep.Activated++
		}
		if nb.Status == domain.BookingCompleted {
			rep.Completed++
		}
	}

	if s.payments != nil {
		n, failed := s.payments.RefundOrphans(ctx)
		rep.Refunded, rep.Failed = n, rep.Failed+failed
	}
	return rep
}
