package service

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/guregu/null.v4"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/events"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/gateway"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/repository"
)

type PaymentSvc struct {
	store    repository.Store
	bookings *BookingSvc
	gw       gateway.Adapter
	pub      events.Publisher
	cfg      Config
	now      func() time.Time
}

func NewPaymentSvc(d Deps, gw gateway.Adapter, bookings *BookingSvc, cfg Config) *PaymentSvc {
	return &PaymentSvc{
		store:    d.Store,
		bookings: bookings,
		gw:       gw,
		pub:      d.Publisher,
		cfg:      cfg.withDefaults(),
		now:      d.clock(),
	}
}

// Checkout is what the payer needs to finish paying.
type Checkout struct {
	Payment         *domain.Payment `json:"payment"`
	ConfirmationURL string          `json:"confirmation_url"`
	// Reused is set when an unfinished payment was retried instead of creating a new one.
	Reused bool `json:"reused"`
}

// Initiate opens a remote payment for a PENDING booking. At most one
// unfinished payment exists per booking; a retry reuses it with the current
// amount. The gateway is called outside any transaction. If it fails the
// payment stays CREATED and the call can be repeated.
func (s *PaymentSvc) Initiate(ctx context.Context, bookingID string, payer domain.Actor, returnURL string) (co *Checkout, err error) {
	ctx, span := startSpan(ctx, "PaymentSvc.Initiate", attribute.String("booking_id", bookingID))
	defer func() { endSpan(span, err) }()

	if returnURL, err = s.checkoutReturnURL(returnURL); err != nil {
		return nil, err
	}
	now := s.now()
	var (
		p      *domain.Payment
		reused bool
	)
	err = s.store.Atomic(ctx, func(tx repository.Store) error {
		b, err := tx.Bookings().LockByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if !payer.CanManage(b.UserID) {
			return domain.ErrForbidden
		}
		if b.Status != domain.BookingPending || b.Paid {
			return domain.Statef("booking %s is %s; only unpaid PENDING bookings can be paid", b.ID, b.Status)
		}
		if !now.Before(b.EndTime) {
			return domain.Statef("booking %s is in the past", b.ID)
		}
		if !now.Before(b.PaymentDeadline) {
			return domain.Statef("payment window for booking %s closed at %s", b.ID, b.PaymentDeadline.Format(time.RFC3339))
		}
		if !b.TotalPrice.IsPositive() {
			return domain.Validationf("booking %s has nothing to pay", b.ID)
		}
		ps, err := tx.Payments().ByBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		for i := range ps {
			if ps[i].Status == domain.PaymentSucceeded {
				return domain.Statef("booking %s is already paid by %s", b.ID, ps[i].ID)
			}
			if !ps[i].Status.Terminal() {
				p = &ps[i]
			}
		}
		if p != nil {
			reused = true
			p.Provider = s.gw.Provider()
			p.Amount, p.Currency, p.Commission = b.TotalPrice, b.Currency, s.commission(b.TotalPrice)
			p.Status = domain.PaymentCreated
			// the previous remote id is superseded; its callbacks only settle its attempt
			p.RemoteID = null.String{}
			p.ConfirmationURL = ""
			return tx.Payments().Save(ctx, p)
		}
		p = &domain.Payment{
			BookingID:  b.ID,
			PayerID:    payer.UserID,
			Provider:   s.gw.Provider(),
			Amount:     b.TotalPrice,
			Currency:   b.Currency,
			Commission: s.commission(b.TotalPrice),
			Status:     domain.PaymentCreated,
		}
		return tx.Payments().Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	rp, err := s.gw.CreateRemotePayment(ctx, p, returnURL)
	if err != nil {
		log.Printf("[booking] payment %s for booking %s: gateway create failed: %v", p.ID, bookingID, err)
		return nil, err
	}

	// Committed on its own: whatever happens to the payment meanwhile, a
	// callback for this remote id must still resolve.
	err = s.store.Payments().AddAttempt(ctx, &domain.PaymentAttempt{
		RemoteID:  rp.RemoteID,
		PaymentID: p.ID,
		Provider:  p.Provider,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    domain.PaymentPending,
	})
	if err != nil {
		return nil, err
	}
	err = s.store.Atomic(ctx, func(tx repository.Store) error {
		cur, err := tx.Payments().LockByID(ctx, p.ID)
		if err != nil {
			return err
		}
		if cur.Status != domain.PaymentCreated {
			return domain.Statef("payment %s became %s while the gateway was called", cur.ID, cur.Status)
		}
		cur.RemoteID = null.StringFrom(rp.RemoteID)
		cur.ConfirmationURL = rp.ConfirmationURL
		cur.RawResponse = string(rp.Raw)
		cur.Status = domain.PaymentPending
		if err := tx.Payments().Save(ctx, cur); err != nil {
			return err
		}
		p = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[booking] payment %s initiated booking=%s remote=%s reused=%t", p.ID, bookingID, rp.RemoteID, reused)
	publish(ctx, s.pub, events.RKPaymentInitiated, events.PaymentOf(p))
	return &Checkout{Payment: p, ConfirmationURL: rp.ConfirmationURL, Reused: reused}, nil
}

type ApplyResult string

const (
	ApplyApplied   ApplyResult = "applied"
	ApplyDuplicate ApplyResult = "duplicate"
	ApplyStale     ApplyResult = "stale"

	// ApplySuperseded settled an older checkout attempt without touching the payment.
	ApplySuperseded ApplyResult = "superseded"
	// ApplyUnknown is an outcome for a remote id nobody issued. It is acknowledged and dropped.
	ApplyUnknown ApplyResult = "unknown"
)

// ApplyWebhook records a verified gateway outcome. Redeliveries are no-ops.
// The payment and the booking confirmation commit together; a success that
// arrives after the booking expired or was cancelled stays SUCCEEDED and is
// picked up by RefundOrphans.
func (s *PaymentSvc) ApplyWebhook(ctx context.Context, ev gateway.NormalizedEvent) (res ApplyResult, err error) {
	ctx, span := startSpan(ctx, "PaymentSvc.ApplyWebhook",
		attribute.String("provider", string(ev.Provider)),
		attribute.String("remote_id", ev.RemoteID),
		attribute.String("outcome", string(ev.Outcome)))
	defer func() { endSpan(span, err) }()

	if !ev.Outcome.Outcome() {
		return "", domain.Validationf("outcome %q is not final", ev.Outcome)
	}
	ref, err := s.store.Payments().ByRemoteID(ctx, ev.RemoteID)
	if isNotFound(err) {
		log.Printf("[webhook] unknown remote_id=%s provider=%s; acknowledged", ev.RemoteID, ev.Provider)
		return ApplyUnknown, nil
	}
	if err != nil {
		return "", err
	}

	now := s.now()
	var (
		p         *domain.Payment
		b         *domain.Booking
		confirmed bool
	)
	err = s.store.Atomic(ctx, func(tx repository.Store) error {
		var err error
		// booking before payment, same order as Expire
		if b, err = tx.Bookings().LockByID(ctx, ref.BookingID); err != nil {
			return err
		}
		if p, err = tx.Payments().LockByID(ctx, ref.ID); err != nil {
			return err
		}
		a, err := tx.Payments().LockAttempt(ctx, ev.RemoteID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() && a.Status != ev.Outcome {
			res = ApplyStale
			log.Printf("[webhook] attempt %s is %s; ignoring %s", a.RemoteID, a.Status, ev.Outcome)
			return nil
		}
		settled := !a.Status.Terminal()
		if settled {
			a.Status = ev.Outcome
			a.FinalizedAt = null.TimeFrom(now)
			if err := tx.Payments().SaveAttempt(ctx, a); err != nil {
				return err
			}
		}
		live := p.RemoteID.Valid && p.RemoteID.String == ev.RemoteID
		switch domain.ResolveAttemptWebhook(p.Status, live, ev.Outcome) {
		case domain.WebhookSuperseded:
			res = ApplySuperseded
			if settled && ev.Outcome == domain.PaymentSucceeded {
				log.Printf("[webhook] payment %s captured again by remote %s (recorded %s); queued for refund", p.ID, ev.RemoteID, p.RemoteID.String)
			}
			return nil
		case domain.WebhookStale:
			res = ApplyStale
			log.Printf("[webhook] payment %s is %s; ignoring %s for remote %s", p.ID, p.Status, ev.Outcome, ev.RemoteID)
			return nil
		case domain.WebhookDuplicate:
			res = ApplyDuplicate
			if p.Status != domain.PaymentSucceeded {
				return nil
			}
			return s.confirmFor(ctx, tx, p, &b, &confirmed)
		}
		res = ApplyApplied
		p.Status = ev.Outcome
		p.RemoteID = null.StringFrom(ev.RemoteID)
		p.RawWebhook = string(ev.Raw)
		p.FinalizedAt = null.TimeFrom(now)
		if err := tx.Payments().Save(ctx, p); err != nil {
			return err
		}
		if p.Status != domain.PaymentSucceeded {
			return nil
		}
		return s.confirmFor(ctx, tx, p, &b, &confirmed)
	})
	if err != nil {
		return "", err
	}
	if res == ApplyApplied {
		log.Printf("[webhook] payment %s -> %s booking=%s", p.ID, p.Status, b.ID)
		publish(ctx, s.pub, paymentKey(p.Status), events.PaymentOf(p))
	}
	if confirmed {
		publish(ctx, s.pub, events.RKBookingConfirmed, events.BookingOf(b))
	}
	return res, nil
}

func (s *PaymentSvc) confirmFor(ctx context.Context, tx repository.Store, p *domain.Payment, b **domain.Booking, confirmed *bool) error {
	nb, changed, err := s.bookings.confirmPaid(ctx, tx, p.BookingID, p.RemoteID.String)
	if errors.Is(err, domain.ErrState) {
		log.Printf("[webhook] payment %s succeeded for booking %s in status %s; queued for refund", p.ID, p.BookingID, (*b).Status)
		return nil
	}
	if err != nil {
		return err
	}
	*b, *confirmed = nb, changed
	return nil
}

// ReconcileStale asks the gateway about PENDING payments that have not heard
// a webhook for StalePaymentAfter and applies any final outcome.
func (s *PaymentSvc) ReconcileStale(ctx context.Context) (applied, failed int) {
	stale, err := s.store.Payments().ListStale(ctx, s.now().Add(-s.cfg.StalePaymentAfter), s.cfg.SweepBatch)
	if err != nil {
		log.Printf("[sweeper] list stale payments: %v", err)
		return 0, 1
	}
	for _, p := range stale {
		if p.Provider != s.gw.Provider() {
			continue
		}
		st, raw, err := s.gw.FetchOutcome(ctx, p.RemoteID.String)
		if err != nil {
			log.Printf("[sweeper] fetch outcome for payment %s: %v", p.ID, err)
			failed++
			continue
		}
		if !st.Outcome() {
			continue
		}
		res, err := s.ApplyWebhook(ctx, gateway.NormalizedEvent{Provider: p.Provider, RemoteID: p.RemoteID.String, Outcome: st, Raw: raw})
		if err != nil {
			log.Printf("[sweeper] apply outcome for payment %s: %v", p.ID, err)
			failed++
			continue
		}
		if res == ApplyApplied {
			applied++
		}
	}
	return applied, failed
}

// RefundOrphans refunds successful payments whose booking ended CANCELLED or
// EXPIRED, and captures on attempts other than the one a payment recorded.
// Each gets at most MaxRefundAttempts tries.
func (s *PaymentSvc) RefundOrphans(ctx context.Context) (refunded, failed int) {
	refunded, failed = s.refundPayments(ctx)
	r, f := s.refundExtraCaptures(ctx)
	return refunded + r, failed + f
}

func (s *PaymentSvc) refundPayments(ctx context.Context) (refunded, failed int) {
	orphans, err := s.store.Payments().ListRefundable(ctx, s.cfg.MaxRefundAttempts, s.cfg.SweepBatch)
	if err != nil {
		log.Printf("[sweeper] list refundable payments: %v", err)
		return 0, 1
	}
	for i := range orphans {
		p := &orphans[i]
		if p.Provider != s.gw.Provider() {
			continue
		}
		refundID, rerr := s.gw.Refund(ctx, p)
		var saved *domain.Payment
		err := s.store.Atomic(ctx, func(tx repository.Store) error {
			cur, err := tx.Payments().LockByID(ctx, p.ID)
			if err != nil {
				return err
			}
			if cur.RefundID.Valid {
				return nil
			}
			if rerr != nil {
				cur.RefundAttempts++
			} else {
				cur.RefundID = null.StringFrom(refundID)
				cur.RefundedAt = null.TimeFrom(s.now())
			}
			saved = cur
			return tx.Payments().Save(ctx, cur)
		})
		switch {
		case err != nil:
			log.Printf("[sweeper] record refund for payment %s: %v", p.ID, err)
			failed++
		case rerr != nil:
			log.Printf("[sweeper] refund payment %s: %v", p.ID, rerr)
			failed++
		case saved != nil:
			log.Printf("[sweeper] refunded payment %s refund=%s", p.ID, refundID)
			publish(ctx, s.pub, events.RKPaymentRefunded, events.PaymentOf(saved))
			refunded++
		}
	}
	return refunded, failed
}

// refundExtraCaptures returns money a payer paid through a second checkout
// attempt after the payment had already been settled by another one.
func (s *PaymentSvc) refundExtraCaptures(ctx context.Context) (refunded, failed int) {
	extra, err := s.store.Payments().ListRefundableAttempts(ctx, s.cfg.MaxRefundAttempts, s.cfg.SweepBatch)
	if err != nil {
		log.Printf("[sweeper] list refundable attempts: %v", err)
		return 0, 1
	}
	for i := range extra {
		a := &extra[i]
		if a.Provider != s.gw.Provider() {
			continue
		}
		p, err := s.store.Payments().ByID(ctx, a.PaymentID)
		if err != nil {
			log.Printf("[sweeper] load payment %s for attempt %s: %v", a.PaymentID, a.RemoteID, err)
			failed++
			continue
		}
		refundID, rerr := s.gw.Refund(ctx, a.Charge(p))
		var saved *domain.PaymentAttempt
		err = s.store.Atomic(ctx, func(tx repository.Store) error {
			cur, err := tx.Payments().LockAttempt(ctx, a.RemoteID)
			if err != nil {
				return err
			}
			if cur.RefundID.Valid {
				return nil
			}
			if rerr != nil {
				cur.RefundAttempts++
			} else {
				cur.RefundID = null.StringFrom(refundID)
				cur.RefundedAt = null.TimeFrom(s.now())
			}
			saved = cur
			return tx.Payments().SaveAttempt(ctx, cur)
		})
		switch {
		case err != nil:
			log.Printf("[sweeper] record refund for attempt %s: %v", a.RemoteID, err)
			failed++
		case rerr != nil:
			log.Printf("[sweeper] refund attempt %s of payment %s: %v", a.RemoteID, p.ID, rerr)
			failed++
		case saved != nil:
			log.Printf("[sweeper] refunded attempt %s of payment %s refund=%s", a.RemoteID, p.ID, refundID)
			ev := events.PaymentOf(saved.Charge(p))
			ev.PaymentID = p.ID
			publish(ctx, s.pub, events.RKPaymentRefunded, ev)
			refunded++
		}
	}
	return refunded, failed
}

func (s *PaymentSvc) Get(ctx context.Context, id string, actor domain.Actor) (*domain.Payment, error) {
	p, err := s.store.Payments().ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(p.PayerID) {
		return nil, domain.ErrForbidden
	}
	return p, nil
}

// checkoutReturnURL accepts a caller's return URL only on the configured
// return host, so the provider's checkout never redirects off-site.
func (s *PaymentSvc) checkoutReturnURL(raw string) (string, error) {
	if raw == "" {
		return s.cfg.ReturnURL, nil
	}
	want, err := url.Parse(s.cfg.ReturnURL)
	if err != nil || want.Host == "" {
		return "", domain.Validationf("return_url is not accepted")
	}
	got, err := url.Parse(raw)
	if err != nil || got.Scheme != want.Scheme || !strings.EqualFold(got.Host, want.Host) {
		return "", domain.Validationf("return_url must be on %s://%s", want.Scheme, want.Host)
	}
	return raw, nil
}

func (s *PaymentSvc) Provider() domain.Provider { return s.gw.Provider() }

func (s *PaymentSvc) commission(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.cfg.CommissionPercent).Div(decimal.NewFromInt(100)).Round(2)
}

func paymentKey(st domain.PaymentStatus) string {
	return "payment." + strings.ToLower(string(st))
}
