package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/guregu/null.v4"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/events"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/pricing"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/repository"
)

type BookingSvc struct {
	store    repository.Store
	pub      events.Publisher
	waitlist WaitlistSink
	rec      pricing.Recommender
	cfg      Config
	now      func() time.Time
}

func NewBookingSvc(d Deps, cfg Config) *BookingSvc {
	return &BookingSvc{
		store:    d.Store,
		pub:      d.Publisher,
		waitlist: d.Waitlist,
		rec:      d.Recommender,
		cfg:      cfg.withDefaults(),
		now:      d.clock(),
	}
}

type CreateBookingInput struct {
	UserID string
	SpotID string
	Start  time.Time
	End    time.Time
	Kind   domain.BookingKind
}

// Create reserves [Start, End) on a spot. The availability check and the
// insert run under the spot lock, so of two overlapping requests exactly one wins.
func (s *BookingSvc) Create(ctx context.Context, in CreateBookingInput) (b *domain.Booking, err error) {
	ctx, span := startSpan(ctx, "BookingSvc.Create", attribute.String("spot_id", in.SpotID))
	defer func() { endSpan(span, err) }()

	start, end := in.Start.UTC(), in.End.UTC()
	now := s.now()
	if in.UserID == "" {
		return nil, domain.Validationf("user is required")
	}
	if err := validateInterval(start, end, now); err != nil {
		return nil, err
	}
	if !in.Kind.Valid() {
		return nil, domain.Validationf("unknown booking kind %q", in.Kind)
	}
	spot, err := s.store.Spots().ByID(ctx, in.SpotID)
	if err != nil {
		return nil, err
	}
	if !spot.Active {
		return nil, domain.Validationf("spot %s is not bookable", spot.ID)
	}
	dyn := s.recommend(ctx, spot, in.Kind, start, end)

	b = &domain.Booking{
		UserID:          in.UserID,
		SpotID:          spot.ID,
		Kind:            in.Kind,
		StartTime:       start,
		EndTime:         end,
		Currency:        s.cfg.Currency,
		Status:          domain.BookingPending,
		PaymentDeadline: s.deadline(now, start),
	}
	err = s.store.Atomic(ctx, func(tx repository.Store) error {
		spot, err := tx.Spots().LockByID(ctx, in.SpotID)
		if err != nil {
			return err
		}
		q, err := pricing.Price(pricing.RatesOf(spot), in.Kind, start, end, dyn)
		if err != nil {
			return err
		}
		if !q.Total.IsPositive() {
			return domain.Validationf("computed price for spot %s is zero", spot.ID)
		}
		taken, err := tx.Bookings().HasOverlap(ctx, spot.ID, start, end, "")
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: spot %s is taken for %s..%s", domain.ErrConflict, spot.ID, start.Format(time.RFC3339), end.Format(time.RFC3339))
		}
		b.TotalPrice = q.Total
		return tx.Bookings().Create(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[booking] created id=%s spot=%s %s..%s total=%s", b.ID, b.SpotID, b.StartTime.Format(time.RFC3339), b.EndTime.Format(time.RFC3339), b.TotalPrice.StringFixed(2))
	publish(ctx, s.pub, events.RKBookingCreated, events.BookingOf(b))
	return b, nil
}

type EditBookingInput struct {
	Start *time.Time
	End   *time.Time
	Kind  *domain.BookingKind
}

// Edit changes the interval or kind of a PENDING booking and reprices it.
// The payment deadline never moves later.
func (s *BookingSvc) Edit(ctx context.Context, id string, actor domain.Actor, in EditBookingInput) (b *domain.Booking, err error) {
	ctx, span := startSpan(ctx, "BookingSvc.Edit", attribute.String("booking_id", id))
	defer func() { endSpan(span, err) }()

	cur, err := s.store.Bookings().ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(cur.UserID) {
		return nil, domain.ErrForbidden
	}
	start, end, kind := cur.StartTime, cur.EndTime, cur.Kind
	if in.Start != nil {
		start = in.Start.UTC()
	}
	if in.End != nil {
		end = in.End.UTC()
	}
	if in.Kind != nil {
		kind = *in.Kind
	}
	now := s.now()
	if err := validateInterval(start, end, now); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, domain.Validationf("unknown booking kind %q", kind)
	}
	spot, err := s.store.Spots().ByID(ctx, cur.SpotID)
	if err != nil {
		return nil, err
	}
	dyn := s.recommend(ctx, spot, kind, start, end)

	err = s.store.Atomic(ctx, func(tx repository.Store) error {
		spot, err := tx.Spots().LockByID(ctx, cur.SpotID)
		if err != nil {
			return err
		}
		b, err = tx.Bookings().LockByID(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != domain.BookingPending {
			return domain.Statef("booking %s is %s; only PENDING bookings can be edited", b.ID, b.Status)
		}
		ps, err := tx.Payments().ByBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		for _, p := range ps {
			if p.Status == domain.PaymentPending || p.Status == domain.PaymentSucceeded {
				return domain.Statef("booking %s has a payment in progress", b.ID)
			}
		}
		taken, err := tx.Bookings().HasOverlap(ctx, b.SpotID, start, end, b.ID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: spot %s is taken for %s..%s", domain.ErrConflict, b.SpotID, start.Format(time.RFC3339), end.Format(time.RFC3339))
		}
		q, err := pricing.Price(pricing.RatesOf(spot), kind, start, end, dyn)
		if err != nil {
			return err
		}
		if !q.Total.IsPositive() {
			return domain.Validationf("computed price for spot %s is zero", spot.ID)
		}
		b.StartTime, b.EndTime, b.Kind, b.TotalPrice = start, end, kind, q.Total
		if d := s.deadline(b.CreatedAt, start); d.Before(b.PaymentDeadline) {
			b.PaymentDeadline = d
		}
		return tx.Bookings().Save(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, s.pub, events.RKBookingUpdated, events.BookingOf(b))
	return b, nil
}

// Cancel releases a booking that has not started yet.
func (s *BookingSvc) Cancel(ctx context.Context, id string, actor domain.Actor) (b *domain.Booking, err error) {
	ctx, span := startSpan(ctx, "BookingSvc.Cancel", attribute.String("booking_id", id))
	defer func() { endSpan(span, err) }()

	now := s.now()
	err = s.store.Atomic(ctx, func(tx repository.Store) error {
		b, err = tx.Bookings().LockByID(ctx, id)
		if err != nil {
			return err
		}
		if !actor.CanManage(b.UserID) {
			return domain.ErrForbidden
		}
		if !b.Status.CanTransition(domain.BookingCancelled) {
			return domain.Statef("booking %s is %s and cannot be cancelled", b.ID, b.Status)
		}
		if b.Started(now) {
			return domain.Statef("booking %s has already started", b.ID)
		}
		b.Status = domain.BookingCancelled
		return tx.Bookings().Save(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[booking] cancelled id=%s by=%s paid=%t", b.ID, actor.UserID, b.Paid)
	publish(ctx, s.pub, events.RKBookingCancelled, events.BookingOf(b))
	s.release(ctx, b)
	return b, nil
}

// ConfirmPaid marks a PENDING booking paid. Calling it again is a no-op.
func (s *BookingSvc) ConfirmPaid(ctx context.Context, id, paymentRef string) (*domain.Booking, error) {
	var (
		b       *domain.Booking
		changed bool
	)
	err := s.store.Atomic(ctx, func(tx repository.Store) error {
		var err error
		b, changed, err = s.confirmPaid(ctx, tx, id, paymentRef)
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		publish(ctx, s.pub, events.RKBookingConfirmed, events.BookingOf(b))
	}
	return b, nil
}

// confirmPaid runs inside the caller's transaction so the booking and the
// successful payment commit together.
func (s *BookingSvc) confirmPaid(ctx context.Context, tx repository.Store, id, paymentRef string) (*domain.Booking, bool, error) {
	b, err := tx.Bookings().LockByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if b.Paid {
		return b, false, nil
	}
	if b.Status != domain.BookingPending {
		return b, false, domain.Statef("booking %s is %s and cannot be confirmed", b.ID, b.Status)
	}
	b.Status = domain.BookingConfirmed
	b.Paid = true
	b.ExternalPaymentID = null.StringFrom(paymentRef)
	if err := tx.Bookings().Save(ctx, b); err != nil {
		return nil, false, err
	}
	log.Printf("[booking] confirmed id=%s payment=%s", b.ID, paymentRef)
	return b, true, nil
}

// AdvanceByClock moves CONFIRMED to ACTIVE at start and ACTIVE to COMPLETED at end.
func (s *BookingSvc) AdvanceByClock(ctx context.Context, id string) (*domain.Booking, error) {
	now := s.now()
	var (
		b    *domain.Booking
		keys []string
	)
	err := s.store.Atomic(ctx, func(tx repository.Store) error {
		var err error
		b, err = tx.Bookings().LockByID(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == domain.BookingConfirmed && !now.Before(b.StartTime) {
			b.Status = domain.BookingActive
			keys = append(keys, events.RKBookingActivated)
		}
		if b.Status == domain.BookingActive && !now.Before(b.EndTime) {
			b.Status = domain.BookingCompleted
			keys = append(keys, events.RKBookingCompleted)
		}
		if len(keys) == 0 {
			return nil
		}
		return tx.Bookings().Save(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		publish(ctx, s.pub, k, events.BookingOf(b))
	}
	return b, nil
}

// Expire moves an unpaid PENDING booking past its deadline to EXPIRED. The
// check for a successful payment happens under the booking lock, which the
// webhook path also takes, so a payment committed first always wins.
// The bool reports whether this call expired the booking.
func (s *BookingSvc) Expire(ctx context.Context, id string) (b *domain.Booking, expired bool, err error) {
	ctx, span := startSpan(ctx, "BookingSvc.Expire", attribute.String("booking_id", id))
	defer func() { endSpan(span, err) }()

	now := s.now()
	var confirmed bool
	err = s.store.Atomic(ctx, func(tx repository.Store) error {
		b, err = tx.Bookings().LockByID(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != domain.BookingPending || b.PaymentDeadline.After(now) {
			return nil
		}
		ps, err := tx.Payments().ByBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		for _, p := range ps {
			if p.Status == domain.PaymentSucceeded {
				log.Printf("[booking] booking %s has succeeded payment %s; confirming instead of expiring", b.ID, p.ID)
				b, confirmed, err = s.confirmPaid(ctx, tx, b.ID, p.RemoteID.String)
				return err
			}
		}
		b.Status = domain.BookingExpired
		expired = true
		return tx.Bookings().Save(ctx, b)
	})
	if err != nil {
		return nil, false, err
	}
	switch {
	case expired:
		log.Printf("[booking] expired id=%s deadline=%s", b.ID, b.PaymentDeadline.Format(time.RFC3339))
		publish(ctx, s.pub, events.RKBookingExpired, events.BookingOf(b))
		s.release(ctx, b)
	case confirmed:
		publish(ctx, s.pub, events.RKBookingConfirmed, events.BookingOf(b))
	}
	return b, expired, nil
}

// IsAvailable is advisory; Create repeats the check under the spot lock.
func (s *BookingSvc) IsAvailable(ctx context.Context, spotID string, start, end time.Time, excludingID string) (bool, error) {
	if !start.Before(end) {
		return false, domain.Validationf("start must be before end")
	}
	if _, err := s.store.Spots().ByID(ctx, spotID); err != nil {
		return false, err
	}
	taken, err := s.store.Bookings().HasOverlap(ctx, spotID, start.UTC(), end.UTC(), excludingID)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// Quote prices an interval the way Create would, without reserving it.
func (s *BookingSvc) Quote(ctx context.Context, spotID string, kind domain.BookingKind, start, end time.Time) (pricing.Quote, error) {
	spot, err := s.store.Spots().ByID(ctx, spotID)
	if err != nil {
		return pricing.Quote{}, err
	}
	start, end = start.UTC(), end.UTC()
	return pricing.Price(pricing.RatesOf(spot), kind, start, end, s.recommend(ctx, spot, kind, start, end))
}

func (s *BookingSvc) Get(ctx context.Context, id string, actor domain.Actor) (*domain.Booking, error) {
	b, err := s.store.Bookings().ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(b.UserID) {
		return nil, domain.ErrForbidden
	}
	return b, nil
}

// List shows drivers their own bookings and staff everything.
func (s *BookingSvc) List(ctx context.Context, actor domain.Actor, f domain.BookingFilter) ([]domain.Booking, int64, error) {
	if !actor.Staff() {
		f.UserID = actor.UserID
	}
	return s.store.Bookings().List(ctx, f)
}

func (s *BookingSvc) release(ctx context.Context, b *domain.Booking) {
	if s.waitlist == nil {
		return
	}
	if err := s.waitlist.SpotReleased(ctx, b); err != nil {
		log.Printf("[booking] waitlist notify for %s failed: %v", b.ID, err)
	}
}

func (s *BookingSvc) recommend(ctx context.Context, spot *domain.Spot, kind domain.BookingKind, start, end time.Time) *pricing.DynamicPrice {
	if s.rec == nil || !spot.AllowDynamicPricing || kind != domain.KindHourly {
		return nil
	}
	dp, err := s.rec.Recommend(ctx, spot.ID, start, end)
	if err != nil {
		log.Printf("[booking] dynamic price for spot %s unavailable, using base rate: %v", spot.ID, err)
		return nil
	}
	return dp
}

// deadline is created+PaymentWindow, pulled in to start-PaymentLeadTime and never past start.
func (s *BookingSvc) deadline(created, start time.Time) time.Time {
	d := created.Add(s.cfg.PaymentWindow)
	if lead := start.Add(-s.cfg.PaymentLeadTime); lead.After(created) && lead.Before(d) {
		d = lead
	}
	if start.Before(d) {
		d = start
	}
	return d
}

func validateInterval(start, end, now time.Time) error {
	if start.IsZero() || end.IsZero() {
		return domain.Validationf("start and end are required")
	}
	if !start.Before(end) {
		return domain.Validationf("start must be before end")
	}
	if start.Before(now) {
		return domain.Validationf("start is in the past")
	}
	return nil
}

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }
