// Package memory is an in-process repository.Store used by tests and local
// runs without Postgres. One mutex serialises every operation, so row locks
// are implicit; Atomic works on a copy of the state and swaps it in on success.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/repository"
)

type state struct {
	spots    map[string]domain.Spot
	bookings map[string]domain.Booking
	payments map[string]domain.Payment
	attempts map[string]domain.PaymentAttempt
	waitlist map[string]domain.WaitlistEntry
}

func (s *state) clone() *state {
	return &state{
		spots:    maps.Clone(s.spots),
		bookings: maps.Clone(s.bookings),
		payments: maps.Clone(s.payments),
		attempts: maps.Clone(s.attempts),
		waitlist: maps.Clone(s.waitlist),
	}
}

type Store struct {
	mu   *sync.Mutex
	st   *state
	inTx bool
	now  func() time.Time
}

type Option func(*Store)

// WithClock sets the clock used for CreatedAt/UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		mu: &sync.Mutex{},
		st: &state{
			spots:    map[string]domain.Spot{},
			bookings: map[string]domain.Booking{},
			payments: map[string]domain.Payment{},
			attempts: map[string]domain.PaymentAttempt{},
			waitlist: map[string]domain.WaitlistEntry{},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Spots() repository.SpotRepository       { return spotRepo{s} }
func (s *Store) Bookings() repository.BookingRepository { return bookingRepo{s} }
func (s *Store) Payments() repository.PaymentRepository { return paymentRepo{s} }
func (s *Store) Waitlist() repository.WaitlistRepository {
	return waitlistRepo{s}
}

func (s *Store) Atomic(ctx context.Context, fn func(tx repository.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	work := s.st.clone()
	if err := fn(&Store{mu: s.mu, st: work, inTx: true, now: s.now}); err != nil {
		return err
	}
	*s.st = *work
	return nil
}

func (s *Store) with(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.st)
}

type spotRepo struct{ s *Store }

func (r spotRepo) Create(ctx context.Context, sp *domain.Spot) error {
	return r.s.with(ctx, func(st *state) error {
		if sp.ID == "" {
			sp.ID = uuid.NewString()
		}
		if _, ok := st.spots[sp.ID]; ok {
			return domain.ErrConflict
		}
		sp.CreatedAt, sp.UpdatedAt = r.s.now(), r.s.now()
		st.spots[sp.ID] = *sp
		return nil
	})
}

func (r spotRepo) ByID(ctx context.Context, id string) (*domain.Spot, error) {
	var out domain.Spot
	err := r.s.with(ctx, func(st *state) error {
		sp, ok := st.spots[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = sp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r spotRepo) LockByID(ctx context.Context, id string) (*domain.Spot, error) {
	return r.ByID(ctx, id)
}

type bookingRepo struct{ s *Store }

func (r bookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	return r.s.with(ctx, func(st *state) error {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if _, ok := st.bookings[b.ID]; ok {
			return domain.ErrConflict
		}
		b.CreatedAt, b.UpdatedAt = r.s.now(), r.s.now()
		st.bookings[b.ID] = *b
		return nil
	})
}

func (r bookingRepo) Save(ctx context.Context, b *domain.Booking) error {
	return r.s.with(ctx, func(st *state) error {
		if _, ok := st.bookings[b.ID]; !ok {
			return domain.ErrNotFound
		}
		b.UpdatedAt = r.s.now()
		st.bookings[b.ID] = *b
		return nil
	})
}

func (r bookingRepo) ByID(ctx context.Context, id string) (*domain.Booking, error) {
	var out domain.Booking
	err := r.s.with(ctx, func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r bookingRepo) LockByID(ctx context.Context, id string) (*domain.Booking, error) {
	return r.ByID(ctx, id)
}

func (r bookingRepo) HasOverlap(ctx context.Context, spotID string, start, end time.Time, excludeID string) (bool, error) {
	var found bool
	err := r.s.with(ctx, func(st *state) error {
		for _, b := range st.bookings {
			if b.SpotID == spotID && b.ID != excludeID && b.Status.Holds() && b.Overlaps(start, end) {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r bookingRepo) ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	return r.filter(ctx, limit, func(b domain.Booking) bool {
		return b.Status == domain.BookingPending && !b.PaymentDeadline.After(now)
	})
}

func (r bookingRepo) ListClockDue(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	return r.filter(ctx, limit, func(b domain.Booking) bool {
		return (b.Status == domain.BookingConfirmed && !now.Before(b.StartTime)) ||
			(b.Status == domain.BookingActive && !now.Before(b.EndTime))
	})
}

func (r bookingRepo) List(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, int64, error) {
	all, err := r.filter(ctx, 0, func(b domain.Booking) bool {
		return (f.UserID == "" || b.UserID == f.UserID) &&
			(f.SpotID == "" || b.SpotID == f.SpotID) &&
			(f.Status == "" || b.Status == f.Status)
	})
	if err != nil {
		return nil, 0, err
	}
	if f.Size <= 0 {
		f.Size = 20
	}
	if f.Page < 0 {
		f.Page = 0
	}
	total := int64(len(all))
	from := f.Page * f.Size
	if from >= len(all) {
		return []domain.Booking{}, total, nil
	}
	to := min(from+f.Size, len(all))
	return all[from:to], total, nil
}

func (r bookingRepo) filter(ctx context.Context, limit int, keep func(domain.Booking) bool) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.s.with(ctx, func(st *state) error {
		for _, b := range st.bookings {
			if keep(b) {
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

type paymentRepo struct{ s *Store }

func (r paymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	return r.s.with(ctx, func(st *state) error {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if _, ok := st.payments[p.ID]; ok {
			return domain.ErrConflict
		}
		p.CreatedAt, p.UpdatedAt = r.s.now(), r.s.now()
		st.payments[p.ID] = *p
		return nil
	})
}

func (r paymentRepo) Save(ctx context.Context, p *domain.Payment) error {
	return r.s.with(ctx, func(st *state) error {
		if _, ok := st.payments[p.ID]; !ok {
			return domain.ErrNotFound
		}
		p.UpdatedAt = r.s.now()
		st.payments[p.ID] = *p
		return nil
	})
}

func (r paymentRepo) ByID(ctx context.Context, id string) (*domain.Payment, error) {
	var out domain.Payment
	err := r.s.with(ctx, func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r paymentRepo) LockByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.ByID(ctx, id)
}

func (r paymentRepo) ByBooking(ctx context.Context, bookingID string) ([]domain.Payment, error) {
	return r.filter(ctx, 0, func(p domain.Payment) bool { return p.BookingID == bookingID })
}

func (r paymentRepo) ByRemoteID(ctx context.Context, remoteID string) (*domain.Payment, error) {
	var out domain.Payment
	err := r.s.with(ctx, func(st *state) error {
		a, ok := st.attempts[remoteID]
		if !ok {
			return domain.ErrNotFound
		}
		p, ok := st.payments[a.PaymentID]
		if !ok {
			return domain.ErrNotFound
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r paymentRepo) AddAttempt(ctx context.Context, a *domain.PaymentAttempt) error {
	return r.s.with(ctx, func(st *state) error {
		if _, ok := st.attempts[a.RemoteID]; ok {
			return nil
		}
		if a.Status == "" {
			a.Status = domain.PaymentPending
		}
		a.CreatedAt, a.UpdatedAt = r.s.now(), r.s.now()
		st.attempts[a.RemoteID] = *a
		return nil
	})
}

func (r paymentRepo) LockAttempt(ctx context.Context, remoteID string) (*domain.PaymentAttempt, error) {
	var out domain.PaymentAttempt
	err := r.s.with(ctx, func(st *state) error {
		a, ok := st.attempts[remoteID]
		if !ok {
			return domain.ErrNotFound
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r paymentRepo) SaveAttempt(ctx context.Context, a *domain.PaymentAttempt) error {
	return r.s.with(ctx, func(st *state) error {
		if _, ok := st.attempts[a.RemoteID]; !ok {
			return domain.ErrNotFound
		}
		a.UpdatedAt = r.s.now()
		st.attempts[a.RemoteID] = *a
		return nil
	})
}

func (r paymentRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error) {
	return r.filter(ctx, limit, func(p domain.Payment) bool {
		return p.Status == domain.PaymentPending && p.RemoteID.Valid && p.UpdatedAt.Before(before)
	})
}

func (r paymentRepo) ListRefundable(ctx context.Context, maxAttempts, limit int) ([]domain.Payment, error) {
	var out []domain.Payment
	err := r.s.with(ctx, func(st *state) error {
		for _, p := range st.payments {
			if p.Status != domain.PaymentSucceeded || p.RefundID.Valid || p.RefundAttempts >= maxAttempts {
				continue
			}
			b, ok := st.bookings[p.BookingID]
			if ok && (b.Status == domain.BookingCancelled || b.Status == domain.BookingExpired) {
				out = append(out, p)
			}
		}
		return nil
	})
	sortPayments(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r paymentRepo) ListRefundableAttempts(ctx context.Context, maxAttempts, limit int) ([]domain.PaymentAttempt, error) {
	var out []domain.PaymentAttempt
	err := r.s.with(ctx, func(st *state) error {
		for _, a := range st.attempts {
			if a.Status != domain.PaymentSucceeded || a.RefundID.Valid || a.RefundAttempts >= maxAttempts {
				continue
			}
			if p, ok := st.payments[a.PaymentID]; ok && p.RemoteID.String != a.RemoteID {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RemoteID < out[j].RemoteID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r paymentRepo) filter(ctx context.Context, limit int, keep func(domain.Payment) bool) ([]domain.Payment, error) {
	var out []domain.Payment
	err := r.s.with(ctx, func(st *state) error {
		for _, p := range st.payments {
			if keep(p) {
				out = append(out, p)
			}
		}
		return nil
	})
	sortPayments(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func sortPayments(ps []domain.Payment) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].ID < ps[j].ID
		}
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}

type waitlistRepo struct{ s *Store }

func (r waitlistRepo) Create(ctx context.Context, e *domain.WaitlistEntry) error {
	return r.s.with(ctx, func(st *state) error {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.CreatedAt = r.s.now()
		st.waitlist[e.ID] = *e
		return nil
	})
}

func (r waitlistRepo) ListWaiting(ctx context.Context, spotID string, start, end time.Time) ([]domain.WaitlistEntry, error) {
	var out []domain.WaitlistEntry
	err := r.s.with(ctx, func(st *state) error {
		for _, e := range st.waitlist {
			if e.SpotID == spotID && e.Status == domain.WaitlistWaiting &&
				e.DesiredStart.Before(end) && start.Before(e.DesiredEnd) {
				out = append(out, e)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r waitlistRepo) MarkNotified(ctx context.Context, id string, at time.Time) error {
	return r.s.with(ctx, func(st *state) error {
		e, ok := st.waitlist[id]
		if !ok {
			return domain.ErrNotFound
		}
		if e.Status != domain.WaitlistWaiting {
			return nil
		}
		e.Status = domain.WaitlistNotified
		e.NotifiedAt.SetValid(at)
		st.waitlist[id] = e
		return nil
	})
}
