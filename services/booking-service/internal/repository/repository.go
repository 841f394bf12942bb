package repository

import (
	"context"
	"time"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
)

// Lookups return domain.ErrNotFound when the row does not exist.
// LockByID variants hold a row lock until the enclosing Atomic call returns.

type SpotRepository interface {
	Create(ctx context.Context, s *domain.Spot) error
	ByID(ctx context.Context, id string) (*domain.Spot, error)
	LockByID(ctx context.Context, id string) (*domain.Spot, error)
}

type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking) error
	Save(ctx context.Context, b *domain.Booking) error
	ByID(ctx context.Context, id string) (*domain.Booking, error)
	LockByID(ctx context.Context, id string) (*domain.Booking, error)
	// HasOverlap reports a holding booking on spotID intersecting [start, end), ignoring excludeID.
	HasOverlap(ctx context.Context, spotID string, start, end time.Time, excludeID string) (bool, error)
	// ListExpirable returns PENDING bookings whose payment deadline is not after now.
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error)
	// ListClockDue returns CONFIRMED bookings that have started and ACTIVE bookings that have ended.
	ListClockDue(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error)
	List(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, int64, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	Save(ctx context.Context, p *domain.Payment) error
	ByID(ctx context.Context, id string) (*domain.Payment, error)
	LockByID(ctx context.Context, id string) (*domain.Payment, error)
	ByBooking(ctx context.Context, bookingID string) ([]domain.Payment, error)
	// ByRemoteID resolves any remote id ever issued for a payment.
	ByRemoteID(ctx context.Context, remoteID string) (*domain.Payment, error)
	AddAttempt(ctx context.Context, a *domain.PaymentAttempt) error
	LockAttempt(ctx context.Context, remoteID string) (*domain.PaymentAttempt, error)
	SaveAttempt(ctx context.Context, a *domain.PaymentAttempt) error
	// ListStale returns PENDING payments with a remote id not updated since before.
	ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error)
	// ListRefundable returns unrefunded SUCCEEDED payments whose booking ended
	// CANCELLED or EXPIRED and that have fewer than maxAttempts refund attempts.
	ListRefundable(ctx context.Context, maxAttempts, limit int) ([]domain.Payment, error)
	// ListRefundableAttempts returns unrefunded SUCCEEDED attempts that are not
	// their payment's recorded remote id, i.e. extra captures.
	ListRefundableAttempts(ctx context.Context, maxAttempts, limit int) ([]domain.PaymentAttempt, error)
}

type WaitlistRepository interface {
	Create(ctx context.Context, e *domain.WaitlistEntry) error
	// ListWaiting returns WAITING entries on spotID whose desired interval intersects [start, end).
	ListWaiting(ctx context.Context, spotID string, start, end time.Time) ([]domain.WaitlistEntry, error)
	MarkNotified(ctx context.Context, id string, at time.Time) error
}

// Store groups the repositories. Atomic runs fn against a transactional
// Store: either every write made through tx commits or none does.
type Store interface {
	Spots() SpotRepository
	Bookings() BookingRepository
	Payments() PaymentRepository
	Waitlist() WaitlistRepository
	Atomic(ctx context.Context, fn func(tx Store) error) error
}
