package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/repository"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func booking(spot string, from, to time.Duration, st domain.BookingStatus) *domain.Booking {
	return &domain.Booking{
		UserID: "u1", SpotID: spot, Kind: domain.KindHourly,
		StartTime: t0.Add(from), EndTime: t0.Add(to),
		TotalPrice: decimal.NewFromInt(100), Currency: "RUB", Status: st,
	}
}

func TestAtomicRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(tx repository.Store) error {
		require.NoError(t, tx.Bookings().Create(ctx, booking("s1", 0, time.Hour, domain.BookingPending)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, total, err := s.Bookings().List(ctx, domain.BookingFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAtomicCommits(t *testing.T) {
	ctx := context.Background()
	s := New()
	b := booking("s1", 0, time.Hour, domain.BookingPending)

	require.NoError(t, s.Atomic(ctx, func(tx repository.Store) error {
		return tx.Bookings().Create(ctx, b)
	}))
	got, err := s.Bookings().ByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, got.Status)
}

func TestHasOverlapIgnoresReleasedAndExcluded(t *testing.T) {
	ctx := context.Background()
	s := New()
	held := booking("s1", 0, 2*time.Hour, domain.BookingConfirmed)
	require.NoError(t, s.Bookings().Create(ctx, held))
	require.NoError(t, s.Bookings().Create(ctx, booking("s1", 3*time.Hour, 4*time.Hour, domain.BookingCancelled)))

	ok, err := s.Bookings().HasOverlap(ctx, "s1", t0.Add(time.Hour), t0.Add(3*time.Hour), "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Bookings().HasOverlap(ctx, "s1", t0.Add(time.Hour), t0.Add(3*time.Hour), held.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Bookings().HasOverlap(ctx, "s1", t0.Add(3*time.Hour), t0.Add(4*time.Hour), "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Bookings().HasOverlap(ctx, "s2", t0, t0.Add(time.Hour), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestByRemoteIDResolvesEveryAttempt(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := &domain.Payment{BookingID: "b1", Provider: domain.ProviderYooKassa, Status: domain.PaymentPending, RemoteID: null.StringFrom("r2")}
	require.NoError(t, s.Payments().Create(ctx, p))
	require.NoError(t, s.Payments().AddAttempt(ctx, &domain.PaymentAttempt{RemoteID: "r1", PaymentID: p.ID}))
	require.NoError(t, s.Payments().AddAttempt(ctx, &domain.PaymentAttempt{RemoteID: "r2", PaymentID: p.ID}))

	for _, rid := range []string{"r1", "r2"} {
		got, err := s.Payments().ByRemoteID(ctx, rid)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
	}
	_, err := s.Payments().ByRemoteID(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListRefundable(t *testing.T) {
	ctx := context.Background()
	s := New()
	cancelled := booking("s1", 0, time.Hour, domain.BookingCancelled)
	confirmed := booking("s1", 2*time.Hour, 3*time.Hour, domain.BookingConfirmed)
	require.NoError(t, s.Bookings().Create(ctx, cancelled))
	require.NoError(t, s.Bookings().Create(ctx, confirmed))

	orphan := &domain.Payment{BookingID: cancelled.ID, Status: domain.PaymentSucceeded}
	kept := &domain.Payment{BookingID: confirmed.ID, Status: domain.PaymentSucceeded}
	require.NoError(t, s.Payments().Create(ctx, orphan))
	require.NoError(t, s.Payments().Create(ctx, kept))

	out, err := s.Payments().ListRefundable(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, orphan.ID, out[0].ID)

	orphan.RefundAttempts = 3
	require.NoError(t, s.Payments().Save(ctx, orphan))
	out, err = s.Payments().ListRefundable(ctx, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestListRefundableAttemptsSkipsRecordedCapture(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := &domain.Payment{BookingID: "b1", Status: domain.PaymentSucceeded, RemoteID: null.StringFrom("r1")}
	require.NoError(t, s.Payments().Create(ctx, p))
	for _, rid := range []string{"r1", "r2", "r3"} {
		require.NoError(t, s.Payments().AddAttempt(ctx, &domain.PaymentAttempt{RemoteID: rid, PaymentID: p.ID}))
	}
	for _, rid := range []string{"r1", "r2"} {
		a, err := s.Payments().LockAttempt(ctx, rid)
		require.NoError(t, err)
		a.Status = domain.PaymentSucceeded
		require.NoError(t, s.Payments().SaveAttempt(ctx, a))
	}

	out, err := s.Payments().ListRefundableAttempts(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "r2", out[0].RemoteID)

	r3, err := s.Payments().LockAttempt(ctx, "r3")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, r3.Status)
}
