package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
)

type paymentRepo struct{ db *gorm.DB }

func (r *paymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return mapErr(r.db.WithContext(ctx).Create(p).Error)
}

func (r *paymentRepo) Save(ctx context.Context, p *domain.Payment) error {
	return mapErr(r.db.WithContext(ctx).Save(p).Error)
}

func (r *paymentRepo) ByID(ctx context.Context, id string) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *paymentRepo) LockByID(ctx context.Context, id string) (*domain.Payment, error) {
	var p domain.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *paymentRepo) ByBooking(ctx context.Context, bookingID string) ([]domain.Payment, error) {
	var out []domain.Payment
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *paymentRepo) ByRemoteID(ctx context.Context, remoteID string) (*domain.Payment, error) {
	var p domain.Payment
	err := r.db.WithContext(ctx).
		Joins("JOIN payment_attempts pa ON pa.payment_id = payments.id").
		Where("pa.remote_id = ?", remoteID).
		Take(&p).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *paymentRepo) AddAttempt(ctx context.Context, a *domain.PaymentAttempt) error {
	return mapErr(r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(a).Error)
}

func (r *paymentRepo) LockAttempt(ctx context.Context, remoteID string) (*domain.PaymentAttempt, error) {
	var a domain.PaymentAttempt
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&a, "remote_id = ?", remoteID).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (r *paymentRepo) SaveAttempt(ctx context.Context, a *domain.PaymentAttempt) error {
	return mapErr(r.db.WithContext(ctx).Save(a).Error)
}

func (r *paymentRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error) {
	var out []domain.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND remote_id IS NOT NULL AND updated_at < ?", string(domain.PaymentPending), before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *paymentRepo) ListRefundable(ctx context.Context, maxAttempts, limit int) ([]domain.Payment, error) {
	var out []domain.Payment
	err := r.db.WithContext(ctx).
		Joins("JOIN bookings b ON b.id = payments.booking_id").
		Where("payments.status = ? AND payments.refund_id IS NULL AND payments.refund_attempts < ?",
			string(domain.PaymentSucceeded), maxAttempts).
		Where("b.status IN ?", []string{string(domain.BookingCancelled), string(domain.BookingExpired)}).
		Order("payments.updated_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *paymentRepo) ListRefundableAttempts(ctx context.Context, maxAttempts, limit int) ([]domain.PaymentAttempt, error) {
	var out []domain.PaymentAttempt
	err := r.db.WithContext(ctx).
		Joins("JOIN payments p ON p.id = payment_attempts.payment_id").
		Where("payment_attempts.status = ? AND payment_attempts.refund_id IS NULL AND payment_attempts.refund_attempts < ?",
			string(domain.PaymentSucceeded), maxAttempts).
		Where("p.remote_id IS DISTINCT FROM payment_attempts.remote_id").
		Order("payment_attempts.updated_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
