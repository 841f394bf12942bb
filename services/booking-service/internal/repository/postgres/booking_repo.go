package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
)

type bookingRepo struct{ db *gorm.DB }

func (r *bookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return mapErr(r.db.WithContext(ctx).Create(b).Error)
}

func (r *bookingRepo) Save(ctx context.Context, b *domain.Booking) error {
	return mapErr(r.db.WithContext(ctx).Save(b).Error)
}

func (r *bookingRepo) ByID(ctx context.Context, id string) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &b, nil
}

func (r *bookingRepo) LockByID(ctx context.Context, id string) (*domain.Booking, error) {
	var b domain.Booking
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&b, "id = ?", id).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &b, nil
}

func (r *bookingRepo) HasOverlap(ctx context.Context, spotID string, start, end time.Time, excludeID string) (bool, error) {
	q := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("spot_id = ? AND status IN ?", spotID, strs(domain.HoldingStatuses)).
		Where("start_time < ? AND end_time > ?", end, start) // overlap condition
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *bookingRepo) ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_deadline <= ?", string(domain.BookingPending), now).
		Order("payment_deadline ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *bookingRepo) ListClockDue(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.db.WithContext(ctx).
		Where("(status = ? AND start_time <= ?) OR (status = ? AND end_time <= ?)",
			string(domain.BookingConfirmed), now, string(domain.BookingActive), now).
		Order("start_time ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *bookingRepo) List(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, int64, error) {
	if f.Size <= 0 {
		f.Size = 20
	}
	if f.Page < 0 {
		f.Page = 0
	}
	qb := r.db.WithContext(ctx).Model(&domain.Booking{})
	if f.UserID != "" {
		qb = qb.Where("user_id = ?", f.UserID)
	}
	if f.SpotID != "" {
		qb = qb.Where("spot_id = ?", f.SpotID)
	}
	if f.Status != "" {
		qb = qb.Where("status = ?", string(f.Status))
	}
	var total int64
	if err := qb.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.Booking
	if err := qb.Order("start_time ASC").Limit(f.Size).Offset(f.Page * f.Size).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
