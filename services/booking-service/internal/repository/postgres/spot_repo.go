package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
)

type spotRepo struct{ db *gorm.DB }

func (r *spotRepo) Create(ctx context.Context, s *domain.Spot) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return mapErr(r.db.WithContext(ctx).Create(s).Error)
}

func (r *spotRepo) ByID(ctx context.Context, id string) (*domain.Spot, error) {
	var s domain.Spot
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

// LockByID serialises bookings on one spot: holders of the lock are the only
// writers allowed to check and insert intervals for it.
func (r *spotRepo) LockByID(ctx context.Context, id string) (*domain.Spot, error) {
	var s domain.Spot
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&s, "id = ?", id).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}
