package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
)

type waitlistRepo struct{ db *gorm.DB }

func (r *waitlistRepo) Create(ctx context.Context, e *domain.WaitlistEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return mapErr(r.db.WithContext(ctx).Create(e).Error)
}

func (r *waitlistRepo) ListWaiting(ctx context.Context, spotID string, start, end time.Time) ([]domain.WaitlistEntry, error) {
	var out []domain.WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("spot_id = ? AND status = ?", spotID, string(domain.WaitlistWaiting)).
		Where("desired_start < ? AND desired_end > ?", end, start).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *waitlistRepo) MarkNotified(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.WaitlistEntry{}).
		Where("id = ? AND status = ?", id, string(domain.WaitlistWaiting)).
		Updates(map[string]any{"status": string(domain.WaitlistNotified), "notified_at": at})
	return mapErr(res.Error)
}
