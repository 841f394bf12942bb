package service

import (
	"context"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/repository"
)

// SpotSvc keeps the local copy of spot rates that pricing reads.
type SpotSvc struct {
	store repository.Store
}

func NewSpotSvc(store repository.Store) *SpotSvc {
	return &SpotSvc{store: store}
}

func (s *SpotSvc) Create(ctx context.Context, actor domain.Actor, in domain.Spot) (*domain.Spot, error) {
	if !actor.Staff() {
		return nil, domain.ErrForbidden
	}
	if in.Name == "" {
		return nil, domain.Validationf("name is required")
	}
	if in.HourlyPrice.IsNegative() || in.DailyPrice.IsNegative() || in.MonthlyPrice.IsNegative() {
		return nil, domain.Validationf("prices must not be negative")
	}
	if in.OwnerID == "" {
		in.OwnerID = actor.UserID
	}
	if err := s.store.Spots().Create(ctx, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *SpotSvc) Get(ctx context.Context, id string) (*domain.Spot, error) {
	return s.store.Spots().ByID(ctx, id)
}
