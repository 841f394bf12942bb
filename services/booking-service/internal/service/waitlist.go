package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/events"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/repository"
)

// WaitlistSink is told when a booking stops holding its spot.
type WaitlistSink interface {
	SpotReleased(ctx context.Context, b *domain.Booking) error
}

// WaitlistNotifier publishes waitlist.spot_released for every WAITING entry
// whose desired interval intersects the released one.
type WaitlistNotifier struct {
	store repository.Store
	pub   events.Publisher
	now   func() time.Time
}

func NewWaitlistNotifier(d Deps) *WaitlistNotifier {
	return &WaitlistNotifier{store: d.Store, pub: d.Publisher, now: d.clock()}
}

func (w *WaitlistNotifier) Join(ctx context.Context, actor domain.Actor, spotID string, start, end time.Time, autoBook bool) (*domain.WaitlistEntry, error) {
	if actor.UserID == "" {
		return nil, domain.Validationf("user is required")
	}
	if !start.Before(end) {
		return nil, domain.Validationf("start must be before end")
	}
	if !end.After(w.now()) {
		return nil, domain.Validationf("desired interval is in the past")
	}
	if _, err := w.store.Spots().ByID(ctx, spotID); err != nil {
		return nil, err
	}
	e := &domain.WaitlistEntry{
		UserID:       actor.UserID,
		SpotID:       spotID,
		DesiredStart: start.UTC(),
		DesiredEnd:   end.UTC(),
		AutoBook:     autoBook,
		Status:       domain.WaitlistWaiting,
	}
	if err := w.store.Waitlist().Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// SpotReleased leaves an entry WAITING when its notification could not be published.
func (w *WaitlistNotifier) SpotReleased(ctx context.Context, b *domain.Booking) error {
	entries, err := w.store.Waitlist().ListWaiting(ctx, b.SpotID, b.StartTime, b.EndTime)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		msg := events.SpotReleased{
			EntryID:  e.ID,
			UserID:   e.UserID,
			SpotID:   e.SpotID,
			Start:    b.StartTime.Unix(),
			End:      b.EndTime.Unix(),
			AutoBook: e.AutoBook,
		}
		if w.pub != nil {
			if err := w.pub.PublishJSON(ctx, events.RKWaitlistSpotReleased, msg); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		if err := w.store.Waitlist().MarkNotified(ctx, e.ID, w.now()); err != nil {
			errs = append(errs, err)
			continue
		}
		log.Printf("[booking] waitlist entry %s notified of spot %s", e.ID, e.SpotID)
	}
	return errors.Join(errs...)
}
