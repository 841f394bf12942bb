package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
)

// Routing keys published on the booking exchange.
const (
	RKBookingCreated   = "booking.created"
	RKBookingUpdated   = "booking.updated"
	RKBookingConfirmed = "booking.confirmed"
	RKBookingCancelled = "booking.cancelled"
	RKBookingExpired   = "booking.expired"
	RKBookingActivated = "booking.activated"
	RKBookingCompleted = "booking.completed"

	RKPaymentInitiated = "payment.initiated"
	RKPaymentSucceeded = "payment.succeeded"
	RKPaymentFailed    = "payment.failed"
	RKPaymentCancelled = "payment.cancelled"
	RKPaymentRefunded  = "payment.refunded"

	RKWaitlistSpotReleased = "waitlist.spot_released"

	// RKPaymentWebhook carries verified gateway outcomes in relay mode.
	RKPaymentWebhook = "payment.webhook"
)

// Publisher is satisfied by *mq.Publisher and *realtime.Hub.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

type Booking struct {
	BookingID  string `json:"booking_id"`
	UserID     string `json:"user_id"`
	SpotID     string `json:"spot_id"`
	Status     string `json:"status"`
	Start      int64  `json:"start"` // unix seconds
	End        int64  `json:"end"`
	TotalPrice string `json:"total_price"`
	Currency   string `json:"currency"`
	Paid       bool   `json:"paid"`
}

func BookingOf(b *domain.Booking) Booking {
	return Booking{
		BookingID:  b.ID,
		UserID:     b.UserID,
		SpotID:     b.SpotID,
		Status:     string(b.Status),
		Start:      b.StartTime.Unix(),
		End:        b.EndTime.Unix(),
		TotalPrice: b.TotalPrice.StringFixed(2),
		Currency:   b.Currency,
		Paid:       b.Paid,
	}
}

type Payment struct {
	PaymentID string `json:"payment_id"`
	BookingID string `json:"booking_id"`
	UserID    string `json:"user_id"`
	Provider  string `json:"provider"`
	RemoteID  string `json:"remote_id"`
	Status    string `json:"status"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	RefundID  string `json:"refund_id,omitempty"`
}

func PaymentOf(p *domain.Payment) Payment {
	return Payment{
		PaymentID: p.ID,
		BookingID: p.BookingID,
		UserID:    p.PayerID,
		Provider:  string(p.Provider),
		RemoteID:  p.RemoteID.String,
		Status:    string(p.Status),
		Amount:    p.Amount.StringFixed(2),
		Currency:  p.Currency,
		RefundID:  p.RefundID.String,
	}
}

type SpotReleased struct {
	EntryID  string `json:"entry_id"`
	UserID   string `json:"user_id"`
	SpotID   string `json:"spot_id"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	AutoBook bool   `json:"auto_book"`
}

// Webhook is a verified, provider-neutral gateway outcome.
type Webhook struct {
	Provider   string    `json:"provider"`
	RemoteID   string    `json:"remote_id"`
	Outcome    string    `json:"outcome"`
	Raw        string    `json:"raw"`
	ReceivedAt time.Time `json:"received_at"`
}

// Multi fans a message out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) PublishJSON(ctx context.Context, key string, v any) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.PublishJSON(ctx, key, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps the routing keys it was asked to publish.
type Recorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *Recorder) PublishJSON(_ context.Context, key string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return nil
}

func (r *Recorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func (r *Recorder) Count(key string) int {
	n := 0
	for _, k := range r.Keys() {
		if k == key {
			n++
		}
	}
	return n
}
