// Package events mirrors the payloads booking-service publishes on booking.exchange.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

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
)

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

type SpotReleased struct {
	EntryID  string `json:"entry_id"`
	UserID   string `json:"user_id"`
	SpotID   string `json:"spot_id"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	AutoBook bool   `json:"auto_book"`
}

// ErrMalformed marks a payload that will never decode, so redelivery is pointless.
var ErrMalformed = errors.New("malformed payload")

func Decode[T any](b []byte) (T, error) {
	var t T
	if err := json.Unmarshal(b, &t); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return t, nil
}
