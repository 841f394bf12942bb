package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/guregu/null.v4"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingActive    BookingStatus = "ACTIVE"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingExpired   BookingStatus = "EXPIRED"
)

// HoldingStatuses occupy the spot for availability purposes.
var HoldingStatuses = []BookingStatus{BookingPending, BookingConfirmed, BookingActive}

func (s BookingStatus) Holds() bool {
	return s == BookingPending || s == BookingConfirmed || s == BookingActive
}

func (s BookingStatus) Terminal() bool {
	return s == BookingCompleted || s == BookingCancelled || s == BookingExpired
}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled, BookingExpired},
	BookingConfirmed: {BookingActive, BookingCancelled},
	BookingActive:    {BookingCompleted, BookingCancelled},
}

// CanTransition reports whether from -> to is an edge of the booking lifecycle.
// Time guards (cancel before start, activation at start) are checked by callers.
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	for _, t := range bookingTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

type BookingKind string

const (
	KindHourly  BookingKind = "HOURLY"
	KindDaily   BookingKind = "DAILY"
	KindMonthly BookingKind = "MONTHLY"
)

func (k BookingKind) Valid() bool {
	return k == KindHourly || k == KindDaily || k == KindMonthly
}

// Booking reserves a spot for [StartTime, EndTime).
type Booking struct {
	ID                string          `gorm:"primaryKey" json:"id"`
	UserID            string          `gorm:"index;not null" json:"user_id"`
	SpotID            string          `gorm:"index;not null" json:"spot_id"`
	Kind              BookingKind     `gorm:"not null" json:"kind"`
	StartTime         time.Time       `gorm:"index;not null" json:"start"`
	EndTime           time.Time       `gorm:"index;not null" json:"end"`
	TotalPrice        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_price"`
	Currency          string          `gorm:"size:3;not null" json:"currency"`
	Status            BookingStatus   `gorm:"index;not null" json:"status"`
	Paid              bool            `gorm:"not null;default:false" json:"paid"`
	ExternalPaymentID null.String     `json:"external_payment_id"`
	PaymentDeadline   time.Time       `gorm:"index" json:"payment_deadline"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Overlaps applies the half-open interval test against [start, end).
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartTime.Before(end) && start.Before(b.EndTime)
}

func (b *Booking) Started(now time.Time) bool {
	return !now.Before(b.StartTime)
}

type BookingFilter struct {
	UserID string
	SpotID string
	Status BookingStatus
	Page   int
	Size   int
}
