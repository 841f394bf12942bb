package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/guregu/null.v4"
)

type PaymentStatus string

const (
	PaymentCreated   PaymentStatus = "CREATED"
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentSucceeded || s == PaymentFailed || s == PaymentCancelled
}

// Outcome reports whether s is a value a gateway may deliver as a final result.
func (s PaymentStatus) Outcome() bool { return s.Terminal() }

type Provider string

const (
	ProviderOmise    Provider = "omise"
	ProviderYooKassa Provider = "yookassa"
)

type Payment struct {
	ID              string          `gorm:"primaryKey" json:"id"`
	BookingID       string          `gorm:"index;not null" json:"booking_id"`
	PayerID         string          `gorm:"index" json:"payer_id"`
	Provider        Provider        `gorm:"not null" json:"provider"`
	RemoteID        null.String     `gorm:"index" json:"remote_id"`
	ConfirmationURL string          `json:"confirmation_url,omitempty"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency        string          `gorm:"size:3;not null" json:"currency"`
	Commission      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"commission"`
	Status          PaymentStatus   `gorm:"index;not null" json:"status"`
	RawResponse     string          `gorm:"type:text" json:"-"`
	RawWebhook      string          `gorm:"type:text" json:"-"`
	FinalizedAt     null.Time       `json:"finalized_at"`
	RefundID        null.String     `json:"refund_id"`
	RefundedAt      null.Time       `json:"refunded_at"`
	RefundAttempts  int             `gorm:"not null;default:0" json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PaymentAttempt maps every remote id ever issued for a payment back to it,
// so callbacks for a superseded checkout still resolve. Each attempt keeps
// its own outcome: a payer may complete an old checkout after a new one was
// opened, and that money must be traceable and refundable on its own.
type PaymentAttempt struct {
	RemoteID       string          `gorm:"primaryKey" json:"remote_id"`
	PaymentID      string          `gorm:"index;not null" json:"payment_id"`
	Provider       Provider        `gorm:"not null" json:"provider"`
	Amount         decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"amount"`
	Currency       string          `gorm:"size:3" json:"currency"`
	Status         PaymentStatus   `gorm:"index;not null;default:'PENDING'" json:"status"`
	FinalizedAt    null.Time       `json:"finalized_at"`
	RefundID       null.String     `json:"refund_id"`
	RefundedAt     null.Time       `json:"refunded_at"`
	RefundAttempts int             `gorm:"not null;default:0" json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Charge is p as captured through attempt a. Its ID is unique per attempt
// so that refunding an extra capture never reuses the payment's refund key.
func (a *PaymentAttempt) Charge(p *Payment) *Payment {
	c := *p
	c.ID = p.ID + "-" + a.RemoteID
	c.RemoteID = null.StringFrom(a.RemoteID)
	c.Amount, c.Currency = a.Amount, a.Currency
	c.Status = a.Status
	c.RefundID, c.RefundedAt, c.RefundAttempts = a.RefundID, a.RefundedAt, a.RefundAttempts
	return &c
}

// WebhookAction is what applying a gateway outcome to a payment amounts to.
type WebhookAction int

const (
	// WebhookApply moves a non-terminal payment to the outcome.
	WebhookApply WebhookAction = iota
	// WebhookDuplicate is a redelivery of the outcome already recorded.
	WebhookDuplicate
	// WebhookStale contradicts an already recorded terminal outcome and is ignored.
	WebhookStale
	// WebhookSuperseded belongs to an attempt the payment has moved past. Only
	// the attempt records it; a success there is refunded separately.
	WebhookSuperseded
)

func (a WebhookAction) String() string {
	switch a {
	case WebhookApply:
		return "apply"
	case WebhookDuplicate:
		return "duplicate"
	case WebhookSuperseded:
		return "superseded"
	default:
		return "stale"
	}
}

// ResolveWebhook is the payment transition table keyed by current status and outcome.
func ResolveWebhook(current, outcome PaymentStatus) WebhookAction {
	if !current.Terminal() {
		return WebhookApply
	}
	if current == outcome {
		return WebhookDuplicate
	}
	return WebhookStale
}

// ResolveAttemptWebhook extends ResolveWebhook to payments with several
// attempts. live reports whether the outcome is for the payment's recorded
// remote id. An outcome from any other attempt never moves the payment,
// except a success while the payment is still open: the payer did pay, and
// that attempt becomes the recorded one.
func ResolveAttemptWebhook(current PaymentStatus, live bool, outcome PaymentStatus) WebhookAction {
	if live {
		return ResolveWebhook(current, outcome)
	}
	if outcome == PaymentSucceeded && !current.Terminal() {
		return WebhookApply
	}
	return WebhookSuperseded
}
