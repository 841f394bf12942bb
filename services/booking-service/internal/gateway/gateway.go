// Package gateway adapts external payment providers to one interface.
// The variant in use is chosen from explicit configuration by New.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
)

// ErrUnsupportedEvent marks an authentic webhook that carries no final outcome.
// Callers acknowledge it and do nothing.
var ErrUnsupportedEvent = errors.New("webhook event carries no final payment outcome")

type RemotePayment struct {
	RemoteID        string
	ConfirmationURL string
	Raw             []byte
}

// NormalizedEvent is a verified gateway outcome for one remote payment.
type NormalizedEvent struct {
	Provider domain.Provider
	RemoteID string
	Outcome  domain.PaymentStatus
	Raw      []byte
}

type Adapter interface {
	Provider() domain.Provider
	// CreateRemotePayment registers p with the provider and returns where the payer confirms it.
	CreateRemotePayment(ctx context.Context, p *domain.Payment, returnURL string) (*RemotePayment, error)
	// ParseWebhook proves the request authentic before reading its outcome.
	ParseWebhook(ctx context.Context, r *http.Request) (*NormalizedEvent, error)
	// FetchOutcome asks the provider for the current status; PENDING if not final yet.
	FetchOutcome(ctx context.Context, remoteID string) (domain.PaymentStatus, []byte, error)
	Refund(ctx context.Context, p *domain.Payment) (string, error)
}

type OmiseConfig struct {
	PublicKey     string
	SecretKey     string
	WebhookSecret string
	SourceType    string
}

type YooKassaConfig struct {
	ShopID        string
	SecretKey     string
	WebhookSecret string
	BaseURL       string
}

type Config struct {
	Provider domain.Provider
	Timeout  time.Duration
	Omise    OmiseConfig
	YooKassa YooKassaConfig
}

func New(cfg Config) (Adapter, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	switch cfg.Provider {
	case domain.ProviderOmise:
		return NewOmise(cfg.Omise, cfg.Timeout)
	case domain.ProviderYooKassa:
		return NewYooKassa(cfg.YooKassa, cfg.Timeout)
	}
	return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
}

// minorUnits converts 123.45 to 12345.
func minorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}
