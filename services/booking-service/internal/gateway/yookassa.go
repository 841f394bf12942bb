package gateway

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
)

const yooKassaAPI = "https://api.yookassa.ru/v3"

// YooKassa talks to the REST v3 API. YooKassa does not sign notifications,
// so a webhook is accepted only with the shared secret in its URL and its
// outcome is always re-read from the API.
type YooKassa struct {
	shopID        string
	secretKey     string
	webhookSecret string
	baseURL       string
	client        *http.Client
}

func NewYooKassa(cfg YooKassaConfig, timeout time.Duration) (*YooKassa, error) {
	if cfg.ShopID == "" || cfg.SecretKey == "" {
		return nil, errors.New("yookassa: shop id and secret key are required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = yooKassaAPI
	}
	return &YooKassa{
		shopID:        cfg.ShopID,
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       base,
		client:        &http.Client{Timeout: timeout},
	}, nil
}

func (y *YooKassa) Provider() domain.Provider { return domain.ProviderYooKassa }

type ykAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type ykConfirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type ykPayment struct {
	ID                  string            `json:"id"`
	Status              string            `json:"status"`
	Paid                bool              `json:"paid"`
	Amount              ykAmount          `json:"amount"`
	Confirmation        *ykConfirmation   `json:"confirmation,omitempty"`
	CancellationDetails *ykCancellation   `json:"cancellation_details,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

type ykCancellation struct {
	Party  string `json:"party"`
	Reason string `json:"reason"`
}

type ykNotification struct {
	Type   string `json:"type"`
	Event  string `json:"event"`
	Object struct {
		ID string `json:"id"`
	} `json:"object"`
}

func (y *YooKassa) CreateRemotePayment(ctx context.Context, p *domain.Payment, returnURL string) (*RemotePayment, error) {
	req := map[string]any{
		"amount":       ykAmount{Value: p.Amount.StringFixed(2), Currency: p.Currency},
		"capture":      true,
		"confirmation": ykConfirmation{Type: "redirect", ReturnURL: returnURL},
		"description":  fmt.Sprintf("Parking booking %s", p.BookingID),
		"metadata":     map[string]string{"payment_id": p.ID, "booking_id": p.BookingID},
	}
	var out ykPayment
	raw, err := y.do(ctx, "create_payment", http.MethodPost, "/payments", uuid.NewString(), req, &out)
	if err != nil {
		return nil, err
	}
	rp := &RemotePayment{RemoteID: out.ID, Raw: raw}
	if out.Confirmation != nil {
		rp.ConfirmationURL = out.Confirmation.ConfirmationURL
	}
	return rp, nil
}

func (y *YooKassa) ParseWebhook(ctx context.Context, r *http.Request) (*NormalizedEvent, error) {
	if y.webhookSecret != "" {
		got := r.URL.Query().Get("secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(y.webhookSecret)) != 1 {
			return nil, &domain.AuthenticityError{Provider: domain.ProviderYooKassa, Reason: "bad webhook secret"}
		}
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, &domain.AuthenticityError{Provider: domain.ProviderYooKassa, Reason: "unreadable body", Err: err}
	}
	var n ykNotification
	if err := json.Unmarshal(body, &n); err != nil || n.Object.ID == "" {
		return nil, &domain.AuthenticityError{Provider: domain.ProviderYooKassa, Reason: "malformed notification"}
	}

	// the notification body is only a hint; the API copy decides
	outcome, _, err := y.FetchOutcome(ctx, n.Object.ID)
	if err != nil {
		if domain.IsRetryable(err) {
			return nil, err
		}
		return nil, &domain.AuthenticityError{Provider: domain.ProviderYooKassa, Reason: "payment unknown to yookassa", Err: err}
	}
	if !outcome.Outcome() {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedEvent, n.Event, n.Object.ID)
	}
	return &NormalizedEvent{Provider: domain.ProviderYooKassa, RemoteID: n.Object.ID, Outcome: outcome, Raw: body}, nil
}

func (y *YooKassa) FetchOutcome(ctx context.Context, remoteID string) (domain.PaymentStatus, []byte, error) {
	var out ykPayment
	raw, err := y.do(ctx, "get_payment", http.MethodGet, "/payments/"+url.PathEscape(remoteID), "", nil, &out)
	if err != nil {
		return "", nil, err
	}
	return yooKassaOutcome(&out), raw, nil
}

func (y *YooKassa) Refund(ctx context.Context, p *domain.Payment) (string, error) {
	if !p.RemoteID.Valid {
		return "", &domain.GatewayError{Provider: domain.ProviderYooKassa, Op: "refund", Reason: "payment has no remote id"}
	}
	req := map[string]any{
		"payment_id": p.RemoteID.String,
		"amount":     ykAmount{Value: p.Amount.StringFixed(2), Currency: p.Currency},
	}
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	// stable key: repeated sweeps must not refund twice
	if _, err := y.do(ctx, "refund", http.MethodPost, "/refunds", "refund-"+p.ID, req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (y *YooKassa) do(ctx context.Context, op, method, path, idemKey string, in, out any) ([]byte, error) {
	var rd io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, y.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(y.shopID, y.secretKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idemKey != "" {
		req.Header.Set("Idempotence-Key", idemKey)
	}

	res, err := y.client.Do(req)
	if err != nil {
		return nil, &domain.GatewayError{Provider: domain.ProviderYooKassa, Op: op, Retryable: true, Reason: "transport", Err: err}
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &domain.GatewayError{
			Provider:  domain.ProviderYooKassa,
			Op:        op,
			Retryable: retryableStatus(res.StatusCode),
			Reason:    fmt.Sprintf("http %d: %s", res.StatusCode, truncate(body, 200)),
		}
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, &domain.GatewayError{Provider: domain.ProviderYooKassa, Op: op, Reason: "bad response body", Err: err}
		}
	}
	return body, nil
}

// Cancellation reasons that mean the payer's attempt was declined rather than abandoned.
var ykDeclined = map[string]bool{
	"3d_secure_failed":              true,
	"call_issuer":                   true,
	"card_expired":                  true,
	"country_forbidden":             true,
	"fraud_suspected":               true,
	"general_decline":               true,
	"identification_required":       true,
	"insufficient_funds":            true,
	"invalid_card_number":           true,
	"invalid_csc":                   true,
	"issuer_unavailable":            true,
	"payment_method_limit_exceeded": true,
	"payment_method_restricted":     true,
}

func yooKassaOutcome(p *ykPayment) domain.PaymentStatus {
	switch p.Status {
	case "succeeded":
		return domain.PaymentSucceeded
	case "canceled":
		if p.CancellationDetails != nil && ykDeclined[p.CancellationDetails.Reason] {
			return domain.PaymentFailed
		}
		return domain.PaymentCancelled
	}
	return domain.PaymentPending
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
