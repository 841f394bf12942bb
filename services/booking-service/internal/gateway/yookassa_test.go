package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
)

type ykServer struct {
	mu       sync.Mutex
	payments map[string]string // remote id -> status
	idemKeys []string
	failWith int
}

func (s *ykServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "shop", user)
		assert.Equal(t, "key", pass)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.idemKeys = append(s.idemKeys, r.Header.Get("Idempotence-Key"))
		if s.failWith != 0 {
			w.WriteHeader(s.failWith)
			_, _ = w.Write([]byte(`{"type":"error","code":"internal_server_error"}`))
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/payments":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "200.00", body["amount"].(map[string]any)["value"])
			_, _ = w.Write([]byte(`{"id":"yk-1","status":"pending","confirmation":{"type":"redirect","confirmation_url":"https://pay.example/yk-1"}}`))
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/payments/"):
			id := strings.TrimPrefix(r.URL.Path, "/payments/")
			st, ok := s.payments[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if st == "declined" {
				_, _ = w.Write([]byte(`{"id":"` + id + `","status":"canceled","cancellation_details":{"party":"payment_network","reason":"insufficient_funds"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"` + id + `","status":"` + st + `"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/refunds":
			_, _ = w.Write([]byte(`{"id":"rf-1","status":"succeeded"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newYK(t *testing.T, s *ykServer) *YooKassa {
	srv := httptest.NewServer(s.handler(t))
	t.Cleanup(srv.Close)
	y, err := NewYooKassa(YooKassaConfig{ShopID: "shop", SecretKey: "key", WebhookSecret: "hook", BaseURL: srv.URL}, time.Second)
	require.NoError(t, err)
	return y
}

func payment() *domain.Payment {
	return &domain.Payment{ID: "p1", BookingID: "b1", Amount: decimal.NewFromInt(200), Currency: "RUB"}
}

func TestYooKassaCreateRemotePayment(t *testing.T) {
	s := &ykServer{}
	y := newYK(t, s)

	rp, err := y.CreateRemotePayment(context.Background(), payment(), "https://app.example/return")
	require.NoError(t, err)
	assert.Equal(t, "yk-1", rp.RemoteID)
	assert.Equal(t, "https://pay.example/yk-1", rp.ConfirmationURL)
	require.Len(t, s.idemKeys, 1)
	assert.NotEmpty(t, s.idemKeys[0])
}

func TestYooKassaErrorsClassified(t *testing.T) {
	s := &ykServer{failWith: http.StatusInternalServerError}
	y := newYK(t, s)

	_, err := y.CreateRemotePayment(context.Background(), payment(), "")
	var ge *domain.GatewayError
	require.True(t, errors.As(err, &ge))
	assert.True(t, ge.Retryable)

	s.mu.Lock()
	s.failWith = http.StatusBadRequest
	s.mu.Unlock()
	_, err = y.CreateRemotePayment(context.Background(), payment(), "")
	require.True(t, errors.As(err, &ge))
	assert.False(t, ge.Retryable)
}

func webhookRequest(target, body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
}

func TestYooKassaParseWebhook(t *testing.T) {
	s := &ykServer{payments: map[string]string{"yk-ok": "succeeded", "yk-wait": "pending", "yk-bad": "declined", "yk-gone": "canceled"}}
	y := newYK(t, s)
	ctx := context.Background()

	ev, err := y.ParseWebhook(ctx, webhookRequest("/webhooks/yookassa?secret=hook", `{"type":"notification","event":"payment.succeeded","object":{"id":"yk-ok"}}`))
	require.NoError(t, err)
	assert.Equal(t, "yk-ok", ev.RemoteID)
	assert.Equal(t, domain.PaymentSucceeded, ev.Outcome)

	ev, err = y.ParseWebhook(ctx, webhookRequest("/webhooks/yookassa?secret=hook", `{"event":"payment.canceled","object":{"id":"yk-bad"}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, ev.Outcome)

	ev, err = y.ParseWebhook(ctx, webhookRequest("/webhooks/yookassa?secret=hook", `{"event":"payment.canceled","object":{"id":"yk-gone"}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCancelled, ev.Outcome)

	// a forged body claiming success is decided by the API copy
	_, err = y.ParseWebhook(ctx, webhookRequest("/webhooks/yookassa?secret=hook", `{"event":"payment.succeeded","object":{"id":"yk-wait"}}`))
	assert.ErrorIs(t, err, ErrUnsupportedEvent)

	var ae *domain.AuthenticityError
	_, err = y.ParseWebhook(ctx, webhookRequest("/webhooks/yookassa?secret=wrong", `{"object":{"id":"yk-ok"}}`))
	assert.True(t, errors.As(err, &ae))

	_, err = y.ParseWebhook(ctx, webhookRequest("/webhooks/yookassa?secret=hook", `{"object":{"id":"yk-unknown"}}`))
	assert.True(t, errors.As(err, &ae))

	_, err = y.ParseWebhook(ctx, webhookRequest("/webhooks/yookassa?secret=hook", `not json`))
	assert.True(t, errors.As(err, &ae))
}

func TestYooKassaRefundUsesStableKey(t *testing.T) {
	s := &ykServer{}
	y := newYK(t, s)
	p := payment()
	p.RemoteID = null.StringFrom("yk-1")

	id, err := y.Refund(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "rf-1", id)
	_, err = y.Refund(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"refund-p1", "refund-p1"}, s.idemKeys)
}

func TestNewSelectsProvider(t *testing.T) {
	a, err := New(Config{Provider: domain.ProviderYooKassa, YooKassa: YooKassaConfig{ShopID: "s", SecretKey: "k"}})
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderYooKassa, a.Provider())

	_, err = New(Config{Provider: "paypal"})
	assert.Error(t, err)
}
