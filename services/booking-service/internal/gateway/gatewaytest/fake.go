// Package gatewaytest provides a scriptable gateway.Adapter.
package gatewaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/gateway"
)

// SignatureHeader must equal "ok" for ParseWebhook to accept a request.
const SignatureHeader = "X-Fake-Signature"

type Fake struct {
	mu sync.Mutex

	// CreateErr, when set, is returned by the next CreateRemotePayment calls.
	CreateErr error
	FetchErr  error
	RefundErr error
	// BeforeCreate runs at the start of CreateRemotePayment, outside the fake's lock.
	BeforeCreate func()
	// Remote holds the provider-side status per remote id.
	Remote map[string]domain.PaymentStatus

	created int
	refunds []string
}

func New() *Fake {
	return &Fake{Remote: map[string]domain.PaymentStatus{}}
}

func (f *Fake) Provider() domain.Provider { return domain.ProviderYooKassa }

func (f *Fake) CreateRemotePayment(_ context.Context, p *domain.Payment, _ string) (*gateway.RemotePayment, error) {
	f.mu.Lock()
	hook := f.BeforeCreate
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.created++
	id := fmt.Sprintf("remote-%d", f.created)
	f.Remote[id] = domain.PaymentPending
	return &gateway.RemotePayment{
		RemoteID:        id,
		ConfirmationURL: "https://pay.example/" + id,
		Raw:             []byte(`{"id":"` + id + `","payment_id":"` + p.ID + `"}`),
	}, nil
}

// ParseWebhook reads {"remote_id": "...", "outcome": "SUCCEEDED"}.
func (f *Fake) ParseWebhook(_ context.Context, r *http.Request) (*gateway.NormalizedEvent, error) {
	if r.Header.Get(SignatureHeader) != "ok" {
		return nil, &domain.AuthenticityError{Provider: f.Provider(), Reason: "bad signature"}
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	var in struct {
		RemoteID string `json:"remote_id"`
		Outcome  string `json:"outcome"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, &domain.AuthenticityError{Provider: f.Provider(), Reason: "malformed"}
	}
	out := domain.PaymentStatus(in.Outcome)
	if !out.Outcome() {
		return nil, gateway.ErrUnsupportedEvent
	}
	return &gateway.NormalizedEvent{Provider: f.Provider(), RemoteID: in.RemoteID, Outcome: out, Raw: body}, nil
}

func (f *Fake) FetchOutcome(_ context.Context, remoteID string) (domain.PaymentStatus, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return "", nil, f.FetchErr
	}
	st, ok := f.Remote[remoteID]
	if !ok {
		return "", nil, &domain.GatewayError{Provider: f.Provider(), Op: "get_payment", Reason: "not found"}
	}
	return st, []byte(`{"id":"` + remoteID + `","status":"` + string(st) + `"}`), nil
}

func (f *Fake) Refund(_ context.Context, p *domain.Payment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RefundErr != nil {
		return "", f.RefundErr
	}
	f.refunds = append(f.refunds, p.ID)
	return "refund-" + p.ID, nil
}

// SetRemote records what the provider would report for remoteID.
func (f *Fake) SetRemote(remoteID string, st domain.PaymentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Remote[remoteID] = st
}

func (f *Fake) SetCreateErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateErr = err
}

func (f *Fake) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func (f *Fake) Refunds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refunds...)
}
