package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
)

const omiseSignatureTolerance = 5 * time.Minute

type Omise struct {
	client        *omise.Client
	webhookSecret []byte
	sourceType    string
	timeout       time.Duration
}

func NewOmise(cfg OmiseConfig, timeout time.Duration) (*Omise, error) {
	c, err := omise.NewClient(cfg.PublicKey, cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	c.SetDebug(false)

	// Omise hands out the webhook secret base64 encoded
	secret := []byte(cfg.WebhookSecret)
	if dec, err := base64.StdEncoding.DecodeString(cfg.WebhookSecret); err == nil && cfg.WebhookSecret != "" {
		secret = dec
	}
	src := cfg.SourceType
	if src == "" {
		src = "mobile_banking_kbank"
	}
	return &Omise{client: c, webhookSecret: secret, sourceType: src, timeout: timeout}, nil
}

func (o *Omise) Provider() domain.Provider { return domain.ProviderOmise }

func (o *Omise) CreateRemotePayment(ctx context.Context, p *domain.Payment, returnURL string) (*RemotePayment, error) {
	amount := minorUnits(p.Amount)
	currency := strings.ToLower(p.Currency)

	src := &omise.Source{}
	err := o.call(ctx, "create_source", func() error {
		return o.client.Do(src, &operations.CreateSource{
			Type:     o.sourceType,
			Amount:   amount,
			Currency: currency,
		})
	})
	if err != nil {
		return nil, err
	}

	ch := &omise.Charge{}
	err = o.call(ctx, "create_charge", func() error {
		return o.client.Do(ch, &operations.CreateCharge{
			Amount:    amount,
			Currency:  currency,
			Source:    src.ID,
			ReturnURI: returnURL,
			Metadata:  map[string]interface{}{"payment_id": p.ID, "booking_id": p.BookingID},
		})
	})
	if err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(ch)
	if string(ch.Status) == "failed" {
		reason := "charge failed"
		if ch.FailureCode != nil {
			reason = *ch.FailureCode
		}
		return nil, &domain.GatewayError{Provider: domain.ProviderOmise, Op: "create_charge", Reason: reason}
	}
	return &RemotePayment{RemoteID: ch.ID, ConfirmationURL: ch.AuthorizeURI, Raw: raw}, nil
}

type omiseIncoming struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// ParseWebhook checks the Omise-Signature header when a webhook secret is
// configured, then re-fetches the event from Omise and trusts only that copy.
func (o *Omise) ParseWebhook(ctx context.Context, r *http.Request) (*NormalizedEvent, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, &domain.AuthenticityError{Provider: domain.ProviderOmise, Reason: "unreadable body", Err: err}
	}
	if len(o.webhookSecret) > 0 {
		err := verifyOmiseSignature(o.webhookSecret, r.Header.Get("Omise-Signature-Timestamp"), r.Header.Get("Omise-Signature"), body, time.Now())
		if err != nil {
			return nil, &domain.AuthenticityError{Provider: domain.ProviderOmise, Reason: "bad signature", Err: err}
		}
	}
	var inc omiseIncoming
	if err := json.Unmarshal(body, &inc); err != nil || inc.ID == "" {
		return nil, &domain.AuthenticityError{Provider: domain.ProviderOmise, Reason: "malformed event"}
	}

	ev := &omise.Event{}
	err = o.call(ctx, "retrieve_event", func() error {
		return o.client.Do(ev, &operations.RetrieveEvent{EventID: inc.ID})
	})
	if err != nil {
		if domain.IsRetryable(err) {
			return nil, err
		}
		return nil, &domain.AuthenticityError{Provider: domain.ProviderOmise, Reason: "event unknown to omise", Err: err}
	}
	if ev.Key != "charge.complete" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, ev.Key)
	}

	// ev.Data is interface{}; round-trip it into a Charge
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	var ch omise.Charge
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, fmt.Errorf("decode charge: %w", err)
	}
	outcome := omiseChargeOutcome(string(ch.Status))
	if !outcome.Outcome() {
		return nil, fmt.Errorf("%w: charge %s is %s", ErrUnsupportedEvent, ch.ID, ch.Status)
	}
	return &NormalizedEvent{Provider: domain.ProviderOmise, RemoteID: ch.ID, Outcome: outcome, Raw: body}, nil
}

func (o *Omise) FetchOutcome(ctx context.Context, remoteID string) (domain.PaymentStatus, []byte, error) {
	ch := &omise.Charge{}
	err := o.call(ctx, "retrieve_charge", func() error {
		return o.client.Do(ch, &operations.RetrieveCharge{ChargeID: remoteID})
	})
	if err != nil {
		return "", nil, err
	}
	raw, _ := json.Marshal(ch)
	return omiseChargeOutcome(string(ch.Status)), raw, nil
}

func (o *Omise) Refund(ctx context.Context, p *domain.Payment) (string, error) {
	if !p.RemoteID.Valid {
		return "", &domain.GatewayError{Provider: domain.ProviderOmise, Op: "refund", Reason: "payment has no charge"}
	}
	rf := &omise.Refund{}
	err := o.call(ctx, "refund", func() error {
		return o.client.Do(rf, &operations.CreateRefund{
			ChargeID: p.RemoteID.String,
			Amount:   minorUnits(p.Amount),
		})
	})
	if err != nil {
		return "", err
	}
	return rf.ID, nil
}

// call runs an SDK request with the adapter timeout. The SDK takes no
// context, so a timed out request is abandoned rather than cancelled.
func (o *Omise) call(ctx context.Context, op string, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return classifyOmise(op, err)
	case <-ctx.Done():
		return &domain.GatewayError{Provider: domain.ProviderOmise, Op: op, Retryable: true, Reason: "timeout", Err: ctx.Err()}
	}
}

func classifyOmise(op string, err error) error {
	if err == nil {
		return nil
	}
	var oe *omise.Error
	if errors.As(err, &oe) {
		return &domain.GatewayError{
			Provider:  domain.ProviderOmise,
			Op:        op,
			Retryable: retryableStatus(oe.StatusCode),
			Reason:    oe.Code,
			Err:       err,
		}
	}
	return &domain.GatewayError{Provider: domain.ProviderOmise, Op: op, Retryable: true, Reason: "transport", Err: err}
}

func omiseChargeOutcome(status string) domain.PaymentStatus {
	switch status {
	case "successful":
		return domain.PaymentSucceeded
	case "failed":
		return domain.PaymentFailed
	case "expired", "reversed":
		return domain.PaymentCancelled
	}
	return domain.PaymentPending
}

// verifyOmiseSignature checks HMAC-SHA256(secret, timestamp + "." + body)
// against any of the comma separated hex signatures.
func verifyOmiseSignature(secret []byte, timestamp, header string, body []byte, now time.Time) error {
	if timestamp == "" || header == "" {
		return errors.New("missing signature headers")
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("bad timestamp: %w", err)
	}
	if d := now.Sub(time.Unix(ts, 0)); d > omiseSignatureTolerance || d < -omiseSignatureTolerance {
		return errors.New("timestamp outside tolerance")
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp + "."))
	mac.Write(body)
	want := mac.Sum(nil)
	for _, s := range strings.Split(header, ",") {
		got, err := hex.DecodeString(strings.TrimSpace(s))
		if err == nil && hmac.Equal(got, want) {
			return nil
		}
	}
	return errors.New("no matching signature")
}
