package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/events"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/gateway"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/service"
)

type Applier interface {
	ApplyWebhook(ctx context.Context, ev gateway.NormalizedEvent) (service.ApplyResult, error)
}

type Source interface {
	Deliveries(ctx context.Context) (<-chan amqp.Delivery, error)
}

// WebhookConsumer applies gateway outcomes relayed through RabbitMQ by the
// webhook endpoint. A message is acked only after the outcome is committed.
type WebhookConsumer struct {
	payments Applier
	src      Source
}

func NewWebhookConsumer(payments Applier, src Source) *WebhookConsumer {
	return &WebhookConsumer{payments: payments, src: src}
}

func (wc *WebhookConsumer) Run(ctx context.Context) error {
	msgs, err := wc.src.Deliveries(ctx)
	if err != nil {
		return err
	}
	go func() {
		for d := range msgs {
			wc.Handle(ctx, d)
		}
		log.Printf("[webhook-consumer] delivery channel closed")
	}()
	return nil
}

func (wc *WebhookConsumer) Handle(ctx context.Context, d amqp.Delivery) {
	if d.RoutingKey != events.RKPaymentWebhook {
		_ = d.Ack(false)
		return
	}
	var msg events.Webhook
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		log.Printf("[webhook-consumer] unmarshal error: %v", err)
		_ = d.Nack(false, false)
		return
	}
	ev := gateway.NormalizedEvent{
		Provider: domain.Provider(msg.Provider),
		RemoteID: msg.RemoteID,
		Outcome:  domain.PaymentStatus(msg.Outcome),
		Raw:      []byte(msg.Raw),
	}
	if ev.RemoteID == "" || !ev.Outcome.Outcome() {
		log.Printf("[webhook-consumer] invalid payload remote_id=%q outcome=%q", msg.RemoteID, msg.Outcome)
		_ = d.Nack(false, false)
		return
	}
	res, err := wc.payments.ApplyWebhook(ctx, ev)
	switch {
	case errors.Is(err, domain.ErrValidation):
		log.Printf("[webhook-consumer] rejected remote_id=%s: %v", ev.RemoteID, err)
		_ = d.Nack(false, false)
		return
	case err != nil:
		log.Printf("[webhook-consumer] apply error remote_id=%s: %v", ev.RemoteID, err)
		_ = d.Nack(false, true)
		return
	}
	log.Printf("[webhook-consumer] remote_id=%s outcome=%s %s", ev.RemoteID, ev.Outcome, res)
	_ = d.Ack(false)
}
