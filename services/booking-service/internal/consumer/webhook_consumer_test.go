package consumer

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/events"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/gateway"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/service"
)

type ack struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *ack) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *ack) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func (a *ack) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

type applier struct {
	err  error
	seen []gateway.NormalizedEvent
}

func (f *applier) ApplyWebhook(_ context.Context, ev gateway.NormalizedEvent) (service.ApplyResult, error) {
	f.seen = append(f.seen, ev)
	return service.ApplyApplied, f.err
}

func delivery(key, body string) (amqp.Delivery, *ack) {
	a := &ack{}
	return amqp.Delivery{Acknowledger: a, RoutingKey: key, Body: []byte(body)}, a
}

const okBody = `{"provider":"yookassa","remote_id":"r-1","outcome":"SUCCEEDED","raw":"{}"}`

func TestHandleAppliesAndAcks(t *testing.T) {
	f := &applier{}
	d, a := delivery(events.RKPaymentWebhook, okBody)
	NewWebhookConsumer(f, nil).Handle(context.Background(), d)

	assert.True(t, a.acked)
	if assert.Len(t, f.seen, 1) {
		assert.Equal(t, "r-1", f.seen[0].RemoteID)
		assert.Equal(t, domain.PaymentSucceeded, f.seen[0].Outcome)
		assert.Equal(t, domain.ProviderYooKassa, f.seen[0].Provider)
	}
}

func TestHandleRequeuesOnApplyError(t *testing.T) {
	f := &applier{err: errors.New("db down")}
	d, a := delivery(events.RKPaymentWebhook, okBody)
	NewWebhookConsumer(f, nil).Handle(context.Background(), d)

	assert.False(t, a.acked)
	assert.True(t, a.nacked)
	assert.True(t, a.requeue)
}

func TestHandleDeadLettersBadMessages(t *testing.T) {
	for name, body := range map[string]string{
		"not json":  `{`,
		"no remote": `{"outcome":"SUCCEEDED"}`,
		"not final": `{"remote_id":"r-1","outcome":"PENDING"}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := &applier{}
			d, a := delivery(events.RKPaymentWebhook, body)
			NewWebhookConsumer(f, nil).Handle(context.Background(), d)
			assert.True(t, a.nacked)
			assert.False(t, a.requeue)
			assert.Empty(t, f.seen)
		})
	}
}

func TestHandleAcksOtherKeys(t *testing.T) {
	f := &applier{}
	d, a := delivery("booking.created", `{}`)
	NewWebhookConsumer(f, nil).Handle(context.Background(), d)
	assert.True(t, a.acked)
	assert.Empty(t, f.seen)
}
