package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/events"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/gateway"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/service"
)

// WebhookSink takes a verified outcome. The HTTP response is 200 only once
// Accept returned nil, so the provider keeps retrying until it is durable.
type WebhookSink interface {
	Accept(ctx context.Context, ev gateway.NormalizedEvent) (string, error)
}

// DirectSink applies the outcome inside the request.
type DirectSink struct {
	Payments *service.PaymentSvc
}

func (s DirectSink) Accept(ctx context.Context, ev gateway.NormalizedEvent) (string, error) {
	res, err := s.Payments.ApplyWebhook(ctx, ev)
	return string(res), err
}

// RelaySink hands the outcome to consumer.WebhookConsumer through the broker.
type RelaySink struct {
	Pub events.Publisher
}

func (s RelaySink) Accept(ctx context.Context, ev gateway.NormalizedEvent) (string, error) {
	err := s.Pub.PublishJSON(ctx, events.RKPaymentWebhook, events.Webhook{
		Provider:   string(ev.Provider),
		RemoteID:   ev.RemoteID,
		Outcome:    string(ev.Outcome),
		Raw:        string(ev.Raw),
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	return "relayed", nil
}

type WebhookHandler struct {
	gw   gateway.Adapter
	sink WebhookSink
}

func NewWebhookHandler(gw gateway.Adapter, sink WebhookSink) *WebhookHandler {
	return &WebhookHandler{gw: gw, sink: sink}
}

// POST /webhooks/:provider
func (h *WebhookHandler) Receive(c *gin.Context) {
	if domain.Provider(c.Param("provider")) != h.gw.Provider() {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}
	ctx := c.Request.Context()
	ev, err := h.gw.ParseWebhook(ctx, c.Request)
	if errors.Is(err, gateway.ErrUnsupportedEvent) {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if err != nil {
		log.Printf("[webhook] %s rejected: %v", h.gw.Provider(), err)
		writeError(c, err)
		return
	}
	res, err := h.sink.Accept(ctx, *ev)
	if err != nil {
		log.Printf("[webhook] %s remote_id=%s not applied: %v", ev.Provider, ev.RemoteID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "apply_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": res})
}
