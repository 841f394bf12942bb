package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Leis4/parkshare-ru-part1/services/notification-service/internal/events"
	"github.com/Leis4/parkshare-ru-part1/services/notification-service/internal/notifier"
)

type Source interface {
	Deliveries(ctx context.Context) (<-chan amqp.Delivery, error)
}

type Consumer struct {
	src      Source
	notifier notifier.Notifier
	loc      *time.Location
}

func NewConsumer(src Source, n notifier.Notifier, loc *time.Location) *Consumer {
	if loc == nil {
		loc = time.UTC
	}
	return &Consumer{src: src, notifier: n, loc: loc}
}

func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.src.Deliveries(ctx)
	if err != nil {
		return fmt.Errorf("consume failed: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.dispatch(d)
		}
	}
}

func (c *Consumer) dispatch(d amqp.Delivery) {
	err := c.handleDelivery(d.RoutingKey, d.Body)
	switch {
	case errors.Is(err, events.ErrMalformed):
		log.Printf("[notify] drop key=%s err=%v -> dlq", d.RoutingKey, err)
		_ = d.Nack(false, false)
	case err != nil:
		log.Printf("[notify] handle error key=%s err=%v -> Nack&requeue", d.RoutingKey, err)
		_ = d.Nack(false, true)
	default:
		_ = d.Ack(false)
	}
}

func (c *Consumer) handleDelivery(key string, body []byte) error {
	switch key {
	case events.RKBookingCreated, events.RKBookingConfirmed, events.RKBookingCancelled,
		events.RKBookingExpired, events.RKBookingActivated, events.RKBookingCompleted, events.RKBookingUpdated:
		ev, err := events.Decode[events.Booking](body)
		if err != nil {
			return err
		}
		subject, msg := c.bookingText(key, ev)
		return c.notifier.Notify(ev.UserID, subject, msg)

	case events.RKPaymentSucceeded, events.RKPaymentFailed, events.RKPaymentCancelled, events.RKPaymentRefunded:
		ev, err := events.Decode[events.Payment](body)
		if err != nil {
			return err
		}
		subject, msg := paymentText(key, ev)
		return c.notifier.Notify(ev.UserID, subject, msg)

	case events.RKWaitlistSpotReleased:
		ev, err := events.Decode[events.SpotReleased](body)
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("Spot %s is free for %s.", ev.SpotID, notifier.HumanTimeRange(ev.Start, ev.End, c.loc))
		if ev.AutoBook {
			msg += " Book it now before someone else does."
		}
		return c.notifier.Notify(ev.UserID, "Spot available", msg)

	default:
		log.Printf("[notify] skip key=%s", key)
	}
	return nil
}

func (c *Consumer) bookingText(key string, ev events.Booking) (string, string) {
	when := notifier.HumanTimeRange(ev.Start, ev.End, c.loc)
	switch key {
	case events.RKBookingCreated:
		return "Booking created", fmt.Sprintf("Booking %s on spot %s, %s. Total %s %s, awaiting payment.", ev.BookingID, ev.SpotID, when, ev.TotalPrice, ev.Currency)
	case events.RKBookingUpdated:
		return "Booking updated", fmt.Sprintf("Booking %s is now %s. Total %s %s.", ev.BookingID, when, ev.TotalPrice, ev.Currency)
	case events.RKBookingConfirmed:
		return "Booking confirmed", fmt.Sprintf("Booking %s on spot %s, %s, is paid and confirmed.", ev.BookingID, ev.SpotID, when)
	case events.RKBookingCancelled:
		return "Booking cancelled", fmt.Sprintf("Booking %s has been cancelled.", ev.BookingID)
	case events.RKBookingExpired:
		return "Booking expired", fmt.Sprintf("Booking %s expired because it was not paid in time.", ev.BookingID)
	case events.RKBookingActivated:
		return "Parking started", fmt.Sprintf("Booking %s on spot %s has started.", ev.BookingID, ev.SpotID)
	default:
		return "Parking finished", fmt.Sprintf("Booking %s has ended.", ev.BookingID)
	}
}

func paymentText(key string, ev events.Payment) (string, string) {
	switch key {
	case events.RKPaymentSucceeded:
		return "Payment received", fmt.Sprintf("Booking %s paid %s %s (%s %s).", ev.BookingID, ev.Amount, ev.Currency, ev.Provider, ev.RemoteID)
	case events.RKPaymentFailed:
		return "Payment failed", fmt.Sprintf("Payment for booking %s failed. You can try again before the deadline.", ev.BookingID)
	case events.RKPaymentCancelled:
		return "Payment cancelled", fmt.Sprintf("Payment for booking %s was cancelled.", ev.BookingID)
	default:
		return "Payment refunded", fmt.Sprintf("%s %s for booking %s has been refunded (refund %s).", ev.Amount, ev.Currency, ev.BookingID, ev.RefundID)
	}
}
