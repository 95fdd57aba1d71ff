package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Channels used by the booking core. Downstream notification and analytics
// consumers subscribe to BookingEvents; the payment subsystem publishes its
// gateway callbacks on PaymentEvents.
const (
	BookingEventsChannel = "booking.events"
	PaymentEventsChannel = "payment.events"
)

// BookingEvent is published on every appointment lifecycle transition.
type BookingEvent struct {
	Type          string      `json:"type"`
	AppointmentID string      `json:"appointment_id"`
	Payload       interface{} `json:"payload,omitempty"`
}

const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
	EventBookingExpired   = "booking.expired"
)
