// Package events defines booking lifecycle events and the transports that
// carry them to notification handlers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types. The suffix is the payload version.
const (
	TypeBookingCreated     = "booking.created.v1"
	TypeBookingConfirmed   = "booking.confirmed.v1"
	TypeBookingCancelled   = "booking.cancelled.v1"
	TypeBookingRescheduled = "booking.rescheduled.v1"
	TypeBookingCompleted   = "booking.completed.v1"
	TypeBookingNoShow      = "booking.no_show.v1"
	TypeBookingReminder    = "booking.reminder.v1"
)

// BookingSnapshot is the booking as it was when the event was raised.
// Tokens travel with the event so notification emails can embed links.
type BookingSnapshot struct {
	ID                 uuid.UUID `json:"id"`
	TenantID           uuid.UUID `json:"tenant_id"`
	ProviderID         uuid.UUID `json:"provider_id"`
	ServiceID          uuid.UUID `json:"service_id"`
	ClientID           uuid.UUID `json:"client_id"`
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	Status             string    `json:"status"`
	PriceCents         int64     `json:"price_cents"`
	ConfirmationToken  string    `json:"confirmation_token,omitempty"`
	CancellationToken  string    `json:"cancellation_token,omitempty"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
}

// BookingEvent is published after a booking changes state.
type BookingEvent struct {
	EventID    uuid.UUID       `json:"event_id"`
	Type       string          `json:"type"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Booking    BookingSnapshot `json:"booking"`
	// PreviousStart is set on reschedule events.
	PreviousStart *time.Time `json:"previous_start,omitempty"`
	// ReminderOffset is set on reminder events, e.g. 24h0m0s.
	ReminderOffset time.Duration `json:"reminder_offset,omitempty"`
}

// NewBookingEvent stamps a fresh id and time on the event.
func NewBookingEvent(eventType string, snapshot BookingSnapshot, now time.Time) BookingEvent {
	return BookingEvent{
		EventID:    uuid.New(),
		Type:       eventType,
		TenantID:   snapshot.TenantID,
		OccurredAt: now.UTC(),
		Booking:    snapshot,
	}
}

// Publisher accepts events for delivery.
type Publisher interface {
	Publish(ctx context.Context, evt BookingEvent) error
}

// Handler consumes delivered events.
type Handler interface {
	Handle(ctx context.Context, evt BookingEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt BookingEvent) error

func (f HandlerFunc) Handle(ctx context.Context, evt BookingEvent) error {
	return f(ctx, evt)
}
