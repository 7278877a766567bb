package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/catalog"
	"github.com/wolfman30/booking-platform/internal/clients"
	"github.com/wolfman30/booking-platform/internal/events"
	"github.com/wolfman30/booking-platform/internal/observability/metrics"
	"github.com/wolfman30/booking-platform/pkg/logging"
)

// ClientLookup resolves the booked client.
type ClientLookup interface {
	Get(ctx context.Context, id uuid.UUID) (clients.Client, error)
}

// NotifierConfig controls link building and date rendering.
type NotifierConfig struct {
	PublicBaseURL string
	Location      *time.Location
}

// BookingNotifier emails the client when a booking changes state. It
// implements events.Handler.
type BookingNotifier struct {
	email   EmailSender
	clients ClientLookup
	catalog catalog.Catalog
	baseURL string
	loc     *time.Location
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
}

// NewBookingNotifier creates a notifier. A nil sender falls back to the stub.
func NewBookingNotifier(email EmailSender, lookup ClientLookup, cat catalog.Catalog, cfg NotifierConfig, m *metrics.BookingMetrics, logger *logging.Logger) *BookingNotifier {
	if lookup == nil || cat == nil {
		panic("notify: client lookup and catalog required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if email == nil {
		email = NewStubEmailSender(logger)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &BookingNotifier{
		email:   email,
		clients: lookup,
		catalog: cat,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		loc:     cfg.Location,
		metrics: m,
		logger:  logger,
	}
}

var _ events.Handler = (*BookingNotifier)(nil)

// Handle sends the email for evt. Events without a client-facing message
// (completed, no-show) are acknowledged without sending. Missing client or
// catalog records are dropped rather than retried.
func (n *BookingNotifier) Handle(ctx context.Context, evt events.BookingEvent) error {
	b := evt.Booking
	client, err := n.clients.Get(ctx, b.ClientID)
	if err != nil {
		return n.lookupFailed(evt, "client", err)
	}
	if client.Email == "" {
		n.metrics.ObserveNotification(evt.Type, "skipped")
		return nil
	}
	svc, err := n.catalog.GetService(ctx, b.ServiceID)
	if err != nil {
		return n.lookupFailed(evt, "service", err)
	}
	provider, err := n.catalog.GetProvider(ctx, b.ProviderID)
	if err != nil {
		return n.lookupFailed(evt, "provider", err)
	}

	msg, ok := n.compose(evt, client, svc, provider)
	if !ok {
		n.metrics.ObserveNotification(evt.Type, "skipped")
		return nil
	}
	if err := n.email.Send(ctx, msg); err != nil {
		n.metrics.ObserveNotification(evt.Type, "failed")
		return fmt.Errorf("notify: send %s: %w", evt.Type, err)
	}
	n.metrics.ObserveNotification(evt.Type, "sent")
	n.logger.Info("booking notification sent", "booking_id", b.ID, "type", evt.Type)
	return nil
}

func (n *BookingNotifier) lookupFailed(evt events.BookingEvent, what string, err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		n.logger.Warn("notify: dropping event, record missing", "booking_id", evt.Booking.ID, "type", evt.Type, "missing", what)
		n.metrics.ObserveNotification(evt.Type, "dropped")
		return nil
	}
	n.metrics.ObserveNotification(evt.Type, "failed")
	return fmt.Errorf("notify: load %s: %w", what, err)
}

// ConfirmURL is the link a client follows to confirm a pending booking.
func (n *BookingNotifier) ConfirmURL(id uuid.UUID, token string) string {
	return n.baseURL + "/booking/confirm/" + id.String() + "?token=" + url.QueryEscape(token)
}

// CancelURL is the link a client follows to cancel a booking.
func (n *BookingNotifier) CancelURL(id uuid.UUID, token string) string {
	return n.baseURL + "/booking/cancel/" + id.String() + "?token=" + url.QueryEscape(token)
}

func (n *BookingNotifier) compose(evt events.BookingEvent, client clients.Client, svc catalog.Service, provider catalog.Provider) (EmailMessage, bool) {
	b := evt.Booking
	when := n.formatTime(b.Start)

	var subject string
	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\n\n", client.Name)

	switch evt.Type {
	case events.TypeBookingCreated:
		subject = "Please confirm your booking"
		fmt.Fprintf(&body, "We are holding %s with %s on %s.\n", svc.Name, provider.Name, when)
		fmt.Fprintf(&body, "Price: %s\n\n", formatPrice(b.PriceCents))
		if b.ConfirmationToken != "" {
			fmt.Fprintf(&body, "Confirm your booking: %s\n", n.ConfirmURL(b.ID, b.ConfirmationToken))
		}
		body.WriteString("Unconfirmed bookings are released after 24 hours.\n")
	case events.TypeBookingConfirmed:
		subject = "Your booking is confirmed"
		fmt.Fprintf(&body, "Your %s with %s on %s is confirmed.\n", svc.Name, provider.Name, when)
	case events.TypeBookingRescheduled:
		subject = "Your booking has moved"
		if evt.PreviousStart != nil {
			fmt.Fprintf(&body, "Your %s with %s moved from %s to %s.\n", svc.Name, provider.Name, n.formatTime(*evt.PreviousStart), when)
		} else {
			fmt.Fprintf(&body, "Your %s with %s is now on %s.\n", svc.Name, provider.Name, when)
		}
	case events.TypeBookingReminder:
		subject = fmt.Sprintf("Reminder: %s %s", svc.Name, reminderLead(evt.ReminderOffset))
		fmt.Fprintf(&body, "This is a reminder of your %s with %s on %s.\n", svc.Name, provider.Name, when)
	case events.TypeBookingCancelled:
		subject = "Your booking was cancelled"
		fmt.Fprintf(&body, "Your %s with %s on %s was cancelled.\n", svc.Name, provider.Name, when)
		if b.CancellationReason != "" {
			fmt.Fprintf(&body, "Reason: %s\n", b.CancellationReason)
		}
	default:
		return EmailMessage{}, false
	}

	if evt.Type != events.TypeBookingCancelled && b.CancellationToken != "" {
		fmt.Fprintf(&body, "\nNeed to cancel? %s\n", n.CancelURL(b.ID, b.CancellationToken))
	}
	return EmailMessage{
		To:      client.Email,
		ToName:  client.Name,
		Subject: subject,
		Body:    body.String(),
	}, true
}

func (n *BookingNotifier) formatTime(t time.Time) string {
	return t.In(n.loc).Format("Monday, January 2 at 15:04 MST")
}

func formatPrice(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func reminderLead(offset time.Duration) string {
	switch {
	case offset <= 0:
		return "coming up"
	case offset%(24*time.Hour) == 0:
		days := int(offset / (24 * time.Hour))
		if days == 1 {
			return "tomorrow"
		}
		return fmt.Sprintf("in %d days", days)
	case offset%time.Hour == 0:
		hours := int(offset / time.Hour)
		if hours == 1 {
			return "in 1 hour"
		}
		return fmt.Sprintf("in %d hours", hours)
	default:
		return "in " + offset.String()
	}
}
