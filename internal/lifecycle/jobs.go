// Package lifecycle runs the periodic booking jobs: expiring unconfirmed
// bookings and emitting appointment reminders.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/booking-platform/internal/bookings"
	"github.com/wolfman30/booking-platform/internal/events"
	"github.com/wolfman30/booking-platform/internal/observability/metrics"
	"github.com/wolfman30/booking-platform/pkg/logging"
)

var lifecycleTracer = otel.Tracer("booking.internal.lifecycle")

const (
	DefaultPendingExpiry = 24 * time.Hour
	defaultExpireBatch   = 200
)

// DefaultReminderOffsets are the lead times reminders go out at.
var DefaultReminderOffsets = []time.Duration{24 * time.Hour, 2 * time.Hour}

// Expirer cancels stale pending bookings.
type Expirer interface {
	ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// UpcomingLister finds confirmed bookings starting in a window.
type UpcomingLister interface {
	ListConfirmedStarting(ctx context.Context, from, to time.Time) ([]*bookings.Booking, error)
}

// Deps are the collaborators of Jobs.
type Deps struct {
	Expirer   Expirer
	Upcoming  UpcomingLister
	Deduper   Deduper
	Publisher events.Publisher
	Metrics   *metrics.BookingMetrics
}

// Config holds the job policies.
type Config struct {
	PendingExpiry   time.Duration
	ReminderOffsets []time.Duration
	ExpireBatch     int
	Now             func() time.Time
}

// Jobs holds the lifecycle jobs. Each method is safe to run on every replica.
type Jobs struct {
	expirer   Expirer
	upcoming  UpcomingLister
	deduper   Deduper
	publisher events.Publisher
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	expiry    time.Duration
	offsets   []time.Duration
	batch     int
	now       func() time.Time
}

// NewJobs wires the lifecycle jobs.
func NewJobs(deps Deps, cfg Config, logger *logging.Logger) *Jobs {
	if deps.Expirer == nil || deps.Upcoming == nil || deps.Publisher == nil {
		panic("lifecycle: expirer, upcoming lister and publisher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if deps.Deduper == nil {
		deps.Deduper = NewMemoryDeduper()
	}
	if cfg.PendingExpiry <= 0 {
		cfg.PendingExpiry = DefaultPendingExpiry
	}
	offsets := slices.Clone(cfg.ReminderOffsets)
	if len(offsets) == 0 {
		offsets = slices.Clone(DefaultReminderOffsets)
	}
	offsets = slices.DeleteFunc(offsets, func(d time.Duration) bool { return d <= 0 })
	slices.Sort(offsets)
	offsets = slices.Compact(offsets)
	if cfg.ExpireBatch <= 0 {
		cfg.ExpireBatch = defaultExpireBatch
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Jobs{
		expirer:   deps.Expirer,
		upcoming:  deps.Upcoming,
		deduper:   deps.Deduper,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    logger,
		expiry:    cfg.PendingExpiry,
		offsets:   offsets,
		batch:     cfg.ExpireBatch,
		now:       cfg.Now,
	}
}

// ExpirePending cancels pending bookings older than the expiry, in batches
// until none are left.
func (j *Jobs) ExpirePending(ctx context.Context) (int, error) {
	ctx, span := lifecycleTracer.Start(ctx, "lifecycle.expire_pending")
	defer span.End()

	cutoff := j.now().UTC().Add(-j.expiry)
	total := 0
	for {
		n, err := j.expirer.ExpireStalePending(ctx, cutoff, j.batch)
		total += n
		if err != nil {
			span.RecordError(err)
			return total, fmt.Errorf("lifecycle: expire pending: %w", err)
		}
		if n < j.batch || ctx.Err() != nil {
			break
		}
	}
	span.SetAttributes(attribute.Int("lifecycle.expired", total))
	if total > 0 {
		j.logger.Info("expired stale pending bookings", "count", total, "cutoff", cutoff)
	}
	return total, nil
}

// SendReminders publishes one reminder per booking and offset. A booking
// whose remaining lead time is shorter than several offsets only gets the
// tightest one, so late confirmations are not flooded.
func (j *Jobs) SendReminders(ctx context.Context) (int, error) {
	ctx, span := lifecycleTracer.Start(ctx, "lifecycle.send_reminders")
	defer span.End()

	if len(j.offsets) == 0 {
		return 0, nil
	}
	now := j.now().UTC()
	upcoming, err := j.upcoming.ListConfirmedStarting(ctx, now, now.Add(j.offsets[len(j.offsets)-1]))
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("lifecycle: list upcoming: %w", err)
	}

	sent := 0
	var errs []error
	for _, b := range upcoming {
		lead := b.Start.Sub(now)
		offset, ok := j.offsetFor(lead)
		if !ok {
			continue
		}
		key := fmt.Sprintf("reminder:%s:%s", b.ID, offset)
		claimed, err := j.deduper.Claim(ctx, key, lead+time.Hour)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !claimed {
			continue
		}

		evt := events.NewBookingEvent(events.TypeBookingReminder, b.Snapshot(), now)
		evt.ReminderOffset = offset
		if err := j.publisher.Publish(ctx, evt); err != nil {
			j.metrics.ObserveLifecycle("reminder", "failed")
			if relErr := j.deduper.Release(ctx, key); relErr != nil {
				j.logger.Warn("failed to release reminder claim", "booking_id", b.ID, "error", relErr)
			}
			errs = append(errs, fmt.Errorf("lifecycle: publish reminder %s: %w", b.ID, err))
			continue
		}
		sent++
		j.metrics.ObserveLifecycle("reminder", "sent")
		j.logger.Info("reminder queued", "booking_id", b.ID, "offset", offset.String())
	}
	span.SetAttributes(attribute.Int("lifecycle.reminders", sent))
	return sent, errors.Join(errs...)
}

// offsetFor picks the smallest offset covering the remaining lead time.
func (j *Jobs) offsetFor(lead time.Duration) (time.Duration, bool) {
	if lead <= 0 {
		return 0, false
	}
	for _, o := range j.offsets {
		if lead <= o {
			return o, true
		}
	}
	return 0, false
}
