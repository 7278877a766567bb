package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/availability"
	"github.com/wolfman30/booking-platform/internal/catalog"
	"github.com/wolfman30/booking-platform/internal/clients"
	"github.com/wolfman30/booking-platform/internal/events"
	"github.com/wolfman30/booking-platform/internal/observability/metrics"
	"github.com/wolfman30/booking-platform/internal/tenancy"
	"github.com/wolfman30/booking-platform/pkg/logging"
)

var bookingsTracer = otel.Tracer("booking.internal.bookings")

const (
	// DefaultCancellationLeadTime is how long before the start a confirmed
	// booking can still be cancelled with its token.
	DefaultCancellationLeadTime = 2 * time.Hour

	// ExpiredReason is recorded on pending bookings cancelled by ExpireStalePending.
	ExpiredReason = "Not confirmed within 24 hours"
)

// Availability is the calculator/checker pair the service books against.
type Availability interface {
	AvailableSlots(ctx context.Context, providerID uuid.UUID, date time.Time, duration time.Duration) ([]time.Time, error)
	IsAvailable(ctx context.Context, providerID uuid.UUID, start time.Time, duration time.Duration, opts ...availability.CheckOption) (bool, error)
}

// EventPublisher receives events after successful transitions. Its errors
// are logged, never returned to the caller.
type EventPublisher interface {
	Publish(ctx context.Context, evt events.BookingEvent) error
}

// Deps are the collaborators of Service.
type Deps struct {
	Ledger       Ledger
	Availability Availability
	Catalog      catalog.Catalog
	Clients      clients.Registry
	Publisher    EventPublisher
	Metrics      *metrics.BookingMetrics
}

// Config holds the booking policies.
type Config struct {
	CancellationLeadTime time.Duration
	Now                  func() time.Time
}

// Service creates bookings and drives them through the state machine.
type Service struct {
	ledger    Ledger
	avail     Availability
	catalog   catalog.Catalog
	clients   clients.Registry
	publisher EventPublisher
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	leadTime  time.Duration
	now       func() time.Time
}

// NewService constructs a bookings service.
func NewService(deps Deps, cfg Config, logger *logging.Logger) *Service {
	if deps.Ledger == nil || deps.Availability == nil || deps.Catalog == nil || deps.Clients == nil {
		panic("bookings: ledger, availability, catalog and clients required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.CancellationLeadTime <= 0 {
		cfg.CancellationLeadTime = DefaultCancellationLeadTime
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		ledger:    deps.Ledger,
		avail:     deps.Availability,
		catalog:   deps.Catalog,
		clients:   deps.Clients,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    logger,
		leadTime:  cfg.CancellationLeadTime,
		now:       cfg.Now,
	}
}

// CreateParams is the input of CreateBooking.
type CreateParams struct {
	TenantID   uuid.UUID
	ProviderID uuid.UUID
	ServiceID  uuid.UUID
	Client     clients.Contact
	Start      time.Time
	Notes      string
}

// CancelParams selects the cancellation path: Token for anonymous holders,
// Caller for authenticated parties.
type CancelParams struct {
	Token  string
	Caller *tenancy.Caller
	Reason string
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	ctx, span := bookingsTracer.Start(ctx, name)
	span.SetAttributes(attrs...)
	return ctx, span, time.Now()
}

func (s *Service) finish(span trace.Span, operation string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = apperr.Code(err)
		span.RecordError(err)
	}
	s.metrics.ObserveOperation(operation, result, time.Since(started).Seconds())
	span.End()
}

// resolve loads provider and service and checks they belong to the tenant
// in ctx (if any) and to each other.
func (s *Service) resolve(ctx context.Context, providerID, serviceID uuid.UUID) (catalog.Provider, catalog.Service, error) {
	provider, err := s.catalog.GetProvider(ctx, providerID)
	if err != nil {
		return catalog.Provider{}, catalog.Service{}, err
	}
	if tenantID, ok := tenancy.TenantIDFromContext(ctx); ok && provider.TenantID != tenantID {
		return catalog.Provider{}, catalog.Service{}, apperr.NotFound("provider")
	}
	if !provider.Active {
		return catalog.Provider{}, catalog.Service{}, apperr.NotFound("provider")
	}
	svc, err := s.catalog.GetService(ctx, serviceID)
	if err != nil {
		return catalog.Provider{}, catalog.Service{}, err
	}
	if svc.TenantID != provider.TenantID || !svc.Active {
		return catalog.Provider{}, catalog.Service{}, apperr.NotFound("service")
	}
	return provider, svc, nil
}

// GetAvailableSlots lists free start times for the service on date.
func (s *Service) GetAvailableSlots(ctx context.Context, providerID uuid.UUID, date time.Time, serviceID uuid.UUID) (slots []time.Time, err error) {
	ctx, span, started := s.startSpan(ctx, "bookings.available_slots",
		attribute.String("booking.provider_id", providerID.String()),
		attribute.String("booking.service_id", serviceID.String()),
	)
	defer func() { s.finish(span, "available_slots", started, err) }()

	_, svc, err := s.resolve(ctx, providerID, serviceID)
	if err != nil {
		return nil, err
	}
	slots, err = s.avail.AvailableSlots(ctx, providerID, date, svc.Duration())
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSlots(len(slots))
	return slots, nil
}

// IsAvailable checks a single start time for the service.
func (s *Service) IsAvailable(ctx context.Context, providerID uuid.UUID, start time.Time, serviceID uuid.UUID) (ok bool, err error) {
	ctx, span, started := s.startSpan(ctx, "bookings.is_available",
		attribute.String("booking.provider_id", providerID.String()),
		attribute.String("booking.service_id", serviceID.String()),
	)
	defer func() { s.finish(span, "is_available", started, err) }()

	_, svc, err := s.resolve(ctx, providerID, serviceID)
	if err != nil {
		return false, err
	}
	return s.avail.IsAvailable(ctx, providerID, start, svc.Duration())
}

// CreateBooking books the interval [Start, Start+duration) as PENDING. The
// availability check and the insert run under the provider lock.
func (s *Service) CreateBooking(ctx context.Context, p CreateParams) (b *Booking, err error) {
	ctx, span, started := s.startSpan(ctx, "bookings.create",
		attribute.String("booking.tenant_id", p.TenantID.String()),
		attribute.String("booking.provider_id", p.ProviderID.String()),
		attribute.String("booking.service_id", p.ServiceID.String()),
	)
	defer func() { s.finish(span, "create", started, err) }()

	now := s.now().UTC()
	if p.TenantID == uuid.Nil {
		return nil, apperr.Validation("tenant id is required")
	}
	if p.Start.IsZero() {
		return nil, apperr.Validation("start is required")
	}
	if !p.Start.After(now) {
		return nil, apperr.Validation("booking start must be in the future")
	}
	contact := p.Client.Normalize()
	if err := contact.Validate(); err != nil {
		return nil, err
	}

	ctx = tenancy.WithTenantID(ctx, p.TenantID)
	_, svc, err := s.resolve(ctx, p.ProviderID, p.ServiceID)
	if err != nil {
		return nil, err
	}
	client, err := s.clients.GetOrCreate(ctx, p.TenantID, contact)
	if err != nil {
		return nil, err
	}
	confirmToken, err := NewToken()
	if err != nil {
		return nil, err
	}
	cancelToken, err := NewToken()
	if err != nil {
		return nil, err
	}

	b = &Booking{
		ID:                uuid.New(),
		TenantID:          p.TenantID,
		ProviderID:        p.ProviderID,
		ServiceID:         svc.ID,
		ClientID:          client.ID,
		Start:             p.Start,
		End:               p.Start.Add(svc.Duration()),
		Status:            StatusPending,
		PriceCents:        svc.PriceCents,
		Notes:             p.Notes,
		ConfirmationToken: confirmToken,
		CancellationToken: cancelToken,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err = s.ledger.WithProviderLock(ctx, p.ProviderID, func(ctx context.Context) error {
		ok, err := s.avail.IsAvailable(ctx, p.ProviderID, b.Start, svc.Duration())
		if err != nil {
			return err
		}
		if !ok {
			return apperr.SlotUnavailable("requested time is not available")
		}
		return s.ledger.Insert(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("booking.id", b.ID.String()))
	s.logger.Info("booking created", "booking_id", b.ID, "provider_id", b.ProviderID, "client_id", b.ClientID, "start", b.Start)
	s.publish(ctx, events.TypeBookingCreated, b, nil)
	return b, nil
}

// ConfirmBooking confirms a pending booking with its confirmation token.
func (s *Service) ConfirmBooking(ctx context.Context, id uuid.UUID, token string) (b *Booking, err error) {
	ctx, span, started := s.startSpan(ctx, "bookings.confirm", attribute.String("booking.id", id.String()))
	defer func() { s.finish(span, "confirm", started, err) }()

	b, err = s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := b.Confirm(token, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.ledger.Update(ctx, b); err != nil {
		return nil, staleAs(err, apperr.InvalidToken("booking changed concurrently"))
	}
	s.logger.Info("booking confirmed", "booking_id", b.ID, "provider_id", b.ProviderID)
	s.publish(ctx, events.TypeBookingConfirmed, b, nil)
	return b, nil
}

// CancelBooking cancels via the token path or the authenticated path.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID, p CancelParams) (b *Booking, err error) {
	ctx, span, started := s.startSpan(ctx, "bookings.cancel", attribute.String("booking.id", id.String()))
	defer func() { s.finish(span, "cancel", started, err) }()

	b, err = s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	switch {
	case p.Token != "":
		err = b.CancelWithToken(p.Token, p.Reason, now, s.leadTime)
	case p.Caller != nil:
		if !b.CanBeManagedBy(*p.Caller) && !b.IsOwnedBy(*p.Caller) {
			return nil, apperr.NotFound("booking")
		}
		err = b.CancelBy(*p.Caller, p.Reason, now)
	default:
		err = apperr.InvalidToken("cancellation token is required")
	}
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Update(ctx, b); err != nil {
		return nil, staleAs(err, apperr.InvalidToken("booking changed concurrently"))
	}
	s.logger.Info("booking cancelled", "booking_id", b.ID, "provider_id", b.ProviderID, "token_path", p.Token != "")
	s.publish(ctx, events.TypeBookingCancelled, b, nil)
	return b, nil
}

// UpdateParams changes a booking's start, its notes, or both.
type UpdateParams struct {
	Start *time.Time
	Notes *string
}

// UpdateBooking applies p in a single ledger write, so a rejected new start
// leaves the notes unchanged as well.
func (s *Service) UpdateBooking(ctx context.Context, id uuid.UUID, p UpdateParams, caller tenancy.Caller) (*Booking, error) {
	switch {
	case p.Start == nil && p.Notes == nil:
		return nil, apperr.Validation("start or notes is required")
	case p.Start == nil:
		return s.UpdateNotes(ctx, id, *p.Notes, caller)
	}
	return s.reschedule(ctx, id, *p.Start, p.Notes, caller)
}

// RescheduleBooking moves an active booking to newStart. The new interval is
// checked with the booking's own interval excluded, under the provider lock.
func (s *Service) RescheduleBooking(ctx context.Context, id uuid.UUID, newStart time.Time, caller tenancy.Caller) (*Booking, error) {
	return s.reschedule(ctx, id, newStart, nil, caller)
}

func (s *Service) reschedule(ctx context.Context, id uuid.UUID, newStart time.Time, notes *string, caller tenancy.Caller) (b *Booking, err error) {
	ctx, span, started := s.startSpan(ctx, "bookings.reschedule", attribute.String("booking.id", id.String()))
	defer func() { s.finish(span, "reschedule", started, err) }()

	current, err := s.authorized(ctx, id, caller, true)
	if err != nil {
		return nil, err
	}
	var previous time.Time
	err = s.ledger.WithProviderLock(ctx, current.ProviderID, func(ctx context.Context) error {
		fresh, err := s.ledger.Get(ctx, id)
		if err != nil {
			return err
		}
		previous = fresh.Start
		now := s.now().UTC()
		if err := fresh.Reschedule(newStart, now); err != nil {
			return err
		}
		if notes != nil {
			if err := fresh.SetNotes(*notes, now); err != nil {
				return err
			}
		}
		ok, err := s.avail.IsAvailable(ctx, fresh.ProviderID, fresh.Start, fresh.Duration(), availability.ExcludeBooking(fresh.ID))
		if err != nil {
			return err
		}
		if !ok {
			return apperr.SlotUnavailable("requested time is not available")
		}
		if err := s.ledger.Update(ctx, fresh); err != nil {
			return staleAs(err, apperr.SlotUnavailable("booking changed concurrently"))
		}
		b = fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("booking rescheduled", "booking_id", b.ID, "provider_id", b.ProviderID, "from", previous, "to", b.Start)
	s.publish(ctx, events.TypeBookingRescheduled, b, func(evt *events.BookingEvent) {
		evt.PreviousStart = &previous
	})
	return b, nil
}

// UpdateNotes replaces the notes of a non-terminal booking.
func (s *Service) UpdateNotes(ctx context.Context, id uuid.UUID, notes string, caller tenancy.Caller) (b *Booking, err error) {
	ctx, span, started := s.startSpan(ctx, "bookings.update_notes", attribute.String("booking.id", id.String()))
	defer func() { s.finish(span, "update_notes", started, err) }()

	b, err = s.authorized(ctx, id, caller, true)
	if err != nil {
		return nil, err
	}
	if err := b.SetNotes(notes, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.ledger.Update(ctx, b); err != nil {
		return nil, staleAs(err, apperr.PolicyViolation("booking changed concurrently, reload and retry"))
	}
	return b, nil
}

// CompleteBooking marks a confirmed booking whose start has passed as completed.
func (s *Service) CompleteBooking(ctx context.Context, id uuid.UUID, caller tenancy.Caller) (*Booking, error) {
	return s.attend(ctx, "complete", id, caller, (*Booking).Complete, events.TypeBookingCompleted)
}

// MarkNoShow marks a confirmed booking whose start has passed as a no-show.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, caller tenancy.Caller) (*Booking, error) {
	return s.attend(ctx, "no_show", id, caller, (*Booking).MarkNoShow, events.TypeBookingNoShow)
}

func (s *Service) attend(ctx context.Context, operation string, id uuid.UUID, caller tenancy.Caller, apply func(*Booking, time.Time) error, eventType string) (b *Booking, err error) {
	ctx, span, started := s.startSpan(ctx, "bookings."+operation, attribute.String("booking.id", id.String()))
	defer func() { s.finish(span, operation, started, err) }()

	b, err = s.authorized(ctx, id, caller, false)
	if err != nil {
		return nil, err
	}
	if err := apply(b, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.ledger.Update(ctx, b); err != nil {
		return nil, staleAs(err, apperr.PolicyViolation("booking changed concurrently, reload and retry"))
	}
	s.logger.Info("booking closed", "booking_id", b.ID, "status", b.Status)
	s.publish(ctx, eventType, b, nil)
	return b, nil
}

// GetBooking returns a booking visible to caller.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID, caller tenancy.Caller) (*Booking, error) {
	return s.authorized(ctx, id, caller, true)
}

// ListBookings lists bookings in the caller's tenant. Providers only see
// their own calendar and clients only their own bookings.
func (s *Service) ListBookings(ctx context.Context, f Filter, caller tenancy.Caller) ([]*Booking, error) {
	if caller.TenantID == uuid.Nil {
		return nil, apperr.Forbidden("authentication required")
	}
	f.TenantID = caller.TenantID
	switch caller.Role {
	case tenancy.RoleOwner, tenancy.RoleAdmin:
	case tenancy.RoleProvider:
		f.ProviderID = caller.ProviderID
	case tenancy.RoleClient:
		f.ClientID = caller.ClientID
	default:
		return nil, apperr.Forbidden("unknown role")
	}
	return s.ledger.List(ctx, f)
}

// ExpireStalePending cancels pending bookings created before cutoff and
// returns how many were cancelled.
func (s *Service) ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.expire_stale_pending")
	defer span.End()

	stale, err := s.ledger.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	expired := 0
	for _, b := range stale {
		if err := b.Expire(ExpiredReason, s.now().UTC()); err != nil {
			continue
		}
		if err := s.ledger.Update(ctx, b); err != nil {
			if !errors.Is(err, ErrStaleBooking) {
				s.logger.Error("failed to expire booking", "booking_id", b.ID, "error", err)
			}
			continue
		}
		expired++
		s.metrics.ObserveLifecycle("expire_pending", "cancelled")
		s.publish(ctx, events.TypeBookingCancelled, b, nil)
	}
	span.SetAttributes(attribute.Int("booking.expired", expired))
	return expired, nil
}

// authorized loads the booking and checks the caller may see it (allowOwner)
// or manage it. Bookings outside the caller's reach are reported missing.
func (s *Service) authorized(ctx context.Context, id uuid.UUID, caller tenancy.Caller, allowOwner bool) (*Booking, error) {
	b, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.CanBeManagedBy(caller) || (allowOwner && b.IsOwnedBy(caller)) {
		return b, nil
	}
	if caller.TenantID == b.TenantID && b.IsOwnedBy(caller) {
		return nil, apperr.Forbidden("clients may not perform this action")
	}
	return nil, apperr.NotFound("booking")
}

func (s *Service) publish(ctx context.Context, eventType string, b *Booking, mutate func(*events.BookingEvent)) {
	if s.publisher == nil {
		return
	}
	evt := events.NewBookingEvent(eventType, b.Snapshot(), s.now())
	if mutate != nil {
		mutate(&evt)
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), evt); err != nil {
		s.logger.Error("failed to publish booking event", "booking_id", b.ID, "type", eventType, "error", err)
	}
}

// staleAs maps a lost compare-and-set onto the error the operation reports.
func staleAs(err error, replacement error) error {
	if errors.Is(err, ErrStaleBooking) {
		return replacement
	}
	return err
}
