// Package bookings owns the appointment ledger, the booking state machine and
// the service that creates and moves bookings through their lifecycle.
package bookings

import (
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/events"
	"github.com/wolfman30/booking-platform/internal/tenancy"
)

// Booking is one appointment. Status only changes through the transition
// methods below; Version increases with every persisted change.
type Booking struct {
	ID                 uuid.UUID  `json:"id"`
	TenantID           uuid.UUID  `json:"tenant_id"`
	ProviderID         uuid.UUID  `json:"provider_id"`
	ServiceID          uuid.UUID  `json:"service_id"`
	ClientID           uuid.UUID  `json:"client_id"`
	Start              time.Time  `json:"start"`
	End                time.Time  `json:"end"`
	Status             Status     `json:"status"`
	PriceCents         int64      `json:"price_cents"`
	Notes              string     `json:"notes,omitempty"`
	ConfirmationToken  string     `json:"-"`
	CancellationToken  string     `json:"-"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	Version            int64      `json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Duration is the length frozen at creation.
func (b *Booking) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// Clone returns a deep copy.
func (b *Booking) Clone() *Booking {
	c := *b
	c.ConfirmedAt = cloneTime(b.ConfirmedAt)
	c.CompletedAt = cloneTime(b.CompletedAt)
	c.CancelledAt = cloneTime(b.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (b *Booking) moveTo(next Status, now time.Time) {
	b.Status = next
	b.UpdatedAt = now
}

// Confirm moves a pending booking to confirmed when token matches the
// confirmation token.
func (b *Booking) Confirm(token string, now time.Time) error {
	if !tokensEqual(b.ConfirmationToken, token) {
		return apperr.InvalidToken("confirmation token does not match")
	}
	if b.Status != StatusPending {
		return apperr.InvalidToken("booking is not awaiting confirmation")
	}
	b.moveTo(StatusConfirmed, now)
	b.ConfirmedAt = &now
	return nil
}

// CancelWithToken cancels on behalf of an anonymous holder of the
// cancellation token. Confirmed bookings may only be cancelled while at least
// leadTime remains before the start.
func (b *Booking) CancelWithToken(token, reason string, now time.Time, leadTime time.Duration) error {
	if !tokensEqual(b.CancellationToken, token) {
		return apperr.InvalidToken("cancellation token does not match")
	}
	if !b.Status.CanTransitionTo(StatusCancelled) {
		return apperr.InvalidToken("booking can no longer be cancelled")
	}
	if b.Status == StatusConfirmed && b.Start.Sub(now) < leadTime {
		return apperr.PolicyViolation("cancellations must be made at least %s before the appointment", leadTime)
	}
	b.cancel(reason, now)
	return nil
}

// CancelBy cancels on behalf of an authenticated caller. No lead-time window
// applies on this path.
func (b *Booking) CancelBy(caller tenancy.Caller, reason string, now time.Time) error {
	if !b.CanBeManagedBy(caller) && !b.IsOwnedBy(caller) {
		return apperr.Forbidden("caller may not cancel this booking")
	}
	if !b.Status.CanTransitionTo(StatusCancelled) {
		return apperr.PolicyViolation("booking is %s and can no longer be cancelled", b.Status)
	}
	b.cancel(reason, now)
	return nil
}

// Expire cancels a pending booking that was never confirmed.
func (b *Booking) Expire(reason string, now time.Time) error {
	if b.Status != StatusPending {
		return apperr.PolicyViolation("only pending bookings expire")
	}
	b.cancel(reason, now)
	return nil
}

func (b *Booking) cancel(reason string, now time.Time) {
	b.moveTo(StatusCancelled, now)
	b.CancelledAt = &now
	b.CancellationReason = reason
}

// Complete marks a confirmed booking as attended once its start has passed.
func (b *Booking) Complete(now time.Time) error {
	if err := b.checkAttendance(StatusCompleted, now); err != nil {
		return err
	}
	b.moveTo(StatusCompleted, now)
	b.CompletedAt = &now
	return nil
}

// MarkNoShow records that the client did not attend.
func (b *Booking) MarkNoShow(now time.Time) error {
	if err := b.checkAttendance(StatusNoShow, now); err != nil {
		return err
	}
	b.moveTo(StatusNoShow, now)
	return nil
}

func (b *Booking) checkAttendance(next Status, now time.Time) error {
	if !b.Status.CanTransitionTo(next) {
		return apperr.PolicyViolation("booking is %s, only confirmed bookings can become %s", b.Status, next)
	}
	if now.Before(b.Start) {
		return apperr.PolicyViolation("booking has not started yet")
	}
	return nil
}

// Reschedule moves an active booking to start, keeping its duration.
// Availability of the new interval is checked by the caller.
func (b *Booking) Reschedule(start, now time.Time) error {
	if !b.Status.IsActive() {
		return apperr.PolicyViolation("booking is %s and can no longer be rescheduled", b.Status)
	}
	if !start.After(now) {
		return apperr.Validation("new start must be in the future")
	}
	d := b.Duration()
	b.Start = start
	b.End = start.Add(d)
	b.UpdatedAt = now
	return nil
}

// SetNotes replaces the free-text notes.
func (b *Booking) SetNotes(notes string, now time.Time) error {
	if b.Status.IsTerminal() {
		return apperr.PolicyViolation("booking is %s and can no longer be edited", b.Status)
	}
	b.Notes = notes
	b.UpdatedAt = now
	return nil
}

// CanBeManagedBy reports whether caller is tenant staff or the booked provider.
func (b *Booking) CanBeManagedBy(caller tenancy.Caller) bool {
	return caller.CanManageProvider(b.TenantID, b.ProviderID)
}

// IsOwnedBy reports whether caller is the booked client.
func (b *Booking) IsOwnedBy(caller tenancy.Caller) bool {
	return caller.Role == tenancy.RoleClient &&
		caller.TenantID == b.TenantID &&
		caller.ClientID != uuid.Nil &&
		caller.ClientID == b.ClientID
}

// Snapshot converts the booking into an event payload.
func (b *Booking) Snapshot() events.BookingSnapshot {
	return events.BookingSnapshot{
		ID:                 b.ID,
		TenantID:           b.TenantID,
		ProviderID:         b.ProviderID,
		ServiceID:          b.ServiceID,
		ClientID:           b.ClientID,
		Start:              b.Start,
		End:                b.End,
		Status:             string(b.Status),
		PriceCents:         b.PriceCents,
		ConfirmationToken:  b.ConfirmationToken,
		CancellationToken:  b.CancellationToken,
		CancellationReason: b.CancellationReason,
	}
}
