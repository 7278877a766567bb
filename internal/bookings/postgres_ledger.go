package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/availability"
	"github.com/wolfman30/booking-platform/internal/database"
)

const bookingColumns = `id, tenant_id, provider_id, service_id, client_id, start_at, end_at, status,
	price_cents, notes, confirmation_token, cancellation_token, confirmed_at, completed_at,
	cancelled_at, cancellation_reason, version, created_at, updated_at`

// PostgresLedger stores bookings in the bookings table. The table carries an
// exclusion constraint on (provider_id, tstzrange(start_at, end_at)) for
// active rows, so overlaps are rejected even without the advisory lock.
type PostgresLedger struct {
	db database.DB
}

// NewPostgresLedger initializes a ledger backed by db.
func NewPostgresLedger(db database.DB) *PostgresLedger {
	if db == nil {
		panic("bookings: db required")
	}
	return &PostgresLedger{db: db}
}

func providerLockKey(providerID uuid.UUID) string {
	return "booking.provider:" + providerID.String()
}

// WithProviderLock opens (or joins) a transaction and takes a
// transaction-scoped advisory lock keyed by provider.
func (l *PostgresLedger) WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error {
	return database.InTx(ctx, l.db, func(ctx context.Context) error {
		if err := database.AdvisoryXactLock(ctx, providerLockKey(providerID)); err != nil {
			return fmt.Errorf("bookings: lock provider: %w", err)
		}
		return fn(ctx)
	})
}

func (l *PostgresLedger) Insert(ctx context.Context, b *Booking) error {
	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1, $17, $18)
	`
	_, err := database.Conn(ctx, l.db).Exec(ctx, query,
		b.ID, b.TenantID, b.ProviderID, b.ServiceID, b.ClientID, b.Start, b.End, string(b.Status),
		b.PriceCents, b.Notes, b.ConfirmationToken, b.CancellationToken, b.ConfirmedAt, b.CompletedAt,
		b.CancelledAt, b.CancellationReason, b.CreatedAt, b.UpdatedAt,
	)
	if database.IsPgCode(err, database.CodeExclusionViolation) {
		return ErrOverlap
	}
	if err != nil {
		return fmt.Errorf("bookings: insert: %w", err)
	}
	b.Version = 1
	return nil
}

func (l *PostgresLedger) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	b, err := scanBooking(database.Conn(ctx, l.db).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("booking")
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: get: %w", err)
	}
	return b, nil
}

func (l *PostgresLedger) Update(ctx context.Context, b *Booking) error {
	query := `
		UPDATE bookings SET
			start_at = $2,
			end_at = $3,
			status = $4,
			notes = $5,
			confirmed_at = $6,
			completed_at = $7,
			cancelled_at = $8,
			cancellation_reason = $9,
			updated_at = $10,
			version = version + 1
		WHERE id = $1 AND version = $11
	`
	q := database.Conn(ctx, l.db)
	tag, err := q.Exec(ctx, query,
		b.ID, b.Start, b.End, string(b.Status), b.Notes, b.ConfirmedAt, b.CompletedAt,
		b.CancelledAt, b.CancellationReason, b.UpdatedAt, b.Version,
	)
	if database.IsPgCode(err, database.CodeExclusionViolation) {
		return ErrOverlap
	}
	if err != nil {
		return fmt.Errorf("bookings: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var version int64
		err := q.QueryRow(ctx, `SELECT version FROM bookings WHERE id = $1`, b.ID).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("booking")
		}
		if err != nil {
			return fmt.Errorf("bookings: update: %w", err)
		}
		return ErrStaleBooking
	}
	b.Version++
	return nil
}

func (l *PostgresLedger) ActiveIntervals(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]availability.Interval, error) {
	query := `
		SELECT id, start_at, end_at
		FROM bookings
		WHERE provider_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND start_at < $3
		  AND end_at > $2
		ORDER BY start_at
	`
	rows, err := database.Conn(ctx, l.db).Query(ctx, query, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("bookings: active intervals: %w", err)
	}
	defer rows.Close()

	var out []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.BookingID, &iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("bookings: scan interval: %w", err)
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) List(ctx context.Context, f Filter) ([]*Booking, error) {
	f = f.normalized()
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.TenantID != uuid.Nil {
		add("tenant_id = $%d", f.TenantID)
	}
	if f.ProviderID != uuid.Nil {
		add("provider_id = $%d", f.ProviderID)
	}
	if f.ClientID != uuid.Nil {
		add("client_id = $%d", f.ClientID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", statuses)
	}
	if !f.From.IsZero() {
		add("start_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("start_at < $%d", f.To)
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY start_at, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	return l.query(ctx, "list", query, args...)
}

func (l *PostgresLedger) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`
	return l.query(ctx, "list stale pending", query, cutoff, limit)
}

func (l *PostgresLedger) ListConfirmedStarting(ctx context.Context, from, to time.Time) ([]*Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'confirmed' AND start_at >= $1 AND start_at < $2
		ORDER BY start_at`
	return l.query(ctx, "list confirmed starting", query, from, to)
}

func (l *PostgresLedger) query(ctx context.Context, op, query string, args ...any) ([]*Booking, error) {
	rows, err := database.Conn(ctx, l.db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bookings: %s: %w", op, err)
	}
	defer rows.Close()

	out := []*Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: %s: scan: %w", op, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: %s: %w", op, err)
	}
	return out, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var status string
	if err := row.Scan(
		&b.ID, &b.TenantID, &b.ProviderID, &b.ServiceID, &b.ClientID, &b.Start, &b.End, &status,
		&b.PriceCents, &b.Notes, &b.ConfirmationToken, &b.CancellationToken, &b.ConfirmedAt, &b.CompletedAt,
		&b.CancelledAt, &b.CancellationReason, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.Status = Status(status)
	return &b, nil
}
