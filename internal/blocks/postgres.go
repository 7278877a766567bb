package blocks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/apperr"
	"github.com/wolfman30/booking-platform/internal/database"
)

// PostgresStore keeps blocks in block_times. Recurring rows are expanded in
// Go after a coarse SQL filter.
type PostgresStore struct {
	db  database.Querier
	loc *time.Location
}

// NewPostgresStore initializes a store backed by db. Recurring blocks are
// expanded in loc; a nil loc means UTC.
func NewPostgresStore(db database.Querier, loc *time.Location) *PostgresStore {
	if db == nil {
		panic("blocks: db required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &PostgresStore{db: db, loc: loc}
}

func (s *PostgresStore) Add(ctx context.Context, b Block) (Block, error) {
	if err := b.Validate(); err != nil {
		return Block{}, err
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	var freq *string
	var interval *int
	var until *time.Time
	if r := b.Recurrence; r != nil {
		freq, interval, until = &r.Frequency, &r.Interval, r.Until
	}
	query := `
		INSERT INTO block_times (id, provider_id, start_at, end_at, reason, description,
			recurrence_frequency, recurrence_interval, recurrence_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	if err := database.Conn(ctx, s.db).QueryRow(ctx, query,
		b.ID, b.ProviderID, b.Start, b.End, b.Reason, b.Description, freq, interval, until,
	).Scan(&b.CreatedAt); err != nil {
		return Block{}, fmt.Errorf("blocks: insert: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) ListOverlapping(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Block, error) {
	query := `
		SELECT id, provider_id, start_at, end_at, reason, description,
			recurrence_frequency, recurrence_interval, recurrence_until, created_at
		FROM block_times
		WHERE provider_id = $1
		  AND start_at < $3
		  AND (
			(recurrence_frequency IS NULL AND end_at > $2)
			OR (recurrence_frequency IS NOT NULL AND (recurrence_until IS NULL OR recurrence_until + (end_at - start_at) > $2))
		  )
		ORDER BY start_at
	`
	rows, err := database.Conn(ctx, s.db).Query(ctx, query, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("blocks: list: %w", err)
	}
	defer rows.Close()

	var stored []Block
	for rows.Next() {
		var b Block
		var freq *string
		var interval *int
		var until *time.Time
		if err := rows.Scan(&b.ID, &b.ProviderID, &b.Start, &b.End, &b.Reason, &b.Description,
			&freq, &interval, &until, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("blocks: scan: %w", err)
		}
		if freq != nil {
			b.Recurrence = &Recurrence{Frequency: *freq, Interval: 1, Until: until}
			if interval != nil {
				b.Recurrence.Interval = *interval
			}
		}
		stored = append(stored, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("blocks: iterate: %w", err)
	}
	return expand(stored, from, to, s.loc), nil
}

func (s *PostgresStore) Delete(ctx context.Context, providerID, blockID uuid.UUID) error {
	tag, err := database.Conn(ctx, s.db).Exec(ctx,
		`DELETE FROM block_times WHERE id = $1 AND provider_id = $2`, blockID, providerID)
	if err != nil {
		return fmt.Errorf("blocks: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("block")
	}
	return nil
}
