package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/booking-platform/internal/database"
)

// PostgresStore keeps working days in provider_schedules. Only working days
// are stored; a missing row means the provider is off that day.
type PostgresStore struct {
	db database.DB
}

// NewPostgresStore initializes a store backed by db.
func NewPostgresStore(db database.DB) *PostgresStore {
	if db == nil {
		panic("schedule: db required")
	}
	return &PostgresStore{db: db}
}

// SetWeek replaces the provider's week inside one transaction.
func (s *PostgresStore) SetWeek(ctx context.Context, providerID uuid.UUID, entries []Entry) (Week, error) {
	week, err := NewWeek(providerID, entries)
	if err != nil {
		return Week{}, err
	}
	err = database.InTx(ctx, s.db, func(ctx context.Context) error {
		q := database.Conn(ctx, s.db)
		if _, err := q.Exec(ctx, `DELETE FROM provider_schedules WHERE provider_id = $1`, providerID); err != nil {
			return fmt.Errorf("schedule: clear week: %w", err)
		}
		for _, e := range week {
			if !e.Working {
				continue
			}
			if _, err := q.Exec(ctx, `
				INSERT INTO provider_schedules (provider_id, day_of_week, start_minute, end_minute)
				VALUES ($1, $2, $3, $4)
			`, providerID, int(e.Day), int(e.Start), int(e.End)); err != nil {
				return fmt.Errorf("schedule: insert %s: %w", e.Day, err)
			}
		}
		return nil
	})
	if err != nil {
		return Week{}, err
	}
	return week, nil
}

func (s *PostgresStore) GetWeek(ctx context.Context, providerID uuid.UUID) (Week, error) {
	rows, err := database.Conn(ctx, s.db).Query(ctx, `
		SELECT day_of_week, start_minute, end_minute
		FROM provider_schedules
		WHERE provider_id = $1
		ORDER BY day_of_week
	`, providerID)
	if err != nil {
		return Week{}, fmt.Errorf("schedule: query week: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var day, start, end int
		if err := rows.Scan(&day, &start, &end); err != nil {
			return Week{}, fmt.Errorf("schedule: scan day: %w", err)
		}
		entries = append(entries, Entry{Day: Weekday(day), Start: Clock(start), End: Clock(end), Working: true})
	}
	if err := rows.Err(); err != nil {
		return Week{}, fmt.Errorf("schedule: iterate week: %w", err)
	}
	week, err := NewWeek(providerID, entries)
	if err != nil {
		return Week{}, fmt.Errorf("schedule: stored week invalid: %w", err)
	}
	return week, nil
}

func (s *PostgresStore) GetDay(ctx context.Context, providerID uuid.UUID, day Weekday) (Entry, error) {
	entry := Entry{ProviderID: providerID, Day: day}
	if !day.Valid() {
		return entry, nil
	}
	var start, end int
	err := database.Conn(ctx, s.db).QueryRow(ctx, `
		SELECT start_minute, end_minute
		FROM provider_schedules
		WHERE provider_id = $1 AND day_of_week = $2
	`, providerID, int(day)).Scan(&start, &end)
	if errors.Is(err, pgx.ErrNoRows) {
		return entry, nil
	}
	if err != nil {
		return Entry{}, fmt.Errorf("schedule: get day: %w", err)
	}
	entry.Start, entry.End, entry.Working = Clock(start), Clock(end), true
	return entry, nil
}
