package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/database"
	"github.com/wolfman30/booking-platform/pkg/logging"
)

// OutboxEntry represents a pending event.
type OutboxEntry struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Type      string
	Payload   json.RawMessage
	Attempts  int
	CreatedAt time.Time
}

// OutboxStore persists events for reliable delivery. Insert joins the
// transaction carried in ctx, if any.
type OutboxStore struct {
	db database.Querier
}

func NewOutboxStore(db database.Querier) *OutboxStore {
	if db == nil {
		panic("events: db required")
	}
	return &OutboxStore{db: db}
}

// Publish stores evt in the outbox.
func (s *OutboxStore) Publish(ctx context.Context, evt BookingEvent) error {
	_, err := s.Insert(ctx, evt)
	return err
}

func (s *OutboxStore) Insert(ctx context.Context, evt BookingEvent) (uuid.UUID, error) {
	if evt.EventID == uuid.Nil {
		evt.EventID = uuid.New()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	query := `
		INSERT INTO outbox (id, tenant_id, type, payload)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := database.Conn(ctx, s.db).Exec(ctx, query, evt.EventID, evt.TenantID, evt.Type, data); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert outbox: %w", err)
	}
	return evt.EventID, nil
}

func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	query := `
		SELECT id, tenant_id, type, payload, attempts, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.TenantID, &entry.Type, &payload, &entry.Attempts, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// RecordFailure bumps the attempt counter and stores the last error.
func (s *OutboxStore) RecordFailure(ctx context.Context, id uuid.UUID, cause error) error {
	query := `
		UPDATE outbox
		SET attempts = attempts + 1, last_error = $2
		WHERE id = $1
	`
	if _, err := s.db.Exec(ctx, query, id, cause.Error()); err != nil {
		return fmt.Errorf("events: record failure: %w", err)
	}
	return nil
}

// Deliverer polls the outbox and invokes the handler.
type Deliverer struct {
	store       *OutboxStore
	processed   *ProcessedStore
	handler     Handler
	logger      *logging.Logger
	batchSize   int32
	interval    time.Duration
	maxAttempts int
}

func NewDeliverer(store *OutboxStore, handler Handler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:       store,
		handler:     handler,
		logger:      logger,
		batchSize:   25,
		interval:    2 * time.Second,
		maxAttempts: 10,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// WithMaxAttempts stops retrying an entry after n failures.
func (d *Deliverer) WithMaxAttempts(n int) *Deliverer {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

// WithProcessedStore skips entries the handler already accepted, so a crash
// between handling and MarkDelivered does not send twice.
func (d *Deliverer) WithProcessedStore(ps *ProcessedStore) *Deliverer {
	d.processed = ps
	return d
}

func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain delivers one batch of pending entries.
func (d *Deliverer) Drain(ctx context.Context) {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return
	}
	for _, entry := range entries {
		if entry.Attempts >= d.maxAttempts {
			continue
		}
		if err := d.deliver(ctx, entry); err != nil {
			d.logger.Error("outbox delivery failed", "error", err, "event_id", entry.ID, "type", entry.Type)
			if recErr := d.store.RecordFailure(ctx, entry.ID, err); recErr != nil {
				d.logger.Error("failed to record outbox failure", "error", recErr, "event_id", entry.ID)
			}
			continue
		}
		if ok, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.ID)
		} else if ok {
			d.logger.Debug("outbox delivered", "event_id", entry.ID, "type", entry.Type)
		}
	}
}

func (d *Deliverer) deliver(ctx context.Context, entry OutboxEntry) error {
	if d.processed != nil {
		done, err := d.processed.AlreadyProcessed(ctx, "outbox", entry.ID.String())
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	var evt BookingEvent
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		return fmt.Errorf("events: decode %s: %w", entry.Type, err)
	}
	if err := d.handler.Handle(ctx, evt); err != nil {
		return err
	}
	if d.processed != nil {
		if _, err := d.processed.MarkProcessed(ctx, "outbox", entry.ID.String()); err != nil {
			d.logger.Warn("failed to mark outbox entry processed", "error", err, "event_id", entry.ID)
		}
	}
	return nil
}
