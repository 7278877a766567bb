package blocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/apperr"
)

// MemoryStore keeps blocks per provider.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks map[uuid.UUID][]Block
	loc    *time.Location
	now    func() time.Time
}

// NewMemoryStore creates an empty block store that expands recurring blocks
// in loc. A nil loc means UTC.
func NewMemoryStore(loc *time.Location) *MemoryStore {
	if loc == nil {
		loc = time.UTC
	}
	return &MemoryStore{blocks: make(map[uuid.UUID][]Block), loc: loc, now: time.Now}
}

func (s *MemoryStore) Add(ctx context.Context, b Block) (Block, error) {
	if err := b.Validate(); err != nil {
		return Block{}, err
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = s.now().UTC()
	if b.Recurrence != nil {
		r := *b.Recurrence
		b.Recurrence = &r
	}
	s.mu.Lock()
	s.blocks[b.ProviderID] = append(s.blocks[b.ProviderID], b)
	s.mu.Unlock()
	return b, nil
}

func (s *MemoryStore) ListOverlapping(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Block, error) {
	s.mu.RLock()
	stored := append([]Block(nil), s.blocks[providerID]...)
	s.mu.RUnlock()
	return expand(stored, from, to, s.loc), nil
}

func (s *MemoryStore) Delete(ctx context.Context, providerID, blockID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.blocks[providerID]
	for i, b := range list {
		if b.ID == blockID {
			s.blocks[providerID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("block")
}
