package clients

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/apperr"
)

type emailKey struct {
	tenantID uuid.UUID
	email    string
}

// MemoryRegistry keeps clients in maps keyed by id and by (tenant, email).
type MemoryRegistry struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]Client
	byEmail map[emailKey]uuid.UUID
	now     func() time.Time
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byID:    make(map[uuid.UUID]Client),
		byEmail: make(map[emailKey]uuid.UUID),
		now:     time.Now,
	}
}

func (r *MemoryRegistry) GetOrCreate(ctx context.Context, tenantID uuid.UUID, contact Contact) (Client, error) {
	contact = contact.Normalize()
	if err := contact.Validate(); err != nil {
		return Client{}, err
	}
	key := emailKey{tenantID: tenantID, email: contact.Email}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byEmail[key]; ok {
		c := r.byID[id]
		c.Phone = contact.Phone
		c.Name = contact.Name
		r.byID[id] = c
		return c, nil
	}
	c := Client{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Email:     contact.Email,
		Phone:     contact.Phone,
		Name:      contact.Name,
		CreatedAt: r.now().UTC(),
	}
	r.byID[c.ID] = c
	r.byEmail[key] = c.ID
	return c, nil
}

func (r *MemoryRegistry) Get(ctx context.Context, id uuid.UUID) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return Client{}, apperr.NotFound("client")
	}
	return c, nil
}
