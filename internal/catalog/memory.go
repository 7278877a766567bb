package catalog

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-platform/internal/apperr"
)

// MemoryCatalog is an in-process catalog used by tests and the memory wiring.
type MemoryCatalog struct {
	mu        sync.RWMutex
	services  map[uuid.UUID]Service
	providers map[uuid.UUID]Provider
}

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		services:  make(map[uuid.UUID]Service),
		providers: make(map[uuid.UUID]Provider),
	}
}

// PutService inserts or replaces a service.
func (c *MemoryCatalog) PutService(ctx context.Context, svc Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.services[svc.ID] = svc
	c.mu.Unlock()
	return nil
}

// PutProvider inserts or replaces a provider.
func (c *MemoryCatalog) PutProvider(ctx context.Context, p Provider) error {
	if p.ID == uuid.Nil || p.TenantID == uuid.Nil {
		return apperr.Validation("provider id and tenant id are required")
	}
	c.mu.Lock()
	c.providers[p.ID] = p
	c.mu.Unlock()
	return nil
}

func (c *MemoryCatalog) GetService(ctx context.Context, id uuid.UUID) (Service, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	svc, ok := c.services[id]
	if !ok {
		return Service{}, apperr.NotFound("service")
	}
	return svc, nil
}

func (c *MemoryCatalog) GetProvider(ctx context.Context, id uuid.UUID) (Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.providers[id]
	if !ok {
		return Provider{}, apperr.NotFound("provider")
	}
	return p, nil
}
