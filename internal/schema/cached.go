package schema

import (
	"context"
	"sync"
)

// CachedCatalog memoizes a delegate catalog. Framework specifications are
// immutable for a process lifetime, so entries never expire; negative
// lookups are not cached because a framework may be registered after boot.
type CachedCatalog struct {
	delegate Catalog

	mu             sync.RWMutex
	specifications map[string]*FrameworkSpecification
	dataPointTypes map[string]bool
}

func NewCachedCatalog(delegate Catalog) *CachedCatalog {
	return &CachedCatalog{
		delegate:       delegate,
		specifications: map[string]*FrameworkSpecification{},
		dataPointTypes: map[string]bool{},
	}
}

func (c *CachedCatalog) FrameworkSpecification(ctx context.Context, frameworkID string) (*FrameworkSpecification, error) {
	c.mu.RLock()
	spec, ok := c.specifications[frameworkID]
	c.mu.RUnlock()
	if ok {
		return spec, nil
	}
	spec, err := c.delegate.FrameworkSpecification(ctx, frameworkID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.specifications[frameworkID] = spec
	c.mu.Unlock()
	return spec, nil
}

func (c *CachedCatalog) ListFrameworks(ctx context.Context) ([]string, error) {
	return c.delegate.ListFrameworks(ctx)
}

func (c *CachedCatalog) IsFramework(ctx context.Context, id string) bool {
	_, err := c.FrameworkSpecification(ctx, id)
	return err == nil
}

func (c *CachedCatalog) IsDataPointType(ctx context.Context, id string) bool {
	c.mu.RLock()
	known, ok := c.dataPointTypes[id]
	c.mu.RUnlock()
	if ok {
		return known
	}
	known = c.delegate.IsDataPointType(ctx, id)
	if known {
		c.mu.Lock()
		c.dataPointTypes[id] = true
		c.mu.Unlock()
	}
	return known
}
