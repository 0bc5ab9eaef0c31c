package hydrus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ServiceType is the numeric service type reported by /get_services.
type ServiceType int

const (
	ServiceLocalFileDomain   ServiceType = 2
	ServiceNumericalRating   ServiceType = 6
	ServiceLikeDislikeRating ServiceType = 7
	ServiceIncDecRating      ServiceType = 22
)

// IsRating reports whether the type is one of the rating services.
func (t ServiceType) IsRating() bool {
	return t == ServiceNumericalRating || t == ServiceLikeDislikeRating || t == ServiceIncDecRating
}

// Service is one entry of the remote service catalog.
type Service struct {
	Key        string
	Name       string
	Type       ServiceType
	TypePretty string
	StarShape  string
	MinStars   int
	MaxStars   int
}

// ServiceSource fetches the full catalog.
type ServiceSource interface {
	GetServices(ctx context.Context) ([]Service, Response)
}

// ErrNoSource is returned by Refresh on a static catalog.
var ErrNoSource = errors.New("service catalog has no source")

// Catalog caches the remote service list. It is refreshed explicitly, or
// on demand by Ensure when it is empty; there is no expiry.
type Catalog struct {
	mu       sync.RWMutex
	source   ServiceSource
	services map[string]Service
	loadedAt time.Time
}

// NewCatalog returns an empty catalog backed by source.
func NewCatalog(source ServiceSource) *Catalog {
	return &Catalog{source: source, services: map[string]Service{}}
}

// NewStaticCatalog returns a catalog fixed to services.
func NewStaticCatalog(services ...Service) *Catalog {
	c := &Catalog{services: map[string]Service{}}
	c.set(services)
	return c
}

// Refresh replaces the cached services with a fresh fetch.
func (c *Catalog) Refresh(ctx context.Context) error {
	if c.source == nil {
		return ErrNoSource
	}
	services, resp := c.source.GetServices(ctx)
	if !resp.Success {
		return fmt.Errorf("refresh services (status %d): %s", resp.Status, resp.Message)
	}
	c.set(services)
	return nil
}

// Ensure refreshes the catalog only if it is empty.
func (c *Catalog) Ensure(ctx context.Context) error {
	if c.Len() > 0 {
		return nil
	}
	return c.Refresh(ctx)
}

func (c *Catalog) set(services []Service) {
	m := make(map[string]Service, len(services))
	for _, s := range services {
		m[s.Key] = s
	}
	c.mu.Lock()
	c.services = m
	c.loadedAt = time.Now()
	c.mu.Unlock()
}

// Lookup returns the service with the given key.
func (c *Catalog) Lookup(key string) (Service, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.services[key]
	return s, ok
}

// Len is the number of cached services.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.services)
}

// LoadedAt is when the catalog was last populated.
func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// All returns every service ordered by key.
func (c *Catalog) All() []Service {
	return c.filter(func(Service) bool { return true })
}

// LocalFileDomains returns the local file domains ordered by key.
func (c *Catalog) LocalFileDomains() []Service {
	return c.filter(func(s Service) bool { return s.Type == ServiceLocalFileDomain })
}

func (c *Catalog) filter(keep func(Service) bool) []Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Service, 0, len(c.services))
	for _, s := range c.services {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
