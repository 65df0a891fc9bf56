package metrics

import (
	"sync"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
)

// EventCache stores recent vital events in memory (ephemeral).
// It backs SNMP polling and resets on restart.
type EventCache struct {
	maxSize int
	events  []*models.VitalEvent
	mu      sync.RWMutex
}

// NewEventCache creates a new event cache with the specified size
func NewEventCache(maxSize int) *EventCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &EventCache{
		maxSize: maxSize,
		events:  make([]*models.VitalEvent, 0, maxSize),
	}
}

// Add adds an event to the cache.
// If the cache is full, the oldest event is removed.
func (c *EventCache) Add(event *models.VitalEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, event)

	// Trim to max size (keep most recent)
	if len(c.events) > c.maxSize {
		c.events = c.events[len(c.events)-c.maxSize:]
	}
}

// GetLast returns the N most recent events, oldest first
func (c *EventCache) GetLast(n int) []*models.VitalEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n > len(c.events) {
		n = len(c.events)
	}
	if n < 0 {
		n = 0
	}

	events := make([]*models.VitalEvent, n)
	copy(events, c.events[len(c.events)-n:])
	return events
}

// Count returns the current number of cached events
func (c *EventCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// MaxSize returns the capacity of the cache
func (c *EventCache) MaxSize() int {
	return c.maxSize
}

// Clear empties the cache
func (c *EventCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = make([]*models.VitalEvent, 0, c.maxSize)
}
