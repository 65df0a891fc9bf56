package visitloop

import (
	"sync"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
)

// PageIterator provides round-robin iteration over pages
type PageIterator struct {
	pages   []models.PageDefinition
	current int
	mu      sync.Mutex
}

// NewPageIterator creates a new page iterator
func NewPageIterator(pages []models.PageDefinition) *PageIterator {
	return &PageIterator{
		pages: pages,
	}
}

// Next returns the next page to visit in round-robin fashion
func (i *PageIterator) Next() models.PageDefinition {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.pages) == 0 {
		return models.PageDefinition{}
	}

	page := i.pages[i.current]
	i.current = (i.current + 1) % len(i.pages)
	return page
}

// Count returns the total number of pages
func (i *PageIterator) Count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.pages)
}

// Reset resets the iterator to the first page
func (i *PageIterator) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.current = 0
}
