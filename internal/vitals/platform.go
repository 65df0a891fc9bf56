package vitals

import (
	"context"
	"time"
)

// Platform abstracts the browser capabilities the collector needs.
// The collector never touches global state directly; tests inject a fake.
type Platform interface {
	// IsBrowser reports whether a live document is attached.
	// It is false during server-side rendering or after the tab closed.
	IsBrowser() bool

	// SupportsEntryType reports whether PerformanceObserver accepts the
	// given entry type (e.g. "layout-shift")
	SupportsEntryType(entryType string) bool

	// Observe installs a buffered performance observer for entryType.
	// The callback may run on any goroutine; batches for one observer are
	// delivered in order. The returned function disconnects the observer.
	Observe(entryType string, fn func([]PerformanceEntry)) (disconnect func(), err error)

	// OnPageHide registers a hook that runs when the page is hidden or
	// unloaded. The returned function removes the hook.
	OnPageHide(fn func()) (remove func())

	// AfterFunc runs fn once after d
	AfterFunc(d time.Duration, fn func()) Timer

	// Sleep waits for d or until ctx is done
	Sleep(ctx context.Context, d time.Duration) error
}

// Timer is a cancellable pending callback
type Timer interface {
	Stop() bool
}

// PerformanceEntry is the subset of browser performance entry fields the
// built-in observers read. All times are milliseconds relative to the
// page's time origin.
type PerformanceEntry struct {
	Name           string  `json:"name"`
	EntryType      string  `json:"entryType"`
	StartTime      float64 `json:"startTime"`
	Duration       float64 `json:"duration"`
	Value          float64 `json:"value"`
	HadRecentInput bool    `json:"hadRecentInput"`
	RequestStart   float64 `json:"requestStart"`
	ResponseStart  float64 `json:"responseStart"`
	InteractionID  int64   `json:"interactionId"`
}
