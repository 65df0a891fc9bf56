package models

import "time"

// VitalEvent is one reading enriched for the outputs
type VitalEvent struct {
	// Timestamp when the reading reached the sink
	Timestamp time.Time `json:"@timestamp"`

	// EventID is a unique identifier for this event
	EventID string `json:"event_id"`

	// VisitID ties the event to the page visit that produced it
	VisitID string `json:"visit_id"`

	// Page information
	Page PageInfo `json:"page"`

	// Vital is the reading itself
	Vital VitalInfo `json:"vital"`

	// Metadata about the monitor environment
	Metadata Metadata `json:"metadata,omitempty"`
}

// PageInfo contains information about the visited page
type PageInfo struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// VitalInfo contains one classified observation
type VitalInfo struct {
	// Signal is FCP, LCP, CLS, INP or TTFB
	Signal string `json:"signal"`

	// Value is milliseconds, or a unitless score for CLS
	Value float64 `json:"value"`

	// Rating is good, needs-improvement or poor
	Rating string `json:"rating"`

	// Delta is the change since the previous reading of the same observation
	Delta float64 `json:"delta"`

	ObservationID string `json:"observation_id"`

	// Backend is library or fallback
	Backend string `json:"backend"`
}

// VisitResult represents the outcome of visiting a single page
type VisitResult struct {
	// Timestamp when the visit started
	Timestamp time.Time `json:"@timestamp"`

	// VisitID is a unique identifier for this visit
	VisitID string `json:"visit_id"`

	Page PageInfo `json:"page"`

	Status StatusInfo `json:"status"`

	// Collector describes which backend served the visit
	Collector CollectorInfo `json:"collector"`

	// ReadingCount is how many readings the sink received
	ReadingCount int `json:"reading_count"`

	// DurationMs is the total visit time including dwell
	DurationMs int64 `json:"duration_ms"`

	// Error information (if the visit failed)
	Error *ErrorInfo `json:"error,omitempty"`

	Metadata Metadata `json:"metadata,omitempty"`
}

// StatusInfo contains the result status
type StatusInfo struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// CollectorInfo snapshots the collector after teardown
type CollectorInfo struct {
	Backend    string   `json:"backend"`
	RetryCount int      `json:"retry_count"`
	Installed  []string `json:"installed,omitempty"`
}

// ErrorInfo contains error details when a visit fails
type ErrorInfo struct {
	// ErrorType categorizes the error (e.g., "timeout", "dns", "connection_refused")
	ErrorType string `json:"error_type"`

	// ErrorMessage is the human-readable error message
	ErrorMessage string `json:"error_message"`
}

// Metadata contains information about the monitor environment
type Metadata struct {
	Hostname string `json:"hostname,omitempty"`
	Version  string `json:"version,omitempty"`

	// UserAgent of the headless browser
	UserAgent string `json:"user_agent,omitempty"`
}
