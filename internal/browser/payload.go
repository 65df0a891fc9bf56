package browser

import (
	"encoding/json"
	"fmt"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/vitals"
)

const (
	payloadEntries = "entries"
	payloadMetric  = "metric"
	payloadSync    = "sync"
)

// payload is one message posted by an injected script
type payload struct {
	Kind     string                    `json:"kind"`
	Observer int                       `json:"observer"`
	Entries  []vitals.PerformanceEntry `json:"entries,omitempty"`
	Metric   vitals.Metric             `json:"metric,omitempty"`
}

func decodePayload(raw string) (payload, error) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return payload{}, fmt.Errorf("decode binding payload: %w", err)
	}
	switch p.Kind {
	case payloadEntries, payloadMetric, payloadSync:
		return p, nil
	default:
		return payload{}, fmt.Errorf("unknown binding payload kind %q", p.Kind)
	}
}
