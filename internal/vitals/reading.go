package vitals

import (
	"fmt"
	"math"
)

// Reading is one normalised observation of a signal
type Reading struct {
	Signal        Signal      `json:"signal"`
	Value         float64     `json:"value"`
	Rating        Rating      `json:"rating"`
	Delta         float64     `json:"delta"`
	ObservationID string      `json:"observation_id"`
	Backend       BackendKind `json:"backend"`
}

// Sink receives every reading. It is shared by all observers and may be
// called from independent goroutines, so it must be reentrant, must not
// block and must not panic.
type Sink func(Reading)

// Metric is the raw object a backend reports. It is loosely typed because it
// is usually decoded straight from browser JSON.
type Metric map[string]interface{}

// emission holds the validated fields of a Metric
type emission struct {
	name     string
	value    float64
	id       string
	delta    float64
	hasDelta bool
}

// parseMetric validates the shape of a backend emission
func parseMetric(m Metric) (emission, error) {
	if m == nil {
		return emission{}, fmt.Errorf("%w: nil metric", ErrMalformedEmission)
	}

	name, _ := m["name"].(string)
	if name == "" {
		return emission{}, fmt.Errorf("%w: missing name", ErrMalformedEmission)
	}

	value, ok := toFloat(m["value"])
	if !ok {
		return emission{}, fmt.Errorf("%w: %s value %v is not a finite number", ErrMalformedEmission, name, m["value"])
	}
	if value < 0 {
		return emission{}, fmt.Errorf("%w: %s value %v is negative", ErrMalformedEmission, name, value)
	}

	e := emission{name: name, value: value}
	e.id, _ = m["id"].(string)
	e.delta, e.hasDelta = toFloat(m["delta"])
	return e, nil
}

// toFloat accepts the numeric types JSON decoding and Go callers produce
// and rejects NaN and infinities
func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
