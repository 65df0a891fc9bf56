package vitals

// Rating is the qualitative bucket of a reading
type Rating string

const (
	RatingGood             Rating = "good"
	RatingNeedsImprovement Rating = "needs-improvement"
	RatingPoor             Rating = "poor"
)

// thresholds holds the two cutoffs of a signal.
// value <= good is good, value <= poor is needs-improvement, above is poor.
type thresholds struct {
	good float64
	poor float64
}

var thresholdTable = map[Signal]thresholds{
	FCP:  {good: 1800, poor: 3000},
	LCP:  {good: 2500, poor: 4000},
	CLS:  {good: 0.1, poor: 0.25},
	INP:  {good: 200, poor: 500},
	TTFB: {good: 800, poor: 1800},
}

// Rate buckets a value for the given signal.
// Unknown signals use 0/0 cutoffs, so any positive value rates poor.
func Rate(signal Signal, value float64) Rating {
	t := thresholdTable[signal]
	switch {
	case value <= t.good:
		return RatingGood
	case value <= t.poor:
		return RatingNeedsImprovement
	default:
		return RatingPoor
	}
}

// Thresholds returns the good and poor cutoffs for a signal
func Thresholds(signal Signal) (good, poor float64, ok bool) {
	t, ok := thresholdTable[signal]
	return t.good, t.poor, ok
}
