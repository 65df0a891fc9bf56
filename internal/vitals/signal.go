package vitals

// Signal identifies one tracked performance dimension
type Signal string

const (
	// FCP is first-contentful-paint in milliseconds
	FCP Signal = "FCP"

	// LCP is largest-contentful-paint in milliseconds
	LCP Signal = "LCP"

	// CLS is cumulative-layout-shift, a unitless score
	CLS Signal = "CLS"

	// INP is interaction latency in milliseconds
	INP Signal = "INP"

	// TTFB is time-to-first-byte in milliseconds
	TTFB Signal = "TTFB"
)

// Signals lists every tracked signal in installation order
var Signals = []Signal{TTFB, FCP, LCP, CLS, INP}

// ExportName returns the registration function name the optional
// measurement library exposes for this signal (e.g. "onCLS")
func (s Signal) ExportName() string {
	return "on" + string(s)
}

// Valid reports whether s is one of the tracked signals
func (s Signal) Valid() bool {
	for _, known := range Signals {
		if s == known {
			return true
		}
	}
	return false
}

// Unitless reports whether the signal is a score rather than a duration
func (s Signal) Unitless() bool {
	return s == CLS
}
