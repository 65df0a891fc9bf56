package vitals

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// InteractionBatchSize is the number of interactions averaged into one
// INP reading by the built-in sampler
const InteractionBatchSize = 10

// accumulation describes how a built-in observer turns entries into readings
type accumulation int

const (
	// pointSample reports the last qualifying entry of each batch
	pointSample accumulation = iota

	// accumulateUntilHide sums entries and reports on page hide
	accumulateUntilHide

	// batchAndAverage reports the mean of every InteractionBatchSize
	// interactions, each the longest of its entries
	batchAndAverage
)

// observerRow is one entry of the built-in observer table
type observerRow struct {
	signal     Signal
	entryTypes []string // first supported type wins
	extract    func(PerformanceEntry) (float64, bool)
	mode       accumulation
	once       bool // disconnect after the first reading
}

var fallbackTable = []observerRow{
	{signal: TTFB, entryTypes: []string{"navigation"}, extract: navigationTTFB, mode: pointSample, once: true},
	{signal: FCP, entryTypes: []string{"paint"}, extract: firstContentfulPaint, mode: pointSample, once: true},
	{signal: LCP, entryTypes: []string{"largest-contentful-paint"}, extract: entryStartTime, mode: pointSample},
	{signal: CLS, entryTypes: []string{"layout-shift"}, extract: layoutShift, mode: accumulateUntilHide},
	{signal: INP, entryTypes: []string{"event", "first-input"}, extract: interactionDuration, mode: batchAndAverage},
}

func navigationTTFB(e PerformanceEntry) (float64, bool) {
	if e.ResponseStart <= 0 {
		return 0, false
	}
	return e.ResponseStart, true
}

func firstContentfulPaint(e PerformanceEntry) (float64, bool) {
	if e.Name != "first-contentful-paint" {
		return 0, false
	}
	return e.StartTime, true
}

func entryStartTime(e PerformanceEntry) (float64, bool) {
	return e.StartTime, e.StartTime >= 0
}

// layoutShift ignores shifts caused by recent user input
func layoutShift(e PerformanceEntry) (float64, bool) {
	if e.HadRecentInput {
		return 0, false
	}
	return e.Value, true
}

// interactionDuration keeps event entries that belong to an interaction
func interactionDuration(e PerformanceEntry) (float64, bool) {
	if e.EntryType == "event" && e.InteractionID <= 0 {
		return 0, false
	}
	return e.Duration, true
}

// Fallback is the built-in backend implemented directly on the platform's
// performance-observation primitives
type Fallback struct {
	platform Platform

	mu          sync.Mutex
	closed      bool
	disconnects []func()
	hideHooks   []func()
	timers      []Timer
}

// NewFallback creates the built-in backend
func NewFallback(platform Platform) *Fallback {
	return &Fallback{platform: platform}
}

// Registrations returns one registration function per signal
func (f *Fallback) Registrations() map[Signal]RegisterFunc {
	regs := make(map[Signal]RegisterFunc, len(fallbackTable))
	for _, row := range fallbackTable {
		regs[row.signal] = f.register(row)
	}
	return regs
}

// Supported reports whether at least one signal can be observed
func (f *Fallback) Supported() bool {
	for _, row := range fallbackTable {
		if _, ok := f.entryType(row); ok {
			return true
		}
	}
	return false
}

// Close disconnects every observer, removes page-hide hooks and stops
// pending timers
func (f *Fallback) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	disconnects, hooks, timers := f.disconnects, f.hideHooks, f.timers
	f.disconnects, f.hideHooks, f.timers = nil, nil, nil
	f.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	for _, remove := range hooks {
		remove()
	}
	for _, disconnect := range disconnects {
		disconnect()
	}
}

func (f *Fallback) entryType(row observerRow) (string, bool) {
	for _, entryType := range row.entryTypes {
		if f.platform.SupportsEntryType(entryType) {
			return entryType, true
		}
	}
	return "", false
}

func (f *Fallback) register(row observerRow) RegisterFunc {
	return func(report func(Metric)) error {
		entryType, ok := f.entryType(row)
		if !ok {
			return fmt.Errorf("%w: %s needs %s", ErrObserverUnsupported, row.signal, strings.Join(row.entryTypes, " or "))
		}

		switch row.mode {
		case accumulateUntilHide:
			return f.observeAccumulated(row, entryType, report)
		case batchAndAverage:
			return f.observeBatched(row, entryType, report)
		default:
			return f.observePoint(row, entryType, report)
		}
	}
}

func (f *Fallback) observePoint(row observerRow, entryType string, report func(Metric)) error {
	var (
		mu         sync.Mutex
		last       float64
		done       bool
		disconnect func()
	)

	callback := func(entries []PerformanceEntry) {
		mu.Lock()
		if done {
			mu.Unlock()
			return
		}
		value, found := 0.0, false
		for _, e := range entries {
			if v, ok := row.extract(e); ok {
				value, found = v, true
			}
		}
		if !found {
			mu.Unlock()
			return
		}
		delta := value - last
		last = value
		done = row.once
		stop := disconnect
		mu.Unlock()

		report(newMetric(row.signal, value, delta))
		if row.once && stop != nil {
			stop()
		}
	}

	d, err := f.platform.Observe(entryType, callback)
	if err != nil {
		return fmt.Errorf("observe %s: %w", entryType, err)
	}
	d = sync.OnceFunc(d)

	mu.Lock()
	disconnect = d
	finished := done
	mu.Unlock()

	if finished {
		// buffered entries were delivered synchronously
		d()
	}
	f.track(d)
	return nil
}

func (f *Fallback) observeAccumulated(row observerRow, entryType string, report func(Metric)) error {
	var (
		mu       sync.Mutex
		sum      float64
		reported bool
		last     float64
	)

	d, err := f.platform.Observe(entryType, func(entries []PerformanceEntry) {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range entries {
			if v, ok := row.extract(e); ok {
				sum += v
			}
		}
	})
	if err != nil {
		return fmt.Errorf("observe %s: %w", entryType, err)
	}
	f.track(sync.OnceFunc(d))

	remove := f.platform.OnPageHide(func() {
		mu.Lock()
		if reported && sum == last {
			mu.Unlock()
			return
		}
		value, delta := sum, sum-last
		last, reported = sum, true
		mu.Unlock()

		report(newMetric(row.signal, value, delta))
	})
	f.trackHook(remove)
	return nil
}

func (f *Fallback) observeBatched(row observerRow, entryType string, report func(Metric)) error {
	var (
		mu       sync.Mutex
		reportMu sync.Mutex // keeps readings in queue order
		batch    []float64
		queue    []float64
		last     float64
		index    = make(map[int64]int) // interaction id to batch position
		flushed  = make(map[int64]bool)
		anon     int64
	)

	// closeBatch must be called with mu held
	closeBatch := func() {
		if len(batch) == 0 {
			return
		}
		queue = append(queue, mean(batch))
		for id := range index {
			flushed[id] = true
		}
		batch = nil
		index = make(map[int64]int)
	}

	drain := func() {
		reportMu.Lock()
		defer reportMu.Unlock()

		mu.Lock()
		pending := queue
		queue = nil
		mu.Unlock()

		for _, value := range pending {
			mu.Lock()
			delta := value - last
			last = value
			mu.Unlock()
			report(newMetric(row.signal, value, delta))
		}
	}

	d, err := f.platform.Observe(entryType, func(entries []PerformanceEntry) {
		filled := false
		mu.Lock()
		for _, e := range entries {
			v, ok := row.extract(e)
			if !ok {
				continue
			}
			// one interaction emits several event entries under one id;
			// a first-input entry without an id is an interaction of its own
			id := e.InteractionID
			if id <= 0 {
				anon--
				id = anon
			}
			if flushed[id] {
				continue
			}
			if i, seen := index[id]; seen {
				batch[i] = max(batch[i], v)
				continue
			}
			index[id] = len(batch)
			batch = append(batch, v)
			if len(batch) == InteractionBatchSize {
				closeBatch()
				filled = true
			}
		}
		mu.Unlock()

		if filled {
			f.schedule(drain)
		}
	})
	if err != nil {
		return fmt.Errorf("observe %s: %w", entryType, err)
	}
	f.track(sync.OnceFunc(d))

	// A partially filled batch is reported when the page goes away so
	// short visits still produce a reading.
	remove := f.platform.OnPageHide(func() {
		mu.Lock()
		closeBatch()
		mu.Unlock()
		drain()
	})
	f.trackHook(remove)
	return nil
}

func (f *Fallback) track(disconnect func()) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		disconnect()
		return
	}
	f.disconnects = append(f.disconnects, disconnect)
	f.mu.Unlock()
}

func (f *Fallback) trackHook(remove func()) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		remove()
		return
	}
	f.hideHooks = append(f.hideHooks, remove)
	f.mu.Unlock()
}

func (f *Fallback) schedule(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.timers = append(f.timers, f.platform.AfterFunc(0, fn))
}

func newMetric(signal Signal, value, delta float64) Metric {
	return Metric{
		"name":  string(signal),
		"value": value,
		"delta": delta,
		"id":    "fb-" + uuid.NewString(),
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}
