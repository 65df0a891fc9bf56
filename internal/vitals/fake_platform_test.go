package vitals

import (
	"context"
	"sync"
	"time"
)

// fakePlatform is a deterministic Platform for tests. Timers never fire on
// their own, sleeps return immediately unless blockSleep is set.
type fakePlatform struct {
	mu         sync.Mutex
	browser    bool
	supported  map[string]bool
	buffered   map[string][]PerformanceEntry
	observers  map[string][]*fakeObserver
	hooks      map[int]func()
	nextHook   int
	timers     []*fakeTimer
	sleeps     []time.Duration
	blockSleep bool
	sleeping   chan struct{}
}

type fakeObserver struct {
	fn           func([]PerformanceEntry)
	disconnected bool
}

type fakeTimer struct {
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

var allEntryTypes = []string{"navigation", "paint", "largest-contentful-paint", "layout-shift", "event", "first-input"}

func newFakePlatform() *fakePlatform {
	supported := make(map[string]bool)
	for _, entryType := range allEntryTypes {
		supported[entryType] = true
	}
	return &fakePlatform{
		browser:   true,
		supported: supported,
		buffered:  make(map[string][]PerformanceEntry),
		observers: make(map[string][]*fakeObserver),
		hooks:     make(map[int]func()),
		sleeping:  make(chan struct{}, 8),
	}
}

func (p *fakePlatform) IsBrowser() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.browser
}

func (p *fakePlatform) SupportsEntryType(entryType string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.supported[entryType]
}

func (p *fakePlatform) Observe(entryType string, fn func([]PerformanceEntry)) (func(), error) {
	p.mu.Lock()
	obs := &fakeObserver{fn: fn}
	p.observers[entryType] = append(p.observers[entryType], obs)
	buffered := p.buffered[entryType]
	p.mu.Unlock()

	if len(buffered) > 0 {
		fn(buffered)
	}

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		obs.disconnected = true
	}, nil
}

func (p *fakePlatform) OnPageHide(fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextHook
	p.nextHook++
	p.hooks[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.hooks, id)
	}
}

func (p *fakePlatform) AfterFunc(d time.Duration, fn func()) Timer {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := &fakeTimer{fn: fn}
	p.timers = append(p.timers, t)
	return t
}

func (p *fakePlatform) Sleep(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.sleeps = append(p.sleeps, d)
	block := p.blockSleep
	p.mu.Unlock()

	if !block {
		return ctx.Err()
	}
	p.sleeping <- struct{}{}
	<-ctx.Done()
	return ctx.Err()
}

// emit delivers entries to every connected observer of entryType
func (p *fakePlatform) emit(entryType string, entries ...PerformanceEntry) {
	p.mu.Lock()
	var active []*fakeObserver
	for _, obs := range p.observers[entryType] {
		if !obs.disconnected {
			active = append(active, obs)
		}
	}
	p.mu.Unlock()

	for _, obs := range active {
		obs.fn(entries)
	}
}

// hide runs every registered page-hide hook
func (p *fakePlatform) hide() {
	p.mu.Lock()
	hooks := make([]func(), 0, len(p.hooks))
	for i := 0; i < p.nextHook; i++ {
		if fn, ok := p.hooks[i]; ok {
			hooks = append(hooks, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// fireTimers runs every pending timer once
func (p *fakePlatform) fireTimers() {
	p.mu.Lock()
	var pending []*fakeTimer
	for _, t := range p.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			pending = append(pending, t)
		}
	}
	p.mu.Unlock()

	for _, t := range pending {
		t.fn()
	}
}

func (p *fakePlatform) activeObservers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, list := range p.observers {
		for _, obs := range list {
			if !obs.disconnected {
				count++
			}
		}
	}
	return count
}

func (p *fakePlatform) hookCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.hooks)
}

func (p *fakePlatform) recordedSleeps() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.sleeps...)
}

func (p *fakePlatform) pendingTimers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, t := range p.timers {
		if !t.stopped && !t.fired {
			count++
		}
	}
	return count
}

// recorder is a Sink that keeps every reading
type recorder struct {
	mu       sync.Mutex
	readings []Reading
}

func (r *recorder) sink(reading Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings = append(r.readings, reading)
}

func (r *recorder) all() []Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reading(nil), r.readings...)
}

func (r *recorder) bySignal(signal Signal) []Reading {
	var out []Reading
	for _, reading := range r.all() {
		if reading.Signal == signal {
			out = append(out, reading)
		}
	}
	return out
}

// stubLibrary builds a Module whose registration functions record their
// report callbacks
type stubLibrary struct {
	mu      sync.Mutex
	calls   map[Signal]int
	reports map[Signal]func(Metric)
}

func newStubLibrary() *stubLibrary {
	return &stubLibrary{
		calls:   make(map[Signal]int),
		reports: make(map[Signal]func(Metric)),
	}
}

func (s *stubLibrary) module() Module {
	m := Module{}
	for _, signal := range Signals {
		signal := signal
		m[signal.ExportName()] = RegisterFunc(func(report func(Metric)) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.calls[signal]++
			s.reports[signal] = report
			return nil
		})
	}
	return m
}

func (s *stubLibrary) report(signal Signal, m Metric) {
	s.mu.Lock()
	fn := s.reports[signal]
	s.mu.Unlock()
	fn(m)
}

func (s *stubLibrary) callCount(signal Signal) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[signal]
}
