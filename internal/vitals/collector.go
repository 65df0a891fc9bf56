// Package vitals collects web-vitals readings from a page.
//
// A Collector resolves one backend per page load: the optional measurement
// library when its loader succeeds, otherwise the built-in observers in
// Fallback. It installs one observer per Signal, normalises what they emit
// into Readings and hands them to a Sink. Nothing in the collection path
// panics or returns an error to the caller; failures are contained and,
// in debug mode, logged with their taxonomy tag.
package vitals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RetryPolicy bounds how often a failed library load is retried
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	// BaseDelay is multiplied by the attempt number before each retry
	BaseDelay time.Duration
}

// DefaultRetryPolicy retries three times at 1s, 2s and 3s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}
}

// Options controls a single Initialize call
type Options struct {
	// Debug enables verbose logging of every classified failure
	Debug bool

	// Logger receives debug output; slog.Default() when nil
	Logger *slog.Logger
}

// State is a snapshot of the collector for one page load
type State struct {
	Backend    BackendKind `json:"backend"`
	RetryCount int         `json:"retry_count"`
	Installed  []Signal    `json:"installed"`
}

// Collector produces readings for the tracked signals of one page load
type Collector struct {
	platform Platform
	loader   Loader
	policy   RetryPolicy

	mu          sync.Mutex
	initialized bool
	closed      bool
	cancel      context.CancelFunc
	backend     BackendKind
	retryCount  int
	installed   map[Signal]bool
	lastValue   map[Signal]float64
	emitted     map[string]int
	fallback    *Fallback
	sink        Sink
	logger      *slog.Logger
	debug       bool
}

// NewCollector creates a collector. A nil loader skips straight to the
// built-in observers.
func NewCollector(platform Platform, loader Loader, policy RetryPolicy) *Collector {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BaseDelay < 0 {
		policy.BaseDelay = 0
	}

	return &Collector{
		platform:  platform,
		loader:    loader,
		policy:    policy,
		backend:   BackendUnavailable,
		installed: make(map[Signal]bool),
		lastValue: make(map[Signal]float64),
		emitted:   make(map[string]int),
		logger:    slog.Default(),
	}
}

// Initialize resolves a backend and installs one observer per signal.
// It blocks while the library load is retried and returns once observers
// are installed. Outside a browser it returns immediately. Calling it a
// second time logs a warning and does nothing.
func (c *Collector) Initialize(ctx context.Context, sink Sink, opts Options) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if c.platform == nil || !c.platform.IsBrowser() {
		if opts.Debug {
			logger.Info("vitals: no browser context, collection skipped")
		}
		return
	}

	if sink == nil {
		logger.Warn("vitals: initialize called without a sink")
		return
	}

	c.mu.Lock()
	if c.initialized || c.closed {
		c.mu.Unlock()
		logger.Warn("vitals: collector already initialized")
		return
	}
	c.initialized = true
	c.sink = sink
	c.logger = logger
	c.debug = opts.Debug
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	registrations, kind := c.resolve(ctx)
	if kind == BackendUnavailable {
		c.debugLog("no backend available, nothing installed")
		return
	}
	c.install(registrations, kind)
}

// Close tears the collector down: a pending retry delay is cancelled,
// built-in observers are disconnected and their timers stopped.
// Readings emitted afterwards are dropped.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel, fb := c.cancel, c.fallback
	c.installed = make(map[Signal]bool)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if fb != nil {
		fb.Close()
	}
}

// State returns a snapshot of the collector
func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := State{Backend: c.backend, RetryCount: c.retryCount}
	for _, signal := range Signals {
		if c.installed[signal] {
			state.Installed = append(state.Installed, signal)
		}
	}
	return state
}

// resolve picks the backend. Loading failures that look transient are
// retried with a linearly growing delay until the policy is exhausted;
// anything else falls back to the built-in observers for good.
func (c *Collector) resolve(ctx context.Context) (map[Signal]RegisterFunc, BackendKind) {
	if c.loader != nil {
		for {
			registrations, err := c.loadLibrary(ctx)
			if err == nil {
				c.debugLog("library backend resolved", "retries", c.retries())
				return registrations, BackendLibrary
			}
			if ctx.Err() != nil {
				c.debugLog("library load cancelled", "class", Classify(err), "error", err)
				return nil, BackendUnavailable
			}

			attempt := c.retries()
			retryable := errors.Is(err, ErrModuleShape) || IsChunkLoadError(err)
			if !retryable || attempt >= c.policy.MaxRetries {
				c.debugLog("library unavailable, using built-in observers",
					"class", Classify(err),
					"error", err,
					"retries", attempt,
				)
				break
			}

			delay := c.policy.BaseDelay * time.Duration(attempt+1)
			c.debugLog("retrying library load",
				"class", Classify(err),
				"error", err,
				"attempt", attempt+1,
				"delay", delay,
			)
			if err := c.platform.Sleep(ctx, delay); err != nil {
				c.debugLog("retry delay cancelled", "class", Classify(ErrModuleLoad), "error", err)
				return nil, BackendUnavailable
			}

			c.mu.Lock()
			c.retryCount++
			c.mu.Unlock()
		}
	}

	fb := NewFallback(c.platform)
	if !fb.Supported() {
		c.debugLog("no performance observer support", "class", Classify(ErrObserverUnsupported))
		return nil, BackendUnavailable
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		fb.Close()
		return nil, BackendUnavailable
	}
	c.fallback = fb
	c.mu.Unlock()

	return fb.Registrations(), BackendFallback
}

func (c *Collector) loadLibrary(ctx context.Context) (registrations map[Signal]RegisterFunc, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: loader panicked: %v", ErrModuleLoad, r)
		}
	}()

	module, err := c.loader(ctx)
	if err != nil {
		return nil, err
	}
	return ValidateModule(module)
}

// install registers each signal's observer. A failing registration leaves
// only that signal unobserved.
func (c *Collector) install(registrations map[Signal]RegisterFunc, kind BackendKind) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.backend = kind
	c.mu.Unlock()

	for _, signal := range Signals {
		register, ok := registrations[signal]
		if !ok || register == nil {
			continue
		}

		c.mu.Lock()
		skip := c.closed || c.installed[signal]
		c.mu.Unlock()
		if skip {
			continue
		}

		if err := safeRegister(register, c.handlerFor(signal, kind)); err != nil {
			c.debugLog("observer not installed",
				"signal", signal,
				"class", Classify(err),
				"error", err,
			)
			continue
		}

		c.mu.Lock()
		if !c.closed {
			c.installed[signal] = true
		}
		c.mu.Unlock()
	}

	c.debugLog("observers installed", "backend", kind, "signals", c.State().Installed)
}

func safeRegister(register RegisterFunc, handler func(Metric)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("registration panicked: %v", r)
		}
	}()
	return register(handler)
}

// handlerFor validates an emission, rates it and forwards it to the sink
func (c *Collector) handlerFor(signal Signal, kind BackendKind) func(Metric) {
	return func(m Metric) {
		e, err := parseMetric(m)
		if err != nil {
			c.debugLog("emission dropped", "signal", signal, "class", Classify(err), "error", err)
			return
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		delta := e.delta
		if !e.hasDelta {
			delta = e.value - c.lastValue[signal]
		}
		c.lastValue[signal] = e.value
		id := e.id
		if id == "" {
			id = uuid.NewString()
		}
		// The library repeats one id for every interim update of a metric
		c.emitted[id]++
		id = fmt.Sprintf("%s-%d", id, c.emitted[id])
		sink := c.sink
		c.mu.Unlock()

		reading := Reading{
			Signal:        signal,
			Value:         e.value,
			Rating:        Rate(signal, e.value),
			Delta:         delta,
			ObservationID: id,
			Backend:       kind,
		}
		c.debugLog("reading",
			"signal", reading.Signal,
			"value", reading.Value,
			"rating", reading.Rating,
			"id", reading.ObservationID,
		)
		sink(reading)
	}
}

func (c *Collector) retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

func (c *Collector) debugLog(msg string, args ...any) {
	c.mu.Lock()
	debug, logger := c.debug, c.logger
	c.mu.Unlock()

	if !debug {
		return
	}
	logger.Info("vitals: "+msg, args...)
}
