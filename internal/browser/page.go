package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/vitals"
)

// ErrPageClosed is returned by operations on a page whose tab went away
var ErrPageClosed = errors.New("page closed")

// Page is a vitals.Platform backed by a live chromedp tab.
//
// Injected scripts post JSON through a runtime binding. The chromedp event
// listener only queues those payloads; a single pump goroutine decodes and
// dispatches them in arrival order, so callbacks may call back into the
// tab without blocking the event loop.
type Page struct {
	ctx    context.Context
	logger *slog.Logger

	supported map[string]bool

	mu       sync.Mutex
	queue    []string
	closed   bool
	nextID   int
	entries  map[int]func([]vitals.PerformanceEntry)
	metrics  map[int]func(vitals.Metric)
	syncs    map[int]chan struct{}
	hooks    map[int]func()
	hookSeq  []int
	notify   chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewPage attaches to the tab in ctx, which must be a chromedp context
// that has already navigated.
func NewPage(ctx context.Context, logger *slog.Logger) (*Page, error) {
	if logger == nil {
		logger = slog.Default()
	}

	p := newPage(ctx, logger)
	chromedp.ListenTarget(ctx, p.onEvent)

	var types []string
	err := chromedp.Run(ctx,
		runtime.AddBinding(bindingName),
		chromedp.Evaluate(supportedEntryTypesScript, &types),
	)
	if err != nil {
		return nil, fmt.Errorf("attach to page: %w", err)
	}

	p.supported = make(map[string]bool, len(types))
	for _, t := range types {
		p.supported[t] = true
	}

	go p.pump()
	return p, nil
}

func newPage(ctx context.Context, logger *slog.Logger) *Page {
	return &Page{
		ctx:     ctx,
		logger:  logger,
		entries: make(map[int]func([]vitals.PerformanceEntry)),
		metrics: make(map[int]func(vitals.Metric)),
		syncs:   make(map[int]chan struct{}),
		hooks:   make(map[int]func()),
		notify:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// IsBrowser reports whether the tab is still attached
func (p *Page) IsBrowser() bool {
	select {
	case <-p.ctx.Done():
		return false
	case <-p.stop:
		return false
	default:
		return true
	}
}

// SupportsEntryType reports whether the tab's PerformanceObserver accepts entryType
func (p *Page) SupportsEntryType(entryType string) bool {
	return p.supported[entryType]
}

// Observe installs a buffered PerformanceObserver inside the tab
func (p *Page) Observe(entryType string, fn func([]vitals.PerformanceEntry)) (func(), error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPageClosed
	}
	id := p.allocID()
	p.entries[id] = fn
	p.mu.Unlock()

	if err := p.evaluate(p.ctx, observeScript(bindingName, id, entryType)); err != nil {
		p.removeHandler(id)
		return nil, fmt.Errorf("observe %s: %w", entryType, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			p.removeHandler(id)
			if !p.IsBrowser() {
				return
			}
			if err := p.evaluate(p.ctx, disconnectScript(id)); err != nil {
				p.logger.Debug("Failed to disconnect observer", "entry_type", entryType, "error", err)
			}
		})
	}, nil
}

// OnPageHide registers fn to run from Hide
func (p *Page) OnPageHide(fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.allocID()
	p.hooks[id] = fn
	p.hookSeq = append(p.hookSeq, id)

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.hooks, id)
	}
}

// AfterFunc runs fn on its own goroutine after d
func (p *Page) AfterFunc(d time.Duration, fn func()) vitals.Timer {
	return time.AfterFunc(d, fn)
}

// Sleep waits for d, ctx cancellation or the tab going away
func (p *Page) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPageClosed
	}
}

// Hide simulates the page being hidden. In-page listeners see
// visibilitychange and pagehide; payloads already posted are delivered
// before the registered hooks run.
func (p *Page) Hide(ctx context.Context) error {
	if err := p.evaluate(ctx, hideScript); err != nil {
		return fmt.Errorf("hide page: %w", err)
	}
	if err := p.Sync(ctx); err != nil {
		return err
	}

	for _, fn := range p.pageHideHooks() {
		fn()
	}
	return nil
}

// pageHideHooks returns the registered hooks in registration order
func (p *Page) pageHideHooks() []func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	hooks := make([]func(), 0, len(p.hooks))
	for _, id := range p.hookSeq {
		if fn, ok := p.hooks[id]; ok {
			hooks = append(hooks, fn)
		}
	}
	return hooks
}

// Sync waits until every payload the tab posted so far has been dispatched
func (p *Page) Sync(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPageClosed
	}
	token := p.allocID()
	ch := make(chan struct{})
	p.syncs[token] = ch
	p.mu.Unlock()

	if err := p.evaluate(ctx, syncScript(bindingName, token)); err != nil {
		p.mu.Lock()
		delete(p.syncs, token)
		p.mu.Unlock()
		return fmt.Errorf("sync page: %w", err)
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPageClosed
	}
}

// Close stops dispatching. Observers inside the tab die with it.
func (p *Page) Close() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.queue = nil
		p.mu.Unlock()
		close(p.stop)
	})
	<-p.done
}

// run executes actions against the tab, bounded by both ctx and the tab
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return describeException(err)
	}
	return nil
}

func (p *Page) evaluate(ctx context.Context, script string) error {
	return p.run(ctx, chromedp.Evaluate(script, nil))
}

func (p *Page) allocID() int {
	p.nextID++
	return p.nextID
}

func (p *Page) removeHandler(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, id)
	delete(p.metrics, id)
}

// onEvent runs on the chromedp event goroutine and must not block
func (p *Page) onEvent(ev interface{}) {
	called, ok := ev.(*runtime.EventBindingCalled)
	if !ok || called.Name != bindingName {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, called.Payload)
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *Page) pump() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case <-p.ctx.Done():
			return
		case <-p.notify:
		}

		for {
			p.mu.Lock()
			if len(p.queue) == 0 || p.closed {
				p.mu.Unlock()
				break
			}
			raw := p.queue[0]
			p.queue = p.queue[1:]
			p.mu.Unlock()

			p.dispatch(raw)
		}
	}
}

func (p *Page) dispatch(raw string) {
	msg, err := decodePayload(raw)
	if err != nil {
		p.logger.Debug("Dropping binding payload", "error", err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("Observer callback panicked", "kind", msg.Kind, "panic", r)
		}
	}()

	p.mu.Lock()
	var (
		onEntries func([]vitals.PerformanceEntry)
		onMetric  func(vitals.Metric)
		syncCh    chan struct{}
	)
	switch msg.Kind {
	case payloadEntries:
		onEntries = p.entries[msg.Observer]
	case payloadMetric:
		onMetric = p.metrics[msg.Observer]
	case payloadSync:
		syncCh = p.syncs[msg.Observer]
		delete(p.syncs, msg.Observer)
	}
	p.mu.Unlock()

	switch {
	case onEntries != nil:
		onEntries(msg.Entries)
	case onMetric != nil:
		onMetric(msg.Metric)
	case syncCh != nil:
		close(syncCh)
	}
}

// describeException appends the thrown value's description, which carries
// the browser's own error text, to a script exception
func describeException(err error) error {
	var exc *runtime.ExceptionDetails
	if errors.As(err, &exc) && exc.Exception != nil && exc.Exception.Description != "" {
		return fmt.Errorf("%w: %s", err, exc.Exception.Description)
	}
	return err
}
