package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/vitals"
)

// startTestPage runs the dispatch pump without a browser attached
func startTestPage(t *testing.T) *Page {
	t.Helper()
	p := newPage(context.Background(), slog.Default())
	go p.pump()
	t.Cleanup(p.Close)
	return p
}

func post(p *Page, raw string) {
	p.onEvent(&runtime.EventBindingCalled{Name: bindingName, Payload: raw})
}

func TestDecodePayload(t *testing.T) {
	msg, err := decodePayload(`{"kind":"entries","observer":4,"entries":[{"name":"first-contentful-paint","entryType":"paint","startTime":512.3}]}`)
	require.NoError(t, err)
	assert.Equal(t, payloadEntries, msg.Kind)
	assert.Equal(t, 4, msg.Observer)
	require.Len(t, msg.Entries, 1)
	assert.Equal(t, 512.3, msg.Entries[0].StartTime)

	msg, err = decodePayload(`{"kind":"metric","observer":2,"metric":{"name":"LCP","value":1200,"delta":1200,"id":"v4-1"}}`)
	require.NoError(t, err)
	assert.Equal(t, "LCP", msg.Metric["name"])
	assert.Equal(t, 1200.0, msg.Metric["value"])

	_, err = decodePayload(`{"kind":"beacon"}`)
	assert.Error(t, err)

	_, err = decodePayload(`not json`)
	assert.Error(t, err)
}

func TestDecodePayload_NaNArrivesAsNull(t *testing.T) {
	// JSON.stringify turns NaN into null
	msg, err := decodePayload(`{"kind":"metric","observer":1,"metric":{"name":"CLS","value":null}}`)
	require.NoError(t, err)
	assert.Nil(t, msg.Metric["value"])
}

func TestPage_DispatchKeepsArrivalOrder(t *testing.T) {
	p := startTestPage(t)

	var mu sync.Mutex
	var got []float64
	p.entries[1] = func(entries []vitals.PerformanceEntry) {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range entries {
			got = append(got, e.StartTime)
		}
	}

	for i := 1; i <= 50; i++ {
		post(p, fmt.Sprintf(`{"kind":"entries","observer":1,"entries":[{"entryType":"largest-contentful-paint","startTime":%d}]}`, i))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 50
	}, time.Second, 5*time.Millisecond)

	for i, v := range got {
		assert.Equal(t, float64(i+1), v)
	}
}

func TestPage_DispatchRoutesMetricsAndSyncs(t *testing.T) {
	p := startTestPage(t)

	metrics := make(chan vitals.Metric, 1)
	p.metrics[7] = func(m vitals.Metric) { metrics <- m }
	synced := make(chan struct{})
	p.syncs[8] = synced

	post(p, `{"kind":"metric","observer":7,"metric":{"name":"INP","value":96}}`)
	post(p, `{"kind":"sync","observer":8}`)

	select {
	case m := <-metrics:
		assert.Equal(t, "INP", m["name"])
	case <-time.After(time.Second):
		t.Fatal("metric was not dispatched")
	}

	select {
	case <-synced:
	case <-time.After(time.Second):
		t.Fatal("sync token was not released")
	}
}

func TestPage_IgnoresForeignBindingsAndRemovedHandlers(t *testing.T) {
	p := startTestPage(t)

	called := make(chan struct{}, 2)
	p.entries[1] = func([]vitals.PerformanceEntry) { called <- struct{}{} }
	p.removeHandler(1)

	p.onEvent(&runtime.EventBindingCalled{Name: "somethingElse", Payload: `{"kind":"entries","observer":1}`})
	post(p, `{"kind":"entries","observer":1,"entries":[]}`)
	post(p, `garbage`)

	synced := make(chan struct{})
	p.syncs[2] = synced
	post(p, `{"kind":"sync","observer":2}`)
	<-synced

	assert.Empty(t, called)
}

func TestPage_CallbackPanicIsContained(t *testing.T) {
	p := startTestPage(t)

	p.entries[1] = func([]vitals.PerformanceEntry) { panic("boom") }
	synced := make(chan struct{})
	p.syncs[2] = synced

	post(p, `{"kind":"entries","observer":1,"entries":[]}`)
	post(p, `{"kind":"sync","observer":2}`)

	select {
	case <-synced:
	case <-time.After(time.Second):
		t.Fatal("pump stopped after a panicking callback")
	}
}

func TestPage_CloseStopsDelivery(t *testing.T) {
	p := newPage(context.Background(), slog.Default())
	go p.pump()

	assert.True(t, p.IsBrowser())
	p.Close()
	p.Close()
	assert.False(t, p.IsBrowser())

	_, err := p.Observe("paint", func([]vitals.PerformanceEntry) {})
	assert.ErrorIs(t, err, ErrPageClosed)
	assert.ErrorIs(t, p.Sync(context.Background()), ErrPageClosed)
}

func TestPage_PageHideHooksKeepOrder(t *testing.T) {
	p := startTestPage(t)

	var order []int
	p.OnPageHide(func() { order = append(order, 1) })
	remove := p.OnPageHide(func() { order = append(order, 2) })
	p.OnPageHide(func() { order = append(order, 3) })
	remove()

	for _, fn := range p.pageHideHooks() {
		fn()
	}
	assert.Equal(t, []int{1, 3}, order)
}

func TestModuleFromKinds(t *testing.T) {
	kinds := map[string]string{
		"onCLS":  "function",
		"onFCP":  "function",
		"onLCP":  "function",
		"onINP":  "function",
		"onTTFB": "object",
	}

	module := moduleFromKinds(&Page{}, kinds)
	assert.IsType(t, vitals.RegisterFunc(nil), module["onCLS"])
	assert.Equal(t, "object", module["onTTFB"])

	_, err := vitals.ValidateModule(module)
	assert.ErrorIs(t, err, vitals.ErrModuleShape)

	kinds["onTTFB"] = "function"
	regs, err := vitals.ValidateModule(moduleFromKinds(&Page{}, kinds))
	require.NoError(t, err)
	assert.Len(t, regs, 5)

	assert.Nil(t, moduleFromKinds(&Page{}, nil))
}

func TestScripts(t *testing.T) {
	observe := observeScript(bindingName, 3, "layout-shift")
	assert.Contains(t, observe, `window["__vitalsReport"]`)
	assert.Contains(t, observe, `{type: "layout-shift", buffered: true}`)
	assert.Contains(t, observe, `observer: 3`)
	assert.NotContains(t, observe, "durationThreshold")

	assert.Contains(t, observeScript(bindingName, 4, "event"), "durationThreshold: 16")

	assert.Contains(t, disconnectScript(3), "observers[3].disconnect()")
	assert.Contains(t, syncScript(bindingName, 9), `{kind: "sync", observer: 9}`)

	imp := importScript(`https://cdn.example.com/web-vitals.js?v="4"`)
	assert.True(t, strings.HasPrefix(imp, `import("https://cdn.example.com/web-vitals.js?v=\"4\"")`), "url is quoted")

	reg := libraryRegisterScript(bindingName, 5, "onINP")
	assert.Contains(t, reg, `window.__webVitals["onINP"]`)
	assert.Contains(t, reg, "reportAllChanges: true")
}
