package browser

import (
	"fmt"
	"strconv"
)

// bindingName is the CDP runtime binding every injected script reports through
const bindingName = "__vitalsReport"

// eventDurationThreshold is the smallest durationThreshold Chrome accepts
// for event timing entries
const eventDurationThreshold = 16

// supportedEntryTypesScript lists the entry types PerformanceObserver accepts
const supportedEntryTypesScript = `(() => {
	if (typeof PerformanceObserver === "undefined") return [];
	return Array.from(PerformanceObserver.supportedEntryTypes || []);
})()`

// hideScript makes the document report itself hidden and fires the
// lifecycle events listeners wait for before reporting final values
const hideScript = `(() => {
	Object.defineProperty(document, "visibilityState", {configurable: true, get: () => "hidden"});
	Object.defineProperty(document, "hidden", {configurable: true, get: () => true});
	document.dispatchEvent(new Event("visibilitychange"));
	window.dispatchEvent(new PageTransitionEvent("pagehide", {persisted: false}));
	return true;
})()`

func observeScript(binding string, observer int, entryType string) string {
	opts := fmt.Sprintf(`{type: %s, buffered: true}`, strconv.Quote(entryType))
	if entryType == "event" {
		opts = fmt.Sprintf(`{type: %s, buffered: true, durationThreshold: %d}`, strconv.Quote(entryType), eventDurationThreshold)
	}

	return fmt.Sprintf(`(() => {
	const send = window[%[1]s];
	const pick = (e) => ({
		name: e.name,
		entryType: e.entryType,
		startTime: e.startTime,
		duration: e.duration,
		value: e.value || 0,
		hadRecentInput: !!e.hadRecentInput,
		requestStart: e.requestStart || 0,
		responseStart: e.responseStart || 0,
		interactionId: e.interactionId || 0,
	});
	const po = new PerformanceObserver((list) => {
		send(JSON.stringify({kind: "entries", observer: %[2]d, entries: list.getEntries().map(pick)}));
	});
	po.observe(%[3]s);
	(window.__vitalsObservers = window.__vitalsObservers || {})[%[2]d] = po;
	return true;
})()`, strconv.Quote(binding), observer, opts)
}

func disconnectScript(observer int) string {
	return fmt.Sprintf(`(() => {
	const observers = window.__vitalsObservers || {};
	if (observers[%[1]d]) {
		observers[%[1]d].disconnect();
		delete observers[%[1]d];
	}
	return true;
})()`, observer)
}

func syncScript(binding string, token int) string {
	return fmt.Sprintf(`window[%s](JSON.stringify({kind: "sync", observer: %d}))`, strconv.Quote(binding), token)
}

// importScript loads the library module, keeps it on window and returns
// the typeof of each export
func importScript(url string) string {
	return fmt.Sprintf(`import(%s).then((m) => {
	window.__webVitals = m;
	const kinds = {};
	for (const name of Object.keys(m)) kinds[name] = typeof m[name];
	return kinds;
})`, strconv.Quote(url))
}

// libraryRegisterScript calls one registration export of the loaded library
// and forwards every emitted metric through the binding
func libraryRegisterScript(binding string, observer int, export string) string {
	return fmt.Sprintf(`(() => {
	const send = window[%[1]s];
	window.__webVitals[%[3]s]((m) => {
		send(JSON.stringify({kind: "metric", observer: %[2]d, metric: {name: m.name, value: m.value, delta: m.delta, id: m.id}}));
	}, {reportAllChanges: true});
	return true;
})()`, strconv.Quote(binding), observer, strconv.Quote(export))
}
