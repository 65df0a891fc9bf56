package metrics

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
)

type fakeOutput struct {
	name   string
	err    error
	mu     sync.Mutex
	events []*models.VitalEvent
	visits int
}

func (f *fakeOutput) Write(event *models.VitalEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *fakeOutput) Name() string { return f.name }

type visitTracker struct {
	fakeOutput
}

func (v *visitTracker) RecordVisit(*models.VisitResult) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visits++
}

func TestDispatcher_FansOutToEveryOutput(t *testing.T) {
	d := NewDispatcher(nil)
	a := &fakeOutput{name: "a"}
	b := &fakeOutput{name: "b"}
	d.RegisterOutput(a)
	d.RegisterOutput(b)

	event := &models.VitalEvent{Vital: models.VitalInfo{Signal: "LCP", Value: 1200}}
	assert.NoError(t, d.Dispatch(event))

	assert.Len(t, a.events, 1)
	assert.Same(t, event, b.events[0])
	assert.Equal(t, []string{"a", "b"}, d.Names())
}

func TestDispatcher_FailingOutputDoesNotBlockOthers(t *testing.T) {
	d := NewDispatcher(nil)
	failure := errors.New("cluster unavailable")
	broken := &fakeOutput{name: "elasticsearch", err: failure}
	healthy := &fakeOutput{name: "prometheus"}
	d.RegisterOutput(broken)
	d.RegisterOutput(healthy)

	err := d.Dispatch(&models.VitalEvent{})
	assert.ErrorIs(t, err, failure)
	assert.Len(t, healthy.events, 1)
}

func TestDispatcher_NoOutputs(t *testing.T) {
	assert.NoError(t, NewDispatcher(nil).Dispatch(&models.VitalEvent{}))
}

func TestDispatcher_DispatchVisitOnlyReachesVisitOutputs(t *testing.T) {
	d := NewDispatcher(nil)
	tracker := &visitTracker{fakeOutput: fakeOutput{name: "tracker"}}
	plain := &fakeOutput{name: "plain"}
	d.RegisterOutput(tracker)
	d.RegisterOutput(plain)

	d.DispatchVisit(&models.VisitResult{})
	d.DispatchVisit(&models.VisitResult{})

	assert.Equal(t, 2, tracker.visits)
	assert.Empty(t, plain.events)
}

func TestEventCache_KeepsMostRecent(t *testing.T) {
	cache := NewEventCache(3)
	for i := 1; i <= 5; i++ {
		cache.Add(&models.VitalEvent{Vital: models.VitalInfo{Value: float64(i)}})
	}

	assert.Equal(t, 3, cache.Count())
	last := cache.GetLast(10)
	if assert.Len(t, last, 3) {
		assert.Equal(t, 3.0, last[0].Vital.Value)
		assert.Equal(t, 5.0, last[2].Vital.Value)
	}

	assert.Len(t, cache.GetLast(2), 2)
	assert.Empty(t, cache.GetLast(-1))

	cache.Clear()
	assert.Equal(t, 0, cache.Count())
	assert.Equal(t, 3, cache.MaxSize())
}
