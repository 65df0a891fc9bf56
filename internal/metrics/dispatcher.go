package metrics

import (
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
)

// Dispatcher distributes vital events to all output modules
type Dispatcher struct {
	outputs []Output
	mu      sync.RWMutex
	logger  *slog.Logger
}

// Output is an interface for event output modules
type Output interface {
	// Write sends one vital event to the output
	Write(event *models.VitalEvent) error

	// Name returns the output module name
	Name() string
}

// VisitOutput is implemented by outputs that also track whole visits
type VisitOutput interface {
	RecordVisit(result *models.VisitResult)
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		outputs: make([]Output, 0),
		logger:  logger,
	}
}

// RegisterOutput adds an output module to the dispatcher
func (d *Dispatcher) RegisterOutput(output Output) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outputs = append(d.outputs, output)
}

// Names lists the registered outputs in registration order
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.outputs))
	for _, o := range d.outputs {
		names = append(names, o.Name())
	}
	return names
}

// Dispatch sends an event to all registered outputs in parallel.
// A failing output never stops the others; every failure is logged and
// the first one is returned.
func (d *Dispatcher) Dispatch(event *models.VitalEvent) error {
	var g errgroup.Group
	for _, output := range d.snapshot() {
		g.Go(func() error {
			if err := output.Write(event); err != nil {
				d.logger.Warn("Output failed to write event",
					"output", output.Name(),
					"page", event.Page.Name,
					"signal", event.Vital.Signal,
					"error", err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// DispatchVisit hands a finished visit to every output that tracks visits
func (d *Dispatcher) DispatchVisit(result *models.VisitResult) {
	for _, output := range d.snapshot() {
		if v, ok := output.(VisitOutput); ok {
			v.RecordVisit(result)
		}
	}
}

func (d *Dispatcher) snapshot() []Output {
	d.mu.RLock()
	defer d.mu.RUnlock()
	outputs := make([]Output, len(d.outputs))
	copy(outputs, d.outputs)
	return outputs
}
