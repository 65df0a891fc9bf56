package vitals

import (
	"context"
	"fmt"
	"strings"
)

// BackendKind names the implementation source of the observers
type BackendKind string

const (
	BackendLibrary     BackendKind = "library"
	BackendFallback    BackendKind = "fallback"
	BackendUnavailable BackendKind = "unavailable"
)

// RegisterFunc installs one observer and routes its emissions to report
type RegisterFunc func(report func(Metric)) error

// Module is the set of exports of the optional measurement library
type Module map[string]interface{}

// Loader dynamically loads the optional measurement library
type Loader func(ctx context.Context) (Module, error)

// ValidateModule checks that a loaded module exposes a callable registration
// function for every signal. Extra exports are ignored.
func ValidateModule(m Module) (map[Signal]RegisterFunc, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: module is nil", ErrModuleShape)
	}

	registrations := make(map[Signal]RegisterFunc, len(Signals))
	var problems []string

	for _, signal := range Signals {
		name := signal.ExportName()
		export, ok := m[name]
		if !ok {
			problems = append(problems, name+" missing")
			continue
		}

		fn := asRegisterFunc(export)
		if fn == nil {
			problems = append(problems, fmt.Sprintf("%s is not callable (%T)", name, export))
			continue
		}
		registrations[signal] = fn
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrModuleShape, strings.Join(problems, ", "))
	}
	return registrations, nil
}

func asRegisterFunc(export interface{}) RegisterFunc {
	switch fn := export.(type) {
	case RegisterFunc:
		return fn
	case func(func(Metric)) error:
		return fn
	case func(func(Metric)):
		if fn == nil {
			return nil
		}
		return func(report func(Metric)) error {
			fn(report)
			return nil
		}
	default:
		return nil
	}
}
