package vitals

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateModule(t *testing.T) {
	valid := newStubLibrary().module()

	tests := []struct {
		name    string
		module  func() Module
		wantErr bool
	}{
		{name: "all five exports", module: func() Module { return valid }},
		{name: "extra exports ignored", module: func() Module {
			m := newStubLibrary().module()
			m["onFID"] = RegisterFunc(func(func(Metric)) error { return nil })
			m["version"] = "4.2.0"
			return m
		}},
		{name: "plain func without error", module: func() Module {
			m := newStubLibrary().module()
			m["onTTFB"] = func(func(Metric)) {}
			return m
		}},
		{name: "nil module", module: func() Module { return nil }, wantErr: true},
		{name: "missing export", module: func() Module {
			m := newStubLibrary().module()
			delete(m, "onCLS")
			return m
		}, wantErr: true},
		{name: "export is not a function", module: func() Module {
			m := newStubLibrary().module()
			m["onFCP"] = "object"
			return m
		}, wantErr: true},
		{name: "nil function", module: func() Module {
			m := newStubLibrary().module()
			m["onLCP"] = RegisterFunc(nil)
			return m
		}, wantErr: true},
		{name: "wrong signature", module: func() Module {
			m := newStubLibrary().module()
			m["onINP"] = func(string) error { return nil }
			return m
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regs, err := ValidateModule(tt.module())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrModuleShape))
				assert.False(t, IsChunkLoadError(err), "shape errors are not load errors")
				assert.Nil(t, regs)
				return
			}
			require.NoError(t, err)
			assert.Len(t, regs, len(Signals))
		})
	}
}

func TestIsChunkLoadError(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{errors.New("ChunkLoadError: Loading chunk 4 failed."), true},
		{errors.New("Loading CHUNK 12 failed"), true},
		{errors.New("Failed to import module"), true},
		{errors.New("TypeError: Failed to fetch dynamically imported module: https://unpkg.com/web-vitals"), true},
		{errors.New("TypeError: error loading dynamically imported module"), true},
		{errors.New("TypeError: Importing a module script failed."), true},
		{fmt.Errorf("evaluate: %w", errors.New("chunkloaderror")), true},
		{errors.New("SyntaxError: Unexpected token"), false},
		{errors.New("ReferenceError: webVitals is not defined"), false},
		{nil, false},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsChunkLoadError(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "", Classify(nil))
	assert.Equal(t, "ModuleShapeInvalid", Classify(fmt.Errorf("%w: onCLS missing", ErrModuleShape)))
	assert.Equal(t, "ObserverUnsupported", Classify(ErrObserverUnsupported))
	assert.Equal(t, "MalformedEmission", Classify(fmt.Errorf("%w: NaN", ErrMalformedEmission)))
	assert.Equal(t, "ModuleLoadFailure", Classify(errors.New("Loading chunk 3 failed")))
}
