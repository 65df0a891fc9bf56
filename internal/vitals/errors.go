package vitals

import (
	"errors"
	"strings"
)

var (
	// ErrModuleLoad indicates the optional library could not be loaded
	ErrModuleLoad = errors.New("module load failure")

	// ErrModuleShape indicates the library loaded but does not expose
	// a callable registration function for every signal
	ErrModuleShape = errors.New("module shape invalid")

	// ErrObserverUnsupported indicates the browser lacks the observation
	// primitive a signal needs
	ErrObserverUnsupported = errors.New("observer unsupported")

	// ErrMalformedEmission indicates a backend reported an object without
	// a name or a finite, non-negative numeric value
	ErrMalformedEmission = errors.New("malformed emission")
)

// chunkLoadPatterns are lower-cased fragments of loader failures that are
// worth retrying. The first three come from bundler chunk loading; the rest
// are what Chrome, Firefox and Safari report for a failed dynamic import().
var chunkLoadPatterns = []string{
	"loading chunk",
	"chunkloaderror",
	"failed to import",
	"failed to fetch dynamically imported module",
	"error loading dynamically imported module",
	"importing a module script failed",
}

// IsChunkLoadError reports whether err looks like a transient module-loading
// failure (case-insensitive substring match)
func IsChunkLoadError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, pattern := range chunkLoadPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// Classify returns the taxonomy tag logged alongside a collector failure
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrModuleShape):
		return "ModuleShapeInvalid"
	case errors.Is(err, ErrObserverUnsupported):
		return "ObserverUnsupported"
	case errors.Is(err, ErrMalformedEmission):
		return "MalformedEmission"
	default:
		return "ModuleLoadFailure"
	}
}
