package outputs

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/config"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
)

// Logger outputs vital events and visit results to stdout, as JSON lines
// or as slog text
type Logger struct {
	logger *slog.Logger
	config *config.LoggingConfig
	out    io.Writer
	mu     sync.Mutex
}

// NewLogger creates a new stdout logger
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	return newLogger(cfg, os.Stdout), nil
}

func newLogger(cfg *config.LoggingConfig, out io.Writer) *Logger {
	// The slog logger is only used for text format; JSON format writes
	// raw documents so every line is a complete event
	var logger *slog.Logger
	if cfg.Format != config.LogFormatJSON {
		logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
			Level: ParseLogLevel(cfg.Level),
		}))
	}

	return &Logger{
		logger: logger,
		config: cfg,
		out:    out,
	}
}

// Write outputs a vital event
func (l *Logger) Write(event *models.VitalEvent) error {
	if l.config.Format == config.LogFormatJSON {
		return l.writeJSON(event)
	}

	l.logger.Info("vital",
		"page", event.Page.Name,
		"signal", event.Vital.Signal,
		"value", event.Vital.Value,
		"rating", event.Vital.Rating,
		"delta", event.Vital.Delta,
		"backend", event.Vital.Backend,
	)
	return nil
}

// RecordVisit outputs the summary of a finished visit
func (l *Logger) RecordVisit(result *models.VisitResult) {
	if l.config.Format == config.LogFormatJSON {
		if err := l.writeJSON(result); err != nil {
			slog.Warn("Failed to write visit result", "error", err)
		}
		return
	}

	args := []any{
		"page", result.Page.Name,
		"success", result.Status.Success,
		"backend", result.Collector.Backend,
		"retries", result.Collector.RetryCount,
		"readings", result.ReadingCount,
		"duration_ms", result.DurationMs,
	}
	if result.Error != nil {
		args = append(args, "error_type", result.Error.ErrorType)
	}
	l.logger.Info("visit", args...)
}

func (l *Logger) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.out.Write(data)
	return err
}

// Name returns the output module name
func (l *Logger) Name() string {
	return "logger"
}

// ParseLogLevel converts string to slog.Level
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
