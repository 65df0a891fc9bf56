package outputs

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/config"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
)

func TestLogger_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&config.LoggingConfig{Level: "info", Format: config.LogFormatJSON}, &buf)

	require.NoError(t, l.Write(vitalEvent("home", "LCP", 2100, "good")))
	l.RecordVisit(&models.VisitResult{VisitID: "visit-1", Page: models.PageInfo{Name: "home"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var event models.VitalEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &event))
	assert.Equal(t, "LCP", event.Vital.Signal)
	assert.Equal(t, 2100.0, event.Vital.Value)

	var visit models.VisitResult
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &visit))
	assert.Equal(t, "visit-1", visit.VisitID)
}

func TestLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&config.LoggingConfig{Level: "info", Format: config.LogFormatText}, &buf)

	require.NoError(t, l.Write(vitalEvent("pricing", "CLS", 0.3, "poor")))
	l.RecordVisit(&models.VisitResult{
		Page:  models.PageInfo{Name: "pricing"},
		Error: &models.ErrorInfo{ErrorType: "timeout"},
	})

	out := buf.String()
	assert.Contains(t, out, "msg=vital")
	assert.Contains(t, out, "signal=CLS")
	assert.Contains(t, out, "rating=poor")
	assert.Contains(t, out, "msg=visit")
	assert.Contains(t, out, "error_type=timeout")
	assert.Equal(t, "logger", l.Name())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("verbose"))
}
