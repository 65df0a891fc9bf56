package outputs

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/config"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
)

func newTestPrometheus(t *testing.T) *PrometheusOutput {
	t.Helper()
	p, err := NewPrometheusOutput(&config.PrometheusConfig{
		Enabled:       true,
		Port:          0,
		Path:          "/metrics",
		ListenAddress: "127.0.0.1",
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPrometheusOutput_Write(t *testing.T) {
	p := newTestPrometheus(t)

	require.NoError(t, p.Write(vitalEvent("home", "LCP", 2000, "good")))
	require.NoError(t, p.Write(vitalEvent("home", "LCP", 4500, "poor")))
	require.NoError(t, p.Write(vitalEvent("home", "CLS", 0.02, "good")))

	assert.Equal(t, 1.0, testutil.ToFloat64(p.readingsTotal.WithLabelValues("home", "LCP", "good")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.readingsTotal.WithLabelValues("home", "LCP", "poor")))
	assert.Equal(t, 4500.0, testutil.ToFloat64(p.vitalValue.WithLabelValues("home", "LCP")))
	assert.Equal(t, 0.02, testutil.ToFloat64(p.vitalValue.WithLabelValues("home", "CLS")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(p.lastReadingSeconds.WithLabelValues("home", "LCP")))

	// CLS goes to the score histogram, timings to the millisecond one
	assert.Equal(t, 1, testutil.CollectAndCount(p.layoutShiftHistogram))
	assert.Equal(t, 1, testutil.CollectAndCount(p.timingHistogram))
}

func TestPrometheusOutput_RecordVisit(t *testing.T) {
	p := newTestPrometheus(t)

	p.RecordVisit(&models.VisitResult{
		Page:       models.PageInfo{Name: "pricing"},
		Status:     models.StatusInfo{Success: true},
		Collector:  models.CollectorInfo{Backend: "library", RetryCount: 2},
		DurationMs: 10500,
	})
	p.RecordVisit(&models.VisitResult{
		Page:   models.PageInfo{Name: "pricing"},
		Status: models.StatusInfo{Success: false},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(p.visitsTotal.WithLabelValues("pricing", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.visitsTotal.WithLabelValues("pricing", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.backendTotal.WithLabelValues("pricing", "library")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.libraryRetries.WithLabelValues("pricing")))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.visitDurationMs.WithLabelValues("pricing")))
}

func TestPrometheusOutput_Scrape(t *testing.T) {
	p := newTestPrometheus(t)
	require.NoError(t, p.Write(vitalEvent("about", "TTFB", 120, "good")))

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + p.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `site_vitals_readings_total{page="about",rating="good",signal="TTFB"} 1`)
}

func TestPrometheusOutput_Disabled(t *testing.T) {
	p, err := NewPrometheusOutput(&config.PrometheusConfig{Enabled: false})
	assert.NoError(t, err)
	assert.Nil(t, p)

	// A nil exporter is safe to use
	assert.NoError(t, p.Write(vitalEvent("home", "LCP", 1, "good")))
	p.RecordVisit(&models.VisitResult{})
	assert.NoError(t, p.Close())
}
