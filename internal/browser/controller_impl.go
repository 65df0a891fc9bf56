package browser

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/config"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/vitals"
)

// Version is reported in visit metadata
const Version = "1.0.0"

// ErrChromeStartupFailure indicates Chrome failed to start (not a problem with the site)
var ErrChromeStartupFailure = errors.New("chrome failed to start")

// ControllerImpl is the concrete implementation of the browser controller
type ControllerImpl struct {
	config        *config.BrowserConfig
	vitals        *config.VitalsConfig
	allocatorOpts []chromedp.ExecAllocatorOption
	hostname      string
	logger        *slog.Logger
}

// NewControllerImpl creates a new browser controller with chromedp
func NewControllerImpl(cfg *config.BrowserConfig, vitalsCfg *config.VitalsConfig, logger *slog.Logger) (*ControllerImpl, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if logger == nil {
		logger = slog.Default()
	}

	// A fresh allocator is created per visit so every page load starts cold
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox, // Required for Docker
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		chromedp.Flag("log-level", "3"), // Suppress Chrome warnings
	}

	if cfg.DisableCache {
		opts = append(opts,
			chromedp.Flag("disable-cache", "true"),
			chromedp.Flag("disable-application-cache", "true"),
			chromedp.Flag("disk-cache-size", "0"),
		)
	}

	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}

	if cfg.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}

	return &ControllerImpl{
		config:        cfg,
		vitals:        vitalsCfg,
		allocatorOpts: opts,
		hostname:      hostname,
		logger:        logger,
	}, nil
}

// VisitPage loads a page, mounts the collector for the dwell time, hides
// the page and returns once teardown is complete. Readings reach sink as
// events while the page is open.
func (c *ControllerImpl) VisitPage(ctx context.Context, page models.PageDefinition, sink EventSink) (*models.VisitResult, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), c.allocatorOpts...)
	defer cancelAlloc()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	// Shutdown of the caller tears the tab down with it
	stopLink := context.AfterFunc(ctx, cancel)
	defer stopLink()

	result := &models.VisitResult{
		Timestamp: time.Now(),
		VisitID:   uuid.New().String(),
		Page: models.PageInfo{
			URL:      page.URL,
			Name:     page.GetName(),
			Category: page.Category,
		},
		Collector: models.CollectorInfo{
			Backend: string(vitals.BackendUnavailable),
		},
		Metadata: models.Metadata{
			Hostname:  c.hostname,
			Version:   Version,
			UserAgent: c.config.UserAgent,
		},
	}

	startTime := time.Now()

	// The first Run allocates the browser and must not carry a timeout
	if err := chromedp.Run(taskCtx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("Chrome did not start", "page", result.Page.Name, "error", err)
		return nil, ErrChromeStartupFailure
	}

	navCtx, cancelNav := context.WithTimeout(taskCtx, page.GetTimeout())
	err := chromedp.Run(navCtx,
		chromedp.Navigate(page.URL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if page.WaitReady != "" {
				return chromedp.WaitReady(page.WaitReady, chromedp.ByQuery).Do(ctx)
			}
			return nil
		}),
	)
	cancelNav()

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isChromeStartupFailure(err) {
			return nil, ErrChromeStartupFailure
		}
		return c.failed(result, startTime, "Failed to load page", err), nil
	}

	tab, err := NewPage(taskCtx, c.logger)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return c.failed(result, startTime, "Failed to attach collector", err), nil
	}
	defer tab.Close()

	var count atomic.Int64
	header := visitHeader{visitID: result.VisitID, page: result.Page, metadata: result.Metadata}
	var counted vitals.Sink
	if sink != nil {
		counted = func(r vitals.Reading) {
			count.Add(1)
			sink(header.event(r))
		}
	}

	collector := vitals.NewCollector(tab, c.loaderFor(tab), vitals.RetryPolicy{
		MaxRetries: c.vitals.MaxRetries,
		BaseDelay:  c.vitals.RetryDelay,
	})
	collector.Initialize(taskCtx, counted, vitals.Options{
		Debug:  c.vitals.Debug,
		Logger: c.logger,
	})

	if err := tab.Sleep(ctx, page.GetDwell(c.vitals.DwellTime)); err != nil && ctx.Err() != nil {
		collector.Close()
		return nil, ctx.Err()
	}

	drainCtx, cancelDrain := context.WithTimeout(taskCtx, c.vitals.DrainTimeout)
	if err := tab.Hide(drainCtx); err != nil {
		c.logger.Warn("Failed to hide page", "page", result.Page.Name, "error", err)
	} else if err := tab.Sync(drainCtx); err != nil {
		c.logger.Warn("Failed to drain readings", "page", result.Page.Name, "error", err)
	}
	cancelDrain()

	collector.Close()
	state := collector.State()

	result.Collector = collectorInfo(state)
	result.ReadingCount = int(count.Load())
	result.DurationMs = time.Since(startTime).Milliseconds()
	result.Status.Success = true
	result.Status.Message = "Page observed"
	if state.Backend == vitals.BackendUnavailable {
		result.Status.Message = "Page loaded but no observers could be installed"
	}

	return result, nil
}

// Close shuts down the browser controller.
// Each visit creates and disposes of its own browser instance.
func (c *ControllerImpl) Close() error {
	return nil
}

func (c *ControllerImpl) loaderFor(tab *Page) vitals.Loader {
	if c.vitals.DisableLibrary || c.vitals.LibraryURL == "" {
		return nil
	}
	return NewLibraryLoader(tab, c.vitals.LibraryURL)
}

func (c *ControllerImpl) failed(result *models.VisitResult, start time.Time, message string, err error) *models.VisitResult {
	result.Status.Success = false
	result.Status.Message = message
	result.Error = &models.ErrorInfo{
		ErrorType:    categorizeError(err),
		ErrorMessage: err.Error(),
	}
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

func collectorInfo(state vitals.State) models.CollectorInfo {
	info := models.CollectorInfo{
		Backend:    string(state.Backend),
		RetryCount: state.RetryCount,
	}
	for _, signal := range state.Installed {
		info.Installed = append(info.Installed, string(signal))
	}
	return info
}

// isChromeStartupFailure detects if Chrome failed to start (not a site issue)
func isChromeStartupFailure(err error) bool {
	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "chrome failed to start") ||
		strings.Contains(errStr, "failed to start chrome") ||
		strings.Contains(errStr, "failed to allocate") ||
		strings.Contains(errStr, "cannot start chrome") ||
		strings.Contains(errStr, "executable file not found")
}

// categorizeError determines the error type
func categorizeError(err error) string {
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "context deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "context canceled"):
		return "timeout"
	case strings.Contains(errStr, "err_name_not_resolved"), strings.Contains(errStr, "no such host"), strings.Contains(errStr, "dns"):
		return "dns"
	case strings.Contains(errStr, "err_connection_refused"), strings.Contains(errStr, "connection refused"):
		return "connection_refused"
	case strings.Contains(errStr, "err_cert"), strings.Contains(errStr, "err_ssl"), strings.Contains(errStr, "tls"):
		return "tls"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "timed_out"):
		return "timeout"
	default:
		return "unknown"
	}
}
