package visitloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/browser"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/config"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/health"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/metrics"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
)

const (
	// Maximum consecutive Chrome failures before exiting cleanly
	maxConsecutiveChromeFailures = 5
)

// errTooManyChromeFailures ends a run that can only recover by restarting
var errTooManyChromeFailures = errors.New("chrome failed to start too many consecutive times")

// VisitLoop manages the continuous visiting cycle
type VisitLoop struct {
	config     *config.Config
	iterator   *PageIterator
	browser    browser.Controller
	dispatcher *metrics.Dispatcher
	health     *health.HealthServer
	logger     *slog.Logger

	stopChan chan struct{}
	stopOnce sync.Once

	consecutiveChromeFailures int

	// exit ends the process after repeated Chrome failures
	exit func(code int)
}

// NewVisitLoop creates a new continuous visit loop. health may be nil.
func NewVisitLoop(cfg *config.Config, browserCtrl browser.Controller, dispatcher *metrics.Dispatcher, healthServer *health.HealthServer, logger *slog.Logger) (*VisitLoop, error) {
	if len(cfg.Site.Pages) == 0 {
		return nil, errors.New("no pages to visit")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &VisitLoop{
		config:     cfg,
		iterator:   NewPageIterator(cfg.Site.Pages),
		browser:    browserCtrl,
		dispatcher: dispatcher,
		health:     healthServer,
		logger:     logger,
		stopChan:   make(chan struct{}),
		exit:       os.Exit,
	}, nil
}

// Run visits pages serially, forever, waiting InterVisitDelay between visits
func (l *VisitLoop) Run(ctx context.Context) error {
	l.logger.Info("Starting continuous visit loop",
		"pages", l.iterator.Count(),
		"inter_visit_delay", l.config.General.InterVisitDelay,
		"dwell", l.config.Vitals.DwellTime,
	)

	for {
		if err := l.visitNext(ctx); errors.Is(err, errTooManyChromeFailures) {
			// Container restart gives Chrome a fresh environment
			fmt.Fprintf(os.Stderr, "FATAL: Chrome failed to start %d consecutive times - container needs restart\n", l.consecutiveChromeFailures)
			l.exit(1)
			return err
		}
		if ctx.Err() != nil {
			l.logger.Info("Visit loop stopped by context")
			return ctx.Err()
		}

		timer := time.NewTimer(l.config.General.InterVisitDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.logger.Info("Visit loop stopped by context")
			return ctx.Err()

		case <-l.stopChan:
			timer.Stop()
			l.logger.Info("Visit loop stopped by Stop() call")
			return nil

		case <-timer.C:
		}
	}
}

// RunOnce visits every page a single time, in order, and returns how many
// visits failed
func (l *VisitLoop) RunOnce(ctx context.Context) (int, error) {
	l.iterator.Reset()

	failed := 0
	for range l.iterator.Count() {
		if ctx.Err() != nil {
			return failed, ctx.Err()
		}

		result, err := l.visit(ctx, l.iterator.Next())
		if err != nil {
			if ctx.Err() != nil {
				return failed, ctx.Err()
			}
			failed++
			continue
		}
		if !result.Status.Success {
			failed++
		}
	}
	return failed, nil
}

// visitNext runs one loop iteration
func (l *VisitLoop) visitNext(ctx context.Context) error {
	_, err := l.visit(ctx, l.iterator.Next())
	return err
}

// visit loads one page, streams its readings to the outputs and records the
// visit result
func (l *VisitLoop) visit(ctx context.Context, page models.PageDefinition) (*models.VisitResult, error) {
	l.logger.Debug("Visiting page", "page", page.GetName(), "url", page.URL)

	result, err := l.browser.VisitPage(ctx, page, l.sink)
	if err != nil {
		if errors.Is(err, browser.ErrChromeStartupFailure) {
			l.consecutiveChromeFailures++
			l.logger.Warn("Chrome failed to start",
				"consecutive_failures", l.consecutiveChromeFailures,
				"max_allowed", maxConsecutiveChromeFailures,
			)

			if l.consecutiveChromeFailures >= maxConsecutiveChromeFailures {
				l.logger.Error("Too many consecutive Chrome startup failures - exiting for restart",
					"consecutive_failures", l.consecutiveChromeFailures,
				)
				return nil, errTooManyChromeFailures
			}

			// Not a property of the site, so no visit result is recorded
			return nil, err
		}

		if ctx.Err() == nil {
			l.logger.Error("Failed to visit page",
				"page", page.GetName(),
				"error", err,
			)
		}
		return nil, err
	}

	l.consecutiveChromeFailures = 0

	l.health.RecordVisit(result)
	l.dispatcher.DispatchVisit(result)

	return result, nil
}

// sink delivers one event to the outputs
func (l *VisitLoop) sink(event *models.VitalEvent) {
	l.health.RecordReading(event)
	// The dispatcher logs each failing output
	_ = l.dispatcher.Dispatch(event)
}

// Stop gracefully stops the visit loop
func (l *VisitLoop) Stop() error {
	l.stopOnce.Do(func() { close(l.stopChan) })
	return nil
}
