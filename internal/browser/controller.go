package browser

import (
	"context"
	"log/slog"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/config"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
)

// Controller is the interface for browser automation
type Controller interface {
	VisitPage(ctx context.Context, page models.PageDefinition, sink EventSink) (*models.VisitResult, error)
	Close() error
}

// NewController creates a new browser controller
func NewController(browserCfg *config.BrowserConfig, vitalsCfg *config.VitalsConfig, logger *slog.Logger) (Controller, error) {
	return NewControllerImpl(browserCfg, vitalsCfg, logger)
}
