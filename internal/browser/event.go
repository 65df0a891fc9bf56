package browser

import (
	"time"

	"github.com/google/uuid"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/vitals"
)

// EventSink receives each reading of a visit as an output-ready event.
// Like vitals.Sink it may be called from several goroutines and must not block.
type EventSink func(event *models.VitalEvent)

// visitHeader is the part of a visit every event carries
type visitHeader struct {
	visitID  string
	page     models.PageInfo
	metadata models.Metadata
}

func (h visitHeader) event(r vitals.Reading) *models.VitalEvent {
	return &models.VitalEvent{
		Timestamp: time.Now(),
		EventID:   uuid.New().String(),
		VisitID:   h.visitID,
		Page:      h.page,
		Vital: models.VitalInfo{
			Signal:        string(r.Signal),
			Value:         r.Value,
			Rating:        string(r.Rating),
			Delta:         r.Delta,
			ObservationID: r.ObservationID,
			Backend:       string(r.Backend),
		},
		Metadata: h.metadata,
	}
}
