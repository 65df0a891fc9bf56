package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/vitals"
)

// HealthServer provides a health check endpoint
type HealthServer struct {
	config   *Config
	server   *http.Server
	listener net.Listener

	mu            sync.RWMutex
	lastVisitTime time.Time
	lastPage      string
	lastBackend   string
	visitCount    int64
	successCount  int64
	failureCount  int64
	readingCount  int64
	poorCount     int64
	isHealthy     bool
}

// Config contains health check server configuration
type Config struct {
	Enabled       bool
	Port          int
	Path          string
	ListenAddress string

	// StaleAfter marks the monitor unhealthy when no visit finished for
	// this long. Defaults to five minutes.
	StaleAfter time.Duration
}

// Stats is a snapshot of the visit and reading counters
type Stats struct {
	LastVisitTime time.Time `json:"last_visit_time,omitempty"`
	LastPage      string    `json:"last_page,omitempty"`
	LastBackend   string    `json:"last_backend,omitempty"`
	VisitCount    int64     `json:"visit_count"`
	SuccessCount  int64     `json:"success_count"`
	FailureCount  int64     `json:"failure_count"`
	ReadingCount  int64     `json:"reading_count"`
	PoorCount     int64     `json:"poor_count"`
}

// HealthResponse is the JSON response structure
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Stats
	Uptime string `json:"uptime"`
}

var startTime = time.Now()

// NewHealthServer creates a new health check server
func NewHealthServer(cfg *Config) (*HealthServer, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	h := newHealthServer(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, h.handleHealth)

	addr := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	h.listener = listener
	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Health check endpoint started on %s%s", listener.Addr(), cfg.Path)
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Health check server error: %v", err)
		}
	}()

	return h, nil
}

func newHealthServer(cfg *Config) *HealthServer {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	return &HealthServer{
		config:    cfg,
		isHealthy: true,
	}
}

// Addr returns the address the server listens on
func (h *HealthServer) Addr() string {
	return h.listener.Addr().String()
}

// handleHealth handles health check requests
func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.GetStats()

	h.mu.RLock()
	healthy := h.isHealthy
	h.mu.RUnlock()

	status := "healthy"
	statusCode := http.StatusOK

	// Visits stopped finishing
	if stats.VisitCount > 0 && time.Since(stats.LastVisitTime) > h.config.StaleAfter {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Stats:     stats,
		Uptime:    time.Since(startTime).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding health response: %v", err)
	}
}

// RecordVisit records a finished page visit
func (h *HealthServer) RecordVisit(result *models.VisitResult) {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastVisitTime = time.Now()
	h.lastPage = result.Page.Name
	h.visitCount++

	if result.Status.Success {
		h.successCount++
		h.lastBackend = result.Collector.Backend
	} else {
		h.failureCount++
	}
}

// RecordReading counts a delivered reading
func (h *HealthServer) RecordReading(event *models.VitalEvent) {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.readingCount++
	if event.Vital.Rating == string(vitals.RatingPoor) {
		h.poorCount++
	}
}

// SetHealthy sets the health status
func (h *HealthServer) SetHealthy(healthy bool) {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.isHealthy = healthy
}

// GetStats returns current visit and reading statistics
func (h *HealthServer) GetStats() Stats {
	if h == nil {
		return Stats{}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	return Stats{
		LastVisitTime: h.lastVisitTime,
		LastPage:      h.lastPage,
		LastBackend:   h.lastBackend,
		VisitCount:    h.visitCount,
		SuccessCount:  h.successCount,
		FailureCount:  h.failureCount,
		ReadingCount:  h.readingCount,
		PoorCount:     h.poorCount,
	}
}

// Close shuts down the health check server
func (h *HealthServer) Close() error {
	if h == nil || h.server == nil {
		return nil
	}

	log.Println("Shutting down health check server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return h.server.Shutdown(ctx)
}
