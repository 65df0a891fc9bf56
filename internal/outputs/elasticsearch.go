package outputs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/config"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
)

// ErrOutputClosed is returned when writing to an output that is shutting down
var ErrOutputClosed = errors.New("output is shutting down")

// ElasticsearchOutput pushes vital events to Elasticsearch
type ElasticsearchOutput struct {
	config       *config.ElasticsearchConfig
	client       *elasticsearch.Client
	bulkIndexer  esutil.BulkIndexer
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	eventChannel chan *models.VitalEvent
}

// NewElasticsearchOutput creates a new Elasticsearch output
func NewElasticsearchOutput(cfg *config.ElasticsearchConfig) (*ElasticsearchOutput, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	esCfg := elasticsearch.Config{
		Addresses:     []string{cfg.Endpoint},
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * cfg.RetryBackoff
		},
	}

	// Configure authentication
	if cfg.APIKey != "" {
		esCfg.APIKey = cfg.APIKey
	} else if cfg.Username != "" && cfg.Password != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	// Test connection
	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("Elasticsearch returned error: %s", res.Status())
	}

	log.Printf("Connected to Elasticsearch at %s", cfg.Endpoint)

	bulkIndexer, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        client,
		NumWorkers:    2,
		FlushBytes:    cfg.BulkSize * 1024,
		FlushInterval: cfg.FlushInterval,
		OnError: func(ctx context.Context, err error) {
			log.Printf("Elasticsearch bulk indexer error: %v", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &ElasticsearchOutput{
		config:       cfg,
		client:       client,
		bulkIndexer:  bulkIndexer,
		ctx:          ctx,
		cancel:       cancel,
		eventChannel: make(chan *models.VitalEvent, 100),
	}

	// Start background worker to process events
	e.wg.Add(1)
	go e.processEvents()

	return e, nil
}

// processEvents is a background worker that feeds the bulk indexer
func (e *ElasticsearchOutput) processEvents() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case event := <-e.eventChannel:
			if err := e.indexEvent(event); err != nil {
				log.Printf("Failed to index event to Elasticsearch: %v", err)
			}
		}
	}
}

// indexEvent adds a single vital event to the bulk indexer
func (e *ElasticsearchOutput) indexEvent(event *models.VitalEvent) error {
	indexName := formatIndexName(e.config.IndexPattern, event.Timestamp)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return e.bulkIndexer.Add(
		e.ctx,
		esutil.BulkIndexerItem{
			Action:     "index",
			Index:      indexName,
			DocumentID: event.EventID,
			Body:       bytes.NewReader(data),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				if err != nil {
					log.Printf("Elasticsearch indexing error: %v", err)
				} else {
					log.Printf("Elasticsearch indexing failed: %s: %s", res.Error.Type, res.Error.Reason)
				}
			},
		},
	)
}

// formatIndexName expands the date placeholders of an index pattern
func formatIndexName(pattern string, t time.Time) string {
	t = t.UTC()
	replacer := strings.NewReplacer(
		"%{+yyyy.MM.dd}", t.Format("2006.01.02"),
		"%{+yyyy.MM}", t.Format("2006.01"),
		"%{+yyyy}", t.Format("2006"),
	)
	return replacer.Replace(pattern)
}

// Write queues a vital event for indexing
func (e *ElasticsearchOutput) Write(event *models.VitalEvent) error {
	if e == nil {
		return nil
	}

	select {
	case <-e.ctx.Done():
		return ErrOutputClosed
	default:
	}

	select {
	case e.eventChannel <- event:
		return nil
	default:
		// Channel is full, log and drop
		log.Printf("Warning: Elasticsearch event channel is full, dropping event")
		return nil
	}
}

// Name returns the output module name
func (e *ElasticsearchOutput) Name() string {
	return "elasticsearch"
}

// Close flushes pending documents and closes the connection
func (e *ElasticsearchOutput) Close() error {
	if e == nil {
		return nil
	}

	log.Println("Shutting down Elasticsearch output...")

	// Stop accepting new events
	e.cancel()
	e.wg.Wait()

	// Index whatever was still queued
	for {
		select {
		case event := <-e.eventChannel:
			if err := e.indexPending(event); err != nil {
				log.Printf("Failed to index event to Elasticsearch: %v", err)
			}
			continue
		default:
		}
		break
	}

	// Close the bulk indexer (flushes pending documents)
	if err := e.bulkIndexer.Close(context.Background()); err != nil {
		log.Printf("Error closing Elasticsearch bulk indexer: %v", err)
		return err
	}

	stats := e.bulkIndexer.Stats()
	log.Printf("Elasticsearch indexer stats: %d indexed, %d failed", stats.NumIndexed, stats.NumFailed)

	return nil
}

// indexPending adds a queued event after the worker context is done
func (e *ElasticsearchOutput) indexPending(event *models.VitalEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return e.bulkIndexer.Add(context.Background(), esutil.BulkIndexerItem{
		Action:     "index",
		Index:      formatIndexName(e.config.IndexPattern, event.Timestamp),
		DocumentID: event.EventID,
		Body:       bytes.NewReader(data),
	})
}
