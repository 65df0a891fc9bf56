package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
)

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) error {
	// General settings
	if v := os.Getenv("INTER_VISIT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid INTER_VISIT_DELAY: %w", err)
		}
		cfg.General.InterVisitDelay = d
	}

	if v := os.Getenv("GLOBAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid GLOBAL_TIMEOUT: %w", err)
		}
		cfg.General.GlobalTimeout = d
	}

	if v := os.Getenv("CACHE_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil && size > 0 {
			cfg.General.CacheSize = size
		}
	}

	// Site
	if v := os.Getenv("SITE_BASE_URL"); v != "" {
		cfg.Site.BaseURL = v
	}

	if v := os.Getenv("PAGES"); v != "" {
		pages, err := ParseSimplePageList(v)
		if err != nil {
			return fmt.Errorf("invalid PAGES: %w", err)
		}
		cfg.Site.Pages = pages
	}

	// Vitals
	if v := os.Getenv("VITALS_DEBUG"); v != "" {
		cfg.Vitals.Debug = parseBool(v)
	}

	if v := os.Getenv("VITALS_LIBRARY_URL"); v != "" {
		cfg.Vitals.LibraryURL = v
	}

	if v := os.Getenv("VITALS_DISABLE_LIBRARY"); v != "" {
		cfg.Vitals.DisableLibrary = parseBool(v)
	}

	if v := os.Getenv("VITALS_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid VITALS_MAX_RETRIES: %w", err)
		}
		cfg.Vitals.MaxRetries = n
	}

	if v := os.Getenv("VITALS_RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid VITALS_RETRY_DELAY: %w", err)
		}
		cfg.Vitals.RetryDelay = d
	}

	if v := os.Getenv("VITALS_DWELL_TIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid VITALS_DWELL_TIME: %w", err)
		}
		cfg.Vitals.DwellTime = d
	}

	// Browser settings
	if v := os.Getenv("BROWSER_HEADLESS"); v != "" {
		cfg.Browser.Headless = parseBool(v)
	}

	if v := os.Getenv("BROWSER_USER_AGENT"); v != "" {
		cfg.Browser.UserAgent = v
	}

	// Logging
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Elasticsearch
	if v := os.Getenv("ES_ENABLED"); v != "" {
		cfg.Elasticsearch.Enabled = parseBool(v)
	}

	if v := os.Getenv("ES_ENDPOINT"); v != "" {
		cfg.Elasticsearch.Endpoint = v
	}

	if v := os.Getenv("ES_INDEX_PATTERN"); v != "" {
		cfg.Elasticsearch.IndexPattern = v
	}

	if v := os.Getenv("ES_USERNAME"); v != "" {
		cfg.Elasticsearch.Username = v
	}

	if v := os.Getenv("ES_PASSWORD"); v != "" {
		cfg.Elasticsearch.Password = v
	}

	if v := os.Getenv("ES_API_KEY"); v != "" {
		cfg.Elasticsearch.APIKey = v
	}

	if v := os.Getenv("ES_BULK_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil && size > 0 {
			cfg.Elasticsearch.BulkSize = size
		}
	}

	if v := os.Getenv("ES_FLUSH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid ES_FLUSH_INTERVAL: %w", err)
		}
		cfg.Elasticsearch.FlushInterval = d
	}

	// SNMP
	if v := os.Getenv("SNMP_ENABLED"); v != "" {
		cfg.SNMP.Enabled = parseBool(v)
	}

	if v := os.Getenv("SNMP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.SNMP.Port = port
		}
	}

	if v := os.Getenv("SNMP_COMMUNITY"); v != "" {
		cfg.SNMP.Community = v
	}

	if v := os.Getenv("SNMP_LISTEN_ADDRESS"); v != "" {
		cfg.SNMP.ListenAddress = v
	}

	if v := os.Getenv("SNMP_TRAP_TARGETS"); v != "" {
		cfg.SNMP.TrapTargets = splitList(v)
	}

	// Prometheus
	if v := os.Getenv("PROM_ENABLED"); v != "" {
		cfg.Prometheus.Enabled = parseBool(v)
	}

	if v := os.Getenv("PROM_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Prometheus.Port = port
		}
	}

	if v := os.Getenv("PROM_PATH"); v != "" {
		cfg.Prometheus.Path = v
	}

	if v := os.Getenv("PROM_LISTEN_ADDRESS"); v != "" {
		cfg.Prometheus.ListenAddress = v
	}

	// Advanced
	if v := os.Getenv("HEALTH_CHECK_ENABLED"); v != "" {
		cfg.Advanced.HealthCheckEnabled = parseBool(v)
	}

	if v := os.Getenv("HEALTH_CHECK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Advanced.HealthCheckPort = port
		}
	}

	if v := os.Getenv("HEALTH_CHECK_LISTEN_ADDRESS"); v != "" {
		cfg.Advanced.HealthCheckListenAddress = v
	}

	return nil
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseSimplePageList parses a comma-separated list of paths or URLs
func ParseSimplePageList(pagesStr string) ([]models.PageDefinition, error) {
	if pagesStr == "" {
		return nil, nil
	}

	parts := splitList(pagesStr)
	pages := make([]models.PageDefinition, 0, len(parts))

	for _, part := range parts {
		page := models.PageDefinition{TimeoutSeconds: 30}

		if strings.HasPrefix(part, "http://") || strings.HasPrefix(part, "https://") {
			if _, err := url.ParseRequestURI(part); err != nil {
				return nil, fmt.Errorf("page %q: %w", part, err)
			}
			page.URL = part
		} else {
			if !strings.HasPrefix(part, "/") {
				part = "/" + part
			}
			page.Path = part
		}

		page.Name = page.GetName()
		pages = append(pages, page)
	}

	return pages, nil
}

// ResolvePages fills in the absolute URL of every page that only has a path
func ResolvePages(baseURL string, pages []models.PageDefinition) error {
	var base *url.URL
	for i := range pages {
		if pages[i].URL != "" {
			continue
		}
		if base == nil {
			parsed, err := url.Parse(baseURL)
			if err != nil || parsed.Scheme == "" || parsed.Host == "" {
				return fmt.Errorf("invalid site base URL %q", baseURL)
			}
			base = parsed
		}
		ref, err := url.Parse(pages[i].Path)
		if err != nil {
			return fmt.Errorf("page %q: invalid path: %w", pages[i].GetName(), err)
		}
		pages[i].URL = base.ResolveReference(ref).String()
	}
	return nil
}
