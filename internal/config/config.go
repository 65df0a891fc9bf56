package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	General       GeneralConfig       `yaml:"general"`
	Site          SiteConfig          `yaml:"site"`
	Vitals        VitalsConfig        `yaml:"vitals"`
	Browser       BrowserConfig       `yaml:"browser"`
	Logging       LoggingConfig       `yaml:"logging"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	SNMP          SNMPConfig          `yaml:"snmp"`
	Prometheus    PrometheusConfig    `yaml:"prometheus"`
	Advanced      AdvancedConfig      `yaml:"advanced"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	InterVisitDelay time.Duration `yaml:"inter_visit_delay"`
	GlobalTimeout   time.Duration `yaml:"global_timeout"`
	CacheSize       int           `yaml:"cache_size"`
}

// SiteConfig describes the website whose pages are visited
type SiteConfig struct {
	// BaseURL is joined with each page path that has no absolute URL
	BaseURL string                  `yaml:"base_url"`
	Pages   []models.PageDefinition `yaml:"pages"`
}

// VitalsConfig controls the collector mounted in every visited page
type VitalsConfig struct {
	Debug bool `yaml:"debug"`

	// LibraryURL is the ES module imported as the preferred backend
	LibraryURL     string `yaml:"library_url"`
	DisableLibrary bool   `yaml:"disable_library"`

	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	// DwellTime is how long each page is observed before it is hidden
	DwellTime time.Duration `yaml:"dwell_time"`

	// DrainTimeout bounds the wait for readings still in flight after hide
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// BrowserConfig contains browser-specific settings
type BrowserConfig struct {
	Headless      bool   `yaml:"headless"`
	UserAgent     string `yaml:"user_agent"`
	WindowWidth   int    `yaml:"window_width"`
	WindowHeight  int    `yaml:"window_height"`
	DisableImages bool   `yaml:"disable_images"`
	DisableCache  bool   `yaml:"disable_cache"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ElasticsearchConfig contains Elasticsearch output settings
type ElasticsearchConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Endpoint      string        `yaml:"endpoint"`
	IndexPattern  string        `yaml:"index_pattern"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	APIKey        string        `yaml:"api_key"`
	BulkSize      int           `yaml:"bulk_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
}

// SNMPConfig contains SNMP agent and trap settings
type SNMPConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Port          int    `yaml:"port"`
	Community     string `yaml:"community"`
	ListenAddress string `yaml:"listen_address"`
	EnterpriseOID string `yaml:"enterprise_oid"`

	// TrapTargets are host:port receivers notified of every poor reading
	TrapTargets []string `yaml:"trap_targets"`
}

// PrometheusConfig contains Prometheus exporter settings
type PrometheusConfig struct {
	Enabled          bool      `yaml:"enabled"`
	Port             int       `yaml:"port"`
	Path             string    `yaml:"path"`
	ListenAddress    string    `yaml:"listen_address"`
	IncludeGoMetrics bool      `yaml:"include_go_metrics"`
	LatencyBuckets   []float64 `yaml:"latency_buckets"`
	ScoreBuckets     []float64 `yaml:"score_buckets"`
}

// AdvancedConfig contains advanced/debugging settings
type AdvancedConfig struct {
	HealthCheckEnabled       bool          `yaml:"health_check_enabled"`
	HealthCheckPort          int           `yaml:"health_check_port"`
	HealthCheckPath          string        `yaml:"health_check_path"`
	HealthCheckListenAddress string        `yaml:"health_check_listen_address"`
	ShutdownTimeout          time.Duration `yaml:"shutdown_timeout"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	if configFile != "" {
		if err := loadFromYAML(configFile, cfg); err != nil {
			return nil, err
		}
	}

	// Override with environment variables
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	// Load default pages if none configured
	if len(cfg.Site.Pages) == 0 {
		cfg.Site.Pages = DefaultPages()
	}

	if err := ResolvePages(cfg.Site.BaseURL, cfg.Site.Pages); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			InterVisitDelay: 5 * time.Second,
			GlobalTimeout:   60 * time.Second,
			CacheSize:       200,
		},
		Site: SiteConfig{
			BaseURL: "http://localhost:3000",
		},
		Vitals: VitalsConfig{
			LibraryURL:   "https://unpkg.com/web-vitals@4/dist/web-vitals.js",
			MaxRetries:   3,
			RetryDelay:   1 * time.Second,
			DwellTime:    10 * time.Second,
			DrainTimeout: 5 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:     true,
			UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			WindowWidth:  1920,
			WindowHeight: 1080,
			DisableCache: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:       false,
			IndexPattern:  "site-vitals-%{+yyyy.MM.dd}",
			BulkSize:      50,
			FlushInterval: 10 * time.Second,
			MaxRetries:    3,
			RetryBackoff:  1 * time.Second,
		},
		SNMP: SNMPConfig{
			Enabled:       false,
			Port:          161,
			Community:     "public",
			ListenAddress: "0.0.0.0",
			EnterpriseOID: ".1.3.6.1.4.1.99999",
		},
		Prometheus: PrometheusConfig{
			Enabled:          true,
			Port:             9090,
			Path:             "/metrics",
			ListenAddress:    "0.0.0.0",
			IncludeGoMetrics: true,
			LatencyBuckets:   []float64{100, 200, 500, 800, 1000, 1800, 2500, 3000, 4000, 6000, 10000},
			ScoreBuckets:     []float64{0.01, 0.05, 0.1, 0.15, 0.25, 0.5, 1},
		},
		Advanced: AdvancedConfig{
			HealthCheckEnabled:       true,
			HealthCheckPort:          8080,
			HealthCheckPath:          "/health",
			HealthCheckListenAddress: "0.0.0.0",
			ShutdownTimeout:          30 * time.Second,
		},
	}
}
