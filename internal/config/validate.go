package config

import (
	"fmt"
	"net"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Validate checks the loaded configuration
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.General, validation.By(func(value interface{}) error {
			gc := value.(GeneralConfig)
			return validation.ValidateStruct(&gc,
				validation.Field(&gc.InterVisitDelay, validation.Min(0)),
				validation.Field(&gc.GlobalTimeout, validation.Required),
				validation.Field(&gc.CacheSize, validation.Required, validation.Min(1)),
			)
		})),
		validation.Field(&c.Site, validation.By(func(value interface{}) error {
			sc := value.(SiteConfig)
			return validation.ValidateStruct(&sc,
				validation.Field(&sc.Pages,
					validation.Required,
					validation.Each(validation.By(validatePage)),
				),
			)
		})),
		validation.Field(&c.Vitals, validation.By(func(value interface{}) error {
			vc := value.(VitalsConfig)
			return validation.ValidateStruct(&vc,
				validation.Field(&vc.LibraryURL,
					validation.When(!vc.DisableLibrary, validation.Required, is.URL),
				),
				validation.Field(&vc.MaxRetries, validation.Min(0), validation.Max(10)),
				validation.Field(&vc.RetryDelay, validation.Min(0)),
				validation.Field(&vc.DwellTime, validation.Required),
				validation.Field(&vc.DrainTimeout, validation.Required),
			)
		})),
		validation.Field(&c.Browser, validation.By(func(value interface{}) error {
			bc := value.(BrowserConfig)
			return validation.ValidateStruct(&bc,
				validation.Field(&bc.WindowWidth, validation.Required, validation.Min(1)),
				validation.Field(&bc.WindowHeight, validation.Required, validation.Min(1)),
			)
		})),
		validation.Field(&c.Logging, validation.By(func(value interface{}) error {
			lc := value.(LoggingConfig)
			return validation.ValidateStruct(&lc,
				validation.Field(&lc.Level,
					validation.Required,
					validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
				),
				validation.Field(&lc.Format,
					validation.Required,
					validation.In(LogFormatJSON, LogFormatText),
				),
			)
		})),
		validation.Field(&c.Elasticsearch, validation.By(func(value interface{}) error {
			ec := value.(ElasticsearchConfig)
			return validation.ValidateStruct(&ec,
				validation.Field(&ec.Endpoint, validation.When(ec.Enabled, validation.Required, is.URL)),
				validation.Field(&ec.IndexPattern, validation.When(ec.Enabled, validation.Required)),
				validation.Field(&ec.BulkSize, validation.Min(0)),
			)
		})),
		validation.Field(&c.SNMP, validation.By(func(value interface{}) error {
			sc := value.(SNMPConfig)
			return validation.ValidateStruct(&sc,
				validation.Field(&sc.Port, validation.When(sc.Enabled, validation.Required, validation.Min(1), validation.Max(65535))),
				validation.Field(&sc.Community, validation.When(sc.Enabled, validation.Required)),
				validation.Field(&sc.TrapTargets, validation.Each(validation.By(validateHostPort))),
			)
		})),
		validation.Field(&c.Prometheus, validation.By(func(value interface{}) error {
			pc := value.(PrometheusConfig)
			return validation.ValidateStruct(&pc,
				validation.Field(&pc.Port, validation.When(pc.Enabled, validation.Required, validation.Min(1), validation.Max(65535))),
				validation.Field(&pc.Path, validation.When(pc.Enabled, validation.Required)),
			)
		})),
		validation.Field(&c.Advanced, validation.By(func(value interface{}) error {
			ac := value.(AdvancedConfig)
			return validation.ValidateStruct(&ac,
				validation.Field(&ac.HealthCheckPort, validation.When(ac.HealthCheckEnabled, validation.Required, validation.Min(1), validation.Max(65535))),
				validation.Field(&ac.HealthCheckPath, validation.When(ac.HealthCheckEnabled, validation.Required)),
			)
		})),
	)
}

func validatePage(value interface{}) error {
	page, ok := value.(models.PageDefinition)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a PageDefinition")
	}

	parsed, err := url.Parse(page.URL)
	if err != nil || page.URL == "" {
		return validation.NewError("validation_invalid_url", fmt.Sprintf("page %q must have a valid URL", page.GetName()))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", fmt.Sprintf("page %q must use http or https", page.GetName()))
	}
	if parsed.Host == "" {
		return validation.NewError("validation_missing_host", fmt.Sprintf("page %q URL must have a host", page.GetName()))
	}
	if page.TimeoutSeconds < 0 || page.DwellSeconds < 0 {
		return validation.NewError("validation_negative_duration", fmt.Sprintf("page %q durations cannot be negative", page.GetName()))
	}
	return nil
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}
	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}
	if err := is.Host.Validate(host); err != nil {
		return validation.NewError("validation_invalid_host", "invalid host")
	}
	return nil
}
