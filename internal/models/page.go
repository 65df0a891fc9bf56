package models

import (
	"strings"
	"time"
)

// PageDefinition represents one page of the site to visit
type PageDefinition struct {
	// URL is the absolute URL of the page. It is resolved from Path and the
	// site base URL when left empty.
	URL string `yaml:"url" json:"url"`

	// Path is the site-relative path (e.g., "/pricing")
	Path string `yaml:"path" json:"path,omitempty"`

	// Name is a short, human-readable identifier (e.g., "pricing")
	Name string `yaml:"name" json:"name"`

	// Category groups pages by purpose (e.g., "marketing", "catalog", "legal")
	Category string `yaml:"category" json:"category,omitempty"`

	// TimeoutSeconds is the maximum time to wait for navigation
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`

	// DwellSeconds is how long the collector stays mounted before the page
	// is hidden
	DwellSeconds int `yaml:"dwell_seconds" json:"dwell_seconds"`

	// WaitReady is an optional CSS selector that must be visible before the
	// collector is mounted
	WaitReady string `yaml:"wait_ready" json:"wait_ready,omitempty"`
}

// GetTimeout returns the navigation timeout for this page
func (p *PageDefinition) GetTimeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// GetDwell returns how long to observe the page, falling back to def
func (p *PageDefinition) GetDwell(def time.Duration) time.Duration {
	if p.DwellSeconds <= 0 {
		return def
	}
	return time.Duration(p.DwellSeconds) * time.Second
}

// GetName returns the page name, deriving it from the path if not set
func (p *PageDefinition) GetName() string {
	if p.Name != "" {
		return p.Name
	}

	path := p.Path
	if path == "" {
		path = p.URL
		if i := strings.Index(path, "://"); i >= 0 {
			path = path[i+3:]
			if j := strings.Index(path, "/"); j >= 0 {
				path = path[j:]
			} else {
				path = "/"
			}
		}
	}

	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return "home"
	}
	return strings.ReplaceAll(path, "/", "-")
}
