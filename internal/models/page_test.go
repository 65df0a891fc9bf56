package models

import (
	"testing"
	"time"
)

func TestPageDefinition_GetName(t *testing.T) {
	tests := []struct {
		name     string
		page     PageDefinition
		expected string
	}{
		{"explicit name", PageDefinition{Name: "pricing", Path: "/prices"}, "pricing"},
		{"root path", PageDefinition{Path: "/"}, "home"},
		{"nested path", PageDefinition{Path: "/materials/accepted/"}, "materials-accepted"},
		{"query stripped", PageDefinition{Path: "/contact?ref=nav"}, "contact"},
		{"from url", PageDefinition{URL: "https://scrap.example.com/about#team"}, "about"},
		{"bare host", PageDefinition{URL: "https://scrap.example.com"}, "home"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.page.GetName(); got != tt.expected {
				t.Errorf("GetName() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestPageDefinition_Durations(t *testing.T) {
	page := PageDefinition{}
	if got := page.GetTimeout(); got != 30*time.Second {
		t.Errorf("default timeout = %v", got)
	}
	if got := page.GetDwell(5 * time.Second); got != 5*time.Second {
		t.Errorf("default dwell = %v", got)
	}

	page = PageDefinition{TimeoutSeconds: 12, DwellSeconds: 3}
	if got := page.GetTimeout(); got != 12*time.Second {
		t.Errorf("timeout = %v", got)
	}
	if got := page.GetDwell(5 * time.Second); got != 3*time.Second {
		t.Errorf("dwell = %v", got)
	}
}
