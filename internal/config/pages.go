package config

import (
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/models"
)

// DefaultPages returns the informational pages of the site
func DefaultPages() []models.PageDefinition {
	return []models.PageDefinition{
		{
			Path:           "/",
			Name:           "home",
			Category:       "marketing",
			TimeoutSeconds: 30,
			WaitReady:      "body",
		},
		{
			Path:           "/pricing",
			Name:           "pricing",
			Category:       "catalog",
			TimeoutSeconds: 30,
			WaitReady:      "body",
		},
		{
			Path:           "/materials-accepted",
			Name:           "materials-accepted",
			Category:       "catalog",
			TimeoutSeconds: 30,
			WaitReady:      "body",
		},
		{
			Path:           "/materials-sold",
			Name:           "materials-sold",
			Category:       "catalog",
			TimeoutSeconds: 30,
			WaitReady:      "body",
		},
		{
			Path:           "/contact",
			Name:           "contact",
			Category:       "marketing",
			TimeoutSeconds: 30,
			WaitReady:      "body",
		},
		{
			Path:           "/about",
			Name:           "about",
			Category:       "marketing",
			TimeoutSeconds: 30,
			WaitReady:      "body",
		},
		{
			Path:           "/legal",
			Name:           "legal",
			Category:       "legal",
			TimeoutSeconds: 30,
			WaitReady:      "body",
		},
	}
}
