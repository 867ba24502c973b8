// Package config defines the application configuration, loaded from
// environment variables with github.com/caarlos0/env. See the individual
// domain config files for the available variables:
//   - http.go: HTTP server configuration
//   - ai.go: analysis provider configuration
//   - batch.go: batch orchestration configuration
//   - cache.go: analysis cache configuration
package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
type AppConfig struct {
	// IsDev controls development mode behavior (text log output, relaxed
	// validation). Set DEV=true or APP_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// HTTP server configuration
	HTTP HTTPConfig

	// AI provider configuration
	AI AIConfig

	// Batch orchestration configuration
	Batch BatchConfig

	// Analysis cache configuration
	Cache CacheConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.AI.Sanitize()
	c.Batch.Sanitize()
	c.Cache.Sanitize()
	c.detectDevMode()
}

// detectDevMode checks both DEV and APP_ENV. APP_ENV is checked as a
// fallback so deployments that only set an environment name still get
// development behavior locally.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}
