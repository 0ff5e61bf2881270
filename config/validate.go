package config

import "github.com/puckline/puckline/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Database path is optional - empty defaults to "puckline.db" per defaults.go

	// Server port: 0 is invalid (omit for default), negative is invalid
	if c.Server.Port != nil && *c.Server.Port == 0 {
		return errors.Newf("server.port cannot be 0 (omit for default port %d)", DefaultServerPort)
	}
	if c.Server.Port != nil && *c.Server.Port < 0 {
		return errors.Newf("server.port must be positive, got %d", *c.Server.Port)
	}

	// Rate limit: 0 = unlimited, negative = invalid
	if c.Server.EvaluateRateLimit < 0 {
		return errors.Newf("server.evaluate_rate_limit must be >= 0, got %f", c.Server.EvaluateRateLimit)
	}
	if c.Server.EvaluateRateBurst < 0 {
		return errors.Newf("server.evaluate_rate_burst must be >= 0, got %d", c.Server.EvaluateRateBurst)
	}

	if c.Audit.QueryLimit < 0 {
		return errors.Newf("audit.query_limit must be >= 0, got %d", c.Audit.QueryLimit)
	}

	// Bypass actors must be explicit ids, never wildcards: a wildcard
	// bypass would turn the audited exception path into a default.
	for _, id := range c.Policy.BypassActors {
		if id == "" || id == "*" {
			return errors.Newf("policy.bypass_actors entries must be explicit actor ids, got %q", id)
		}
	}

	return nil
}

// ServerPort resolves the configured or default server port
func (c *Config) ServerPort() int {
	if c.Server.Port != nil {
		return *c.Server.Port
	}
	return DefaultServerPort
}
