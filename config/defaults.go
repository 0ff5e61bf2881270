package config

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "puckline.db")

	// Server defaults
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.evaluate_rate_limit", 50.0) // req/s
	v.SetDefault("server.evaluate_rate_burst", 100)

	// Policy defaults: deny-by-default is a property of the engine,
	// not a setting. Only the bypass list is configurable, and it
	// defaults to empty.
	v.SetDefault("policy.bypass_actors", []string{})

	// Audit defaults
	v.SetDefault("audit.query_limit", 50)
}
