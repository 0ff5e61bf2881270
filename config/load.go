package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/puckline/puckline/errors"
)

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the Puckline configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	return initViper()
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "unmarshal config from %s", configPath)
	}

	return &config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("PUCKLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	// Manually merge configs in precedence order: system -> user -> project -> env vars
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// findProjectConfig searches for puckline.toml by walking up the directory tree.
// Returns the path to the first config file found, or empty string if none found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, "puckline.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// ConfigPaths returns the configuration cascade in precedence order
// (lowest first), with existence noted. Used by `config where`.
func ConfigPaths() []struct {
	Path   string
	Exists bool
} {
	homeDir, _ := os.UserHomeDir()
	paths := []string{
		"/etc/puckline/config.toml",
		filepath.Join(homeDir, ".puckline", "config.toml"),
	}
	if project := findProjectConfig(); project != "" {
		paths = append(paths, project)
	} else {
		paths = append(paths, "./puckline.toml")
	}

	out := make([]struct {
		Path   string
		Exists bool
	}, 0, len(paths))
	for _, p := range paths {
		_, err := os.Stat(p)
		out = append(out, struct {
			Path   string
			Exists bool
		}{p, err == nil})
	}
	return out
}

// mergeConfigFiles merges configuration files in precedence order
// (lowest to highest): system < user < project. Env vars sit above all
// files via AutomaticEnv.
func mergeConfigFiles(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()

	pucklineDir := filepath.Join(homeDir, ".puckline")
	os.MkdirAll(pucklineDir, DefaultDirPermissions)

	configPaths := []string{
		"/etc/puckline/config.toml",
		filepath.Join(pucklineDir, "config.toml"),
	}
	if projectConfig := findProjectConfig(); projectConfig != "" {
		configPaths = append(configPaths, projectConfig)
	}

	for _, configPath := range configPaths {
		if _, err := os.Stat(configPath); err != nil {
			continue
		}
		tempViper := viper.New()
		tempViper.SetConfigFile(configPath)
		tempViper.SetConfigType("toml")
		if err := tempViper.ReadInConfig(); err != nil {
			continue // unreadable files are skipped, not fatal
		}
		for _, key := range tempViper.AllKeys() {
			v.Set(key, tempViper.Get(key))
		}
	}
}
