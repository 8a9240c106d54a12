// Package config handles configuration loading and validation for minerd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// Config represents the complete minerd configuration.
type Config struct {
	Roots   []RootConfig  `mapstructure:"roots"`
	Filters FiltersConfig `mapstructure:"filters"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Pool    PoolConfig    `mapstructure:"pool"`
	Store   StoreConfig   `mapstructure:"store"`
}

// RootConfig configures a single indexing-tree root.
type RootConfig struct {
	Path       string `mapstructure:"path"`
	Recurse    bool   `mapstructure:"recurse"`
	CheckMTime bool   `mapstructure:"check_mtime"`
	Monitor    bool   `mapstructure:"monitor"`
}

// FiltersConfig configures the glob filters applied while crawling and
// monitoring, independent of any particular root.
type FiltersConfig struct {
	File            []string `mapstructure:"file"`
	Directory       []string `mapstructure:"directory"`
	ParentDirectory []string `mapstructure:"parent_directory"`
	Hidden          bool     `mapstructure:"hidden"`
}

// MonitorConfig configures the filesystem watch set.
type MonitorConfig struct {
	Limit int `mapstructure:"limit"`
}

// PoolConfig configures the processing pool's back-pressure limits.
type PoolConfig struct {
	LimitWait  int `mapstructure:"limit_wait"`
	LimitReady int `mapstructure:"limit_ready"`
}

// StoreConfig configures the metadata store.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Filters: FiltersConfig{
			Directory: DefaultIgnorePatterns(),
			Hidden:    true,
		},
		Monitor: MonitorConfig{
			Limit: DefaultMonitorLimit(),
		},
		Pool: PoolConfig{
			LimitWait:  DefaultPoolLimitWait,
			LimitReady: DefaultPoolLimitReady,
		},
		Store: StoreConfig{
			Path: DefaultStorePath(),
		},
	}
}

// Load reads configuration from file and environment variables.
func Load(configFile string) error {
	// Set defaults
	setDefaults()

	// Set config file if specified
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		// Search for config in standard locations
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")

		// Also check for .minerdrc.yaml in current directory and parents
		if rcPath := findRCFile(); rcPath != "" {
			viper.SetConfigFile(rcPath)
		}
	}

	// Environment variables
	viper.SetEnvPrefix("MINERD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	// Unmarshal into config struct
	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	if len(cfg.Filters.Directory) == 0 {
		cfg.Filters.Directory = DefaultIgnorePatterns()
	}

	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	// Filters
	viper.SetDefault("filters.directory", DefaultIgnorePatterns())
	viper.SetDefault("filters.hidden", true)

	// Monitor
	viper.SetDefault("monitor.limit", DefaultMonitorLimit())

	// Pool
	viper.SetDefault("pool.limit_wait", DefaultPoolLimitWait)
	viper.SetDefault("pool.limit_ready", DefaultPoolLimitReady)

	// Store
	viper.SetDefault("store.path", DefaultStorePath())
}

// findRCFile searches for .minerdrc.yaml starting from current directory.
func findRCFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		rcPath := filepath.Join(dir, ".minerdrc.yaml")
		if _, err := os.Stat(rcPath); err == nil {
			return rcPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
