// Package config loads archive settings from, in order of precedence,
// command-line flags (bound by cmd/archive), ARCHIVE_* environment
// variables, .env files, an optional YAML config file, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. ARCHIVE_DB_PATH.
const EnvPrefix = "ARCHIVE"

// Config holds the application configuration.
type Config struct {
	DB      DBConfig      `mapstructure:"db"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// ConfigFile is the file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

type DBConfig struct {
	Path   string `mapstructure:"path"`
	Driver string `mapstructure:"driver"`
}

type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// IngestConfig controls the periodic import of scraped months.
type IngestConfig struct {
	Dir      string        `mapstructure:"dir"`
	Interval time.Duration `mapstructure:"interval"`
	Enabled  bool          `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Drivers accepted for db.driver.
const (
	DriverCGO  = "sqlite3"
	DriverPure = "sqlite"
)

// envFiles are loaded in order; values already in the environment win.
var envFiles = []string{".env", ".env.local"}

// NewViper returns a viper instance with defaults and environment binding
// set up. Callers may bind flags onto it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("db.path", "archive.db")
	v.SetDefault("db.driver", DriverCGO)
	v.SetDefault("http.port", 8080)
	v.SetDefault("ingest.dir", "")
	v.SetDefault("ingest.interval", time.Hour)
	v.SetDefault("ingest.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("metrics.enabled", true)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration into a Config. An explicit path must exist;
// otherwise archive.yaml is looked up in the working directory and
// silently skipped when absent.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	loadEnvFiles()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("archive")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that viper cannot express.
func (c *Config) Validate() error {
	if c.DB.Path == "" {
		return errors.New("db.path must not be empty")
	}
	switch c.DB.Driver {
	case DriverCGO, DriverPure:
	default:
		return fmt.Errorf("db.driver %q: want %s or %s", c.DB.Driver, DriverCGO, DriverPure)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.Ingest.Enabled {
		if c.Ingest.Dir == "" {
			return errors.New("ingest.dir is required when ingest.enabled is set")
		}
		if c.Ingest.Interval <= 0 {
			return fmt.Errorf("ingest.interval must be positive, got %s", c.Ingest.Interval)
		}
	}
	return nil
}

func loadEnvFiles() {
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}
}
