// Package config defines the explicit configuration model for the
// warehouse ETL. Configuration is loaded from an optional YAML file and
// then overridden by environment variables (12-factor style), so the
// same binary runs locally against a .env file and in a container with
// injected credentials.
//
// The pipeline itself never reads the environment; it receives a fully
// resolved Config at construction.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither file nor environment provides a value.
const (
	DefaultPort            = 5432
	DefaultBatchSize       = 1000
	DefaultQuantityCeiling = 10000
	DefaultDelimiter       = ","
	DefaultEncoding        = "utf-8"
)

// Config is the top-level configuration passed into the pipeline.
type Config struct {
	DB      DB      `yaml:"db"`
	Source  Source  `yaml:"source"`
	Load    Load    `yaml:"load"`
	Metrics Metrics `yaml:"metrics"`
}

// DB holds warehouse connection parameters.
type DB struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// Source describes the input file.
type Source struct {
	// Path is the local filesystem path to the delimited input file.
	Path string `yaml:"path"`

	// Delimiter is the field separator; the first rune is used. Default ",".
	Delimiter string `yaml:"delimiter"`

	// Encoding selects the source character set: "utf-8" (default) or
	// "windows-1252" for legacy exports.
	Encoding string `yaml:"encoding"`
}

// Load holds tunables for the load stages.
type Load struct {
	// BatchSize is the number of fact rows per bulk insert.
	BatchSize int `yaml:"batch_size"`

	// QuantityCeiling is the outlier bound: rows with a larger quantity
	// are treated as data-entry errors and dropped.
	QuantityCeiling int64 `yaml:"quantity_ceiling"`
}

// Metrics configures the optional Pushgateway sink. Empty URL disables
// metrics entirely.
type Metrics struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// Read loads configuration from the YAML file at path (skipped when
// path is empty or the file does not exist), applies environment
// overrides, and fills defaults. Callers apply their own flag
// overrides, then call Validate.
func Read(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnv overrides fields from the conventional DB_* / SOURCE_* keys.
func (c *Config) applyEnv() {
	if v := os.Getenv("DB_HOST"); v != "" {
		c.DB.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.DB.Port = p
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.DB.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.DB.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.DB.Name = v
	}
	if v := os.Getenv("SOURCE_PATH"); v != "" {
		c.Source.Path = v
	}
	if v := os.Getenv("METRICS_PUSHGATEWAY_URL"); v != "" {
		c.Metrics.PushgatewayURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.DB.Port == 0 {
		c.DB.Port = DefaultPort
	}
	if c.Source.Delimiter == "" {
		c.Source.Delimiter = DefaultDelimiter
	}
	if c.Source.Encoding == "" {
		c.Source.Encoding = DefaultEncoding
	}
	if c.Load.BatchSize == 0 {
		c.Load.BatchSize = DefaultBatchSize
	}
	if c.Load.QuantityCeiling == 0 {
		c.Load.QuantityCeiling = DefaultQuantityCeiling
	}
}

// Validate reports the first missing required field.
func (c *Config) Validate() error {
	switch {
	case c.DB.Host == "":
		return fmt.Errorf("config: db.host is required")
	case c.DB.Name == "":
		return fmt.Errorf("config: db.name is required")
	case c.DB.User == "":
		return fmt.Errorf("config: db.user is required")
	case c.Source.Path == "":
		return fmt.Errorf("config: source.path is required")
	case c.Load.BatchSize < 0:
		return fmt.Errorf("config: load.batch_size must be > 0")
	}
	return nil
}

// DSN renders the pgx connection string.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DB.User, c.DB.Password),
		Host:   fmt.Sprintf("%s:%d", c.DB.Host, c.DB.Port),
		Path:   "/" + c.DB.Name,
	}
	return u.String()
}
