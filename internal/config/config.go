package config

import (
	"strings"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	OEIS     OEISConfig     `yaml:"oeis"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	CORS     CORSConfig     `yaml:"cors"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins   string `yaml:"allowed_origins"   env:"CORS_ALLOWED_ORIGINS"   env-default:"*"`
	AllowedMethods   string `yaml:"allowed_methods"   env:"CORS_ALLOWED_METHODS"   env-default:"GET,OPTIONS"`
	AllowedHeaders   string `yaml:"allowed_headers"   env:"CORS_ALLOWED_HEADERS"   env-default:"Content-Type"`
	AllowCredentials bool   `yaml:"allow_credentials" env:"CORS_ALLOW_CREDENTIALS" env-default:"false"`
	MaxAge           int    `yaml:"max_age"           env:"CORS_MAX_AGE"           env-default:"86400"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// StorageConfig selects the sequence store.
type StorageConfig struct {
	Driver     string `yaml:"driver"      env:"STORAGE_DRIVER"      env-default:"postgres"`
	SQLitePath string `yaml:"sqlite_path" env:"STORAGE_SQLITE_PATH" env-default:"./data/oeis.db"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"5"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// OEISConfig holds settings for the remote search client.
type OEISConfig struct {
	BaseURL        string        `yaml:"base_url"         env:"OEIS_BASE_URL"         env-default:"https://oeis.org"`
	Timeout        time.Duration `yaml:"timeout"          env:"OEIS_TIMEOUT"          env-default:"20s"`
	MaxRetries     int           `yaml:"max_retries"      env:"OEIS_MAX_RETRIES"      env-default:"3"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" env:"OEIS_RETRY_BASE_DELAY" env-default:"500ms"`
	UserAgent      string        `yaml:"user_agent"       env:"OEIS_USER_AGENT"       env-default:"oeisdb/1.0"`
}

// DatasetConfig holds settings for the exported game dataset.
type DatasetConfig struct {
	TermCount int    `yaml:"term_count" env:"DATASET_TERM_COUNT" env-default:"10"`
	Path      string `yaml:"path"       env:"DATASET_PATH"       env-default:"./data/entries.mjs"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// Metrics backends.
const (
	MetricsNone    = "none"
	MetricsDatadog = "datadog"
)

// MetricsConfig selects and configures the metrics backend.
type MetricsConfig struct {
	Backend    string        `yaml:"backend"     env:"METRICS_BACKEND"     env-default:"none"`
	JobName    string        `yaml:"job_name"    env:"METRICS_JOB_NAME"    env-default:"oeisdb"`
	Tags       string        `yaml:"tags"        env:"METRICS_TAGS"`
	FlushEvery time.Duration `yaml:"flush_every" env:"METRICS_FLUSH_EVERY" env-default:"60s"`
}

// TagList splits the comma-separated Tags, dropping empty items.
func (c MetricsConfig) TagList() []string {
	var tags []string
	for _, t := range strings.Split(c.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
