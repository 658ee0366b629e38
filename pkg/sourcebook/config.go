package sourcebook

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"

	"github.com/dan-solli/sourcebook/pkg/metrics"
	"github.com/dan-solli/sourcebook/pkg/store"
	"github.com/dan-solli/sourcebook/pkg/trace"
)

// Config holds configuration for a Sourcebook.
type Config struct {
	// StorageDriver selects the backend: memory, sqlite, sqlite3, postgres or s3
	StorageDriver string `env:"SOURCEBOOK_STORAGE_DRIVER" envDefault:"sqlite"`

	// DBPath is the SQLite database path (default: "sourcebook.db")
	DBPath string `env:"SOURCEBOOK_DB_PATH" envDefault:"sourcebook.db"`

	PostgresDSN string `env:"SOURCEBOOK_POSTGRES_DSN"`

	S3Bucket    string `env:"SOURCEBOOK_S3_BUCKET"`
	S3Region    string `env:"SOURCEBOOK_S3_REGION"`
	S3Endpoint  string `env:"SOURCEBOOK_S3_ENDPOINT"`
	S3Prefix    string `env:"SOURCEBOOK_S3_PREFIX"`
	S3PathStyle bool   `env:"SOURCEBOOK_S3_PATH_STYLE"`

	// TraceEnabled exports one record per operation to TracePath. Records
	// are only written in builds with the 'tracing' tag.
	TraceEnabled bool   `env:"SOURCEBOOK_TRACE_ENABLED"`
	TracePath    string `env:"SOURCEBOOK_TRACE_PATH" envDefault:"sourcebook-traces.jsonl"`

	// Logger, Metrics and TraceExporter are injected by the host.
	Logger        *slog.Logger      `env:"-"`
	Metrics       metrics.Collector `env:"-"`
	TraceExporter trace.Exporter    `env:"-"`
}

// LoadConfig reads a Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// storeOptions maps the config onto store.Open options.
func (c Config) storeOptions() store.Options {
	return store.Options{
		Driver: store.Driver(c.StorageDriver),
		Path:   c.DBPath,
		DSN:    c.PostgresDSN,
		S3: store.S3Config{
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			Endpoint:  c.S3Endpoint,
			Prefix:    c.S3Prefix,
			PathStyle: c.S3PathStyle,
		},
	}
}
