package catalog

import (
	"log/slog"

	"github.com/dan-solli/sourcebook/pkg/metrics"
)

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger. A nil logger keeps the catalog silent.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics collector. A nil collector disables metrics.
func WithMetrics(m metrics.Collector) Option {
	return func(c *Catalog) {
		c.metrics = m
	}
}

// SetLogger replaces the logger of an existing catalog. It must not be
// called concurrently with other methods.
func (c *Catalog) SetLogger(l *slog.Logger) {
	if l != nil {
		c.logger = l
	}
}
