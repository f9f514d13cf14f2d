// Package logging builds the zap loggers used across switchio.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New returns a logger at level. Format "json" selects the production
// encoder; anything else the human-readable console encoder.
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	}
	cfg.Level = lvl
	return cfg.Build()
}
