package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/SaadAlam/aws-outbound-federation-demo/pkg/config"
)

// newLogger builds the structured logger for a run. JSON output is meant for
// CloudWatch when running inside Lambda.
func newLogger(w io.Writer, cfg config.Config) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: LOG_LEVEL: %w", config.ErrInvalidConfig, err)
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		Prefix:          "federation",
	})
	if cfg.LogFormat == "json" {
		logger.SetFormatter(log.JSONFormatter)
	}
	return logger, nil
}
