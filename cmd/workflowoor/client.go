package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/workflowoor/pkg/circleci"
	"github.com/ethpandaops/workflowoor/pkg/config"
)

// loadConfig loads the configuration from --config (optional) plus
// environment overrides. A log level from the config file applies
// unless --log-level was given explicitly.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if !logLevelSet && cfg.Global.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.Global.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid global.log_level %q: %w", cfg.Global.LogLevel, err)
		}

		log.SetLevel(level)
	}

	return cfg, nil
}

// newClient builds an API client from the configuration, opening the
// request side log when one is configured. The returned closer must be
// called once the client is no longer used.
func newClient(cfg *config.Config) (*circleci.Client, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	var opts []circleci.Option

	closer := func() {}

	if cfg.CircleCI.RequestLog.Path != "" {
		f, err := os.OpenFile(cfg.CircleCI.RequestLog.Path,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening request log: %w", err)
		}

		details := make([]circleci.LogDetail, 0, len(cfg.CircleCI.RequestLog.Details))
		for _, d := range cfg.CircleCI.RequestLog.Details {
			details = append(details, circleci.LogDetail(d))
		}

		opts = append(opts, circleci.WithRequestLog(f, details...))
		closer = func() { _ = f.Close() }
	}

	return circleci.New(log, &cfg.CircleCI, opts...), closer, nil
}

// logSink reports fetch progress through the logger.
type logSink struct {
	log logrus.FieldLogger
}

func (s *logSink) PageFetched(workflow string, rows int) {
	s.log.WithFields(logrus.Fields{
		"workflow": workflow,
		"rows":     rows,
	}).Debug("Fetched page")
}

func (s *logSink) DetailFetched(workflowID string, done, total int) {
	if done == total || done%20 == 0 {
		s.log.WithFields(logrus.Fields{
			"done":  done,
			"total": total,
		}).Info("Fetching workflow details")
	}
}
