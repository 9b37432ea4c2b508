package config

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/sense/internal/logging"
	"github.com/gyaneshwarpardhi/sense/internal/statistics"
)

// Validate checks the config for:
//   - Required fields and known enum values
//   - Statistic buckets that are positive and distinct
//   - Duplicate or unnamed rules
//
// Rule bodies are compiled, and therefore checked, by ruleconf.
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("log.level: %v", err))
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		errs = append(errs, fmt.Sprintf("log.format: must be text or json, got %q", cfg.Log.Format))
	}
	if cfg.Server.DefaultAwaitTimeout < 0 {
		errs = append(errs, "server.default_await_timeout must be positive")
	}
	if cfg.Engine.ClassifyWorkers < 0 || cfg.Engine.QueueDepth < 0 || cfg.Engine.EventTimeoutMs < 0 {
		errs = append(errs, "engine: classify_workers, queue_depth and event_timeout_ms must not be negative")
	}
	if cfg.Engine.RefreshInterval < 0 {
		errs = append(errs, "engine.refresh_interval must be positive")
	}
	if _, err := statistics.NewBuckets(cfg.Statistic.EventBuckets); err != nil {
		errs = append(errs, fmt.Sprintf("statistic.event_buckets: %v", err))
	}

	switch cfg.Provider.Kind {
	case ProviderMemory:
	case ProviderMongo:
		if cfg.Provider.Mongo.URI == "" {
			errs = append(errs, "provider.mongo.uri is required for the mongo provider")
		}
		if cfg.Provider.Mongo.Database == "" {
			errs = append(errs, "provider.mongo.database is required for the mongo provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("provider.kind: unknown provider %q", cfg.Provider.Kind))
	}

	if n := cfg.Source.NATS; n != nil && n.URL == "" {
		errs = append(errs, "source.nats.url is required")
	}
	if cfg.Notifier.NATSSubject != "" && cfg.Notifier.NATSURL == "" {
		errs = append(errs, "notifier.nats_url is required when notifier.nats_subject is set")
	}

	names := make(map[string]int, len(cfg.Rules))
	for i, r := range cfg.Rules {
		if strings.TrimSpace(r.Name) == "" {
			errs = append(errs, fmt.Sprintf("rules[%d]: name is required", i))
			continue
		}
		if prev, ok := names[r.Name]; ok {
			errs = append(errs, fmt.Sprintf("duplicate rule %q (first seen at rules[%d], again at rules[%d])", r.Name, prev, i))
			continue
		}
		names[r.Name] = i
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
