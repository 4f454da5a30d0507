package main

import (
	"fmt"
	"log/slog"
	"os"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/gitcreds/internal/config"
	"github.com/jkaninda/gitcreds/internal/credstore"
	"github.com/jkaninda/gitcreds/internal/observability"
	"github.com/jkaninda/gitcreds/internal/scratch"
)

// newLogger builds the operator logger. Build-facing diagnostics go through
// diag sinks instead; this logger is for the process itself.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// loadConfig loads configuration from the --config flag, the GITCREDS_CONFIG
// environment variable, or falls back to defaults when neither names a file.
func loadConfig(flagPath string) (*config.Config, error) {
	path := goutils.Env("GITCREDS_CONFIG", flagPath)
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// openStore opens the credential store described by the config and runs
// migrations. Callers own the returned repository and must Close it.
func openStore(cfg *config.Config, logger *slog.Logger) (*credstore.Repository, error) {
	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		return nil, fmt.Errorf("resolving store config: %w", err)
	}
	return credstore.Open(storeCfg, logger)
}

// newScratch creates the scratch area from the config.
func newScratch(cfg *config.Config, logger *slog.Logger) (*scratch.Area, error) {
	root, err := cfg.ScratchPath()
	if err != nil {
		return nil, fmt.Errorf("resolving scratch dir: %w", err)
	}
	return scratch.New(root, logger)
}

// obsComponents holds the optional observability subsystems.
type obsComponents struct {
	Metrics *observability.MetricsCollector // nil = metrics disabled.
	Tracing *observability.TracerSetup      // nil = tracing disabled.
	Health  *observability.HealthChecker
}

// initObservability builds metrics, tracing, and health checking from the
// config. Health checking is always available; the rest is opt-in.
func initObservability(cfg *config.Config, logger *slog.Logger) (*obsComponents, error) {
	obs := &obsComponents{
		Health: observability.NewHealthChecker(logger),
	}

	if cfg.Observability == nil {
		return obs, nil
	}

	if cfg.Observability.Metrics != nil && cfg.Observability.Metrics.Enabled {
		obs.Metrics = observability.NewMetricsCollector()
		logger.Debug("metrics enabled")
	}

	ts, err := observability.NewTracerSetup(cfg.Observability.Tracing)
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	if ts != nil {
		obs.Tracing = ts
		logger.Debug("tracing enabled",
			slog.String("endpoint", cfg.Observability.Tracing.Endpoint),
		)
	}

	return obs, nil
}
