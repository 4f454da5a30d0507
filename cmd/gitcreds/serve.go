package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jkaninda/gitcreds/internal/buildstep"
	"github.com/jkaninda/gitcreds/internal/config"
	"github.com/jkaninda/gitcreds/internal/httpapi"
	"github.com/jkaninda/gitcreds/internal/scratch"
)

var (
	serveConfigPath string
	servePort       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the credential administration server",
	Long: `serve starts the long-running mode: the credential administration HTTP
API, the scratch-area janitor, and the configured observability endpoints.`,
	RunE: runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `gitcreds --config path` and `gitcreds serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", "", "path to config file")
		cmd.Flags().StringVar(&servePort, "port", "", "override HTTP listen address (e.g. :8080)")
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := loadConfig(serveConfigPath)
	if err != nil {
		return err
	}

	// Apply CLI overrides.
	if servePort != "" {
		if cfg.HTTP == nil {
			cfg.HTTP = &config.HTTPConfig{}
		}
		cfg.HTTP.ListenAddr = servePort
	}
	if cfg.HTTP == nil || cfg.HTTP.ListenAddr == "" {
		return fmt.Errorf("no HTTP listen address configured (set http.listen_addr or --port)")
	}

	logger.Info("starting in server mode", slog.String("addr", cfg.HTTP.ListenAddr))

	obs, err := initObservability(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Tracing.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutting down tracing", slog.String("error", err.Error()))
		}
	}()

	repo, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("closing credential store", slog.String("error", err.Error()))
		}
	}()

	area, err := newScratch(cfg, logger)
	if err != nil {
		return err
	}

	obs.Health.AddCheck("store", repo.Ping)
	obs.Health.AddCheck("scratch", func(context.Context) error {
		_, statErr := os.Stat(area.Root())
		return statErr
	})

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Scratch janitor (optional).
	if cfg.Janitor != nil {
		janitorCfg := scratch.JanitorConfig{
			Schedule: cfg.Janitor.Schedule,
			MaxAge:   cfg.Janitor.MaxAge(),
		}
		if obs.Metrics != nil {
			janitorCfg.OnSweep = func(removed int) {
				obs.Metrics.ScratchFilesSweptTotal.Add(float64(removed))
			}
		}
		janitor := scratch.NewJanitor(area, janitorCfg, logger)
		if err := janitor.Start(); err != nil {
			return err
		}
		defer janitor.Stop()
	}

	// API keys: config plus env, or an ephemeral one printed at startup so a
	// bare `gitcreds serve` is still usable.
	apiKeys := cfg.HTTP.APIKeys
	if len(apiKeys) == 0 {
		key := uuid.New().String()
		apiKeys = map[string]string{key: "ephemeral"}
		fmt.Fprintf(os.Stderr, "generated ephemeral API key: %s\n", key)
	}

	httpCfg := httpapi.Config{
		ListenAddr:    cfg.HTTP.ListenAddr,
		EnableDocs:    cfg.HTTP.EnableDocs,
		APIKeys:       apiKeys,
		HealthChecker: obs.Health,
	}
	if obs.Metrics != nil {
		httpCfg.Metrics = obs.Metrics
		httpCfg.MetricsRegistry = obs.Metrics.Registry
		if cfg.Observability != nil && cfg.Observability.Metrics != nil {
			httpCfg.MetricsPath = cfg.Observability.Metrics.Path
		}
	}
	if obs.Tracing != nil {
		httpCfg.Tracer = obs.Tracing.Tracer()
	}

	server := httpapi.NewServer(httpCfg, buildstep.NewDescriptor(repo), repo, logger)

	errs := make(chan error, 1)
	go func() {
		errs <- server.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("http api exited with error", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}
