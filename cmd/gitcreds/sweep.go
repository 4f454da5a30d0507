package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/gitcreds/internal/scratch"
)

var sweepConfigPath string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove orphaned scratch files once and exit",
	Long: `sweep runs one janitor pass over the scratch area, removing secret
artifacts left behind by builds whose host process died mid-step. Files
younger than the configured max age are never touched.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().StringVar(&sweepConfigPath, "config", "", "path to config file")
}

func runSweep(_ *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := loadConfig(sweepConfigPath)
	if err != nil {
		return err
	}

	area, err := newScratch(cfg, logger)
	if err != nil {
		return err
	}

	janitorCfg := scratch.JanitorConfig{MaxAge: cfg.Janitor.MaxAge()}
	if cfg.Janitor != nil {
		janitorCfg.Schedule = cfg.Janitor.Schedule
	}

	janitor := scratch.NewJanitor(area, janitorCfg, logger)
	removed, err := janitor.Sweep(time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("removed %d orphaned file(s)\n", removed)
	return nil
}
