package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jkaninda/gitcreds/internal/buildstep"
	"github.com/jkaninda/gitcreds/internal/credentials"
	"github.com/jkaninda/gitcreds/internal/diag"
	"github.com/jkaninda/gitcreds/internal/identity"
	"github.com/jkaninda/gitcreds/internal/launcher"
	"github.com/jkaninda/gitcreds/internal/selection"
)

var (
	execConfigPath string
	execUser       string
	execBuildID    string
	execDir        string

	execEnableUserLookup   bool
	execFailIfNoUserCred   bool
	execEnableSystemLookup bool
	execSystemCredentialID string
)

var execCmd = &cobra.Command{
	Use:   "exec -- <command> [args...]",
	Short: "Run one command as a build step with credential binding",
	Long: `exec runs a single command through the full build-step lifecycle:
select a credential, materialize the key and GIT_SSH wrapper, run the
command with the binding, and tear the artifacts down on every exit path.

The command's exit code is propagated. A failed credential lookup only
fails the step when --fail-if-no-user-credential is set; otherwise the
command runs without a GIT_SSH binding.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringVar(&execConfigPath, "config", "", "path to config file")
	execCmd.Flags().StringVar(&execUser, "user", "", "user who started the build (empty = no acting user)")
	execCmd.Flags().StringVar(&execBuildID, "build-id", "", "build identifier (default: random)")
	execCmd.Flags().StringVar(&execDir, "dir", "", "working directory for the command")

	execCmd.Flags().BoolVar(&execEnableUserLookup, "user-lookup", false, "look up the acting user's credentials")
	execCmd.Flags().BoolVar(&execFailIfNoUserCred, "fail-if-no-user-credential", false, "fail the step when the user has no credentials")
	execCmd.Flags().BoolVar(&execEnableSystemLookup, "system-lookup", false, "look up system credentials")
	execCmd.Flags().StringVar(&execSystemCredentialID, "system-credential", "", "restrict system lookup to this credential ID")
}

// cliBuild adapts one exec invocation to the build-step contract.
type cliBuild struct {
	id     string
	cause  *identity.Cause
	failed bool
}

func (b *cliBuild) ID() string             { return b.id }
func (b *cliBuild) Cause() *identity.Cause { return b.cause }
func (b *cliBuild) SetFailure()            { b.failed = true }

func runExec(_ *cobra.Command, args []string) error {
	exitCode, err := execStep(args)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

// execStep runs the step and returns the exit code to propagate. Deferred
// cleanup (session teardown, store close) runs before the caller exits.
func execStep(args []string) (int, error) {
	logger := newLogger()

	cfg, err := loadConfig(execConfigPath)
	if err != nil {
		return 0, err
	}

	// Flag-driven job configuration overrides the config file's defaults
	// when any selection flag is set.
	jobCfg := cfg.Job
	if execEnableUserLookup || execEnableSystemLookup {
		jobCfg = selection.Config{
			EnableUserLookup:            execEnableUserLookup,
			FailBuildIfNoUserCredential: execFailIfNoUserCred,
			EnableSystemLookup:          execEnableSystemLookup,
			SystemCredentialID:          execSystemCredentialID,
		}
	}

	repo, err := openStore(cfg, logger)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("closing credential store", slog.String("error", err.Error()))
		}
	}()

	area, err := newScratch(cfg, logger)
	if err != nil {
		return 0, err
	}

	buildID := execBuildID
	if buildID == "" {
		buildID = uuid.New().String()
	}
	var cause *identity.Cause
	if execUser != "" {
		cause = &identity.Cause{Kind: identity.CauseUser, UserID: execUser}
	}
	build := &cliBuild{id: buildID, cause: cause}

	policy := selection.NewPolicy(credentials.NewSource(repo, logger), logger)
	wrapper := buildstep.NewWrapper(jobCfg, policy, area, buildstep.WithLogger(logger))

	// Signal-aware context: an interrupt kills the child process group and
	// still runs the deferred teardown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink := diag.NewLineSink(os.Stderr)
	base := launcher.NewExecLauncher(logger)

	sess := wrapper.Begin(ctx, build, base, sink)
	defer sess.End(context.Background())

	result, err := sess.Launcher().Launch(ctx, launcher.Command{
		Argv:   args,
		Dir:    execDir,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	if err != nil {
		return 0, fmt.Errorf("running command: %w", err)
	}

	sess.End(context.Background())

	if build.failed {
		logger.Error("build marked failed by credential policy", slog.String("build_id", buildID))
		return 1, nil
	}
	return result.ExitCode, nil
}
