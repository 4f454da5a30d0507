// Package selection implements the credential selection policy for a build.
//
// Two candidate sources feed one combined list: the invoking user's own
// credentials first, then the configured system credential. The first entry
// wins — there is no scoring. The only host state this package ever mutates
// is the build outcome, and only under the explicit fail-if-no-user-credential
// policy.
package selection

import (
	"context"
	"io"
	"log/slog"

	"github.com/jkaninda/gitcreds/internal/credentials"
	"github.com/jkaninda/gitcreds/internal/diag"
	"github.com/jkaninda/gitcreds/internal/identity"
)

// Config is the per-job credential configuration. Immutable once a build
// starts.
type Config struct {
	EnableUserLookup            bool   `json:"enable_user_lookup" yaml:"enable_user_lookup"`
	FailBuildIfNoUserCredential bool   `json:"fail_build_if_no_user_credential" yaml:"fail_build_if_no_user_credential"`
	EnableSystemLookup          bool   `json:"enable_system_lookup" yaml:"enable_system_lookup"`
	SystemCredentialID          string `json:"system_credential_id,omitempty" yaml:"system_credential_id,omitempty"`
}

// Outcome is the policy's single mutation surface on the host: marking the
// build failed. One-way — never cleared by this package.
type Outcome interface {
	SetFailure()
}

// Result is a successful selection.
type Result struct {
	Candidate credentials.Candidate
	// Ambiguous is set when more than one candidate was eligible. The first
	// in combined order is used regardless.
	Ambiguous bool
}

// Policy evaluates the selection algorithm against the credential sources.
type Policy struct {
	source *credentials.Source
	logger *slog.Logger
}

// NewPolicy creates a Policy over the given source.
func NewPolicy(source *credentials.Source, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Policy{source: source, logger: logger}
}

// Select picks at most one usable credential for this build, or returns nil
// when none was found.
//
// User-scoped candidates always precede system-scoped candidates; within
// each source, store order is preserved. A missing acting identity skips the
// user source with a diagnostic but is not itself a failure — the system
// source still runs.
func (p *Policy) Select(ctx context.Context, cfg Config, actor *identity.Identity, build Outcome, sink diag.Sink) *Result {
	var combined []credentials.Candidate

	if cfg.EnableUserLookup {
		if actor == nil {
			sink.Error("Job must be started by a user for user credentials, will try system credentials")
		} else {
			combined = append(combined, p.source.UserScoped(ctx, actor.Impersonate())...)
			if cfg.FailBuildIfNoUserCredential && len(combined) == 0 {
				sink.Error("No credentials found for user " + actor.Display())
				build.SetFailure()
			}
		}
	} else {
		sink.Info("No user credential lookup configured")
	}

	if cfg.EnableSystemLookup {
		for _, cand := range p.source.SystemScoped(ctx) {
			if cand.ID == cfg.SystemCredentialID {
				combined = append(combined, cand)
			}
		}
	} else {
		sink.Info("No system credential lookup configured")
	}

	if len(combined) == 0 {
		sink.Error("No usable credentials were found")
		return nil
	}

	chosen := combined[0]
	ambiguous := len(combined) > 1
	if ambiguous {
		sink.Info("Found more than one usable credential, using credentials for username " + chosen.Username)
	}
	p.logger.Info("credential selected",
		slog.String("id", chosen.ID),
		slog.String("username", chosen.Username),
		slog.Bool("ambiguous", ambiguous),
	)
	return &Result{Candidate: chosen, Ambiguous: ambiguous}
}
