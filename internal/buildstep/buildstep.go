// Package buildstep wires credential resolution into the build lifecycle.
//
// A Wrapper is the job-level extension: immutable configuration plus shared
// services, safe for concurrent builds. All per-build state lives in the
// Session returned by Begin — nothing transient is ever stored on the
// Wrapper, so concurrent builds cannot leak state into each other.
//
// The contract with the host is simple: call Begin at step start, run the
// VCS command through the session's launcher, and call End at step end on
// every exit path (the host should defer it immediately after Begin). End
// is idempotent and never fails the build.
package buildstep

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/gitcreds/internal/diag"
	"github.com/jkaninda/gitcreds/internal/identity"
	"github.com/jkaninda/gitcreds/internal/launcher"
	"github.com/jkaninda/gitcreds/internal/observability"
	"github.com/jkaninda/gitcreds/internal/scratch"
	"github.com/jkaninda/gitcreds/internal/selection"
	"github.com/jkaninda/gitcreds/internal/shim"
)

// GitSSHVar is the environment variable git consults for its SSH client.
const GitSSHVar = "GIT_SSH"

// State of one build-step session.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateBound    // Artifacts exist; GIT_SSH overlay active.
	StateSkipped  // No credential bound; step proceeds without override.
	StateTornDown // Terminal.
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateBound:
		return "bound"
	case StateSkipped:
		return "skipped"
	case StateTornDown:
		return "torndown"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Build is the host's view of one running build.
type Build interface {
	// ID identifies the build for logging.
	ID() string
	// Cause describes what triggered the build, or nil if unknown.
	Cause() *identity.Cause
	// SetFailure marks the build failed. One-way.
	SetFailure()
}

// Wrapper is the job-level build-step extension.
type Wrapper struct {
	cfg     selection.Config
	policy  *selection.Policy
	area    *scratch.Area
	metrics *observability.MetricsCollector // nil = metrics disabled.
	tracer  trace.Tracer                    // nil = tracing disabled.
	logger  *slog.Logger
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithMetrics attaches a metrics collector.
func WithMetrics(m *observability.MetricsCollector) Option {
	return func(w *Wrapper) { w.metrics = m }
}

// WithTracer attaches an OTel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(w *Wrapper) { w.tracer = t }
}

// WithLogger sets the operator logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Wrapper) { w.logger = l }
}

// NewWrapper creates the extension for one job configuration.
func NewWrapper(cfg selection.Config, policy *selection.Policy, area *scratch.Area, opts ...Option) *Wrapper {
	w := &Wrapper{
		cfg:    cfg,
		policy: policy,
		area:   area,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Begin resolves a credential for the build and returns the step session.
// It never returns an error across the step boundary: on any failure the
// session is Skipped, the reason is in the build log, and the base launcher
// is passed through undecorated. The worst outcome is a failed build with
// an explanatory line, never a crash of the host.
func (w *Wrapper) Begin(ctx context.Context, build Build, base launcher.Launcher, sink diag.Sink) *Session {
	start := time.Now()

	if w.tracer != nil {
		var span trace.Span
		ctx, span = w.tracer.Start(ctx, "buildstep.begin",
			trace.WithAttributes(attribute.String("build.id", build.ID())),
		)
		defer span.End()
	}

	sess := &Session{
		wrapper:  w,
		sink:     sink,
		state:    StateResolving,
		launcher: base,
	}

	res := w.policy.Select(ctx, w.cfg, identity.FromCause(build.Cause()), build, sink)
	if res == nil {
		sess.state = StateSkipped
		w.observeBegin(sess, start, false)
		return sess
	}
	if res.Ambiguous && w.metrics != nil {
		w.metrics.AmbiguousSelectionsTotal.Inc()
	}

	artifacts, err := shim.Materialize(w.area, res.Candidate)
	if err != nil {
		// Same non-escalating branch as "no credentials found": the step
		// runs without a GIT_SSH binding.
		sink.Error(fmt.Sprintf("Could not materialize credentials: %v", err))
		w.logger.Error("secret materialization failed",
			slog.String("build_id", build.ID()),
			slog.String("error", err.Error()),
		)
		if w.metrics != nil {
			w.metrics.MaterializationsTotal.WithLabelValues(observability.StatusError).Inc()
		}
		sess.state = StateSkipped
		w.observeBegin(sess, start, false)
		return sess
	}
	if w.metrics != nil {
		w.metrics.MaterializationsTotal.WithLabelValues(observability.StatusOK).Inc()
	}

	sess.artifacts = artifacts
	sess.launcher = launcher.WithEnv(base, map[string]string{GitSSHVar: artifacts.ShimPath})
	sess.state = StateBound

	w.logger.Info("credential bound for build step",
		slog.String("build_id", build.ID()),
		slog.String("credential_id", res.Candidate.ID),
		slog.Bool("ambiguous", res.Ambiguous),
	)
	w.observeBegin(sess, start, true)
	return sess
}

func (w *Wrapper) observeBegin(sess *Session, start time.Time, bound bool) {
	if w.metrics == nil {
		return
	}
	outcome := observability.OutcomeSkipped
	if bound {
		outcome = observability.OutcomeBound
		w.metrics.ActiveSessions.Inc()
	}
	w.metrics.SelectionsTotal.WithLabelValues(outcome).Inc()
	w.metrics.StepSetupDuration.Observe(time.Since(start).Seconds())
}

// Session is the per-build-step state. Created by Begin, finished by End.
type Session struct {
	wrapper   *Wrapper
	sink      diag.Sink
	artifacts *shim.Artifacts
	launcher  launcher.Launcher

	mu       sync.Mutex
	state    State
	teardown sync.Once
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Launcher returns the launcher the host must use for this step's process
// launches. In the Bound state it carries the GIT_SSH overlay; in the
// Skipped state it is the base launcher unchanged.
func (s *Session) Launcher() launcher.Launcher {
	return s.launcher
}

// EnvOverlay returns the environment binding for hosts that manage process
// spawning themselves. Empty in the Skipped state.
func (s *Session) EnvOverlay() map[string]string {
	if s.artifacts == nil {
		return nil
	}
	return map[string]string{GitSSHVar: s.artifacts.ShimPath}
}

// End tears the session down: both secret artifacts are deleted and the
// state becomes TornDown. Exactly one teardown runs no matter how many
// times End is called or how the step exited; deletion failures are logged
// and never escalate.
func (s *Session) End(ctx context.Context) {
	s.teardown.Do(func() {
		if s.wrapper.tracer != nil {
			_, span := s.wrapper.tracer.Start(ctx, "buildstep.end")
			defer span.End()
		}

		bound := s.artifacts != nil
		if bound {
			err := s.artifacts.Remove(s.wrapper.area, s.sink)
			if s.wrapper.metrics != nil {
				s.wrapper.metrics.ActiveSessions.Dec()
				status := observability.StatusOK
				if err != nil {
					status = observability.StatusError
				}
				s.wrapper.metrics.TeardownsTotal.WithLabelValues(status).Inc()
			}
		}

		s.mu.Lock()
		s.state = StateTornDown
		s.mu.Unlock()

		s.wrapper.logger.Info("build step session torn down", slog.Bool("had_artifacts", bound))
	})
}
