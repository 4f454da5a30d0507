package buildstep

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jkaninda/gitcreds/internal/credentials"
	"github.com/jkaninda/gitcreds/internal/diag"
	"github.com/jkaninda/gitcreds/internal/identity"
	"github.com/jkaninda/gitcreds/internal/launcher"
	"github.com/jkaninda/gitcreds/internal/scratch"
	"github.com/jkaninda/gitcreds/internal/selection"
)

// fakeStore serves canned candidates per scope.
type fakeStore struct {
	user   []credentials.Candidate
	system []credentials.Candidate
}

func (f *fakeStore) Lookup(_ context.Context, _ credentials.Kind, access credentials.AccessContext) ([]credentials.Candidate, error) {
	if access.IsSystem() {
		return f.system, nil
	}
	return f.user, nil
}

// fakeBuild implements Build.
type fakeBuild struct {
	id       string
	cause    *identity.Cause
	failures int
}

func (b *fakeBuild) ID() string             { return b.id }
func (b *fakeBuild) Cause() *identity.Cause { return b.cause }
func (b *fakeBuild) SetFailure()            { b.failures++ }

// captureLauncher records the command it was asked to launch.
type captureLauncher struct {
	mu   sync.Mutex
	cmds []launcher.Command
}

func (l *captureLauncher) Launch(_ context.Context, cmd launcher.Command) (*launcher.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cmds = append(l.cmds, cmd)
	return &launcher.Result{}, nil
}

func (l *captureLauncher) lastEnv(t *testing.T) []string {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.cmds) == 0 {
		t.Fatal("no command launched")
	}
	return l.cmds[len(l.cmds)-1].Env
}

func newTestWrapper(t *testing.T, cfg selection.Config, store credentials.Store) (*Wrapper, *scratch.Area) {
	t.Helper()
	area, err := scratch.New(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	policy := selection.NewPolicy(credentials.NewSource(store, nil), nil)
	return NewWrapper(cfg, policy, area), area
}

func envValue(env []string, name string) (string, bool) {
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, name+"="); ok {
			return v, true
		}
	}
	return "", false
}

func userCause() *identity.Cause {
	return &identity.Cause{Kind: identity.CauseUser, UserID: "alice"}
}

func TestBeginBoundInjectsGitSSH(t *testing.T) {
	w, _ := newTestWrapper(t,
		selection.Config{EnableUserLookup: true},
		&fakeStore{user: []credentials.Candidate{{ID: "u1", Username: "alice", PrivateKey: []byte("secret")}}},
	)
	base := &captureLauncher{}
	build := &fakeBuild{id: "b1", cause: userCause()}

	sess := w.Begin(context.Background(), build, base, diag.Discard)
	defer sess.End(context.Background())

	if sess.State() != StateBound {
		t.Fatalf("state = %v, want bound", sess.State())
	}

	if _, err := sess.Launcher().Launch(context.Background(), launcher.Command{Argv: []string{"git", "fetch"}}); err != nil {
		t.Fatal(err)
	}
	shimPath, ok := envValue(base.lastEnv(t), GitSSHVar)
	if !ok {
		t.Fatal("GIT_SSH not present in launched environment")
	}
	if _, err := os.Stat(shimPath); err != nil {
		t.Errorf("GIT_SSH points to missing shim: %v", err)
	}
	key, err := os.ReadFile(sess.artifacts.KeyPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(key) != "secret" {
		t.Errorf("key file = %q", key)
	}
}

func TestBeginSkippedWithoutCandidates(t *testing.T) {
	w, _ := newTestWrapper(t, selection.Config{}, &fakeStore{})
	base := &captureLauncher{}
	build := &fakeBuild{id: "b1", cause: userCause()}

	sess := w.Begin(context.Background(), build, base, diag.Discard)
	defer sess.End(context.Background())

	if sess.State() != StateSkipped {
		t.Fatalf("state = %v, want skipped", sess.State())
	}
	if build.failures != 0 {
		t.Errorf("skipped step must not fail the build, got %d", build.failures)
	}
	// The launcher passes through undecorated.
	if sess.Launcher() != launcher.Launcher(base) {
		t.Error("skipped session must return the base launcher")
	}
	if sess.EnvOverlay() != nil {
		t.Errorf("skipped session must have no overlay, got %v", sess.EnvOverlay())
	}
}

// recordingSink captures build-log error diagnostics.
type recordingSink struct {
	mu     sync.Mutex
	errors []string
}

func (s *recordingSink) Info(string) {}

func (s *recordingSink) Error(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, msg)
}

func TestBeginMaterializationFailureSkips(t *testing.T) {
	store := &fakeStore{user: []credentials.Candidate{{ID: "u1", Username: "alice", PrivateKey: []byte("k")}}}
	root := filepath.Join(t.TempDir(), "scratch")
	area, err := scratch.New(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Selection will succeed, but no secret file can be written.
	if err := os.RemoveAll(root); err != nil {
		t.Fatal(err)
	}

	policy := selection.NewPolicy(credentials.NewSource(store, nil), nil)
	w := NewWrapper(selection.Config{EnableUserLookup: true}, policy, area)

	base := &captureLauncher{}
	build := &fakeBuild{id: "b1", cause: userCause()}
	sink := &recordingSink{}

	sess := w.Begin(context.Background(), build, base, sink)

	if sess.State() != StateSkipped {
		t.Fatalf("state = %v, want skipped when materialization fails", sess.State())
	}
	if build.failures != 0 {
		t.Errorf("materialization failure must not fail the build, got %d", build.failures)
	}
	if sess.Launcher() != launcher.Launcher(base) {
		t.Error("failed materialization must pass the base launcher through undecorated")
	}
	if sess.EnvOverlay() != nil {
		t.Errorf("failed materialization must leave no overlay, got %v", sess.EnvOverlay())
	}

	found := false
	for _, msg := range sink.errors {
		if strings.Contains(msg, "Could not materialize credentials") {
			found = true
		}
	}
	if !found {
		t.Errorf("build log must explain the failure, got %q", sink.errors)
	}

	// Teardown still runs, and repeats are no-ops.
	sess.End(context.Background())
	sess.End(context.Background())
	if sess.State() != StateTornDown {
		t.Errorf("state = %v, want torndown", sess.State())
	}
}

func TestEndRemovesArtifactsAndIsIdempotent(t *testing.T) {
	w, _ := newTestWrapper(t,
		selection.Config{EnableUserLookup: true},
		&fakeStore{user: []credentials.Candidate{{ID: "u1", Username: "alice", PrivateKey: []byte("k")}}},
	)
	build := &fakeBuild{id: "b1", cause: userCause()}

	sess := w.Begin(context.Background(), build, &captureLauncher{}, diag.Discard)
	if sess.State() != StateBound {
		t.Fatal("expected bound session")
	}
	keyPath := sess.artifacts.KeyPath
	shimPath := sess.artifacts.ShimPath

	sess.End(context.Background())
	if sess.State() != StateTornDown {
		t.Errorf("state = %v, want torndown", sess.State())
	}
	if _, err := os.Stat(keyPath); !os.IsNotExist(err) {
		t.Error("key file must be deleted at step end")
	}
	if _, err := os.Stat(shimPath); !os.IsNotExist(err) {
		t.Error("shim script must be deleted at step end")
	}

	// Second End is a no-op.
	sess.End(context.Background())
	if sess.State() != StateTornDown {
		t.Errorf("state after second End = %v", sess.State())
	}
}

func TestEndRunsOnAbort(t *testing.T) {
	w, _ := newTestWrapper(t,
		selection.Config{EnableUserLookup: true},
		&fakeStore{user: []credentials.Candidate{{ID: "u1", Username: "alice", PrivateKey: []byte("k")}}},
	)
	build := &fakeBuild{id: "b1", cause: userCause()}

	ctx, cancel := context.WithCancel(context.Background())
	sess := w.Begin(ctx, build, &captureLauncher{}, diag.Discard)
	keyPath := sess.artifacts.KeyPath

	// Host aborts the step mid-flight; teardown must still complete.
	cancel()
	sess.End(ctx)

	if sess.State() != StateTornDown {
		t.Errorf("state = %v, want torndown after abort", sess.State())
	}
	if _, err := os.Stat(keyPath); !os.IsNotExist(err) {
		t.Error("key file must be deleted even on abort")
	}
}

func TestConcurrentBuildsGetDistinctArtifacts(t *testing.T) {
	store := &fakeStore{user: []credentials.Candidate{{ID: "u1", Username: "alice", PrivateKey: []byte("k")}}}
	w, _ := newTestWrapper(t, selection.Config{EnableUserLookup: true}, store)

	const n = 8
	sessions := make([]*Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			build := &fakeBuild{id: "b", cause: userCause()}
			sessions[i] = w.Begin(context.Background(), build, &captureLauncher{}, diag.Discard)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, sess := range sessions {
		if sess.State() != StateBound {
			t.Fatalf("state = %v", sess.State())
		}
		for _, path := range []string{sess.artifacts.KeyPath, sess.artifacts.ShimPath} {
			if seen[path] {
				t.Fatalf("artifact path reused across builds: %s", path)
			}
			seen[path] = true
		}
		sess.End(context.Background())
	}
}

func TestDescriptorListSystemCredentials(t *testing.T) {
	store := &fakeStore{system: []credentials.Candidate{
		{ID: "sys1", Username: "deploy", Description: "deploy key", PrivateKey: []byte("k")},
		{ID: "sys2", Username: "other", PrivateKey: []byte("k")},
	}}
	d := NewDescriptor(store)

	options, err := d.ListSystemCredentials(context.Background())
	if err != nil {
		t.Fatalf("ListSystemCredentials: %v", err)
	}
	if len(options) != 2 {
		t.Fatalf("got %d options, want 2", len(options))
	}
	if options[0].ID != "sys1" || options[0].DisplayLabel != "deploy key" {
		t.Errorf("options[0] = %+v, want description as label", options[0])
	}
	// Empty description falls back to the username.
	if options[1].ID != "sys2" || options[1].DisplayLabel != "other" {
		t.Errorf("options[1] = %+v, want username fallback", options[1])
	}
}

func TestDescriptorApplicability(t *testing.T) {
	d := NewDescriptor(&fakeStore{})
	if !d.IsApplicable("GitSCM") {
		t.Error("must apply to GitSCM")
	}
	if d.IsApplicable("SubversionSCM") {
		t.Error("must not apply to non-git SCMs")
	}
}
