package selection

import (
	"context"
	"strings"
	"testing"

	"github.com/jkaninda/gitcreds/internal/credentials"
	"github.com/jkaninda/gitcreds/internal/diag"
	"github.com/jkaninda/gitcreds/internal/identity"
)

// fakeStore serves canned candidates per access scope.
type fakeStore struct {
	user   map[string][]credentials.Candidate // keyed by user ID
	system []credentials.Candidate
}

func (f *fakeStore) Lookup(_ context.Context, _ credentials.Kind, access credentials.AccessContext) ([]credentials.Candidate, error) {
	if access.IsSystem() {
		return f.system, nil
	}
	return f.user[access.UserID()], nil
}

// countingOutcome records SetFailure invocations.
type countingOutcome struct {
	failures int
}

func (o *countingOutcome) SetFailure() { o.failures++ }

func newPolicy(store credentials.Store) *Policy {
	return NewPolicy(credentials.NewSource(store, nil), nil)
}

func cand(id, username string) credentials.Candidate {
	return credentials.Candidate{ID: id, Username: username, PrivateKey: []byte("key-" + id)}
}

func TestSelectNothingEnabled(t *testing.T) {
	policy := newPolicy(&fakeStore{
		user:   map[string][]credentials.Candidate{"alice": {cand("u1", "alice")}},
		system: []credentials.Candidate{cand("sys1", "deploy")},
	})
	outcome := &countingOutcome{}
	var log strings.Builder

	res := policy.Select(context.Background(), Config{}, &identity.Identity{UserID: "alice"}, outcome, diag.NewLineSink(&log))

	if res != nil {
		t.Fatalf("expected no selection, got %+v", res)
	}
	if outcome.failures != 0 {
		t.Errorf("no failure expected, got %d", outcome.failures)
	}
	for _, want := range []string{
		"No user credential lookup configured",
		"No system credential lookup configured",
		"No usable credentials were found",
	} {
		if !strings.Contains(log.String(), want) {
			t.Errorf("missing diagnostic %q in:\n%s", want, log.String())
		}
	}
}

func TestSelectUserPrecedesSystem(t *testing.T) {
	policy := newPolicy(&fakeStore{
		user:   map[string][]credentials.Candidate{"alice": {cand("u1", "alice")}},
		system: []credentials.Candidate{cand("sys1", "deploy")},
	})
	outcome := &countingOutcome{}
	var log strings.Builder

	cfg := Config{EnableUserLookup: true, EnableSystemLookup: true, SystemCredentialID: "sys1"}
	res := policy.Select(context.Background(), cfg, &identity.Identity{UserID: "alice"}, outcome, diag.NewLineSink(&log))

	if res == nil {
		t.Fatal("expected a selection")
	}
	if res.Candidate.ID != "u1" {
		t.Errorf("got %q, want user-scoped candidate u1", res.Candidate.ID)
	}
	if !res.Ambiguous {
		t.Error("two eligible candidates should be flagged ambiguous")
	}
	if !strings.Contains(log.String(), "more than one usable credential, using credentials for username alice") {
		t.Errorf("missing ambiguity diagnostic in:\n%s", log.String())
	}
}

func TestSelectFailBuildIfNoUserCredential(t *testing.T) {
	policy := newPolicy(&fakeStore{})
	outcome := &countingOutcome{}
	var log strings.Builder

	cfg := Config{EnableUserLookup: true, FailBuildIfNoUserCredential: true}
	res := policy.Select(context.Background(), cfg, &identity.Identity{UserID: "alice"}, outcome, diag.NewLineSink(&log))

	if res != nil {
		t.Fatalf("expected no selection, got %+v", res)
	}
	if outcome.failures != 1 {
		t.Errorf("SetFailure must be invoked exactly once, got %d", outcome.failures)
	}
	if !strings.Contains(log.String(), "No credentials found for user alice") {
		t.Errorf("missing failure diagnostic in:\n%s", log.String())
	}
}

func TestSelectFailPolicyStillRunsSystemLookup(t *testing.T) {
	policy := newPolicy(&fakeStore{
		system: []credentials.Candidate{cand("sys1", "deploy")},
	})
	outcome := &countingOutcome{}

	cfg := Config{
		EnableUserLookup:            true,
		FailBuildIfNoUserCredential: true,
		EnableSystemLookup:          true,
		SystemCredentialID:          "sys1",
	}
	res := policy.Select(context.Background(), cfg, &identity.Identity{UserID: "alice"}, outcome, diag.Discard)

	// The build is marked failed, but evaluation continues and the system
	// credential is still selected.
	if outcome.failures != 1 {
		t.Errorf("SetFailure must be invoked exactly once, got %d", outcome.failures)
	}
	if res == nil || res.Candidate.ID != "sys1" {
		t.Fatalf("expected sys1 selection, got %+v", res)
	}
}

func TestSelectSystemFilterByID(t *testing.T) {
	policy := newPolicy(&fakeStore{
		system: []credentials.Candidate{cand("sys1", "deploy"), cand("sys2", "other")},
	})
	outcome := &countingOutcome{}

	cfg := Config{EnableUserLookup: true, EnableSystemLookup: true, SystemCredentialID: "sys1"}
	res := policy.Select(context.Background(), cfg, &identity.Identity{UserID: "alice"}, outcome, diag.Discard)

	if res == nil {
		t.Fatal("expected a selection")
	}
	if res.Candidate.ID != "sys1" || res.Candidate.Username != "deploy" {
		t.Errorf("got %q/%q, want sys1/deploy", res.Candidate.ID, res.Candidate.Username)
	}
	if res.Ambiguous {
		t.Error("only one candidate matched the configured ID; not ambiguous")
	}
	if outcome.failures != 0 {
		t.Errorf("fail policy disabled, got %d failures", outcome.failures)
	}
}

func TestSelectNoIdentityFallsThroughToSystem(t *testing.T) {
	policy := newPolicy(&fakeStore{
		system: []credentials.Candidate{cand("sys1", "deploy")},
	})
	outcome := &countingOutcome{}
	var log strings.Builder

	cfg := Config{
		EnableUserLookup:            true,
		FailBuildIfNoUserCredential: true, // Must not fire without an identity.
		EnableSystemLookup:          true,
		SystemCredentialID:          "sys1",
	}
	res := policy.Select(context.Background(), cfg, nil, outcome, diag.NewLineSink(&log))

	if res == nil || res.Candidate.ID != "sys1" {
		t.Fatalf("expected sys1 selection, got %+v", res)
	}
	if outcome.failures != 0 {
		t.Errorf("missing identity is not a failure, got %d", outcome.failures)
	}
	if !strings.Contains(log.String(), "Job must be started by a user for user credentials") {
		t.Errorf("missing identity diagnostic in:\n%s", log.String())
	}
}

func TestSelectPreservesStoreOrderWithinSource(t *testing.T) {
	policy := newPolicy(&fakeStore{
		user: map[string][]credentials.Candidate{
			"alice": {cand("u2", "second"), cand("u1", "first")},
		},
	})

	cfg := Config{EnableUserLookup: true}
	res := policy.Select(context.Background(), cfg, &identity.Identity{UserID: "alice"}, &countingOutcome{}, diag.Discard)

	if res == nil {
		t.Fatal("expected a selection")
	}
	// Store returned u2 first; the policy must not re-sort.
	if res.Candidate.ID != "u2" {
		t.Errorf("got %q, want u2 (store order preserved)", res.Candidate.ID)
	}
}
