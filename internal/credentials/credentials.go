// Package credentials defines the SSH private-key credential model and the
// store interface the build-step extension resolves against.
//
// Private-key material never reaches a log sink: Candidate implements
// slog.LogValuer and redacts the key, and the diagnostics layer only ever
// receives IDs and usernames.
package credentials

import (
	"context"
	"errors"
	"log/slog"
)

// Kind classifies credential entries in the store.
type Kind string

// KindSSHPrivateKey is the only kind this extension resolves — private keys
// usable for git-over-SSH.
const KindSSHPrivateKey Kind = "ssh-private-key"

// ErrNotFound is returned by store operations that target a specific
// credential ID which does not exist.
var ErrNotFound = errors.New("credential not found")

// AccessContext scopes a store lookup. Lookups run either under an
// impersonated user or under the elevated system context; there is no
// ambient "current user".
type AccessContext struct {
	system bool
	userID string
}

// System returns the elevated, job-independent access context.
func System() AccessContext {
	return AccessContext{system: true}
}

// ForUser returns an access context impersonating the given user.
func ForUser(userID string) AccessContext {
	return AccessContext{userID: userID}
}

// IsSystem reports whether this is the elevated system context.
func (a AccessContext) IsSystem() bool { return a.system }

// UserID returns the impersonated user, or "" for the system context.
func (a AccessContext) UserID() string { return a.userID }

// Candidate is a resolvable SSH private-key credential.
type Candidate struct {
	ID          string // Stable identifier in the credential store.
	Username    string // SSH username the key authenticates as.
	Description string // Optional human-readable label.
	PrivateKey  []byte // Raw key material. Sensitive — never logged, never serialized.
}

// DisplayLabel returns the description, falling back to the username when
// the description is empty. Used for UI form population.
func (c Candidate) DisplayLabel() string {
	if c.Description == "" {
		return c.Username
	}
	return c.Description
}

// LogValue redacts the private key so a Candidate accidentally handed to
// slog exposes nothing sensitive.
func (c Candidate) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", c.ID),
		slog.String("username", c.Username),
		slog.String("private_key", "[REDACTED]"),
	)
}

// Option is the read-only UI projection of a credential: just enough to
// populate a selection list, with no key material attached.
type Option struct {
	ID           string `json:"id"`
	DisplayLabel string `json:"display_label"`
}

// Store is the host credential store. Lookup order is store-defined
// (insertion order for the bundled backends) and must be preserved by
// implementations — selection depends on it.
// Implementations must be safe for concurrent use.
type Store interface {
	// Lookup returns all credentials of the given kind visible to the
	// access context. An empty result is not an error.
	Lookup(ctx context.Context, kind Kind, access AccessContext) ([]Candidate, error)
}
