// Package identity resolves the acting user for a build.
//
// The acting identity is always derived from the build's recorded cause —
// never from an ambient "current user" global. Under concurrent builds an
// ambient lookup can attribute the wrong user to a build, and a wrong
// attribution here means looking up the wrong person's SSH keys.
package identity

import "github.com/jkaninda/gitcreds/internal/credentials"

// Cause kinds recorded by the host when a build is triggered.
const (
	CauseUser  = "user"  // An identifiable user started the build.
	CauseTimer = "timer" // Scheduled trigger — no acting user.
	CauseSCM   = "scm"   // Commit hook trigger — no acting user.
)

// Cause describes what triggered a build.
type Cause struct {
	Kind   string // One of the Cause* constants.
	UserID string // Set only when Kind is CauseUser.
}

// Identity is an acting user eligible for credential impersonation.
type Identity struct {
	UserID      string
	DisplayName string
}

// FromCause returns the acting identity for a build cause, or nil when the
// build was not started by an identifiable user (timer, commit hook, or a
// missing cause record).
func FromCause(cause *Cause) *Identity {
	if cause == nil || cause.Kind != CauseUser || cause.UserID == "" {
		return nil
	}
	return &Identity{UserID: cause.UserID, DisplayName: cause.UserID}
}

// Impersonate returns the access context for store lookups scoped to this
// user's own credentials.
func (id *Identity) Impersonate() credentials.AccessContext {
	return credentials.ForUser(id.UserID)
}

// Display returns the name used in build-log diagnostics.
func (id *Identity) Display() string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	return id.UserID
}
