// Package shim materializes a selected credential as two on-disk artifacts:
// the raw private key and an executable script that wraps the SSH client
// with that key. The script is a drop-in SSH substitute — pointing GIT_SSH
// at it makes every git-over-SSH connection authenticate with the
// materialized key.
//
// Artifacts are strictly per build step: created after a successful
// selection, owned by that step alone, and removed at step end. The key
// bytes are written exactly once and never copied elsewhere.
package shim

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jkaninda/gitcreds/internal/credentials"
	"github.com/jkaninda/gitcreds/internal/diag"
	"github.com/jkaninda/gitcreds/internal/scratch"
)

// Artifacts holds the two on-disk paths for one build step.
type Artifacts struct {
	KeyPath  string // Raw private-key bytes, mode 0600.
	ShimPath string // Executable SSH wrapper script, mode 0700.

	removed atomic.Bool
}

// Materialize writes the candidate's key and the SSH shim script into the
// scratch area under fresh unique names. On any failure it cleans up
// whatever it already created and returns the error — the caller treats
// that the same as having found no credentials.
func Materialize(area *scratch.Area, cand credentials.Candidate) (*Artifacts, error) {
	keyPath, err := area.CreateUniqueFile("key", ".pem")
	if err != nil {
		return nil, fmt.Errorf("creating key file: %w", err)
	}
	if err := area.WriteBytes(keyPath, cand.PrivateKey); err != nil {
		_ = area.Delete(keyPath)
		return nil, fmt.Errorf("writing key file: %w", err)
	}

	shimPath, err := area.CreateUniqueFile("gitSSH", ".sh")
	if err != nil {
		_ = area.Delete(keyPath)
		return nil, fmt.Errorf("creating shim script: %w", err)
	}
	script := fmt.Sprintf("#!/bin/sh\nssh -i %s \"$@\"\n", keyPath)
	if err := area.WriteBytes(shimPath, []byte(script)); err != nil {
		_ = area.Delete(keyPath)
		_ = area.Delete(shimPath)
		return nil, fmt.Errorf("writing shim script: %w", err)
	}
	if err := area.MakeExecutable(shimPath); err != nil {
		_ = area.Delete(keyPath)
		_ = area.Delete(shimPath)
		return nil, fmt.Errorf("marking shim executable: %w", err)
	}

	return &Artifacts{KeyPath: keyPath, ShimPath: shimPath}, nil
}

// Remove deletes the key file, then the shim script. Idempotent: repeated
// calls do nothing. Deletion failures are reported to the build log and
// returned for accounting only — a stuck file must not fail the build, and
// the scratch janitor will reclaim it later.
func (a *Artifacts) Remove(area *scratch.Area, sink diag.Sink) error {
	if !a.removed.CompareAndSwap(false, true) {
		return nil
	}
	var keyErr, shimErr error
	if keyErr = area.Delete(a.KeyPath); keyErr != nil {
		sink.Error(fmt.Sprintf("Could not delete key file: %v", keyErr))
	}
	if shimErr = area.Delete(a.ShimPath); shimErr != nil {
		sink.Error(fmt.Sprintf("Could not delete SSH wrapper script: %v", shimErr))
	}
	return errors.Join(keyErr, shimErr)
}
