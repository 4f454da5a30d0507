// Package scratch manages the shared temporary area where per-build secret
// artifacts live.
//
// The area is shared by every concurrently running build; correctness
// depends entirely on allocated filenames never colliding. Names embed a
// fresh UUID and files are created with O_EXCL, so no cross-build locking
// is needed.
package scratch

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Area is a scoped temp directory with unique-name file allocation.
// Safe for concurrent use.
type Area struct {
	root   string
	logger *slog.Logger
}

// New creates an Area rooted at dir, creating the directory with owner-only
// permissions if it does not exist.
func New(dir string, logger *slog.Logger) (*Area, error) {
	if dir == "" {
		return nil, fmt.Errorf("scratch dir is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating scratch dir %s: %w", dir, err)
	}
	return &Area{root: dir, logger: logger}, nil
}

// Root returns the area's directory.
func (a *Area) Root() string { return a.root }

// CreateUniqueFile allocates a new empty file named prefix-<uuid>suffix with
// owner-only permissions and returns its path. The file is created with
// O_EXCL: if the generated name somehow exists already the allocation fails
// rather than reusing another build's file.
func (a *Area) CreateUniqueFile(prefix, suffix string) (string, error) {
	name := prefix + "-" + uuid.NewString() + suffix
	path := filepath.Join(a.root, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", fmt.Errorf("allocating scratch file %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing scratch file %s: %w", name, err)
	}
	return path, nil
}

// WriteBytes writes data to a previously allocated scratch file, keeping
// owner-only permissions. The path must be inside the area.
func (a *Area) WriteBytes(path string, data []byte) error {
	if err := a.checkPath(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing scratch file: %w", err)
	}
	return nil
}

// MakeExecutable marks a scratch file owner-executable. Used for shim
// scripts that the SSH client invocation will exec.
func (a *Area) MakeExecutable(path string) error {
	if err := a.checkPath(path); err != nil {
		return err
	}
	if err := os.Chmod(path, 0700); err != nil {
		return fmt.Errorf("marking scratch file executable: %w", err)
	}
	return nil
}

// Delete removes a scratch file. Deleting a file that is already gone is
// not an error — teardown must be idempotent.
func (a *Area) Delete(path string) error {
	if err := a.checkPath(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting scratch file: %w", err)
	}
	return nil
}

// checkPath rejects paths outside the area root. The area only ever hands
// out paths it allocated; anything else is a caller bug.
func (a *Area) checkPath(path string) error {
	rel, err := filepath.Rel(a.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %s is outside scratch area %s", path, a.root)
	}
	return nil
}
