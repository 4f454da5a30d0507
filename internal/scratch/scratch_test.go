package scratch

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestArea(t *testing.T) *Area {
	t.Helper()
	area, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return area
}

func TestCreateUniqueFilePermissions(t *testing.T) {
	area := newTestArea(t)

	path, err := area.CreateUniqueFile("key", ".pem")
	if err != nil {
		t.Fatalf("CreateUniqueFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != fs.FileMode(0600) {
		t.Errorf("got perm %o, want 0600", perm)
	}
}

func TestCreateUniqueFileNoCollisions(t *testing.T) {
	area := newTestArea(t)

	const n = 50
	paths := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path, err := area.CreateUniqueFile("key", ".pem")
			if err != nil {
				t.Errorf("CreateUniqueFile: %v", err)
				return
			}
			paths <- path
		}()
	}
	wg.Wait()
	close(paths)

	seen := make(map[string]bool)
	for path := range paths {
		if seen[path] {
			t.Fatalf("colliding path allocated: %s", path)
		}
		seen[path] = true
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	area := newTestArea(t)

	path, err := area.CreateUniqueFile("gitSSH", ".sh")
	if err != nil {
		t.Fatalf("CreateUniqueFile: %v", err)
	}
	if err := area.Delete(path); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if err := area.Delete(path); err != nil {
		t.Errorf("second Delete must be a no-op, got %v", err)
	}
}

func TestRejectsPathOutsideArea(t *testing.T) {
	area := newTestArea(t)

	outside := filepath.Join(t.TempDir(), "victim")
	if err := os.WriteFile(outside, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := area.Delete(outside); err == nil {
		t.Error("Delete outside area must fail")
	}
	if err := area.WriteBytes(outside, []byte("y")); err == nil {
		t.Error("WriteBytes outside area must fail")
	}
}

func TestJanitorSweepRemovesOnlyStaleFiles(t *testing.T) {
	area := newTestArea(t)

	stale, err := area.CreateUniqueFile("key", ".pem")
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := area.CreateUniqueFile("gitSSH", ".sh")
	if err != nil {
		t.Fatal(err)
	}

	old := time.Now().Add(-10 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	j := NewJanitor(area, JanitorConfig{MaxAge: 6 * time.Hour}, nil)
	removed, err := j.Sweep(time.Now())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("got removed=%d, want 1", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale file should be gone")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh file should survive: %v", err)
	}
}
