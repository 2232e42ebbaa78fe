package testutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes content to dir/name, creating parent directories, and
// returns the full path. name must be local to dir.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	if !filepath.IsLocal(name) {
		t.Fatalf("WriteFile: %q is not a local path", name)
	}
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// ReadFile returns the contents of path.
func ReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

// MustExist fails the test unless path can be stat'ed.
func MustExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}

// MustNotExist fails the test if path exists or cannot be checked.
func MustNotExist(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	switch {
	case err == nil:
		t.Fatalf("expected %s to not exist", path)
	case !errors.Is(err, fs.ErrNotExist):
		t.Fatalf("stat %s: %v", path, err)
	}
}
