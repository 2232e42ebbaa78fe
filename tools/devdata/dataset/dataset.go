// Package dataset manages the snapshot versions under a contractlens
// snapshot root: generating synthetic ones, listing them, switching the
// published version and pruning old ones.
package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/wesm/contractlens/internal/snapshot"
)

var validVersion = regexp.MustCompile(`^[a-zA-Z0-9_-][a-zA-Z0-9._-]*$`)

// ValidateVersion checks that version is usable as a directory name
// directly below the snapshot root.
func ValidateVersion(version string) error {
	if version == "" {
		return errors.New("version must not be empty")
	}
	if version == "." || version == ".." || !validVersion.MatchString(version) {
		return fmt.Errorf("version %q contains invalid characters; only letters, digits, dots, hyphens, and underscores are allowed", version)
	}
	return nil
}

// VersionInfo describes one version directory under a snapshot root.
type VersionInfo struct {
	Version     string
	Dir         string
	Current     bool      // named by CURRENT
	Complete    bool      // has a readable manifest
	GeneratedAt time.Time // zero when incomplete
	MinDate     string
	MaxDate     string
	Rows        int64 // all-time primary facts
	Secondary   int64 // secondary facts, 0 when absent
	Size        int64 // bytes on disk
}

// Exists reports whether the path exists (follows symlinks).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CurrentVersion returns the version named by root/CURRENT, or "".
func CurrentVersion(root string) string {
	data, err := os.ReadFile(filepath.Join(root, snapshot.CurrentFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// DirSize returns the total size of the regular files under dir.
func DirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}

// ListVersions enumerates the version directories under root, newest
// first. Directories without a manifest are reported as incomplete; they
// are left behind by interrupted builds. A missing root lists nothing.
func ListVersions(root string) ([]VersionInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot root: %w", err)
	}
	current := CurrentVersion(root)

	var versions []VersionInfo
	for _, e := range entries {
		// Dot directories hold in-progress generator scratch files.
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, e.Name())
		v := VersionInfo{
			Version: e.Name(),
			Dir:     dir,
			Current: e.Name() == current,
			Size:    DirSize(dir),
		}
		if m, err := snapshot.ReadManifest(dir); err == nil {
			v.Complete = true
			v.GeneratedAt = m.GeneratedAt
			v.MinDate, v.MaxDate = m.MinDate, m.MaxDate
			for _, b := range m.Buckets {
				if b.Key == snapshot.AllTimeBucket().Key() {
					v.Rows = b.RowCount
				}
			}
			if m.Secondary != nil {
				v.Secondary = m.Secondary.RowCount
			}
		}
		versions = append(versions, v)
	}

	sort.Slice(versions, func(i, j int) bool {
		a, b := versions[i], versions[j]
		if !a.GeneratedAt.Equal(b.GeneratedAt) {
			return a.GeneratedAt.After(b.GeneratedAt)
		}
		return a.Version > b.Version
	})
	return versions, nil
}

// Use publishes an existing version by rewriting root/CURRENT.
func Use(root, version string) error {
	if err := ValidateVersion(version); err != nil {
		return err
	}
	if !Exists(filepath.Join(root, version)) {
		return fmt.Errorf("version %s does not exist under %s", version, root)
	}
	return snapshot.Publish(root, version)
}

// Prune selects the versions to remove so that at most keep complete
// versions remain besides the current one. Incomplete versions are always
// selected and the current version never is. Unless dryRun is set the
// selected directories are deleted.
func Prune(root string, keep int, dryRun bool) ([]VersionInfo, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep must not be negative, got %d", keep)
	}
	versions, err := ListVersions(root)
	if err != nil {
		return nil, err
	}

	var doomed []VersionInfo
	kept := 0
	for _, v := range versions {
		switch {
		case v.Current:
		case !v.Complete:
			doomed = append(doomed, v)
		case kept < keep:
			kept++
		default:
			doomed = append(doomed, v)
		}
	}
	if dryRun {
		return doomed, nil
	}
	for _, v := range doomed {
		if err := os.RemoveAll(v.Dir); err != nil {
			return nil, fmt.Errorf("remove %s: %w", v.Version, err)
		}
	}
	return doomed, nil
}
