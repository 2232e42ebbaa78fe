// Package snapshot owns the immutable, versioned Parquet data that queries
// read: an all-time fact table, per-year fact tables, and per-bucket entity
// rollups at all-time, year and quarter granularity. A Store holds the
// current version behind an atomic pointer so readers never lock.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
)

// CurrentFile names the file in a snapshot root that points at the active
// version directory.
const CurrentFile = "CURRENT"

const (
	allTimeFactsFile = "facts_all_time.parquet"
	bucketFactsFile  = "facts.parquet"
	secondaryDir     = "secondary"
)

// Snapshot is one opened, immutable snapshot version.
type Snapshot struct {
	dir      string
	manifest *Manifest
	domain   Domain
	buckets  map[string]BucketInfo
}

// Open reads the manifest in dir and returns the snapshot it describes.
func Open(dir string) (*Snapshot, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	domain, err := m.Domain()
	if err != nil {
		return nil, err
	}
	buckets := make(map[string]BucketInfo, len(m.Buckets))
	for _, b := range m.Buckets {
		if _, err := ParseBucketKey(b.Key); err != nil {
			return nil, fmt.Errorf("manifest: %w", err)
		}
		buckets[b.Key] = b
	}
	return &Snapshot{dir: dir, manifest: m, domain: domain, buckets: buckets}, nil
}

// Dir returns the snapshot's directory.
func (s *Snapshot) Dir() string { return s.dir }

// Version returns the manifest version string.
func (s *Snapshot) Version() string { return s.manifest.Version }

// Manifest returns the decoded manifest. Callers must not modify it.
func (s *Snapshot) Manifest() *Manifest { return s.manifest }

// Domain returns the inclusive date range covered by the snapshot.
func (s *Snapshot) Domain() Domain { return s.domain }

// Bucket returns the manifest entry for b.
func (s *Snapshot) Bucket(b Bucket) (BucketInfo, bool) {
	info, ok := s.buckets[b.Key()]
	return info, ok
}

// HasRollup reports whether the manifest declares a rollup of d for b.
func (s *Snapshot) HasRollup(b Bucket, d Dimension) bool {
	info, ok := s.buckets[b.Key()]
	return ok && slices.Contains(info.Rollups, d)
}

// HasFacts reports whether the manifest declares a fact table for b.
func (s *Snapshot) HasFacts(b Bucket) bool {
	info, ok := s.buckets[b.Key()]
	return ok && info.HasFacts
}

// RollupPath returns the Parquet path of the d rollup for b.
func (s *Snapshot) RollupPath(b Bucket, d Dimension) string {
	return filepath.Join(s.dir, b.Dir(), "agg_"+string(d)+".parquet")
}

// FactsPath returns the Parquet path of the fact table for b. Only the
// all-time and year buckets carry fact tables.
func (s *Snapshot) FactsPath(b Bucket) string {
	if b.Granularity == AllTime {
		return filepath.Join(s.dir, allTimeFactsFile)
	}
	return filepath.Join(s.dir, b.Dir(), bucketFactsFile)
}

// SecondaryFactsPath returns the secondary dataset's fact table, if the
// manifest declares one.
func (s *Snapshot) SecondaryFactsPath() (string, bool) {
	if s.manifest.Secondary == nil {
		return "", false
	}
	return secondaryFactsPath(s.dir), true
}

func secondaryFactsPath(dir string) string {
	return filepath.Join(dir, secondaryDir, bucketFactsFile)
}

// Years returns the year buckets present in the manifest, ascending.
func (s *Snapshot) Years() []int {
	var years []int
	for key := range s.buckets {
		b, _ := ParseBucketKey(key)
		if b.Granularity == Yearly {
			years = append(years, b.Year)
		}
	}
	slices.Sort(years)
	return years
}

// Quarters returns the quarter buckets present in the manifest, in time order.
func (s *Snapshot) Quarters() []Bucket {
	var quarters []Bucket
	for key := range s.buckets {
		b, _ := ParseBucketKey(key)
		if b.Granularity == Quarterly {
			quarters = append(quarters, b)
		}
	}
	slices.SortFunc(quarters, func(a, b Bucket) int {
		if a.Year != b.Year {
			return a.Year - b.Year
		}
		return a.Quarter - b.Quarter
	})
	return quarters
}

// Store holds the current snapshot and swaps it atomically when the
// ingestion pipeline publishes a new version.
type Store struct {
	root    string
	current atomic.Pointer[Snapshot]
	logger  *slog.Logger
}

// NewStore wraps an already opened snapshot. Reload is a no-op for stores
// created this way.
func NewStore(snap *Snapshot) *Store {
	s := &Store{logger: slog.Default()}
	s.current.Store(snap)
	return s
}

// OpenStore opens the version named by root/CURRENT. If root has no CURRENT
// file but contains a manifest, root itself is the snapshot.
func OpenStore(root string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{root: root, logger: logger}
	dir, err := s.resolveCurrent()
	if err != nil {
		return nil, err
	}
	snap, err := Open(dir)
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	logger.Info("snapshot opened", "version", snap.Version(), "dir", dir)
	return s, nil
}

// Current returns the active snapshot. The returned value is immutable and
// stays valid after a swap.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Swap installs snap as current and returns the previous snapshot.
func (s *Store) Swap(snap *Snapshot) *Snapshot {
	return s.current.Swap(snap)
}

// Reload re-reads root/CURRENT and swaps in the named version if it differs
// from the active one. It reports whether a swap happened.
func (s *Store) Reload(ctx context.Context) (bool, error) {
	if s.root == "" {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, err := s.resolveCurrent()
	if err != nil {
		return false, err
	}
	next, err := Open(dir)
	if err != nil {
		return false, err
	}
	prev := s.Current()
	if prev != nil && prev.Version() == next.Version() {
		return false, nil
	}
	s.Swap(next)
	prevVersion := ""
	if prev != nil {
		prevVersion = prev.Version()
	}
	s.logger.Info("snapshot swapped", "from", prevVersion, "to", next.Version())
	return true, nil
}

func (s *Store) resolveCurrent() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, CurrentFile))
	if errors.Is(err, os.ErrNotExist) {
		if _, statErr := os.Stat(filepath.Join(s.root, ManifestFile)); statErr == nil {
			return s.root, nil
		}
		return "", fmt.Errorf("no snapshot in %s: missing %s and %s", s.root, CurrentFile, ManifestFile)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", CurrentFile, err)
	}
	version := strings.TrimSpace(string(data))
	if version == "" || strings.ContainsAny(version, `/\`) || version == "." || version == ".." {
		return "", fmt.Errorf("invalid snapshot version %q in %s", version, CurrentFile)
	}
	return filepath.Join(s.root, version), nil
}
