// Package snapshottest builds snapshot fixtures for tests.
package snapshottest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/wesm/contractlens/internal/snapshot"
	"github.com/wesm/contractlens/internal/testutil"
)

// Option adjusts a fixture build.
type Option func(*options)

type options struct {
	secondary   []testutil.Contract
	dropBuckets []string
}

// WithSecondary adds a secondary dataset built from contracts.
func WithSecondary(contracts []testutil.Contract) Option {
	return func(o *options) { o.secondary = contracts }
}

// WithoutBuckets removes the named buckets from the manifest after the
// build, simulating a snapshot with missing data.
func WithoutBuckets(keys ...string) Option {
	return func(o *options) { o.dropBuckets = append(o.dropBuckets, keys...) }
}

// Build builds and publishes a snapshot from contracts under a temp root
// and returns the opened store.
func Build(t *testing.T, contracts []testutil.Contract, opts ...Option) *snapshot.Store {
	t.Helper()
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	srcDir := t.TempDir()
	root := t.TempDir()
	buildOpts := snapshot.BuildOptions{
		Source:  testutil.WriteContractsCSV(t, srcDir, "facts.csv", contracts),
		Root:    root,
		Version: "v1",
		Publish: true,
	}
	if o.secondary != nil {
		buildOpts.SecondarySource = testutil.WriteContractsCSV(t, srcDir, "secondary.csv", o.secondary)
	}
	res, err := snapshot.Build(context.Background(), buildOpts)
	if err != nil {
		t.Fatalf("build snapshot: %v", err)
	}

	if len(o.dropBuckets) > 0 {
		dropManifestBuckets(t, res.Dir, res.Manifest, o.dropBuckets)
	}

	store, err := snapshot.OpenStore(root, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func dropManifestBuckets(t *testing.T, dir string, m *snapshot.Manifest, keys []string) {
	t.Helper()
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	kept := m.Buckets[:0]
	for _, b := range m.Buckets {
		if !drop[b.Key] {
			kept = append(kept, b)
		}
	}
	m.Buckets = kept
	data, err := m.Encode()
	if err != nil {
		t.Fatalf("encode manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, snapshot.ManifestFile), data, 0o644); err != nil {
		t.Fatalf("rewrite manifest: %v", err)
	}
}

// Republish builds contracts as version next beside the store's current
// version, publishes it and reloads the store onto it.
func Republish(t *testing.T, store *snapshot.Store, next string, contracts []testutil.Contract) {
	t.Helper()
	root := filepath.Dir(store.Current().Dir())
	src := testutil.WriteContractsCSV(t, t.TempDir(), "facts.csv", contracts)
	if _, err := snapshot.Build(context.Background(), snapshot.BuildOptions{
		Source:  src,
		Root:    root,
		Version: next,
		Publish: true,
	}); err != nil {
		t.Fatalf("build snapshot %s: %v", next, err)
	}
	swapped, err := store.Reload(context.Background())
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	if !swapped {
		t.Fatalf("reload did not swap to %s", next)
	}
}

// MoreContracts returns AcmeContracts plus one contract per listed
// contractor, dated inside the same domain.
func MoreContracts(contractors ...string) []testutil.Contract {
	out := testutil.AcmeContracts()
	for i, name := range contractors {
		out = append(out, testutil.Contract{
			RefID:        fmt.Sprintf("R-9%02d", i+1),
			Number:       fmt.Sprintf("C-9%02d", i+1),
			Title:        "Added after reload",
			Contractor:   name,
			Organization: "DepEd",
			Area:         "Leyte",
			Category:     "Goods",
			Amount:       "10.00",
			Date:         "2021-04-01",
		})
	}
	return out
}
