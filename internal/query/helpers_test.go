package query

import (
	"testing"
	"time"

	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/snapshot"
	"github.com/wesm/contractlens/internal/testutil"
	"github.com/wesm/contractlens/internal/testutil/snapshottest"
)

// newTestEngine builds a snapshot from contracts and opens an engine on it.
func newTestEngine(t *testing.T, contracts []testutil.Contract, opts ...snapshottest.Option) (*DuckDBEngine, *snapshot.Store) {
	t.Helper()
	store := snapshottest.Build(t, contracts, opts...)
	e, err := NewDuckDBEngine(store, Options{Timeout: 30 * time.Second, MaxConcurrentReads: 2, Threads: 1})
	if err != nil {
		t.Fatalf("NewDuckDBEngine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e, store
}

// chipsFor normalizes raw against domain, failing the test on error.
func chipsFor(t *testing.T, domain snapshot.Domain, raw filter.Raw) *filter.ChipSet {
	t.Helper()
	chips, err := filter.Normalize(raw, domain)
	if err != nil {
		t.Fatalf("Normalize(%+v): %v", raw, err)
	}
	return chips
}

func year(y string) []string { return []string{y + "-01-01", y + "-12-31"} }

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(snapshot.DateLayout, s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func bucketKeys(buckets []snapshot.Bucket) []string {
	keys := make([]string, len(buckets))
	for i, b := range buckets {
		keys[i] = b.Key()
	}
	return keys
}

func rowNames(rows []AggregateRow) []string {
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.Name
	}
	return names
}

func refIDs(contracts []Contract) []string {
	ids := make([]string, len(contracts))
	for i, c := range contracts {
		ids[i] = c.ReferenceID
	}
	return ids
}
