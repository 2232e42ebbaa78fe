package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/testutil"
	"golang.org/x/text/encoding/charmap"
)

func buildFixture(t *testing.T, contracts []testutil.Contract, version string, publish bool, root string) *BuildResult {
	t.Helper()
	src := testutil.WriteContractsCSV(t, t.TempDir(), "facts.csv", contracts)
	res, err := Build(context.Background(), BuildOptions{
		Source:  src,
		Root:    root,
		Version: version,
		Publish: publish,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return res
}

type rollupRow struct {
	Entity string
	Count  int64
	Total  string
}

func readRollup(t *testing.T, path string) []rollupRow {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	defer db.Close()
	rows, err := db.Query(fmt.Sprintf(
		"SELECT entity, contract_count, CAST(total_value AS VARCHAR) FROM read_parquet('%s') ORDER BY entity",
		escapeSQLString(path)))
	if err != nil {
		t.Fatalf("read rollup %s: %v", path, err)
	}
	defer rows.Close()
	var out []rollupRow
	for rows.Next() {
		var r rollupRow
		if err := rows.Scan(&r.Entity, &r.Count, &r.Total); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	return out
}

func TestBuild_ManifestTotals(t *testing.T) {
	root := t.TempDir()
	res := buildFixture(t, testutil.AcmeContracts(), "v1", false, root)
	m := res.Manifest

	if m.MinDate != "2020-01-01" || m.MaxDate != "2021-12-31" {
		t.Errorf("domain = %s..%s, want 2020-01-01..2021-12-31", m.MinDate, m.MaxDate)
	}
	if len(m.Buckets) != 11 {
		t.Fatalf("got %d buckets, want 11 (all + 2 years + 8 quarters)", len(m.Buckets))
	}

	want := map[string]struct {
		rows  int64
		total string
	}{
		"all":     {7, "1735.75"},
		"2020":    {4, "1600.5"},
		"2021":    {3, "135.25"},
		"2020-q2": {1, "1000.5"},
		"2021-q2": {0, "0"},
	}
	for _, b := range m.Buckets {
		w, ok := want[b.Key]
		if !ok {
			continue
		}
		if b.RowCount != w.rows {
			t.Errorf("bucket %s rows = %d, want %d", b.Key, b.RowCount, w.rows)
		}
		if !b.TotalValue.Equal(decimal.RequireFromString(w.total)) {
			t.Errorf("bucket %s total = %s, want %s", b.Key, b.TotalValue, w.total)
		}
		if len(b.Rollups) != len(Dimensions) {
			t.Errorf("bucket %s has %d rollups, want %d", b.Key, len(b.Rollups), len(Dimensions))
		}
	}

	// Quarter rows add up to their year.
	var q2020 int64
	for _, b := range m.Buckets {
		if len(b.Key) == 7 && b.Key[:4] == "2020" {
			q2020 += b.RowCount
		}
	}
	if q2020 != 4 {
		t.Errorf("2020 quarter rows sum to %d, want 4", q2020)
	}

	snap, err := Open(res.Dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !snap.HasFacts(YearBucket(2020)) || snap.HasFacts(QuarterBucket(2020, 1)) {
		t.Error("facts should exist for years only, not quarters")
	}
	testutil.MustExist(t, snap.FactsPath(AllTimeBucket()))
	testutil.MustExist(t, snap.RollupPath(QuarterBucket(2021, 2), Area))
	testutil.MustNotExist(t, filepath.Join(root, CurrentFile))
}

func TestBuild_ContractorRollup(t *testing.T) {
	res := buildFixture(t, testutil.AcmeContracts(), "v1", false, t.TempDir())
	snap, err := Open(res.Dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	got := readRollup(t, snap.RollupPath(AllTimeBucket(), Contractor))
	want := []rollupRow{
		{"ACME CORP", 3, "350.00"},
		{"Beta Supplies", 1, "1000.50"},
		{"Gamma Builders", 2, "375.25"},
		{UnspecifiedEntity, 1, "10.00"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("all-time contractor rollup mismatch (-want +got):\n%s", diff)
	}

	got = readRollup(t, snap.RollupPath(YearBucket(2020), Contractor))
	want = []rollupRow{
		{"ACME CORP", 2, "300.00"},
		{"Beta Supplies", 1, "1000.50"},
		{"Gamma Builders", 1, "300.00"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("2020 contractor rollup mismatch (-want +got):\n%s", diff)
	}

	if got := readRollup(t, snap.RollupPath(QuarterBucket(2021, 2), Contractor)); len(got) != 0 {
		t.Errorf("empty quarter rollup has %d rows", len(got))
	}
}

func TestBuild_DropsUnparseableRows(t *testing.T) {
	contracts := append(testutil.AcmeContracts(),
		testutil.Contract{RefID: "BAD-1", Contractor: "Delta", Amount: "n/a", Date: "2020-02-02"},
		testutil.Contract{RefID: "BAD-2", Contractor: "Delta", Amount: "5", Date: "someday"},
		testutil.Contract{RefID: "", Contractor: "Delta", Amount: "5", Date: "2020-02-02"},
	)
	res := buildFixture(t, contracts, "v1", false, t.TempDir())
	for _, b := range res.Manifest.Buckets {
		if b.Key == "all" && b.RowCount != 7 {
			t.Errorf("all-time rows = %d, want 7", b.RowCount)
		}
	}
}

func TestBuild_Secondary(t *testing.T) {
	dir := t.TempDir()
	src := testutil.WriteContractsCSV(t, dir, "facts.csv", testutil.AcmeContracts())
	sec := testutil.WriteContractsCSV(t, dir, "flood.csv", []testutil.Contract{
		{RefID: "F-1", Contractor: "ACME CORP", Organization: "DPWH", Area: "Cebu",
			Category: "Flood Control", Amount: "500", Date: "2020-06-01"},
	})
	res, err := Build(context.Background(), BuildOptions{
		Source: src, SecondarySource: sec, Root: t.TempDir(), Version: "v1",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Manifest.Secondary == nil {
		t.Fatal("manifest has no secondary dataset")
	}
	if res.Manifest.Secondary.RowCount != 1 {
		t.Errorf("secondary rows = %d, want 1", res.Manifest.Secondary.RowCount)
	}
	snap, err := Open(res.Dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	path, ok := snap.SecondaryFactsPath()
	if !ok {
		t.Fatal("SecondaryFactsPath not declared")
	}
	testutil.MustExist(t, path)
}

func TestBuild_Errors(t *testing.T) {
	root := t.TempDir()
	buildFixture(t, testutil.AcmeContracts(), "v1", false, root)

	src := testutil.WriteContractsCSV(t, t.TempDir(), "facts.csv", testutil.AcmeContracts())
	tests := []struct {
		name string
		opts BuildOptions
		want string
	}{
		{"missing source", BuildOptions{Root: root, Version: "v2"}, "source is required"},
		{"existing version", BuildOptions{Source: src, Root: root, Version: "v1"}, "already exists"},
		{"bad version", BuildOptions{Source: src, Root: root, Version: "../x"}, "invalid version"},
		{"bad format", BuildOptions{Source: filepath.Join(root, "facts.json"), Root: root, Version: "v3"}, "unsupported source format"},
		{"empty source", BuildOptions{
			Source: testutil.WriteContractsCSV(t, t.TempDir(), "empty.csv", nil), Root: root, Version: "v4",
		}, "no valid facts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(context.Background(), tt.opts)
			testutil.AssertErrorContains(t, err, tt.want)
		})
	}
}

func TestBuild_LegacyEncodedSource(t *testing.T) {
	contracts := []testutil.Contract{
		{RefID: "E-1", Contractor: "Peñafrancia Builders", Organization: "DPWH Region V",
			Area: "Camarines Sur", Category: "Civil Works", Amount: "120.00", Date: "2020-04-01"},
	}
	encoded, err := charmap.Windows1252.NewEncoder().Bytes(testutil.ContractsCSV(t, contracts))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	src := testutil.WriteFile(t, t.TempDir(), "facts.csv", encoded)

	res, err := Build(context.Background(), BuildOptions{
		Source: src, Root: t.TempDir(), Version: "v1", Encoding: "windows-1252",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	snap, err := Open(res.Dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got := readRollup(t, snap.RollupPath(AllTimeBucket(), Contractor))
	want := []rollupRow{{"Peñafrancia Builders", 1, "120.00"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rollup mismatch (-want +got):\n%s", diff)
	}
}
