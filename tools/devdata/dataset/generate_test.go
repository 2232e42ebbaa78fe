package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/snapshot"
)

func readGenerated(t *testing.T, data []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse generated csv: %v", err)
	}
	return records
}

func TestGenerate(t *testing.T) {
	var buf bytes.Buffer
	res, err := Generate(&buf, GenerateOptions{Rows: 500, FromYear: 2020, ToYear: 2022, Seed: 7})
	if err != nil {
		t.Fatal(err)
	}
	if res.Rows != 500 {
		t.Errorf("Rows = %d, want 500", res.Rows)
	}

	records := readGenerated(t, buf.Bytes())
	if diff := cmp.Diff(Columns, records[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if len(records) != 501 {
		t.Fatalf("records = %d, want 501", len(records))
	}

	total := decimal.Zero
	ids := make(map[string]bool)
	lo := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	hi := time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)
	for _, rec := range records[1:] {
		if ids[rec[0]] {
			t.Errorf("duplicate reference id %s", rec[0])
		}
		ids[rec[0]] = true

		amount, err := decimal.NewFromString(rec[8])
		if err != nil {
			t.Fatalf("amount %q: %v", rec[8], err)
		}
		total = total.Add(amount)

		date, err := time.Parse(snapshot.DateLayout, rec[9])
		if err != nil {
			t.Fatalf("date %q: %v", rec[9], err)
		}
		if date.Before(lo) || date.After(hi) {
			t.Errorf("date %s outside 2020-2022", rec[9])
		}
	}
	if !total.Equal(res.Total) {
		t.Errorf("sum of amounts = %s, result total = %s", total, res.Total)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	var a, b, c bytes.Buffer
	opts := GenerateOptions{Rows: 50, FromYear: 2021, ToYear: 2021, Seed: 42}
	for _, w := range []*bytes.Buffer{&a, &b} {
		if _, err := Generate(w, opts); err != nil {
			t.Fatal(err)
		}
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("same seed produced different output")
	}
	opts.Seed = 43
	if _, err := Generate(&c, opts); err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a.Bytes(), c.Bytes()) {
		t.Error("different seeds produced identical output")
	}
}

func TestGenerate_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts GenerateOptions
	}{
		{"no rows", GenerateOptions{}},
		{"negative rows", GenerateOptions{Rows: -1}},
		{"inverted years", GenerateOptions{Rows: 1, FromYear: 2022, ToYear: 2020}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if _, err := Generate(&buf, tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCreate(t *testing.T) {
	root := filepath.Join(t.TempDir(), "snapshots")
	res, err := Create(context.Background(), root, CreateOptions{
		GenerateOptions: GenerateOptions{Rows: 200, FromYear: 2020, ToYear: 2021, Seed: 1},
		SecondaryRows:   20,
		Version:         "small",
		Publish:         true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if got := CurrentVersion(root); got != "small" {
		t.Fatalf("CURRENT = %q, want small", got)
	}
	if res.Dir != filepath.Join(root, "small") {
		t.Errorf("Dir = %q", res.Dir)
	}
	if res.Size == 0 || res.Size != DirSize(res.Dir) {
		t.Errorf("Size = %d, want %d", res.Size, DirSize(res.Dir))
	}
	if scratch, _ := filepath.Glob(filepath.Join(root, ".devdata-*")); len(scratch) != 0 {
		t.Errorf("scratch dirs left behind: %v", scratch)
	}

	m := res.Manifest
	if m.MinDate != "2020-01-01" || m.MaxDate != "2021-12-31" {
		t.Errorf("domain = %s..%s, want 2020-01-01..2021-12-31", m.MinDate, m.MaxDate)
	}
	var all *snapshot.BucketInfo
	for i := range m.Buckets {
		if m.Buckets[i].Key == "all" {
			all = &m.Buckets[i]
		}
	}
	if all == nil {
		t.Fatal("manifest has no all-time bucket")
	}
	if all.RowCount != 200 || !all.TotalValue.Equal(res.Primary.Total) {
		t.Errorf("all-time bucket = %d/%s, want 200/%s", all.RowCount, all.TotalValue, res.Primary.Total)
	}
	if m.Secondary == nil || m.Secondary.RowCount != 20 {
		t.Errorf("secondary = %+v, want 20 rows", m.Secondary)
	}

	store, err := snapshot.OpenStore(root, nil)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if store.Current().Version() != "small" {
		t.Errorf("store version = %q, want small", store.Current().Version())
	}
}

func TestCreate_Unpublished(t *testing.T) {
	root := filepath.Join(t.TempDir(), "snapshots")
	if _, err := Create(context.Background(), root, CreateOptions{
		GenerateOptions: GenerateOptions{Rows: 10, FromYear: 2020, ToYear: 2020},
		Version:         "draft",
	}); err != nil {
		t.Fatal(err)
	}
	if got := CurrentVersion(root); got != "" {
		t.Errorf("CURRENT = %q, want unpublished", got)
	}
	versions, err := ListVersions(root)
	if err != nil || len(versions) != 1 || !versions[0].Complete {
		t.Errorf("ListVersions = %+v, %v; want one complete version", versions, err)
	}
}

func TestCreate_Failures(t *testing.T) {
	root := filepath.Join(t.TempDir(), "snapshots")
	opts := CreateOptions{GenerateOptions: GenerateOptions{Rows: 5, FromYear: 2020, ToYear: 2020}, Version: "v1"}
	if _, err := Create(context.Background(), root, opts); err != nil {
		t.Fatal(err)
	}
	if _, err := Create(context.Background(), root, opts); err == nil {
		t.Error("expected error for an existing version")
	}
	if !Exists(filepath.Join(root, "v1", snapshot.ManifestFile)) {
		t.Error("existing version was damaged")
	}

	if _, err := Create(context.Background(), root, CreateOptions{Version: "empty"}); err == nil {
		t.Error("expected error for zero rows")
	}
	if Exists(filepath.Join(root, "empty")) {
		t.Error("failed Create left its version behind")
	}
	if _, err := Create(context.Background(), root, CreateOptions{GenerateOptions: GenerateOptions{Rows: 1}, Version: "../x"}); err == nil {
		t.Error("expected error for an invalid version")
	}
}
