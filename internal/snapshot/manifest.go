package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// ManifestFile is the name of the manifest inside a snapshot directory.
const ManifestFile = "manifest.json"

// Manifest declares what a snapshot version contains. The query planner
// trusts it to decide which buckets exist; a bucket absent from the
// manifest is treated as missing even if files happen to be on disk.
type Manifest struct {
	Version     string       `json:"version"`
	GeneratedAt time.Time    `json:"generated_at"`
	MinDate     string       `json:"min_date"`
	MaxDate     string       `json:"max_date"`
	Buckets     []BucketInfo `json:"buckets"`
	Secondary   *DatasetInfo `json:"secondary,omitempty"`
}

// BucketInfo describes one bucket's row count, value total and files.
type BucketInfo struct {
	Key        string          `json:"key"`
	RowCount   int64           `json:"row_count"`
	TotalValue decimal.Decimal `json:"total_value"`
	HasFacts   bool            `json:"has_facts"`
	Rollups    []Dimension     `json:"rollups"`
}

// DatasetInfo summarizes the optional secondary fact table.
type DatasetInfo struct {
	RowCount   int64           `json:"row_count"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// Domain parses the manifest's date bounds.
func (m *Manifest) Domain() (Domain, error) {
	lo, err := time.Parse(DateLayout, m.MinDate)
	if err != nil {
		return Domain{}, fmt.Errorf("manifest min_date: %w", err)
	}
	hi, err := time.Parse(DateLayout, m.MaxDate)
	if err != nil {
		return Domain{}, fmt.Errorf("manifest max_date: %w", err)
	}
	if hi.Before(lo) {
		return Domain{}, fmt.Errorf("manifest max_date %s before min_date %s", m.MaxDate, m.MinDate)
	}
	return Domain{Min: lo, Max: hi}, nil
}

// ReadManifest loads and decodes dir/manifest.json.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version == "" {
		return nil, fmt.Errorf("manifest in %s has no version", dir)
	}
	return &m, nil
}

// Encode renders the manifest as indented JSON with buckets in key order.
func (m *Manifest) Encode() ([]byte, error) {
	sort.Slice(m.Buckets, func(i, j int) bool {
		return bucketOrder(m.Buckets[i].Key) < bucketOrder(m.Buckets[j].Key)
	})
	return json.MarshalIndent(m, "", "  ")
}

// bucketOrder sorts "all" first, then years, each followed by its quarters.
func bucketOrder(key string) string {
	if key == "all" {
		return ""
	}
	return key
}
