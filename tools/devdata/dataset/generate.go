package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/snapshot"
)

// Columns is the header of a generated facts file.
var Columns = []string{
	"reference_id", "contract_number", "award_title", "notice_title",
	"awardee_name", "organization_name", "area_of_delivery", "business_category",
	"contract_amount", "award_date", "award_status",
}

var (
	contractorSuffixes = []string{"Builders", "Construction", "Trading", "Supplies", "Enterprises", "Corp"}
	organizations      = []string{
		"DPWH Region VII", "DPWH NCR", "DepEd", "DOH", "City of Cebu",
		"Quezon City", "Province of Leyte", "DILG", "DOTr", "PhilHealth",
	}
	areas      = []string{"Cebu", "Bohol", "Leyte", "Manila", "Quezon City", "Davao", "Iloilo", "Samar"}
	categories = []string{"Civil Works", "Goods", "Consulting", "Infrastructure", "Services"}
	works      = []string{"Road widening", "Bridge repair", "School building", "Drainage canal", "Office supplies", "Medical equipment", "Design consultancy"}
	statuses   = []string{"awarded", "awarded", "awarded", "completed", "terminated"}
)

// GenerateOptions controls synthetic contract generation.
type GenerateOptions struct {
	Rows        int
	FromYear    int
	ToYear      int
	Contractors int    // distinct contractor names; defaults to Rows/20
	Seed        uint64 // same seed, same rows
	IDPrefix    string // reference id prefix, defaults to "R"
}

// GenerateResult summarizes a generated file.
type GenerateResult struct {
	Rows  int
	Total decimal.Decimal
}

func (o *GenerateOptions) defaults() error {
	if o.Rows <= 0 {
		return fmt.Errorf("rows must be positive, got %d", o.Rows)
	}
	if o.FromYear == 0 {
		o.FromYear = time.Now().Year() - 4
	}
	if o.ToYear == 0 {
		o.ToYear = time.Now().Year()
	}
	if o.ToYear < o.FromYear {
		return fmt.Errorf("year range %d-%d is empty", o.FromYear, o.ToYear)
	}
	if o.Contractors <= 0 {
		o.Contractors = max(o.Rows/20, 1)
	}
	if o.IDPrefix == "" {
		o.IDPrefix = "R"
	}
	return nil
}

// Generate writes opts.Rows synthetic contracts as CSV with a header row.
// Contractor names follow a skewed distribution so that rankings have a
// long tail, and about one row in a hundred has no contractor.
func Generate(w io.Writer, opts GenerateOptions) (*GenerateResult, error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	zipf := rand.NewZipf(rng, 1.2, 1, uint64(opts.Contractors-1))

	start := time.Date(opts.FromYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	days := int(time.Date(opts.ToYear, time.December, 31, 0, 0, 0, 0, time.UTC).Sub(start).Hours()/24) + 1

	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	res := &GenerateResult{Total: decimal.Zero}
	for i := range opts.Rows {
		contractor := ""
		if rng.IntN(100) != 0 {
			n := zipf.Uint64()
			contractor = fmt.Sprintf("Contractor %04d %s", n, contractorSuffixes[n%uint64(len(contractorSuffixes))])
		}
		work := works[rng.IntN(len(works))]
		area := areas[rng.IntN(len(areas))]
		amount := decimal.New(rng.Int64N(500_000_000)+1_000, -2)
		date := start.AddDate(0, 0, rng.IntN(days))

		record := []string{
			opts.IDPrefix + "-" + strconv.Itoa(i+1),
			fmt.Sprintf("C-%d-%06d", date.Year(), i+1),
			work,
			work + " in " + area,
			contractor,
			organizations[rng.IntN(len(organizations))],
			area,
			categories[rng.IntN(len(categories))],
			amount.StringFixed(2),
			date.Format(snapshot.DateLayout),
			statuses[rng.IntN(len(statuses))],
		}
		if err := cw.Write(record); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
		res.Rows++
		res.Total = res.Total.Add(amount)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return res, nil
}

// CreateOptions configures Create.
type CreateOptions struct {
	GenerateOptions
	SecondaryRows int    // rows in the secondary dataset; 0 skips it
	Version       string // snapshot version; defaults to a timestamp
	Publish       bool   // point CURRENT at the new version
	Logger        *slog.Logger
}

// CreateResult reports what Create produced.
type CreateResult struct {
	Primary   *GenerateResult
	Secondary *GenerateResult
	Dir       string
	Manifest  *snapshot.Manifest
	Size      int64
	Elapsed   time.Duration
}

// Create generates synthetic facts and builds them into a new snapshot
// version under root. The generated CSV sources live in a scratch
// directory that is removed afterwards.
func Create(ctx context.Context, root string, opts CreateOptions) (*CreateResult, error) {
	start := time.Now()
	if opts.Version != "" {
		if err := ValidateVersion(opts.Version); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot root: %w", err)
	}
	scratch, err := os.MkdirTemp(root, ".devdata-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	res, err := create(ctx, root, scratch, opts)
	if err != nil {
		return nil, err
	}
	res.Size = DirSize(res.Dir)
	res.Elapsed = time.Since(start)
	return res, nil
}

func create(ctx context.Context, root, scratch string, opts CreateOptions) (*CreateResult, error) {
	res := &CreateResult{}
	var err error

	source := filepath.Join(scratch, "contracts.csv")
	if res.Primary, err = generateFile(source, opts.GenerateOptions); err != nil {
		return nil, err
	}

	var secondary string
	if opts.SecondaryRows > 0 {
		secOpts := opts.GenerateOptions
		secOpts.Rows = opts.SecondaryRows
		secOpts.Seed = opts.Seed + 1
		secOpts.IDPrefix = "S"
		secondary = filepath.Join(scratch, "secondary.csv")
		if res.Secondary, err = generateFile(secondary, secOpts); err != nil {
			return nil, err
		}
	}

	built, err := snapshot.Build(ctx, snapshot.BuildOptions{
		Source:          source,
		SecondarySource: secondary,
		Root:            root,
		Version:         opts.Version,
		Publish:         opts.Publish,
		Logger:          opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	res.Dir = built.Dir
	res.Manifest = built.Manifest
	return res, nil
}

func generateFile(path string, opts GenerateOptions) (*GenerateResult, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	res, err := Generate(bw, opts)
	if err == nil {
		err = bw.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", path, err)
	}
	return res, nil
}
