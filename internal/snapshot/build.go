package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/fileutil"
	"github.com/wesm/contractlens/internal/textutil"
)

// UnspecifiedEntity replaces empty entity names so that every fact lands in
// exactly one rollup row per dimension.
const UnspecifiedEntity = "UNSPECIFIED"

// BuildOptions configures Build.
type BuildOptions struct {
	Source          string // facts file, .csv or .parquet
	SecondarySource string // optional secondary facts file
	Encoding        string // charset of CSV sources; "auto" detects, empty means UTF-8
	Root            string // snapshot root; the version is written below it
	Version         string // defaults to a UTC timestamp
	Publish         bool   // point Root/CURRENT at the new version
	Logger          *slog.Logger
}

// BuildResult reports what Build produced.
type BuildResult struct {
	Dir      string
	Manifest *Manifest
	Duration time.Duration
}

// Build materializes one snapshot version from a facts file: the all-time
// and per-year fact tables, a rollup per dimension for every all-time,
// year and quarter bucket, and the manifest. Years between the first and
// last award date are all emitted, so the year buckets tile the domain.
func Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Source == "" {
		return nil, errors.New("build snapshot: source is required")
	}
	version := opts.Version
	if version == "" {
		version = time.Now().UTC().Format("20060102T150405Z")
	}
	if strings.ContainsAny(version, `/\`) || version == "." || version == ".." {
		return nil, fmt.Errorf("build snapshot: invalid version %q", version)
	}

	dir := filepath.Join(opts.Root, version)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("build snapshot: version %s already exists", version)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	res, err := build(ctx, dir, version, opts, logger)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return res, nil
}

func build(ctx context.Context, dir, version string, opts BuildOptions, logger *slog.Logger) (*BuildResult, error) {
	start := time.Now()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close()
	// Temp tables live on one connection.
	db.SetMaxOpenConns(1)

	b := &builder{db: db, layout: &Snapshot{dir: dir}, encoding: opts.Encoding, logger: logger}

	loaded, err := b.loadFacts(ctx, "facts", opts.Source)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded facts", "source", opts.Source, "rows", loaded)

	domain, err := b.domain(ctx)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Version:     version,
		GeneratedAt: time.Now().UTC(),
		MinDate:     domain.Min.Format(DateLayout),
		MaxDate:     domain.Max.Format(DateLayout),
	}

	buckets := []Bucket{AllTimeBucket()}
	for _, y := range domain.Years() {
		buckets = append(buckets, YearBucket(y))
		for q := 1; q <= 4; q++ {
			buckets = append(buckets, QuarterBucket(y, q))
		}
	}

	for _, bucket := range buckets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := b.writeBucket(ctx, bucket, domain)
		if err != nil {
			return nil, fmt.Errorf("bucket %s: %w", bucket, err)
		}
		m.Buckets = append(m.Buckets, info)
	}

	if opts.SecondarySource != "" {
		info, err := b.writeSecondary(ctx, opts.SecondarySource)
		if err != nil {
			return nil, err
		}
		m.Secondary = info
	}

	data, err := m.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := fileutil.AtomicWriteFile(filepath.Join(dir, ManifestFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	if opts.Publish {
		if err := Publish(opts.Root, version); err != nil {
			return nil, err
		}
		logger.Info("snapshot published", "version", version)
	}

	return &BuildResult{Dir: dir, Manifest: m, Duration: time.Since(start)}, nil
}

// Publish atomically points root/CURRENT at version.
func Publish(root, version string) error {
	if _, err := ReadManifest(filepath.Join(root, version)); err != nil {
		return fmt.Errorf("publish %s: %w", version, err)
	}
	if err := fileutil.AtomicWriteFile(filepath.Join(root, CurrentFile), []byte(version+"\n"), 0o644); err != nil {
		return fmt.Errorf("publish %s: %w", version, err)
	}
	return nil
}

type builder struct {
	db       *sql.DB
	layout   *Snapshot
	encoding string
	logger   *slog.Logger
}

// sourceExpr returns the DuckDB table function reading path.
func sourceExpr(path string) (string, error) {
	escaped := escapeSQLString(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return fmt.Sprintf("read_csv('%s', header = true, all_varchar = true)", escaped), nil
	case ".parquet":
		return fmt.Sprintf("read_parquet('%s')", escaped), nil
	default:
		return "", fmt.Errorf("unsupported source format %q (want .csv or .parquet)", filepath.Ext(path))
	}
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(filepath.ToSlash(s), "'", "''")
}

// entityExpr trims a raw entity column and substitutes UnspecifiedEntity
// for NULL or blank values.
func entityExpr(col string) string {
	return fmt.Sprintf("COALESCE(NULLIF(TRIM(CAST(%s AS VARCHAR)), ''), '%s') AS %s", col, UnspecifiedEntity, col)
}

func textExpr(col string) string {
	return fmt.Sprintf("COALESCE(TRIM(CAST(%s AS VARCHAR)), '') AS %s", col, col)
}

// loadFacts normalizes the source into a temp table. Rows without a
// reference id, a parseable amount or a parseable award date are dropped.
func (b *builder) loadFacts(ctx context.Context, table, source string) (int64, error) {
	src, err := sourceExpr(source)
	if err != nil {
		return 0, err
	}
	if _, err := os.Stat(source); err != nil {
		return 0, fmt.Errorf("facts source: %w", err)
	}
	if strings.EqualFold(filepath.Ext(source), ".csv") && !textutil.IsUTF8(b.encoding) {
		utf8Path, err := transcodeCSV(source, b.encoding)
		if err != nil {
			return 0, err
		}
		defer os.Remove(utf8Path)
		b.logger.Debug("transcoded source", "source", source, "encoding", b.encoding)
		if src, err = sourceExpr(utf8Path); err != nil {
			return 0, err
		}
	}

	query := fmt.Sprintf(`
		CREATE OR REPLACE TEMP TABLE %s AS
		SELECT *, lower(concat_ws(' ', award_title, notice_title)) AS search_text
		FROM (
			SELECT
				TRIM(CAST(reference_id AS VARCHAR)) AS reference_id,
				%s,
				%s,
				%s,
				%s,
				%s,
				%s,
				%s,
				TRY_CAST(REPLACE(CAST(contract_amount AS VARCHAR), ',', '') AS DECIMAL(18,2)) AS contract_amount,
				TRY_CAST(award_date AS DATE) AS award_date,
				%s
			FROM %s
		)
		WHERE reference_id IS NOT NULL AND reference_id <> ''
			AND contract_amount IS NOT NULL
			AND award_date IS NOT NULL
	`, table,
		textExpr("contract_number"),
		textExpr("award_title"),
		textExpr("notice_title"),
		entityExpr("awardee_name"),
		entityExpr("organization_name"),
		entityExpr("area_of_delivery"),
		entityExpr("business_category"),
		textExpr("award_status"),
		src)

	if _, err := b.db.ExecContext(ctx, query); err != nil {
		return 0, fmt.Errorf("load facts from %s: %w", source, err)
	}

	var n int64
	if err := b.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count facts: %w", err)
	}
	return n, nil
}

// transcodeCSV copies a legacy-encoded CSV into a UTF-8 temp file and
// returns its path. The caller removes it.
func transcodeCSV(source, enc string) (string, error) {
	in, err := os.Open(source)
	if err != nil {
		return "", fmt.Errorf("facts source: %w", err)
	}
	defer in.Close()

	r, err := textutil.NewUTF8Reader(in, enc)
	if err != nil {
		return "", fmt.Errorf("facts source %s: %w", source, err)
	}
	out, err := os.CreateTemp("", "contractlens-source-*.csv")
	if err != nil {
		return "", fmt.Errorf("create transcode file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("transcode %s: %w", source, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("transcode %s: %w", source, err)
	}
	return out.Name(), nil
}

// domain returns January 1 of the first award year through December 31
// of the last.
func (b *builder) domain(ctx context.Context) (Domain, error) {
	var minYear, maxYear sql.NullInt64
	err := b.db.QueryRowContext(ctx,
		"SELECT MIN(year(award_date)), MAX(year(award_date)) FROM facts",
	).Scan(&minYear, &maxYear)
	if err != nil {
		return Domain{}, fmt.Errorf("compute domain: %w", err)
	}
	if !minYear.Valid {
		return Domain{}, errors.New("source contains no valid facts")
	}
	lo, _ := YearBucket(int(minYear.Int64)).Span(Domain{})
	_, hi := YearBucket(int(maxYear.Int64)).Span(Domain{})
	return Domain{Min: lo, Max: hi}, nil
}

func (b *builder) writeBucket(ctx context.Context, bucket Bucket, domain Domain) (BucketInfo, error) {
	lo, hi := bucket.Span(domain)
	where := fmt.Sprintf("award_date BETWEEN DATE '%s' AND DATE '%s'",
		lo.Format(DateLayout), hi.Format(DateLayout))

	info := BucketInfo{Key: bucket.Key()}
	count, total, err := b.totals(ctx, "facts", where)
	if err != nil {
		return info, err
	}
	info.RowCount = count
	info.TotalValue = total

	if err := os.MkdirAll(filepath.Join(b.layout.dir, bucket.Dir()), 0o755); err != nil {
		return info, fmt.Errorf("create bucket dir: %w", err)
	}

	if bucket.Granularity != Quarterly {
		if err := b.copyTo(ctx, factsSelect("facts", where), b.layout.FactsPath(bucket)); err != nil {
			return info, fmt.Errorf("write facts: %w", err)
		}
		info.HasFacts = true
	}

	for _, d := range Dimensions {
		if err := b.copyTo(ctx, rollupSelect(d, where), b.layout.RollupPath(bucket, d)); err != nil {
			return info, fmt.Errorf("write %s rollup: %w", d, err)
		}
		info.Rollups = append(info.Rollups, d)
	}

	b.logger.Debug("bucket written", "bucket", bucket.Key(), "rows", count)
	return info, nil
}

func (b *builder) writeSecondary(ctx context.Context, source string) (*DatasetInfo, error) {
	loaded, err := b.loadFacts(ctx, "secondary_facts", source)
	if err != nil {
		return nil, fmt.Errorf("secondary: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(b.layout.dir, secondaryDir), 0o755); err != nil {
		return nil, fmt.Errorf("create secondary dir: %w", err)
	}
	path := secondaryFactsPath(b.layout.dir)
	if err := b.copyTo(ctx, factsSelect("secondary_facts", "true"), path); err != nil {
		return nil, fmt.Errorf("write secondary facts: %w", err)
	}
	count, total, err := b.totals(ctx, "secondary_facts", "true")
	if err != nil {
		return nil, err
	}
	b.logger.Info("loaded secondary facts", "source", source, "rows", loaded)
	return &DatasetInfo{RowCount: count, TotalValue: total}, nil
}

func (b *builder) totals(ctx context.Context, table, where string) (int64, decimal.Decimal, error) {
	var count int64
	var total string
	err := b.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT COUNT(*), CAST(COALESCE(SUM(contract_amount), 0) AS VARCHAR) FROM %s WHERE %s",
		table, where,
	)).Scan(&count, &total)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("bucket totals: %w", err)
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("parse bucket total %q: %w", total, err)
	}
	return count, d, nil
}

func (b *builder) copyTo(ctx context.Context, selectSQL, path string) error {
	query := fmt.Sprintf("COPY (%s) TO '%s' (FORMAT PARQUET)", selectSQL, escapeSQLString(path))
	_, err := b.db.ExecContext(ctx, query)
	return err
}

func factsSelect(table, where string) string {
	return fmt.Sprintf(`
		SELECT reference_id, contract_number, award_title, notice_title,
			awardee_name, organization_name, area_of_delivery, business_category,
			contract_amount, award_date, award_status, search_text
		FROM %s
		WHERE %s
		ORDER BY award_date, reference_id`, table, where)
}

// rollupSelect groups facts by d's entity column. Counterpart names are
// kept as sorted distinct lists so that merging buckets can union them.
func rollupSelect(d Dimension, where string) string {
	cols := []string{
		d.Column() + " AS entity",
		"COUNT(*)::BIGINT AS contract_count",
		"CAST(SUM(contract_amount) AS DECIMAL(38,2)) AS total_value",
		"MIN(award_date) AS first_date",
		"MAX(award_date) AS last_date",
	}
	for _, o := range d.Others() {
		cols = append(cols, fmt.Sprintf("list_sort(list(DISTINCT %s)) AS %s", o.Column(), o.NamesColumn()))
	}
	return fmt.Sprintf(`
		SELECT %s
		FROM facts
		WHERE %s
		GROUP BY 1
		ORDER BY 1`, strings.Join(cols, ",\n\t\t\t"), where)
}
