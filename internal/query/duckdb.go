package query

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/marcboeker/go-duckdb"
	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/snapshot"
	"golang.org/x/sync/errgroup"
)

// Options tunes a DuckDBEngine.
type Options struct {
	// Timeout is the wall-clock budget of one query. Zero disables it.
	// Streaming raw exports are not bound by it.
	Timeout time.Duration
	// MaxConcurrentReads bounds parallel rollup bucket reads.
	MaxConcurrentReads int
	// Threads is DuckDB's per-connection thread count. Zero uses GOMAXPROCS.
	Threads int
	Logger  *slog.Logger
}

// DuckDBEngine implements Engine by reading snapshot Parquet files with an
// in-memory DuckDB. Every operation loads the store's current snapshot
// once and uses it throughout, so a concurrent swap never mixes versions
// within a request.
type DuckDBEngine struct {
	db      *sql.DB
	store   *snapshot.Store
	logger  *slog.Logger
	timeout time.Duration
	reads   int
}

// NewDuckDBEngine creates a query engine over store.
func NewDuckDBEngine(store *snapshot.Store, opts Options) (*DuckDBEngine, error) {
	if store == nil || store.Current() == nil {
		return nil, fmt.Errorf("new duckdb engine: no snapshot loaded")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reads := opts.MaxConcurrentReads
	if reads <= 0 {
		reads = 4
	}
	// Use GOMAXPROCS(0) instead of NumCPU() to respect container CPU limits.
	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	// Session settings do not propagate across pooled connections, so
	// apply them to each connection as it is opened.
	connector, err := duckdb.NewConnector("", func(execer driver.ExecerContext) error {
		_, err := execer.ExecContext(context.Background(), fmt.Sprintf("SET threads = %d", threads), nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db := sql.OpenDB(connector)
	// One extra connection keeps a streaming export from starving bucket reads.
	db.SetMaxOpenConns(reads + 1)

	return &DuckDBEngine{
		db:      db,
		store:   store,
		logger:  logger,
		timeout: opts.Timeout,
		reads:   reads,
	}, nil
}

// Close releases DuckDB resources.
func (e *DuckDBEngine) Close() error {
	return e.db.Close()
}

// Domain returns the current snapshot's date bounds.
func (e *DuckDBEngine) Domain() snapshot.Domain {
	return e.store.Current().Domain()
}

func (e *DuckDBEngine) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

func observe(op string, start time.Time) {
	queryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// fail classifies err for the caller and logs the kinds operators need
// to see.
func (e *DuckDBEngine) fail(ctx context.Context, op string, err error) error {
	err = budgetError(ctx, op, e.timeout, err)
	var te *TimeoutError
	switch {
	case IsInconsistency(err):
		e.logger.Error("snapshot inconsistency", "op", op, "error", err)
	case errors.As(err, &te):
		e.logger.Warn("query timed out", "op", op, "budget", te.Budget)
	}
	return err
}

func (e *DuckDBEngine) plan(snap *snapshot.Snapshot, chips *filter.ChipSet, dim snapshot.Dimension) *Plan {
	p := NewPlan(snap, chips, dim)
	planCounter.WithLabelValues(p.Kind.String()).Inc()
	if p.Degraded() {
		degradedPlans.Inc()
		w := DegradedPlanWarning{Dimension: dim, Missing: p.Missing}
		e.logger.Warn("degraded plan", "snapshot", snap.Version(), "detail", w.String())
	}
	if p.SecondaryMissing {
		e.logger.Warn("secondary dataset requested but absent from snapshot", "snapshot", snap.Version())
	}
	e.logger.Debug("query plan", "kind", p.Kind.String(), "dimension", string(dim),
		"buckets", len(p.Buckets), "reason", p.Reason)
	return p
}

func validDimension(d snapshot.Dimension, field string) error {
	if d.Valid() {
		return nil
	}
	return &filter.ValidationError{Field: field, Value: string(d), Reason: "unknown dimension"}
}

// Pin sets req.Snapshot to the current snapshot unless it is already set.
func (e *DuckDBEngine) Pin(req Request) Request {
	if req.Snapshot == nil {
		req.Snapshot = e.store.Current()
	}
	return req
}

func (e *DuckDBEngine) snapshotFor(req Request) *snapshot.Snapshot {
	if req.Snapshot != nil {
		return req.Snapshot
	}
	return e.store.Current()
}

// Aggregate returns one window of merged entity rows and the global totals.
func (e *DuckDBEngine) Aggregate(ctx context.Context, req Request) (*AggregateResult, error) {
	defer observe("aggregate", time.Now())
	if err := validDimension(req.Dimension, "dimension"); err != nil {
		return nil, err
	}
	ctx, cancel := e.withBudget(ctx)
	defer cancel()

	snap := e.snapshotFor(req)
	rows, plan, err := e.computeAggregate(ctx, snap, req)
	if err != nil {
		return nil, e.fail(ctx, "aggregate", err)
	}
	totals, err := e.globalTotals(ctx, snap, req.chips())
	if err != nil {
		return nil, e.fail(ctx, "aggregate", err)
	}
	return &AggregateResult{
		Rows:         Page(rows, req.Window),
		TotalCount:   int64(len(rows)),
		GlobalTotals: *totals,
		Plan:         plan,
	}, nil
}

// Search returns raw contracts when req has no dimension and aggregate
// rows otherwise. A nil window returns the first default-sized page.
func (e *DuckDBEngine) Search(ctx context.Context, req Request) (*SearchResult, error) {
	defer observe("search", time.Now())
	if req.Window == nil {
		req.Window = &filter.Window{Limit: filter.DefaultLimit}
	}
	ctx, cancel := e.withBudget(ctx)
	defer cancel()
	snap := e.snapshotFor(req)

	if !req.Raw() {
		if err := validDimension(req.Dimension, "dimension"); err != nil {
			return nil, err
		}
		rows, plan, err := e.computeAggregate(ctx, snap, req)
		if err != nil {
			return nil, e.fail(ctx, "search", err)
		}
		return &SearchResult{Rows: Page(rows, req.Window), TotalCount: int64(len(rows)), Plan: plan}, nil
	}

	chips := req.chips()
	plan := e.plan(snap, chips, "")
	total, err := e.countFacts(ctx, snap, plan, chips)
	if err != nil {
		return nil, e.fail(ctx, "search", err)
	}
	query, args := rawQuery(snap, plan, chips, req.Sort, req.Direction, req.Window)
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, e.fail(ctx, "search", fmt.Errorf("search contracts: %w", err))
	}
	defer rows.Close()

	var contracts []Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, e.fail(ctx, "search", err)
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, e.fail(ctx, "search", fmt.Errorf("iterate contracts: %w", err))
	}
	return &SearchResult{Contracts: contracts, TotalCount: total, Plan: plan}, nil
}

// Count returns how many rows Rows would emit for req.
func (e *DuckDBEngine) Count(ctx context.Context, req Request) (int64, error) {
	defer observe("count", time.Now())
	ctx, cancel := e.withBudget(ctx)
	defer cancel()
	snap := e.snapshotFor(req)

	if req.Raw() {
		chips := req.chips()
		plan := e.plan(snap, chips, "")
		total, err := e.countFacts(ctx, snap, plan, chips)
		if err != nil {
			return 0, e.fail(ctx, "count", err)
		}
		return windowCount(total, req.Window), nil
	}

	if err := validDimension(req.Dimension, "dimension"); err != nil {
		return 0, err
	}
	rows, _, err := e.computeAggregate(ctx, snap, req)
	if err != nil {
		return 0, e.fail(ctx, "count", err)
	}
	return windowCount(int64(len(rows)), req.Window), nil
}

func windowCount(total int64, w *filter.Window) int64 {
	if w == nil {
		return total
	}
	n := total - int64(w.Offset)
	if n < 0 {
		return 0
	}
	return min(n, int64(w.Limit))
}

// Rows returns the export sequence for req. Aggregate rows are computed
// within the query budget and then served from memory; raw contracts are
// streamed from a database cursor that lives as long as ctx.
func (e *DuckDBEngine) Rows(ctx context.Context, req Request) (RowSource, error) {
	snap := e.snapshotFor(req)

	if !req.Raw() {
		if err := validDimension(req.Dimension, "dimension"); err != nil {
			return nil, err
		}
		bctx, cancel := e.withBudget(ctx)
		defer cancel()
		rows, _, err := e.computeAggregate(bctx, snap, req)
		if err != nil {
			return nil, e.fail(bctx, "export", err)
		}
		return &sliceSource{dim: req.Dimension, rows: Page(rows, req.Window)}, nil
	}

	chips := req.chips()
	plan := e.plan(snap, chips, "")
	query, args := rawQuery(snap, plan, chips, req.Sort, req.Direction, req.Window)
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("open contract cursor: %w", err)
	}
	return &cursorSource{rows: rows}, nil
}

// GlobalTotals returns the unfiltered totals for the chips' time ranges.
func (e *DuckDBEngine) GlobalTotals(ctx context.Context, chips *filter.ChipSet) (*Totals, error) {
	defer observe("totals", time.Now())
	ctx, cancel := e.withBudget(ctx)
	defer cancel()
	t, err := e.globalTotals(ctx, e.store.Current(), chips)
	if err != nil {
		return nil, e.fail(ctx, "totals", err)
	}
	return t, nil
}

// RelatedEntities aggregates req.Target rows for contracts whose
// req.Source entity matches req.Value.
func (e *DuckDBEngine) RelatedEntities(ctx context.Context, req RelatedRequest) (*AggregateResult, error) {
	if err := validDimension(req.Source, "source"); err != nil {
		return nil, err
	}
	if err := validDimension(req.Target, "target"); err != nil {
		return nil, err
	}
	value := strings.TrimSpace(req.Value)
	if value == "" {
		return nil, &filter.ValidationError{Field: "value", Reason: "must not be empty"}
	}
	chips := req.Chips
	if chips == nil {
		chips = filter.Empty()
	}
	return e.Aggregate(ctx, Request{
		Chips:     chips.WithEntity(req.Source, value),
		Dimension: req.Target,
		Sort:      req.Sort,
		Direction: req.Direction,
		Window:    req.Window,
	})
}

// FilterOptions lists entity names of d from the all-time rollup.
func (e *DuckDBEngine) FilterOptions(ctx context.Context, d snapshot.Dimension, prefix string, limit int) ([]FilterOption, error) {
	defer observe("filter_options", time.Now())
	if err := validDimension(d, "dimension"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = filter.DefaultLimit
	}
	limit = min(limit, filter.MaxLimit)

	ctx, cancel := e.withBudget(ctx)
	defer cancel()
	snap := e.store.Current()
	all := snapshot.AllTimeBucket()
	if !snap.HasRollup(all, d) {
		return nil, nil
	}

	w := &whereBuilder{}
	if p := strings.TrimSpace(prefix); p != "" {
		w.add(`entity ILIKE ? ESCAPE '\'`, escapeILIKE(p)+"%")
	}
	query := fmt.Sprintf(`
		SELECT entity, contract_count, CAST(total_value AS VARCHAR)
		FROM %s
		WHERE %s
		ORDER BY total_value DESC, entity ASC
		LIMIT ?`, parquetSource([]string{snap.RollupPath(all, d)}), w.String())

	rows, err := e.db.QueryContext(ctx, query, append(w.args, limit)...)
	if err != nil {
		return nil, e.fail(ctx, "filter_options", fmt.Errorf("filter options: %w", err))
	}
	defer rows.Close()

	var out []FilterOption
	for rows.Next() {
		var opt FilterOption
		var total string
		if err := rows.Scan(&opt.Name, &opt.Count, &total); err != nil {
			return nil, fmt.Errorf("scan filter option: %w", err)
		}
		if opt.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total for %q: %w", opt.Name, err)
		}
		out = append(out, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, e.fail(ctx, "filter_options", fmt.Errorf("iterate filter options: %w", err))
	}
	return out, nil
}

// TimeRanges lists the year and quarter buckets declared by the manifest.
func (e *DuckDBEngine) TimeRanges(_ context.Context) (*TimeRanges, error) {
	snap := e.store.Current()
	domain := snap.Domain()
	out := &TimeRanges{MinDate: domain.Min, MaxDate: domain.Max}

	period := func(b snapshot.Bucket) Period {
		info, _ := snap.Bucket(b)
		start, end := b.Span(domain)
		return Period{Key: b.Key(), Start: start, End: end, RowCount: info.RowCount, Total: info.TotalValue}
	}
	for _, y := range snap.Years() {
		out.Years = append(out.Years, period(snapshot.YearBucket(y)))
	}
	for _, q := range snap.Quarters() {
		out.Quarters = append(out.Quarters, period(q))
	}
	return out, nil
}

// computeAggregate plans and executes req, returning every row sorted and
// ranked.
func (e *DuckDBEngine) computeAggregate(ctx context.Context, snap *snapshot.Snapshot, req Request) ([]AggregateRow, *Plan, error) {
	chips := req.chips()
	plan := e.plan(snap, chips, req.Dimension)
	rows, err := e.execute(ctx, snap, plan, chips)
	if err != nil {
		return nil, plan, err
	}
	SortRows(rows, req.Sort, req.Direction)
	return rows, plan, nil
}

// execute runs plan and merges its partials.
func (e *DuckDBEngine) execute(ctx context.Context, snap *snapshot.Snapshot, plan *Plan, chips *filter.ChipSet) ([]AggregateRow, error) {
	acc := NewAccumulator(plan.Dimension)
	add := func(parts []Partial) error {
		for _, p := range parts {
			if err := acc.Add(p); err != nil {
				return err
			}
		}
		return nil
	}

	if plan.Kind == FactScan {
		parts, err := e.scanPartials(ctx, factFiles(snap, plan), chips, plan.Dimension)
		if err != nil {
			return nil, err
		}
		if err := add(parts); err != nil {
			return nil, err
		}
		return acc.Rows(), nil
	}

	perBucket, err := e.readRollups(ctx, snap, plan, chips)
	if err != nil {
		return nil, err
	}
	for _, parts := range perBucket {
		if err := add(parts); err != nil {
			return nil, err
		}
	}
	if plan.Secondary {
		path, _ := snap.SecondaryFactsPath()
		parts, err := e.scanPartials(ctx, []string{path}, chips, plan.Dimension)
		if err != nil {
			return nil, err
		}
		if err := add(parts); err != nil {
			return nil, err
		}
	}
	return acc.Rows(), nil
}

// readRollups reads each plan bucket concurrently. Results are returned in
// plan order so merging is deterministic.
func (e *DuckDBEngine) readRollups(ctx context.Context, snap *snapshot.Snapshot, plan *Plan, chips *filter.ChipSet) ([][]Partial, error) {
	dim := plan.Dimension
	// Without chips on dim a rollup must account for every fact in its bucket.
	checkCounts := !chips.HasEntities(dim)

	results := make([][]Partial, len(plan.Buckets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.reads)
	for i, b := range plan.Buckets {
		g.Go(func() error {
			parts, err := e.readRollup(gctx, snap.RollupPath(b, dim), chips, dim)
			if err != nil {
				return fmt.Errorf("read %s rollup for bucket %s: %w", dim, b, err)
			}
			if checkCounts {
				if err := checkBucketCount(snap, b, dim, parts); err != nil {
					return err
				}
			}
			results[i] = parts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func checkBucketCount(snap *snapshot.Snapshot, b snapshot.Bucket, dim snapshot.Dimension, parts []Partial) error {
	info, ok := snap.Bucket(b)
	if !ok {
		return nil
	}
	var n int64
	for _, p := range parts {
		n += p.Count
	}
	if n != info.RowCount {
		return &InternalInconsistencyError{
			Detail: fmt.Sprintf("bucket %s %s rollup holds %d contracts, manifest declares %d", b, dim, n, info.RowCount),
		}
	}
	return nil
}

func (e *DuckDBEngine) readRollup(ctx context.Context, path string, chips *filter.ChipSet, dim snapshot.Dimension) ([]Partial, error) {
	w := rollupWhere(chips, dim)
	query := fmt.Sprintf(`
		SELECT entity, contract_count, CAST(total_value AS VARCHAR), first_date, last_date, %s
		FROM %s
		WHERE %s`,
		counterpartSelect(dim, func(o snapshot.Dimension) string { return o.NamesColumn() }),
		parquetSource([]string{path}), w.String())

	rows, err := e.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPartialRows(rows, dim)
}

// scanPartials groups matching fact rows by dim's entity column.
func (e *DuckDBEngine) scanPartials(ctx context.Context, files []string, chips *filter.ChipSet, dim snapshot.Dimension) ([]Partial, error) {
	w := factWhere(chips)
	query := fmt.Sprintf(`
		SELECT %s AS entity, COUNT(*), CAST(SUM(contract_amount) AS VARCHAR),
			MIN(award_date), MAX(award_date), %s
		FROM %s
		WHERE %s
		GROUP BY 1`,
		dim.Column(),
		counterpartSelect(dim, func(o snapshot.Dimension) string {
			return fmt.Sprintf("list_sort(list(DISTINCT %s))", o.Column())
		}),
		parquetSource(files), w.String())

	rows, err := e.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("scan facts: %w", err)
	}
	defer rows.Close()
	return scanPartialRows(rows, dim)
}

func scanPartialRows(rows *sql.Rows, dim snapshot.Dimension) ([]Partial, error) {
	others := dim.Others()
	var out []Partial
	for rows.Next() {
		var p Partial
		var total string
		var first, last sql.NullTime
		lists := make([]sql.NullString, len(others))
		dest := []any{&p.Entity, &p.Count, &total, &first, &last}
		for i := range lists {
			dest = append(dest, &lists[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan partial: %w", err)
		}

		var err error
		if p.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total for %q: %w", p.Entity, err)
		}
		if first.Valid {
			p.First = first.Time
		}
		if last.Valid {
			p.Last = last.Time
		}
		p.Counterparts = make(map[snapshot.Dimension][]string, len(others))
		for i, o := range others {
			names, err := parseNames(lists[i])
			if err != nil {
				return nil, fmt.Errorf("parse %s names for %q: %w", o, p.Entity, err)
			}
			p.Counterparts[o] = names
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partials: %w", err)
	}
	return out, nil
}

func parseNames(s sql.NullString) ([]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(s.String), &names); err != nil {
		return nil, err
	}
	return names, nil
}

// factFiles lists the fact tables a scan plan reads, including the
// secondary dataset when the plan carries it.
func factFiles(snap *snapshot.Snapshot, plan *Plan) []string {
	scan := plan.ScanBuckets
	if len(scan) == 0 {
		scan = []snapshot.Bucket{snapshot.AllTimeBucket()}
	}
	paths := make([]string, 0, len(scan)+1)
	for _, b := range scan {
		paths = append(paths, snap.FactsPath(b))
	}
	if plan.Secondary {
		if p, ok := snap.SecondaryFactsPath(); ok {
			paths = append(paths, p)
		}
	}
	return paths
}

func (e *DuckDBEngine) countFacts(ctx context.Context, snap *snapshot.Snapshot, plan *Plan, chips *filter.ChipSet) (int64, error) {
	n, _, err := e.sumFacts(ctx, factFiles(snap, plan), chips)
	return n, err
}

func (e *DuckDBEngine) sumFacts(ctx context.Context, files []string, chips *filter.ChipSet) (int64, decimal.Decimal, error) {
	w := factWhere(chips)
	query := fmt.Sprintf(
		"SELECT COUNT(*), CAST(COALESCE(SUM(contract_amount), 0) AS VARCHAR) FROM %s WHERE %s",
		parquetSource(files), w.String())
	var n int64
	var total string
	if err := e.db.QueryRowContext(ctx, query, w.args...).Scan(&n, &total); err != nil {
		return 0, decimal.Zero, fmt.Errorf("count facts: %w", err)
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("parse fact total %q: %w", total, err)
	}
	return n, d, nil
}

// globalTotals sums the unfiltered data for the chips' time ranges: from
// manifest bucket totals when the ranges tile declared buckets, otherwise
// with one scan over the facts.
func (e *DuckDBEngine) globalTotals(ctx context.Context, snap *snapshot.Snapshot, chips *filter.ChipSet) (*Totals, error) {
	base := chips.TimeOnly()
	t := &Totals{Total: decimal.Zero}

	buckets, aligned := coverBuckets(snap.Domain(), base.TimeRanges)
	var infos []snapshot.BucketInfo
	for _, b := range buckets {
		info, ok := snap.Bucket(b)
		if !ok {
			aligned = false
			break
		}
		infos = append(infos, info)
	}

	if aligned {
		for _, info := range infos {
			t.Count += info.RowCount
			t.Total = t.Total.Add(info.TotalValue)
		}
	} else {
		var files []string
		for _, b := range scanBuckets(snap, base.TimeRanges) {
			files = append(files, snap.FactsPath(b))
		}
		n, total, err := e.sumFacts(ctx, files, base)
		if err != nil {
			return nil, err
		}
		t.Count, t.Total = n, total
	}

	if base.IncludeSecondary {
		if path, ok := snap.SecondaryFactsPath(); ok {
			if !base.HasTimeRanges() {
				sec := snap.Manifest().Secondary
				t.Count += sec.RowCount
				t.Total = t.Total.Add(sec.TotalValue)
			} else {
				n, total, err := e.sumFacts(ctx, []string{path}, base)
				if err != nil {
					return nil, err
				}
				t.Count += n
				t.Total = t.Total.Add(total)
			}
		}
	}
	return t, nil
}

func rawQuery(snap *snapshot.Snapshot, plan *Plan, chips *filter.ChipSet, sort SortField, dir Direction, w *filter.Window) (string, []any) {
	where := factWhere(chips)
	if dir == "" {
		dir = Desc
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		contractSelect, parquetSource(factFiles(snap, plan)), where.String(), rawOrderBy(sort, dir))
	args := where.args
	if w != nil {
		query += " LIMIT ? OFFSET ?"
		args = append(args, w.Limit, w.Offset)
	}
	return query, args
}

func scanContract(rows *sql.Rows) (Contract, error) {
	var c Contract
	var amount string
	var awarded sql.NullTime
	if err := rows.Scan(
		&c.ReferenceID,
		&c.ContractNumber,
		&c.AwardTitle,
		&c.NoticeTitle,
		&c.Contractor,
		&c.Organization,
		&c.Area,
		&c.Category,
		&amount,
		&awarded,
		&c.Status,
	); err != nil {
		return c, fmt.Errorf("scan contract: %w", err)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return c, fmt.Errorf("parse amount for %s: %w", c.ReferenceID, err)
	}
	c.Amount = d
	if awarded.Valid {
		c.AwardDate = awarded.Time
	}
	return c, nil
}

// cursorSource streams contracts from an open query.
type cursorSource struct {
	rows *sql.Rows
	done bool
}

func (c *cursorSource) Header() []string { return ContractColumns }

func (c *cursorSource) Next(ctx context.Context, n int) ([][]string, error) {
	if c.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	batch := make([][]string, 0, min(n, 4096))
	for len(batch) < n {
		if !c.rows.Next() {
			c.done = true
			if err := c.rows.Err(); err != nil {
				return nil, fmt.Errorf("read contracts: %w", err)
			}
			break
		}
		ct, err := scanContract(c.rows)
		if err != nil {
			return nil, err
		}
		batch = append(batch, ct.Record())
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (c *cursorSource) Close() error { return c.rows.Close() }

// sliceSource serves already sorted aggregate rows.
type sliceSource struct {
	dim  snapshot.Dimension
	rows []AggregateRow
	pos  int
}

func (s *sliceSource) Header() []string { return AggregateColumns(s.dim) }

func (s *sliceSource) Next(ctx context.Context, n int) ([][]string, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	end := min(s.pos+n, len(s.rows))
	batch := make([][]string, 0, end-s.pos)
	for _, r := range s.rows[s.pos:end] {
		batch = append(batch, r.Record(s.dim))
	}
	s.pos = end
	return batch, nil
}

func (s *sliceSource) Close() error { return nil }
