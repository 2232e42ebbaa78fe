// Package export streams query results as CSV. An export runs in two
// phases: Estimate sizes the output without materializing it, then a
// Streamer writes it in bounded batches while a Job tracks progress and
// carries the client's cancellation request.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"github.com/wesm/contractlens/internal/query"
)

// Average CSV row widths used for byte estimates.
const (
	DefaultRawRowWidth       = 250
	DefaultAggregateRowWidth = 120
)

// Widths are the per-row byte estimates for each export kind.
type Widths struct {
	Raw       int
	Aggregate int
}

// DefaultWidths returns the stock row widths.
func DefaultWidths() Widths {
	return Widths{Raw: DefaultRawRowWidth, Aggregate: DefaultAggregateRowWidth}
}

// Estimate is the size of an export computed before any row is written.
type Estimate struct {
	RowCount int64
	Bytes    int64
	Header   []string
}

// Header returns the CSV header an export of req starts with.
func Header(req query.Request) []string {
	if req.Raw() {
		return query.ContractColumns
	}
	return query.AggregateColumns(req.Dimension)
}

// EstimateExport counts the rows req would export and derives a byte
// estimate from the header length and the row width for its kind.
func EstimateExport(ctx context.Context, engine query.Engine, req query.Request, widths Widths) (*Estimate, error) {
	n, err := engine.Count(ctx, req)
	if err != nil {
		return nil, err
	}
	if widths.Raw <= 0 {
		widths.Raw = DefaultRawRowWidth
	}
	if widths.Aggregate <= 0 {
		widths.Aggregate = DefaultAggregateRowWidth
	}
	width := int64(widths.Aggregate)
	if req.Raw() {
		width = int64(widths.Raw)
	}

	header := Header(req)
	hb, err := headerBytes(header)
	if err != nil {
		return nil, err
	}
	return &Estimate{RowCount: n, Bytes: hb + n*width, Header: header}, nil
}

func headerBytes(header []string) (int64, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return 0, fmt.Errorf("encode header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("encode header: %w", err)
	}
	return int64(buf.Len()), nil
}
