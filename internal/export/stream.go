package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/wesm/contractlens/internal/query"
)

// DefaultBatchSize is the number of rows written per batch.
const DefaultBatchSize = 50_000

// Progress is called after every batch with the rows written so far and
// the estimated total.
type Progress func(rowsEmitted, estimatedRows int64)

// Streamer writes the rows of a job as CSV.
type Streamer struct {
	engine    query.Engine
	batchSize int
	logger    *slog.Logger
}

// NewStreamer returns a streamer reading from engine. A non-positive
// batchSize uses DefaultBatchSize.
func NewStreamer(engine query.Engine, batchSize int, logger *slog.Logger) *Streamer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{engine: engine, batchSize: batchSize, logger: logger}
}

// Stream writes the header and every row of job.Request to w. At most
// one batch is held in memory, and w's blocking Write paces the reads.
// Cancellation is checked before each batch: a cancelled ctx or job
// ends the stream with *query.CancelledError. Stream returns the number
// of data rows written.
func (s *Streamer) Stream(ctx context.Context, job *Job, w io.Writer, progress Progress) (int64, error) {
	src, err := s.engine.Rows(ctx, job.Request)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(src.Header()); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	for {
		if job.Cancelled() || ctx.Err() != nil {
			return s.cancelled(job)
		}
		batch, err := src.Next(ctx, s.batchSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return s.cancelled(job)
			}
			return job.Rows(), fmt.Errorf("export job %s: %w", job.ID, err)
		}

		for _, rec := range batch {
			if err := cw.Write(rec); err != nil {
				return job.Rows(), fmt.Errorf("write row: %w", err)
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return job.Rows(), fmt.Errorf("write batch: %w", err)
		}

		emitted := job.addRows(len(batch))
		query.ExportRows.Add(float64(len(batch)))
		if progress != nil {
			progress(emitted, job.Estimate.RowCount)
		}
	}

	s.logger.Info("export finished", "job", job.ID, "rows", job.Rows())
	return job.Rows(), nil
}

func (s *Streamer) cancelled(job *Job) (int64, error) {
	n := job.Rows()
	s.logger.Info("export cancelled", "job", job.ID, "rows", n)
	return n, &query.CancelledError{RowsEmitted: n}
}
