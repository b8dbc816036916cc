// Package extractor streams changed aggregate rows out of the source database.
package extractor

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"iter"
	"net"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/whois-cat/ETL/pkg/models"
	"github.com/whois-cat/ETL/pkg/retry"
	"github.com/whois-cat/ETL/pkg/tracing"
)

const DefaultChunkSize = 100

type Extractor struct {
	opener    CursorOpener
	chunkSize int
	policy    retry.Policy
	logger    ectologger.Logger
}

func NewExtractor(opener CursorOpener, chunkSize int, policy retry.Policy, logger ectologger.Logger) *Extractor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Extractor{
		opener:    opener,
		chunkSize: chunkSize,
		policy:    policy,
		logger:    logger,
	}
}

// Extract lazily yields the rows of q after since, ascending by (modified, id).
// Rows are pulled chunkSize at a time. A transient failure reopens the query and skips
// every row up to the last one yielded, so a retry never repeats or drops a row.
// After the first error the sequence ends.
func (e *Extractor) Extract(ctx context.Context, q Query, since models.Position) iter.Seq2[models.Row, error] {
	return func(yield func(models.Row, error) bool) {
		ctx, span := tracing.StartSpan(ctx, "extractor.Extract")
		defer span.End()

		log := e.logger.WithContext(ctx).WithFields(map[string]any{
			"kind":  q.Kind,
			"since": since.Modified.UTC().Format(time.RFC3339Nano),
			"after": since.ID,
		})

		query, args := q.Build(since)

		var cursor Cursor
		defer func() {
			if cursor != nil {
				if err := cursor.Close(ctx); err != nil {
					log.WithError(err).Warn("Failed to close source cursor")
				}
			}
		}()

		fetch := func() ([]models.Row, error) {
			if cursor == nil {
				c, err := e.opener.Open(ctx, query, args)
				if err != nil {
					return nil, err
				}
				cursor = c
			}
			rows, err := cursor.Fetch(ctx, e.chunkSize, q.Scan)
			if err != nil {
				// the transaction is unusable after an error; reopen on the next attempt
				_ = cursor.Close(ctx)
				cursor = nil
				return nil, err
			}
			return rows, nil
		}

		pos := since
		total := 0
		for {
			chunk, err := retry.Do(ctx, e.policy, e.logger, "extract "+q.Kind.String(), IsTransient, fetch)
			if err != nil {
				log.WithError(err).Error("Extraction failed")
				yield(nil, err)
				return
			}
			if len(chunk) == 0 {
				log.WithField("rows", total).Debug("Extraction finished")
				return
			}

			for _, row := range chunk {
				if !pos.Before(row) {
					continue
				}
				if !yield(row, nil) {
					return
				}
				pos = models.PositionOf(row)
				total++
			}
		}
	}
}

// After reports whether a sorts strictly after b in (modified, id) order.
func After(a, b models.Row) bool {
	return models.PositionOf(b).Before(a)
}

// IsTransient reports whether a source error is worth retrying:
// dropped connections, server shutdown, resource exhaustion and serialization conflicts.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return true
		}
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
