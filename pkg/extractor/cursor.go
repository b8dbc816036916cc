package extractor

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/whois-cat/ETL/pkg/database"
	"github.com/whois-cat/ETL/pkg/models"
)

// Cursor hands out the rows of one query execution in chunks.
type Cursor interface {
	// Fetch returns at most n rows; an empty slice means the result set is drained.
	Fetch(ctx context.Context, n int, scan ScanFunc) ([]models.Row, error)
	Close(ctx context.Context) error
}

// CursorOpener starts a query execution.
type CursorOpener interface {
	Open(ctx context.Context, query string, args []any) (Cursor, error)
}

var cursorSeq atomic.Uint64

// PostgresOpener runs each query as a server-side cursor inside a read-only
// repeatable-read transaction, so only one chunk is held in memory at a time.
type PostgresOpener struct {
	db     database.DB
	logger ectologger.Logger
}

func NewPostgresOpener(db database.DB, logger ectologger.Logger) *PostgresOpener {
	return &PostgresOpener{db: db, logger: logger}
}

func (o *PostgresOpener) Open(ctx context.Context, query string, args []any) (Cursor, error) {
	tx, err := o.db.ReadOnlyTx(ctx)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("etl_cursor_%d", cursorSeq.Add(1))
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR %s", name, query), args...); err != nil {
		_ = tx.Rollback()
		return nil, errors.Wrap(err, "failed to declare cursor")
	}

	o.logger.WithContext(ctx).WithField("cursor", name).Debug("Opened source cursor")
	return &pgCursor{tx: tx, name: name}, nil
}

type pgCursor struct {
	tx   *sqlx.Tx
	name string
}

func (c *pgCursor) Fetch(ctx context.Context, n int, scan ScanFunc) ([]models.Row, error) {
	rows, err := c.tx.QueryxContext(ctx, fmt.Sprintf("FETCH FORWARD %d FROM %s", n, c.name))
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch from cursor")
	}
	defer rows.Close()

	out := make([]models.Row, 0, n)
	for rows.Next() {
		row, err := scan(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read cursor rows")
	}
	return out, nil
}

// Close ends the snapshot. Nothing was written, so rolling back is enough.
func (c *pgCursor) Close(ctx context.Context) error {
	return c.tx.Rollback()
}
