package search

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/olivere/elastic/v7"

	"github.com/whois-cat/ETL/pkg/metrics"
	"github.com/whois-cat/ETL/pkg/retry"
	"github.com/whois-cat/ETL/pkg/tracing"
)

// Loader upserts documents, retrying transient backend failures under its policy.
type Loader struct {
	indexer Indexer
	policy  retry.Policy
	logger  ectologger.Logger
}

func NewLoader(indexer Indexer, policy retry.Policy, logger ectologger.Logger) *Loader {
	return &Loader{indexer: indexer, policy: policy, logger: logger}
}

// Upsert fully replaces the document stored at id in index.
func (l *Loader) Upsert(ctx context.Context, index, id string, doc any) error {
	ctx, span := tracing.StartSpan(ctx, "search.Loader.Upsert")
	defer span.End()

	start := time.Now()
	err := retry.Run(ctx, l.policy, l.logger, "upsert "+index, IsTransient, func() error {
		return l.indexer.Index(ctx, index, id, doc)
	})
	metrics.UpsertDuration.WithLabelValues(index).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.UpsertsTotal.WithLabelValues(index, "failure").Inc()
		span.RecordError(err)
		l.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"index": index,
			"id":    id,
		}).Error("Failed to upsert document")
		return err
	}

	metrics.UpsertsTotal.WithLabelValues(index, "success").Inc()
	l.logger.WithContext(ctx).WithFields(map[string]any{
		"index": index,
		"id":    id,
	}).Debug("Upserted document")
	return nil
}

// IsTransient reports whether an index error is worth retrying: the node is
// unreachable, timed out, throttled (429) or failed server side (5xx).
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if elastic.IsConnErr(err) || elastic.IsTimeout(err) {
		return true
	}

	var esErr *elastic.Error
	if errors.As(err, &esErr) {
		return esErr.Status == http.StatusTooManyRequests || esErr.Status >= http.StatusInternalServerError
	}

	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
}
