// Package pipeline runs the extract, transform, load and checkpoint loop for every kind.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/whois-cat/ETL/pkg/checkpoint"
	"github.com/whois-cat/ETL/pkg/extractor"
	"github.com/whois-cat/ETL/pkg/metrics"
	"github.com/whois-cat/ETL/pkg/models"
	"github.com/whois-cat/ETL/pkg/tracing"
)

var (
	// ErrAlreadyRunning is returned when Start is called on a running coordinator
	ErrAlreadyRunning = errors.New("coordinator already running")
	// ErrLockLost is returned when the instance lock cannot be held before a checkpoint write
	ErrLockLost = errors.New("instance lock lost")
)

const (
	// DefaultPollInterval is the pause between the end of one cycle and the start of the next
	DefaultPollInterval = time.Second

	shutdownTimeout = 30 * time.Second
)

// Source streams the changed rows of one query.
type Source interface {
	Extract(ctx context.Context, q extractor.Query, since models.Position) iter.Seq2[models.Row, error]
}

type Transformer interface {
	Transform(row models.Row) (models.Document, error)
}

type Loader interface {
	Upsert(ctx context.Context, index, id string, doc any) error
}

// Publisher announces a loaded row. Failures are logged, never fatal.
type Publisher interface {
	PublishIndexed(ctx context.Context, kind models.Kind, index string, row models.Row) error
}

// Guard keeps a second instance from advancing the same checkpoints.
// Acquire is called before every checkpoint write and must also extend a lock already held.
type Guard interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// Entry binds a kind to its source query and target index.
type Entry struct {
	Kind  models.Kind
	Index string
	Query extractor.Query
}

// DefaultEntries pairs each default query with the index indexName gives its kind.
func DefaultEntries(indexName func(base string) string) []Entry {
	queries := extractor.DefaultQueries()
	entries := make([]Entry, 0, len(queries))
	for _, q := range queries {
		entries = append(entries, Entry{Kind: q.Kind, Index: indexName(q.Kind.String()), Query: q})
	}
	return entries
}

type Dependencies struct {
	Source      Source
	Transformer Transformer
	Loader      Loader
	Store       checkpoint.Store
	// optional
	Publisher Publisher
	Guard     Guard
}

type Config struct {
	PollInterval time.Duration
	Entries      []Entry
}

// Coordinator processes the configured kinds one after another, once per cycle.
type Coordinator struct {
	deps   Dependencies
	config Config
	logger ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex

	statusMu sync.RWMutex
	status   Status
}

func NewCoordinator(deps Dependencies, config Config, logger ectologger.Logger) *Coordinator {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	kinds := make(map[models.Kind]KindStatus, len(config.Entries))
	for _, e := range config.Entries {
		kinds[e.Kind] = KindStatus{Index: e.Index}
	}

	return &Coordinator{
		deps:     deps,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
		status:   Status{Kinds: kinds},
	}
}

// KindResult is the outcome of one kind within a cycle.
type KindResult struct {
	Kind      models.Kind
	Index     string
	Since     models.Position
	Rows      int
	Watermark models.Position
	Err       error
}

// CycleResult is the outcome of one pass over every kind.
type CycleResult struct {
	Kinds    []KindResult
	Duration time.Duration
}

// Failed returns the kinds that stopped on an error.
func (r CycleResult) Failed() []KindResult {
	var out []KindResult
	for _, k := range r.Kinds {
		if k.Err != nil {
			out = append(out, k)
		}
	}
	return out
}

// RunCycle processes every entry once. A failing kind is logged and the next kind still
// runs; a checkpoint store failure or a lost instance lock stops the whole cycle and is returned.
func (c *Coordinator) RunCycle(ctx context.Context) (CycleResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Coordinator.RunCycle")
	defer span.End()

	start := time.Now()
	var result CycleResult
	c.logger.WithContext(ctx).Debug("Running pipeline cycle")

	var cycleErr error
	for _, entry := range c.config.Entries {
		if c.deps.Guard != nil {
			if err := c.deps.Guard.Acquire(ctx); err != nil {
				cycleErr = fmt.Errorf("instance lock: %w", err)
				break
			}
		}

		kr := c.runKind(ctx, entry)
		result.Kinds = append(result.Kinds, kr)
		c.recordKind(kr)

		if kr.Err == nil {
			metrics.KindRunsTotal.WithLabelValues(entry.Kind.String(), "success").Inc()
			continue
		}
		metrics.KindRunsTotal.WithLabelValues(entry.Kind.String(), "failure").Inc()

		if errors.Is(kr.Err, checkpoint.ErrUnavailable) || errors.Is(kr.Err, ErrLockLost) || ctx.Err() != nil {
			cycleErr = kr.Err
			break
		}
	}

	result.Duration = time.Since(start)
	metrics.CycleDuration.Observe(result.Duration.Seconds())

	status := "success"
	switch {
	case cycleErr != nil:
		status = "failure"
		span.RecordError(cycleErr)
		c.logger.WithContext(ctx).WithError(cycleErr).Errorf("Pipeline cycle aborted after %s", result.Duration)
	case len(result.Failed()) > 0:
		status = "partial"
	}
	metrics.CyclesTotal.WithLabelValues(status).Inc()
	c.recordCycle(start, cycleErr)

	if cycleErr == nil {
		rows := 0
		for _, k := range result.Kinds {
			rows += k.Rows
		}
		c.logger.WithContext(ctx).Infof("Pipeline cycle completed: rows=%d failed_kinds=%d duration=%s",
			rows, len(result.Failed()), result.Duration)
	}
	return result, cycleErr
}

// runKind reads the watermark, then for each changed row transforms, upserts and
// checkpoints it before touching the next one.
func (c *Coordinator) runKind(ctx context.Context, entry Entry) (result KindResult) {
	ctx, span := tracing.StartSpan(ctx, "Coordinator.runKind")
	defer span.End()
	tracing.SetAttributes(ctx, attribute.String("kind", entry.Kind.String()), attribute.String("index", entry.Index))

	result = KindResult{Kind: entry.Kind, Index: entry.Index}
	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"kind":  entry.Kind,
		"index": entry.Index,
	})

	defer func() {
		if result.Err != nil {
			span.RecordError(result.Err)
			log.WithError(result.Err).WithField("rows", result.Rows).Error("Kind aborted for this cycle")
		} else if result.Rows > 0 {
			log.WithFields(map[string]any{
				"rows":      result.Rows,
				"watermark": result.Watermark.Modified.UTC().Format(time.RFC3339Nano),
				"last_id":   result.Watermark.ID,
			}).Info("Kind loaded")
		}
	}()

	since, err := checkpoint.Watermark(ctx, c.deps.Store, entry.Kind)
	if err != nil {
		result.Err = fmt.Errorf("read checkpoint for %s: %w", entry.Kind, err)
		return result
	}
	result.Since = since
	result.Watermark = since

	for row, err := range c.deps.Source.Extract(ctx, entry.Query, since) {
		if err != nil {
			result.Err = fmt.Errorf("extract %s: %w", entry.Kind, err)
			return result
		}

		doc, err := c.deps.Transformer.Transform(row)
		if err != nil {
			result.Err = fmt.Errorf("transform %s %q: %w", entry.Kind, row.Key(), err)
			return result
		}

		if err := c.deps.Loader.Upsert(ctx, entry.Index, doc.DocumentID(), doc); err != nil {
			result.Err = fmt.Errorf("load %s %q: %w", entry.Kind, row.Key(), err)
			return result
		}

		if c.deps.Guard != nil {
			if err := c.deps.Guard.Acquire(ctx); err != nil {
				result.Err = fmt.Errorf("%w before checkpoint of %s %q: %w", ErrLockLost, entry.Kind, row.Key(), err)
				return result
			}
		}

		pos := models.PositionOf(row)
		if err := c.deps.Store.Set(ctx, entry.Kind, pos); err != nil {
			result.Err = fmt.Errorf("advance checkpoint for %s: %w", entry.Kind, err)
			return result
		}

		result.Rows++
		result.Watermark = pos
		metrics.RowsProcessed.WithLabelValues(entry.Kind.String()).Inc()
		metrics.Watermark.WithLabelValues(entry.Kind.String()).Set(float64(row.LastModified().Unix()))

		if c.deps.Publisher != nil {
			if err := c.deps.Publisher.PublishIndexed(ctx, entry.Kind, entry.Index, row); err != nil {
				log.WithError(err).WithField("id", row.Key()).Warn("Failed to publish document event")
			}
		}
	}
	return result
}

// Start runs cycles in the background until Stop is called or ctx ends.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()

	c.logger.WithContext(ctx).Infof("Starting pipeline: poll_interval=%s kinds=%d",
		c.config.PollInterval, len(c.config.Entries))

	go c.loop(ctx)
	return nil
}

// Stop ends the loop after the current cycle and releases the instance lock.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		c.releaseGuard(ctx)
		return nil
	}
	c.running = false
	c.mu.Unlock()

	c.logger.WithContext(ctx).Info("Stopping pipeline...")
	close(c.stopCh)

	select {
	case <-c.stoppedC:
		c.logger.WithContext(ctx).Info("Pipeline stopped gracefully")
	case <-ctx.Done():
		c.logger.WithContext(ctx).Warn("Pipeline shutdown timed out")
		return ctx.Err()
	}

	c.releaseGuard(ctx)
	return nil
}

func (c *Coordinator) releaseGuard(ctx context.Context) {
	if c.deps.Guard == nil {
		return
	}
	if err := c.deps.Guard.Release(ctx); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Failed to release instance lock")
	}
}

// Run blocks, cycling until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-c.stoppedC:
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return c.Stop(stopCtx)
}

func (c *Coordinator) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *Coordinator) loop(ctx context.Context) {
	defer close(c.stoppedC)

	for {
		if _, err := c.RunCycle(ctx); err != nil && ctx.Err() != nil {
			return
		}

		timer := time.NewTimer(c.config.PollInterval)
		select {
		case <-c.stopCh:
			timer.Stop()
			c.logger.WithContext(ctx).Debug("Pipeline loop stopping")
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
