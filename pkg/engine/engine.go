// Package engine runs a union pipeline: every source is read concurrently into
// one dataset, the datasets are unioned by column name in source order, and the
// result is written to a sink.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/sync/errgroup"

	helpers "github.com/sandboxws/isotope/frameunion/pkg/arrow/helpers"
	"github.com/sandboxws/isotope/frameunion/pkg/metrics"
	"github.com/sandboxws/isotope/frameunion/pkg/operator"
)

const defaultChannelBuffer = 16

// UnionOperator is an operator that emits its result on Flush.
type UnionOperator interface {
	operator.Operator
	operator.Flusher
}

// Engine executes one union pipeline.
type Engine struct {
	name    string
	alloc   memory.Allocator
	sources []operator.Source
	union   UnionOperator
	sink    operator.Sink
	logger  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// NewEngine creates an engine that unions the output of sources, in order,
// and writes the result to sink.
func NewEngine(name string, alloc memory.Allocator, sources []operator.Source, union UnionOperator, sink operator.Sink) *Engine {
	return &Engine{
		name:    name,
		alloc:   alloc,
		sources: sources,
		union:   union,
		sink:    sink,
		logger:  slog.Default().With("pipeline", name),
	}
}

// Run reads all sources, unions them and writes the result.
// Blocks until the pipeline completes, fails, or ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.cancel = cancel
	if e.stopped {
		cancel()
	}
	e.mu.Unlock()

	if err := ValidatePipeline(e.sources, e.union, e.sink); err != nil {
		return fmt.Errorf("invalid pipeline: %w", err)
	}

	datasets, err := e.readSources(ctx)
	defer func() {
		for _, d := range datasets {
			if d != nil {
				d.Release()
			}
		}
	}()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pipeline %s: %w", e.name, err)
	}

	results, err := e.runUnion(ctx, datasets)
	if err != nil {
		return err
	}
	defer func() {
		for _, r := range results {
			r.Release()
		}
	}()

	return e.writeSink(ctx, results)
}

// Stop cancels a running pipeline. A pipeline stopped before Run returns
// without reading its sources.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	if e.cancel != nil {
		e.cancel()
	}
}

// readSources drains every source concurrently. Entry i of the result holds
// source i's batches concatenated into one record.
func (e *Engine) readSources(ctx context.Context) ([]arrow.Record, error) {
	datasets := make([]arrow.Record, len(e.sources))
	g, gctx := errgroup.WithContext(ctx)

	for i, src := range e.sources {
		g.Go(func() error {
			id := fmt.Sprintf("source-%d", i)
			rec, err := e.drainSource(gctx, id, src)
			if err != nil {
				metrics.Errors.WithLabelValues(id, "source").Inc()
				return fmt.Errorf("%s: %w", id, err)
			}
			datasets[i] = rec
			return nil
		})
	}

	return datasets, g.Wait()
}

func (e *Engine) drainSource(ctx context.Context, id string, src operator.Source) (arrow.Record, error) {
	opCtx := operator.NewContext(ctx, e.alloc, id, "source")
	if err := src.Open(opCtx); err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer src.Close()

	out := make(chan arrow.Record, defaultChannelBuffer)
	errCh := make(chan error, 1)
	go func() {
		errCh <- src.Run(opCtx, out)
	}()

	var batches []arrow.Record
	for batch := range out {
		batches = append(batches, batch)
	}
	release := func() {
		for _, b := range batches {
			b.Release()
		}
	}

	if err := <-errCh; err != nil {
		release()
		return nil, fmt.Errorf("run: %w", err)
	}
	if err := ctx.Err(); err != nil {
		release()
		return nil, err
	}

	switch len(batches) {
	case 0:
		return nil, fmt.Errorf("produced no data")
	case 1:
		opCtx.Logger.Debug("source drained", "rows", batches[0].NumRows())
		return batches[0], nil
	}

	rec, err := helpers.ConcatRecords(e.alloc, batches)
	release()
	if err != nil {
		return nil, fmt.Errorf("combine batches: %w", err)
	}
	opCtx.Logger.Debug("source drained", "batches", len(batches), "rows", rec.NumRows())
	return rec, nil
}

func (e *Engine) runUnion(ctx context.Context, datasets []arrow.Record) ([]arrow.Record, error) {
	opCtx := operator.NewContext(ctx, e.alloc, "union", "union")
	if err := e.union.Open(opCtx); err != nil {
		return nil, fmt.Errorf("union open: %w", err)
	}
	defer e.union.Close()

	for i, d := range datasets {
		outputs, err := e.union.ProcessBatch(d)
		if err != nil {
			return nil, fmt.Errorf("union input %d: %w", i, err)
		}
		// UnionByName emits on Flush only; anything else is discarded.
		for _, out := range outputs {
			out.Release()
		}
	}

	results, err := e.union.Flush()
	if err != nil {
		return nil, fmt.Errorf("union: %w", err)
	}

	var rows int64
	for _, r := range results {
		rows += r.NumRows()
	}
	e.logger.Info("union complete", "inputs", len(datasets), "rows", rows)
	return results, nil
}

func (e *Engine) writeSink(ctx context.Context, results []arrow.Record) error {
	opCtx := operator.NewContext(ctx, e.alloc, "sink", "sink")
	if err := e.sink.Open(opCtx); err != nil {
		return fmt.Errorf("sink open: %w", err)
	}

	for _, r := range results {
		if err := e.sink.WriteBatch(r); err != nil {
			metrics.Errors.WithLabelValues("sink", "sink").Inc()
			e.sink.Close()
			return fmt.Errorf("sink write: %w", err)
		}
		metrics.RowsProcessed.WithLabelValues("sink", "sink").Add(float64(r.NumRows()))
	}

	if err := e.sink.Close(); err != nil {
		return fmt.Errorf("sink close: %w", err)
	}
	return nil
}
