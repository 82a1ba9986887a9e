// Package operators implements the built-in operators of the frameunion pipeline.
package operators

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	helpers "github.com/sandboxws/isotope/frameunion/pkg/arrow/helpers"
	"github.com/sandboxws/isotope/frameunion/pkg/metrics"
	"github.com/sandboxws/isotope/frameunion/pkg/operator"
	"github.com/sandboxws/isotope/frameunion/pkg/union"
)

// ExecutorFactory creates the union engine when the operator opens.
type ExecutorFactory func(alloc memory.Allocator) (union.Executor, error)

// ArrowExecutorFactory runs unions in process on Arrow arrays.
func ArrowExecutorFactory(alloc memory.Allocator) (union.Executor, error) {
	return union.NewArrowExecutor(alloc), nil
}

// UnionByName holds every incoming batch and, on Flush, unions them in arrival
// order by column name. Columns missing from a batch are null for its rows.
type UnionByName struct {
	engine  string
	factory ExecutorFactory
	exec    union.Executor
	buffer  []arrow.Record
	ctx     *operator.Context
}

// NewUnionByName creates a UnionByName operator. engine labels metrics and logs.
func NewUnionByName(engine string, factory ExecutorFactory) *UnionByName {
	return &UnionByName{engine: engine, factory: factory}
}

func (u *UnionByName) Open(ctx *operator.Context) error {
	exec, err := u.factory(ctx.Alloc)
	if err != nil {
		return fmt.Errorf("union: open %s engine: %w", u.engine, err)
	}
	u.exec = exec
	u.ctx = ctx
	return nil
}

func (u *UnionByName) ProcessBatch(batch arrow.Record) ([]arrow.Record, error) {
	batch.Retain()
	u.buffer = append(u.buffer, batch)
	u.ctx.Metrics.BatchesProcessed.Add(1)
	u.ctx.Metrics.RowsProcessed.Add(batch.NumRows())
	return nil, nil
}

// Flush unions the buffered batches and emits the result as a single batch.
func (u *UnionByName) Flush() ([]arrow.Record, error) {
	if len(u.buffer) == 0 {
		return nil, nil
	}
	buffer := u.buffer
	u.buffer = nil
	defer func() {
		for _, b := range buffer {
			b.Release()
		}
	}()

	start := time.Now()
	result, err := union.UnionAll(u.exec, buffer...)
	if err != nil {
		u.ctx.Metrics.Errors.Add(1)
		metrics.Errors.WithLabelValues(u.ctx.OperatorID, u.ctx.OperatorName).Inc()
		return nil, err
	}

	var padded, aligned int64
	resultNames := helpers.SchemaNames(result.Schema())
	for _, b := range buffer {
		padded += result.NumCols() - b.NumCols()
		if slices.Equal(helpers.SchemaNames(b.Schema()), resultNames) {
			aligned++
		}
	}

	metrics.UnionLatency.WithLabelValues(u.ctx.OperatorID, u.engine).Observe(time.Since(start).Seconds())
	metrics.DatasetsUnioned.WithLabelValues(u.ctx.OperatorID, u.engine).Add(float64(len(buffer)))
	metrics.PaddedColumns.WithLabelValues(u.ctx.OperatorID, u.engine).Add(float64(padded))
	metrics.AlignedInputs.WithLabelValues(u.ctx.OperatorID, u.engine).Add(float64(aligned))
	metrics.RowsProcessed.WithLabelValues(u.ctx.OperatorID, u.ctx.OperatorName).Add(float64(result.NumRows()))

	u.ctx.Logger.Debug("union flushed",
		"engine", u.engine,
		"datasets", len(buffer),
		"rows", result.NumRows(),
		"columns", result.NumCols(),
		"padded_columns", padded,
	)
	return []arrow.Record{result}, nil
}

func (u *UnionByName) Close() error {
	for _, b := range u.buffer {
		b.Release()
	}
	u.buffer = nil

	if c, ok := u.exec.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
