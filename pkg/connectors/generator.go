package connectors

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/sandboxws/isotope/frameunion/pkg/operator"
)

// Generator produces synthetic RecordBatches for a fixed schema.
// Column values derive from the row sequence number, so output is deterministic.
type Generator struct {
	schema        *arrow.Schema
	rowsPerSecond int64
	maxRows       int64
	batchSize     int
	alloc         memory.Allocator
}

// NewGenerator creates a Generator source. rowsPerSecond <= 0 emits as fast as
// the consumer reads; maxRows <= 0 runs until cancelled.
func NewGenerator(schema *arrow.Schema, rowsPerSecond, maxRows int64) *Generator {
	return &Generator{
		schema:        schema,
		rowsPerSecond: rowsPerSecond,
		maxRows:       maxRows,
		batchSize:     defaultBatchSize,
	}
}

// SetBatchSize overrides the number of rows per emitted batch.
func (g *Generator) SetBatchSize(n int) {
	if n > 0 {
		g.batchSize = n
	}
}

func (g *Generator) Open(ctx *operator.Context) error {
	if g.schema == nil {
		return fmt.Errorf("generator: nil schema")
	}
	g.alloc = ctx.Alloc
	return nil
}

func (g *Generator) Run(ctx *operator.Context, out chan<- arrow.Record) error {
	defer close(out)

	batchSize := g.batchSize
	var tick <-chan time.Time
	if g.rowsPerSecond > 0 {
		if int64(batchSize) > g.rowsPerSecond {
			batchSize = int(g.rowsPerSecond)
		}
		interval := time.Duration(float64(time.Second) * float64(batchSize) / float64(g.rowsPerSecond))
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var seq int64
	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		}

		remaining := int64(batchSize)
		if g.maxRows > 0 {
			left := g.maxRows - seq
			if left <= 0 {
				return nil
			}
			if remaining > left {
				remaining = left
			}
		}

		batch := g.generateBatch(seq, int(remaining))
		select {
		case out <- batch:
			seq += remaining
			ctx.Metrics.BatchesProcessed.Add(1)
			ctx.Metrics.RowsProcessed.Add(remaining)
		case <-ctx.Done():
			batch.Release()
			return nil
		}
	}
}

func (g *Generator) Close() error { return nil }

func (g *Generator) generateBatch(startSeq int64, numRows int) arrow.Record {
	bldr := array.NewRecordBuilder(g.alloc, g.schema)
	defer bldr.Release()

	now := time.Now().UnixMilli()

	for row := 0; row < numRows; row++ {
		seq := startSeq + int64(row)
		for i, f := range g.schema.Fields() {
			switch b := bldr.Field(i).(type) {
			case *array.Int64Builder:
				b.Append(seq)
			case *array.Int32Builder:
				b.Append(int32(seq))
			case *array.Float64Builder:
				b.Append(float64(seq) * 1.1)
			case *array.StringBuilder:
				b.Append(fmt.Sprintf("%s_%d", f.Name, seq))
			case *array.BooleanBuilder:
				b.Append(seq%2 == 0)
			case *array.TimestampBuilder:
				b.Append(arrow.Timestamp(now + seq))
			default:
				b.AppendNull()
			}
		}
	}

	return bldr.NewRecord()
}
