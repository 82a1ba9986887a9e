// Command frameunion-bench times union-by-name on generated data with every
// available engine.
//
// Inputs: orders(id, amount, region, ts) and returns(ts, id, reason, restocked),
// so each side gets two padded columns and the right side is reordered.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	helpers "github.com/sandboxws/isotope/frameunion/pkg/arrow/helpers"
	"github.com/sandboxws/isotope/frameunion/pkg/connectors"
	"github.com/sandboxws/isotope/frameunion/pkg/duckdb"
	"github.com/sandboxws/isotope/frameunion/pkg/operator"
	"github.com/sandboxws/isotope/frameunion/pkg/union"
)

func main() {
	rows := flag.Int64("rows", 1_000_000, "rows per input")
	iterations := flag.Int("iterations", 10, "unions per engine")
	flag.Parse()
	if *iterations < 1 {
		*iterations = 1
	}

	alloc := memory.DefaultAllocator

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orders := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "amount", Type: arrow.PrimitiveTypes.Float64},
		{Name: "region", Type: arrow.BinaryTypes.String},
		{Name: "ts", Type: arrow.FixedWidthTypes.Timestamp_ms},
	}, nil)
	returns := arrow.NewSchema([]arrow.Field{
		{Name: "ts", Type: arrow.FixedWidthTypes.Timestamp_ms},
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "reason", Type: arrow.BinaryTypes.String},
		{Name: "restocked", Type: arrow.FixedWidthTypes.Boolean},
	}, nil)

	left, err := generate(ctx, alloc, orders, *rows)
	if err != nil {
		slog.Error("generate left input", "error", err)
		os.Exit(1)
	}
	defer left.Release()
	right, err := generate(ctx, alloc, returns, *rows)
	if err != nil {
		slog.Error("generate right input", "error", err)
		os.Exit(1)
	}
	defer right.Release()

	slog.Info("starting union benchmark", "rows_per_input", *rows, "iterations", *iterations)

	engines := []struct {
		name string
		open func() (union.Executor, func(), error)
	}{
		{"arrow", func() (union.Executor, func(), error) {
			return union.NewArrowExecutor(alloc), func() {}, nil
		}},
		{"duckdb", func() (union.Executor, func(), error) {
			inst, err := duckdb.NewInstance(alloc, 0)
			if err != nil {
				return nil, nil, err
			}
			return inst, func() { inst.Close() }, nil
		}},
	}

	for _, e := range engines {
		exec, closeFn, err := e.open()
		if errors.Is(err, duckdb.ErrDuckDBNotAvailable) {
			slog.Warn("skipping engine", "engine", e.name, "reason", err)
			continue
		}
		if err != nil {
			slog.Error("open engine", "engine", e.name, "error", err)
			os.Exit(1)
		}

		elapsed, outRows, err := bench(ctx, exec, left, right, *iterations)
		closeFn()
		if err != nil {
			slog.Error("benchmark failed", "engine", e.name, "error", err)
			os.Exit(1)
		}

		perUnion := elapsed / time.Duration(*iterations)
		slog.Info("engine result",
			"engine", e.name,
			"per_union", perUnion,
			"rows_out", outRows,
			"rows/sec", fmt.Sprintf("%.0f", float64(outRows)/perUnion.Seconds()),
		)
	}
}

// generate drains a bounded Generator into a single record.
func generate(ctx context.Context, alloc memory.Allocator, schema *arrow.Schema, rows int64) (arrow.Record, error) {
	gen := connectors.NewGenerator(schema, 0, rows)
	gen.SetBatchSize(64 * 1024)

	opCtx := operator.NewContext(ctx, alloc, "generator", schema.Field(0).Name)
	if err := gen.Open(opCtx); err != nil {
		return nil, err
	}
	defer gen.Close()

	out := make(chan arrow.Record, 4)
	errCh := make(chan error, 1)
	go func() { errCh <- gen.Run(opCtx, out) }()

	var batches []arrow.Record
	for b := range out {
		batches = append(batches, b)
	}
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()
	if err := <-errCh; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return helpers.ConcatRecords(alloc, batches)
}

func bench(ctx context.Context, exec union.Executor, left, right arrow.Record, iterations int) (time.Duration, int64, error) {
	var total time.Duration
	var rows int64
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		start := time.Now()
		result, err := exec.Union(left, right)
		if err != nil {
			return 0, 0, err
		}
		total += time.Since(start)
		rows = result.NumRows()
		result.Release()
	}
	return total, rows, nil
}
