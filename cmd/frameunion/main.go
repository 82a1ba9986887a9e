// Command frameunion unions two or more tabular files by column name. Columns
// missing from an input are filled with nulls; the result keeps the first
// input's columns first.
//
//	frameunion [flags] <input> <input> [more inputs...]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/sandboxws/isotope/frameunion/internal/config"
	"github.com/sandboxws/isotope/frameunion/pkg/connectors"
	"github.com/sandboxws/isotope/frameunion/pkg/duckdb"
	"github.com/sandboxws/isotope/frameunion/pkg/engine"
	"github.com/sandboxws/isotope/frameunion/pkg/metrics"
	"github.com/sandboxws/isotope/frameunion/pkg/operator"
	"github.com/sandboxws/isotope/frameunion/pkg/operators"
	"github.com/sandboxws/isotope/frameunion/pkg/union"
)

const formatTable = "table"

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("frameunion failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("frameunion", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: frameunion [flags] <input> <input> [more inputs...]\n")
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "YAML config file")
	engineName := fs.String("engine", config.EngineArrow, "union engine: arrow or duckdb")
	format := fs.String("format", "", "output format: table, csv, arrow, ipc or parquet (default: from -o, else table)")
	outPath := fs.String("o", "", "output file (default: print a table to stdout)")
	maxRows := fs.Int("max-rows", 20, "rows to print in table output (0 prints all)")
	batchSize := fs.Int("batch-size", 0, "rows per batch when reading inputs")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	brokers := fs.String("kafka-brokers", "localhost:9092", "Kafka bootstrap servers")
	topic := fs.String("kafka-topic", "", "produce result rows to this Kafka topic")
	keyBy := fs.String("key-by", "", "comma-separated columns forming the Kafka message key")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "engine":
			cfg.Engine = *engineName
		case "format":
			cfg.Output.Format = *format
		case "o":
			cfg.Output.Path = *outPath
		case "max-rows":
			cfg.Output.MaxRows = *maxRows
		case "batch-size":
			cfg.BatchSize = *batchSize
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "kafka-brokers":
			cfg.Kafka.Brokers = *brokers
		case "kafka-topic":
			cfg.Kafka.Topic = *topic
		case "key-by":
			cfg.Kafka.KeyBy = splitList(*keyBy)
		}
	})
	cfg.Inputs = append(cfg.Inputs, fs.Args()...)

	if err := cfg.Validate(); err != nil {
		fs.Usage()
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := metrics.ServeMetrics(cfg.MetricsAddr)
		defer srv.Close()
		slog.Info("serving metrics", "addr", cfg.MetricsAddr)
	}

	sources := make([]operator.Source, len(cfg.Inputs))
	for i, path := range cfg.Inputs {
		src := connectors.NewFileSource(path, "")
		src.SetBatchSize(cfg.BatchSize)
		sources[i] = src
	}

	sink, err := newSink(cfg)
	if err != nil {
		return err
	}

	alloc := memory.DefaultAllocator
	op := operators.NewUnionByName(cfg.Engine, executorFactory(cfg))
	eng := engine.NewEngine(cfg.Name, alloc, sources, op, sink)

	slog.Info("starting union",
		"pipeline", cfg.Name,
		"engine", cfg.Engine,
		"inputs", len(cfg.Inputs),
	)
	return engine.RunWithGracefulShutdown(context.Background(), eng, cfg.ShutdownTimeout)
}

func newSink(cfg *config.Config) (operator.Sink, error) {
	if cfg.Kafka.Topic != "" {
		return connectors.NewKafkaSink(cfg.Kafka.Topic, cfg.Kafka.Brokers, cfg.Kafka.KeyBy), nil
	}

	if cfg.Output.Format == formatTable || (cfg.Output.Path == "" && cfg.Output.Format == "") {
		return connectors.NewConsole(cfg.Output.MaxRows), nil
	}
	if cfg.Output.Path == "" {
		return nil, fmt.Errorf("output format %q requires -o", cfg.Output.Format)
	}

	format, err := connectors.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	return connectors.NewFileSink(cfg.Output.Path, format), nil
}

func executorFactory(cfg *config.Config) operators.ExecutorFactory {
	if cfg.Engine != config.EngineDuckDB {
		return operators.ArrowExecutorFactory
	}
	limit := cfg.DuckDB.MemoryLimitMB * 1024 * 1024
	return func(alloc memory.Allocator) (union.Executor, error) {
		inst, err := duckdb.NewInstance(alloc, limit)
		if err != nil {
			return nil, err
		}
		return inst, nil
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
