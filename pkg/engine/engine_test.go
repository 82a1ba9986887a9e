// Package engine integration tests: read real inputs, union them and write the result.
package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/sandboxws/isotope/frameunion/pkg/connectors"
	"github.com/sandboxws/isotope/frameunion/pkg/operator"
	"github.com/sandboxws/isotope/frameunion/pkg/operators"
)

// collectSink retains every batch written to it.
type collectSink struct {
	batches []arrow.Record
	opened  bool
	closed  bool
}

func (s *collectSink) Open(_ *operator.Context) error { s.opened = true; return nil }

func (s *collectSink) WriteBatch(batch arrow.Record) error {
	batch.Retain()
	s.batches = append(s.batches, batch)
	return nil
}

func (s *collectSink) Close() error { s.closed = true; return nil }

func (s *collectSink) release() {
	for _, b := range s.batches {
		b.Release()
	}
	s.batches = nil
}

// staticSource emits a fixed list of batches, or fails with err.
type staticSource struct {
	batches []arrow.Record
	err     error
}

func (s *staticSource) Open(_ *operator.Context) error { return nil }

func (s *staticSource) Run(ctx *operator.Context, out chan<- arrow.Record) error {
	defer close(out)
	if s.err != nil {
		return s.err
	}
	for _, b := range s.batches {
		b.Retain()
		select {
		case out <- b:
		case <-ctx.Done():
			b.Release()
			return nil
		}
	}
	return nil
}

func (s *staticSource) Close() error { return nil }

// blockingSource emits nothing and waits for cancellation.
type blockingSource struct {
	started chan struct{}
}

func (s *blockingSource) Open(_ *operator.Context) error { return nil }

func (s *blockingSource) Run(ctx *operator.Context, out chan<- arrow.Record) error {
	defer close(out)
	close(s.started)
	<-ctx.Done()
	return ctx.Ctx.Err()
}

func (s *blockingSource) Close() error { return nil }

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newUnion() *operators.UnionByName {
	return operators.NewUnionByName("arrow", operators.ArrowExecutorFactory)
}

func int64Batch(alloc memory.Allocator, name string, vals ...int64) arrow.Record {
	schema := arrow.NewSchema([]arrow.Field{{Name: name, Type: arrow.PrimitiveTypes.Int64}}, nil)
	bldr := array.NewRecordBuilder(alloc, schema)
	defer bldr.Release()
	bldr.Field(0).(*array.Int64Builder).AppendValues(vals, nil)
	return bldr.NewRecord()
}

func runEngine(t *testing.T, eng *Engine) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return eng.Run(ctx)
}

// TestE2ECSVUnionConsole unions two CSV files with overlapping columns and
// prints the result.
func TestE2ECSVUnionConsole(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	left := writeFile(t, "left.csv", "id,name\n1,alice\n")
	right := writeFile(t, "right.csv", "id,age\n2,30\n")

	var buf bytes.Buffer
	console := connectors.NewConsole(0)
	console.SetWriter(&buf)

	eng := NewEngine("csv-union", alloc,
		[]operator.Source{
			connectors.NewFileSource(left, ""),
			connectors.NewFileSource(right, ""),
		},
		newUnion(), console)

	if err := runEngine(t, eng); err != nil {
		t.Fatal(err)
	}

	output := buf.String()
	for _, want := range []string{"id", "name", "age", "alice", "30", "NULL"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, output)
		}
	}
	if strings.Index(output, "name") > strings.Index(output, "age") {
		t.Errorf("expected left columns before right-only columns, got:\n%s", output)
	}
}

// TestE2EGeneratorsUnion unions two generated datasets in source order.
func TestE2EGeneratorsUnion(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	orders := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "amount", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
	refunds := arrow.NewSchema([]arrow.Field{
		{Name: "reason", Type: arrow.BinaryTypes.String},
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	}, nil)

	first := connectors.NewGenerator(orders, 0, 250)
	first.SetBatchSize(100)
	second := connectors.NewGenerator(refunds, 0, 40)

	sink := &collectSink{}
	defer sink.release()

	eng := NewEngine("generators", alloc, []operator.Source{first, second}, newUnion(), sink)
	if err := runEngine(t, eng); err != nil {
		t.Fatal(err)
	}

	if !sink.opened || !sink.closed {
		t.Errorf("expected sink to be opened and closed, got opened=%v closed=%v", sink.opened, sink.closed)
	}
	if len(sink.batches) != 1 {
		t.Fatalf("expected 1 result batch, got %d", len(sink.batches))
	}
	result := sink.batches[0]
	if result.NumRows() != 290 {
		t.Errorf("expected 290 rows, got %d", result.NumRows())
	}

	names := make([]string, result.NumCols())
	for i, f := range result.Schema().Fields() {
		names[i] = f.Name
	}
	if strings.Join(names, ",") != "id,amount,reason" {
		t.Errorf("unexpected column order: %v", names)
	}

	amount := result.Column(1)
	reason := result.Column(2)
	if amount.NullN() != 40 {
		t.Errorf("expected 40 padded amounts, got %d", amount.NullN())
	}
	if reason.NullN() != 250 {
		t.Errorf("expected 250 padded reasons, got %d", reason.NullN())
	}
	if amount.IsNull(249) || !amount.IsNull(250) {
		t.Error("expected first source rows before second source rows")
	}
}

func TestE2EFileSink(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	left := writeFile(t, "a.csv", "x\n1\n2\n")
	right := writeFile(t, "b.csv", "y\n3\n")
	out := filepath.Join(t.TempDir(), "out.csv")

	eng := NewEngine("file-sink", alloc,
		[]operator.Source{
			connectors.NewFileSource(left, ""),
			connectors.NewFileSource(right, ""),
		},
		newUnion(), connectors.NewFileSink(out, ""))

	if err := runEngine(t, eng); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := "x,y\n1,\n2,\n,3\n"
	if string(data) != want {
		t.Errorf("unexpected output file:\n%q\nwant:\n%q", data, want)
	}
}

func TestE2EMissingInputFile(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	existing := writeFile(t, "a.csv", "x\n1\n")
	sink := &collectSink{}

	eng := NewEngine("missing", alloc,
		[]operator.Source{
			connectors.NewFileSource(existing, ""),
			connectors.NewFileSource(filepath.Join(t.TempDir(), "nope.csv"), ""),
		},
		newUnion(), sink)

	err := runEngine(t, eng)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
	if !strings.Contains(err.Error(), "source-1") {
		t.Errorf("expected error to name the failing source, got %v", err)
	}
	if sink.opened {
		t.Error("sink should not be opened when a source fails")
	}
}

func TestE2ETypeMismatch(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	left := writeFile(t, "a.csv", "id\n1\n")
	right := writeFile(t, "b.csv", "id\nabc\n")

	eng := NewEngine("mismatch", alloc,
		[]operator.Source{
			connectors.NewFileSource(left, ""),
			connectors.NewFileSource(right, ""),
		},
		newUnion(), &collectSink{})

	if err := runEngine(t, eng); err == nil {
		t.Fatal("expected error unioning int64 and string columns")
	}
}

func TestE2EMultiBatchSource(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	b1 := int64Batch(alloc, "v", 1, 2)
	b2 := int64Batch(alloc, "v", 3)
	other := int64Batch(alloc, "w", 9)
	defer b1.Release()
	defer b2.Release()
	defer other.Release()

	sink := &collectSink{}
	defer sink.release()

	eng := NewEngine("multi-batch", alloc,
		[]operator.Source{
			&staticSource{batches: []arrow.Record{b1, b2}},
			&staticSource{batches: []arrow.Record{other}},
		},
		newUnion(), sink)

	if err := runEngine(t, eng); err != nil {
		t.Fatal(err)
	}
	result := sink.batches[0]
	if result.NumRows() != 4 || result.NumCols() != 2 {
		t.Fatalf("expected 4x2 result, got %dx%d", result.NumRows(), result.NumCols())
	}
	v := result.Column(0).(*array.Int64)
	if v.Value(0) != 1 || v.Value(1) != 2 || v.Value(2) != 3 || !v.IsNull(3) {
		t.Errorf("unexpected column v: %v", v)
	}
}

func TestE2ESourceErrors(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	boom := errors.New("boom")
	tests := []struct {
		name string
		src  operator.Source
		want string
	}{
		{"run error", &staticSource{err: boom}, "boom"},
		{"no data", &staticSource{}, "produced no data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			good := int64Batch(alloc, "v", 1)
			defer good.Release()

			eng := NewEngine(tt.name, alloc,
				[]operator.Source{&staticSource{batches: []arrow.Record{good}}, tt.src},
				newUnion(), &collectSink{})

			err := runEngine(t, eng)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

// TestE2EHeaderOnlyCSV unions a CSV with rows and a CSV with only a header.
func TestE2EHeaderOnlyCSV(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	left := writeFile(t, "a.csv", "id,name\n1,alice\n")
	right := writeFile(t, "empty.csv", "id,name,age\n")

	sink := &collectSink{}
	defer sink.release()

	eng := NewEngine("header-only", alloc,
		[]operator.Source{
			connectors.NewFileSource(left, ""),
			connectors.NewFileSource(right, ""),
		},
		newUnion(), sink)

	if err := runEngine(t, eng); err != nil {
		t.Fatal(err)
	}

	var rows int64
	for _, b := range sink.batches {
		rows += b.NumRows()
	}
	if rows != 1 {
		t.Fatalf("expected 1 row, got %d", rows)
	}
	schema := sink.batches[0].Schema()
	var names []string
	for _, f := range schema.Fields() {
		names = append(names, f.Name)
	}
	if strings.Join(names, ",") != "id,name,age" {
		t.Fatalf("expected columns id,name,age, got %v", names)
	}
	if schema.Field(0).Type.ID() != arrow.INT64 {
		t.Errorf("expected id to keep type int64, got %s", schema.Field(0).Type)
	}
	if !sink.batches[0].Column(2).IsNull(0) {
		t.Error("expected age to be null for the left row")
	}
}

func TestE2ECancelledRun(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	schema := arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.PrimitiveTypes.Int64}}, nil)
	endless := connectors.NewGenerator(schema, 100000, 0)
	endless.SetBatchSize(100)

	sink := &collectSink{}
	eng := NewEngine("cancelled", alloc, []operator.Source{endless}, newUnion(), sink)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := eng.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if sink.opened {
		t.Error("sink should not be opened after cancellation")
	}
}

func TestValidatePipeline(t *testing.T) {
	src := &staticSource{}
	var nilSource *staticSource
	var nilSink *collectSink

	tests := []struct {
		name    string
		sources []operator.Source
		union   UnionOperator
		sink    operator.Sink
		wantErr string
	}{
		{"valid", []operator.Source{src}, newUnion(), &collectSink{}, ""},
		{"no sources", nil, newUnion(), &collectSink{}, "at least one source"},
		{"nil source", []operator.Source{src, nilSource}, newUnion(), &collectSink{}, "source[1] is nil"},
		{"no union", []operator.Source{src}, nil, &collectSink{}, "union operator is required"},
		{"nil sink", []operator.Source{src}, newUnion(), nilSink, "sink is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePipeline(tt.sources, tt.union, tt.sink)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRunWithGracefulShutdownCompletes(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	b := int64Batch(alloc, "v", 1, 2, 3)
	defer b.Release()

	sink := &collectSink{}
	defer sink.release()

	eng := NewEngine("graceful", alloc, []operator.Source{&staticSource{batches: []arrow.Record{b}}}, newUnion(), sink)
	if err := RunWithGracefulShutdown(context.Background(), eng, time.Second); err != nil {
		t.Fatal(err)
	}
	if len(sink.batches) != 1 || sink.batches[0].NumRows() != 3 {
		t.Fatalf("expected single 3-row result, got %d batches", len(sink.batches))
	}
}

func TestStopBeforeRun(t *testing.T) {
	src := &blockingSource{started: make(chan struct{})}
	sink := &collectSink{}
	eng := NewEngine("stopped", memory.DefaultAllocator, []operator.Source{src}, newUnion(), sink)

	eng.Stop()
	err := runEngine(t, eng)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sink.opened {
		t.Error("sink should not be opened after Stop")
	}
}

func TestRunWithGracefulShutdownOnSignal(t *testing.T) {
	src := &blockingSource{started: make(chan struct{})}
	sink := &collectSink{}
	eng := NewEngine("signalled", memory.DefaultAllocator, []operator.Source{src}, newUnion(), sink)

	errCh := make(chan error, 1)
	go func() {
		errCh <- RunWithGracefulShutdown(context.Background(), eng, 5*time.Second)
	}()

	select {
	case <-src.started:
	case <-time.After(5 * time.Second):
		t.Fatal("source never started")
	}
	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop after SIGINT")
	}
	if sink.opened {
		t.Error("sink should not be opened after shutdown")
	}
}
