package connectors

import (
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/sandboxws/isotope/frameunion/pkg/operator"
)

// FileSource reads a CSV, Arrow IPC stream, Arrow IPC file or Parquet file as
// RecordBatches.
type FileSource struct {
	path      string
	format    Format
	batchSize int
	alloc     memory.Allocator
}

// NewFileSource creates a file source. An empty format is inferred from the
// file extension when the source opens.
func NewFileSource(path string, format Format) *FileSource {
	return &FileSource{path: path, format: format, batchSize: defaultBatchSize}
}

// SetBatchSize overrides the number of rows per emitted batch.
func (s *FileSource) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// Path returns the file the source reads.
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Open(ctx *operator.Context) error {
	s.alloc = ctx.Alloc
	f, err := resolveFormat(s.path, s.format)
	if err != nil {
		return fmt.Errorf("file source %s: %w", s.path, err)
	}
	s.format = f
	return nil
}

func (s *FileSource) Run(ctx *operator.Context, out chan<- arrow.Record) error {
	defer close(out)

	rdr, closeFn, err := s.openReader(ctx)
	if err != nil {
		return fmt.Errorf("file source %s: %w", s.path, err)
	}
	defer closeFn()
	defer rdr.Release()

	emitted := false
	for {
		ok, err := next(rdr)
		if err != nil {
			return fmt.Errorf("file source %s: read: %w", s.path, err)
		}
		if !ok {
			break
		}
		rec := rdr.Record()
		rec.Retain()
		select {
		case out <- rec:
			emitted = true
			ctx.Metrics.BatchesProcessed.Add(1)
			ctx.Metrics.RowsProcessed.Add(rec.NumRows())
		case <-ctx.Done():
			rec.Release()
			return nil
		}
	}
	if err := rdr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("file source %s: read: %w", s.path, err)
	}

	// An input with a schema but no rows still contributes its columns.
	if !emitted && rdr.Schema() != nil {
		cols := emptyColumns(s.alloc, rdr.Schema())
		empty := array.NewRecord(rdr.Schema(), cols, 0)
		for _, c := range cols {
			c.Release()
		}
		select {
		case out <- empty:
		case <-ctx.Done():
			empty.Release()
		}
	}
	return nil
}

func (s *FileSource) Close() error { return nil }

// openReader returns a record reader for the file and a function closing the
// underlying file.
func (s *FileSource) openReader(ctx *operator.Context) (array.RecordReader, func() error, error) {
	switch s.format {
	case FormatParquet:
		pf, err := file.OpenParquetFile(s.path, false)
		if err != nil {
			return nil, nil, fmt.Errorf("open parquet: %w", err)
		}
		fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: int64(s.batchSize)}, s.alloc)
		if err != nil {
			pf.Close()
			return nil, nil, fmt.Errorf("parquet arrow reader: %w", err)
		}
		rr, err := fr.GetRecordReader(ctx.Ctx, nil, nil)
		if err != nil {
			pf.Close()
			return nil, nil, fmt.Errorf("parquet record reader: %w", err)
		}
		return rr, pf.Close, nil

	case FormatCSV, FormatIPC, FormatArrow:
		f, err := os.Open(s.path)
		if err != nil {
			return nil, nil, fmt.Errorf("open: %w", err)
		}
		if s.format == FormatCSV {
			header, hasRows, err := peekCSV(f)
			if err != nil {
				f.Close()
				return nil, nil, err
			}
			if !hasRows {
				rdr, err := headerOnlyReader(header)
				if err != nil {
					f.Close()
					return nil, nil, err
				}
				return rdr, f.Close, nil
			}
			rdr := csv.NewInferringReader(f,
				csv.WithAllocator(s.alloc),
				csv.WithHeader(true),
				csv.WithChunk(s.batchSize),
				csv.WithNullReader(true, "", "NULL"),
			)
			return rdr, f.Close, nil
		}
		if s.format == FormatArrow {
			rdr, err := fileRecords(f, s.alloc)
			if err != nil {
				f.Close()
				return nil, nil, err
			}
			return rdr, f.Close, nil
		}
		rdr, err := ipc.NewReader(f, ipc.WithAllocator(s.alloc))
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("ipc reader: %w", err)
		}
		return rdr, f.Close, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownFormat, s.format)
	}
}

func emptyColumns(alloc memory.Allocator, schema *arrow.Schema) []arrow.Array {
	cols := make([]arrow.Array, schema.NumFields())
	for i := 0; i < schema.NumFields(); i++ {
		bldr := array.NewBuilder(alloc, schema.Field(i).Type)
		cols[i] = bldr.NewArray()
		bldr.Release()
	}
	return cols
}

// next advances rdr. The CSV inferring reader panics on some malformed inputs;
// the panic is returned as an error.
func next(rdr array.RecordReader) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return rdr.Next(), nil
}

// peekCSV reads the header of a CSV file and reports whether any data row
// follows it. The file is rewound before returning.
func peekCSV(f *os.File) (header []string, hasRows bool, err error) {
	r := stdcsv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err = r.Read()
	if errors.Is(err, io.EOF) {
		return nil, false, fmt.Errorf("csv: missing header")
	}
	if err != nil {
		return nil, false, fmt.Errorf("csv header: %w", err)
	}
	_, err = r.Read()
	switch {
	case errors.Is(err, io.EOF):
	case err != nil:
		return nil, false, fmt.Errorf("csv: %w", err)
	default:
		hasRows = true
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, false, fmt.Errorf("csv rewind: %w", err)
	}
	return header, hasRows, nil
}

// headerOnlyReader returns a reader with no records whose schema has one
// column of the Arrow null type per header name. The union gives such columns
// the type of the same-named column of the other input.
func headerOnlyReader(header []string) (array.RecordReader, error) {
	fields := make([]arrow.Field, len(header))
	for i, name := range header {
		fields[i] = arrow.Field{Name: name, Type: arrow.Null, Nullable: true}
	}
	return array.NewRecordReader(arrow.NewSchema(fields, nil), nil)
}

// fileRecords reads every record batch of an Arrow IPC file.
func fileRecords(f *os.File, alloc memory.Allocator) (array.RecordReader, error) {
	fr, err := ipc.NewFileReader(f, ipc.WithAllocator(alloc))
	if err != nil {
		return nil, fmt.Errorf("arrow file reader: %w", err)
	}
	defer fr.Close()

	recs := make([]arrow.Record, 0, fr.NumRecords())
	defer func() {
		for _, r := range recs {
			r.Release()
		}
	}()
	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.RecordAt(i)
		if err != nil {
			return nil, fmt.Errorf("arrow file record %d: %w", i, err)
		}
		recs = append(recs, rec)
	}
	return array.NewRecordReader(fr.Schema(), recs)
}
