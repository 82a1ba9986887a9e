package connectors

import (
	"errors"
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/sandboxws/isotope/frameunion/pkg/operator"
)

// batchWriter is the common surface of the Arrow CSV, IPC and Parquet writers.
type batchWriter interface {
	Write(rec arrow.Record) error
	Close() error
}

// csvWriter flushes the Arrow CSV writer on Close.
type csvWriter struct{ *csv.Writer }

func (w csvWriter) Close() error { return w.Flush() }

// FileSink writes RecordBatches to a CSV, Arrow IPC stream, Arrow IPC file or
// Parquet file.
// The writer is created from the schema of the first batch.
type FileSink struct {
	path   string
	format Format
	alloc  memory.Allocator
	file   *os.File
	writer batchWriter
	schema *arrow.Schema
}

// NewFileSink creates a file sink. An empty format is inferred from the file extension.
func NewFileSink(path string, format Format) *FileSink {
	return &FileSink{path: path, format: format}
}

func (s *FileSink) Open(ctx *operator.Context) error {
	s.alloc = memory.DefaultAllocator
	if ctx != nil && ctx.Alloc != nil {
		s.alloc = ctx.Alloc
	}

	f, err := resolveFormat(s.path, s.format)
	if err != nil {
		return fmt.Errorf("file sink %s: %w", s.path, err)
	}
	s.format = f

	out, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("file sink %s: %w", s.path, err)
	}
	s.file = out
	return nil
}

func (s *FileSink) WriteBatch(batch arrow.Record) error {
	if s.writer == nil {
		w, err := s.newWriter(batch.Schema())
		if err != nil {
			return fmt.Errorf("file sink %s: %w", s.path, err)
		}
		s.writer = w
		s.schema = batch.Schema()
	} else if !s.schema.Equal(batch.Schema()) {
		return fmt.Errorf("file sink %s: schema changed from %s to %s", s.path, s.schema, batch.Schema())
	}

	if err := s.writer.Write(batch); err != nil {
		return fmt.Errorf("file sink %s: write: %w", s.path, err)
	}
	return nil
}

func (s *FileSink) Close() error {
	var errs []error
	if s.writer != nil {
		if err := s.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("file sink %s: close writer: %w", s.path, err))
		}
		s.writer = nil
	}
	if s.file != nil {
		// The Parquet writer closes the file itself.
		if err := s.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, fmt.Errorf("file sink %s: %w", s.path, err))
		}
		s.file = nil
	}
	return errors.Join(errs...)
}

func (s *FileSink) newWriter(schema *arrow.Schema) (batchWriter, error) {
	switch s.format {
	case FormatCSV:
		return csvWriter{csv.NewWriter(s.file, schema,
			csv.WithHeader(true),
			csv.WithNullWriter(""),
		)}, nil
	case FormatIPC:
		return ipc.NewWriter(s.file, ipc.WithSchema(schema), ipc.WithAllocator(s.alloc)), nil
	case FormatArrow:
		w, err := ipc.NewFileWriter(s.file, ipc.WithSchema(schema), ipc.WithAllocator(s.alloc))
		if err != nil {
			return nil, fmt.Errorf("arrow file writer: %w", err)
		}
		return w, nil
	case FormatParquet:
		props := parquet.NewWriterProperties(parquet.WithAllocator(s.alloc))
		arrProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(s.alloc))
		w, err := pqarrow.NewFileWriter(schema, s.file, props, arrProps)
		if err != nil {
			return nil, fmt.Errorf("parquet writer: %w", err)
		}
		return w, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, s.format)
	}
}
