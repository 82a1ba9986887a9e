// Package operator defines the interfaces implemented by frameunion sources,
// operators and sinks.
package operator

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// Operator transforms Arrow RecordBatches.
// The lifecycle is: Open -> ProcessBatch* -> Close.
type Operator interface {
	// Open initializes the operator. Called once before any ProcessBatch.
	Open(ctx *Context) error

	// ProcessBatch processes one Arrow RecordBatch and returns zero or more output batches.
	// Implementations MUST Retain any input batch data they hold beyond this call.
	// The caller is responsible for releasing the input batch after this returns.
	ProcessBatch(batch arrow.Record) ([]arrow.Record, error)

	// Close releases resources. Called once during shutdown.
	Close() error
}

// Flusher is implemented by operators that hold batches until the end of input.
type Flusher interface {
	// Flush emits everything the operator still holds. Called once, after the
	// last ProcessBatch and before Close.
	Flush() ([]arrow.Record, error)
}

// Source produces RecordBatches from an external system.
type Source interface {
	// Open initializes the source.
	Open(ctx *Context) error

	// Run produces batches to the output channel.
	// It should return when ctx.Done() is signaled, the input is exhausted or an error occurs.
	// The source MUST close the output channel when it stops.
	Run(ctx *Context, out chan<- arrow.Record) error

	// Close releases resources.
	Close() error
}

// Sink consumes RecordBatches.
type Sink interface {
	// Open initializes the sink.
	Open(ctx *Context) error

	// WriteBatch writes a RecordBatch to the external system.
	// The caller keeps ownership of the batch.
	WriteBatch(batch arrow.Record) error

	// Close flushes and releases resources.
	Close() error
}
