// Package helpers provides convenience functions for working with Arrow RecordBatches.
package helpers

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Selection picks one output column of a projection. Index is the position of
// the source column, or -1 for an all-null column described by Field.
type Selection struct {
	Index int
	Field arrow.Field
}

// ColumnSelection selects the source column at idx unchanged.
func ColumnSelection(schema *arrow.Schema, idx int) Selection {
	return Selection{Index: idx, Field: schema.Field(idx)}
}

// NullSelection produces an all-null column named and typed after f.
func NullSelection(f arrow.Field) Selection {
	f.Nullable = true
	return Selection{Index: -1, Field: f}
}

// IsNull reports whether the selection is a null literal rather than a source column.
func (s Selection) IsNull() bool { return s.Index < 0 }

// Column returns the named column from a RecordBatch, or an error if not found.
func Column(batch arrow.Record, name string) (arrow.Array, error) {
	idx := ColumnIndex(batch, name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found in schema", name)
	}
	return batch.Column(idx), nil
}

// ColumnIndex returns the index of a named column, or -1 if not found.
func ColumnIndex(batch arrow.Record, name string) int {
	indices := batch.Schema().FieldIndices(name)
	if len(indices) == 0 {
		return -1
	}
	return indices[0]
}

// ColumnNames returns the list of column names in a record's schema.
func ColumnNames(batch arrow.Record) []string {
	return SchemaNames(batch.Schema())
}

// SchemaNames returns the field names of a schema in order.
func SchemaNames(schema *arrow.Schema) []string {
	names := make([]string, schema.NumFields())
	for i := 0; i < schema.NumFields(); i++ {
		names[i] = schema.Field(i).Name
	}
	return names
}

// NullColumn returns an array of n nulls of type dt.
// The caller is responsible for releasing the returned Array.
func NullColumn(alloc memory.Allocator, dt arrow.DataType, n int) arrow.Array {
	return array.MakeArrayOfNull(alloc, dt, n)
}

// Project creates a new RecordBatch made of the given selections, in order.
// Null selections are materialized with NullColumn at the batch's row count.
// The caller is responsible for releasing the returned Record.
func Project(alloc memory.Allocator, batch arrow.Record, sels []Selection) (arrow.Record, error) {
	numRows := batch.NumRows()
	fields := make([]arrow.Field, 0, len(sels))
	arrays := make([]arrow.Array, 0, len(sels))
	var nulls []arrow.Array
	release := func() {
		for _, a := range nulls {
			a.Release()
		}
	}

	for _, sel := range sels {
		if sel.IsNull() {
			arr := NullColumn(alloc, sel.Field.Type, int(numRows))
			nulls = append(nulls, arr)
			arrays = append(arrays, arr)
			fields = append(fields, sel.Field)
			continue
		}
		if sel.Index >= int(batch.NumCols()) {
			release()
			return nil, fmt.Errorf("project: column index %d out of range for %d columns", sel.Index, batch.NumCols())
		}
		col := batch.Column(sel.Index)
		if !arrow.TypeEqual(col.DataType(), sel.Field.Type) {
			release()
			return nil, fmt.Errorf("project: column %q is %s, selection expects %s", sel.Field.Name, col.DataType(), sel.Field.Type)
		}
		fields = append(fields, sel.Field)
		arrays = append(arrays, col)
	}

	result := array.NewRecord(arrow.NewSchema(fields, nil), arrays, numRows)
	// NewRecord retains, so release our null columns.
	release()
	return result, nil
}

// Concat appends the rows of recs in order under the given schema. Column i of
// every record is concatenated into field i; Arrow rejects mismatched types.
// The caller is responsible for releasing the returned Record.
func Concat(alloc memory.Allocator, schema *arrow.Schema, recs ...arrow.Record) (arrow.Record, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("concat: no records")
	}

	numCols := schema.NumFields()
	var totalRows int64
	for i, rec := range recs {
		if int(rec.NumCols()) != numCols {
			return nil, fmt.Errorf("concat: record %d has %d columns, schema has %d", i, rec.NumCols(), numCols)
		}
		totalRows += rec.NumRows()
	}

	arrays := make([]arrow.Array, 0, numCols)
	release := func() {
		for _, a := range arrays {
			a.Release()
		}
	}

	chunks := make([]arrow.Array, len(recs))
	for col := 0; col < numCols; col++ {
		for i, rec := range recs {
			chunks[i] = rec.Column(col)
		}
		arr, err := array.Concatenate(chunks, alloc)
		if err != nil {
			release()
			return nil, fmt.Errorf("concat column %q: %w", schema.Field(col).Name, err)
		}
		arrays = append(arrays, arr)
	}

	result := array.NewRecord(schema, arrays, totalRows)
	release()
	return result, nil
}

// ConcatRecords merges same-schema records into one, using the first record's schema.
func ConcatRecords(alloc memory.Allocator, recs []arrow.Record) (arrow.Record, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("concat: no records")
	}
	return Concat(alloc, recs[0].Schema(), recs...)
}
