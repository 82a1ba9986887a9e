// Package union concatenates the rows of Arrow records whose column sets differ.
// Columns missing on either side are filled with nulls before the rows are
// appended, and the result keeps the left input's column order with the
// right-only columns at the end.
package union

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Executor unions two datasets. Implementations must not mutate or release
// their inputs; the caller releases the returned Record.
type Executor interface {
	Union(left, right arrow.Record) (arrow.Record, error)
}

// ArrowExecutor runs union plans in process with Arrow arrays.
type ArrowExecutor struct {
	alloc memory.Allocator
}

// NewArrowExecutor creates an ArrowExecutor allocating from alloc.
func NewArrowExecutor(alloc memory.Allocator) *ArrowExecutor {
	return &ArrowExecutor{alloc: alloc}
}

// Union implements Executor.
func (e *ArrowExecutor) Union(left, right arrow.Record) (arrow.Record, error) {
	return Union(e.alloc, left, right)
}

// Union returns all rows of left followed by all rows of right. Columns only
// one side has are null for the rows of the other side.
//
// When both schemas list the same names in the same order the records are
// concatenated directly. Errors from Arrow, such as a type mismatch between
// same-named columns, are returned wrapped.
func Union(alloc memory.Allocator, left, right arrow.Record) (arrow.Record, error) {
	if left == nil {
		return nil, fmt.Errorf("%w: left record is nil", ErrInvalidArgument)
	}
	if right == nil {
		return nil, fmt.Errorf("%w: right record is nil", ErrInvalidArgument)
	}

	plan, err := NewPlan(left.Schema(), right.Schema())
	if err != nil {
		return nil, err
	}
	return plan.Apply(alloc, left, right)
}

// UnionAll folds records left to right through exec. A single record is
// returned retained, unchanged.
func UnionAll(exec Executor, records ...arrow.Record) (arrow.Record, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records to union", ErrInvalidArgument)
	}
	for i, rec := range records {
		if rec == nil {
			return nil, fmt.Errorf("%w: record %d is nil", ErrInvalidArgument, i)
		}
	}

	acc := records[0]
	acc.Retain()
	for i, rec := range records[1:] {
		next, err := exec.Union(acc, rec)
		acc.Release()
		if err != nil {
			return nil, fmt.Errorf("union record %d: %w", i+1, err)
		}
		acc = next
	}
	return acc, nil
}
