package union

import (
	"fmt"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	helpers "github.com/sandboxws/isotope/frameunion/pkg/arrow/helpers"
)

// Plan describes how two schemas are aligned before their rows are concatenated.
// It carries no data and can be executed by any engine that can project and
// concatenate: Apply runs it on Arrow, SQL renders it for DuckDB.
type Plan struct {
	// Fast is set when both schemas list the same names in the same order;
	// the inputs are concatenated without projection.
	Fast bool

	// Left pads the left input with the columns only the right input has.
	Left []helpers.Selection

	// Right reorders the right input to Left's names, null-filling the
	// columns only the left input has.
	Right []helpers.Selection

	// LeftMissing are the right-only names appended to the left input.
	LeftMissing []string

	// RightMissing are the left-only names null-filled on the right input.
	RightMissing []string

	// Schema is the schema of the union result.
	Schema *arrow.Schema
}

// NewPlan aligns right to left by column name. The result schema is left's
// columns in order followed by right-only columns in right's order.
//
// A column of the Arrow null type holds no values, as read from a header-only
// CSV. When the other side has a typed column of the same name it is replaced
// by a null column of that type. Other type differences are left to the engine.
func NewPlan(left, right *arrow.Schema) (*Plan, error) {
	if left == nil {
		return nil, fmt.Errorf("%w: left schema is nil", ErrInvalidArgument)
	}
	if right == nil {
		return nil, fmt.Errorf("%w: right schema is nil", ErrInvalidArgument)
	}

	leftNames := helpers.SchemaNames(left)
	rightNames := helpers.SchemaNames(right)

	if slices.Equal(leftNames, rightNames) && !hasUntypedPair(left, right) {
		leftSels := PadColumns(left, nil)
		rightSels := PadColumns(right, nil)
		return &Plan{
			Fast:   true,
			Left:   leftSels,
			Right:  rightSels,
			Schema: resultSchema(left, leftSels, rightSels),
		}, nil
	}

	if err := checkUnique("left", leftNames); err != nil {
		return nil, err
	}
	if err := checkUnique("right", rightNames); err != nil {
		return nil, err
	}

	rightMissing, leftMissing := MissingColumns(leftNames, rightNames)

	leftSels := adoptTypes(PadColumns(left, fieldsByName(right, leftMissing)), right)
	order := make([]arrow.Field, len(leftSels))
	for i, sel := range leftSels {
		order[i] = sel.Field
	}

	rightSels, err := AlignColumns(right, order)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Left:         leftSels,
		Right:        rightSels,
		LeftMissing:  leftMissing,
		RightMissing: rightMissing,
		Schema:       resultSchema(left, leftSels, rightSels),
	}, nil
}

// Apply executes the plan on two Arrow records: left rows first, then right rows.
// The caller is responsible for releasing the returned Record.
func (p *Plan) Apply(alloc memory.Allocator, left, right arrow.Record) (arrow.Record, error) {
	if p.Fast {
		return helpers.Concat(alloc, p.Schema, left, right)
	}

	l, err := helpers.Project(alloc, left, p.Left)
	if err != nil {
		return nil, fmt.Errorf("pad left: %w", err)
	}
	defer l.Release()

	r, err := helpers.Project(alloc, right, p.Right)
	if err != nil {
		return nil, fmt.Errorf("align right: %w", err)
	}
	defer r.Release()

	return helpers.Concat(alloc, p.Schema, l, r)
}

// resultSchema takes names and types from the padded left side. A field is
// nullable when either side may hold a null in it.
func resultSchema(left *arrow.Schema, leftSels, rightSels []helpers.Selection) *arrow.Schema {
	fields := make([]arrow.Field, len(leftSels))
	for i, sel := range leftSels {
		f := sel.Field
		if i < len(rightSels) && rightSels[i].Field.Nullable {
			f.Nullable = true
		}
		fields[i] = f
	}
	md := left.Metadata()
	return arrow.NewSchema(fields, &md)
}

func fieldsByName(schema *arrow.Schema, names []string) []arrow.Field {
	fields := make([]arrow.Field, 0, len(names))
	for _, name := range names {
		indices := schema.FieldIndices(name)
		fields = append(fields, schema.Field(indices[0]))
	}
	return fields
}

func checkUnique(side string, names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: %q in %s schema", ErrDuplicateColumn, name, side)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func isUntyped(dt arrow.DataType) bool {
	return dt.ID() == arrow.NULL
}

// hasUntypedPair reports whether a position holds a null-typed column on one
// side and a typed column on the other.
func hasUntypedPair(left, right *arrow.Schema) bool {
	for i := 0; i < left.NumFields(); i++ {
		if isUntyped(left.Field(i).Type) != isUntyped(right.Field(i).Type) {
			return true
		}
	}
	return false
}

// adoptTypes replaces null-typed column selections with null columns typed
// after the same-named field of other.
func adoptTypes(sels []helpers.Selection, other *arrow.Schema) []helpers.Selection {
	for i, sel := range sels {
		if sel.IsNull() || !isUntyped(sel.Field.Type) {
			continue
		}
		indices := other.FieldIndices(sel.Field.Name)
		if len(indices) != 1 {
			continue
		}
		if f := other.Field(indices[0]); !isUntyped(f.Type) {
			sels[i] = helpers.NullSelection(f)
		}
	}
	return sels
}
