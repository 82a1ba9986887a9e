package union

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	helpers "github.com/sandboxws/isotope/frameunion/pkg/arrow/helpers"
)

// AlignColumns returns a projection of schema whose column names match order
// exactly. Names present in schema select that column unchanged; absent names
// become all-null columns typed after the field in order, and so do present
// columns of the null type when the field in order is typed.
func AlignColumns(schema *arrow.Schema, order []arrow.Field) ([]helpers.Selection, error) {
	seen := make(map[string]struct{}, len(order))
	sels := make([]helpers.Selection, 0, len(order))

	for _, f := range order {
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("%w: %q repeated in target order", ErrDuplicateColumn, f.Name)
		}
		seen[f.Name] = struct{}{}

		indices := schema.FieldIndices(f.Name)
		switch len(indices) {
		case 0:
			sels = append(sels, helpers.NullSelection(f))
		case 1:
			if isUntyped(schema.Field(indices[0]).Type) && !isUntyped(f.Type) {
				sels = append(sels, helpers.NullSelection(f))
				continue
			}
			sels = append(sels, helpers.ColumnSelection(schema, indices[0]))
		default:
			return nil, fmt.Errorf("%w: %q appears %d times", ErrDuplicateColumn, f.Name, len(indices))
		}
	}
	return sels, nil
}
