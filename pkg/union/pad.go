package union

import (
	"github.com/apache/arrow-go/v18/arrow"

	helpers "github.com/sandboxws/isotope/frameunion/pkg/arrow/helpers"
)

// PadColumns returns a projection of every column in schema, in order,
// followed by an all-null column for each missing field.
// With no missing fields the projection is the identity.
func PadColumns(schema *arrow.Schema, missing []arrow.Field) []helpers.Selection {
	sels := make([]helpers.Selection, 0, schema.NumFields()+len(missing))
	for i := 0; i < schema.NumFields(); i++ {
		sels = append(sels, helpers.ColumnSelection(schema, i))
	}
	for _, f := range missing {
		sels = append(sels, helpers.NullSelection(f))
	}
	return sels
}
