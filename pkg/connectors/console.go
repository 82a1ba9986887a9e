package connectors

import (
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/olekukonko/tablewriter"

	helpers "github.com/sandboxws/isotope/frameunion/pkg/arrow/helpers"
	"github.com/sandboxws/isotope/frameunion/pkg/operator"
)

// Console prints Arrow RecordBatches as formatted tables.
type Console struct {
	maxRows int
	writer  io.Writer
}

// NewConsole creates a Console sink printing at most maxRows rows per batch
// (0 prints every row).
func NewConsole(maxRows int) *Console {
	return &Console{maxRows: maxRows, writer: os.Stdout}
}

// SetWriter overrides the output writer (default: os.Stdout).
func (c *Console) SetWriter(w io.Writer) { c.writer = w }

func (c *Console) Open(_ *operator.Context) error { return nil }

func (c *Console) WriteBatch(batch arrow.Record) error {
	numRows := int(batch.NumRows())
	shown := numRows
	if c.maxRows > 0 && shown > c.maxRows {
		shown = c.maxRows
	}

	table := tablewriter.NewWriter(c.writer)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader(helpers.ColumnNames(batch))

	row := make([]string, batch.NumCols())
	for r := 0; r < shown; r++ {
		for col := range row {
			row[col] = formatValue(batch.Column(col), r)
		}
		table.Append(row)
	}
	table.Render()

	if numRows > shown {
		fmt.Fprintf(c.writer, "... (%d more rows)\n", numRows-shown)
	}
	fmt.Fprintln(c.writer)

	return nil
}

func (c *Console) Close() error { return nil }

func formatValue(arr arrow.Array, row int) string {
	if arr.IsNull(row) {
		return "NULL"
	}
	switch a := arr.(type) {
	case *array.Float64:
		return fmt.Sprintf("%.4f", a.Value(row))
	case *array.Float32:
		return fmt.Sprintf("%.4f", a.Value(row))
	default:
		return arr.ValueStr(row)
	}
}
