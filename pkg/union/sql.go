package union

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	helpers "github.com/sandboxws/isotope/frameunion/pkg/arrow/helpers"
)

// SQL renders the plan as a DuckDB UNION ALL over two registered views.
// Null selections become typed NULL literals so both branches agree on types.
// A fast plan selects every column by position, so repeated names stay apart.
func (p *Plan) SQL(leftView, rightView string) string {
	if p.Fast {
		return fmt.Sprintf("SELECT * FROM %s UNION ALL SELECT * FROM %s",
			QuoteIdent(leftView), QuoteIdent(rightView))
	}
	return fmt.Sprintf("SELECT %s FROM %s UNION ALL SELECT %s FROM %s",
		selectList(p.Left), QuoteIdent(leftView),
		selectList(p.Right), QuoteIdent(rightView))
}

// QuoteIdent quotes a SQL identifier, doubling embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func selectList(sels []helpers.Selection) string {
	parts := make([]string, len(sels))
	for i, sel := range sels {
		if !sel.IsNull() {
			parts[i] = QuoteIdent(sel.Field.Name)
			continue
		}
		parts[i] = nullLiteral(sel.Field.Type) + " AS " + QuoteIdent(sel.Field.Name)
	}
	return strings.Join(parts, ", ")
}

func nullLiteral(dt arrow.DataType) string {
	name := duckDBType(dt)
	if name == "" {
		return "NULL"
	}
	return "CAST(NULL AS " + name + ")"
}

// duckDBType maps an Arrow type to the DuckDB type name it round-trips as.
// Types without a direct mapping return "" and are left to DuckDB to infer.
func duckDBType(dt arrow.DataType) string {
	switch dt.ID() {
	case arrow.BOOL:
		return "BOOLEAN"
	case arrow.INT8:
		return "TINYINT"
	case arrow.INT16:
		return "SMALLINT"
	case arrow.INT32:
		return "INTEGER"
	case arrow.INT64:
		return "BIGINT"
	case arrow.UINT8:
		return "UTINYINT"
	case arrow.UINT16:
		return "USMALLINT"
	case arrow.UINT32:
		return "UINTEGER"
	case arrow.UINT64:
		return "UBIGINT"
	case arrow.FLOAT32:
		return "FLOAT"
	case arrow.FLOAT64:
		return "DOUBLE"
	case arrow.STRING, arrow.LARGE_STRING:
		return "VARCHAR"
	case arrow.BINARY, arrow.LARGE_BINARY:
		return "BLOB"
	case arrow.DATE32:
		return "DATE"
	case arrow.TIMESTAMP:
		switch dt.(*arrow.TimestampType).Unit {
		case arrow.Second:
			return "TIMESTAMP_S"
		case arrow.Millisecond:
			return "TIMESTAMP_MS"
		case arrow.Nanosecond:
			return "TIMESTAMP_NS"
		default:
			return "TIMESTAMP"
		}
	default:
		return ""
	}
}
