// Package dataset reads and writes the pipeline's delimited tables: the raw
// operational tables and the header-less train/validation partitions.
package dataset

import (
	"errors"
	"fmt"
)

// ErrMalformedRow indicates a row whose value cannot be parsed.
var ErrMalformedRow = errors.New("malformed row")

// SchemaError reports a required column missing from an input table.
type SchemaError struct {
	Table  string
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("table %s: missing required column %q", e.Table, e.Column)
}

// rowError wraps a parse failure with the table, 1-based data row and column.
func rowError(table string, row int, column string, err error) error {
	return fmt.Errorf("%w: table %s row %d column %s: %v", ErrMalformedRow, table, row, column, err)
}
