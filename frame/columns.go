package frame

import (
	"github.com/arloliu/influxwire/errs"
	"github.com/arloliu/influxwire/value"
)

// Column is one named sequence of values, aligned positionally with a table index.
type Column struct {
	Name   string
	Values []value.Value
}

// Columns is an ordered set of columns. Names are unique within one table.
type Columns []Column

// Get returns the values of the named column.
func (c Columns) Get(name string) ([]value.Value, bool) {
	for i := range c {
		if c[i].Name == name {
			return c[i].Values, true
		}
	}

	return nil, false
}

// Names returns the column names in order.
func (c Columns) Names() []string {
	names := make([]string, len(c))
	for i := range c {
		names[i] = c[i].Name
	}

	return names
}

// Len returns the number of columns.
func (c Columns) Len() int {
	return len(c)
}

// Validate checks that every column holds exactly indexLen values.
//
// Returns:
//   - error: *errs.ConversionError naming the first ragged column, or nil
func (c Columns) Validate(indexLen int) error {
	for i := range c {
		if len(c[i].Values) != indexLen {
			return &errs.ConversionError{
				Column:   c[i].Name,
				Expected: indexLen,
				Found:    len(c[i].Values),
				Err:      errs.ErrRaggedColumn,
			}
		}
	}

	return nil
}
