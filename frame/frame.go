package frame

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/influxwire/errs"
	"github.com/arloliu/influxwire/value"
)

// Frame is a named table of typed columns indexed by time.
//
// Every column holds values of a single kind. Frames are built by FrameSink and
// are read-only afterwards.
type Frame struct {
	name    string
	index   []time.Time
	columns Columns
	kinds   []value.Kind
}

// Name returns the table name.
func (f *Frame) Name() string { return f.name }

// Index returns the timestamps of the rows.
func (f *Frame) Index() []time.Time { return f.index }

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.index) }

// Columns returns the column names in order.
func (f *Frame) Columns() []string { return f.columns.Names() }

// Column returns the values of the named column.
func (f *Frame) Column(name string) ([]value.Value, bool) {
	return f.columns.Get(name)
}

// Kind returns the kind of the named column, or KindInvalid when it does not exist.
func (f *Frame) Kind(name string) value.Kind {
	for i := range f.columns {
		if f.columns[i].Name == name {
			return f.kinds[i]
		}
	}

	return value.KindInvalid
}

// Row returns the timestamp and the column values of row i.
func (f *Frame) Row(i int) (time.Time, map[string]value.Value) {
	row := make(map[string]value.Value, len(f.columns))
	for _, c := range f.columns {
		row[c.Name] = c.Values[i]
	}

	return f.index[i], row
}

// FrameSink builds *Frame tables.
//
// It rejects ragged columns, columns without values and columns mixing value
// kinds. A table with no rows and no columns is accepted.
type FrameSink struct{}

// FromTable implements Sink.
func (FrameSink) FromTable(name string, index []time.Time, columns Columns) (*Frame, error) {
	if err := columns.Validate(len(index)); err != nil {
		return nil, withTable(err, name)
	}

	kinds := make([]value.Kind, len(columns))
	for i, c := range columns {
		if len(c.Values) == 0 {
			return nil, &errs.ConversionError{Table: name, Column: c.Name, Err: errs.ErrEmptyColumn}
		}
		kind := c.Values[0].Kind()
		for row, v := range c.Values {
			if v.Kind() != kind {
				return nil, &errs.ConversionError{
					Table:  name,
					Column: c.Name,
					Err:    fmt.Errorf("%w: row %d is %s, column is %s", errs.ErrMixedColumn, row, v.Kind(), kind),
				}
			}
		}
		kinds[i] = kind
	}

	return &Frame{name: name, index: index, columns: columns, kinds: kinds}, nil
}

func withTable(err error, table string) error {
	var ce *errs.ConversionError
	if errors.As(err, &ce) {
		named := *ce
		named.Table = table

		return &named
	}

	return err
}
