package arrowframe

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/influxwire/errs"
	"github.com/arloliu/influxwire/frame"
	"github.com/arloliu/influxwire/value"
)

var base = time.Date(2021, 3, 7, 21, 0, 0, 0, time.UTC)

func TestSink_FromTable(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	index := []time.Time{base, base.Add(time.Minute)}
	rec, err := NewSinkWithAllocator(mem).FromTable("cpu", index, frame.Columns{
		{Name: "usage", Values: []value.Value{value.Float(0.5), value.Float(1.25)}},
		{Name: "count", Values: []value.Value{value.Integer(-3), value.Integer(4)}},
		{Name: "bytes", Values: []value.Value{value.Unsigned(1 << 63), value.Unsigned(7)}},
		{Name: "ok", Values: []value.Value{value.Bool(true), value.Bool(false)}},
		{Name: "host", Values: []value.Value{value.String("a"), value.String("b")}},
		{Name: "seen", Values: []value.Value{value.Timestamp(base), value.Timestamp(base.Add(time.Second))}},
	})
	require.NoError(t, err)
	defer rec.Release()

	require.Equal(t, int64(2), rec.NumRows())
	require.Equal(t, int64(7), rec.NumCols())

	schema := rec.Schema()
	name, ok := schema.Metadata().GetValue(MetadataName)
	require.True(t, ok)
	require.Equal(t, "cpu", name)

	wantTypes := []arrow.DataType{
		timestampType,
		arrow.PrimitiveTypes.Float64,
		arrow.PrimitiveTypes.Int64,
		arrow.PrimitiveTypes.Uint64,
		arrow.FixedWidthTypes.Boolean,
		arrow.BinaryTypes.String,
		timestampType,
	}
	for i, want := range wantTypes {
		require.True(t, arrow.TypeEqual(want, schema.Field(i).Type), "field %d", i)
	}
	require.Equal(t, IndexColumn, schema.Field(0).Name)

	ts := rec.Column(0).(*array.Timestamp)
	require.Equal(t, arrow.Timestamp(base.Add(time.Minute).UnixNano()), ts.Value(1))
	require.InDelta(t, 1.25, rec.Column(1).(*array.Float64).Value(1), 0)
	require.Equal(t, int64(-3), rec.Column(2).(*array.Int64).Value(0))
	require.Equal(t, uint64(1<<63), rec.Column(3).(*array.Uint64).Value(0))
	require.True(t, rec.Column(4).(*array.Boolean).Value(0))
	require.Equal(t, "b", rec.Column(5).(*array.String).Value(1))
	require.Equal(t, arrow.Timestamp(base.Add(time.Second).UnixNano()), rec.Column(6).(*array.Timestamp).Value(1))
}

func TestSink_Rejects(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	sink := NewSinkWithAllocator(mem)

	index := []time.Time{base, base.Add(time.Minute)}

	_, err := sink.FromTable("t", index, frame.Columns{{Name: "v", Values: []value.Value{value.Float(1)}}})
	require.ErrorIs(t, err, errs.ErrRaggedColumn)
	var ce *errs.ConversionError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "t", ce.Table)

	_, err = sink.FromTable("t", index, frame.Columns{{Name: "v", Values: []value.Value{value.Float(1), value.String("x")}}})
	require.ErrorIs(t, err, errs.ErrMixedColumn)

	_, err = sink.FromTable("t", nil, frame.Columns{{Name: "v"}})
	require.ErrorIs(t, err, errs.ErrEmptyColumn)
}
