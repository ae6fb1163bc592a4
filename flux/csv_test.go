package flux

import (
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/influxwire/compress"
	"github.com/arloliu/influxwire/errs"
	"github.com/arloliu/influxwire/format"
	"github.com/arloliu/influxwire/frame"
	"github.com/arloliu/influxwire/frame/arrowframe"
	"github.com/arloliu/influxwire/value"
)

var t0 = time.Date(2021, 3, 7, 21, 0, 0, 0, time.UTC)

func lines(rows ...string) string {
	return strings.Join(rows, "\n") + "\n"
}

const (
	cpuAnnotations = "#datatype,string,long,dateTime:RFC3339,dateTime:RFC3339,dateTime:RFC3339,double,string,string,string\n" +
		"#group,false,false,true,true,false,false,true,true,true\n" +
		"#default,_result,,,,,,,,\n" +
		",result,table,_start,_stop,_time,_value,_field,_measurement,host\n"
	countAnnotations = "#datatype,string,long,dateTime:RFC3339,dateTime:RFC3339,dateTime:RFC3339,long,string,string,string\n" +
		"#group,false,false,true,true,false,false,true,true,true\n" +
		"#default,_result,,,,,,,,\n" +
		",result,table,_start,_stop,_time,_value,_field,_measurement,host\n"
	bounds = "2021-03-07T20:00:00Z,2021-03-07T22:00:00Z"
)

var twoBlocks = cpuAnnotations + lines(
	",,0,"+bounds+",2021-03-07T21:00:00Z,1.5,usage,cpu,a",
	",,0,"+bounds+",2021-03-07T21:01:00Z,2.5,usage,cpu,a",
	",,1,"+bounds+",2021-03-07T21:00:00Z,0.5,usage,cpu,b",
) + "\n" + countAnnotations + lines(
	",,2,"+bounds+",2021-03-07T21:00:00Z,3,count,cpu,a",
)

func column(t *testing.T, f *frame.Frame, name string) []value.Value {
	t.Helper()

	values, ok := f.Column(name)
	require.True(t, ok, "column %s", name)

	return values
}

func TestDecodeCSV_Blocks(t *testing.T) {
	res, err := DecodeCSV([]byte(twoBlocks), frame.FrameSink{})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Len(t, res.Tables, 3)

	a := res.Tables[0]
	require.Equal(t, "cpu", a.Name)
	require.Equal(t, map[string]string{"host": "a"}, a.Tags)
	require.Equal(t, []time.Time{t0, t0.Add(time.Minute)}, a.Table.Index())
	require.Equal(t, []string{"usage"}, a.Table.Columns())
	require.Equal(t, []value.Value{value.Float(1.5), value.Float(2.5)}, column(t, a.Table, "usage"))

	b := res.Tables[1]
	require.Equal(t, map[string]string{"host": "b"}, b.Tags)
	require.Equal(t, 1, b.Table.Len())

	count := res.Tables[2]
	require.Equal(t, map[string]string{"host": "a"}, count.Tags)
	require.Equal(t, []value.Value{value.Integer(3)}, column(t, count.Table, "count"))
}

func TestDecodeCSV_SharedHeaderBlankLine(t *testing.T) {
	body := lines(
		",result,table,_time,_value",
		",_result,0,2021-03-07T21:00:00Z,a",
		",_result,0,2021-03-07T21:01:00Z,b",
		"",
		",result,table,_time,_value",
		",_result,1,2021-03-07T21:00:00Z,c",
	)

	res, err := DecodeCSV([]byte(body), frame.FrameSink{})
	require.NoError(t, err)
	require.Len(t, res.Tables, 2)
	require.Equal(t, 2, res.Tables[0].Table.Len())
	require.Equal(t, 1, res.Tables[1].Table.Len())
}

func TestDecodeCSV_Pivot(t *testing.T) {
	body := lines(
		"#datatype,string,long,dateTime:RFC3339,double,string,string,string",
		"#group,false,false,false,false,false,true,true",
		"#default,_result,,,,,,",
		",result,table,_time,_value,_field,_measurement,host",
		",,0,2021-03-07T21:00:00Z,1,usage,cpu,a",
		",,0,2021-03-07T21:00:00Z,9,idle,cpu,a",
		",,0,2021-03-07T21:01:00Z,2,usage,cpu,a",
		",,0,2021-03-07T21:01:00Z,8,idle,cpu,a",
	)

	res, err := DecodeCSV([]byte(body), frame.FrameSink{})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Len(t, res.Tables, 1)

	f := res.Tables[0].Table
	require.Equal(t, []time.Time{t0, t0.Add(time.Minute)}, f.Index())
	require.Equal(t, []string{"usage", "idle"}, f.Columns())
	require.Equal(t, []value.Value{value.Float(1), value.Float(2)}, column(t, f, "usage"))
	require.Equal(t, []value.Value{value.Float(9), value.Float(8)}, column(t, f, "idle"))
}

func TestDecodeCSV_PivotRagged(t *testing.T) {
	body := lines(
		"#datatype,string,long,dateTime:RFC3339,double,string,string",
		"#group,false,false,false,false,false,true",
		"#default,_result,,,,,",
		",result,table,_time,_value,_field,_measurement",
		",,0,2021-03-07T21:00:00Z,1,usage,cpu",
		",,0,2021-03-07T21:00:00Z,9,idle,cpu",
		",,0,2021-03-07T21:01:00Z,2,usage,cpu",
	)

	res, err := DecodeCSV([]byte(body), frame.FrameSink{})
	require.NoError(t, err)
	require.Empty(t, res.Tables)
	require.Len(t, res.Errors, 1)
	require.ErrorIs(t, res.Errors[0], errs.ErrRaggedColumn)

	var ce *errs.ConversionError
	require.ErrorAs(t, res.Errors[0], &ce)
	require.Equal(t, "cpu", ce.Table)
	require.Equal(t, "idle", ce.Column)
	require.Equal(t, 2, ce.Expected)
	require.Equal(t, 1, ce.Found)
}

func TestDecodeCSV_PivotKeepsCollidingRows(t *testing.T) {
	body := lines(
		"#datatype,string,long,dateTime:RFC3339,double,string,string,string",
		"#group,false,false,false,false,false,true,false",
		"#default,_result,,,,,,",
		",result,table,_time,_value,_field,_measurement,host",
		",,0,2021-03-07T21:00:00Z,1,t,cpu,a",
		",,0,2021-03-07T21:00:00Z,2,t,cpu,b",
		",,0,2021-03-07T21:01:00Z,4,t,cpu,a",
	)

	res, err := DecodeCSV([]byte(body), frame.FrameSink{})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Len(t, res.Tables, 1)

	f := res.Tables[0].Table
	require.Equal(t, []time.Time{t0, t0, t0.Add(time.Minute)}, f.Index())
	require.Equal(t, []value.Value{value.Float(1), value.Float(2), value.Float(4)}, column(t, f, "t"))
	require.Equal(t, []value.Value{value.String("a"), value.String("b"), value.String("a")}, column(t, f, "host"))
}

func TestDecodeCSV_PivotDuplicateFieldIsRagged(t *testing.T) {
	body := lines(
		"#datatype,string,long,dateTime:RFC3339,double,string,string",
		"#group,false,false,false,false,false,true",
		"#default,_result,,,,,",
		",result,table,_time,_value,_field,_measurement",
		",,0,2021-03-07T21:00:00Z,1,usage,cpu",
		",,0,2021-03-07T21:00:00Z,9,idle,cpu",
		",,0,2021-03-07T21:00:00Z,2,usage,cpu",
	)

	res, err := DecodeCSV([]byte(body), frame.FrameSink{})
	require.NoError(t, err)
	require.Empty(t, res.Tables)
	require.Len(t, res.Errors, 1)

	var ce *errs.ConversionError
	require.ErrorAs(t, res.Errors[0], &ce)
	require.ErrorIs(t, ce, errs.ErrRaggedColumn)
	require.Equal(t, "idle", ce.Column)
	require.Equal(t, 2, ce.Expected)
	require.Equal(t, 1, ce.Found)
}

func TestDecodeCSV_TimeOutOfRange(t *testing.T) {
	body := lines(
		"#datatype,string,long,dateTime:RFC3339,long,string",
		"#group,false,false,false,false,true",
		"#default,_result,,,,",
		",result,table,_time,_value,_measurement",
		",,0,2300-01-01T00:00:00Z,1,m",
		",,1,2021-03-07T21:00:00Z,2,n",
	)

	res, err := DecodeCSV([]byte(body), frame.FrameSink{})
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	require.Equal(t, "n", res.Tables[0].Name)

	require.Len(t, res.Errors, 1)
	require.ErrorIs(t, res.Errors[0], errs.ErrOverflow)
	var pe *errs.ParseError
	require.ErrorAs(t, res.Errors[0], &pe)
	require.Equal(t, "_time", pe.ColumnName)
}

func TestDecodeCSV_Defaults(t *testing.T) {
	body := lines(
		"#datatype,string,long,dateTime:RFC3339,long,string",
		"#group,false,false,false,false,true",
		"#default,_result,,,0,",
		",result,table,_time,_value,_measurement",
		",,0,2021-03-07T21:00:00Z,,m",
		",,0,2021-03-07T21:01:00Z,5,m",
	)

	res, err := DecodeCSV([]byte(body), frame.FrameSink{})
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	require.Equal(t, "m", res.Tables[0].Name)
	require.Empty(t, res.Tables[0].Tags)
	require.Equal(t, []value.Value{value.Integer(0), value.Integer(5)}, column(t, res.Tables[0].Table, "_value"))
}

func TestDecodeCSV_MismatchDropsTable(t *testing.T) {
	body := cpuAnnotations + lines(
		",,0,"+bounds+",2021-03-07T21:00:00Z,1.5,usage,cpu,a",
		",,1,"+bounds+",2021-03-07T21:00:00Z,abc,usage,cpu,b",
		",,1,"+bounds+",2021-03-07T21:01:00Z,2,usage,cpu,b",
		",,0,"+bounds+",2021-03-07T21:01:00Z,2.5,usage,cpu,a",
		",,2,"+bounds+",2021-03-07T21:00:00Z,,usage,cpu,c",
	)

	res, err := DecodeCSV([]byte(body), frame.FrameSink{})
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	require.Equal(t, map[string]string{"host": "a"}, res.Tables[0].Tags)
	require.Equal(t, 2, res.Tables[0].Table.Len())

	require.Len(t, res.Errors, 2)
	require.ErrorIs(t, res.Errors[0], errs.ErrDataTypeMismatch)
	var pe *errs.ParseError
	require.ErrorAs(t, res.Errors[0], &pe)
	require.Equal(t, 6, pe.Row)
	require.Equal(t, 6, pe.Column)
	require.Equal(t, "_value", pe.ColumnName)
	require.Equal(t, "abc", pe.Token)
	require.Equal(t, format.DataTypeDouble.String(), pe.Expected)

	require.ErrorIs(t, res.Errors[1], errs.ErrDataTypeMismatch)
	require.ErrorIs(t, res.Errors[1], errs.ErrNullValue)
}

func TestDecodeCSV_ErrorTable(t *testing.T) {
	body := lines(
		"#datatype,string,string",
		"#group,true,true",
		"#default,,",
		",error,reference",
		",failed to initialize execute state: could not find bucket,897",
	) + "\n" + cpuAnnotations + lines(
		",,0,"+bounds+",2021-03-07T21:00:00Z,1.5,usage,cpu,a",
	)

	logger, hook := logtest.NewNullLogger()

	res, err := DecodeCSV([]byte(body), frame.FrameSink{}, WithLogger(logger))
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	require.Len(t, res.Errors, 1)

	require.ErrorIs(t, res.Errors[0], errs.ErrServerReported)
	var se *errs.ServerError
	require.ErrorAs(t, res.Errors[0], &se)
	require.Equal(t, errs.ServerTable, se.Kind)
	require.Equal(t, "897", se.Reference)
	require.Equal(t, "0", se.Table)
	require.Equal(t, "failed to initialize execute state: could not find bucket", se.Message)

	require.Len(t, hook.AllEntries(), 1)
	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	require.Equal(t, "server error row", hook.LastEntry().Message)
}

func TestDecodeCSV_ErrorColumn(t *testing.T) {
	body := lines(
		"#datatype,string,long,dateTime:RFC3339,double,string",
		"#group,false,false,false,false,false",
		"#default,_result,,,,",
		",result,table,_time,_value,error",
		",,0,2021-03-07T21:00:00Z,1,",
		",,0,2021-03-07T21:01:00Z,2,timeout",
	)

	res, err := DecodeCSV([]byte(body), frame.FrameSink{})
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	require.Equal(t, DefaultTableName, res.Tables[0].Name)
	require.Equal(t, []string{"_value"}, res.Tables[0].Table.Columns())
	require.Equal(t, 1, res.Tables[0].Table.Len())

	require.Len(t, res.Errors, 1)
	var se *errs.ServerError
	require.ErrorAs(t, res.Errors[0], &se)
	require.Equal(t, "_result", se.Table)
	require.Equal(t, "timeout", se.Message)
}

func TestDecodeCSV_Fatal(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
		row  int
	}{
		{
			name: "short data row",
			body: lines(",result,table,_value", ",_result,0"),
			want: errs.ErrColumnCount,
			row:  2,
		},
		{
			name: "annotation width",
			body: lines("#datatype,string,long", ",result,table,_value"),
			want: errs.ErrColumnCount,
			row:  1,
		},
		{
			name: "annotation after data",
			body: lines(",result,table", ",_result,0", "#group,false,false"),
			want: errs.ErrAnnotationAfterData,
			row:  3,
		},
		{
			name: "unknown datatype",
			body: lines("#datatype,string,decimal", ",result,_value"),
			want: errs.ErrUnknownDataType,
			row:  1,
		},
		{
			name: "unknown annotation",
			body: lines("#timezone,UTC", ",tz"),
			want: errs.ErrUnknownAnnotation,
			row:  1,
		},
		{
			name: "bad group token",
			body: lines("#group,yes", ",host"),
			want: errs.ErrSyntax,
			row:  1,
		},
		{
			name: "missing header",
			body: lines("#datatype,string", "", ",result", ",_result"),
			want: errs.ErrMissingHeader,
			row:  1,
		},
		{
			name: "bare quote",
			body: lines(",result", `,a"b`),
			want: errs.ErrSyntax,
			row:  2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := DecodeCSV([]byte(tt.body), frame.FrameSink{})
			require.Nil(t, res)
			require.ErrorIs(t, err, tt.want)

			var pe *errs.ParseError
			require.ErrorAs(t, err, &pe)
			require.Equal(t, tt.row, pe.Row)
		})
	}
}

func TestDecodeCSV_NoAnnotations(t *testing.T) {
	body := lines(
		",result,table,_time,_value",
		",_result,0,2021-03-07T21:00:00Z,1.5",
		",_result,1,2021-03-07T21:00:00Z,2.5",
	)

	res, err := DecodeCSV([]byte(body), frame.FrameSink{})
	require.NoError(t, err)
	require.Len(t, res.Tables, 2)
	require.Equal(t, "_result", res.Tables[0].Name)
	require.Equal(t, []time.Time{t0}, res.Tables[0].Table.Index())
	require.Equal(t, []value.Value{value.String("1.5")}, column(t, res.Tables[0].Table, "_value"))
	require.Equal(t, []value.Value{value.String("2.5")}, column(t, res.Tables[1].Table, "_value"))
}

func TestDecodeCSV_ResultsNeverShareTable(t *testing.T) {
	body := lines(
		"#datatype,string,long,dateTime:RFC3339,double",
		"#group,false,false,false,false",
		"#default,,,,",
		",result,table,_time,_value",
		",first,0,2021-03-07T21:00:00Z,1",
		",second,0,2021-03-07T21:00:00Z,2",
	)

	res, err := DecodeCSV([]byte(body), frame.FrameSink{})
	require.NoError(t, err)
	require.Len(t, res.Tables, 2)
	require.Equal(t, "first", res.Tables[0].Name)
	require.Equal(t, "second", res.Tables[1].Name)
}

func TestDecodeCSV_IndexFallback(t *testing.T) {
	body := lines(
		"#datatype,string,long,dateTime:RFC3339,dateTime:RFC3339,double",
		"#group,false,false,true,true,false",
		"#default,_result,,,,",
		",result,table,_start,_stop,_value",
		",,0,2021-03-07T20:00:00Z,2021-03-07T21:00:00Z,4.5",
	)

	res, err := DecodeCSV([]byte(body), frame.FrameSink{})
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	require.Empty(t, res.Tables[0].Tags)
	require.Equal(t, []time.Time{t0}, res.Tables[0].Table.Index())

	body = lines(
		"#datatype,string,long,string",
		"#group,false,false,false",
		"#default,_result,,",
		",result,table,name",
		",,0,a",
		",,0,b",
	)
	res, err = DecodeCSV([]byte(body), frame.FrameSink{})
	require.NoError(t, err)
	require.Equal(t, []time.Time{{}, {}}, res.Tables[0].Table.Index())
}

func TestDecodeCSV_CellTypes(t *testing.T) {
	body := lines(
		"#datatype,string,long,long,duration,duration,unsignedLong,boolean,base64Binary,dateTime:RFC3339Nano",
		"#group,false,false,false,false,false,false,false,false,false",
		"#default,_result,,,,,,,,",
		",result,table,_time,flux,go,u,ok,blob,seen",
		",,0,1615150800000000000,1h30m,1.5s,18446744073709551615,true,aGk=,2021-03-07T21:00:00.5Z",
	)

	res, err := DecodeCSV([]byte(body), frame.FrameSink{})
	require.NoError(t, err)
	require.Empty(t, res.Errors)

	f := res.Tables[0].Table
	require.Equal(t, []time.Time{t0}, f.Index())
	require.Equal(t, []value.Value{value.Integer(int64(90 * time.Minute))}, column(t, f, "flux"))
	require.Equal(t, []value.Value{value.Integer(int64(1500 * time.Millisecond))}, column(t, f, "go"))
	require.Equal(t, []value.Value{value.Unsigned(18446744073709551615)}, column(t, f, "u"))
	require.Equal(t, []value.Value{value.Bool(true)}, column(t, f, "ok"))
	require.Equal(t, []value.Value{value.String("aGk=")}, column(t, f, "blob"))
	require.Equal(t, []value.Value{value.Timestamp(t0.Add(500 * time.Millisecond))}, column(t, f, "seen"))
}

func TestDecodeCSV_MultilineCell(t *testing.T) {
	body := lines(
		",result,table,_time,note",
		`,_result,0,2021-03-07T21:00:00Z,"two`,
		`lines"`,
		",_result,0,2021-03-07T21:01:00Z,one",
		"",
		",result,table,_time,note",
		",_result,1,2021-03-07T21:00:00Z,x",
	)

	res, err := DecodeCSV([]byte(body), frame.FrameSink{})
	require.NoError(t, err)
	require.Len(t, res.Tables, 2)
	require.Equal(t, []value.Value{value.String("two\nlines"), value.String("one")}, column(t, res.Tables[0].Table, "note"))
}

func TestDecodeCSV_EmptyTable(t *testing.T) {
	body := lines(",result,table,_time,_value") + "\n" + lines(
		",result,table,_time,_value",
		",_result,0,2021-03-07T21:00:00Z,1",
	)

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	res, err := DecodeCSV([]byte(body), frame.FrameSink{}, WithLogger(logger))
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	require.Len(t, hook.AllEntries(), 1)
	require.Equal(t, "empty table", hook.LastEntry().Message)

	res, err = DecodeCSV(nil, frame.FrameSink{})
	require.NoError(t, err)
	require.Empty(t, res.Tables)
	require.Empty(t, res.Errors)
}

func TestDecodeCSV_SinkRejection(t *testing.T) {
	sink := frame.SinkFunc[int](func(name string, index []time.Time, columns frame.Columns) (int, error) {
		if _, ok := columns.Get("count"); ok {
			return 0, &errs.ConversionError{Table: name, Err: errs.ErrMixedColumn}
		}

		return len(index), nil
	})

	res, err := DecodeCSV([]byte(twoBlocks), sink)
	require.NoError(t, err)
	require.Len(t, res.Tables, 2)
	require.Equal(t, 2, res.Tables[0].Table)
	require.Equal(t, 1, res.Tables[1].Table)
	require.Len(t, res.Errors, 1)
	require.ErrorIs(t, res.Errors[0], errs.ErrMixedColumn)
}

func TestDecodeCSV_ContentEncoding(t *testing.T) {
	codec, err := compress.GetCodec(format.CompressionGzip)
	require.NoError(t, err)
	body, err := codec.Compress([]byte(twoBlocks))
	require.NoError(t, err)

	res, err := DecodeCSV(body, frame.FrameSink{}, WithContentEncoding(format.CompressionGzip))
	require.NoError(t, err)
	require.Len(t, res.Tables, 3)

	res, err = DecodeCSVReader(strings.NewReader(string(body)), frame.FrameSink{}, WithContentEncoding(format.CompressionGzip))
	require.NoError(t, err)
	require.Len(t, res.Tables, 3)

	_, err = DecodeCSV(body, frame.FrameSink{}, WithContentEncoding(format.CompressionType(0x7f)))
	require.ErrorIs(t, err, errs.ErrInvalidCodec)
}

func TestDecodeCSVReader(t *testing.T) {
	res, err := DecodeCSVReader(strings.NewReader(twoBlocks), frame.FrameSink{})
	require.NoError(t, err)
	require.Len(t, res.Tables, 3)
}

func TestDecodeCSV_ArrowSink(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	res, err := DecodeCSV([]byte(twoBlocks), arrowframe.NewSinkWithAllocator(mem))
	require.NoError(t, err)
	require.Len(t, res.Tables, 3)
	defer func() {
		for _, tbl := range res.Tables {
			tbl.Table.Release()
		}
	}()

	rec := res.Tables[0].Table
	require.Equal(t, int64(2), rec.NumRows())
	require.Equal(t, []string{arrowframe.IndexColumn, "usage"}, []string{rec.ColumnName(0), rec.ColumnName(1)})
	require.Equal(t, arrow.PrimitiveTypes.Float64, rec.Schema().Field(1).Type)

	usage, ok := rec.Column(1).(*array.Float64)
	require.True(t, ok)
	require.Equal(t, []float64{1.5, 2.5}, usage.Float64Values())
}

func BenchmarkDecodeCSV(b *testing.B) {
	body := []byte(twoBlocks)
	b.ReportAllocs()
	for b.Loop() {
		_, _ = DecodeCSV(body, frame.FrameSink{})
	}
}
