package lineprotocol

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/influxwire/errs"
	"github.com/arloliu/influxwire/format"
	"github.com/arloliu/influxwire/value"
)

var odenseTime = time.Date(2014, 7, 8, 9, 10, 11, 0, time.UTC)

func odenseLine(t *testing.T) *Line {
	t.Helper()

	line, err := NewBuilder("location").
		Field("latitude", 55.383333).
		Field("longitude", 10.383333).
		Tag("city", "Odense").
		Timestamp(odenseTime).
		Build()
	require.NoError(t, err)

	return line
}

func TestEncode_Example(t *testing.T) {
	out, err := Encode(odenseLine(t))
	require.NoError(t, err)
	require.Equal(t, "location,city=Odense latitude=55.383333,longitude=10.383333 1404810611000000000", string(out))
}

func TestEncode_Forms(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Builder
		want  string
	}{
		{
			name:  "no timestamp",
			build: func() *Builder { return NewBuilder("cpu").Field("usage", 12.5) },
			want:  "cpu usage=12.5",
		},
		{
			name: "all field kinds",
			build: func() *Builder {
				return NewBuilder("m").
					Field("f", 1.0).
					Field("i", -55).
					Field("u", uint64(7)).
					Field("b", true).
					Field("s", `he said "hi"`).
					Field("t", odenseTime)
			},
			want: `m f=1,i=-55i,u=7u,b=true,s="he said \"hi\"",t=1404810611000000000i`,
		},
		{
			name: "escaping",
			build: func() *Builder {
				return NewBuilder("disk usage,total").
					Tag("mount point", "/var/lib,data").
					Tag("k=v", "a=b").
					Field("free space", 1)
			},
			want: `disk\ usage\,total,mount\ point=/var/lib\,data,k\=v=a\=b free\ space=1i`,
		},
		{
			name:  "equals in measurement is literal",
			build: func() *Builder { return NewBuilder("a=b").Field("x", 1) },
			want:  "a=b x=1i",
		},
		{
			name: "tag insertion order and replacement",
			build: func() *Builder {
				return NewBuilder("cpu").Tag("z", "1").Tag("a", "2").Tag("z", "3").Field("v", 0.5)
			},
			want: "cpu,z=3,a=2 v=0.5",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := tt.build().Build()
			require.NoError(t, err)

			out, err := Encode(line)
			require.NoError(t, err)
			require.Equal(t, tt.want, string(out))
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Builder
		want  error
	}{
		{"zero fields", func() *Builder { return NewBuilder("cpu").Tag("host", "a") }, errs.ErrNoFields},
		{"empty measurement", func() *Builder { return NewBuilder("").Field("v", 1) }, errs.ErrEmptyMeasurement},
		{"nan field", func() *Builder { return NewBuilder("cpu").Field("v", math.NaN()) }, errs.ErrNonFiniteFloat},
		{"inf field value", func() *Builder { return NewBuilder("cpu").FieldValue("v", value.Float(math.Inf(1))) }, errs.ErrNonFiniteFloat},
		{"unsupported type", func() *Builder { return NewBuilder("cpu").Field("v", struct{}{}) }, errs.ErrUnsupportedType},
		{"empty tag value", func() *Builder { return NewBuilder("cpu").Tag("host", "").Field("v", 1) }, errs.ErrEmptyTagValue},
		{"empty field key", func() *Builder { return NewBuilder("cpu").Field("", 1) }, errs.ErrEmptyKey},
		{"newline in tag", func() *Builder { return NewBuilder("cpu").Tag("host", "a\nb").Field("v", 1) }, errs.ErrInvalidCharacter},
		{"trailing backslash", func() *Builder { return NewBuilder("cpu").Tag("host", `a\`).Field("v", 1) }, errs.ErrInvalidCharacter},
		{"comment measurement", func() *Builder { return NewBuilder("#cpu").Field("v", 1) }, errs.ErrInvalidCharacter},
		{"time after range", func() *Builder {
			return NewBuilder("m").Field("v", 1).Timestamp(time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC))
		}, errs.ErrOverflow},
		{"time before range", func() *Builder {
			return NewBuilder("m").Field("v", 1).Timestamp(time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC))
		}, errs.ErrOverflow},
		{"time field out of range", func() *Builder {
			return NewBuilder("m").Field("at", time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC))
		}, errs.ErrOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Build()
			require.ErrorIs(t, err, tt.want)

			var encErr *errs.EncodingError
			require.ErrorAs(t, err, &encErr)
		})
	}
}

func TestBuild_Consumed(t *testing.T) {
	b := NewBuilder("cpu").Field("v", 1)
	_, err := b.Build()
	require.NoError(t, err)

	_, err = b.Build()
	require.ErrorIs(t, err, errs.ErrBuilderConsumed)
}

func TestEncode_InvalidLine(t *testing.T) {
	_, err := Encode(&Line{measurement: "cpu"})
	require.ErrorIs(t, err, errs.ErrNoFields)

	_, err = Encode(&Line{measurement: "cpu", fields: []Field{{Key: "v", Value: value.Float(math.NaN())}}})
	require.ErrorIs(t, err, errs.ErrNonFiniteFloat)

	_, err = Encode(nil)
	require.ErrorIs(t, err, errs.ErrInvalidValue)
}

func TestEncode_TimeRange(t *testing.T) {
	_, err := Encode(&Line{measurement: "m", fields: []Field{{Key: "v", Value: value.Float(1)}},
		ts: time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC), hasTime: true})
	var encErr *errs.EncodingError
	require.ErrorAs(t, err, &encErr)
	require.Equal(t, "time", encErr.Key)
	require.ErrorIs(t, err, errs.ErrOverflow)

	for _, ts := range []time.Time{value.MinTime, value.MaxTime} {
		line, err := NewBuilder("m").Field("v", 1).Timestamp(ts).Build()
		require.NoError(t, err)
		out, err := Encode(line)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("m v=1 %d", ts.UnixNano()), string(out))
	}
}

func TestEncodeBatch_FailFast(t *testing.T) {
	good := odenseLine(t)
	bad := &Line{measurement: "broken"}

	out, err := EncodeBatch([]*Line{good, good, bad, good})
	require.Nil(t, out)

	var encErr *errs.EncodingError
	require.ErrorAs(t, err, &encErr)
	require.Equal(t, 2, encErr.Line)
	require.ErrorIs(t, err, errs.ErrNoFields)

	out, err = EncodeBatch([]*Line{good, good})
	require.NoError(t, err)
	want := "location,city=Odense latitude=55.383333,longitude=10.383333 1404810611000000000\n"
	require.Equal(t, want+want, string(out))
}

func TestEncode_Precision(t *testing.T) {
	line, err := NewBuilder("cpu").Field("v", 1).Timestamp(odenseTime.Add(123456789)).Build()
	require.NoError(t, err)

	tests := []struct {
		p    format.Precision
		want string
	}{
		{format.PrecisionNanosecond, "cpu v=1i 1404810611123456789"},
		{format.PrecisionMicrosecond, "cpu v=1i 1404810611123456"},
		{format.PrecisionMillisecond, "cpu v=1i 1404810611123"},
		{format.PrecisionSecond, "cpu v=1i 1404810611"},
	}
	for _, tt := range tests {
		t.Run(tt.p.String(), func(t *testing.T) {
			out, err := Encode(line, WithPrecision(tt.p))
			require.NoError(t, err)
			require.Equal(t, tt.want, string(out))

			decoded, err := Decode(string(out), WithDecodePrecision(tt.p))
			require.NoError(t, err)
			ts, ok := decoded.Time()
			require.True(t, ok)
			require.Equal(t, line.ts.Truncate(tt.p.Unit()), ts)
		})
	}

	_, err = Encode(line, WithPrecision(format.Precision(0)))
	require.ErrorIs(t, err, errs.ErrInvalidPrecision)
}

func BenchmarkEncodeBatch(b *testing.B) {
	lines := make([]*Line, 0, 1000)
	for i := range 1000 {
		line, err := NewBuilder("cpu").
			Tag("host", fmt.Sprintf("server%02d", i%32)).
			Tag("region", "eu-west").
			Field("usage_user", float64(i)*0.25).
			Field("usage_system", i%7).
			Timestamp(odenseTime.Add(time.Duration(i) * time.Second)).
			Build()
		if err != nil {
			b.Fatal(err)
		}
		lines = append(lines, line)
	}

	b.ReportAllocs()
	for b.Loop() {
		_, _ = EncodeBatch(lines)
	}
}
