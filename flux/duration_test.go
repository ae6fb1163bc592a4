package flux

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/influxwire/errs"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		str  string
	}{
		{"15m", 15 * time.Minute, "15m"},
		{"-15m", -15 * time.Minute, "-15m"},
		{"1h30m", 90 * time.Minute, "1h30m"},
		{"100ms", 100 * time.Millisecond, "100ms"},
		{"3us", 3 * time.Microsecond, "3us"},
		{"3µs", 3 * time.Microsecond, "3us"},
		{"7ns", 7, "7ns"},
		{"2d", 48 * time.Hour, "2d"},
		{"1w", 168 * time.Hour, "1w"},
		{"1m1ms", time.Minute + time.Millisecond, "1m1ms"},
		{"0s", 0, "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDuration(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.str, d.String())

			std, err := d.Std()
			require.NoError(t, err)
			require.Equal(t, tt.want, std)
		})
	}
}

func TestParseDuration_Errors(t *testing.T) {
	tests := []struct {
		in     string
		want   error
		column int
	}{
		{"", errs.ErrInvalidDuration, 0},
		{"-", errs.ErrInvalidDuration, 1},
		{"15", errs.ErrInvalidDuration, 2},
		{"m", errs.ErrInvalidDuration, 0},
		{"1mo", errs.ErrInvalidDuration, 1},
		{"1y", errs.ErrInvalidDuration, 1},
		{"1h 30m", errs.ErrInvalidDuration, 2},
		{"99999999999999999999s", errs.ErrOverflow, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseDuration(tt.in)
			require.ErrorIs(t, err, tt.want)

			var pe *errs.ParseError
			require.ErrorAs(t, err, &pe)
			require.Equal(t, tt.column, pe.Column)
			require.Equal(t, tt.in, pe.Token)
		})
	}
}

func TestDuration_Infinite(t *testing.T) {
	d, err := ParseDuration("inf")
	require.NoError(t, err)
	require.True(t, d.IsInfinite())
	require.False(t, d.IsZero())
	require.Equal(t, "inf", d.String())

	_, err = d.Std()
	require.ErrorIs(t, err, errs.ErrInvalidDuration)
}

func TestDuration_Std_Overflow(t *testing.T) {
	_, err := NewDuration(1000, Week).Std()
	require.NoError(t, err)

	_, err = NewDuration(1<<40, Week).Std()
	require.ErrorIs(t, err, errs.ErrOverflow)
}

func TestDuration_Values(t *testing.T) {
	d := NewDuration(-15, Minute)
	require.True(t, d.Negative())
	require.Equal(t, []Magnitude{{Count: 15, Unit: Minute}}, d.Magnitudes())
	require.Equal(t, "15m", d.Neg().String())
	require.Equal(t, "-15m", d.String())

	var zero Duration
	require.True(t, zero.IsZero())
	require.False(t, zero.Neg().Negative())
	require.Equal(t, "0s", zero.String())
}

func TestFromStd(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{2 * time.Hour, "2h"},
		{90 * time.Minute, "90m"},
		{-30 * time.Second, "-30s"},
		{1500 * time.Millisecond, "1500ms"},
		{time.Microsecond, "1us"},
		{1001, "1001ns"},
		{0, "0s"},
	}
	for _, tt := range tests {
		d := FromStd(tt.in)
		require.Equal(t, tt.want, d.String(), tt.in.String())

		std, err := d.Std()
		require.NoError(t, err)
		require.Equal(t, tt.in, std)
	}
}

func TestUnit(t *testing.T) {
	require.Equal(t, "w", Week.String())
	require.Equal(t, 24*time.Hour, Day.Duration())
	require.Equal(t, "?", Unit(0).String())
	require.Equal(t, time.Duration(0), Unit(42).Duration())
}

func TestBound(t *testing.T) {
	ts := time.Date(2021, 3, 7, 22, 0, 0, 500, time.FixedZone("CET", 3600))

	require.Equal(t, "2021-03-07T21:00:00.0000005Z", Instant(ts).String())
	require.Equal(t, "-1h", Relative(NewDuration(-1, Hour)).String())
	require.Equal(t, "now()", Now().String())

	var unset Bound
	require.True(t, unset.IsZero())
	require.ErrorIs(t, unset.validate(), errs.ErrMissingRange)
	require.ErrorIs(t, Relative(Infinite).validate(), errs.ErrInvalidDuration)
	require.NoError(t, Now().validate())
}
