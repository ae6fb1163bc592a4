package flux

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/influxwire/errs"
)

// Unit is the unit of one magnitude of a duration literal.
type Unit uint8

const (
	Nanosecond Unit = iota + 1
	Microsecond
	Millisecond
	Second
	Minute
	Hour
	Day
	Week
)

// String returns the literal suffix of the unit.
func (u Unit) String() string {
	switch u {
	case Nanosecond:
		return "ns"
	case Microsecond:
		return "us"
	case Millisecond:
		return "ms"
	case Second:
		return "s"
	case Minute:
		return "m"
	case Hour:
		return "h"
	case Day:
		return "d"
	case Week:
		return "w"
	default:
		return "?"
	}
}

// Duration returns the length of one unit. Days and weeks are fixed at 24 and
// 168 hours.
func (u Unit) Duration() time.Duration {
	switch u {
	case Nanosecond:
		return time.Nanosecond
	case Microsecond:
		return time.Microsecond
	case Millisecond:
		return time.Millisecond
	case Second:
		return time.Second
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	case Day:
		return 24 * time.Hour
	case Week:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

func (u Unit) valid() bool {
	return u >= Nanosecond && u <= Week
}

// Magnitude is one count-unit pair of a duration literal.
type Magnitude struct {
	Count int64
	Unit  Unit
}

// Duration is a Flux duration literal: a signed sequence of magnitudes such as
// -1h30m, or the infinite duration inf.
//
// The zero Duration renders as 0s.
type Duration struct {
	negative bool
	infinite bool
	parts    []Magnitude
}

// Infinite is the inf duration literal.
var Infinite = Duration{infinite: true}

// NewDuration returns a single-magnitude duration. A negative n yields a negative
// duration.
func NewDuration(n int64, u Unit) Duration {
	d := Duration{negative: n < 0}
	if n < 0 {
		n = -n
	}
	d.parts = []Magnitude{{Count: n, Unit: u}}

	return d
}

// FromStd converts d to the largest unit between nanoseconds and hours that
// represents it exactly.
func FromStd(d time.Duration) Duration {
	for _, u := range []Unit{Hour, Minute, Second, Millisecond, Microsecond} {
		if d%u.Duration() == 0 {
			return NewDuration(int64(d/u.Duration()), u)
		}
	}

	return NewDuration(int64(d), Nanosecond)
}

// IsInfinite reports whether d is inf.
func (d Duration) IsInfinite() bool { return d.infinite }

// Negative reports whether d is negative.
func (d Duration) Negative() bool { return d.negative && !d.IsZero() }

// IsZero reports whether d is finite and has no non-zero magnitude.
func (d Duration) IsZero() bool {
	if d.infinite {
		return false
	}
	for _, p := range d.parts {
		if p.Count != 0 {
			return false
		}
	}

	return true
}

// Magnitudes returns the magnitudes of d in literal order.
func (d Duration) Magnitudes() []Magnitude {
	return append([]Magnitude(nil), d.parts...)
}

// Neg returns d with its sign flipped.
func (d Duration) Neg() Duration {
	d.negative = !d.negative
	return d
}

// Std converts d to a time.Duration.
//
// Returns:
//   - time.Duration: The total length of d
//   - error: errs.ErrInvalidDuration for inf, errs.ErrOverflow beyond ±292 years
func (d Duration) Std() (time.Duration, error) {
	if d.infinite {
		return 0, errs.ErrInvalidDuration
	}

	var total int64
	for _, p := range d.parts {
		unit := int64(p.Unit.Duration())
		if unit == 0 {
			return 0, errs.ErrInvalidDuration
		}
		if p.Count > (math.MaxInt64-total)/unit {
			return 0, errs.ErrOverflow
		}
		total += p.Count * unit
	}
	if d.negative {
		total = -total
	}

	return time.Duration(total), nil
}

// String renders the literal, for example -15m, 1h30m or inf.
func (d Duration) String() string {
	if d.infinite {
		return "inf"
	}
	if d.IsZero() {
		return "0s"
	}

	var sb strings.Builder
	if d.negative {
		sb.WriteByte('-')
	}
	for _, p := range d.parts {
		if p.Count == 0 {
			continue
		}
		sb.WriteString(strconv.FormatInt(p.Count, 10))
		sb.WriteString(p.Unit.String())
	}

	return sb.String()
}

func (d Duration) valid() bool {
	if d.infinite {
		return true
	}
	for _, p := range d.parts {
		if p.Count < 0 || !p.Unit.valid() {
			return false
		}
	}

	return true
}

// unitSuffixes lists the suffixes accepted by ParseDuration, two-letter
// suffixes first so that "ms" is not read as "m".
var unitSuffixes = []struct {
	suffix string
	unit   Unit
}{
	{"ns", Nanosecond},
	{"us", Microsecond},
	{"µs", Microsecond},
	{"ms", Millisecond},
	{"s", Second},
	{"m", Minute},
	{"h", Hour},
	{"d", Day},
	{"w", Week},
}

// ParseDuration parses a duration literal: inf, or an optional '-' followed by
// one or more count-unit magnitudes such as 15m or 1h30m.
func ParseDuration(s string) (Duration, error) {
	fail := func(pos int, err error) (Duration, error) {
		return Duration{}, &errs.ParseError{Column: pos, Token: s, Expected: "duration literal", Err: err}
	}

	if s == "inf" {
		return Infinite, nil
	}

	var d Duration
	pos := 0
	if strings.HasPrefix(s, "-") {
		d.negative = true
		pos++
	}
	if pos == len(s) {
		return fail(pos, errs.ErrInvalidDuration)
	}

	for pos < len(s) {
		start := pos
		for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
			pos++
		}
		if start == pos {
			return fail(pos, errs.ErrInvalidDuration)
		}
		n, err := strconv.ParseInt(s[start:pos], 10, 64)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return fail(start, errs.ErrOverflow)
			}

			return fail(start, errs.ErrInvalidDuration)
		}

		unit := Unit(0)
		for _, us := range unitSuffixes {
			if strings.HasPrefix(s[pos:], us.suffix) {
				// "mo" is the month unit, which has no fixed length.
				if us.suffix == "m" && strings.HasPrefix(s[pos:], "mo") {
					break
				}
				unit = us.unit
				pos += len(us.suffix)

				break
			}
		}
		if unit == 0 {
			return fail(pos, errs.ErrInvalidDuration)
		}
		d.parts = append(d.parts, Magnitude{Count: n, Unit: unit})
	}

	return d, nil
}

type boundKind uint8

const (
	boundUnset boundKind = iota
	boundInstant
	boundRelative
	boundNow
)

// Bound is a range boundary: an absolute instant, a duration relative to now, or
// now itself.
type Bound struct {
	kind boundKind
	t    time.Time
	d    Duration
}

// Instant returns a bound at t. It renders as an unquoted RFC3339 time literal in
// UTC, since range() rejects a quoted string where a time is expected.
func Instant(t time.Time) Bound {
	return Bound{kind: boundInstant, t: t.UTC()}
}

// Relative returns a bound at now plus d, such as Relative(NewDuration(-15,
// Minute)) for 15 minutes ago.
func Relative(d Duration) Bound {
	return Bound{kind: boundRelative, d: d}
}

// Now returns the bound now().
func Now() Bound {
	return Bound{kind: boundNow}
}

// IsZero reports whether b is the zero Bound.
func (b Bound) IsZero() bool { return b.kind == boundUnset }

// String renders the bound as a Flux expression.
func (b Bound) String() string {
	switch b.kind {
	case boundInstant:
		return b.t.Format(time.RFC3339Nano)
	case boundRelative:
		return b.d.String()
	case boundNow:
		return "now()"
	default:
		return ""
	}
}

func (b Bound) validate() error {
	switch b.kind {
	case boundUnset:
		return errs.ErrMissingRange
	case boundRelative:
		if b.d.infinite || !b.d.valid() {
			return errs.ErrInvalidDuration
		}
	}

	return nil
}
