/*
Package score converts place rating averages transmitted by the ratings
contract as x100 fixed point integers into decimal star values and renders
them as star glyphs.
*/
package score

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Glyphs used to render star values.
const (
	FullStar    = "⭐"
	HalfStar    = "✰"
	Placeholder = "—"
)

// MaxRaw is the upper bound of a valid x100 fixed point average (5 stars).
const MaxRaw = 500

// MaxStars is the maximum number of full star glyphs drawn.
const MaxStars = 5

var half = decimal.New(5, -1)

// ToDecimal converts x100 fixed point value into the decimal star value. The
// result is exact: raw/100.
func ToDecimal(raw int64) decimal.Decimal {
	return decimal.New(raw, -2)
}

// Stars renders d as one [FullStar] per whole star (at most [MaxStars]) and
// one [HalfStar] if the fractional part is 0.5 or more. Non-positive values
// render as [Placeholder].
func Stars(d decimal.Decimal) string {
	if !d.IsPositive() {
		return Placeholder
	}

	full := d.Floor()
	n := full.IntPart()
	if n > MaxStars {
		n = MaxStars
	}

	var sb strings.Builder
	sb.WriteString(strings.Repeat(FullStar, int(n)))
	if d.Sub(full).GreaterThanOrEqual(half) {
		sb.WriteString(HalfStar)
	}
	return sb.String()
}

// StarsOf is like [Stars] but renders missing value as [Placeholder].
func StarsOf(d *decimal.Decimal) string {
	if d == nil {
		return Placeholder
	}
	return Stars(*d)
}

// StarsFloat is like [Stars] for float values. NaN and infinite values render
// as [Placeholder].
func StarsFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Placeholder
	}
	return Stars(decimal.NewFromFloat(f))
}

// Average is a rating average of a single place as read from the contract.
// Zero value is unavailable.
type Average struct {
	raw   int64
	valid bool
}

// FromRaw returns Average from the x100 fixed point value.
func FromRaw(raw int64) Average {
	return Average{raw: raw, valid: true}
}

// Unavailable returns Average for failed reads.
func Unavailable() Average {
	return Average{}
}

// Valid checks whether the value was successfully read.
func (a Average) Valid() bool {
	return a.valid
}

// Raw returns x100 fixed point value. Zero for unavailable average.
func (a Average) Raw() int64 {
	return a.raw
}

// Decimal returns decimal star value and a flag whether the value is
// available.
func (a Average) Decimal() (decimal.Decimal, bool) {
	if !a.valid {
		return decimal.Zero, false
	}
	return ToDecimal(a.raw), true
}

// Rated checks whether the average can be displayed, i.e. it is available,
// within [0, MaxRaw] and non-zero (zero means no ratings yet).
func (a Average) Rated() bool {
	return a.valid && a.raw > 0 && a.raw <= MaxRaw
}

// String renders average as stars followed by the value with one decimal,
// e.g. "⭐⭐⭐⭐ (4.0)". Averages that are not [Average.Rated] render as
// [Placeholder].
func (a Average) String() string {
	return a.format(1)
}

// Precise is like String but prints two decimals.
func (a Average) Precise() string {
	return a.format(2)
}

func (a Average) format(places int32) string {
	if !a.Rated() {
		return Placeholder
	}
	d := ToDecimal(a.raw)
	return Stars(d) + " (" + d.StringFixed(places) + ")"
}
