package scpi

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Format is the way a value is rendered into a command
type Format int

const (
	// Fixed renders %.<Precision>f
	Fixed Format = iota

	// Scientific renders %0.<Precision>e
	Scientific

	// Integer renders %d after rounding to the nearest integer
	Integer

	// Token renders one member of an enumeration verbatim
	Token
)

// InvalidArgument is generated when a value is outside the legal domain of a
// setting.  No command is sent when it is returned.
type InvalidArgument struct {
	Setting string
	Value   interface{}
	Domain  string
}

func (e *InvalidArgument) Error() string {
	return fmt.Sprintf("invalid argument for %s: %v, must be %s", e.Setting, e.Value, e.Domain)
}

// Range is an inclusive interval
type Range struct {
	Min, Max float64
}

// Contains returns true if min <= v <= max
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("in [%g, %g]", r.Min, r.Max)
}

/*Setting is one instrument parameter and the grammar of the command that
sets it.  A numeric setting has a Range, a Token setting an Enum.

The rendered command is Prefix + value + Suffix, for example

	Setting{Name: "attenuation", Prefix: "AAV", Format: Fixed, Precision: 3,
		Range: &Range{0, 60}}

encodes 12.5 as "AAV12.500".
*/
type Setting struct {
	Name      string
	Prefix    string
	Suffix    string
	Format    Format
	Precision int

	// Range, if not nil, bounds numeric values
	Range *Range

	// Enum lists the legal tokens of a Token setting, compared case-insensitively
	Enum []string
}

// WithPrefix returns a copy of s with the prefix set to the formatted string,
// for commands that carry a channel or slot number
func (s Setting) WithPrefix(format string, a ...interface{}) Setting {
	s.Prefix = fmt.Sprintf(format, a...)
	return s
}

func (s Setting) invalid(v interface{}, domain string) error {
	return &InvalidArgument{Setting: s.Name, Value: v, Domain: domain}
}

// Render formats a number per the setting's format without checking the range
func (s Setting) Render(v float64) string {
	switch s.Format {
	case Scientific:
		return strconv.FormatFloat(v, 'e', s.Precision, 64)
	case Integer:
		return strconv.Itoa(int(math.Round(v)))
	default:
		return strconv.FormatFloat(v, 'f', s.Precision, 64)
	}
}

// Encode renders the command that sets a numeric setting to v
func (s Setting) Encode(v float64) (string, error) {
	if s.Format == Token {
		return "", s.invalid(v, "one of "+strings.Join(s.Enum, ", "))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", s.invalid(v, "finite")
	}
	if s.Range != nil && !s.Range.Contains(v) {
		return "", s.invalid(v, s.Range.String())
	}
	return s.Prefix + s.Render(v) + s.Suffix, nil
}

// EncodeToken renders the command that sets an enumerated setting to tok.
// The token is sent in the case it was listed in Enum.
func (s Setting) EncodeToken(tok string) (string, error) {
	for _, e := range s.Enum {
		if strings.EqualFold(e, tok) {
			return s.Prefix + e + s.Suffix, nil
		}
	}
	return "", s.invalid(tok, "one of "+strings.Join(s.Enum, ", "))
}

// Tolerance is half of the last digit the format renders at v.  A value
// rendered by Encode and parsed back is within Tolerance of the original.
func (s Setting) Tolerance(v float64) float64 {
	switch s.Format {
	case Scientific:
		if v == 0 {
			return 0
		}
		exp := math.Floor(math.Log10(math.Abs(v)))
		return 0.5 * math.Pow(10, exp-float64(s.Precision))
	case Integer:
		return 0.5
	case Token:
		return 0
	default:
		return 0.5 * math.Pow(10, -float64(s.Precision))
	}
}

// CheckRange returns an InvalidArgument if v is outside [min, max].  It is a
// shorthand for drivers whose commands take more than one argument.
func CheckRange(name string, v, min, max float64) error {
	r := Range{Min: min, Max: max}
	if math.IsNaN(v) || !r.Contains(v) {
		return &InvalidArgument{Setting: name, Value: v, Domain: r.String()}
	}
	return nil
}

// CheckEnum returns an InvalidArgument if tok is not a member of enum, and
// the canonical spelling of tok otherwise
func CheckEnum(name, tok string, enum ...string) (string, error) {
	return Setting{Name: name, Format: Token, Enum: enum}.EncodeToken(tok)
}
