// Package flag defines the ordered severity outcome of a QC test.
package flag

import (
	"fmt"
	"strings"
)

// Flag is the severity of a QC outcome. The numeric order is the severity
// order: Pass < Inconclusive < Warn < Fail. The zero value is Pass.
type Flag uint8

// Severity levels, least severe first.
const (
	Pass Flag = iota
	Inconclusive
	Warn
	Fail
)

var names = [...]string{
	Pass:         "pass",
	Inconclusive: "inconclusive",
	Warn:         "warn",
	Fail:         "fail",
}

// All lists every flag in ascending severity.
func All() []Flag {
	return []Flag{Pass, Inconclusive, Warn, Fail}
}

// Valid reports whether f is one of the defined flags.
func (f Flag) Valid() bool {
	return f <= Fail
}

func (f Flag) String() string {
	if !f.Valid() {
		return fmt.Sprintf("flag(%d)", uint8(f))
	}
	return names[f]
}

// Max returns the more severe of a and b.
func Max(a, b Flag) Flag {
	if a > b {
		return a
	}
	return b
}

// Combine returns the most severe flag present. Combining nothing yields Pass,
// so Combine is associative and commutative with Pass as identity.
func Combine(flags ...Flag) Flag {
	out := Pass
	for _, f := range flags {
		out = Max(out, f)
	}
	return out
}

// Parse converts a case-insensitive flag name into a Flag.
func Parse(s string) (Flag, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for i, name := range names {
		if name == needle {
			return Flag(i), nil
		}
	}
	return Pass, fmt.Errorf("unknown flag: %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (f Flag) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid flag %d", uint8(f))
	}
	return []byte(names[f]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Flag) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
