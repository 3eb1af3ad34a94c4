package api

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

type (
	// StepName uniquely identifies a step within a flow
	StepName string

	// RunID uniquely identifies a single flow execution
	RunID string

	// Label is the discriminant a router step emits to select its downstream
	// edges
	Label string
)

// AnyStep is the wildcard step name used by failure sources that match a
// failure of any step in the flow
const AnyStep StepName = "*"

// InvalidNameChars matches characters not permitted in step names. Valid
// characters are: letters, digits, underscore, dot, hyphen, plus, space
var InvalidNameChars = regexp.MustCompile(`[^\p{L}\p{N}_.\-+ ]`)

// NormalizeName trims a step name and converts it to Unicode NFC so that
// visually identical names compare equal
func NormalizeName[T ~string](name T) T {
	return T(norm.NFC.String(strings.TrimSpace(string(name))))
}

// ValidName reports whether the (normalized) name is non-empty and contains
// only permitted characters
func ValidName[T ~string](name T) bool {
	s := string(name)
	return s != "" && !InvalidNameChars.MatchString(s)
}
