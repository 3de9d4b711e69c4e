// Package wildcard holds the wildcard reference and inline choice syntax,
// and read-only stores that map a wildcard name to its candidate values.
package wildcard

import (
	"regexp"
	"strings"
)

var (
	// ReferencePattern matches a whole value of the form __name__.
	ReferencePattern = regexp.MustCompile(`^__(.*?)__$`)

	// InlineChoicePattern matches a whole value of the form <a|b|c>.
	// Nested angle brackets are not allowed.
	InlineChoicePattern = regexp.MustCompile(`^<([^<>]*)>$`)
)

// ParseReference returns the bare name of a __name__ reference.
// The whole value must be a reference.
func ParseReference(value string) (string, bool) {
	m := ReferencePattern.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseInlineChoice splits a <a|b> value into its alternatives.
func ParseInlineChoice(value string) ([]string, bool) {
	m := InlineChoicePattern.FindStringSubmatch(value)
	if m == nil {
		return nil, false
	}
	return strings.Split(m[1], "|"), true
}

// BareName strips the double underscores from a reference and returns
// any other name unchanged. Stores are always queried with bare names.
func BareName(name string) string {
	if bare, ok := ParseReference(name); ok {
		return bare
	}
	return name
}
