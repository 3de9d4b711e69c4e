package template

import "strings"

// Template is a parsed template. It holds no environment state and may be
// rendered concurrently.
type Template struct {
	source string
	nodes  []ControlStructure
}

// Source returns the text the template was parsed from.
func (t *Template) Source() string {
	return t.source
}

// Nodes returns the top-level parsed structures.
func (t *Template) Nodes() []ControlStructure {
	return t.nodes
}

func (t *Template) String() string {
	parts := make([]string, len(t.nodes))
	for i, node := range t.nodes {
		parts[i] = node.String()
	}
	return strings.Join(parts, " ")
}
