package generator

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/benjaminschreck/go-dynprompts/pkg/template"
	"github.com/benjaminschreck/go-dynprompts/pkg/wildcard"
)

// DefaultMaxWildcardDepth bounds how deeply wildcards may reference
// other wildcards.
const DefaultMaxWildcardDepth = 32

// Wildcard returns every value of the named wildcard. A value that is
// itself a __reference__ is replaced by all of its resolved values, and
// a <a|b> value by one alternative chosen at random. Unknown names
// resolve to an empty list.
func (e *Environment) Wildcard(name string) ([]string, error) {
	bare := wildcard.BareName(name)

	for i, n := range e.resolving {
		if n == bare {
			chain := make([]string, 0, len(e.resolving)-i+1)
			chain = append(chain, e.resolving[i:]...)
			chain = append(chain, bare)
			return nil, errors.Mark(
				errors.Newf("wildcard cycle detected: %s", strings.Join(chain, " -> ")),
				ErrWildcardCycle)
		}
	}
	if e.maxDepth > 0 && len(e.resolving) >= e.maxDepth {
		return nil, errors.Mark(
			errors.Newf("wildcard '%s' exceeds the maximum nesting depth of %d", bare, e.maxDepth),
			ErrWildcardDepth)
	}
	if e.store == nil {
		return []string{}, nil
	}

	e.resolving = append(e.resolving, bare)
	defer func() {
		e.resolving = e.resolving[:len(e.resolving)-1]
	}()

	values := e.store.GetAllValues(bare)
	out := make([]string, 0, len(values))
	for _, v := range values {
		if ref, ok := wildcard.ParseReference(v); ok {
			nested, err := e.Wildcard(ref)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}
		if alternatives, ok := wildcard.ParseInlineChoice(v); ok {
			out = append(out, alternatives[e.rng.IntN(len(alternatives))])
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *Environment) callWildcard(args ...interface{}) (interface{}, error) {
	name, ok := args[0].(string)
	if !ok {
		return nil, invalidArgument("wildcard() name must be a string, got %s", template.Repr(args[0]))
	}
	values, err := e.Wildcard(name)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out, nil
}
