package generator

import (
	"math"

	"github.com/benjaminschreck/go-dynprompts/pkg/template"
)

// Choice returns one item uniformly at random. A single list or tuple
// argument is chosen from element-wise, so choice(wildcard("x")) picks
// one value.
func (e *Environment) Choice(items ...interface{}) (interface{}, error) {
	if len(items) == 1 {
		if seq, ok := sequence(items[0]); ok {
			items = seq
		}
	}
	if len(items) == 0 {
		return nil, invalidArgument("choice() cannot choose from an empty sequence")
	}
	return items[e.rng.IntN(len(items))], nil
}

// WeightedChoice takes (value, weight) pairs and returns a value with
// probability proportional to its weight. A single list of pairs is
// accepted as well.
func (e *Environment) WeightedChoice(pairs ...interface{}) (interface{}, error) {
	if len(pairs) == 1 {
		if seq, ok := sequence(pairs[0]); ok && allPairs(seq) {
			pairs = seq
		}
	}
	if len(pairs) == 0 {
		return nil, invalidArgument("weighted_choice() requires at least one (value, weight) pair")
	}

	values := make([]interface{}, len(pairs))
	weights := make([]float64, len(pairs))
	total := 0.0
	for i, p := range pairs {
		pair, ok := sequence(p)
		if !ok || len(pair) != 2 {
			return nil, invalidArgument("weighted_choice() argument %d must be a (value, weight) pair, got %s", i+1, template.Repr(p))
		}
		if _, isBool := pair[1].(bool); isBool {
			return nil, invalidArgument("weighted_choice() weight must be a number, got %s", template.Repr(pair[1]))
		}
		w, ok := template.ToFloat64(pair[1])
		if !ok || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, invalidArgument("weighted_choice() weight must be a number, got %s", template.Repr(pair[1]))
		}
		if w < 0 {
			return nil, invalidArgument("weighted_choice() weights must be non-negative, got %s", template.Repr(pair[1]))
		}
		values[i] = pair[0]
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return nil, invalidArgument("weighted_choice() total of weights must be greater than zero")
	}

	r := e.rng.Float64() * total
	cumulative := 0.0
	last := -1
	for i, w := range weights {
		if w == 0 {
			continue
		}
		cumulative += w
		last = i
		if r < cumulative {
			return values[i], nil
		}
	}
	// rounding can leave r at the very top of the range
	return values[last], nil
}

// Random returns a float in [0, 1).
func (e *Environment) Random() float64 {
	return e.rng.Float64()
}

// RandInt returns an integer in [low, high].
func (e *Environment) RandInt(low, high int) (int, error) {
	if low > high {
		return 0, invalidArgument("randint() empty range (%d, %d)", low, high)
	}
	span := uint64(high - low)
	if span == math.MaxUint64 {
		return low + int(e.rng.Uint64()), nil
	}
	return low + int(e.rng.Uint64N(span+1)), nil
}

func (e *Environment) callRandInt(args ...interface{}) (interface{}, error) {
	low, ok := integerArg(args[0])
	if !ok {
		return nil, invalidArgument("randint() low must be an integer, got %s", template.Repr(args[0]))
	}
	high, ok := integerArg(args[1])
	if !ok {
		return nil, invalidArgument("randint() high must be an integer, got %s", template.Repr(args[1]))
	}
	return e.RandInt(low, high)
}

// sequence returns the elements of a list or tuple value. Strings and
// mappings are not sequences here.
func sequence(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case template.Tuple:
		return []interface{}(s), true
	case []string:
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	default:
		return nil, false
	}
}

func allPairs(items []interface{}) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		pair, ok := sequence(item)
		if !ok || len(pair) != 2 {
			return false
		}
	}
	return true
}

// integerArg accepts ints and whole floats, but not booleans.
func integerArg(v interface{}) (int, bool) {
	if _, isBool := v.(bool); isBool {
		return 0, false
	}
	return template.ToInt(v)
}
