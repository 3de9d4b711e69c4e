package template

import (
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	upperCaser = cases.Upper(language.Und)
	lowerCaser = cases.Lower(language.Und)
	titleCaser = cases.Title(language.Und)
)

// builtinFilters are registered on every new Environment. A filter is a
// Function whose first argument is the filtered value.
func builtinFilters() []Function {
	return []Function{
		NewNamedFunction("upper", []string{"value"}, 1, 1, func(args ...interface{}) (interface{}, error) {
			return upperCaser.String(FormatValue(args[0])), nil
		}),
		NewNamedFunction("lower", []string{"value"}, 1, 1, func(args ...interface{}) (interface{}, error) {
			return lowerCaser.String(FormatValue(args[0])), nil
		}),
		NewNamedFunction("title", []string{"value"}, 1, 1, func(args ...interface{}) (interface{}, error) {
			return titleCaser.String(FormatValue(args[0])), nil
		}),
		NewNamedFunction("capitalize", []string{"value"}, 1, 1, func(args ...interface{}) (interface{}, error) {
			return capitalize(FormatValue(args[0])), nil
		}),
		NewNamedFunction("trim", []string{"value", "chars"}, 1, 2, filterTrim),
		NewNamedFunction("join", []string{"value", "d"}, 1, 2, filterJoin),
		NewNamedFunction("length", []string{"value"}, 1, 1, filterLength),
		NewNamedFunction("count", []string{"value"}, 1, 1, filterLength),
		NewNamedFunction("first", []string{"value"}, 1, 1, filterFirst),
		NewNamedFunction("last", []string{"value"}, 1, 1, filterLast),
		NewNamedFunction("default", []string{"value", "default_value", "boolean"}, 1, 3, filterDefault),
		NewNamedFunction("d", []string{"value", "default_value", "boolean"}, 1, 3, filterDefault),
		NewNamedFunction("replace", []string{"value", "old", "new", "count"}, 3, 4, filterReplace),
		NewNamedFunction("list", []string{"value"}, 1, 1, func(args ...interface{}) (interface{}, error) {
			items, err := ToSlice(args[0])
			if err != nil {
				return nil, err
			}
			return append([]interface{}{}, items...), nil
		}),
		NewNamedFunction("string", []string{"value"}, 1, 1, func(args ...interface{}) (interface{}, error) {
			return FormatValue(args[0]), nil
		}),
		NewNamedFunction("int", []string{"value", "default"}, 1, 2, filterInt),
		NewNamedFunction("float", []string{"value", "default"}, 1, 2, filterFloat),
		NewNamedFunction("round", []string{"value", "precision", "method"}, 1, 3, filterRound),
		NewNamedFunction("abs", []string{"value"}, 1, 1, func(args ...interface{}) (interface{}, error) {
			if isInteger(args[0]) {
				n, _ := toInt(args[0])
				if n < 0 {
					n = -n
				}
				return n, nil
			}
			f, ok := toFloat64(args[0])
			if !ok {
				return nil, errors.Newf("bad operand type for abs(): '%s'", pyTypeName(args[0]))
			}
			return math.Abs(f), nil
		}),
		NewNamedFunction("sum", []string{"value", "start"}, 1, 2, filterSum),
		NewNamedFunction("min", []string{"value"}, 1, 1, func(args ...interface{}) (interface{}, error) {
			return filterExtreme(args[0], -1)
		}),
		NewNamedFunction("max", []string{"value"}, 1, 1, func(args ...interface{}) (interface{}, error) {
			return filterExtreme(args[0], 1)
		}),
		NewNamedFunction("unique", []string{"value", "case_sensitive"}, 1, 2, filterUnique),
		NewNamedFunction("sort", []string{"value", "reverse", "case_sensitive"}, 1, 3, filterSort),
		NewNamedFunction("reverse", []string{"value"}, 1, 1, filterReverse),
		NewNamedFunction("wordcount", []string{"value"}, 1, 1, func(args ...interface{}) (interface{}, error) {
			return len(strings.Fields(FormatValue(args[0]))), nil
		}),
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + lowerCaser.String(s[size:])
}

// optionalArg returns args[i], or fallback when it is absent or nil.
func optionalArg(args []interface{}, i int, fallback interface{}) interface{} {
	if i < len(args) && args[i] != nil {
		return args[i]
	}
	return fallback
}

func filterTrim(args ...interface{}) (interface{}, error) {
	s := FormatValue(args[0])
	chars := optionalArg(args, 1, nil)
	if chars == nil {
		return strings.TrimSpace(s), nil
	}
	return strings.Trim(s, FormatValue(chars)), nil
}

func filterJoin(args ...interface{}) (interface{}, error) {
	items, err := ToSlice(args[0])
	if err != nil {
		return nil, err
	}
	sep := FormatValue(optionalArg(args, 1, ""))
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = FormatValue(item)
	}
	return strings.Join(parts, sep), nil
}

func filterLength(args ...interface{}) (interface{}, error) {
	switch v := args[0].(type) {
	case Undefined:
		return 0, nil
	case string:
		return utf8.RuneCountInString(v), nil
	}
	rv := reflect.ValueOf(args[0])
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), nil
	}
	return nil, errors.Newf("object of type '%s' has no len()", pyTypeName(args[0]))
}

func filterFirst(args ...interface{}) (interface{}, error) {
	items, err := ToSlice(args[0])
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return Undefined{Name: "first"}, nil
	}
	return items[0], nil
}

func filterLast(args ...interface{}) (interface{}, error) {
	items, err := ToSlice(args[0])
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return Undefined{Name: "last"}, nil
	}
	return items[len(items)-1], nil
}

func filterDefault(args ...interface{}) (interface{}, error) {
	value := args[0]
	fallback := optionalArg(args, 1, "")
	boolean := isTruthy(optionalArg(args, 2, false))

	if _, undefined := value.(Undefined); undefined {
		return fallback, nil
	}
	if boolean && !isTruthy(value) {
		return fallback, nil
	}
	return value, nil
}

func filterReplace(args ...interface{}) (interface{}, error) {
	s := FormatValue(args[0])
	old := FormatValue(args[1])
	replacement := FormatValue(args[2])
	n := -1
	if count := optionalArg(args, 3, nil); count != nil {
		c, ok := toInt(count)
		if !ok {
			return nil, errors.Newf("replace() count must be an integer, got %s", pyTypeName(count))
		}
		n = c
	}
	return strings.Replace(s, old, replacement, n), nil
}

// filterInt converts to int, returning the default when conversion fails
func filterInt(args ...interface{}) (interface{}, error) {
	fallback := optionalArg(args, 1, 0)
	switch v := args[0].(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.Atoi(s); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f), nil
		}
		return fallback, nil
	}
	if isInteger(args[0]) {
		n, _ := toInt(args[0])
		return n, nil
	}
	if f, ok := toFloat64(args[0]); ok {
		return int(f), nil
	}
	return fallback, nil
}

func filterFloat(args ...interface{}) (interface{}, error) {
	fallback := optionalArg(args, 1, 0.0)
	switch v := args[0].(type) {
	case bool:
		if v {
			return 1.0, nil
		}
		return 0.0, nil
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, nil
		}
		return fallback, nil
	}
	if f, ok := toFloat64(args[0]); ok {
		return f, nil
	}
	return fallback, nil
}

// filterRound rounds half to even for "common", or uses ceil/floor
func filterRound(args ...interface{}) (interface{}, error) {
	value, ok := toFloat64(args[0])
	if !ok {
		return nil, errors.Newf("round() requires a number, got %s", pyTypeName(args[0]))
	}
	precision := 0
	if p := optionalArg(args, 1, nil); p != nil {
		precision, ok = toInt(p)
		if !ok {
			return nil, errors.Newf("round() precision must be an integer, got %s", pyTypeName(p))
		}
	}
	method := FormatValue(optionalArg(args, 2, "common"))

	scale := math.Pow(10, float64(precision))
	scaled := value * scale
	switch method {
	case "common":
		scaled = math.RoundToEven(scaled)
	case "ceil":
		scaled = math.Ceil(scaled)
	case "floor":
		scaled = math.Floor(scaled)
	default:
		return nil, errors.Newf("round() method must be 'common', 'ceil' or 'floor', got %q", method)
	}
	return scaled / scale, nil
}

func filterSum(args ...interface{}) (interface{}, error) {
	items, err := ToSlice(args[0])
	if err != nil {
		return nil, err
	}
	var total interface{} = optionalArg(args, 1, 0)
	for _, item := range items {
		total, err = evaluateAddition(total, item)
		if err != nil {
			return nil, err
		}
	}
	return total, nil
}

func filterExtreme(value interface{}, sign int) (interface{}, error) {
	items, err := ToSlice(value)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return Undefined{Name: "min/max"}, nil
	}
	best := items[0]
	for _, item := range items[1:] {
		c, err := orderValues(item, best, false)
		if err != nil {
			return nil, err
		}
		if c*sign > 0 {
			best = item
		}
	}
	return best, nil
}

// orderValues compares numbers or strings for sorting
func orderValues(a, b interface{}, caseSensitive bool) (int, error) {
	if fa, ok := toFloat64(a); ok {
		if fb, ok := toFloat64(b); ok {
			switch {
			case fa < fb:
				return -1, nil
			case fa > fb:
				return 1, nil
			}
			return 0, nil
		}
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		if !caseSensitive {
			sa, sb = strings.ToLower(sa), strings.ToLower(sb)
		}
		return strings.Compare(sa, sb), nil
	}
	return 0, errors.Newf("'<' not supported between instances of '%s' and '%s'", pyTypeName(a), pyTypeName(b))
}

func filterUnique(args ...interface{}) (interface{}, error) {
	items, err := ToSlice(args[0])
	if err != nil {
		return nil, err
	}
	caseSensitive := isTruthy(optionalArg(args, 1, false))

	result := []interface{}{}
	var seen []interface{}
	for _, item := range items {
		key := item
		if s, ok := item.(string); ok && !caseSensitive {
			key = strings.ToLower(s)
		}
		dup := false
		for _, k := range seen {
			if valuesEqual(k, key) {
				dup = true
				break
			}
		}
		if !dup {
			seen = append(seen, key)
			result = append(result, item)
		}
	}
	return result, nil
}

func filterSort(args ...interface{}) (interface{}, error) {
	items, err := ToSlice(args[0])
	if err != nil {
		return nil, err
	}
	reverse := isTruthy(optionalArg(args, 1, false))
	caseSensitive := isTruthy(optionalArg(args, 2, false))

	sorted := append([]interface{}{}, items...)
	var sortErr error
	sort.SliceStable(sorted, func(i, j int) bool {
		c, err := orderValues(sorted[i], sorted[j], caseSensitive)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		if reverse {
			return c > 0
		}
		return c < 0
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return sorted, nil
}

func filterReverse(args ...interface{}) (interface{}, error) {
	if s, ok := args[0].(string); ok {
		runes := []rune(s)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return string(runes), nil
	}
	items, err := ToSlice(args[0])
	if err != nil {
		return nil, err
	}
	reversed := make([]interface{}, len(items))
	for i, item := range items {
		reversed[len(items)-1-i] = item
	}
	return reversed, nil
}

type testFunc func(value interface{}, args ...interface{}) (bool, error)

func needArgs(name string, n int, args []interface{}) error {
	if len(args) != n {
		return errors.Newf("test '%s' takes %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

// builtinTests back `value is name` expressions
var builtinTests = map[string]testFunc{
	"defined": func(v interface{}, args ...interface{}) (bool, error) {
		_, undefined := v.(Undefined)
		return !undefined, nil
	},
	"undefined": func(v interface{}, args ...interface{}) (bool, error) {
		_, undefined := v.(Undefined)
		return undefined, nil
	},
	"none": func(v interface{}, args ...interface{}) (bool, error) {
		return v == nil, nil
	},
	"boolean": func(v interface{}, args ...interface{}) (bool, error) {
		_, ok := v.(bool)
		return ok, nil
	},
	"true": func(v interface{}, args ...interface{}) (bool, error) {
		b, ok := v.(bool)
		return ok && b, nil
	},
	"false": func(v interface{}, args ...interface{}) (bool, error) {
		b, ok := v.(bool)
		return ok && !b, nil
	},
	"number": func(v interface{}, args ...interface{}) (bool, error) {
		return IsNumber(v), nil
	},
	"integer": func(v interface{}, args ...interface{}) (bool, error) {
		return isInteger(v), nil
	},
	"float": func(v interface{}, args ...interface{}) (bool, error) {
		switch v.(type) {
		case float32, float64:
			return true, nil
		}
		return false, nil
	},
	"string": func(v interface{}, args ...interface{}) (bool, error) {
		_, ok := v.(string)
		return ok, nil
	},
	"sequence": func(v interface{}, args ...interface{}) (bool, error) {
		if _, ok := v.(string); ok {
			return true, nil
		}
		_, ok := sequenceItems(v)
		return ok, nil
	},
	"mapping": func(v interface{}, args ...interface{}) (bool, error) {
		return reflect.ValueOf(v).Kind() == reflect.Map, nil
	},
	"iterable": func(v interface{}, args ...interface{}) (bool, error) {
		if _, ok := v.(Undefined); ok {
			return false, nil
		}
		if v == nil {
			return false, nil
		}
		_, err := ToSlice(v)
		return err == nil, nil
	},
	"even": func(v interface{}, args ...interface{}) (bool, error) {
		n, ok := toInt(v)
		return ok && n%2 == 0, nil
	},
	"odd": func(v interface{}, args ...interface{}) (bool, error) {
		n, ok := toInt(v)
		return ok && n%2 != 0, nil
	},
	"divisibleby": func(v interface{}, args ...interface{}) (bool, error) {
		if err := needArgs("divisibleby", 1, args); err != nil {
			return false, err
		}
		n, ok := toInt(v)
		d, dok := toInt(args[0])
		if !ok || !dok || d == 0 {
			return false, nil
		}
		return n%d == 0, nil
	},
	"eq": func(v interface{}, args ...interface{}) (bool, error) {
		if err := needArgs("eq", 1, args); err != nil {
			return false, err
		}
		return valuesEqual(v, args[0]), nil
	},
	"ne": func(v interface{}, args ...interface{}) (bool, error) {
		if err := needArgs("ne", 1, args); err != nil {
			return false, err
		}
		return !valuesEqual(v, args[0]), nil
	},
	"in": func(v interface{}, args ...interface{}) (bool, error) {
		if err := needArgs("in", 1, args); err != nil {
			return false, err
		}
		return containsValue(args[0], v)
	},
	"lower": func(v interface{}, args ...interface{}) (bool, error) {
		s, ok := v.(string)
		return ok && s == strings.ToLower(s), nil
	},
	"upper": func(v interface{}, args ...interface{}) (bool, error) {
		s, ok := v.(string)
		return ok && s == strings.ToUpper(s), nil
	},
}
