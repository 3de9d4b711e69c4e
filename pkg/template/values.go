package template

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// FormatValue converts a value to the text it renders as inside {{ }}.
// Scalars render as plain text; containers render their items with
// repr quoting: ['a', 'b'], ('a',), {'k': 1}.
func FormatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "None"
	case Undefined:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "True"
		}
		return "False"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return formatFloat(float64(v), 32)
	case float64:
		return formatFloat(v, 64)
	case Function:
		return fmt.Sprintf("<function %s>", v.Name())
	default:
		return Repr(value)
	}
}

// Repr renders a value the way it appears inside a container.
func Repr(value interface{}) string {
	switch v := value.(type) {
	case string:
		return quoteString(v)
	case Undefined:
		return ""
	case Tuple:
		if len(v) == 1 {
			return "(" + Repr(v[0]) + ",)"
		}
		return "(" + joinRepr(v) + ")"
	case []interface{}:
		return "[" + joinRepr(v) + "]"
	case TemplateData:
		return reprMap(map[string]interface{}(v))
	case map[string]interface{}:
		return reprMap(v)
	case nil, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, Function:
		return FormatValue(value)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items, _ := ToSlice(value)
		return "[" + joinRepr(items) + "]"
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			m := make(map[string]interface{}, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				m[iter.Key().String()] = iter.Value().Interface()
			}
			return reprMap(m)
		}
	}
	return fmt.Sprintf("%v", value)
}

func joinRepr(items []interface{}) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = Repr(item)
	}
	return strings.Join(parts, ", ")
}

func reprMap(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = quoteString(k) + ": " + Repr(m[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// quoteString prefers single quotes, switching to double quotes when the
// string contains a single quote and no double quote.
func quoteString(s string) string {
	quote := byte('\'')
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		quote = '"'
	}

	var b strings.Builder
	b.WriteByte(quote)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r == rune(quote) {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte(quote)
	return b.String()
}

// formatFloat prints the shortest round-trip form, fixed notation for
// magnitudes in [1e-4, 1e16) with at least one decimal, exponent otherwise.
func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case f == 0:
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}

	abs := math.Abs(f)
	if abs >= 1e16 || abs < 1e-4 {
		return strconv.FormatFloat(f, 'e', -1, bits)
	}
	s := strconv.FormatFloat(f, 'f', -1, bits)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// ToSlice converts sequences and mappings to []interface{} for iteration.
// Mappings iterate over their sorted keys and strings over their characters.
func ToSlice(val interface{}) ([]interface{}, error) {
	switch v := val.(type) {
	case nil, Undefined:
		return []interface{}{}, nil
	case []interface{}:
		return v, nil
	case Tuple:
		return []interface{}(v), nil
	case []string:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = item
		}
		return result, nil
	case []int:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = item
		}
		return result, nil
	case []float64:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = item
		}
		return result, nil
	case []bool:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = item
		}
		return result, nil
	case []map[string]interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = item
		}
		return result, nil
	case TemplateData:
		return sortedKeys(map[string]interface{}(v)), nil
	case map[string]interface{}:
		return sortedKeys(v), nil
	case string:
		result := make([]interface{}, 0, len(v))
		for _, char := range v {
			result = append(result, string(char))
		}
		return result, nil
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		result := make([]interface{}, rv.Len())
		for i := range result {
			result[i] = rv.Index(i).Interface()
		}
		return result, nil
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			keys := make([]string, 0, rv.Len())
			for _, k := range rv.MapKeys() {
				keys = append(keys, k.String())
			}
			sort.Strings(keys)
			result := make([]interface{}, len(keys))
			for i, k := range keys {
				result[i] = k
			}
			return result, nil
		}
	}

	return nil, errors.Newf("'%s' object is not iterable", pyTypeName(val))
}

func sortedKeys(m map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := make([]interface{}, len(keys))
	for i, k := range keys {
		result[i] = k
	}
	return result
}

// pyTypeName names a value's type in error messages.
func pyTypeName(val interface{}) string {
	switch val.(type) {
	case nil:
		return "NoneType"
	case Undefined:
		return "Undefined"
	case bool:
		return "bool"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "int"
	case float32, float64:
		return "float"
	case string:
		return "str"
	case Tuple:
		return "tuple"
	case Function:
		return "function"
	}
	switch reflect.ValueOf(val).Kind() {
	case reflect.Slice, reflect.Array:
		return "list"
	case reflect.Map:
		return "dict"
	}
	return fmt.Sprintf("%T", val)
}
