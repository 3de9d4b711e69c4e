package template

import (
	"math"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
)

// TemplateData is the set of variables a template is rendered with.
type TemplateData map[string]interface{}

// Tuple is an immutable sequence value; it renders as ('a', 'b').
type Tuple []interface{}

// Undefined is the value of a name that could not be resolved. It renders
// as an empty string, is falsy and iterates as an empty sequence.
type Undefined struct {
	Name string
}

func (u Undefined) String() string {
	return ""
}

// Context is the variable scope of one render.
type Context struct {
	env  *Environment
	vars map[string]interface{}
}

func newContext(env *Environment, data TemplateData) *Context {
	vars := make(map[string]interface{}, len(data))
	for k, v := range data {
		vars[k] = v
	}
	return &Context{env: env, vars: vars}
}

// child returns a scope that sees every variable of c; assignments in
// the child do not leak back.
func (c *Context) child() *Context {
	vars := make(map[string]interface{}, len(c.vars)+2)
	for k, v := range c.vars {
		vars[k] = v
	}
	return &Context{env: c.env, vars: vars}
}

// Environment returns the environment the context renders for.
func (c *Context) Environment() *Environment {
	return c.env
}

// Set assigns a variable in the current scope.
func (c *Context) Set(name string, value interface{}) {
	c.vars[name] = value
}

func (c *Context) lookup(name string) (interface{}, bool) {
	if v, ok := c.vars[name]; ok {
		return v, true
	}
	if c.env != nil {
		if v, ok := c.env.global(name); ok {
			return v, true
		}
		if fn, ok := c.env.lookupFunction(name); ok {
			return fn, true
		}
	}
	return nil, false
}

// Resolve looks a name up in the scope, then the environment globals. A
// miss yields Undefined, or an UndefinedError in strict mode.
func (c *Context) Resolve(name string) (interface{}, error) {
	if v, ok := c.lookup(name); ok {
		return v, nil
	}
	if c.env != nil && c.env.strict {
		return nil, &UndefinedError{Name: name}
	}
	return Undefined{Name: name}, nil
}

func (c *Context) lookupFunction(name string) (Function, bool) {
	if v, ok := c.vars[name]; ok {
		fn, isFn := v.(Function)
		return fn, isFn
	}
	if c.env == nil {
		return nil, false
	}
	return c.env.lookupFunction(name)
}

func (c *Context) undefined(name string) (interface{}, error) {
	if c != nil && c.env != nil && c.env.strict {
		return nil, &UndefinedError{Name: name}
	}
	return Undefined{Name: name}, nil
}

// getAttribute implements obj.field
func getAttribute(ctx *Context, obj interface{}, field string) (interface{}, error) {
	if u, ok := obj.(Undefined); ok {
		return nil, &UndefinedError{Name: u.Name}
	}
	if v, ok := accessMapField(obj, field); ok {
		return v, nil
	}
	return ctx.undefined(field)
}

// getItem implements obj[key]
func getItem(ctx *Context, obj interface{}, key interface{}) (interface{}, error) {
	if u, ok := obj.(Undefined); ok {
		return nil, &UndefinedError{Name: u.Name}
	}

	switch k := key.(type) {
	case string:
		if v, ok := accessMapField(obj, k); ok {
			return v, nil
		}
		return ctx.undefined(k)
	case bool:
		return ctx.undefined(Repr(key))
	}

	if idx, ok := toInt(key); ok {
		if v, ok := accessArrayIndex(obj, idx); ok {
			return v, nil
		}
		return ctx.undefined(Repr(key))
	}

	return nil, errors.Newf("invalid index type: %s", pyTypeName(key))
}

// accessMapField accesses a field in a map-like structure
func accessMapField(current interface{}, field string) (interface{}, bool) {
	switch v := current.(type) {
	case TemplateData:
		val, ok := v[field]
		return val, ok
	case map[string]interface{}:
		val, ok := v[field]
		return val, ok
	case map[string]string:
		val, ok := v[field]
		return val, ok
	case map[string][]string:
		val, ok := v[field]
		return val, ok
	case map[string]int:
		val, ok := v[field]
		return val, ok
	case map[string]float64:
		val, ok := v[field]
		return val, ok
	case map[string]bool:
		val, ok := v[field]
		return val, ok
	default:
		return nil, false
	}
}

// accessArrayIndex accesses a sequence element; negative indices count
// from the end.
func accessArrayIndex(current interface{}, index int) (interface{}, bool) {
	if s, ok := current.(string); ok {
		runes := []rune(s)
		if index < 0 {
			index += len(runes)
		}
		if index >= 0 && index < len(runes) {
			return string(runes[index]), true
		}
		return nil, false
	}

	items, ok := sequenceItems(current)
	if !ok {
		return nil, false
	}
	if index < 0 {
		index += len(items)
	}
	if index >= 0 && index < len(items) {
		return items[index], true
	}
	return nil, false
}

// sequenceItems views lists and tuples as []interface{}.
func sequenceItems(val interface{}) ([]interface{}, bool) {
	switch v := val.(type) {
	case []interface{}:
		return v, true
	case Tuple:
		return v, true
	case []string, []int, []float64, []bool, []map[string]interface{}:
		items, _ := ToSlice(v)
		return items, true
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		items, _ := ToSlice(val)
		return items, true
	}
	return nil, false
}

func sliceValue(obj interface{}, start, stop *int) (interface{}, error) {
	bounds := func(n int) (int, int) {
		lo, hi := 0, n
		if start != nil {
			lo = clampIndex(*start, n)
		}
		if stop != nil {
			hi = clampIndex(*stop, n)
		}
		if hi < lo {
			hi = lo
		}
		return lo, hi
	}

	switch v := obj.(type) {
	case Undefined:
		return nil, &UndefinedError{Name: v.Name}
	case string:
		runes := []rune(v)
		lo, hi := bounds(len(runes))
		return string(runes[lo:hi]), nil
	case Tuple:
		lo, hi := bounds(len(v))
		return append(Tuple{}, v[lo:hi]...), nil
	}

	items, ok := sequenceItems(obj)
	if !ok {
		return nil, errors.Newf("'%s' object is not subscriptable", pyTypeName(obj))
	}
	lo, hi := bounds(len(items))
	return append([]interface{}{}, items[lo:hi]...), nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// EvaluateBinaryOperation evaluates a binary operation between two values
func EvaluateBinaryOperation(left interface{}, operator string, right interface{}) (interface{}, error) {
	if operator == "~" {
		return FormatValue(left) + FormatValue(right), nil
	}
	if u, ok := left.(Undefined); ok {
		return nil, &UndefinedError{Name: u.Name}
	}
	if u, ok := right.(Undefined); ok {
		return nil, &UndefinedError{Name: u.Name}
	}

	switch operator {
	case "+":
		return evaluateAddition(left, right)
	case "-":
		return evaluateSubtraction(left, right)
	case "*":
		return evaluateMultiplication(left, right)
	case "/":
		return evaluateDivision(left, right)
	case "//":
		return evaluateFloorDivision(left, right)
	case "%":
		return evaluateModulo(left, right)
	case "**":
		return evaluatePower(left, right)
	default:
		return nil, errors.Newf("unknown binary operator: %s", operator)
	}
}

func unsupported(op string, left, right interface{}) error {
	return errors.Newf("unsupported operand type(s) for %s: '%s' and '%s'", op, pyTypeName(left), pyTypeName(right))
}

func evaluateAddition(left, right interface{}) (interface{}, error) {
	leftNum, leftOk := toFloat64(left)
	rightNum, rightOk := toFloat64(right)
	if leftOk && rightOk {
		if isInteger(left) && isInteger(right) {
			l, _ := toInt(left)
			r, _ := toInt(right)
			return l + r, nil
		}
		return leftNum + rightNum, nil
	}

	// string concatenation stays lenient about the other operand
	if leftStr, ok := left.(string); ok {
		return leftStr + FormatValue(right), nil
	}
	if rightStr, ok := right.(string); ok {
		return FormatValue(left) + rightStr, nil
	}

	if l, ok := left.(Tuple); ok {
		if r, ok := right.(Tuple); ok {
			return append(append(Tuple{}, l...), r...), nil
		}
	}
	if l, ok := left.([]interface{}); ok {
		if r, ok := sequenceItems(right); ok {
			if _, isTuple := right.(Tuple); !isTuple {
				return append(append([]interface{}{}, l...), r...), nil
			}
		}
	}

	return nil, unsupported("+", left, right)
}

func evaluateSubtraction(left, right interface{}) (interface{}, error) {
	leftNum, leftOk := toFloat64(left)
	rightNum, rightOk := toFloat64(right)
	if !leftOk || !rightOk {
		return nil, unsupported("-", left, right)
	}

	if isInteger(left) && isInteger(right) {
		l, _ := toInt(left)
		r, _ := toInt(right)
		return l - r, nil
	}
	return leftNum - rightNum, nil
}

func evaluateMultiplication(left, right interface{}) (interface{}, error) {
	leftNum, leftOk := toFloat64(left)
	rightNum, rightOk := toFloat64(right)
	if leftOk && rightOk {
		if isInteger(left) && isInteger(right) {
			l, _ := toInt(left)
			r, _ := toInt(right)
			return l * r, nil
		}
		return leftNum * rightNum, nil
	}

	// sequence repetition
	seq, count := left, right
	if isInteger(left) {
		seq, count = right, left
	}
	n, ok := toInt(count)
	if !ok || !isInteger(count) {
		return nil, unsupported("*", left, right)
	}
	if n < 0 {
		n = 0
	}
	switch s := seq.(type) {
	case string:
		return strings.Repeat(s, n), nil
	case Tuple:
		out := Tuple{}
		for i := 0; i < n; i++ {
			out = append(out, s...)
		}
		return out, nil
	}
	if items, ok := sequenceItems(seq); ok {
		out := []interface{}{}
		for i := 0; i < n; i++ {
			out = append(out, items...)
		}
		return out, nil
	}
	return nil, unsupported("*", left, right)
}

// evaluateDivision always yields a float
func evaluateDivision(left, right interface{}) (interface{}, error) {
	leftNum, leftOk := toFloat64(left)
	rightNum, rightOk := toFloat64(right)
	if !leftOk || !rightOk {
		return nil, unsupported("/", left, right)
	}
	if rightNum == 0 {
		return nil, errors.New("division by zero")
	}
	return leftNum / rightNum, nil
}

func evaluateFloorDivision(left, right interface{}) (interface{}, error) {
	leftNum, leftOk := toFloat64(left)
	rightNum, rightOk := toFloat64(right)
	if !leftOk || !rightOk {
		return nil, unsupported("//", left, right)
	}
	if rightNum == 0 {
		return nil, errors.New("integer division or modulo by zero")
	}
	if isInteger(left) && isInteger(right) {
		l, _ := toInt(left)
		r, _ := toInt(right)
		q := l / r
		if (l%r != 0) && ((l < 0) != (r < 0)) {
			q--
		}
		return q, nil
	}
	return math.Floor(leftNum / rightNum), nil
}

// evaluateModulo follows the sign of the divisor
func evaluateModulo(left, right interface{}) (interface{}, error) {
	leftNum, leftOk := toFloat64(left)
	rightNum, rightOk := toFloat64(right)
	if !leftOk || !rightOk {
		return nil, unsupported("%", left, right)
	}
	if rightNum == 0 {
		return nil, errors.New("integer division or modulo by zero")
	}
	if isInteger(left) && isInteger(right) {
		l, _ := toInt(left)
		r, _ := toInt(right)
		m := l % r
		if m != 0 && ((m < 0) != (r < 0)) {
			m += r
		}
		return m, nil
	}
	m := math.Mod(leftNum, rightNum)
	if m != 0 && ((m < 0) != (rightNum < 0)) {
		m += rightNum
	}
	return m, nil
}

func evaluatePower(left, right interface{}) (interface{}, error) {
	leftNum, leftOk := toFloat64(left)
	rightNum, rightOk := toFloat64(right)
	if !leftOk || !rightOk {
		return nil, unsupported("**", left, right)
	}
	if isInteger(left) && isInteger(right) {
		base, _ := toInt(left)
		exp, _ := toInt(right)
		if exp >= 0 {
			result := 1
			for i := 0; i < exp; i++ {
				result *= base
			}
			return result, nil
		}
	}
	return math.Pow(leftNum, rightNum), nil
}

// compareValues evaluates a single comparison operator
func compareValues(left interface{}, operator string, right interface{}) (bool, error) {
	switch operator {
	case "==":
		return valuesEqual(left, right), nil
	case "!=":
		return !valuesEqual(left, right), nil
	case "in":
		return containsValue(right, left)
	case "not in":
		ok, err := containsValue(right, left)
		return !ok, err
	}

	if u, ok := left.(Undefined); ok {
		return false, &UndefinedError{Name: u.Name}
	}
	if u, ok := right.(Undefined); ok {
		return false, &UndefinedError{Name: u.Name}
	}

	var cmp int
	leftNum, leftOk := toFloat64(left)
	rightNum, rightOk := toFloat64(right)
	leftStr, leftIsStr := left.(string)
	rightStr, rightIsStr := right.(string)
	switch {
	case leftOk && rightOk:
		switch {
		case leftNum < rightNum:
			cmp = -1
		case leftNum > rightNum:
			cmp = 1
		}
	case leftIsStr && rightIsStr:
		cmp = strings.Compare(leftStr, rightStr)
	default:
		return false, errors.Newf("'%s' not supported between instances of '%s' and '%s'", operator, pyTypeName(left), pyTypeName(right))
	}

	switch operator {
	case "<":
		return cmp < 0, nil
	case ">":
		return cmp > 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">=":
		return cmp >= 0, nil
	default:
		return false, errors.Newf("unknown comparison operator: %s", operator)
	}
}

func valuesEqual(left, right interface{}) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}

	if _, ok := left.(Undefined); ok {
		_, rightUndefined := right.(Undefined)
		return rightUndefined
	}

	if _, lb := left.(bool); lb {
		rb, ok := right.(bool)
		return ok && left.(bool) == rb
	}

	if leftNum, leftOk := toFloat64(left); leftOk {
		rightNum, rightOk := toFloat64(right)
		return rightOk && leftNum == rightNum
	}

	if leftStr, ok := left.(string); ok {
		rightStr, ok := right.(string)
		return ok && leftStr == rightStr
	}

	_, leftTuple := left.(Tuple)
	_, rightTuple := right.(Tuple)
	if leftItems, ok := sequenceItems(left); ok {
		rightItems, ok := sequenceItems(right)
		if !ok || leftTuple != rightTuple || len(leftItems) != len(rightItems) {
			return false
		}
		for i := range leftItems {
			if !valuesEqual(leftItems[i], rightItems[i]) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(left, right)
}

// containsValue implements `needle in container`
func containsValue(container, needle interface{}) (bool, error) {
	switch c := container.(type) {
	case Undefined:
		return false, nil
	case string:
		s, ok := needle.(string)
		if !ok {
			return false, errors.Newf("'in <string>' requires string as left operand, not %s", pyTypeName(needle))
		}
		return strings.Contains(c, s), nil
	}

	if key, ok := needle.(string); ok {
		if _, found := accessMapField(container, key); found {
			return true, nil
		}
	}
	switch container.(type) {
	case TemplateData, map[string]interface{}, map[string]string, map[string][]string,
		map[string]int, map[string]float64, map[string]bool:
		return false, nil
	}

	items, ok := sequenceItems(container)
	if !ok {
		return false, errors.Newf("argument of type '%s' is not iterable", pyTypeName(container))
	}
	for _, item := range items {
		if valuesEqual(item, needle) {
			return true, nil
		}
	}
	return false, nil
}

// Utility functions for type conversion and checks
func toFloat64(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func toInt(val interface{}) (int, bool) {
	switch v := val.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	case float32:
		if v == float32(int(v)) {
			return int(v), true
		}
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

// ToInt converts an integral number to int.
func ToInt(val interface{}) (int, bool) {
	return toInt(val)
}

// ToFloat64 converts any number to float64.
func ToFloat64(val interface{}) (float64, bool) {
	return toFloat64(val)
}

func isInteger(val interface{}) bool {
	switch val.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

// IsNumber reports whether val is an int or float of any width.
func IsNumber(val interface{}) bool {
	_, ok := toFloat64(val)
	return ok
}

func isTruthy(val interface{}) bool {
	if val == nil {
		return false
	}

	switch v := val.(type) {
	case Undefined:
		return false
	case bool:
		return v
	case int, int8, int16, int32, int64:
		n, _ := toInt(v)
		return n != 0
	case uint, uint8, uint16, uint32, uint64:
		n, _ := toInt(v)
		return n != 0
	case float32:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	case []interface{}:
		return len(v) > 0
	case Tuple:
		return len(v) > 0
	case TemplateData:
		return len(v) > 0
	case map[string]interface{}:
		return len(v) > 0
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	}
	return true // Non-nil objects are truthy
}

// IsTruthy reports whether a value counts as true in a condition.
func IsTruthy(val interface{}) bool {
	return isTruthy(val)
}

func evaluateUnaryMinus(operand interface{}) (interface{}, error) {
	if u, ok := operand.(Undefined); ok {
		return nil, &UndefinedError{Name: u.Name}
	}
	if isInteger(operand) {
		n, _ := toInt(operand)
		return -n, nil
	}
	num, ok := toFloat64(operand)
	if !ok {
		return nil, errors.Newf("bad operand type for unary -: '%s'", pyTypeName(operand))
	}
	return -num, nil
}

func evaluateUnaryPlus(operand interface{}) (interface{}, error) {
	if u, ok := operand.(Undefined); ok {
		return nil, &UndefinedError{Name: u.Name}
	}
	if isInteger(operand) {
		n, _ := toInt(operand)
		return n, nil
	}
	num, ok := toFloat64(operand)
	if !ok {
		return nil, errors.Newf("bad operand type for unary +: '%s'", pyTypeName(operand))
	}
	return num, nil
}
