package template

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// Function represents a callable function in templates
type Function interface {
	// Call executes the function with the given arguments
	Call(args ...interface{}) (interface{}, error)

	// Name returns the function name
	Name() string

	// MinArgs returns the minimum number of arguments required
	MinArgs() int

	// MaxArgs returns the maximum number of arguments allowed (-1 for unlimited)
	MaxArgs() int
}

// NamedParams is implemented by functions that accept keyword arguments.
// ParamNames lists the positional parameter names in order.
type NamedParams interface {
	ParamNames() []string
}

// FunctionRegistry manages available functions
type FunctionRegistry interface {
	RegisterFunction(fn Function) error
	GetFunction(name string) (Function, bool)
	ListFunctions() []string
}

// FunctionProvider supplies a set of related functions at once.
type FunctionProvider interface {
	// ProvideFunctions returns a map of function name to Function implementation
	ProvideFunctions() map[string]Function
}

// DefaultFunctionRegistry is the default implementation of FunctionRegistry
type DefaultFunctionRegistry struct {
	functions map[string]Function
	mutex     sync.RWMutex
}

// NewFunctionRegistry creates a new function registry
func NewFunctionRegistry() *DefaultFunctionRegistry {
	return &DefaultFunctionRegistry{
		functions: make(map[string]Function),
	}
}

func (r *DefaultFunctionRegistry) RegisterFunction(fn Function) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	name := fn.Name()
	if name == "" {
		return errors.New("function name cannot be empty")
	}

	r.functions[name] = fn
	return nil
}

func (r *DefaultFunctionRegistry) GetFunction(name string) (Function, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	fn, exists := r.functions[name]
	return fn, exists
}

// ListFunctions returns the registered names in sorted order.
func (r *DefaultFunctionRegistry) ListFunctions() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SimpleFunctionImpl provides a basic implementation of Function
type SimpleFunctionImpl struct {
	name    string
	minArgs int
	maxArgs int
	params  []string
	handler func(args ...interface{}) (interface{}, error)
}

func NewSimpleFunction(name string, minArgs, maxArgs int, handler func(args ...interface{}) (interface{}, error)) Function {
	return &SimpleFunctionImpl{
		name:    name,
		minArgs: minArgs,
		maxArgs: maxArgs,
		handler: handler,
	}
}

// NewNamedFunction is NewSimpleFunction with parameter names, so callers
// may pass arguments by keyword.
func NewNamedFunction(name string, params []string, minArgs, maxArgs int, handler func(args ...interface{}) (interface{}, error)) Function {
	return &SimpleFunctionImpl{
		name:    name,
		minArgs: minArgs,
		maxArgs: maxArgs,
		params:  params,
		handler: handler,
	}
}

func (f *SimpleFunctionImpl) Call(args ...interface{}) (interface{}, error) {
	argCount := len(args)
	if argCount < f.minArgs {
		return nil, errors.Newf("function %s requires at least %d arguments, got %d", f.name, f.minArgs, argCount)
	}
	if f.maxArgs >= 0 && argCount > f.maxArgs {
		return nil, errors.Newf("function %s accepts at most %d arguments, got %d", f.name, f.maxArgs, argCount)
	}

	return f.handler(args...)
}

func (f *SimpleFunctionImpl) Name() string {
	return f.name
}

func (f *SimpleFunctionImpl) MinArgs() int {
	return f.minArgs
}

func (f *SimpleFunctionImpl) MaxArgs() int {
	return f.maxArgs
}

func (f *SimpleFunctionImpl) ParamNames() []string {
	return f.params
}

// missingArg marks a positional slot no argument was given for.
type missingArg struct{}

// invokeFunction binds keyword arguments to positions and calls fn.
// Optional parameters skipped over by a keyword argument are passed as nil.
// Errors are reported as *FunctionError wrapping the cause.
func invokeFunction(fn Function, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	full := args
	if len(kwargs) > 0 {
		var err error
		full, err = bindKeywords(fn, args, kwargs)
		if err != nil {
			return nil, &FunctionError{Function: fn.Name(), Args: args, Message: err.Error(), Cause: err}
		}
	}

	result, err := fn.Call(full...)
	if err != nil {
		var fnErr *FunctionError
		if errors.As(err, &fnErr) && fnErr.Function == fn.Name() {
			return nil, err
		}
		return nil, &FunctionError{Function: fn.Name(), Args: full, Message: err.Error(), Cause: err}
	}
	return result, nil
}

func bindKeywords(fn Function, args []interface{}, kwargs map[string]interface{}) ([]interface{}, error) {
	var params []string
	if named, ok := fn.(NamedParams); ok {
		params = named.ParamNames()
	}

	full := append([]interface{}{}, args...)
	names := make([]string, 0, len(kwargs))
	for name := range kwargs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		idx := -1
		for i, p := range params {
			if p == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, errors.Newf("%s() got an unexpected keyword argument '%s'", fn.Name(), name)
		}
		if idx < len(args) {
			return nil, errors.Newf("%s() got multiple values for argument '%s'", fn.Name(), name)
		}
		for len(full) <= idx {
			full = append(full, missingArg{})
		}
		full[idx] = kwargs[name]
	}

	for i, v := range full {
		if _, missing := v.(missingArg); missing {
			if i < fn.MinArgs() {
				return nil, errors.Newf("%s() missing argument '%s'", fn.Name(), params[i])
			}
			full[i] = nil
		}
	}
	return full, nil
}

// createRange implements range([start,] stop[, step])
func createRange(args ...interface{}) (interface{}, error) {
	ints := make([]int, len(args))
	for i, arg := range args {
		n, ok := toInt(arg)
		if !ok || !isInteger(arg) {
			return nil, errors.Newf("range() arguments must be integers, got %s", pyTypeName(arg))
		}
		ints[i] = n
	}

	switch len(ints) {
	case 1:
		return rangeNumbers(0, ints[0], 1)
	case 2:
		return rangeNumbers(ints[0], ints[1], 1)
	case 3:
		return rangeNumbers(ints[0], ints[1], ints[2])
	default:
		return nil, errors.Newf("range() requires 1-3 arguments, got %d", len(args))
	}
}

// maxRangeSize caps the length of a range() result
const maxRangeSize = 100000

// rangeNumbers generates a slice of integers from start to end (exclusive) with given step
func rangeNumbers(start, end, step int) ([]interface{}, error) {
	if step == 0 {
		return nil, errors.New("range() step cannot be zero")
	}

	result := []interface{}{}
	if step > 0 {
		for i := start; i < end; i += step {
			if len(result) >= maxRangeSize {
				return nil, errors.Newf("range() result exceeds %d items", maxRangeSize)
			}
			result = append(result, i)
		}
	} else {
		for i := start; i > end; i += step {
			if len(result) >= maxRangeSize {
				return nil, errors.Newf("range() result exceeds %d items", maxRangeSize)
			}
			result = append(result, i)
		}
	}

	return result, nil
}

// builtinFunctions are registered on every new Environment.
func builtinFunctions() []Function {
	return []Function{
		NewSimpleFunction("range", 1, 3, createRange),
	}
}
