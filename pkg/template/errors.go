package template

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// TemplateSyntaxError is returned when a template cannot be parsed.
type TemplateSyntaxError struct {
	Message string
	Line    int
}

func (e *TemplateSyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("template syntax error at line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("template syntax error: %s", e.Message)
}

// NewSyntaxError creates a syntax error for the given line.
func NewSyntaxError(message string, line int) error {
	return &TemplateSyntaxError{Message: message, Line: line}
}

// EvaluationError wraps a failure while evaluating an expression.
type EvaluationError struct {
	Expression string
	Line       int
	Cause      error
}

func (e *EvaluationError) Error() string {
	var prefix string
	if e.Line > 0 {
		prefix = fmt.Sprintf("evaluation error at line %d", e.Line)
	} else {
		prefix = "evaluation error"
	}
	if e.Expression != "" {
		prefix += fmt.Sprintf(" for expression '%s'", e.Expression)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.Cause)
	}
	return prefix
}

func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// UndefinedError is raised when an undefined value is used in a way that
// needs a real value, or on any lookup miss in strict mode.
type UndefinedError struct {
	Name string
}

func (e *UndefinedError) Error() string {
	return fmt.Sprintf("'%s' is undefined", e.Name)
}

// FunctionError represents an error in a template function call
type FunctionError struct {
	Function string
	Args     []interface{}
	Message  string
	Cause    error
}

func (e *FunctionError) Error() string {
	argsStr := make([]string, len(e.Args))
	for i, arg := range e.Args {
		argsStr[i] = Repr(arg)
	}
	return fmt.Sprintf("function error in '%s(%s)': %s", e.Function, strings.Join(argsStr, ", "), e.Message)
}

func (e *FunctionError) Unwrap() error {
	return e.Cause
}

// RecoverError converts a panic recovery value to an error
func RecoverError(r interface{}) error {
	switch v := r.(type) {
	case error:
		return errors.Wrap(v, "panic recovered")
	case string:
		return errors.Newf("panic recovered: %s", v)
	default:
		return errors.Newf("panic recovered: %v", v)
	}
}

func IsSyntaxError(err error) bool {
	var target *TemplateSyntaxError
	return errors.As(err, &target)
}

func IsEvaluationError(err error) bool {
	var target *EvaluationError
	return errors.As(err, &target)
}

func IsFunctionError(err error) bool {
	var target *FunctionError
	return errors.As(err, &target)
}

func IsUndefinedError(err error) bool {
	var target *UndefinedError
	return errors.As(err, &target)
}
