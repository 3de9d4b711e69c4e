package generator

import (
	"github.com/cockroachdb/errors"
)

// Sentinels for errors.Is. A *GeneratorError carries one of the first two;
// the others mark the underlying cause.
var (
	ErrTemplateSyntax  = errors.New("template syntax error")
	ErrEvaluation      = errors.New("template evaluation error")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrWildcardCycle   = errors.New("wildcard cycle detected")
	ErrWildcardDepth   = errors.New("wildcard nesting too deep")
)

// GeneratorError is the single error type returned by a generator call.
// Message is the message of the underlying error.
type GeneratorError struct {
	Message string
	Cause   error
}

func (e *GeneratorError) Error() string {
	return e.Message
}

func (e *GeneratorError) Unwrap() error {
	return e.Cause
}

func newGeneratorError(cause error, kind error) *GeneratorError {
	return &GeneratorError{
		Message: cause.Error(),
		Cause:   errors.Mark(cause, kind),
	}
}

// IsGeneratorError reports whether err is or wraps a *GeneratorError.
func IsGeneratorError(err error) bool {
	var target *GeneratorError
	return errors.As(err, &target)
}

func invalidArgument(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidArgument)
}
