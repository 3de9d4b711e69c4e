package template

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/benjaminschreck/go-dynprompts/internal/logging"
)

// BlockTag is a custom paired statement, {% name %}...{% endname %}. The
// body between the tags is rendered and passed to Render; its result is
// what the block outputs.
type BlockTag struct {
	Name string
	// EndName defaults to "end" + Name.
	EndName string
	Render  func(body string) (string, error)
}

func (b BlockTag) endName() string {
	if b.EndName != "" {
		return b.EndName
	}
	return "end" + b.Name
}

// Environment holds the functions, filters, globals and block tags that
// templates are parsed and rendered against.
type Environment struct {
	functions *DefaultFunctionRegistry
	filters   *DefaultFunctionRegistry

	mu      sync.RWMutex
	blocks  map[string]BlockTag
	globals map[string]interface{}

	cache  *TemplateCache
	strict bool
}

// Option configures an Environment.
type Option func(*Environment)

// WithCache shares a parse cache with the environment.
func WithCache(cache *TemplateCache) Option {
	return func(e *Environment) {
		e.cache = cache
	}
}

// WithStrictUndefined makes every lookup miss an evaluation error.
func WithStrictUndefined(strict bool) Option {
	return func(e *Environment) {
		e.strict = strict
	}
}

// WithGlobals adds variables visible to every render.
func WithGlobals(globals map[string]interface{}) Option {
	return func(e *Environment) {
		for k, v := range globals {
			e.globals[k] = v
		}
	}
}

// WithFunctionProvider registers every function of the provider.
func WithFunctionProvider(provider FunctionProvider) Option {
	return func(e *Environment) {
		for _, fn := range provider.ProvideFunctions() {
			_ = e.functions.RegisterFunction(fn)
		}
	}
}

// NewEnvironment creates an environment with the builtin functions and filters.
func NewEnvironment(opts ...Option) *Environment {
	env := &Environment{
		functions: NewFunctionRegistry(),
		filters:   NewFunctionRegistry(),
		blocks:    make(map[string]BlockTag),
		globals:   make(map[string]interface{}),
	}
	for _, fn := range builtinFunctions() {
		_ = env.functions.RegisterFunction(fn)
	}
	for _, fn := range builtinFilters() {
		_ = env.filters.RegisterFunction(fn)
	}
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// RegisterFunction adds a global function callable as name(args).
func (e *Environment) RegisterFunction(fn Function) error {
	return e.functions.RegisterFunction(fn)
}

// RegisterFilter adds a filter usable as value | name(args).
func (e *Environment) RegisterFilter(fn Function) error {
	return e.filters.RegisterFunction(fn)
}

// RegisterFunctionsFromProvider registers all functions from a provider.
func (e *Environment) RegisterFunctionsFromProvider(provider FunctionProvider) error {
	for name, fn := range provider.ProvideFunctions() {
		if err := e.functions.RegisterFunction(fn); err != nil {
			return errors.Wrapf(err, "failed to register function %s", name)
		}
	}
	return nil
}

// RegisterBlock adds a custom block tag.
func (e *Environment) RegisterBlock(tag BlockTag) error {
	if tag.Name == "" {
		return errors.New("block tag name cannot be empty")
	}
	if _, builtin := statementTypes[tag.Name]; builtin {
		return errors.Newf("block tag '%s' conflicts with a builtin statement", tag.Name)
	}
	if tag.Render == nil {
		return errors.Newf("block tag '%s' has no render function", tag.Name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blocks[tag.Name] = tag
	return nil
}

// SetGlobal sets a variable visible to every render.
func (e *Environment) SetGlobal(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.globals[name] = value
}

// Functions lists the registered global function names.
func (e *Environment) Functions() []string {
	return e.functions.ListFunctions()
}

// Filters lists the registered filter names.
func (e *Environment) Filters() []string {
	return e.filters.ListFunctions()
}

// IsStrict reports whether undefined names are errors.
func (e *Environment) IsStrict() bool {
	return e.strict
}

func (e *Environment) lookupFunction(name string) (Function, bool) {
	return e.functions.GetFunction(name)
}

func (e *Environment) lookupFilter(name string) (Function, bool) {
	return e.filters.GetFunction(name)
}

func (e *Environment) lookupBlock(name string) (BlockTag, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tag, ok := e.blocks[name]
	return tag, ok
}

func (e *Environment) global(name string) (interface{}, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.globals[name]
	return v, ok
}

// Parse compiles template source. When the environment has a cache,
// parsed templates are reused by source text.
func (e *Environment) Parse(source string) (*Template, error) {
	if e.cache != nil {
		if tmpl, ok := e.cache.Get(source); ok {
			return tmpl, nil
		}
	}

	logger := logging.GetLogger()
	if logger.IsDebugMode() {
		logger.WithField("source_length", len(source)).Debug("Parsing template")
	}

	nodes, err := parseWithEnvironment(source, e)
	if err != nil {
		return nil, err
	}

	tmpl := &Template{source: source, nodes: nodes}
	if e.cache != nil {
		e.cache.Set(source, tmpl)
	}
	return tmpl, nil
}

// Render evaluates a parsed template. A panic during evaluation is
// returned as an evaluation error.
func (e *Environment) Render(tmpl *Template, data TemplateData) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = ""
			err = &EvaluationError{Cause: RecoverError(r)}
		}
	}()

	ctx := newContext(e, data)
	return renderControlBody(tmpl.nodes, ctx)
}

// RenderString parses and renders source in one step.
func (e *Environment) RenderString(source string, data TemplateData) (string, error) {
	tmpl, err := e.Parse(source)
	if err != nil {
		return "", err
	}
	return e.Render(tmpl, data)
}
