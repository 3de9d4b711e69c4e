package generator

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"

	"github.com/cockroachdb/errors"

	"github.com/benjaminschreck/go-dynprompts/pkg/template"
	"github.com/benjaminschreck/go-dynprompts/pkg/wildcard"
)

// Primitives are the functions templates can call. They are bound to one
// Environment and share its random source.
type Primitives interface {
	Choice(items ...interface{}) (interface{}, error)
	WeightedChoice(pairs ...interface{}) (interface{}, error)
	Random() float64
	RandInt(low, high int) (int, error)
	Permutations(items []interface{}, low int, high ...int) ([]interface{}, error)
	Wildcard(name string) ([]string, error)
}

// Environment is the state of one generator call: the wildcard store,
// the random source and the prompt blocks rendered so far. It is not safe
// for concurrent use and must not outlive the call.
type Environment struct {
	store    wildcard.Store
	rng      *rand.Rand
	maxDepth int

	blocks    []string
	resolving []string
}

var _ Primitives = (*Environment)(nil)

// EnvironmentOption configures an Environment.
type EnvironmentOption func(*Environment)

// WithRand sets the random source.
func WithRand(rng *rand.Rand) EnvironmentOption {
	return func(e *Environment) {
		e.rng = rng
	}
}

// WithSeed makes the environment's random choices reproducible.
func WithSeed(seed uint64) EnvironmentOption {
	return func(e *Environment) {
		e.rng = newRand(&seed)
	}
}

// WithMaxWildcardDepth bounds nested wildcard resolution.
func WithMaxWildcardDepth(depth int) EnvironmentOption {
	return func(e *Environment) {
		e.maxDepth = depth
	}
}

// NewEnvironment creates the state for one call. A nil store resolves
// every wildcard to nothing.
func NewEnvironment(store wildcard.Store, opts ...EnvironmentOption) *Environment {
	e := &Environment{
		store:    store,
		maxDepth: DefaultMaxWildcardDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = newRand(nil)
	}
	return e
}

// newRand returns a PCG source seeded with seed, or with crypto/rand
// entropy when seed is nil.
func newRand(seed *uint64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	}
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(errors.Wrap(err, "read random seed"))
	}
	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(b[:8]), binary.LittleEndian.Uint64(b[8:])))
}

// OnBlockRendered records the text of a rendered prompt block.
func (e *Environment) OnBlockRendered(text string) {
	e.blocks = append(e.blocks, text)
}

// Blocks returns the prompt blocks rendered so far, in order.
func (e *Environment) Blocks() []string {
	return append([]string(nil), e.blocks...)
}

// TemplateEnvironment builds a template environment with the primitives
// registered as globals and the prompt block tag installed.
func (e *Environment) TemplateEnvironment(opts ...template.Option) (*template.Environment, error) {
	tenv := template.NewEnvironment(opts...)
	if err := tenv.RegisterFunctionsFromProvider(e); err != nil {
		return nil, err
	}
	if err := tenv.RegisterBlock(e.promptBlock()); err != nil {
		return nil, errors.Wrap(err, "failed to register prompt block")
	}
	return tenv, nil
}

// ProvideFunctions implements template.FunctionProvider.
func (e *Environment) ProvideFunctions() map[string]template.Function {
	fns := []template.Function{
		template.NewSimpleFunction("choice", 0, -1, e.Choice),
		template.NewSimpleFunction("weighted_choice", 0, -1, e.WeightedChoice),
		template.NewSimpleFunction("random", 0, 0, func(...interface{}) (interface{}, error) {
			return e.Random(), nil
		}),
		template.NewNamedFunction("randint", []string{"low", "high"}, 2, 2, e.callRandInt),
		template.NewNamedFunction("permutations", []string{"items", "low", "high"}, 2, 3, e.callPermutations),
		template.NewNamedFunction("wildcard", []string{"name"}, 1, 1, e.callWildcard),
	}

	out := make(map[string]template.Function, len(fns))
	for _, fn := range fns {
		out[fn.Name()] = fn
	}
	return out
}
