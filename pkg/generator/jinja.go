package generator

import (
	"github.com/google/uuid"

	"github.com/benjaminschreck/go-dynprompts/internal/logging"
	"github.com/benjaminschreck/go-dynprompts/pkg/template"
	"github.com/benjaminschreck/go-dynprompts/pkg/wildcard"
)

// PromptGenerator turns templates into prompts.
type PromptGenerator interface {
	Generate(numPrompts int) ([]string, error)
	GenerateFromPrompts(prompts []string) ([]string, error)
}

// JinjaGenerator renders a template with the random, permutation and
// wildcard primitives available. Every call builds its own Environment,
// so a generator may be used from several goroutines.
type JinjaGenerator struct {
	template string
	store    wildcard.Store
	config   *Config
	cache    *template.TemplateCache
}

var _ PromptGenerator = (*JinjaGenerator)(nil)

// Option configures a JinjaGenerator.
type Option func(*JinjaGenerator)

// WithConfig overrides the global configuration.
func WithConfig(config *Config) Option {
	return func(g *JinjaGenerator) {
		g.config = NewConfigWithDefaults(config)
	}
}

// WithTemplateCache shares a parse cache between generators.
func WithTemplateCache(cache *template.TemplateCache) Option {
	return func(g *JinjaGenerator) {
		g.cache = cache
	}
}

// NewJinjaGenerator creates a generator for tmpl. store may be nil when
// the template uses no wildcards.
func NewJinjaGenerator(tmpl string, store wildcard.Store, opts ...Option) *JinjaGenerator {
	g := &JinjaGenerator{
		template: tmpl,
		store:    store,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.config == nil {
		g.config = GetGlobalConfig()
	}
	if g.cache == nil && g.config.CacheMaxSize > 0 {
		g.cache = template.NewTemplateCache(template.CacheConfig{
			MaxSize: g.config.CacheMaxSize,
			TTL:     g.config.CacheTTL,
		})
	}
	return g
}

// Template returns the bound template text.
func (g *JinjaGenerator) Template() string {
	return g.template
}

// Generate renders the template numPrompts times. If the template
// contains prompt blocks, the result is every block rendered during the
// call instead.
func (g *JinjaGenerator) Generate(numPrompts int) ([]string, error) {
	if numPrompts < 1 {
		err := invalidArgument("number of prompts must be at least 1, got %d", numPrompts)
		return nil, newGeneratorError(err, ErrInvalidArgument)
	}
	sources := make([]string, numPrompts)
	for i := range sources {
		sources[i] = g.template
	}
	return g.render(sources)
}

// GenerateFromPrompts renders each prompt once, ignoring the bound
// template. Prompt blocks override the result as for Generate.
func (g *JinjaGenerator) GenerateFromPrompts(prompts []string) ([]string, error) {
	return g.render(prompts)
}

// render evaluates sources in order within one Environment. It returns
// either every result or an error, never a partial list.
func (g *JinjaGenerator) render(sources []string) ([]string, error) {
	logger := logging.WithFields(logging.Fields{
		"call_id": uuid.NewString(),
		"count":   len(sources),
	})
	if logger.IsDebugMode() {
		logger.WithField("template_length", len(g.template)).Debug("Generating prompts")
	}

	opts := []EnvironmentOption{WithMaxWildcardDepth(g.config.MaxWildcardDepth)}
	if g.config.Seed != nil {
		opts = append(opts, WithSeed(*g.config.Seed))
	}
	env := NewEnvironment(g.store, opts...)

	tenv, err := env.TemplateEnvironment(
		template.WithCache(g.cache),
		template.WithStrictUndefined(g.config.StrictMode),
	)
	if err != nil {
		return nil, g.fail(logger, -1, err, ErrEvaluation)
	}

	prompts := make([]string, 0, len(sources))
	for i, source := range sources {
		tmpl, err := tenv.Parse(source)
		if err != nil {
			return nil, g.fail(logger, i, err, ErrTemplateSyntax)
		}
		out, err := tenv.Render(tmpl, nil)
		if err != nil {
			return nil, g.fail(logger, i, err, ErrEvaluation)
		}
		prompts = append(prompts, out)
	}

	if blocks := env.Blocks(); len(blocks) > 0 {
		logger.Debug("Using %d prompt blocks instead of %d renders", len(blocks), len(prompts))
		prompts = blocks
	}
	return prompts, nil
}

func (g *JinjaGenerator) fail(logger *logging.Logger, index int, err error, kind error) error {
	if index >= 0 {
		logger = logger.WithField("index", index)
	}
	logger.WithField("error", err).Error("Prompt generation failed")
	return newGeneratorError(err, kind)
}
