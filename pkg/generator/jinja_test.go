package generator

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjaminschreck/go-dynprompts/pkg/template"
)

func testConfig() *Config {
	seed := uint64(1)
	return &Config{CacheMaxSize: 16, MaxWildcardDepth: 8, Seed: &seed}
}

func TestGenerate(t *testing.T) {
	store := memoryStore(map[string][]string{
		"color":  {"red", "<blue|green>"},
		"nested": {"__color__"},
		"animal": {"cat"},
	})

	tests := []struct {
		name     string
		template string
		count    int
		check    func(t *testing.T, prompts []string)
	}{
		{
			name:     "plain text",
			template: "a photo of a cat",
			count:    3,
			check: func(t *testing.T, prompts []string) {
				assert.Equal(t, []string{"a photo of a cat", "a photo of a cat", "a photo of a cat"}, prompts)
			},
		},
		{
			name:     "choice",
			template: "{{ choice('red', 'blue') }} car",
			count:    20,
			check: func(t *testing.T, prompts []string) {
				for _, p := range prompts {
					assert.Contains(t, []string{"red car", "blue car"}, p)
				}
			},
		},
		{
			name:     "wildcard loop",
			template: "{% for c in wildcard('nested') %}{{ c }};{% endfor %}",
			count:    1,
			check: func(t *testing.T, prompts []string) {
				assert.Equal(t, []string{"red;green;"}, prompts)
			},
		},
		{
			name:     "choice of wildcard",
			template: "a {{ choice(wildcard('__animal__')) }}",
			count:    2,
			check: func(t *testing.T, prompts []string) {
				assert.Equal(t, []string{"a cat", "a cat"}, prompts)
			},
		},
		{
			name:     "missing wildcard renders nothing",
			template: "[{% for c in wildcard('missing') %}{{ c }}{% endfor %}]",
			count:    1,
			check: func(t *testing.T, prompts []string) {
				assert.Equal(t, []string{"[]"}, prompts)
			},
		},
		{
			name:     "weighted choice",
			template: "{{ weighted_choice(('A', 0), ('B', 1)) }}",
			count:    5,
			check: func(t *testing.T, prompts []string) {
				assert.Equal(t, []string{"B", "B", "B", "B", "B"}, prompts)
			},
		},
		{
			name:     "randint",
			template: "{{ randint(5, 5) }}-{{ randint(low=1, high=1) }}",
			count:    1,
			check: func(t *testing.T, prompts []string) {
				assert.Equal(t, []string{"5-1"}, prompts)
			},
		},
		{
			name:     "permutations with keyword high",
			template: "{% for p in permutations(['a', 'b', 'c'], 1, high=2) %}{{ p | join }} {% endfor %}",
			count:    1,
			check: func(t *testing.T, prompts []string) {
				assert.Equal(t, []string{"a b c ab ac ba bc ca cb "}, prompts)
			},
		},
		{
			name:     "permutations value",
			template: "{{ permutations(['a', 'b'], 2) }}",
			count:    1,
			check: func(t *testing.T, prompts []string) {
				assert.Equal(t, []string{"[('a', 'b'), ('b', 'a')]"}, prompts)
			},
		},
		{
			name:     "random in range",
			template: "{{ random() < 1 and random() >= 0 }}",
			count:    3,
			check: func(t *testing.T, prompts []string) {
				assert.Equal(t, []string{"True", "True", "True"}, prompts)
			},
		},
		{
			name:     "two prompt blocks",
			template: "intro {% prompt %}one {{ 'x' }}{% endprompt %} mid {% prompt %}two{% endprompt %}",
			count:    1,
			check: func(t *testing.T, prompts []string) {
				assert.Equal(t, []string{"one x", "two"}, prompts)
			},
		},
		{
			name:     "blocks accumulate across repetitions",
			template: "{% prompt %}a{% endprompt %}{% prompt %}b{% endprompt %}",
			count:    3,
			check: func(t *testing.T, prompts []string) {
				assert.Equal(t, []string{"a", "b", "a", "b", "a", "b"}, prompts)
			},
		},
		{
			name:     "block in loop",
			template: "{% for c in wildcard('color') %}{% prompt %}a {{ c }} flower{% endprompt %}{% endfor %}",
			count:    1,
			check: func(t *testing.T, prompts []string) {
				require.Len(t, prompts, 2)
				assert.Equal(t, "a red flower", prompts[0])
				assert.Contains(t, []string{"a blue flower", "a green flower"}, prompts[1])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewJinjaGenerator(tt.template, store, WithConfig(testConfig()))
			prompts, err := g.Generate(tt.count)
			require.NoError(t, err)
			tt.check(t, prompts)
		})
	}
}

func TestGenerate_BlockTextIsAlsoInlined(t *testing.T) {
	env := NewEnvironment(nil)
	tenv, err := env.TemplateEnvironment()
	require.NoError(t, err)

	out, err := tenv.RenderString("<{% prompt %}in{% endprompt %}>", nil)
	require.NoError(t, err)
	assert.Equal(t, "<in>", out)
	assert.Equal(t, []string{"in"}, env.Blocks())
}

func TestGenerate_SyntaxError(t *testing.T) {
	for _, source := range []string{
		"{% if x %}unclosed",
		"{{ 1 + }}",
		"{% prompt %}never closed",
		"{{ x | nosuchfilter }}",
	} {
		t.Run(source, func(t *testing.T) {
			prompts, err := NewJinjaGenerator(source, nil, WithConfig(testConfig())).Generate(2)
			require.Error(t, err)
			assert.Nil(t, prompts)

			assert.True(t, IsGeneratorError(err))
			assert.True(t, errors.Is(err, ErrTemplateSyntax))
			assert.False(t, errors.Is(err, ErrEvaluation))
			assert.True(t, template.IsSyntaxError(err))

			var genErr *GeneratorError
			require.True(t, errors.As(err, &genErr))
			assert.Contains(t, genErr.Message, "template syntax error")
		})
	}
}

func TestGenerate_EvaluationErrors(t *testing.T) {
	store := memoryStore(map[string][]string{"a": {"__b__"}, "b": {"__a__"}})

	tests := []struct {
		source string
		kind   error
	}{
		{"{{ randint(3, 1) }}", ErrInvalidArgument},
		{"{{ choice() }}", ErrInvalidArgument},
		{"{{ weighted_choice(('a', 0)) }}", ErrInvalidArgument},
		{"{{ permutations(['a'], 2, 1) }}", ErrInvalidArgument},
		{"{{ wildcard('a') }}", ErrWildcardCycle},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			prompts, err := NewJinjaGenerator(tt.source, store, WithConfig(testConfig())).Generate(1)
			require.Error(t, err)
			assert.Nil(t, prompts)
			assert.True(t, errors.Is(err, ErrEvaluation))
			assert.True(t, errors.Is(err, tt.kind))
			assert.False(t, errors.Is(err, ErrTemplateSyntax))
		})
	}
}

func TestGenerate_NoPartialResults(t *testing.T) {
	g := NewJinjaGenerator("", nil, WithConfig(testConfig()))

	prompts, err := g.GenerateFromPrompts([]string{"fine", "{{ choice() }}", "also fine"})
	require.Error(t, err)
	assert.Nil(t, prompts)
}

func TestGenerate_InvalidCount(t *testing.T) {
	g := NewJinjaGenerator("x", nil, WithConfig(testConfig()))

	for _, n := range []int{0, -1} {
		prompts, err := g.Generate(n)
		require.Error(t, err)
		assert.Nil(t, prompts)
		assert.True(t, errors.Is(err, ErrInvalidArgument))
	}
}

func TestGenerate_StrictMode(t *testing.T) {
	cfg := testConfig()
	cfg.StrictMode = true

	_, err := NewJinjaGenerator("{{ missing }}", nil, WithConfig(cfg)).Generate(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEvaluation))

	prompts, err := NewJinjaGenerator("[{{ missing }}]", nil, WithConfig(testConfig())).Generate(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"[]"}, prompts)
}

func TestGenerate_SeedIsReproducible(t *testing.T) {
	source := "{{ randint(0, 1000000) }} {{ choice('a', 'b', 'c', 'd') }}"

	first, err := NewJinjaGenerator(source, nil, WithConfig(testConfig())).Generate(5)
	require.NoError(t, err)
	second, err := NewJinjaGenerator(source, nil, WithConfig(testConfig())).Generate(5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerateFromPrompts(t *testing.T) {
	g := NewJinjaGenerator("ignored", nil, WithConfig(testConfig()))

	prompts, err := g.GenerateFromPrompts([]string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, prompts)
	assert.Equal(t, "ignored", g.Template())

	prompts, err = g.GenerateFromPrompts([]string{
		"{% prompt %}one{% endprompt %}",
		"no block",
		"{% prompt %}two{% endprompt %}",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, prompts)

	prompts, err = g.GenerateFromPrompts(nil)
	require.NoError(t, err)
	assert.Empty(t, prompts)

	_, err = g.GenerateFromPrompts([]string{"ok", "{% for %}"})
	assert.True(t, errors.Is(err, ErrTemplateSyntax))
}

func TestGenerate_CallsAreIndependent(t *testing.T) {
	g := NewJinjaGenerator("{% prompt %}x{% endprompt %}", nil, WithConfig(testConfig()))

	for i := 0; i < 3; i++ {
		prompts, err := g.Generate(2)
		require.NoError(t, err)
		assert.Equal(t, []string{"x", "x"}, prompts)
	}
}

func TestGenerate_ConcurrentCalls(t *testing.T) {
	store := memoryStore(map[string][]string{"n": {"<1|2|3>"}})
	g := NewJinjaGenerator("{% for v in wildcard('n') %}{% prompt %}{{ v }}{% endprompt %}{% endfor %}", store)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prompts, err := g.Generate(4)
			assert.NoError(t, err)
			assert.Len(t, prompts, 4)
			for _, p := range prompts {
				assert.Contains(t, []string{"1", "2", "3"}, p)
			}
		}()
	}
	wg.Wait()
}

func TestGenerate_SharedCache(t *testing.T) {
	cache := template.NewTemplateCache(template.CacheConfig{MaxSize: 4})
	source := "{% prompt %}{{ choice('a', 'b') }}{% endprompt %}"

	for i := 0; i < 3; i++ {
		g := NewJinjaGenerator(source, nil, WithConfig(testConfig()), WithTemplateCache(cache))
		prompts, err := g.Generate(2)
		require.NoError(t, err)
		require.Len(t, prompts, 2)
	}

	assert.Equal(t, 1, cache.Size())
	hits, misses := cache.Stats()
	assert.Equal(t, uint64(5), hits)
	assert.Equal(t, uint64(1), misses)
}

func ExampleJinjaGenerator_Generate() {
	store := memoryStore(map[string][]string{
		"animal": {"cat", "dog"},
	})
	g := NewJinjaGenerator(
		"{% for a in wildcard('animal') %}{% prompt %}a photo of a {{ a }}{% endprompt %}{% endfor %}",
		store,
	)

	prompts, err := g.Generate(1)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(strings.Join(prompts, "\n"))
	// Output:
	// a photo of a cat
	// a photo of a dog
}
