package generator

import (
	"math/rand/v2"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjaminschreck/go-dynprompts/pkg/template"
)

func seededEnv(store map[string][]string) *Environment {
	if store == nil {
		return NewEnvironment(nil, WithSeed(7))
	}
	return NewEnvironment(memoryStore(store), WithSeed(7))
}

func TestChoice_ReturnsMemberRoughlyUniformly(t *testing.T) {
	env := seededEnv(nil)
	items := []interface{}{"a", "b", "c"}

	counts := map[interface{}]int{}
	const samples = 3000
	for i := 0; i < samples; i++ {
		got, err := env.Choice(items...)
		require.NoError(t, err)
		require.Contains(t, items, got)
		counts[got]++
	}
	for _, item := range items {
		assert.InDelta(t, samples/3, counts[item], samples/10, "frequency of %v", item)
	}
}

func TestChoice_UnpacksSingleSequence(t *testing.T) {
	env := seededEnv(nil)

	for _, arg := range []interface{}{
		[]interface{}{"x", "y"},
		template.Tuple{"x", "y"},
		[]string{"x", "y"},
	} {
		got, err := env.Choice(arg)
		require.NoError(t, err)
		assert.Contains(t, []interface{}{"x", "y"}, got)
	}

	got, err := env.Choice("only")
	require.NoError(t, err)
	assert.Equal(t, "only", got)
}

func TestChoice_Empty(t *testing.T) {
	env := seededEnv(nil)

	_, err := env.Choice()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = env.Choice([]interface{}{})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestWeightedChoice(t *testing.T) {
	env := seededEnv(nil)

	for i := 0; i < 200; i++ {
		got, err := env.WeightedChoice(template.Tuple{"A", 0}, template.Tuple{"B", 1})
		require.NoError(t, err)
		require.Equal(t, "B", got)
	}

	got, err := env.WeightedChoice([]interface{}{
		[]interface{}{"A", 0.0},
		[]interface{}{"B", 2.5},
	})
	require.NoError(t, err)
	assert.Equal(t, "B", got)

	counts := map[interface{}]int{}
	for i := 0; i < 4000; i++ {
		got, err := env.WeightedChoice(template.Tuple{"x", 3}, template.Tuple{"y", 1})
		require.NoError(t, err)
		counts[got]++
	}
	assert.InDelta(t, 3000, counts["x"], 200)
}

func TestWeightedChoice_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []interface{}
		message string
	}{
		{"empty", nil, "at least one"},
		{"not a pair", []interface{}{"a"}, "must be a (value, weight) pair"},
		{"three items", []interface{}{template.Tuple{"a", 1, 2}}, "must be a (value, weight) pair"},
		{"negative", []interface{}{template.Tuple{"a", -1}}, "non-negative"},
		{"non numeric", []interface{}{template.Tuple{"a", "heavy"}}, "must be a number"},
		{"bool weight", []interface{}{template.Tuple{"a", true}}, "must be a number"},
		{"all zero", []interface{}{template.Tuple{"a", 0}, template.Tuple{"b", 0}}, "greater than zero"},
	}

	env := seededEnv(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.WeightedChoice(tt.args...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidArgument))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestRandom(t *testing.T) {
	env := seededEnv(nil)
	for i := 0; i < 1000; i++ {
		v := env.Random()
		require.GreaterOrEqual(t, v, 0.0)
		require.Less(t, v, 1.0)
	}
}

func TestRandInt(t *testing.T) {
	env := seededEnv(nil)

	for i := 0; i < 100; i++ {
		v, err := env.RandInt(5, 5)
		require.NoError(t, err)
		require.Equal(t, 5, v)
	}

	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		v, err := env.RandInt(-1, 2)
		require.NoError(t, err)
		require.GreaterOrEqual(t, v, -1)
		require.LessOrEqual(t, v, 2)
		seen[v] = true
	}
	assert.Len(t, seen, 4)

	_, err := env.RandInt(3, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestWithRand(t *testing.T) {
	a := NewEnvironment(nil, WithRand(rand.New(rand.NewPCG(3, 4))))
	b := NewEnvironment(nil, WithRand(rand.New(rand.NewPCG(3, 4))))

	for i := 0; i < 20; i++ {
		require.Equal(t, a.Random(), b.Random())
	}

	// a shared source continues where the last environment stopped
	shared := rand.New(rand.NewPCG(3, 4))
	first := NewEnvironment(nil, WithRand(shared)).Random()
	second := NewEnvironment(nil, WithRand(shared)).Random()
	assert.NotEqual(t, first, second)
}

func TestSeedIsReproducible(t *testing.T) {
	a := NewEnvironment(nil, WithSeed(42))
	b := NewEnvironment(nil, WithSeed(42))

	for i := 0; i < 20; i++ {
		x, err := a.RandInt(0, 1000)
		require.NoError(t, err)
		y, err := b.RandInt(0, 1000)
		require.NoError(t, err)
		require.Equal(t, x, y)
	}
}
