package generator

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjaminschreck/go-dynprompts/pkg/wildcard"
)

func memoryStore(data map[string][]string) *wildcard.MemoryStore {
	return wildcard.NewMemoryStore(data)
}

// recordingStore remembers the names it was asked for.
type recordingStore struct {
	wildcard.Store
	queried []string
}

func (s *recordingStore) GetAllValues(name string) []string {
	s.queried = append(s.queried, name)
	return s.Store.GetAllValues(name)
}

func TestWildcard_InlineChoice(t *testing.T) {
	env := seededEnv(map[string][]string{"color": {"red", "<blue|green>"}})

	for i := 0; i < 50; i++ {
		got, err := env.Wildcard("color")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "red", got[0])
		assert.Contains(t, []string{"blue", "green"}, got[1])
	}
}

func TestWildcard_NestedReferencesAreFlattened(t *testing.T) {
	env := seededEnv(map[string][]string{
		"color":  {"red", "green"},
		"nested": {"__color__"},
		"deeper": {"start", "__nested__", "end"},
	})

	got, err := env.Wildcard("nested")
	require.NoError(t, err)
	assert.Equal(t, []string{"red", "green"}, got)

	got, err = env.Wildcard("__deeper__")
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "red", "green", "end"}, got)
}

func TestWildcard_StoreReceivesBareNames(t *testing.T) {
	store := &recordingStore{Store: memoryStore(map[string][]string{
		"a": {"__b__"},
		"b": {"x"},
	})}
	env := NewEnvironment(store)

	_, err := env.Wildcard("__a__")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, store.queried)
}

func TestWildcard_UnknownIsEmpty(t *testing.T) {
	env := seededEnv(map[string][]string{"a": {"__missing__"}})

	got, err := env.Wildcard("nothing")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)

	got, err = env.Wildcard("a")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = NewEnvironment(nil).Wildcard("a")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWildcard_RepeatedReferenceIsNotACycle(t *testing.T) {
	env := seededEnv(map[string][]string{
		"pair": {"__one__", "__one__"},
		"one":  {"1"},
	})

	got, err := env.Wildcard("pair")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "1"}, got)
}

func TestWildcard_CycleDetected(t *testing.T) {
	tests := []struct {
		name    string
		store   map[string][]string
		start   string
		message string
	}{
		{"two names", map[string][]string{"a": {"__b__"}, "b": {"__a__"}}, "a", "wildcard cycle detected: a -> b -> a"},
		{"self", map[string][]string{"a": {"x", "__a__"}}, "a", "wildcard cycle detected: a -> a"},
		{"entered midway", map[string][]string{"s": {"__a__"}, "a": {"__b__"}, "b": {"__a__"}}, "s", "wildcard cycle detected: a -> b -> a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := seededEnv(tt.store)
			_, err := env.Wildcard(tt.start)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrWildcardCycle))
			assert.Equal(t, tt.message, err.Error())

			// the resolution stack is unwound after a failure
			assert.Empty(t, env.resolving)
		})
	}
}

func TestWildcard_DepthLimit(t *testing.T) {
	store := map[string][]string{
		"l0": {"__l1__"},
		"l1": {"__l2__"},
		"l2": {"__l3__"},
		"l3": {"bottom"},
	}

	env := NewEnvironment(memoryStore(store), WithMaxWildcardDepth(4))
	got, err := env.Wildcard("l0")
	require.NoError(t, err)
	assert.Equal(t, []string{"bottom"}, got)

	env = NewEnvironment(memoryStore(store), WithMaxWildcardDepth(3))
	_, err = env.Wildcard("l0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWildcardDepth))
}
