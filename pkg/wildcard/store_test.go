package wildcard

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(map[string][]string{
		"color":        {"red", "<blue|green>"},
		"colors/warm":  {"red", "orange"},
		"colors/cold":  {"blue"},
		"colors/x/ray": {"x"},
	})

	tests := []struct {
		name string
		want []string
	}{
		{"color", []string{"red", "<blue|green>"}},
		{"__color__", []string{"red", "<blue|green>"}},
		{" color ", []string{"red", "<blue|green>"}},
		{"missing", []string{}},
		{"colors/*", []string{"blue", "red", "orange"}},
		{"colors/w?rm", []string{"red", "orange"}},
		{"nothing/*", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, store.GetAllValues(tt.name))
		})
	}

	assert.Equal(t, []string{"color", "colors/cold", "colors/warm", "colors/x/ray"}, store.Names())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	source := map[string][]string{"a": {"1"}}
	store := NewMemoryStore(source)
	source["a"][0] = "changed"

	got := store.GetAllValues("a")
	got[0] = "mutated"

	assert.Equal(t, []string{"1"}, store.GetAllValues("a"))
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			store.Set(fmt.Sprintf("n%d", i), "v")
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = store.GetAllValues(fmt.Sprintf("n%d", i))
		}(i)
	}
	wg.Wait()

	assert.Len(t, store.Names(), 8)
}

func TestChain(t *testing.T) {
	first := NewMemoryStore(map[string][]string{"a": {"1"}, "shared": {"first"}})
	second := NewMemoryStore(map[string][]string{"b": {"2"}, "shared": {"second"}})
	chain := Chain{first, second}

	assert.Equal(t, []string{"1"}, chain.GetAllValues("a"))
	assert.Equal(t, []string{"2"}, chain.GetAllValues("__b__"))
	assert.Equal(t, []string{"first"}, chain.GetAllValues("shared"))
	assert.Equal(t, []string{}, chain.GetAllValues("none"))
	assert.Equal(t, []string{"a", "b", "shared"}, chain.Names())
	assert.Equal(t, []string{}, Chain{}.GetAllValues("a"))
}
