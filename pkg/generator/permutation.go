package generator

import (
	"github.com/benjaminschreck/go-dynprompts/pkg/template"
)

// maxPermutations bounds the size of one permutations() result.
const maxPermutations = 1_000_000

// Permutations returns every ordered arrangement of length low..high of
// distinct positions of items, shortest first, each length in
// lexicographic position order. high defaults to low. Lengths longer
// than items contribute nothing.
func (e *Environment) Permutations(items []interface{}, low int, high ...int) ([]interface{}, error) {
	hi := low
	if len(high) > 0 {
		hi = high[0]
	}
	if low < 0 {
		return nil, invalidArgument("permutations() length must be non-negative, got %d", low)
	}
	if hi < low {
		return nil, invalidArgument("permutations() high (%d) must not be less than low (%d)", hi, low)
	}

	n := len(items)
	if hi > n {
		hi = n
	}
	total := 0
	for r := low; r <= hi; r++ {
		count := permutationCount(n, r)
		if count < 0 || total+count > maxPermutations {
			return nil, invalidArgument("permutations() would produce more than %d arrangements", maxPermutations)
		}
		total += count
	}

	out := make([]interface{}, 0, total)
	for r := low; r <= hi; r++ {
		permute(items, r, func(t template.Tuple) {
			out = append(out, t)
		})
	}
	return out, nil
}

// permutationCount is n!/(n-r)!, or -1 once it passes maxPermutations.
func permutationCount(n, r int) int {
	count := 1
	for i := 0; i < r; i++ {
		count *= n - i
		if count > maxPermutations {
			return -1
		}
	}
	return count
}

// permute emits the r-length arrangements of items in lexicographic
// order of their indices.
func permute(items []interface{}, r int, emit func(template.Tuple)) {
	n := len(items)
	if r > n {
		return
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	cycles := make([]int, r)
	for i := range cycles {
		cycles[i] = n - i
	}

	build := func() template.Tuple {
		t := make(template.Tuple, r)
		for i := 0; i < r; i++ {
			t[i] = items[indices[i]]
		}
		return t
	}

	emit(build())
	for {
		i := r - 1
		for ; i >= 0; i-- {
			cycles[i]--
			if cycles[i] == 0 {
				first := indices[i]
				copy(indices[i:], indices[i+1:])
				indices[n-1] = first
				cycles[i] = n - i
				continue
			}
			j := cycles[i]
			indices[i], indices[n-j] = indices[n-j], indices[i]
			emit(build())
			break
		}
		if i < 0 {
			return
		}
	}
}

func (e *Environment) callPermutations(args ...interface{}) (interface{}, error) {
	items, err := template.ToSlice(args[0])
	if err != nil {
		return nil, invalidArgument("permutations() items: %v", err)
	}
	low, ok := integerArg(args[1])
	if !ok {
		return nil, invalidArgument("permutations() low must be an integer, got %s", template.Repr(args[1]))
	}

	var high []int
	if len(args) > 2 && args[2] != nil {
		h, ok := integerArg(args[2])
		if !ok {
			return nil, invalidArgument("permutations() high must be an integer, got %s", template.Repr(args[2]))
		}
		high = append(high, h)
	}
	return e.Permutations(items, low, high...)
}
