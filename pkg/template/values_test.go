package template

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"nil", nil, "None"},
		{"undefined", Undefined{Name: "x"}, ""},
		{"string", "plain", "plain"},
		{"true", true, "True"},
		{"false", false, "False"},
		{"int", 42, "42"},
		{"int64", int64(-3), "-3"},
		{"whole float", 1.0, "1.0"},
		{"float", 0.1, "0.1"},
		{"large float", 1e16, "1e+16"},
		{"small float", 0.00001, "1e-05"},
		{"negative zero", math.Copysign(0, -1), "-0.0"},
		{"nan", math.NaN(), "nan"},
		{"inf", math.Inf(1), "inf"},
		{"list", []interface{}{"a", 1, nil, true}, "['a', 1, None, True]"},
		{"typed list", []string{"x", "y"}, "['x', 'y']"},
		{"tuple", Tuple{"a", "b"}, "('a', 'b')"},
		{"one tuple", Tuple{"a"}, "('a',)"},
		{"empty tuple", Tuple{}, "()"},
		{"nested", []interface{}{Tuple{"a", 1}, []interface{}{1.5}}, "[('a', 1), [1.5]]"},
		{"map sorted", map[string]interface{}{"b": 2, "a": "x"}, "{'a': 'x', 'b': 2}"},
		{"quote switch", []interface{}{"it's"}, `["it's"]`},
		{"escapes", []interface{}{"a\nb"}, `['a\nb']`},
		{"function", NewSimpleFunction("f", 0, 0, nil), "<function f>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.value))
		})
	}
}

func TestToSlice(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    []interface{}
		wantErr bool
	}{
		{"nil", nil, []interface{}{}, false},
		{"undefined", Undefined{}, []interface{}{}, false},
		{"list", []interface{}{1, 2}, []interface{}{1, 2}, false},
		{"tuple", Tuple{"a"}, []interface{}{"a"}, false},
		{"strings", []string{"a", "b"}, []interface{}{"a", "b"}, false},
		{"ints", []int{3}, []interface{}{3}, false},
		{"map keys sorted", map[string]interface{}{"b": 1, "a": 2}, []interface{}{"a", "b"}, false},
		{"typed map keys", map[string]int{"z": 1, "y": 2}, []interface{}{"y", "z"}, false},
		{"string chars", "héy", []interface{}{"h", "é", "y"}, false},
		{"array", [2]int{1, 2}, []interface{}{1, 2}, false},
		{"int", 5, nil, true},
		{"bool", true, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToSlice(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "is not iterable")
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ToSlice() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRepr(t *testing.T) {
	assert.Equal(t, "'x'", Repr("x"))
	assert.Equal(t, "1.0", Repr(1.0))
	assert.Equal(t, "None", Repr(nil))
	assert.Equal(t, `'a\\b'`, Repr(`a\b`))
	assert.Equal(t, `'both \' and "'`, Repr(`both ' and "`))
}
