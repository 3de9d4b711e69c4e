package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinFilters(t *testing.T) {
	data := TemplateData{
		"words":  []interface{}{"b", "A", "c", "a"},
		"nums":   []interface{}{3, 1, 2},
		"mixed":  []interface{}{1, 2.5},
		"phrase": "  hello big world  ",
		"empty":  "",
	}

	tests := []struct {
		template string
		want     string
	}{
		{"{{ 'abc' | upper }}", "ABC"},
		{"{{ 'ABC' | lower }}", "abc"},
		{"{{ 'hello world' | title }}", "Hello World"},
		{"{{ 'hELLO wORLD' | capitalize }}", "Hello world"},
		{"{{ phrase | trim }}", "hello big world"},
		{"{{ 'xxhixx' | trim('x') }}", "hi"},
		{"{{ nums | join }}", "312"},
		{"{{ nums | join(', ') }}", "3, 1, 2"},
		{"{{ nums | length }} {{ 'héllo' | length }} {{ words | count }}", "3 5 4"},
		{"{{ nums | first }} {{ nums | last }}", "3 2"},
		{"[{{ [] | first }}]", "[]"},
		{"{{ missing | default('fallback') }}", "fallback"},
		{"{{ empty | default('fallback') }}|{{ empty | d('fallback', true) }}", "|fallback"},
		{"{{ 'a-b-c' | replace('-', '+') }} {{ 'a-b-c' | replace('-', '+', 1) }}", "a+b+c a+b-c"},
		{"{{ 'ab' | list }}", "['a', 'b']"},
		{"{{ 12 | string ~ 'x' }}", "12x"},
		{"{{ '42' | int + 1 }} {{ 'x' | int(7) }} {{ 3.9 | int }} {{ '2.5' | int }}", "43 7 3 2"},
		{"{{ '2.5' | float }} {{ 'x' | float }}", "2.5 0.0"},
		{"{{ 2.5 | round }} {{ 3.14159 | round(2) }} {{ 2.1 | round(0, 'ceil') }} {{ 2.9 | round(method='floor') }}", "2.0 3.14 3.0 2.0"},
		{"{{ -3 | abs }} {{ -2.5 | abs }}", "3 2.5"},
		{"{{ nums | sum }} {{ mixed | sum }} {{ nums | sum(start=10) }}", "6 3.5 16"},
		{"{{ nums | min }} {{ nums | max }} {{ words | max }}", "1 3 c"},
		{"{{ words | unique }}", "['b', 'A', 'c']"},
		{"{{ words | unique(true) }}", "['b', 'A', 'c', 'a']"},
		{"{{ words | sort }}", "['A', 'a', 'b', 'c']"},
		{"{{ nums | sort(reverse=true) }}", "[3, 2, 1]"},
		{"{{ words | sort(case_sensitive=true) }}", "['A', 'a', 'b', 'c']"},
		{"{{ nums | reverse }} {{ 'abc' | reverse }}", "[2, 1, 3] cba"},
		{"{{ phrase | wordcount }}", "3"},
	}

	env := NewEnvironment()
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			got, err := env.RenderString(tt.template, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterErrors(t *testing.T) {
	tests := []struct {
		template string
		message  string
	}{
		{"{{ 5 | length }}", "has no len()"},
		{"{{ 'x' | round }}", "round() requires a number"},
		{"{{ 1.5 | round(0, 'up') }}", "method must be"},
		{"{{ [1, 'a'] | sort }}", "not supported between instances"},
		{"{{ 'x' | replace('a') }}", "requires at least 3 arguments"},
		{"{{ 'x' | upper(1) }}", "accepts at most 1 arguments"},
	}

	env := NewEnvironment()
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			_, err := env.RenderString(tt.template, nil)
			require.Error(t, err)
			assert.True(t, IsFunctionError(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestBuiltinTests(t *testing.T) {
	tests := []struct {
		template string
		want     string
	}{
		{"{{ none is none }} {{ 0 is none }}", "True False"},
		{"{{ true is boolean }} {{ 1 is boolean }}", "True False"},
		{"{{ true is true }} {{ false is false }} {{ 1 is true }}", "True True False"},
		{"{{ 1 is number }} {{ 1.5 is float }} {{ 1 is integer }} {{ 1.0 is integer }}", "True True True False"},
		{"{{ 'a' is string }} {{ [1] is sequence }} {{ 'a' is sequence }}", "True True True"},
		{"{{ m is mapping }} {{ [1] is mapping }}", "True False"},
		{"{{ [1] is iterable }} {{ 1 is iterable }} {{ missing is iterable }}", "True False False"},
		{"{{ 4 is even }} {{ 4 is odd }} {{ 9 is divisibleby 3 }}", "True False True"},
		{"{{ 1 is eq 1 }} {{ 1 is ne 2 }} {{ 'a' is in(['a']) }}", "True True True"},
		{"{{ 'abc' is lower }} {{ 'ABC' is upper }} {{ 'Abc' is lower }}", "True True False"},
		{"{{ missing is undefined }}", "True"},
	}

	env := NewEnvironment()
	data := TemplateData{"m": map[string]interface{}{"k": 1}}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			got, err := env.RenderString(tt.template, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRangeFunction(t *testing.T) {
	tests := []struct {
		template string
		want     string
	}{
		{"{{ range(3) }}", "[0, 1, 2]"},
		{"{{ range(2, 5) }}", "[2, 3, 4]"},
		{"{{ range(10, 0, -3) }}", "[10, 7, 4, 1]"},
		{"{{ range(0) }}", "[]"},
	}

	env := NewEnvironment()
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			got, err := env.RenderString(tt.template, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := env.RenderString("{{ range(1, 2, 0) }}", nil)
	assert.ErrorContains(t, err, "step cannot be zero")

	_, err = env.RenderString("{{ range(1.5) }}", nil)
	assert.ErrorContains(t, err, "must be integers")

	_, err = env.RenderString("{{ range(maxRangeSize + 1) }}", TemplateData{"maxRangeSize": maxRangeSize})
	assert.ErrorContains(t, err, "exceeds")
}
