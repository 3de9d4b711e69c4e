package template

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Token
	}{
		{
			name:  "plain text",
			input: "Hello World",
			want: []Token{
				{Type: TokenText, Value: "Hello World", Line: 1},
			},
		},
		{
			name:  "simple variable",
			input: "Hello {{ name }}!",
			want: []Token{
				{Type: TokenText, Value: "Hello ", Line: 1},
				{Type: TokenVariable, Value: "name", Line: 1},
				{Type: TokenText, Value: "!", Line: 1},
			},
		},
		{
			name:  "nested braces in output",
			input: "{{ {'a': {'b': 1}} }}",
			want: []Token{
				{Type: TokenVariable, Value: "{'a': {'b': 1}}", Line: 1},
			},
		},
		{
			name:  "raw block is text",
			input: "a{% raw %}{{ x }}\n{% endraw %}{{ y }}",
			want: []Token{
				{Type: TokenText, Value: "a", Line: 1},
				{Type: TokenText, Value: "{{ x }}\n", Line: 1},
				{Type: TokenVariable, Value: "y", Line: 2},
			},
		},
		{
			name:  "if statement",
			input: "{% if cond %}yes{% endif %}",
			want: []Token{
				{Type: TokenIf, Tag: "if", Value: "cond", Line: 1},
				{Type: TokenText, Value: "yes", Line: 1},
				{Type: TokenEndIf, Tag: "endif", Line: 1},
			},
		},
		{
			name:  "for loop",
			input: "{% for x in xs %}{{ x }}{% endfor %}",
			want: []Token{
				{Type: TokenFor, Tag: "for", Value: "x in xs", Line: 1},
				{Type: TokenVariable, Value: "x", Line: 1},
				{Type: TokenEndFor, Tag: "endfor", Line: 1},
			},
		},
		{
			name:  "custom tag",
			input: "{% prompt %}a{% endprompt %}",
			want: []Token{
				{Type: TokenTag, Tag: "prompt", Line: 1},
				{Type: TokenText, Value: "a", Line: 1},
				{Type: TokenTag, Tag: "endprompt", Line: 1},
			},
		},
		{
			name:  "comment dropped",
			input: "a{# note #}b",
			want: []Token{
				{Type: TokenText, Value: "a", Line: 1},
				{Type: TokenText, Value: "b", Line: 1},
			},
		},
		{
			name:  "whitespace control",
			input: "a  \n{%- if x -%}\n  b{% endif %}",
			want: []Token{
				{Type: TokenText, Value: "a", Line: 1},
				{Type: TokenIf, Tag: "if", Value: "x", Line: 2},
				{Type: TokenText, Value: "b", Line: 2},
				{Type: TokenEndIf, Tag: "endif", Line: 3},
			},
		},
		{
			name:  "trailing newline dropped",
			input: "line\n",
			want: []Token{
				{Type: TokenText, Value: "line", Line: 1},
			},
		},
		{
			name:  "line numbers",
			input: "a\n{{ x }}\n{% if y %}",
			want: []Token{
				{Type: TokenText, Value: "a\n", Line: 1},
				{Type: TokenVariable, Value: "x", Line: 2},
				{Type: TokenText, Value: "\n", Line: 2},
				{Type: TokenIf, Tag: "if", Value: "y", Line: 3},
			},
		},
		{
			name:  "closing delimiter inside string",
			input: `{{ "}}" }}`,
			want: []Token{
				{Type: TokenVariable, Value: `"}}"`, Line: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tokenize(tt.input)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Tokenize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTokenizeErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		line    int
		message string
	}{
		{"unclosed output", "a\n{{ x", 2, "expected end of print statement"},
		{"unclosed statement", "{% if x", 1, "expected end of statement block"},
		{"unclosed comment", "{# note", 1, "missing end of comment tag"},
		{"empty output", "{{ }}", 1, "expected an expression"},
		{"missing tag name", "{% 1 %}", 1, "tag name expected"},
		{"unclosed raw", "{% raw %}\n{{ x }}", 1, "missing end of raw directive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.input)
			require.Error(t, err)

			var syntaxErr *TemplateSyntaxError
			require.ErrorAs(t, err, &syntaxErr)
			assert.Equal(t, tt.line, syntaxErr.Line)
			assert.Contains(t, syntaxErr.Message, tt.message)
		})
	}
}

func TestFindTemplateTokens(t *testing.T) {
	got := FindTemplateTokens("a {{ x }} b {% if y %}c{# z #}")
	assert.Equal(t, []string{"{{ x }}", "{% if y %}", "{# z #}"}, got)

	assert.Empty(t, FindTemplateTokens("no tags here"))
}
