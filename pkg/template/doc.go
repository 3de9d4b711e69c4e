// Package template implements a small text template language compatible
// with the commonly used subset of Jinja.
//
// Templates are parsed once into a tree of control structures and may be
// rendered any number of times against an Environment that supplies global
// functions, filters and custom block tags.
//
// # Quick Start
//
//	env := template.NewEnvironment()
//	out, err := env.RenderString("Hello {{ name | title }}!", template.TemplateData{
//	    "name": "world",
//	})
//
// # Template Syntax
//
// Output and comments:
//
//	{{ expr }}                    - Print an expression
//	{# note #}                    - Comment, produces nothing
//	{{- expr -}}                  - Strip whitespace around the tag
//
// Statements:
//
//	{% if a %}...{% elif b %}...{% else %}...{% endif %}
//	{% for x in items %}...{% else %}...{% endfor %}
//	{% for k, v in pairs if v %}...{% endfor %}
//	{% set name = expr %}
//	{% set name %}...{% endset %}
//
// Inside a for loop the variable loop holds index, index0, revindex,
// revindex0, first, last and length.
//
// Expressions support literals ('s', 1, 1.5, true, none, [..], (..)),
// attribute and index access, slices, calls with keyword arguments,
// filters (x | join(", ")), tests (x is defined), the operators
// + - * / // % ** ~, comparisons, in, not in, and, or, not, and the inline
// conditional a if cond else b.
//
// Values print Jinja style, so lists render as ['a', 'b'] and booleans
// as True and False. Undefined names print as the empty
// string unless the environment is strict.
//
// # Custom Block Tags
//
// RegisterBlock adds a paired statement whose rendered body is passed to a
// callback:
//
//	env.RegisterBlock(template.BlockTag{
//	    Name:   "shout",
//	    Render: func(body string) (string, error) { return strings.ToUpper(body), nil },
//	})
//
// # Validation
//
// ValidateTemplateSyntax reports every problem in a template at once, with
// line numbers, instead of stopping at the first parse error.
// ExtractReferences lists the variables, functions and filters a template
// uses.
package template
