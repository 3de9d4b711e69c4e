package generator

import (
	"github.com/benjaminschreck/go-dynprompts/pkg/template"
)

// PromptTag opens a prompt block: {% prompt %}...{% endprompt %}.
const PromptTag = "prompt"

// promptBlock renders its body once, records it with OnBlockRendered and
// leaves the same text in the surrounding output.
func (e *Environment) promptBlock() template.BlockTag {
	return template.BlockTag{
		Name: PromptTag,
		Render: func(body string) (string, error) {
			e.OnBlockRendered(body)
			return body, nil
		},
	}
}
