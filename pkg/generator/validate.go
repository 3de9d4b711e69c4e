package generator

import (
	"fmt"

	"github.com/benjaminschreck/go-dynprompts/pkg/template"
	"github.com/benjaminschreck/go-dynprompts/pkg/wildcard"
)

// IssueCodeUnknownWildcard flags a wildcard() call naming a wildcard the
// store does not have.
const IssueCodeUnknownWildcard template.IssueCode = "UNKNOWN_WILDCARD"

// ValidateTemplate checks a generator template without rendering it. The
// primitives and the prompt block are known to the validator. When store
// can list its names, literal wildcard("name") calls naming a missing
// wildcard are reported as warnings.
func ValidateTemplate(source string, store wildcard.Store) (template.ValidateTemplateSyntaxResult, error) {
	tenv, err := NewEnvironment(store).TemplateEnvironment()
	if err != nil {
		return template.ValidateTemplateSyntaxResult{}, err
	}

	input := template.ValidateTemplateSyntaxInput{
		Source:      source,
		Environment: tenv,
	}
	if lister, ok := store.(wildcard.Lister); ok {
		input.ReferenceCheck = unknownWildcardCheck(store, lister)
	}
	return template.ValidateTemplateSyntax(input)
}

func unknownWildcardCheck(store wildcard.Store, lister wildcard.Lister) func(template.TemplateTokenRef) []template.ValidationIssue {
	known := make(map[string]bool)
	for _, name := range lister.Names() {
		known[name] = true
	}

	return func(ref template.TemplateTokenRef) []template.ValidationIssue {
		if ref.Kind != template.TokenKindFunction || ref.Expression != "wildcard" || len(ref.Arguments) == 0 {
			return nil
		}
		name := wildcard.BareName(ref.Arguments[0])
		if known[name] || len(store.GetAllValues(name)) > 0 {
			return nil
		}
		return []template.ValidationIssue{{
			Severity:    template.IssueSeverityWarning,
			Code:        IssueCodeUnknownWildcard,
			Message:     fmt.Sprintf("wildcard '%s' is not defined and resolves to nothing", name),
			Token:       ref,
			Location:    ref.Location,
			Suggestions: closestNames(name, lister.Names()),
		}}
	}
}

// closestNames returns up to three names sharing the longest prefix with name.
func closestNames(name string, names []string) []string {
	best := 0
	var out []string
	for _, candidate := range names {
		n := commonPrefix(name, candidate)
		if n == 0 {
			continue
		}
		switch {
		case n > best:
			best = n
			out = []string{candidate}
		case n == best && len(out) < 3:
			out = append(out, candidate)
		}
	}
	return out
}

func commonPrefix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
