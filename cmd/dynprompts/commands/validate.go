package commands

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/benjaminschreck/go-dynprompts/pkg/generator"
	"github.com/benjaminschreck/go-dynprompts/pkg/template"
)

// ErrInvalidTemplate is returned when validation finds an error.
var ErrInvalidTemplate = errors.New("template validation failed")

func newValidateCmd() *cobra.Command {
	var inline string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "validate [template files...]",
		Short: "Check templates for syntax errors and unknown wildcards",
		Long: `Report every problem in the given templates without rendering them.

Errors make the command fail. Unknown functions and wildcards that the
configured stores do not define are reported as warnings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := settingsFrom(cmd)
			sources, err := collectSources(cmd, args, inline)
			if err != nil {
				return err
			}

			store, _, closeStore, err := settings.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			type fileResult struct {
				Source string                               `json:"source"`
				Result template.ValidateTemplateSyntaxResult `json:"result"`
			}
			results := make([]fileResult, 0, len(sources))
			valid := true
			for _, src := range sources {
				result, err := generator.ValidateTemplate(src.text, store)
				if err != nil {
					return errors.Wrapf(err, "%s", src.name)
				}
				valid = valid && result.Valid
				results = append(results, fileResult{Source: src.name, Result: result})
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					printIssues(cmd, r.Source, r.Result)
				}
			}

			if !valid {
				return ErrInvalidTemplate
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&inline, "template", "t", "", "template text to validate")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	return cmd
}

func printIssues(cmd *cobra.Command, source string, result template.ValidateTemplateSyntaxResult) {
	out := cmd.OutOrStdout()
	if len(result.Issues) == 0 {
		pterm.Success.WithWriter(out).Printfln("%s: ok", source)
		return
	}

	for _, issue := range result.Issues {
		printer := pterm.Error
		if issue.Severity == template.IssueSeverityWarning {
			printer = pterm.Warning
		}
		line := fmt.Sprintf("%s:%d: [%s] %s", source, issue.Location.Line, issue.Code, issue.Message)
		if len(issue.Suggestions) > 0 && len(issue.Suggestions) <= 5 {
			line += fmt.Sprintf(" (did you mean: %v)", issue.Suggestions)
		}
		printer.WithWriter(out).Println(line)
	}
	if result.IssuesTruncated {
		pterm.Info.WithWriter(out).Printfln("%s: more issues were not shown", source)
	}
}
