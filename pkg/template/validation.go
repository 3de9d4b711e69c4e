package template

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

const validationParserVersion = "v1"

// IssueSeverity indicates validation issue severity.
type IssueSeverity string

const (
	IssueSeverityError   IssueSeverity = "error"
	IssueSeverityWarning IssueSeverity = "warning"
)

// IssueCode identifies the kind of a validation issue.
type IssueCode string

const (
	IssueCodeSyntaxError          IssueCode = "SYNTAX_ERROR"
	IssueCodeControlBlockMismatch IssueCode = "CONTROL_BLOCK_MISMATCH"
	IssueCodeUnsupportedExpr      IssueCode = "UNSUPPORTED_EXPRESSION"
	IssueCodeUnknownTag           IssueCode = "UNKNOWN_TAG"
	IssueCodeUnknownFilter        IssueCode = "UNKNOWN_FILTER"
	IssueCodeUnknownFunction      IssueCode = "UNKNOWN_FUNCTION"
)

// TokenKind identifies extracted reference categories.
type TokenKind string

const (
	TokenKindVariable TokenKind = "variable"
	TokenKindControl  TokenKind = "control"
	TokenKindFunction TokenKind = "function"
	TokenKindFilter   TokenKind = "filter"
)

// ValidateTemplateSyntaxInput controls syntax validation behavior.
type ValidateTemplateSyntaxInput struct {
	Source string `json:"-"`
	// Environment supplies the known functions, filters and block tags.
	// Nil validates against the builtins only.
	Environment        *Environment `json:"-"`
	TemplateRevisionID string       `json:"templateRevisionId,omitempty"`
	MaxIssues          int          `json:"maxIssues,omitempty"` // 0 = unlimited
	// ReferenceCheck, when set, is called for every extracted reference
	// and may report extra issues for it.
	ReferenceCheck func(ref TemplateTokenRef) []ValidationIssue `json:"-"`
}

// ExtractReferencesInput controls reference extraction behavior.
type ExtractReferencesInput struct {
	Source             string `json:"-"`
	TemplateRevisionID string `json:"templateRevisionId,omitempty"`
}

// TemplateLocation identifies a token in the template source.
type TemplateLocation struct {
	Line         int `json:"line"`
	TokenOrdinal int `json:"tokenOrdinal"`
}

// TemplateTokenRef references one token-derived item.
type TemplateTokenRef struct {
	Raw        string    `json:"raw"`
	Kind       TokenKind `json:"kind"`
	Expression string    `json:"expression,omitempty"`
	// Arguments holds the string literal arguments of a function call.
	Arguments []string         `json:"arguments,omitempty"`
	Location  TemplateLocation `json:"location"`
}

// ValidationIssue is one problem found in a template.
type ValidationIssue struct {
	ID          string           `json:"id"`
	Severity    IssueSeverity    `json:"severity"`
	Code        IssueCode        `json:"code"`
	Message     string           `json:"message"`
	Token       TemplateTokenRef `json:"token"`
	Location    TemplateLocation `json:"location"`
	Suggestions []string         `json:"suggestions,omitempty"`
}

// ValidationSummary contains validation counters.
type ValidationSummary struct {
	CheckedTokens      int `json:"checkedTokens"`
	ErrorCount         int `json:"errorCount"`
	WarningCount       int `json:"warningCount"`
	ReturnedIssueCount int `json:"returnedIssueCount"`
}

// ValidationMetadata identifies the validated source and parser.
type ValidationMetadata struct {
	SourceHash         string `json:"sourceHash"`
	TemplateRevisionID string `json:"templateRevisionId,omitempty"`
	ParserVersion      string `json:"parserVersion"`
}

// ValidateTemplateSyntaxResult contains syntax validation output.
type ValidateTemplateSyntaxResult struct {
	Valid           bool               `json:"valid"`
	Summary         ValidationSummary  `json:"summary"`
	Issues          []ValidationIssue  `json:"issues"`
	IssuesTruncated bool               `json:"issuesTruncated"`
	Metadata        ValidationMetadata `json:"metadata"`
}

// ExtractReferencesResult contains references extracted from template tokens.
type ExtractReferencesResult struct {
	References []TemplateTokenRef `json:"references"`
	Metadata   ValidationMetadata `json:"metadata"`
}

// ValidateTemplateSyntax reports every syntax problem in a template without
// stopping at the first one. Unknown functions are warnings because they may
// be supplied as render data; everything else is an error.
func ValidateTemplateSyntax(input ValidateTemplateSyntaxInput) (ValidateTemplateSyntaxResult, error) {
	if input.MaxIssues < 0 {
		return ValidateTemplateSyntaxResult{}, errors.New("maxIssues must be >= 0")
	}

	env := input.Environment
	if env == nil {
		env = NewEnvironment()
	}

	tokens, err := Tokenize(input.Source)
	var issues []ValidationIssue
	if err != nil {
		issues = []ValidationIssue{tokenizeIssue(err)}
	} else {
		issues = validateTokens(tokens, env)
		if input.ReferenceCheck != nil {
			for _, ref := range extractReferencesFromTokens(tokens) {
				issues = append(issues, input.ReferenceCheck(ref)...)
			}
		}
	}
	sortValidationIssues(issues)

	errorCount, warningCount := 0, 0
	for i := range issues {
		issues[i].ID = fmt.Sprintf("iss_%03d", i+1)
		if issues[i].Severity == IssueSeverityWarning {
			warningCount++
		} else {
			errorCount++
		}
	}

	returned := issues
	truncated := false
	if input.MaxIssues > 0 && len(issues) > input.MaxIssues {
		returned = issues[:input.MaxIssues]
		truncated = true
	}
	if returned == nil {
		returned = []ValidationIssue{}
	}

	return ValidateTemplateSyntaxResult{
		Valid: errorCount == 0,
		Summary: ValidationSummary{
			CheckedTokens:      statementCount(tokens),
			ErrorCount:         errorCount,
			WarningCount:       warningCount,
			ReturnedIssueCount: len(returned),
		},
		Issues:          returned,
		IssuesTruncated: truncated,
		Metadata:        newValidationMetadata(input.Source, input.TemplateRevisionID),
	}, nil
}

// ExtractReferences lists the variables, functions, filters and control
// statements used by a template, in source order.
func ExtractReferences(input ExtractReferencesInput) (ExtractReferencesResult, error) {
	tokens, err := Tokenize(input.Source)
	if err != nil {
		return ExtractReferencesResult{}, err
	}

	references := extractReferencesFromTokens(tokens)
	sortTemplateReferences(references)

	return ExtractReferencesResult{
		References: references,
		Metadata:   newValidationMetadata(input.Source, input.TemplateRevisionID),
	}, nil
}

func statementCount(tokens []Token) int {
	n := 0
	for _, t := range tokens {
		if t.Type != TokenText {
			n++
		}
	}
	return n
}

func tokenizeIssue(err error) ValidationIssue {
	message := err.Error()
	line := 0
	var syntaxErr *TemplateSyntaxError
	if errors.As(err, &syntaxErr) {
		message = syntaxErr.Message
		line = syntaxErr.Line
	}
	location := TemplateLocation{Line: line}
	return ValidationIssue{
		Severity: IssueSeverityError,
		Code:     IssueCodeSyntaxError,
		Message:  message,
		Token:    TemplateTokenRef{Kind: TokenKindControl, Location: location},
		Location: location,
	}
}

// rawToken rebuilds the tag text of a token for display.
func rawToken(token Token) string {
	switch token.Type {
	case TokenText:
		return token.Value
	case TokenVariable:
		return "{{ " + token.Value + " }}"
	default:
		if token.Value == "" {
			return "{% " + token.Tag + " %}"
		}
		return "{% " + token.Tag + " " + token.Value + " %}"
	}
}

type validationControlFrame struct {
	token   Token
	end     string
	sawElse bool
}

func validateTokens(tokens []Token, env *Environment) []ValidationIssue {
	issues := make([]ValidationIssue, 0)
	controlStack := make([]validationControlFrame, 0)

	appendIssue := func(severity IssueSeverity, code IssueCode, message string, ordinal int, token Token, kind TokenKind, expression string, suggestions ...string) {
		location := TemplateLocation{Line: token.Line, TokenOrdinal: ordinal}
		ref := TemplateTokenRef{
			Raw:      rawToken(token),
			Kind:     kind,
			Location: location,
		}
		if expression != "" {
			ref.Expression = expression
		}
		issues = append(issues, ValidationIssue{
			Severity:    severity,
			Code:        code,
			Message:     message,
			Token:       ref,
			Location:    location,
			Suggestions: suggestions,
		})
	}

	checkExpression := func(ordinal int, token Token, node ExpressionNode) {
		walkExpression(node, func(n ExpressionNode) {
			switch n := n.(type) {
			case *FunctionCallNode:
				if _, ok := env.lookupFunction(n.Name); !ok {
					if _, global := env.global(n.Name); !global {
						appendIssue(IssueSeverityWarning, IssueCodeUnknownFunction,
							fmt.Sprintf("unknown function '%s'", n.Name),
							ordinal, token, TokenKindFunction, n.Name, env.Functions()...)
					}
				}
			case *FilterNode:
				if _, ok := env.lookupFilter(n.Name); !ok {
					appendIssue(IssueSeverityError, IssueCodeUnknownFilter,
						fmt.Sprintf("no filter named '%s'", n.Name),
						ordinal, token, TokenKindFilter, n.Name, env.Filters()...)
				}
			}
		})
	}

	parseAndCheck := func(ordinal int, token Token, source string) {
		if strings.TrimSpace(source) == "" {
			appendIssue(IssueSeverityError, IssueCodeSyntaxError,
				fmt.Sprintf("expected an expression after '%s'", token.Tag),
				ordinal, token, TokenKindControl, "")
			return
		}
		node, err := ParseExpression(source)
		if err != nil {
			appendIssue(IssueSeverityError, IssueCodeUnsupportedExpr, err.Error(), ordinal, token, TokenKindControl, source)
			return
		}
		checkExpression(ordinal, token, node)
	}

	for ordinal, token := range tokens {
		switch token.Type {
		case TokenText:
			continue

		case TokenVariable:
			node, err := ParseExpression(token.Value)
			if err != nil {
				appendIssue(IssueSeverityError, IssueCodeUnsupportedExpr, err.Error(), ordinal, token, TokenKindVariable, token.Value)
				continue
			}
			checkExpression(ordinal, token, node)

		case TokenIf:
			parseAndCheck(ordinal, token, token.Value)
			controlStack = append(controlStack, validationControlFrame{token: token, end: "endif"})

		case TokenFor:
			parser := &ControlParser{}
			forNode, err := parser.parseForSyntax(token.Value, token.Line)
			if err != nil {
				appendIssue(IssueSeverityError, IssueCodeSyntaxError, syntaxMessage(err), ordinal, token, TokenKindControl, token.Value)
			} else {
				checkExpression(ordinal, token, forNode.Collection)
				if forNode.Filter != nil {
					checkExpression(ordinal, token, forNode.Filter)
				}
			}
			controlStack = append(controlStack, validationControlFrame{token: token, end: "endfor"})

		case TokenSet:
			name, value, isAssign := strings.Cut(token.Value, "=")
			if !isAssign {
				controlStack = append(controlStack, validationControlFrame{token: token, end: "endset"})
				if len(strings.Fields(name)) != 1 {
					appendIssue(IssueSeverityError, IssueCodeSyntaxError, "block assignment takes exactly one target", ordinal, token, TokenKindControl, token.Value)
				}
				continue
			}
			parseAndCheck(ordinal, token, value)

		case TokenElif:
			if len(controlStack) == 0 || controlStack[len(controlStack)-1].end != "endif" {
				appendIssue(IssueSeverityError, IssueCodeControlBlockMismatch, "'elif' has no matching 'if' block", ordinal, token, TokenKindControl, "")
				continue
			}
			if controlStack[len(controlStack)-1].sawElse {
				appendIssue(IssueSeverityError, IssueCodeControlBlockMismatch, "'elif' cannot appear after 'else'", ordinal, token, TokenKindControl, "")
			}
			parseAndCheck(ordinal, token, token.Value)

		case TokenElse:
			if len(controlStack) == 0 {
				appendIssue(IssueSeverityError, IssueCodeControlBlockMismatch, "'else' has no matching 'if' or 'for' block", ordinal, token, TokenKindControl, "")
				continue
			}
			top := &controlStack[len(controlStack)-1]
			if top.end != "endif" && top.end != "endfor" {
				appendIssue(IssueSeverityError, IssueCodeControlBlockMismatch,
					fmt.Sprintf("'else' is not allowed inside '%s'", top.token.Tag), ordinal, token, TokenKindControl, "")
				continue
			}
			if top.sawElse {
				appendIssue(IssueSeverityError, IssueCodeControlBlockMismatch, "multiple 'else' clauses", ordinal, token, TokenKindControl, "")
			}
			top.sawElse = true

		case TokenEndIf, TokenEndFor, TokenEndSet:
			popMatching(&controlStack, token, func(message string) {
				appendIssue(IssueSeverityError, IssueCodeControlBlockMismatch, message, ordinal, token, TokenKindControl, "")
			})

		case TokenTag:
			if block, ok := env.lookupBlock(token.Tag); ok {
				if token.Value != "" {
					appendIssue(IssueSeverityError, IssueCodeSyntaxError,
						fmt.Sprintf("tag '%s' takes no arguments, got %q", token.Tag, token.Value), ordinal, token, TokenKindControl, "")
				}
				controlStack = append(controlStack, validationControlFrame{token: token, end: block.endName()})
				continue
			}
			if isBlockEnd(env, token.Tag) {
				popMatching(&controlStack, token, func(message string) {
					appendIssue(IssueSeverityError, IssueCodeControlBlockMismatch, message, ordinal, token, TokenKindControl, "")
				})
				continue
			}
			appendIssue(IssueSeverityError, IssueCodeUnknownTag,
				fmt.Sprintf("encountered unknown tag '%s'", token.Tag), ordinal, token, TokenKindControl, "")
		}
	}

	for _, opening := range controlStack {
		location := TemplateLocation{Line: opening.token.Line}
		issues = append(issues, ValidationIssue{
			Severity: IssueSeverityError,
			Code:     IssueCodeControlBlockMismatch,
			Message:  fmt.Sprintf("missing '%s' for '%s' opened at line %d", opening.end, opening.token.Tag, opening.token.Line),
			Token: TemplateTokenRef{
				Raw:        rawToken(opening.token),
				Kind:       TokenKindControl,
				Expression: opening.token.Value,
				Location:   location,
			},
			Location: location,
		})
	}

	return issues
}

func popMatching(stack *[]validationControlFrame, token Token, report func(string)) {
	s := *stack
	if len(s) == 0 {
		report(fmt.Sprintf("'%s' has no matching opening block", token.Tag))
		return
	}
	top := s[len(s)-1]
	if top.end != token.Tag {
		report(fmt.Sprintf("'%s' does not close '%s' opened at line %d, expected '%s'", token.Tag, top.token.Tag, top.token.Line, top.end))
	}
	*stack = s[:len(s)-1]
}

func isBlockEnd(env *Environment, tag string) bool {
	env.mu.RLock()
	defer env.mu.RUnlock()
	for _, block := range env.blocks {
		if block.endName() == tag {
			return true
		}
	}
	return false
}

func syntaxMessage(err error) string {
	var syntaxErr *TemplateSyntaxError
	if errors.As(err, &syntaxErr) {
		return syntaxErr.Message
	}
	return err.Error()
}

// walkExpression calls visit for node and every node below it.
func walkExpression(node ExpressionNode, visit func(ExpressionNode)) {
	if node == nil {
		return
	}
	visit(node)

	switch n := node.(type) {
	case *ListNode:
		for _, item := range n.Items {
			walkExpression(item, visit)
		}
	case *TupleNode:
		for _, item := range n.Items {
			walkExpression(item, visit)
		}
	case *DictNode:
		for i := range n.Keys {
			walkExpression(n.Keys[i], visit)
			walkExpression(n.Values[i], visit)
		}
	case *SplatNode:
		walkExpression(n.Value, visit)
	case *BinaryOpNode:
		walkExpression(n.Left, visit)
		walkExpression(n.Right, visit)
	case *UnaryOpNode:
		walkExpression(n.Operand, visit)
	case *CompareNode:
		walkExpression(n.Left, visit)
		for _, op := range n.Ops {
			walkExpression(op.Right, visit)
		}
	case *ConditionalNode:
		walkExpression(n.Condition, visit)
		walkExpression(n.Then, visit)
		walkExpression(n.Else, visit)
	case *FieldAccessNode:
		walkExpression(n.Object, visit)
	case *IndexAccessNode:
		walkExpression(n.Object, visit)
		walkExpression(n.Index, visit)
	case *SliceNode:
		walkExpression(n.Object, visit)
		walkExpression(n.Start, visit)
		walkExpression(n.Stop, visit)
	case *FunctionCallNode:
		for _, arg := range n.Args {
			walkExpression(arg, visit)
		}
		for _, kw := range n.Kwargs {
			walkExpression(kw.Value, visit)
		}
	case *FilterNode:
		walkExpression(n.Target, visit)
		for _, arg := range n.Args {
			walkExpression(arg, visit)
		}
		for _, kw := range n.Kwargs {
			walkExpression(kw.Value, visit)
		}
	case *TestNode:
		walkExpression(n.Target, visit)
		for _, arg := range n.Args {
			walkExpression(arg, visit)
		}
	}
}

func extractReferencesFromTokens(tokens []Token) []TemplateTokenRef {
	references := make([]TemplateTokenRef, 0)

	appendRef := func(ordinal int, token Token, kind TokenKind, expression string, arguments []string) {
		references = append(references, TemplateTokenRef{
			Raw:        rawToken(token),
			Kind:       kind,
			Expression: expression,
			Arguments:  arguments,
			Location:   TemplateLocation{Line: token.Line, TokenOrdinal: ordinal},
		})
	}

	collect := func(ordinal int, token Token, node ExpressionNode) {
		collectExpressionReferences(node, func(kind TokenKind, expression string, arguments []string) {
			appendRef(ordinal, token, kind, expression, arguments)
		})
	}

	for ordinal, token := range tokens {
		switch token.Type {
		case TokenVariable:
			node, err := ParseExpression(token.Value)
			if err != nil {
				continue
			}
			collect(ordinal, token, node)
		case TokenIf, TokenElif:
			appendRef(ordinal, token, TokenKindControl, token.Value, nil)
			node, err := ParseExpression(token.Value)
			if err != nil {
				continue
			}
			collect(ordinal, token, node)
		case TokenFor:
			appendRef(ordinal, token, TokenKindControl, token.Value, nil)
			forNode, err := (&ControlParser{}).parseForSyntax(token.Value, token.Line)
			if err != nil {
				continue
			}
			collect(ordinal, token, forNode.Collection)
			if forNode.Filter != nil {
				collect(ordinal, token, forNode.Filter)
			}
		case TokenSet:
			appendRef(ordinal, token, TokenKindControl, token.Value, nil)
			if _, value, ok := strings.Cut(token.Value, "="); ok {
				if node, err := ParseExpression(value); err == nil {
					collect(ordinal, token, node)
				}
			}
		case TokenTag:
			appendRef(ordinal, token, TokenKindControl, token.Tag, nil)
		}
	}

	return references
}

func collectExpressionReferences(node ExpressionNode, emit func(kind TokenKind, expression string, arguments []string)) {
	if node == nil {
		return
	}

	if path, ok := referencePathFromNode(node); ok {
		emit(TokenKindVariable, path, nil)
		if indexNode, ok := node.(*IndexAccessNode); ok {
			if _, literal := indexNode.Index.(*LiteralNode); !literal {
				collectExpressionReferences(indexNode.Index, emit)
			}
		}
		return
	}

	switch n := node.(type) {
	case *FunctionCallNode:
		emit(TokenKindFunction, n.Name, literalStrings(n.Args))
		for _, arg := range n.Args {
			collectExpressionReferences(arg, emit)
		}
		for _, kw := range n.Kwargs {
			collectExpressionReferences(kw.Value, emit)
		}
	case *FilterNode:
		collectExpressionReferences(n.Target, emit)
		emit(TokenKindFilter, n.Name, literalStrings(n.Args))
		for _, arg := range n.Args {
			collectExpressionReferences(arg, emit)
		}
	case *TestNode:
		collectExpressionReferences(n.Target, emit)
	case *BinaryOpNode:
		collectExpressionReferences(n.Left, emit)
		collectExpressionReferences(n.Right, emit)
	case *UnaryOpNode:
		collectExpressionReferences(n.Operand, emit)
	case *CompareNode:
		collectExpressionReferences(n.Left, emit)
		for _, op := range n.Ops {
			collectExpressionReferences(op.Right, emit)
		}
	case *ConditionalNode:
		collectExpressionReferences(n.Condition, emit)
		collectExpressionReferences(n.Then, emit)
		collectExpressionReferences(n.Else, emit)
	case *ListNode:
		for _, item := range n.Items {
			collectExpressionReferences(item, emit)
		}
	case *TupleNode:
		for _, item := range n.Items {
			collectExpressionReferences(item, emit)
		}
	case *DictNode:
		for i := range n.Keys {
			collectExpressionReferences(n.Keys[i], emit)
			collectExpressionReferences(n.Values[i], emit)
		}
	case *SplatNode:
		collectExpressionReferences(n.Value, emit)
	case *FieldAccessNode:
		collectExpressionReferences(n.Object, emit)
	case *IndexAccessNode:
		collectExpressionReferences(n.Object, emit)
		collectExpressionReferences(n.Index, emit)
	case *SliceNode:
		collectExpressionReferences(n.Object, emit)
	}
}

func literalStrings(args []ExpressionNode) []string {
	var out []string
	for _, arg := range args {
		if lit, ok := arg.(*LiteralNode); ok {
			if s, ok := lit.Value.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func referencePathFromNode(node ExpressionNode) (string, bool) {
	switch n := node.(type) {
	case *VariableNode:
		return n.Name, true
	case *FieldAccessNode:
		base, ok := referencePathFromNode(n.Object)
		if !ok {
			return "", false
		}
		return base + "." + n.Field, true
	case *IndexAccessNode:
		base, ok := referencePathFromNode(n.Object)
		if !ok {
			return "", false
		}
		literal, ok := n.Index.(*LiteralNode)
		if !ok {
			return "", false
		}
		switch v := literal.Value.(type) {
		case int:
			return fmt.Sprintf("%s[%d]", base, v), true
		case string:
			return fmt.Sprintf("%s[%q]", base, v), true
		default:
			return "", false
		}
	default:
		return "", false
	}
}

func newValidationMetadata(source, templateRevisionID string) ValidationMetadata {
	sum := sha256.Sum256([]byte(source))
	return ValidationMetadata{
		SourceHash:         "sha256:" + hex.EncodeToString(sum[:]),
		TemplateRevisionID: templateRevisionID,
		ParserVersion:      validationParserVersion,
	}
}

func sortValidationIssues(issues []ValidationIssue) {
	sort.SliceStable(issues, func(i, j int) bool {
		left, right := issues[i].Location, issues[j].Location
		if left.Line != right.Line {
			return left.Line < right.Line
		}
		if left.TokenOrdinal != right.TokenOrdinal {
			return left.TokenOrdinal < right.TokenOrdinal
		}
		return false
	})
}

func sortTemplateReferences(references []TemplateTokenRef) {
	sort.SliceStable(references, func(i, j int) bool {
		return references[i].Location.TokenOrdinal < references[j].Location.TokenOrdinal
	})
}
