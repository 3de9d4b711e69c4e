package template

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// ControlStructure represents a node of a parsed template
type ControlStructure interface {
	Render(ctx *Context) (string, error)
	String() string
}

// TextNode represents plain text content
type TextNode struct {
	Content string
}

func (n *TextNode) String() string {
	return fmt.Sprintf("Text(%q)", n.Content)
}

func (n *TextNode) Render(ctx *Context) (string, error) {
	return n.Content, nil
}

// ExpressionContentNode is a {{ }} output tag
type ExpressionContentNode struct {
	Expression ExpressionNode
	Source     string
	Line       int
}

func (n *ExpressionContentNode) String() string {
	return fmt.Sprintf("Expression(%s)", n.Expression.String())
}

func (n *ExpressionContentNode) Render(ctx *Context) (string, error) {
	value, err := n.Expression.Evaluate(ctx)
	if err != nil {
		return "", wrapEvaluation(err, n.Source, n.Line)
	}
	return FormatValue(value), nil
}

// IfNode represents an if statement
type IfNode struct {
	Condition ExpressionNode
	Source    string
	Line      int
	ThenBody  []ControlStructure
	ElsIfs    []*ElsIfNode
	ElseBody  []ControlStructure
}

// ElsIfNode represents an elif clause
type ElsIfNode struct {
	Condition ExpressionNode
	Source    string
	Line      int
	Body      []ControlStructure
}

func (n *ElsIfNode) String() string {
	return fmt.Sprintf("ElsIf(%s)", n.Condition.String())
}

func (n *IfNode) String() string {
	parts := []string{fmt.Sprintf("If(%s)", n.Condition.String())}
	for _, elsif := range n.ElsIfs {
		parts = append(parts, elsif.String())
	}
	if len(n.ElseBody) > 0 {
		parts = append(parts, "Else")
	}
	return strings.Join(parts, " ")
}

func (n *IfNode) Render(ctx *Context) (string, error) {
	condValue, err := n.Condition.Evaluate(ctx)
	if err != nil {
		return "", wrapEvaluation(err, n.Source, n.Line)
	}
	if isTruthy(condValue) {
		return renderControlBody(n.ThenBody, ctx)
	}

	for _, elsif := range n.ElsIfs {
		elsifValue, err := elsif.Condition.Evaluate(ctx)
		if err != nil {
			return "", wrapEvaluation(err, elsif.Source, elsif.Line)
		}
		if isTruthy(elsifValue) {
			return renderControlBody(elsif.Body, ctx)
		}
	}

	return renderControlBody(n.ElseBody, ctx)
}

// ForNode represents a for loop
type ForNode struct {
	Targets    []string
	Collection ExpressionNode
	// Filter skips items for which it is falsy: for x in xs if x
	Filter   ExpressionNode
	Source   string
	Line     int
	Body     []ControlStructure
	ElseBody []ControlStructure
}

func (n *ForNode) String() string {
	s := fmt.Sprintf("For(%s in %s", strings.Join(n.Targets, ", "), n.Collection.String())
	if n.Filter != nil {
		s += " if " + n.Filter.String()
	}
	return s + ")"
}

func (n *ForNode) Render(ctx *Context) (string, error) {
	collectionVal, err := n.Collection.Evaluate(ctx)
	if err != nil {
		return "", wrapEvaluation(err, n.Source, n.Line)
	}

	items, err := ToSlice(collectionVal)
	if err != nil {
		return "", wrapEvaluation(err, n.Source, n.Line)
	}

	if n.Filter != nil {
		kept := make([]interface{}, 0, len(items))
		for _, item := range items {
			scope := ctx.child()
			if err := n.bind(scope, item); err != nil {
				return "", wrapEvaluation(err, n.Source, n.Line)
			}
			ok, err := n.Filter.Evaluate(scope)
			if err != nil {
				return "", wrapEvaluation(err, n.Source, n.Line)
			}
			if isTruthy(ok) {
				kept = append(kept, item)
			}
		}
		items = kept
	}

	if len(items) == 0 {
		return renderControlBody(n.ElseBody, ctx)
	}

	var result strings.Builder
	length := len(items)
	for i, item := range items {
		scope := ctx.child()
		if err := n.bind(scope, item); err != nil {
			return "", wrapEvaluation(err, n.Source, n.Line)
		}
		scope.Set("loop", map[string]interface{}{
			"index":     i + 1,
			"index0":    i,
			"revindex":  length - i,
			"revindex0": length - i - 1,
			"first":     i == 0,
			"last":      i == length-1,
			"length":    length,
		})

		bodyResult, err := renderControlBody(n.Body, scope)
		if err != nil {
			return "", err
		}
		result.WriteString(bodyResult)
	}

	return result.String(), nil
}

// bind assigns the loop targets, unpacking sequences for multiple targets
func (n *ForNode) bind(scope *Context, item interface{}) error {
	return assignTargets(scope, n.Targets, item)
}

func assignTargets(scope *Context, targets []string, value interface{}) error {
	if len(targets) == 1 {
		scope.Set(targets[0], value)
		return nil
	}
	items, ok := sequenceItems(value)
	if !ok {
		if s, isStr := value.(string); isStr {
			items, _ = ToSlice(s)
		} else {
			return errors.Newf("cannot unpack non-iterable %s object", pyTypeName(value))
		}
	}
	if len(items) > len(targets) {
		return errors.Newf("too many values to unpack (expected %d)", len(targets))
	}
	if len(items) < len(targets) {
		return errors.Newf("not enough values to unpack (expected %d, got %d)", len(targets), len(items))
	}
	for i, name := range targets {
		scope.Set(name, items[i])
	}
	return nil
}

// SetNode assigns variables: {% set x = expr %} or {% set x %}body{% endset %}
type SetNode struct {
	Targets []string
	Value   ExpressionNode
	Body    []ControlStructure
	Source  string
	Line    int
}

func (n *SetNode) String() string {
	if n.Value == nil {
		return fmt.Sprintf("SetBlock(%s)", strings.Join(n.Targets, ", "))
	}
	return fmt.Sprintf("Set(%s = %s)", strings.Join(n.Targets, ", "), n.Value.String())
}

func (n *SetNode) Render(ctx *Context) (string, error) {
	if n.Value == nil {
		body, err := renderControlBody(n.Body, ctx)
		if err != nil {
			return "", err
		}
		ctx.Set(n.Targets[0], body)
		return "", nil
	}

	value, err := n.Value.Evaluate(ctx)
	if err != nil {
		return "", wrapEvaluation(err, n.Source, n.Line)
	}
	if err := assignTargets(ctx, n.Targets, value); err != nil {
		return "", wrapEvaluation(err, n.Source, n.Line)
	}
	return "", nil
}

// BlockTagNode is a registered block tag such as {% prompt %}...{% endprompt %}.
// Its body is rendered once and handed to the tag's Render function.
type BlockTagNode struct {
	Tag  string
	Line int
	Body []ControlStructure
}

func (n *BlockTagNode) String() string {
	return fmt.Sprintf("Block(%s)", n.Tag)
}

func (n *BlockTagNode) Render(ctx *Context) (string, error) {
	tag, ok := ctx.env.lookupBlock(n.Tag)
	if !ok {
		return "", wrapEvaluation(errors.Newf("no block tag named '%s'", n.Tag), n.Tag, n.Line)
	}
	body, err := renderControlBody(n.Body, ctx)
	if err != nil {
		return "", err
	}
	out, err := tag.Render(body)
	if err != nil {
		return "", wrapEvaluation(err, n.Tag, n.Line)
	}
	return out, nil
}

// renderControlBody renders a list of control structures
func renderControlBody(body []ControlStructure, ctx *Context) (string, error) {
	var result strings.Builder
	for _, item := range body {
		rendered, err := item.Render(ctx)
		if err != nil {
			return "", err
		}
		result.WriteString(rendered)
	}
	return result.String(), nil
}

func wrapEvaluation(err error, source string, line int) error {
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}
	return &EvaluationError{Expression: source, Line: line, Cause: err}
}

// ControlParser parses control structures from template tokens
type ControlParser struct {
	tokens []Token
	pos    int
	env    *Environment
}

// ParseControlStructures parses template source into control structures
// using the builtin statements only.
func ParseControlStructures(content string) ([]ControlStructure, error) {
	return parseWithEnvironment(content, nil)
}

func parseWithEnvironment(content string, env *Environment) ([]ControlStructure, error) {
	tokens, err := Tokenize(content)
	if err != nil {
		return nil, err
	}
	parser := &ControlParser{tokens: tokens, env: env}
	body, stop, err := parser.parseBodyUntil()
	if err != nil {
		return nil, err
	}
	if stop != nil {
		return nil, NewSyntaxError(fmt.Sprintf("encountered unknown tag '%s'", stop.Tag), stop.Line)
	}
	return body, nil
}

func (p *ControlParser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenText}
	}
	return p.tokens[p.pos]
}

func (p *ControlParser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *ControlParser) filterKnown() func(string) bool {
	if p.env == nil {
		return nil
	}
	return func(name string) bool {
		_, ok := p.env.lookupFilter(name)
		return ok
	}
}

func (p *ControlParser) parseExpression(source string, line int) (ExpressionNode, error) {
	expr, err := parseExpressionWith(source, p.filterKnown())
	if err != nil {
		return nil, NewSyntaxError(err.Error(), line)
	}
	return expr, nil
}

func (p *ControlParser) blockEnd(tag string) (string, bool) {
	if p.env == nil {
		return "", false
	}
	block, ok := p.env.lookupBlock(tag)
	if !ok {
		return "", false
	}
	return block.endName(), true
}

// parseBodyUntil parses nodes until one of the stop tags. It returns the
// stop token, or nil if the tokens ran out. Statement tags that are neither
// openers nor stops are reported as the stop token when stops is empty.
func (p *ControlParser) parseBodyUntil(stops ...string) ([]ControlStructure, *Token, error) {
	var body []ControlStructure

	for p.pos < len(p.tokens) {
		current := p.current()

		if current.Type != TokenText && current.Type != TokenVariable {
			for _, stop := range stops {
				if current.Tag == stop {
					p.advance()
					return body, &current, nil
				}
			}
		}

		switch current.Type {
		case TokenText:
			body = append(body, &TextNode{Content: current.Value})
			p.advance()

		case TokenVariable:
			expr, err := p.parseExpression(current.Value, current.Line)
			if err != nil {
				return nil, nil, err
			}
			body = append(body, &ExpressionContentNode{Expression: expr, Source: current.Value, Line: current.Line})
			p.advance()

		case TokenIf:
			node, err := p.parseIf()
			if err != nil {
				return nil, nil, err
			}
			body = append(body, node)

		case TokenFor:
			node, err := p.parseFor()
			if err != nil {
				return nil, nil, err
			}
			body = append(body, node)

		case TokenSet:
			node, err := p.parseSet()
			if err != nil {
				return nil, nil, err
			}
			body = append(body, node)

		case TokenTag:
			if end, ok := p.blockEnd(current.Tag); ok {
				node, err := p.parseBlockTag(current, end)
				if err != nil {
					return nil, nil, err
				}
				body = append(body, node)
				continue
			}
			return nil, nil, p.unexpectedTag(current, stops)

		default:
			return nil, nil, p.unexpectedTag(current, stops)
		}
	}

	if len(stops) > 0 {
		return nil, nil, nil
	}
	return body, nil, nil
}

func (p *ControlParser) unexpectedTag(token Token, stops []string) error {
	if len(stops) == 0 {
		return NewSyntaxError(fmt.Sprintf("encountered unknown tag '%s'", token.Tag), token.Line)
	}
	quoted := make([]string, len(stops))
	for i, s := range stops {
		quoted[i] = "'" + s + "'"
	}
	return NewSyntaxError(fmt.Sprintf("encountered unknown tag '%s', expected %s", token.Tag, strings.Join(quoted, " or ")), token.Line)
}

func unclosed(opener Token, end string) error {
	return NewSyntaxError(fmt.Sprintf("unexpected end of template, expected '%s' to close '%s' block", end, opener.Tag), opener.Line)
}

func (p *ControlParser) parseIf() (*IfNode, error) {
	opener := p.current()
	if opener.Value == "" {
		return nil, NewSyntaxError("expected an expression after 'if'", opener.Line)
	}
	condition, err := p.parseExpression(opener.Value, opener.Line)
	if err != nil {
		return nil, err
	}
	p.advance()

	ifNode := &IfNode{Condition: condition, Source: opener.Value, Line: opener.Line}

	body, stop, err := p.parseBodyUntil("elif", "else", "endif")
	if err != nil {
		return nil, err
	}
	if stop == nil {
		return nil, unclosed(opener, "endif")
	}
	ifNode.ThenBody = body

	for stop.Type == TokenElif {
		elifToken := *stop
		cond, err := p.parseExpression(elifToken.Value, elifToken.Line)
		if err != nil {
			return nil, err
		}
		body, stop, err = p.parseBodyUntil("elif", "else", "endif")
		if err != nil {
			return nil, err
		}
		if stop == nil {
			return nil, unclosed(opener, "endif")
		}
		ifNode.ElsIfs = append(ifNode.ElsIfs, &ElsIfNode{Condition: cond, Source: elifToken.Value, Line: elifToken.Line, Body: body})
	}

	if stop.Type == TokenElse {
		body, stop, err = p.parseBodyUntil("endif")
		if err != nil {
			return nil, err
		}
		if stop == nil {
			return nil, unclosed(opener, "endif")
		}
		ifNode.ElseBody = body
	}

	return ifNode, nil
}

func (p *ControlParser) parseFor() (*ForNode, error) {
	opener := p.current()
	forNode, err := p.parseForSyntax(opener.Value, opener.Line)
	if err != nil {
		return nil, err
	}
	p.advance()

	body, stop, err := p.parseBodyUntil("else", "endfor")
	if err != nil {
		return nil, err
	}
	if stop == nil {
		return nil, unclosed(opener, "endfor")
	}
	forNode.Body = body

	if stop.Type == TokenElse {
		body, stop, err = p.parseBodyUntil("endfor")
		if err != nil {
			return nil, err
		}
		if stop == nil {
			return nil, unclosed(opener, "endfor")
		}
		forNode.ElseBody = body
	}

	return forNode, nil
}

// parseForSyntax parses "a[, b] in collection [if filter]"
func (p *ControlParser) parseForSyntax(source string, line int) (*ForNode, error) {
	parser, err := newExpressionParser(source, p.filterKnown())
	if err != nil {
		return nil, NewSyntaxError(err.Error(), line)
	}

	targets, err := parseTargets(parser)
	if err != nil {
		return nil, NewSyntaxError(err.Error(), line)
	}
	if !parser.isKeyword("in") {
		return nil, NewSyntaxError("invalid for loop syntax: missing 'in' keyword", line)
	}
	parser.advance()

	collection, err := parser.parseTuple(false)
	if err != nil {
		return nil, NewSyntaxError(err.Error(), line)
	}

	node := &ForNode{Targets: targets, Collection: collection, Source: source, Line: line}
	if parser.isKeyword("if") {
		parser.advance()
		node.Filter, err = parser.parseConditional()
		if err != nil {
			return nil, NewSyntaxError(err.Error(), line)
		}
	}
	if err := parser.expectEOF(); err != nil {
		return nil, NewSyntaxError(err.Error(), line)
	}
	return node, nil
}

// parseTargets reads assignment targets: a | a, b | (a, b)
func parseTargets(p *ExpressionParser) ([]string, error) {
	parens := false
	if p.current().Type == ExprTokenLeftParen {
		parens = true
		p.advance()
	}

	var names []string
	for {
		token := p.current()
		if token.Type != ExprTokenIdentifier || keywords[token.Value] {
			return nil, p.unexpected("a variable name")
		}
		names = append(names, token.Value)
		p.advance()
		if p.current().Type != ExprTokenComma {
			break
		}
		p.advance()
		if parens && p.current().Type == ExprTokenRightParen {
			break
		}
	}

	if parens {
		if err := p.expect(ExprTokenRightParen, "')'"); err != nil {
			return nil, err
		}
	}
	return names, nil
}

func (p *ControlParser) parseSet() (*SetNode, error) {
	opener := p.current()
	parser, err := newExpressionParser(opener.Value, p.filterKnown())
	if err != nil {
		return nil, NewSyntaxError(err.Error(), opener.Line)
	}
	targets, err := parseTargets(parser)
	if err != nil {
		return nil, NewSyntaxError(err.Error(), opener.Line)
	}
	p.advance()

	if parser.current().Type == ExprTokenEOF {
		if len(targets) != 1 {
			return nil, NewSyntaxError("block assignment takes exactly one target", opener.Line)
		}
		body, stop, err := p.parseBodyUntil("endset")
		if err != nil {
			return nil, err
		}
		if stop == nil {
			return nil, unclosed(opener, "endset")
		}
		return &SetNode{Targets: targets, Body: body, Source: opener.Value, Line: opener.Line}, nil
	}

	if !parser.isOperator("=") {
		return nil, NewSyntaxError(parser.unexpected("'='").Error(), opener.Line)
	}
	parser.advance()

	value, err := parser.parseTuple(true)
	if err != nil {
		return nil, NewSyntaxError(err.Error(), opener.Line)
	}
	if err := parser.expectEOF(); err != nil {
		return nil, NewSyntaxError(err.Error(), opener.Line)
	}
	return &SetNode{Targets: targets, Value: value, Source: opener.Value, Line: opener.Line}, nil
}

func (p *ControlParser) parseBlockTag(opener Token, end string) (*BlockTagNode, error) {
	if opener.Value != "" {
		return nil, NewSyntaxError(fmt.Sprintf("tag '%s' takes no arguments, got %q", opener.Tag, opener.Value), opener.Line)
	}
	p.advance()

	body, stop, err := p.parseBodyUntil(end)
	if err != nil {
		return nil, err
	}
	if stop == nil {
		return nil, unclosed(opener, end)
	}
	if stop.Value != "" {
		return nil, NewSyntaxError(fmt.Sprintf("tag '%s' takes no arguments, got %q", end, stop.Value), stop.Line)
	}
	return &BlockTagNode{Tag: opener.Tag, Line: opener.Line, Body: body}, nil
}
