package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ExpressionNode represents a node in the expression AST
type ExpressionNode interface {
	String() string
	Evaluate(ctx *Context) (interface{}, error)
}

// LiteralNode represents a literal value (string, number, boolean, none)
type LiteralNode struct {
	Value interface{}
}

func (n *LiteralNode) String() string {
	if str, ok := n.Value.(string); ok {
		return fmt.Sprintf("Literal(%q)", str)
	}
	return fmt.Sprintf("Literal(%s)", Repr(n.Value))
}

func (n *LiteralNode) Evaluate(ctx *Context) (interface{}, error) {
	return n.Value, nil
}

// VariableNode represents a variable reference
type VariableNode struct {
	Name string
}

func (n *VariableNode) String() string {
	return fmt.Sprintf("Variable(%s)", n.Name)
}

func (n *VariableNode) Evaluate(ctx *Context) (interface{}, error) {
	return ctx.Resolve(n.Name)
}

// ListNode is a list literal: [a, b]
type ListNode struct {
	Items []ExpressionNode
}

func (n *ListNode) String() string {
	return fmt.Sprintf("List(%s)", joinNodes(n.Items))
}

func (n *ListNode) Evaluate(ctx *Context) (interface{}, error) {
	items, err := evaluateAll(ctx, n.Items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// TupleNode is a tuple literal: (a, b) or a bare a, b
type TupleNode struct {
	Items []ExpressionNode
}

func (n *TupleNode) String() string {
	return fmt.Sprintf("Tuple(%s)", joinNodes(n.Items))
}

func (n *TupleNode) Evaluate(ctx *Context) (interface{}, error) {
	items, err := evaluateAll(ctx, n.Items)
	if err != nil {
		return nil, err
	}
	return Tuple(items), nil
}

// DictNode is a dict literal: {'a': 1}. Keys must evaluate to strings.
type DictNode struct {
	Keys   []ExpressionNode
	Values []ExpressionNode
}

func (n *DictNode) String() string {
	parts := make([]string, len(n.Keys))
	for i := range n.Keys {
		parts[i] = n.Keys[i].String() + ": " + n.Values[i].String()
	}
	return fmt.Sprintf("Dict(%s)", strings.Join(parts, ", "))
}

func (n *DictNode) Evaluate(ctx *Context) (interface{}, error) {
	dict := make(map[string]interface{}, len(n.Keys))
	for i, keyNode := range n.Keys {
		key, err := keyNode.Evaluate(ctx)
		if err != nil {
			return nil, err
		}
		name, ok := key.(string)
		if !ok {
			return nil, errors.Newf("dict keys must be strings, got %s", pyTypeName(key))
		}
		value, err := n.Values[i].Evaluate(ctx)
		if err != nil {
			return nil, err
		}
		dict[name] = value
	}
	return dict, nil
}

// SplatNode unpacks a sequence into positional call arguments: f(*items)
type SplatNode struct {
	Value ExpressionNode
}

func (n *SplatNode) String() string {
	return fmt.Sprintf("Splat(%s)", n.Value.String())
}

func (n *SplatNode) Evaluate(ctx *Context) (interface{}, error) {
	return nil, errors.New("starred expression is only allowed as a call argument")
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Left     ExpressionNode
	Operator string
	Right    ExpressionNode
}

func (n *BinaryOpNode) String() string {
	return fmt.Sprintf("BinaryOp(%s %s %s)", n.Left.String(), n.Operator, n.Right.String())
}

func (n *BinaryOpNode) Evaluate(ctx *Context) (interface{}, error) {
	leftVal, err := n.Left.Evaluate(ctx)
	if err != nil {
		return nil, err
	}

	// and/or short-circuit and yield an operand, not a bool
	switch n.Operator {
	case "and":
		if !isTruthy(leftVal) {
			return leftVal, nil
		}
		return n.Right.Evaluate(ctx)
	case "or":
		if isTruthy(leftVal) {
			return leftVal, nil
		}
		return n.Right.Evaluate(ctx)
	}

	rightVal, err := n.Right.Evaluate(ctx)
	if err != nil {
		return nil, err
	}

	return EvaluateBinaryOperation(leftVal, n.Operator, rightVal)
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Operator string
	Operand  ExpressionNode
}

func (n *UnaryOpNode) String() string {
	return fmt.Sprintf("UnaryOp(%s %s)", n.Operator, n.Operand.String())
}

func (n *UnaryOpNode) Evaluate(ctx *Context) (interface{}, error) {
	operandVal, err := n.Operand.Evaluate(ctx)
	if err != nil {
		return nil, err
	}

	switch n.Operator {
	case "not":
		return !isTruthy(operandVal), nil
	case "-":
		return evaluateUnaryMinus(operandVal)
	case "+":
		return evaluateUnaryPlus(operandVal)
	default:
		return nil, errors.Newf("unknown unary operator: %s", n.Operator)
	}
}

// CompareOp is one link of a comparison chain.
type CompareOp struct {
	Operator string
	Right    ExpressionNode
}

// CompareNode is a comparison chain: a < b <= c is (a < b) and (b <= c).
type CompareNode struct {
	Left ExpressionNode
	Ops  []CompareOp
}

func (n *CompareNode) String() string {
	parts := []string{n.Left.String()}
	for _, op := range n.Ops {
		parts = append(parts, op.Operator, op.Right.String())
	}
	return fmt.Sprintf("Compare(%s)", strings.Join(parts, " "))
}

func (n *CompareNode) Evaluate(ctx *Context) (interface{}, error) {
	left, err := n.Left.Evaluate(ctx)
	if err != nil {
		return nil, err
	}
	for _, op := range n.Ops {
		right, err := op.Right.Evaluate(ctx)
		if err != nil {
			return nil, err
		}
		ok, err := compareValues(left, op.Operator, right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
		left = right
	}
	return true, nil
}

// ConditionalNode is an inline if: a if cond else b
type ConditionalNode struct {
	Condition ExpressionNode
	Then      ExpressionNode
	Else      ExpressionNode
}

func (n *ConditionalNode) String() string {
	if n.Else == nil {
		return fmt.Sprintf("Conditional(%s if %s)", n.Then.String(), n.Condition.String())
	}
	return fmt.Sprintf("Conditional(%s if %s else %s)", n.Then.String(), n.Condition.String(), n.Else.String())
}

func (n *ConditionalNode) Evaluate(ctx *Context) (interface{}, error) {
	cond, err := n.Condition.Evaluate(ctx)
	if err != nil {
		return nil, err
	}
	if isTruthy(cond) {
		return n.Then.Evaluate(ctx)
	}
	if n.Else == nil {
		return Undefined{Name: "inline if"}, nil
	}
	return n.Else.Evaluate(ctx)
}

// FieldAccessNode represents field access (obj.field)
type FieldAccessNode struct {
	Object ExpressionNode
	Field  string
}

func (n *FieldAccessNode) String() string {
	return fmt.Sprintf("FieldAccess(%s.%s)", n.Object.String(), n.Field)
}

func (n *FieldAccessNode) Evaluate(ctx *Context) (interface{}, error) {
	obj, err := n.Object.Evaluate(ctx)
	if err != nil {
		return nil, err
	}
	return getAttribute(ctx, obj, n.Field)
}

// IndexAccessNode represents index access (obj[index])
type IndexAccessNode struct {
	Object ExpressionNode
	Index  ExpressionNode
}

func (n *IndexAccessNode) String() string {
	return fmt.Sprintf("IndexAccess(%s[%s])", n.Object.String(), n.Index.String())
}

func (n *IndexAccessNode) Evaluate(ctx *Context) (interface{}, error) {
	obj, err := n.Object.Evaluate(ctx)
	if err != nil {
		return nil, err
	}

	indexVal, err := n.Index.Evaluate(ctx)
	if err != nil {
		return nil, err
	}

	return getItem(ctx, obj, indexVal)
}

// SliceNode represents obj[start:stop]
type SliceNode struct {
	Object ExpressionNode
	Start  ExpressionNode
	Stop   ExpressionNode
}

func (n *SliceNode) String() string {
	bound := func(e ExpressionNode) string {
		if e == nil {
			return ""
		}
		return e.String()
	}
	return fmt.Sprintf("Slice(%s[%s:%s])", n.Object.String(), bound(n.Start), bound(n.Stop))
}

func (n *SliceNode) Evaluate(ctx *Context) (interface{}, error) {
	obj, err := n.Object.Evaluate(ctx)
	if err != nil {
		return nil, err
	}
	bound := func(e ExpressionNode) (*int, error) {
		if e == nil {
			return nil, nil
		}
		v, err := e.Evaluate(ctx)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		i, ok := toInt(v)
		if !ok {
			return nil, errors.Newf("slice indices must be integers, got %s", pyTypeName(v))
		}
		return &i, nil
	}
	start, err := bound(n.Start)
	if err != nil {
		return nil, err
	}
	stop, err := bound(n.Stop)
	if err != nil {
		return nil, err
	}
	return sliceValue(obj, start, stop)
}

// KeywordArg is a name=value argument in a call or filter.
type KeywordArg struct {
	Name  string
	Value ExpressionNode
}

// FunctionCallNode represents a function call
type FunctionCallNode struct {
	Name   string
	Args   []ExpressionNode
	Kwargs []KeywordArg
}

func (n *FunctionCallNode) String() string {
	return fmt.Sprintf("FunctionCall(%s, [%s])", n.Name, joinArgs(n.Args, n.Kwargs))
}

func (n *FunctionCallNode) Evaluate(ctx *Context) (interface{}, error) {
	fn, ok := ctx.lookupFunction(n.Name)
	if !ok {
		return nil, &UndefinedError{Name: n.Name}
	}

	args, kwargs, err := evaluateArgs(ctx, n.Args, n.Kwargs)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to evaluate arguments for function %s", n.Name)
	}

	return invokeFunction(fn, args, kwargs)
}

// FilterNode applies a registered filter: target | name(args)
type FilterNode struct {
	Target ExpressionNode
	Name   string
	Args   []ExpressionNode
	Kwargs []KeywordArg
}

func (n *FilterNode) String() string {
	return fmt.Sprintf("Filter(%s | %s, [%s])", n.Target.String(), n.Name, joinArgs(n.Args, n.Kwargs))
}

func (n *FilterNode) Evaluate(ctx *Context) (interface{}, error) {
	fn, ok := ctx.env.lookupFilter(n.Name)
	if !ok {
		return nil, errors.Newf("no filter named '%s'", n.Name)
	}

	value, err := n.Target.Evaluate(ctx)
	if err != nil {
		return nil, err
	}

	args, kwargs, err := evaluateArgs(ctx, n.Args, n.Kwargs)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to evaluate arguments for filter %s", n.Name)
	}

	return invokeFunction(fn, append([]interface{}{value}, args...), kwargs)
}

// TestNode is an `is` test: target is [not] name(args)
type TestNode struct {
	Target  ExpressionNode
	Name    string
	Args    []ExpressionNode
	Negated bool
}

func (n *TestNode) String() string {
	op := "is"
	if n.Negated {
		op = "is not"
	}
	return fmt.Sprintf("Test(%s %s %s, [%s])", n.Target.String(), op, n.Name, joinNodes(n.Args))
}

func (n *TestNode) Evaluate(ctx *Context) (interface{}, error) {
	test, ok := builtinTests[n.Name]
	if !ok {
		return nil, errors.Newf("no test named '%s'", n.Name)
	}

	var value interface{}
	if v, isVar := n.Target.(*VariableNode); isVar && (n.Name == "defined" || n.Name == "undefined") {
		// existence tests must not trip strict undefined handling
		if found, ok := ctx.lookup(v.Name); ok {
			value = found
		} else {
			value = Undefined{Name: v.Name}
		}
	} else {
		var err error
		value, err = n.Target.Evaluate(ctx)
		if err != nil {
			return nil, err
		}
	}

	args, err := evaluateAll(ctx, n.Args)
	if err != nil {
		return nil, err
	}

	result, err := test(value, args...)
	if err != nil {
		return nil, err
	}
	return result != n.Negated, nil
}

func joinNodes(nodes []ExpressionNode) string {
	parts := make([]string, len(nodes))
	for i, node := range nodes {
		parts[i] = node.String()
	}
	return strings.Join(parts, ", ")
}

func joinArgs(args []ExpressionNode, kwargs []KeywordArg) string {
	s := joinNodes(args)
	for _, kw := range kwargs {
		if s != "" {
			s += ", "
		}
		s += kw.Name + "=" + kw.Value.String()
	}
	return s
}

func evaluateAll(ctx *Context, nodes []ExpressionNode) ([]interface{}, error) {
	values := make([]interface{}, 0, len(nodes))
	for _, node := range nodes {
		if splat, ok := node.(*SplatNode); ok {
			v, err := splat.Value.Evaluate(ctx)
			if err != nil {
				return nil, err
			}
			items, err := ToSlice(v)
			if err != nil {
				return nil, errors.Wrap(err, "argument after * must be iterable")
			}
			values = append(values, items...)
			continue
		}
		v, err := node.Evaluate(ctx)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func evaluateArgs(ctx *Context, args []ExpressionNode, kwargs []KeywordArg) ([]interface{}, map[string]interface{}, error) {
	values, err := evaluateAll(ctx, args)
	if err != nil {
		return nil, nil, err
	}
	if len(kwargs) == 0 {
		return values, nil, nil
	}
	named := make(map[string]interface{}, len(kwargs))
	for _, kw := range kwargs {
		v, err := kw.Value.Evaluate(ctx)
		if err != nil {
			return nil, nil, err
		}
		named[kw.Name] = v
	}
	return values, named, nil
}

// ExpressionToken represents a token in an expression
type ExpressionToken struct {
	Type  ExpressionTokenType
	Value string
	Pos   int
}

type ExpressionTokenType int

const (
	ExprTokenIdentifier ExpressionTokenType = iota
	ExprTokenNumber
	ExprTokenString
	ExprTokenOperator
	ExprTokenLeftParen
	ExprTokenRightParen
	ExprTokenLeftBracket
	ExprTokenRightBracket
	ExprTokenComma
	ExprTokenDot
	ExprTokenColon
	ExprTokenLeftBrace
	ExprTokenRightBrace
	ExprTokenEOF
)

var (
	identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*`)
	numberRegex     = regexp.MustCompile(`^[0-9][0-9_]*(\.[0-9][0-9_]*)?([eE][+-]?[0-9]+)?`)
	operatorRegex   = regexp.MustCompile(`^(\*\*|//|==|!=|<=|>=|\+|-|\*|/|%|~|<|>|=|\|)`)
)

var punctuation = map[byte]ExpressionTokenType{
	'(': ExprTokenLeftParen,
	')': ExprTokenRightParen,
	'[': ExprTokenLeftBracket,
	']': ExprTokenRightBracket,
	',': ExprTokenComma,
	'.': ExprTokenDot,
	':': ExprTokenColon,
	'{': ExprTokenLeftBrace,
	'}': ExprTokenRightBrace,
}

// keywords never resolve as variable names
var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true, "if": true, "else": true,
}

// TokenizeExpression tokenizes an expression string
func TokenizeExpression(expr string) ([]ExpressionToken, error) {
	var tokens []ExpressionToken
	pos := 0

	for pos < len(expr) {
		switch expr[pos] {
		case ' ', '\t', '\n', '\r':
			pos++
			continue
		}

		remaining := expr[pos:]

		if match := identifierRegex.FindString(remaining); match != "" {
			tokens = append(tokens, ExpressionToken{Type: ExprTokenIdentifier, Value: match, Pos: pos})
			pos += len(match)
			continue
		}

		if match := numberRegex.FindString(remaining); match != "" {
			tokens = append(tokens, ExpressionToken{Type: ExprTokenNumber, Value: match, Pos: pos})
			pos += len(match)
			continue
		}

		if c := expr[pos]; c == '"' || c == '\'' {
			value, n, err := scanString(remaining)
			if err != nil {
				return nil, errors.Wrapf(err, "at position %d", pos)
			}
			tokens = append(tokens, ExpressionToken{Type: ExprTokenString, Value: value, Pos: pos})
			pos += n
			continue
		}

		if match := operatorRegex.FindString(remaining); match != "" {
			tokens = append(tokens, ExpressionToken{Type: ExprTokenOperator, Value: match, Pos: pos})
			pos += len(match)
			continue
		}

		if typ, ok := punctuation[expr[pos]]; ok {
			tokens = append(tokens, ExpressionToken{Type: typ, Value: string(expr[pos]), Pos: pos})
			pos++
			continue
		}

		return nil, errors.Newf("unexpected character '%c' at position %d", expr[pos], pos)
	}

	tokens = append(tokens, ExpressionToken{Type: ExprTokenEOF, Pos: pos})
	return tokens, nil
}

// scanString reads a quoted string literal at the start of s and returns
// its unescaped value and the number of bytes consumed.
func scanString(s string) (string, int, error) {
	quote := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == quote:
			return b.String(), i + 1, nil
		case c == '\\' && i+1 < len(s):
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '\'', '"':
				b.WriteByte(s[i])
			default:
				b.WriteByte('\\')
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, errors.New("unterminated string literal")
}

// ParseExpression parses an expression string into an AST. The whole input
// must be consumed; a top-level comma list becomes a tuple.
func ParseExpression(expr string) (ExpressionNode, error) {
	return parseExpressionWith(expr, nil)
}

func parseExpressionWith(expr string, filterKnown func(string) bool) (ExpressionNode, error) {
	parser, err := newExpressionParser(expr, filterKnown)
	if err != nil {
		return nil, err
	}

	node, err := parser.parseTuple(true)
	if err != nil {
		return nil, err
	}

	if err := parser.expectEOF(); err != nil {
		return nil, err
	}

	return node, nil
}

// ExpressionParser parses expressions into AST nodes
type ExpressionParser struct {
	tokens []ExpressionToken
	pos    int
	// filterKnown reports whether a filter name is registered; nil accepts all.
	filterKnown func(string) bool
}

func newExpressionParser(expr string, filterKnown func(string) bool) (*ExpressionParser, error) {
	tokens, err := TokenizeExpression(expr)
	if err != nil {
		return nil, err
	}
	return &ExpressionParser{tokens: tokens, filterKnown: filterKnown}, nil
}

func (p *ExpressionParser) current() ExpressionToken {
	if p.pos >= len(p.tokens) {
		return ExpressionToken{Type: ExprTokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *ExpressionParser) peek() ExpressionToken {
	if p.pos+1 >= len(p.tokens) {
		return ExpressionToken{Type: ExprTokenEOF}
	}
	return p.tokens[p.pos+1]
}

func (p *ExpressionParser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *ExpressionParser) isKeyword(name string) bool {
	t := p.current()
	return t.Type == ExprTokenIdentifier && t.Value == name
}

func (p *ExpressionParser) isOperator(ops ...string) bool {
	t := p.current()
	if t.Type != ExprTokenOperator {
		return false
	}
	for _, op := range ops {
		if t.Value == op {
			return true
		}
	}
	return false
}

func (p *ExpressionParser) expect(typ ExpressionTokenType, what string) error {
	if p.current().Type != typ {
		return p.unexpected(what)
	}
	p.advance()
	return nil
}

func (p *ExpressionParser) expectEOF() error {
	if p.current().Type != ExprTokenEOF {
		token := p.current()
		return errors.Newf("unexpected trailing token %q at position %d", token.Value, token.Pos)
	}
	return nil
}

func (p *ExpressionParser) unexpected(expected string) error {
	token := p.current()
	if token.Type == ExprTokenEOF {
		return errors.Newf("unexpected end of expression, expected %s", expected)
	}
	return errors.Newf("unexpected %q at position %d, expected %s", token.Value, token.Pos, expected)
}

// parseTuple parses a comma separated list; a single item without a
// trailing comma is returned as is.
func (p *ExpressionParser) parseTuple(withCondition bool) (ExpressionNode, error) {
	parse := p.parseConditional
	if !withCondition {
		parse = p.parseOr
	}

	first, err := parse()
	if err != nil {
		return nil, err
	}
	if p.current().Type != ExprTokenComma {
		return first, nil
	}

	items := []ExpressionNode{first}
	for p.current().Type == ExprTokenComma {
		p.advance()
		if p.atTupleEnd() {
			break
		}
		item, err := parse()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return &TupleNode{Items: items}, nil
}

func (p *ExpressionParser) atTupleEnd() bool {
	switch p.current().Type {
	case ExprTokenEOF, ExprTokenRightParen, ExprTokenRightBracket, ExprTokenRightBrace:
		return true
	}
	return p.isOperator("=") || p.isKeyword("if") || p.isKeyword("in")
}

// parseConditional parses inline if expressions (lowest precedence)
func (p *ExpressionParser) parseConditional() (ExpressionNode, error) {
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	for p.isKeyword("if") {
		p.advance()
		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		node := &ConditionalNode{Condition: cond, Then: expr}
		if p.isKeyword("else") {
			p.advance()
			node.Else, err = p.parseConditional()
			if err != nil {
				return nil, err
			}
		}
		expr = node
	}

	return expr, nil
}

func (p *ExpressionParser) parseOr() (ExpressionNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.isKeyword("or") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: "or", Right: right}
	}

	return left, nil
}

func (p *ExpressionParser) parseAnd() (ExpressionNode, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.isKeyword("and") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: "and", Right: right}
	}

	return left, nil
}

func (p *ExpressionParser) parseNot() (ExpressionNode, error) {
	if p.isKeyword("not") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryOpNode{Operator: "not", Operand: operand}, nil
	}
	return p.parseCompare()
}

// parseCompare parses ==, !=, <, >, <=, >=, in and not in chains
func (p *ExpressionParser) parseCompare() (ExpressionNode, error) {
	left, err := p.parseMath1()
	if err != nil {
		return nil, err
	}

	var ops []CompareOp
	for {
		var op string
		switch {
		case p.isOperator("==", "!=", "<", ">", "<=", ">="):
			op = p.current().Value
			p.advance()
		case p.isKeyword("in"):
			op = "in"
			p.advance()
		case p.isKeyword("not") && p.peek().Type == ExprTokenIdentifier && p.peek().Value == "in":
			op = "not in"
			p.advance()
			p.advance()
		}
		if op == "" {
			break
		}
		right, err := p.parseMath1()
		if err != nil {
			return nil, err
		}
		ops = append(ops, CompareOp{Operator: op, Right: right})
	}

	if len(ops) == 0 {
		return left, nil
	}
	return &CompareNode{Left: left, Ops: ops}, nil
}

// parseMath1 parses addition and subtraction
func (p *ExpressionParser) parseMath1() (ExpressionNode, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}

	for p.isOperator("+", "-") {
		op := p.current().Value
		p.advance()
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: op, Right: right}
	}

	return left, nil
}

// parseConcat parses ~ string concatenation
func (p *ExpressionParser) parseConcat() (ExpressionNode, error) {
	left, err := p.parseMath2()
	if err != nil {
		return nil, err
	}

	for p.isOperator("~") {
		p.advance()
		right, err := p.parseMath2()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: "~", Right: right}
	}

	return left, nil
}

// parseMath2 parses multiplication, division, floor division and modulo
func (p *ExpressionParser) parseMath2() (ExpressionNode, error) {
	left, err := p.parsePow()
	if err != nil {
		return nil, err
	}

	for p.isOperator("*", "/", "//", "%") {
		op := p.current().Value
		p.advance()
		right, err := p.parsePow()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: op, Right: right}
	}

	return left, nil
}

func (p *ExpressionParser) parsePow() (ExpressionNode, error) {
	left, err := p.parseUnary(true)
	if err != nil {
		return nil, err
	}

	for p.isOperator("**") {
		p.advance()
		right, err := p.parseUnary(true)
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: "**", Right: right}
	}

	return left, nil
}

// parseUnary parses -x and +x, then postfix access, then filters and tests
func (p *ExpressionParser) parseUnary(withFilter bool) (ExpressionNode, error) {
	var node ExpressionNode
	if p.isOperator("-", "+") {
		op := p.current().Value
		p.advance()
		operand, err := p.parseUnary(false)
		if err != nil {
			return nil, err
		}
		node = &UnaryOpNode{Operator: op, Operand: operand}
	} else {
		primary, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		node, err = p.parsePostfix(primary)
		if err != nil {
			return nil, err
		}
	}

	if withFilter {
		return p.parseFilterExpr(node)
	}
	return node, nil
}

// parsePostfix parses field access, subscripts and calls
func (p *ExpressionParser) parsePostfix(node ExpressionNode) (ExpressionNode, error) {
	for {
		switch p.current().Type {
		case ExprTokenDot:
			p.advance()
			token := p.current()
			switch token.Type {
			case ExprTokenIdentifier:
				p.advance()
				node = &FieldAccessNode{Object: node, Field: token.Value}
			case ExprTokenNumber:
				idx, err := strconv.Atoi(token.Value)
				if err != nil {
					return nil, errors.Newf("invalid attribute index %q", token.Value)
				}
				p.advance()
				node = &IndexAccessNode{Object: node, Index: &LiteralNode{Value: idx}}
			default:
				return nil, p.unexpected("attribute name after '.'")
			}

		case ExprTokenLeftBracket:
			p.advance()
			subscript, err := p.parseSubscript(node)
			if err != nil {
				return nil, err
			}
			node = subscript

		case ExprTokenLeftParen:
			v, ok := node.(*VariableNode)
			if !ok {
				return nil, errors.Newf("only named functions can be called, got %s", node.String())
			}
			call, err := p.parseCall(v.Name)
			if err != nil {
				return nil, err
			}
			node = call

		default:
			return node, nil
		}
	}
}

func (p *ExpressionParser) parseSubscript(object ExpressionNode) (ExpressionNode, error) {
	var start ExpressionNode
	var err error
	if p.current().Type != ExprTokenColon {
		start, err = p.parseTuple(true)
		if err != nil {
			return nil, err
		}
	}

	if p.current().Type != ExprTokenColon {
		if err := p.expect(ExprTokenRightBracket, "']'"); err != nil {
			return nil, err
		}
		return &IndexAccessNode{Object: object, Index: start}, nil
	}

	p.advance() // consume ':'
	var stop ExpressionNode
	if p.current().Type != ExprTokenRightBracket {
		stop, err = p.parseConditional()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expect(ExprTokenRightBracket, "']'"); err != nil {
		return nil, err
	}
	return &SliceNode{Object: object, Start: start, Stop: stop}, nil
}

// parseArgs parses a parenthesized argument list; the '(' is current.
func (p *ExpressionParser) parseArgs() ([]ExpressionNode, []KeywordArg, error) {
	if err := p.expect(ExprTokenLeftParen, "'('"); err != nil {
		return nil, nil, err
	}

	var args []ExpressionNode
	var kwargs []KeywordArg

	for p.current().Type != ExprTokenRightParen {
		if len(args)+len(kwargs) > 0 {
			if err := p.expect(ExprTokenComma, "',' or ')'"); err != nil {
				return nil, nil, err
			}
			if p.current().Type == ExprTokenRightParen {
				break
			}
		}

		if p.current().Type == ExprTokenIdentifier && p.peek().Type == ExprTokenOperator && p.peek().Value == "=" {
			name := p.current().Value
			p.advance()
			p.advance()
			value, err := p.parseConditional()
			if err != nil {
				return nil, nil, err
			}
			kwargs = append(kwargs, KeywordArg{Name: name, Value: value})
			continue
		}

		if len(kwargs) > 0 {
			return nil, nil, errors.New("positional argument follows keyword argument")
		}
		splat := p.isOperator("*")
		if splat {
			p.advance()
		}
		arg, err := p.parseConditional()
		if err != nil {
			return nil, nil, err
		}
		if splat {
			arg = &SplatNode{Value: arg}
		}
		args = append(args, arg)
	}

	p.advance() // consume ')'
	return args, kwargs, nil
}

func (p *ExpressionParser) parseCall(name string) (ExpressionNode, error) {
	args, kwargs, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	return &FunctionCallNode{Name: name, Args: args, Kwargs: kwargs}, nil
}

// parseFilterExpr parses trailing `| filter` and `is test` suffixes
func (p *ExpressionParser) parseFilterExpr(node ExpressionNode) (ExpressionNode, error) {
	for {
		switch {
		case p.isOperator("|"):
			p.advance()
			token := p.current()
			if token.Type != ExprTokenIdentifier {
				return nil, p.unexpected("filter name")
			}
			p.advance()
			if p.filterKnown != nil && !p.filterKnown(token.Value) {
				return nil, errors.Newf("no filter named '%s'", token.Value)
			}
			filter := &FilterNode{Target: node, Name: token.Value}
			if p.current().Type == ExprTokenLeftParen {
				var err error
				filter.Args, filter.Kwargs, err = p.parseArgs()
				if err != nil {
					return nil, err
				}
			}
			node = filter

		case p.isKeyword("is"):
			p.advance()
			test := &TestNode{Target: node}
			if p.isKeyword("not") {
				test.Negated = true
				p.advance()
			}
			token := p.current()
			if token.Type != ExprTokenIdentifier {
				return nil, p.unexpected("test name")
			}
			p.advance()
			if _, ok := builtinTests[token.Value]; !ok {
				return nil, errors.Newf("no test named '%s'", token.Value)
			}
			test.Name = token.Value
			switch p.current().Type {
			case ExprTokenLeftParen:
				args, kwargs, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				if len(kwargs) > 0 {
					return nil, errors.Newf("test '%s' does not take keyword arguments", test.Name)
				}
				test.Args = args
			case ExprTokenNumber, ExprTokenString:
				arg, err := p.parsePrimary()
				if err != nil {
					return nil, err
				}
				test.Args = []ExpressionNode{arg}
			}
			node = test

		default:
			return node, nil
		}
	}
}

// parsePrimary parses literals, names, and parenthesized or bracketed groups
func (p *ExpressionParser) parsePrimary() (ExpressionNode, error) {
	token := p.current()

	switch token.Type {
	case ExprTokenNumber:
		p.advance()
		return parseNumber(token.Value)

	case ExprTokenString:
		p.advance()
		value := token.Value
		// adjacent literals concatenate
		for p.current().Type == ExprTokenString {
			value += p.current().Value
			p.advance()
		}
		return &LiteralNode{Value: value}, nil

	case ExprTokenIdentifier:
		switch token.Value {
		case "true", "True":
			p.advance()
			return &LiteralNode{Value: true}, nil
		case "false", "False":
			p.advance()
			return &LiteralNode{Value: false}, nil
		case "none", "None":
			p.advance()
			return &LiteralNode{Value: nil}, nil
		}
		if keywords[token.Value] {
			return nil, p.unexpected("an expression")
		}
		p.advance()
		return &VariableNode{Name: token.Value}, nil

	case ExprTokenLeftParen:
		p.advance()
		if p.current().Type == ExprTokenRightParen {
			p.advance()
			return &TupleNode{}, nil
		}
		expr, err := p.parseTuple(true)
		if err != nil {
			return nil, err
		}
		if err := p.expect(ExprTokenRightParen, "')'"); err != nil {
			return nil, err
		}
		return expr, nil

	case ExprTokenLeftBracket:
		p.advance()
		list := &ListNode{}
		for p.current().Type != ExprTokenRightBracket {
			if len(list.Items) > 0 {
				if err := p.expect(ExprTokenComma, "',' or ']'"); err != nil {
					return nil, err
				}
				if p.current().Type == ExprTokenRightBracket {
					break
				}
			}
			item, err := p.parseConditional()
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, item)
		}
		p.advance() // consume ']'
		return list, nil

	case ExprTokenLeftBrace:
		p.advance()
		dict := &DictNode{}
		for p.current().Type != ExprTokenRightBrace {
			if len(dict.Keys) > 0 {
				if err := p.expect(ExprTokenComma, "',' or '}'"); err != nil {
					return nil, err
				}
				if p.current().Type == ExprTokenRightBrace {
					break
				}
			}
			key, err := p.parseConditional()
			if err != nil {
				return nil, err
			}
			if err := p.expect(ExprTokenColon, "':'"); err != nil {
				return nil, err
			}
			value, err := p.parseConditional()
			if err != nil {
				return nil, err
			}
			dict.Keys = append(dict.Keys, key)
			dict.Values = append(dict.Values, value)
		}
		p.advance() // consume '}'
		return dict, nil

	default:
		return nil, p.unexpected("an expression")
	}
}

func parseNumber(text string) (ExpressionNode, error) {
	clean := strings.ReplaceAll(text, "_", "")
	if !strings.ContainsAny(clean, ".eE") {
		if intVal, err := strconv.Atoi(clean); err == nil {
			return &LiteralNode{Value: intVal}, nil
		}
	}
	floatVal, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return nil, errors.Newf("invalid number: %s", text)
	}
	return &LiteralNode{Value: floatVal}, nil
}
