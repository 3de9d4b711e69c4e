package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/benjaminschreck/go-dynprompts/internal/logging"
)

// TokenType represents the type of a template token
type TokenType int

const (
	TokenText TokenType = iota
	TokenVariable
	TokenIf
	TokenElif
	TokenElse
	TokenEndIf
	TokenFor
	TokenEndFor
	TokenSet
	TokenEndSet
	// TokenTag is any other statement: registered block tags, their end
	// tags, or tags nobody knows about.
	TokenTag
)

func (t TokenType) String() string {
	switch t {
	case TokenText:
		return "text"
	case TokenVariable:
		return "variable"
	case TokenIf:
		return "if"
	case TokenElif:
		return "elif"
	case TokenElse:
		return "else"
	case TokenEndIf:
		return "endif"
	case TokenFor:
		return "for"
	case TokenEndFor:
		return "endfor"
	case TokenSet:
		return "set"
	case TokenEndSet:
		return "endset"
	case TokenTag:
		return "tag"
	default:
		return "unknown"
	}
}

// Token represents a parsed template token
type Token struct {
	Type TokenType
	// Tag is the statement keyword for {% %} tokens.
	Tag   string
	Value string
	Line  int
}

var (
	// start of any of {{, {% or {#
	tagStartRegex = regexp.MustCompile(`\{[{%#]`)
	tagNameRegex  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*`)
	endRawRegex   = regexp.MustCompile(`\{%([-+]?)\s*endraw\s*([-+]?)%\}`)
)

var statementTypes = map[string]TokenType{
	"if":     TokenIf,
	"elif":   TokenElif,
	"else":   TokenElse,
	"endif":  TokenEndIf,
	"for":    TokenFor,
	"endfor": TokenEndFor,
	"set":    TokenSet,
	"endset": TokenEndSet,
}

// Tokenize splits a template source into text, output and statement tokens.
// Comments are dropped and whitespace control markers are applied.
func Tokenize(input string) ([]Token, error) {
	logger := logging.GetLogger()
	if logger.IsDebugMode() {
		logger.WithField("input_length", len(input)).Debug("Starting tokenization")
	}

	input = strings.TrimSuffix(input, "\n")

	var tokens []Token
	pos := 0
	line := 1
	stripNext := false

	emitText := func(text string, textLine int) {
		if stripNext {
			text = strings.TrimLeft(text, " \t\r\n")
			stripNext = false
		}
		if text == "" {
			return
		}
		tokens = append(tokens, Token{Type: TokenText, Value: text, Line: textLine})
	}

	for pos < len(input) {
		loc := tagStartRegex.FindStringIndex(input[pos:])
		if loc == nil {
			emitText(input[pos:], line)
			break
		}

		start := pos + loc[0]
		text := input[pos:start]
		textLine := line
		line += strings.Count(text, "\n")

		kind := input[start+1]
		contentStart := start + 2
		if contentStart < len(input) && input[contentStart] == '-' {
			text = strings.TrimRight(text, " \t\r\n")
			contentStart++
		} else if contentStart < len(input) && input[contentStart] == '+' {
			contentStart++
		}
		emitText(text, textLine)

		closer := closingDelimiter(kind)
		end := findTagEnd(input, contentStart, closer, kind != '#')
		if end < 0 {
			return nil, NewSyntaxError(unclosedMessage(kind), line)
		}

		content := input[contentStart:end]
		if strings.HasSuffix(content, "-") {
			content = content[:len(content)-1]
			stripNext = true
		} else {
			stripNext = false
			content = strings.TrimSuffix(content, "+")
		}

		tagLine := line
		line += strings.Count(input[start:end+2], "\n")
		pos = end + 2

		switch kind {
		case '#':
			continue
		case '{':
			expr := strings.TrimSpace(content)
			if expr == "" {
				return nil, NewSyntaxError("expected an expression, got 'end of print statement'", tagLine)
			}
			tokens = append(tokens, Token{Type: TokenVariable, Value: expr, Line: tagLine})
		case '%':
			token, err := parseStatement(strings.TrimSpace(content), tagLine)
			if err != nil {
				return nil, err
			}
			if token.Tag == "raw" {
				// everything up to endraw is literal text
				loc := endRawRegex.FindStringSubmatchIndex(input[pos:])
				if loc == nil {
					return nil, NewSyntaxError("missing end of raw directive", tagLine)
				}
				raw := input[pos : pos+loc[0]]
				if input[pos+loc[2]:pos+loc[3]] == "-" {
					raw = strings.TrimRight(raw, " \t\r\n")
				}
				emitText(raw, line)
				stripNext = input[pos+loc[4]:pos+loc[5]] == "-"
				line += strings.Count(input[pos:pos+loc[1]], "\n")
				pos += loc[1]
				continue
			}
			tokens = append(tokens, token)
		}

		if logger.IsDebugMode() {
			last := tokens[len(tokens)-1]
			logger.WithFields(logging.Fields{
				"type":  last.Type.String(),
				"value": last.Value,
				"line":  last.Line,
			}).Debug("Found token")
		}
	}

	if logger.IsDebugMode() {
		logger.WithField("token_count", len(tokens)).Debug("Tokenization complete")
	}

	return tokens, nil
}

func closingDelimiter(kind byte) string {
	switch kind {
	case '{':
		return "}}"
	case '%':
		return "%}"
	default:
		return "#}"
	}
}

func unclosedMessage(kind byte) string {
	switch kind {
	case '{':
		return "unexpected end of template, expected end of print statement"
	case '%':
		return "unexpected end of template, expected end of statement block"
	default:
		return "missing end of comment tag"
	}
}

// findTagEnd returns the index of closer at or after from, skipping over
// quoted strings and balanced braces when quoted is set. It returns -1 if
// there is none.
func findTagEnd(input string, from int, closer string, quoted bool) int {
	var quote byte
	depth := 0
	for i := from; i < len(input); i++ {
		c := input[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		if quoted && (c == '"' || c == '\'') {
			quote = c
			continue
		}
		if depth == 0 && strings.HasPrefix(input[i:], closer) {
			return i
		}
		if quoted {
			switch {
			case c == '{':
				depth++
			case c == '}' && depth > 0:
				depth--
			}
		}
	}
	return -1
}

// parseStatement determines the type of a {% %} token from its content
func parseStatement(content string, line int) (Token, error) {
	name := tagNameRegex.FindString(content)
	if name == "" {
		return Token{}, NewSyntaxError(fmt.Sprintf("tag name expected, got %q", content), line)
	}
	rest := strings.TrimSpace(content[len(name):])

	typ, ok := statementTypes[name]
	if !ok {
		typ = TokenTag
	}
	return Token{Type: typ, Tag: name, Value: rest, Line: line}, nil
}

// FindTemplateTokens returns the raw text of every tag in input.
// This is a utility function for debugging and analysis
func FindTemplateTokens(input string) []string {
	var found []string
	pos := 0
	for pos < len(input) {
		loc := tagStartRegex.FindStringIndex(input[pos:])
		if loc == nil {
			break
		}
		start := pos + loc[0]
		kind := input[start+1]
		end := findTagEnd(input, start+2, closingDelimiter(kind), kind != '#')
		if end < 0 {
			break
		}
		found = append(found, input[start:end+2])
		pos = end + 2
	}
	if found == nil {
		return []string{}
	}
	return found
}
