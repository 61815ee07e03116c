package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// expressionFromQuery pulls an arithmetic expression out of natural
// phrasing, so "multiply 12 by 7" reaches the parser as "12 * 7".
// Spelled-out operators are mapped, percentages expand to /100, and
// everything else is dropped.
func expressionFromQuery(query string) (string, error) {
	var parts []string
	pending := "" // operator announced by a leading verb, emitted at "by"

	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, "?,!.")

		if rest, ok := strings.CutSuffix(word, "%"); ok && isExpressionToken(rest) {
			parts = append(parts, rest, "/ 100")
			continue
		}

		switch word {
		case "plus", "add", "added":
			parts = append(parts, "+")
		case "minus", "subtract", "subtracted":
			parts = append(parts, "-")
		case "times", "multiplied":
			parts = append(parts, "*")
		case "divided", "over":
			parts = append(parts, "/")
		case "multiply":
			pending = "*"
		case "divide":
			pending = "/"
		case "by":
			if pending != "" {
				parts = append(parts, pending)
				pending = ""
			}
		case "percent":
			parts = append(parts, "/ 100")
		case "of":
			if len(parts) > 0 && strings.HasSuffix(parts[len(parts)-1], "100") {
				parts = append(parts, "*")
			}
		default:
			if isExpressionToken(word) {
				parts = append(parts, word)
			}
		}
	}

	expr := strings.Join(parts, " ")
	if !strings.ContainsFunc(expr, unicode.IsDigit) {
		return "", fmt.Errorf("no arithmetic found in %q", query)
	}
	return expr, nil
}

// isExpressionToken reports whether the word already reads as part of an
// expression: digits, decimal points, parentheses and operators only.
func isExpressionToken(word string) bool {
	if word == "" {
		return false
	}
	for _, r := range word {
		if !unicode.IsDigit(r) && !strings.ContainsRune("().+-*/%", r) {
			return false
		}
	}
	return true
}

// evalExpression evaluates a basic arithmetic expression supporting
// + - * / %, parentheses, unary minus and decimal numbers.
func evalExpression(input string) (float64, error) {
	p := &exprParser{input: []rune(input)}

	value, err := p.parseSum()
	if err != nil {
		return 0, err
	}

	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
	return value, nil
}

// exprParser is a recursive descent parser over the expression grammar
//
//	sum    = product (('+' | '-') product)*
//	product = factor (('*' | '/' | '%') factor)*
//	factor = '-' factor | '(' sum ')' | number
type exprParser struct {
	input []rune
	pos   int
}

func (p *exprParser) parseSum() (float64, error) {
	value, err := p.parseProduct()
	if err != nil {
		return 0, err
	}

	for {
		p.skipSpace()
		switch {
		case p.accept('+'):
			rhs, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			value += rhs
		case p.accept('-'):
			rhs, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			value -= rhs
		default:
			return value, nil
		}
	}
}

func (p *exprParser) parseProduct() (float64, error) {
	value, err := p.parseFactor()
	if err != nil {
		return 0, err
	}

	for {
		p.skipSpace()
		switch {
		case p.accept('*'):
			rhs, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			value *= rhs
		case p.accept('/'):
			rhs, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			value /= rhs
		case p.accept('%'):
			rhs, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			value = math.Mod(value, rhs)
		default:
			return value, nil
		}
	}
}

func (p *exprParser) parseFactor() (float64, error) {
	p.skipSpace()

	if p.accept('-') {
		value, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		return -value, nil
	}

	if p.accept('(') {
		value, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if !p.accept(')') {
			return 0, fmt.Errorf("missing closing parenthesis at position %d", p.pos)
		}
		return value, nil
	}

	return p.parseNumber()
}

func (p *exprParser) parseNumber() (float64, error) {
	p.skipSpace()
	start := p.pos

	for p.pos < len(p.input) && (unicode.IsDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}

	if p.pos == start {
		if p.pos < len(p.input) {
			return 0, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
		}
		return 0, fmt.Errorf("unexpected end of expression")
	}

	value, err := strconv.ParseFloat(string(p.input[start:p.pos]), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", string(p.input[start:p.pos]))
	}
	return value, nil
}

func (p *exprParser) accept(ch rune) bool {
	if p.pos < len(p.input) && p.input[p.pos] == ch {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(p.input[p.pos]) {
		p.pos++
	}
}
