package tools

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"unicode"
)

// evalExpr evaluates an arithmetic expression.
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/" | "%") unary }
//	unary  = "-" unary | "+" unary | power
//	power  = atom [ "^" unary ]
//	atom   = number | ident "(" args ")" | "(" expr ")"
//
// "**" is accepted as a synonym for "^". Only the functions in mathFuncs
// can be called and there are no variables.
func evalExpr(input string) (float64, error) {
	p := &exprParser{src: []rune(input)}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return 0, fmt.Errorf("unexpected %q at position %d", p.src[p.pos], p.pos)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("result is not a finite number")
	}
	return v, nil
}

// maxExprDepth bounds nesting so hostile input cannot exhaust the stack
const maxExprDepth = 256

var (
	errDivisionByZero = errors.New("division by zero")
	errTooDeep        = errors.New("expression too deeply nested")
)

type mathFunc struct {
	minArgs, maxArgs int
	fn               func(args []float64) (float64, error)
}

var mathFuncs = map[string]mathFunc{
	"abs": {1, 1, func(a []float64) (float64, error) { return math.Abs(a[0]), nil }},
	"round": {1, 2, func(a []float64) (float64, error) {
		if len(a) == 1 {
			return math.RoundToEven(a[0]), nil
		}
		scale := math.Pow(10, math.Trunc(a[1]))
		return math.RoundToEven(a[0]*scale) / scale, nil
	}},
	"min": {1, -1, func(a []float64) (float64, error) {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m, nil
	}},
	"max": {1, -1, func(a []float64) (float64, error) {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m, nil
	}},
	"pow":   {2, 2, func(a []float64) (float64, error) { return math.Pow(a[0], a[1]), nil }},
	"int":   {1, 1, func(a []float64) (float64, error) { return math.Trunc(a[0]), nil }},
	"float": {1, 1, func(a []float64) (float64, error) { return a[0], nil }},
	"sqrt": {1, 1, func(a []float64) (float64, error) {
		if a[0] < 0 {
			return 0, errors.New("math domain error")
		}
		return math.Sqrt(a[0]), nil
	}},
}

type exprParser struct {
	src   []rune
	pos   int
	depth int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *exprParser) peek() rune {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *exprParser) peekPow() bool {
	if p.peek() == '^' {
		return true
	}
	return p.pos+1 < len(p.src) && p.src[p.pos] == '*' && p.src[p.pos+1] == '*'
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' && op != '%' {
			return left, nil
		}
		if p.peekPow() {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		switch op {
		case '*':
			left *= right
		case '/':
			if right == 0 {
				return 0, errDivisionByZero
			}
			left /= right
		case '%':
			if right == 0 {
				return 0, errDivisionByZero
			}
			// Floored modulo: the result takes the sign of the divisor.
			left = left - right*math.Floor(left/right)
		}
	}
}

// parseUnary sits on every recursive path, so it carries the depth check
func (p *exprParser) parseUnary() (float64, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxExprDepth {
		return 0, errTooDeep
	}

	switch p.peek() {
	case '-':
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	case '+':
		p.pos++
		return p.parseUnary()
	}
	return p.parsePower()
}

func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parseAtom()
	if err != nil {
		return 0, err
	}
	if !p.peekPow() {
		return base, nil
	}
	if p.src[p.pos] == '^' {
		p.pos++
	} else {
		p.pos += 2
	}
	// Right associative: 2^3^2 == 2^(3^2)
	exp, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	return math.Pow(base, exp), nil
}

func (p *exprParser) parseAtom() (float64, error) {
	c := p.peek()
	switch {
	case c == 0:
		return 0, errors.New("unexpected end of expression")
	case c == '(':
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, errors.New("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	case unicode.IsDigit(c) || c == '.':
		return p.parseNumber()
	case unicode.IsLetter(c):
		return p.parseCall()
	}
	return 0, fmt.Errorf("unexpected %q at position %d", c, p.pos)
}

func (p *exprParser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) && (unicode.IsDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
		p.pos++
	}
	// Exponent part, e.g. 1e-3
	if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
		next := p.pos + 1
		if next < len(p.src) && (p.src[next] == '+' || p.src[next] == '-') {
			next++
		}
		if next < len(p.src) && unicode.IsDigit(p.src[next]) {
			p.pos = next
			for p.pos < len(p.src) && unicode.IsDigit(p.src[p.pos]) {
				p.pos++
			}
		}
	}
	text := string(p.src[start:p.pos])
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", text)
	}
	return v, nil
}

func (p *exprParser) parseCall() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) && (unicode.IsLetter(p.src[p.pos]) || unicode.IsDigit(p.src[p.pos]) || p.src[p.pos] == '_') {
		p.pos++
	}
	name := string(p.src[start:p.pos])

	fn, ok := mathFuncs[name]
	if !ok {
		return 0, fmt.Errorf("name '%s' is not defined", name)
	}
	if p.peek() != '(' {
		return 0, fmt.Errorf("%s must be called with parentheses", name)
	}
	p.pos++

	var args []float64
	if p.peek() != ')' {
		for {
			v, err := p.parseExpr()
			if err != nil {
				return 0, err
			}
			args = append(args, v)
			if p.peek() != ',' {
				break
			}
			p.pos++
		}
	}
	if p.peek() != ')' {
		return 0, errors.New("missing closing parenthesis")
	}
	p.pos++

	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		return 0, fmt.Errorf("%s() takes %s, got %d", name, arity(fn), len(args))
	}
	return fn.fn(args)
}

func arity(fn mathFunc) string {
	switch {
	case fn.maxArgs < 0:
		return fmt.Sprintf("at least %d argument(s)", fn.minArgs)
	case fn.minArgs == fn.maxArgs:
		return fmt.Sprintf("%d argument(s)", fn.minArgs)
	default:
		return fmt.Sprintf("%d to %d arguments", fn.minArgs, fn.maxArgs)
	}
}
