package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Evaluate computes an arithmetic expression. It supports + - * / %,
// ^ and ** for powers (right associative), parentheses, unary signs,
// the constants pi and e, and the functions listed in calcFuncs.
func Evaluate(expr string) (float64, error) {
	p := &calcParser{src: expr}
	p.next()
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	if p.tok.kind != tokEOF {
		return 0, fmt.Errorf("unexpected %q at position %d", p.tok.text, p.tok.pos)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("result is not a finite number")
	}
	return v, nil
}

var calcFuncs = map[string]func(args []float64) (float64, error){
	"sqrt":  unary(math.Sqrt),
	"abs":   unary(math.Abs),
	"sin":   unary(math.Sin),
	"cos":   unary(math.Cos),
	"tan":   unary(math.Tan),
	"asin":  unary(math.Asin),
	"acos":  unary(math.Acos),
	"atan":  unary(math.Atan),
	"exp":   unary(math.Exp),
	"ln":    unary(math.Log),
	"log":   unary(math.Log10),
	"log2":  unary(math.Log2),
	"floor": unary(math.Floor),
	"ceil":  unary(math.Ceil),
	"round": unary(math.Round),
	"pow": func(a []float64) (float64, error) {
		if len(a) != 2 {
			return 0, fmt.Errorf("pow takes 2 arguments, got %d", len(a))
		}
		return math.Pow(a[0], a[1]), nil
	},
	"min": variadic(math.Min),
	"max": variadic(math.Max),
}

func unary(f func(float64) float64) func([]float64) (float64, error) {
	return func(a []float64) (float64, error) {
		if len(a) != 1 {
			return 0, fmt.Errorf("function takes 1 argument, got %d", len(a))
		}
		return f(a[0]), nil
	}
}

func variadic(f func(a, b float64) float64) func([]float64) (float64, error) {
	return func(a []float64) (float64, error) {
		if len(a) == 0 {
			return 0, fmt.Errorf("function needs at least 1 argument")
		}
		v := a[0]
		for _, x := range a[1:] {
			v = f(v, x)
		}
		return v, nil
	}
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokIdent
	tokOp
)

type calcToken struct {
	kind tokKind
	text string
	num  float64
	pos  int
}

type calcParser struct {
	src string
	off int
	tok calcToken
	err error
}

func (p *calcParser) next() {
	for p.off < len(p.src) && unicode.IsSpace(rune(p.src[p.off])) {
		p.off++
	}
	start := p.off
	if p.off >= len(p.src) {
		p.tok = calcToken{kind: tokEOF, pos: start}
		return
	}

	c := p.src[p.off]
	switch {
	case c >= '0' && c <= '9' || c == '.':
		for p.off < len(p.src) && (isDigit(p.src[p.off]) || p.src[p.off] == '.') {
			p.off++
		}
		// exponent: 1e3, 2.5E-4
		if p.off < len(p.src) && (p.src[p.off] == 'e' || p.src[p.off] == 'E') {
			j := p.off + 1
			if j < len(p.src) && (p.src[j] == '+' || p.src[j] == '-') {
				j++
			}
			if j < len(p.src) && isDigit(p.src[j]) {
				for j < len(p.src) && isDigit(p.src[j]) {
					j++
				}
				p.off = j
			}
		}
		text := p.src[start:p.off]
		n, err := strconv.ParseFloat(text, 64)
		if err != nil && p.err == nil {
			p.err = fmt.Errorf("invalid number %q", text)
		}
		p.tok = calcToken{kind: tokNum, text: text, num: n, pos: start}
	case c == '_' || unicode.IsLetter(rune(c)):
		for p.off < len(p.src) && (p.src[p.off] == '_' || isDigit(p.src[p.off]) || unicode.IsLetter(rune(p.src[p.off]))) {
			p.off++
		}
		p.tok = calcToken{kind: tokIdent, text: strings.ToLower(p.src[start:p.off]), pos: start}
	case c == '*' && p.off+1 < len(p.src) && p.src[p.off+1] == '*':
		p.off += 2
		p.tok = calcToken{kind: tokOp, text: "^", pos: start}
	default:
		p.off++
		p.tok = calcToken{kind: tokOp, text: string(c), pos: start}
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (p *calcParser) is(op string) bool {
	return p.tok.kind == tokOp && p.tok.text == op
}

// expr = term { ("+" | "-") term }
func (p *calcParser) expr() (float64, error) {
	v, err := p.term()
	for err == nil && (p.is("+") || p.is("-")) {
		op := p.tok.text
		p.next()
		var r float64
		if r, err = p.term(); err == nil {
			if op == "+" {
				v += r
			} else {
				v -= r
			}
		}
	}
	return v, err
}

// term = unary { ("*" | "/" | "%") unary }
func (p *calcParser) term() (float64, error) {
	v, err := p.unary()
	for err == nil && (p.is("*") || p.is("/") || p.is("%")) {
		op := p.tok.text
		p.next()
		var r float64
		if r, err = p.unary(); err != nil {
			break
		}
		switch op {
		case "*":
			v *= r
		case "/":
			if r == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v /= r
		case "%":
			if r == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v = math.Mod(v, r)
		}
	}
	return v, err
}

// unary = ("+" | "-") unary | power
func (p *calcParser) unary() (float64, error) {
	if p.is("-") || p.is("+") {
		neg := p.is("-")
		p.next()
		v, err := p.unary()
		if neg {
			v = -v
		}
		return v, err
	}
	return p.power()
}

// power = primary [ "^" unary ]
func (p *calcParser) power() (float64, error) {
	v, err := p.primary()
	if err != nil || !p.is("^") {
		return v, err
	}
	p.next()
	exp, err := p.unary()
	if err != nil {
		return 0, err
	}
	return math.Pow(v, exp), nil
}

func (p *calcParser) primary() (float64, error) {
	if p.err != nil {
		return 0, p.err
	}
	tok := p.tok
	switch tok.kind {
	case tokNum:
		p.next()
		return tok.num, p.err
	case tokIdent:
		p.next()
		if !p.is("(") {
			switch tok.text {
			case "pi":
				return math.Pi, nil
			case "e":
				return math.E, nil
			}
			return 0, fmt.Errorf("unknown name %q", tok.text)
		}
		fn, ok := calcFuncs[tok.text]
		if !ok {
			return 0, fmt.Errorf("unknown function %q", tok.text)
		}
		p.next()
		var args []float64
		if !p.is(")") {
			for {
				v, err := p.expr()
				if err != nil {
					return 0, err
				}
				args = append(args, v)
				if !p.is(",") {
					break
				}
				p.next()
			}
		}
		if !p.is(")") {
			return 0, fmt.Errorf("missing ) after %s arguments", tok.text)
		}
		p.next()
		return fn(args)
	case tokOp:
		if tok.text == "(" {
			p.next()
			v, err := p.expr()
			if err != nil {
				return 0, err
			}
			if !p.is(")") {
				return 0, fmt.Errorf("missing ) at position %d", p.tok.pos)
			}
			p.next()
			return v, nil
		}
		return 0, fmt.Errorf("unexpected %q at position %d", tok.text, tok.pos)
	}
	return 0, fmt.Errorf("unexpected end of expression")
}

// FormatNumber prints integers without a fractional part and other
// values with up to 10 significant decimals.
func FormatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', 10, 64)
}

// SetCalculator registers the calculator tool.
func (r *Registry) SetCalculator() {
	r.Register(&Tool{
		Name:        "calculator",
		Description: "Evaluate an arithmetic expression. Supports + - * / % ^, parentheses, pi, e, and sqrt, abs, sin, cos, tan, exp, ln, log, log2, floor, ceil, round, pow, min, max.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "The expression to evaluate, e.g. (2 + 3) * sqrt(16)",
				},
			},
			"required": []string{"expression"},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			expr := stringArg(args, "expression")
			if expr == "" {
				return "", Errorf(CodeInvalidInput, "expression is required")
			}
			v, err := Evaluate(expr)
			if err != nil {
				return "", Errorf(CodeInvalidInput, "cannot evaluate %q: %v", expr, err)
			}
			return FormatNumber(v), nil
		},
	})
}
