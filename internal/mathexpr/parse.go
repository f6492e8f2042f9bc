package mathexpr

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Expr is a parsed math expression node.
type Expr interface {
	isExpr()
}

type Num struct{ Value float64 }
type Var struct{ Name string }
type Call struct {
	Fn  string
	Arg Expr
}
type Neg struct{ X Expr }
type Add struct{ Terms []Expr }
type Mul struct{ Factors []Expr }
type Div struct{ Num, Den Expr }
type Pow struct{ Base, Exp Expr }

func (Num) isExpr()  {}
func (Var) isExpr()  {}
func (Call) isExpr() {}
func (Neg) isExpr()  {}
func (Add) isExpr()  {}
func (Mul) isExpr()  {}
func (Div) isExpr()  {}
func (Pow) isExpr()  {}

var functionNames = map[string]bool{
	"sqrt": true, "sin": true, "cos": true, "tan": true, "log": true, "ln": true,
}

// Multi-letter identifiers that stay one variable instead of splitting into
// single-letter factors.
var namedVars = map[string]bool{
	"alpha": true, "beta": true, "gamma": true, "delta": true, "epsilon": true,
	"lambda": true, "mu": true, "nu": true, "pi": true, "theta": true, "sigma": true,
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	num  float64
}

type lexer struct {
	input string
	pos   int
	toks  []token
}

func lex(input string) ([]token, error) {
	l := &lexer{input: input}
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case c == ' ':
			l.pos++
		case c >= '0' && c <= '9' || c == '.':
			start := l.pos
			for l.pos < len(l.input) && (l.input[l.pos] >= '0' && l.input[l.pos] <= '9' || l.input[l.pos] == '.') {
				l.pos++
			}
			text := l.input[start:l.pos]
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", text)
			}
			l.toks = append(l.toks, token{kind: tokNumber, text: text, num: v})
		case unicode.IsLetter(rune(c)):
			start := l.pos
			for l.pos < len(l.input) && (unicode.IsLetter(rune(l.input[l.pos])) || l.input[l.pos] == '_' || unicode.IsDigit(rune(l.input[l.pos])) && strings.ContainsRune(l.input[start:l.pos], '_')) {
				l.pos++
			}
			l.toks = append(l.toks, token{kind: tokIdent, text: l.input[start:l.pos]})
		case c == '(':
			l.toks = append(l.toks, token{kind: tokLParen, text: "("})
			l.pos++
		case c == ')':
			l.toks = append(l.toks, token{kind: tokRParen, text: ")"})
			l.pos++
		case c == '+' || c == '-' || c == '*' || c == '/' || c == '^':
			l.toks = append(l.toks, token{kind: tokOp, text: string(c)})
			l.pos++
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", string(c), l.pos)
		}
	}
	l.toks = append(l.toks, token{kind: tokEOF})
	return l.toks, nil
}

type parser struct {
	toks []token
	pos  int
}

// Parse reads a normalized infix expression (the NormalizeLatex output
// shape) into an expression tree.
func Parse(input string) (Expr, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty expression")
	}
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected token %q", p.peek().text)
	}
	return e, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }
func (p *parser) next() token {
	t := p.toks[p.pos]
	p.pos++
	return t
}

func (p *parser) parseExpr() (Expr, error) {
	first, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	terms := []Expr{first}
	for p.peek().kind == tokOp && (p.peek().text == "+" || p.peek().text == "-") {
		op := p.next().text
		t, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		if op == "-" {
			t = Neg{X: t}
		}
		terms = append(terms, t)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return Add{Terms: terms}, nil
}

func (p *parser) parseTerm() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch {
		case t.kind == tokOp && t.text == "*":
			p.next()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = mulOf(left, right)
		case t.kind == tokOp && t.text == "/":
			p.next()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = Div{Num: left, Den: right}
		case t.kind == tokNumber || t.kind == tokIdent || t.kind == tokLParen:
			// Implicit multiplication: 2x, 3(x+1), x y.
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = mulOf(left, right)
		default:
			return left, nil
		}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if t := p.peek(); t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if t.text == "-" {
			return Neg{X: x}, nil
		}
		return x, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Expr, error) {
	base, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == tokOp && t.text == "^" {
		p.next()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Pow{Base: base, Exp: exp}, nil
	}
	return base, nil
}

func (p *parser) parseAtom() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return Num{Value: t.num}, nil
	case tokIdent:
		name := t.text
		if functionNames[name] {
			if p.peek().kind != tokLParen {
				return nil, fmt.Errorf("function %q requires an argument", name)
			}
			p.next()
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if p.peek().kind != tokRParen {
				return nil, fmt.Errorf("missing ) after %s argument", name)
			}
			p.next()
			return Call{Fn: name, Arg: arg}, nil
		}
		return identExpr(name), nil
	case tokLParen:
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.next()
		return e, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", t.text)
	}
}

// identExpr turns a letter run into a variable, or an implicit product of
// single-letter variables ("xy" means x*y unless it is a named constant).
func identExpr(name string) Expr {
	if namedVars[name] || len(name) == 1 || strings.ContainsRune(name, '_') {
		return Var{Name: name}
	}
	factors := make([]Expr, 0, len(name))
	for _, r := range name {
		factors = append(factors, Var{Name: string(r)})
	}
	return Mul{Factors: factors}
}

func mulOf(a, b Expr) Expr {
	factors := []Expr{}
	if m, ok := a.(Mul); ok {
		factors = append(factors, m.Factors...)
	} else {
		factors = append(factors, a)
	}
	if m, ok := b.(Mul); ok {
		factors = append(factors, m.Factors...)
	} else {
		factors = append(factors, b)
	}
	return Mul{Factors: factors}
}

// Variables lists the distinct variable names in e, sorted.
func Variables(e Expr) []string {
	set := map[string]bool{}
	collectVars(e, set)
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func collectVars(e Expr, set map[string]bool) {
	switch v := e.(type) {
	case Var:
		set[v.Name] = true
	case Call:
		collectVars(v.Arg, set)
	case Neg:
		collectVars(v.X, set)
	case Add:
		for _, t := range v.Terms {
			collectVars(t, set)
		}
	case Mul:
		for _, f := range v.Factors {
			collectVars(f, set)
		}
	case Div:
		collectVars(v.Num, set)
		collectVars(v.Den, set)
	case Pow:
		collectVars(v.Base, set)
		collectVars(v.Exp, set)
	}
}
