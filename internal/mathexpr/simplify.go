package mathexpr

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Simplify returns a canonical form of e: constants folded, like terms
// collected, products normalized, terms ordered by descending degree. The
// same input tree always produces the same output tree, which is what makes
// lesson assembly idempotent downstream.
func Simplify(e Expr) Expr {
	switch v := e.(type) {
	case Num, Var:
		return e
	case Call:
		return simplifyCall(Call{Fn: v.Fn, Arg: Simplify(v.Arg)})
	case Neg:
		return simplifyNeg(Simplify(v.X))
	case Add:
		return simplifyAdd(v)
	case Mul:
		return simplifyMul(v)
	case Div:
		return simplifyDiv(Div{Num: Simplify(v.Num), Den: Simplify(v.Den)})
	case Pow:
		return simplifyPow(Pow{Base: Simplify(v.Base), Exp: Simplify(v.Exp)})
	default:
		return e
	}
}

func simplifyCall(c Call) Expr {
	if n, ok := c.Arg.(Num); ok && c.Fn == "sqrt" && n.Value >= 0 {
		r := math.Sqrt(n.Value)
		if r == math.Trunc(r) {
			return Num{Value: r}
		}
	}
	return c
}

func simplifyNeg(x Expr) Expr {
	switch v := x.(type) {
	case Num:
		return Num{Value: -v.Value}
	case Neg:
		return v.X
	default:
		return Neg{X: x}
	}
}

func simplifyPow(p Pow) Expr {
	if be, ok := p.Base.(Num); ok {
		if ee, ok2 := p.Exp.(Num); ok2 {
			r := math.Pow(be.Value, ee.Value)
			if !math.IsNaN(r) && !math.IsInf(r, 0) {
				return Num{Value: r}
			}
		}
		if be.Value == 1 {
			return Num{Value: 1}
		}
	}
	if ee, ok := p.Exp.(Num); ok {
		if ee.Value == 1 {
			return p.Base
		}
		if ee.Value == 0 {
			return Num{Value: 1}
		}
	}
	return p
}

func simplifyDiv(d Div) Expr {
	if ne, ok := d.Num.(Num); ok {
		if ne.Value == 0 {
			return Num{Value: 0}
		}
		if de, ok2 := d.Den.(Num); ok2 && de.Value != 0 {
			return Num{Value: ne.Value / de.Value}
		}
	}
	if de, ok := d.Den.(Num); ok && de.Value == 1 {
		return d.Num
	}
	if Render(d.Num) == Render(d.Den) {
		return Num{Value: 1}
	}
	return d
}

func simplifyMul(m Mul) Expr {
	coef := 1.0
	type factor struct {
		base Expr
		exp  float64
	}
	var order []string
	merged := map[string]*factor{}

	var walk func(fs []Expr)
	walk = func(fs []Expr) {
		for _, raw := range fs {
			f := Simplify(raw)
			switch fv := f.(type) {
			case Num:
				coef *= fv.Value
			case Neg:
				coef = -coef
				walk([]Expr{fv.X})
			case Mul:
				walk(fv.Factors)
			case Pow:
				if e, ok := fv.Exp.(Num); ok {
					key := Render(fv.Base)
					if got, ok2 := merged[key]; ok2 {
						got.exp += e.Value
					} else {
						merged[key] = &factor{base: fv.Base, exp: e.Value}
						order = append(order, key)
					}
					continue
				}
				key := Render(fv)
				if got, ok2 := merged[key]; ok2 {
					got.exp++
				} else {
					merged[key] = &factor{base: fv, exp: 1}
					order = append(order, key)
				}
			default:
				key := Render(f)
				if got, ok := merged[key]; ok {
					got.exp++
				} else {
					merged[key] = &factor{base: f, exp: 1}
					order = append(order, key)
				}
			}
		}
	}
	walk(m.Factors)

	if coef == 0 {
		return Num{Value: 0}
	}

	sort.Strings(order)
	factors := make([]Expr, 0, len(order))
	for _, key := range order {
		f := merged[key]
		switch {
		case f.exp == 0:
			continue
		case f.exp == 1:
			factors = append(factors, f.base)
		default:
			factors = append(factors, Pow{Base: f.base, Exp: Num{Value: f.exp}})
		}
	}

	if len(factors) == 0 {
		return Num{Value: coef}
	}
	var sym Expr
	if len(factors) == 1 {
		sym = factors[0]
	} else {
		sym = Mul{Factors: factors}
	}
	switch coef {
	case 1:
		return sym
	case -1:
		return Neg{X: sym}
	default:
		return mulOf(Num{Value: coef}, sym)
	}
}

func simplifyAdd(a Add) Expr {
	type term struct {
		coef float64
		sym  Expr // nil means constant term
	}
	var order []string
	merged := map[string]*term{}

	add := func(coef float64, sym Expr) {
		key := ""
		if sym != nil {
			key = Render(sym)
		}
		if got, ok := merged[key]; ok {
			got.coef += coef
			return
		}
		merged[key] = &term{coef: coef, sym: sym}
		order = append(order, key)
	}

	var walk func(terms []Expr, sign float64)
	walk = func(terms []Expr, sign float64) {
		for _, raw := range terms {
			t := Simplify(raw)
			switch tv := t.(type) {
			case Add:
				walk(tv.Terms, sign)
			case Neg:
				walk([]Expr{tv.X}, -sign)
			case Num:
				add(sign*tv.Value, nil)
			default:
				c, sym := splitCoefficient(t)
				add(sign*c, sym)
			}
		}
	}
	walk(a.Terms, 1)

	kept := make([]*term, 0, len(order))
	for _, key := range order {
		t := merged[key]
		if t.coef == 0 && t.sym != nil {
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return Num{Value: 0}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		di, dj := termDegree(kept[i].sym), termDegree(kept[j].sym)
		if di != dj {
			return di > dj
		}
		return renderOrEmpty(kept[i].sym) < renderOrEmpty(kept[j].sym)
	})

	out := make([]Expr, 0, len(kept))
	for _, t := range kept {
		out = append(out, rebuildTerm(t.coef, t.sym))
	}
	if len(out) == 1 {
		return out[0]
	}
	return Add{Terms: out}
}

// splitCoefficient peels a leading numeric coefficient off a simplified term.
func splitCoefficient(e Expr) (float64, Expr) {
	switch v := e.(type) {
	case Num:
		return v.Value, nil
	case Neg:
		c, sym := splitCoefficient(v.X)
		return -c, sym
	case Mul:
		coef := 1.0
		rest := make([]Expr, 0, len(v.Factors))
		for _, f := range v.Factors {
			if n, ok := f.(Num); ok {
				coef *= n.Value
				continue
			}
			rest = append(rest, f)
		}
		if len(rest) == 0 {
			return coef, nil
		}
		if len(rest) == 1 {
			return coef, rest[0]
		}
		return coef, Mul{Factors: rest}
	default:
		return 1, e
	}
}

func rebuildTerm(coef float64, sym Expr) Expr {
	if sym == nil {
		return Num{Value: coef}
	}
	switch coef {
	case 1:
		return sym
	case -1:
		return Neg{X: sym}
	default:
		return mulOf(Num{Value: coef}, sym)
	}
}

func termDegree(e Expr) float64 {
	switch v := e.(type) {
	case nil:
		return 0
	case Num:
		return 0
	case Var:
		return 1
	case Neg:
		return termDegree(v.X)
	case Pow:
		if _, ok := v.Base.(Var); ok {
			if n, ok2 := v.Exp.(Num); ok2 {
				return n.Value
			}
		}
		return 1
	case Mul:
		d := 0.0
		for _, f := range v.Factors {
			d += termDegree(f)
		}
		return d
	case Div:
		return termDegree(v.Num)
	default:
		return 0
	}
}

func renderOrEmpty(e Expr) string {
	if e == nil {
		return ""
	}
	return Render(e)
}

// Render writes an expression back as compact infix text: x^2+1, 2*x-4.
func Render(e Expr) string {
	switch v := e.(type) {
	case Num:
		return formatNum(v.Value)
	case Var:
		return v.Name
	case Call:
		return v.Fn + "(" + Render(v.Arg) + ")"
	case Neg:
		return "-" + renderFactor(v.X)
	case Add:
		var b strings.Builder
		for i, t := range v.Terms {
			s := Render(t)
			if i == 0 {
				b.WriteString(s)
				continue
			}
			if strings.HasPrefix(s, "-") {
				b.WriteString(s)
			} else {
				b.WriteString("+")
				b.WriteString(s)
			}
		}
		return b.String()
	case Mul:
		parts := make([]string, 0, len(v.Factors))
		for _, f := range v.Factors {
			parts = append(parts, renderFactor(f))
		}
		return strings.Join(parts, "*")
	case Div:
		return renderFactor(v.Num) + "/" + renderTight(v.Den)
	case Pow:
		return renderTight(v.Base) + "^" + renderTight(v.Exp)
	default:
		return ""
	}
}

// renderFactor parenthesizes sums so products and negations read correctly.
func renderFactor(e Expr) string {
	switch e.(type) {
	case Add:
		return "(" + Render(e) + ")"
	default:
		return Render(e)
	}
}

// renderTight parenthesizes everything that is not a bare atom; used for
// power operands and divisors where precedence bites.
func renderTight(e Expr) string {
	switch v := e.(type) {
	case Var, Call:
		return Render(e)
	case Num:
		if v.Value < 0 {
			return "(" + Render(e) + ")"
		}
		return Render(e)
	default:
		return "(" + Render(e) + ")"
	}
}

func formatNum(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Canonical parses a normalized expression (or equation) and returns its
// simplified rendering. Equations come back as "<lhs-rhs>=0".
func Canonical(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("empty expression")
	}
	if strings.Contains(input, "=") {
		parts := strings.SplitN(input, "=", 2)
		lhs, err := Parse(parts[0])
		if err != nil {
			return "", fmt.Errorf("left side: %w", err)
		}
		rhs, err := Parse(parts[1])
		if err != nil {
			return "", fmt.Errorf("right side: %w", err)
		}
		diff := Simplify(Add{Terms: []Expr{lhs, Neg{X: rhs}}})
		return Render(diff) + "=0", nil
	}
	e, err := Parse(input)
	if err != nil {
		return "", err
	}
	return Render(Simplify(e)), nil
}

// SolveLinear solves a single-variable linear equation like 2x+3=7. The
// boolean reports whether the equation was linear and solvable.
func SolveLinear(input string) (string, float64, bool) {
	if !strings.Contains(input, "=") {
		return "", 0, false
	}
	parts := strings.SplitN(input, "=", 2)
	lhs, err := Parse(parts[0])
	if err != nil {
		return "", 0, false
	}
	rhs, err := Parse(parts[1])
	if err != nil {
		return "", 0, false
	}
	diff := Simplify(Add{Terms: []Expr{lhs, Neg{X: rhs}}})

	vars := Variables(diff)
	if len(vars) != 1 {
		return "", 0, false
	}
	name := vars[0]

	terms := []Expr{diff}
	if a, ok := diff.(Add); ok {
		terms = a.Terms
	}
	var slope, intercept float64
	for _, t := range terms {
		coef, sym := splitCoefficient(t)
		switch {
		case sym == nil:
			intercept += coef
		case isVarNamed(sym, name):
			slope += coef
		default:
			return "", 0, false
		}
	}
	if slope == 0 {
		return "", 0, false
	}
	return name, -intercept / slope, true
}

func isVarNamed(e Expr, name string) bool {
	v, ok := e.(Var)
	return ok && v.Name == name
}
