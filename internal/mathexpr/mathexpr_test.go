package mathexpr

import (
	"math"
	"testing"
)

func TestNormalizeLatex(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"fraction", `\frac{x+1}{2}`, "((x+1)/(2))"},
		{"nested fraction", `\frac{\frac{a}{b}}{c}`, "((((a)/(b)))/(c))"},
		{"sqrt", `\sqrt{x+4}`, "sqrt(x+4)"},
		{"braced power", `x^{2}+1`, "x^(2)+1"},
		{"dollar delimiters", `$x^2+1$`, "x^2+1"},
		{"cdot and times", `2\cdot x\times y`, "2*x*y"},
		{"greek", `\alpha+\beta`, "alpha+beta"},
		{"text wrapper", `\text{area}=x^2`, "area=x^2"},
		{"left right", `\left(x+1\right)^2`, "(x+1)^2"},
		{"integral dropped", `\int_{0}^{1} x^2 \, dx`, "x^2"},
		{"unknown command dropped", `\mathbb{R}+x`, "(R)+x"},
		{"whitespace stripped", `2 x + 3`, "2x+3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeLatex(tc.in)
			if got != tc.want {
				t.Fatalf("NormalizeLatex(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already canonical", "x^2+1", "x^2+1"},
		{"constant folding", "2+3*4", "14"},
		{"like terms", "x+x+1", "2*x+1"},
		{"like terms cancel", "x-x+5", "5"},
		{"degree ordering", "1+x+x^2", "x^2+x+1"},
		{"product of vars", "x*x", "x^2"},
		{"implicit coefficient", "2x+3x", "5*x"},
		{"power identity", "x^1", "x"},
		{"zero power", "x^0", "1"},
		{"multiply by zero", "0*x", "0"},
		{"division by one", "x/1", "x"},
		{"self division", "(x+1)/(x+1)", "1"},
		{"double negation", "-(-x)", "x"},
		{"distributed signs", "x-(y-x)", "2*x-y"},
		{"sqrt folds", "sqrt(9)", "3"},
		{"sqrt kept", "sqrt(2)", "sqrt(2)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Canonical(tc.in)
			if err != nil {
				t.Fatalf("Canonical(%q) error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("Canonical(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCanonicalEquation(t *testing.T) {
	got, err := Canonical("2x+3=7")
	if err != nil {
		t.Fatalf("Canonical error: %v", err)
	}
	if got != "2*x-4=0" {
		t.Fatalf("Canonical equation = %q, want %q", got, "2*x-4=0")
	}
}

func TestCanonicalDeterministic(t *testing.T) {
	in := "y+x^2+3x+x^2+y"
	first, err := Canonical(in)
	if err != nil {
		t.Fatalf("Canonical error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Canonical(in)
		if err != nil {
			t.Fatalf("Canonical error: %v", err)
		}
		if again != first {
			t.Fatalf("Canonical not deterministic: %q then %q", first, again)
		}
	}
}

func TestCanonicalErrors(t *testing.T) {
	for _, in := range []string{"", "2+", "(x+1", "sqrt", "x$#"} {
		if _, err := Canonical(in); err == nil {
			t.Fatalf("Canonical(%q) expected error", in)
		}
	}
}

func TestParseImplicitMultiplication(t *testing.T) {
	e, err := Parse("3(x+1)")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	got := Render(Simplify(e))
	if got != "3*(x+1)" {
		t.Fatalf("Simplify(3(x+1)) = %q, want %q", got, "3*(x+1)")
	}
}

func TestParseMultiLetterSplit(t *testing.T) {
	vars := Variables(mustParse(t, "xy+z"))
	want := []string{"x", "y", "z"}
	if len(vars) != len(want) {
		t.Fatalf("Variables = %v, want %v", vars, want)
	}
	for i := range want {
		if vars[i] != want[i] {
			t.Fatalf("Variables = %v, want %v", vars, want)
		}
	}
}

func TestParseNamedVarsStayWhole(t *testing.T) {
	vars := Variables(mustParse(t, "pi*r^2"))
	if len(vars) != 2 || vars[0] != "pi" || vars[1] != "r" {
		t.Fatalf("Variables = %v, want [pi r]", vars)
	}
}

func TestSolveLinear(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		wantVar string
		wantVal float64
		ok      bool
	}{
		{"simple", "2x+3=7", "x", 2, true},
		{"variable on both sides", "3x-2=x+6", "x", 4, true},
		{"negative solution", "y+5=0", "y", -5, true},
		{"not linear", "x^2=4", "", 0, false},
		{"two variables", "x+y=1", "", 0, false},
		{"no equation", "2x+3", "", 0, false},
		{"degenerate", "x=x", "", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			name, val, ok := SolveLinear(tc.in)
			if ok != tc.ok {
				t.Fatalf("SolveLinear(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			}
			if !ok {
				return
			}
			if name != tc.wantVar || math.Abs(val-tc.wantVal) > 1e-9 {
				t.Fatalf("SolveLinear(%q) = %s, %v; want %s, %v", tc.in, name, val, tc.wantVar, tc.wantVal)
			}
		})
	}
}

func mustParse(t *testing.T, in string) Expr {
	t.Helper()
	e, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", in, err)
	}
	return e
}
