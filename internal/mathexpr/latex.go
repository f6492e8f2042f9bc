package mathexpr

import (
	"regexp"
	"strings"
)

var (
	reFrac     = regexp.MustCompile(`\\frac\{([^{}]+)\}\{([^{}]+)\}`)
	reSqrt     = regexp.MustCompile(`\\sqrt\{([^{}]+)\}`)
	rePowBrace = regexp.MustCompile(`\^\{([^{}]+)\}`)
	reSubBrace = regexp.MustCompile(`_\{([^{}]+)\}`)
	reOverline = regexp.MustCompile(`\\overline\{([^{}]+)\}`)
	reText     = regexp.MustCompile(`\\text\{([^{}]*)\}`)
	reIntegral = regexp.MustCompile(`\\int(_\{[^{}]*\})?(\^\{[^{}]*\})?`)
	reSum      = regexp.MustCompile(`\\sum(_\{[^{}]*\})?(\^\{[^{}]*\})?`)
	reDiffTerm = regexp.MustCompile(`\\,?\s*d[a-z]\b`)
	reCommand  = regexp.MustCompile(`\\[a-zA-Z]+`)
	reDisallow = regexp.MustCompile(`[^0-9a-zA-Z_+\-*/^().=,]`)
	reSpaces   = regexp.MustCompile(`\s+`)
)

var greekNames = map[string]string{
	`\alpha`: "alpha", `\beta`: "beta", `\gamma`: "gamma", `\delta`: "delta",
	`\epsilon`: "epsilon", `\varepsilon`: "epsilon", `\lambda`: "lambda",
	`\mu`: "mu", `\nu`: "nu", `\pi`: "pi", `\theta`: "theta", `\sigma`: "sigma",
}

var keptFunctions = []string{`\sin`, `\cos`, `\tan`, `\log`, `\ln`, `\sqrt`}

// NormalizeLatex rewrites a LaTeX math string into the plain infix form the
// expression parser understands: \frac{a}{b} becomes (a)/(b), braced powers
// lose their braces, Greek letters become identifiers, and unknown commands
// are dropped. Lossy on purpose; the goal is a parseable skeleton, not a
// faithful LaTeX round trip.
func NormalizeLatex(latex string) string {
	expr := strings.TrimSpace(latex)
	if expr == "" {
		return ""
	}

	// Strip math-mode delimiters if the OCR kept them.
	expr = strings.TrimPrefix(expr, "$$")
	expr = strings.TrimSuffix(expr, "$$")
	expr = strings.Trim(expr, "$")

	expr = reOverline.ReplaceAllString(expr, "$1")
	expr = reText.ReplaceAllString(expr, "$1")

	// Integral and sum wrappers carry no parseable operand structure here;
	// keep the integrand and drop the operator plus trailing differential.
	// Must run before the brace rewrites eat the bound markers.
	expr = reIntegral.ReplaceAllString(expr, "")
	expr = reSum.ReplaceAllString(expr, "")
	expr = reDiffTerm.ReplaceAllString(expr, "")

	// Fractions may nest one level; two passes cover \frac{\frac{a}{b}}{c}
	// after the inner pass has already flattened the braces.
	expr = reFrac.ReplaceAllString(expr, "(($1)/($2))")
	expr = reFrac.ReplaceAllString(expr, "(($1)/($2))")

	expr = reSqrt.ReplaceAllString(expr, "sqrt($1)")
	expr = rePowBrace.ReplaceAllString(expr, "^($1)")
	expr = reSubBrace.ReplaceAllString(expr, "_$1")

	for cmd, name := range greekNames {
		expr = strings.ReplaceAll(expr, cmd, name)
	}
	for _, fn := range keptFunctions {
		expr = strings.ReplaceAll(expr, fn, strings.TrimPrefix(fn, `\`))
	}
	expr = strings.ReplaceAll(expr, `\cdot`, "*")
	expr = strings.ReplaceAll(expr, `\times`, "*")
	expr = strings.ReplaceAll(expr, `\left`, "")
	expr = strings.ReplaceAll(expr, `\right`, "")

	expr = reCommand.ReplaceAllString(expr, "")
	expr = strings.ReplaceAll(expr, "{", "(")
	expr = strings.ReplaceAll(expr, "}", ")")
	expr = reSpaces.ReplaceAllString(expr, "")
	expr = reDisallow.ReplaceAllString(expr, "")

	return expr
}
