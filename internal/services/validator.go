package services

import (
	"bytes"
	"fmt"
	"strings"

	treeblood "github.com/wyatt915/goldmark-treeblood"
	"github.com/yuin/goldmark"

	"github.com/mathscrap/mathscrap-backend/internal/logger"
	"github.com/mathscrap/mathscrap-backend/internal/mathexpr"
	"github.com/mathscrap/mathscrap-backend/internal/types"
)

// ValidatorService checks that an extracted LaTeX expression is well formed
// and produces a canonical simplified form. Validation never fails the
// pipeline: malformed input comes back as a result with Valid=false.
type ValidatorService interface {
	Validate(latex string) types.ValidationResult
}

type validatorService struct {
	log *logger.Logger
	md  goldmark.Markdown
}

func NewValidatorService(log *logger.Logger) (ValidatorService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &validatorService{
		log: log.With("service", "ValidatorService"),
		md: goldmark.New(
			goldmark.WithExtensions(
				treeblood.MathML(),
			),
		),
	}, nil
}

func (s *validatorService) Validate(latex string) types.ValidationResult {
	out := types.ValidationResult{OriginalLatex: latex}

	latex = strings.TrimSpace(latex)
	if latex == "" {
		out.Error = "empty expression"
		return out
	}

	if err := s.renderable(latex); err != nil {
		out.Error = fmt.Sprintf("latex rendering failed: %v", err)
		return out
	}

	normalized := mathexpr.NormalizeLatex(latex)
	if normalized == "" {
		out.Error = "expression reduced to nothing after normalization"
		return out
	}

	canonical, err := mathexpr.Canonical(normalized)
	if err != nil {
		out.Error = fmt.Sprintf("parse failed: %v", err)
		return out
	}

	out.Valid = true
	out.Simplified = canonical

	// A linear single-variable equation gets its solution as the simplified
	// form, matching what a tutor would write.
	if name, val, ok := mathexpr.SolveLinear(normalized); ok {
		out.Simplified = fmt.Sprintf("%s = %g", name, val)
	}
	return out
}

// renderable runs the expression through the MathML converter. Structural
// LaTeX errors (unbalanced braces, broken commands) surface here before any
// normalization guesswork.
func (s *validatorService) renderable(latex string) error {
	source := "$$" + latex + "$$"
	var buf bytes.Buffer
	return s.md.Convert([]byte(source), &buf)
}
