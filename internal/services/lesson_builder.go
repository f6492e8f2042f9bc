package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mathscrap/mathscrap-backend/internal/logger"
	"github.com/mathscrap/mathscrap-backend/internal/types"
)

// LessonBuilderService merges per-image stage results into an ordered lesson
// document. Build is pure: the same tasks in the same state always produce
// byte-identical steps, which keeps re-assembly idempotent.
type LessonBuilderService interface {
	Build(tasks []*types.ImageTask) (title string, summary string, steps []types.LessonStep, err error)
}

type lessonBuilderService struct {
	log *logger.Logger
}

func NewLessonBuilderService(log *logger.Logger) (LessonBuilderService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &lessonBuilderService{
		log: log.With("service", "LessonBuilderService"),
	}, nil
}

func (s *lessonBuilderService) Build(tasks []*types.ImageTask) (string, string, []types.LessonStep, error) {
	ordered := make([]*types.ImageTask, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	steps := make([]types.LessonStep, 0, len(ordered))
	for _, task := range ordered {
		if task == nil || len(task.OcrResult) == 0 {
			continue
		}
		var ocr types.OcrResult
		if err := json.Unmarshal(task.OcrResult, &ocr); err != nil {
			return "", "", nil, fmt.Errorf("decode ocr_result for image %d: %w", task.Index, err)
		}
		if strings.TrimSpace(ocr.Latex) == "" {
			continue
		}

		step := types.LessonStep{
			StepID:     fmt.Sprintf("step_%d", len(steps)+1),
			ImageIndex: task.Index,
			Tag:        task.Tag,
			Latex:      ocr.Latex,
			Ocr:        &ocr,
		}

		if len(task.ValidationResult) > 0 {
			var v types.ValidationResult
			if err := json.Unmarshal(task.ValidationResult, &v); err != nil {
				return "", "", nil, fmt.Errorf("decode validation_result for image %d: %w", task.Index, err)
			}
			step.Validation = &v
		}
		if len(task.ExplanationResult) > 0 {
			var e types.ExplanationResult
			if err := json.Unmarshal(task.ExplanationResult, &e); err != nil {
				return "", "", nil, fmt.Errorf("decode explanation_result for image %d: %w", task.Index, err)
			}
			step.Explanation = &e
		}

		step.StepType = determineStepType(step.Explanation)
		steps = append(steps, step)
	}

	return lessonTitle(steps), lessonSummary(steps), steps, nil
}

func determineStepType(explanation *types.ExplanationResult) string {
	problemType := ""
	if explanation != nil {
		problemType = strings.ToLower(explanation.ProblemType)
	}
	switch {
	case strings.Contains(problemType, "quadratic"):
		return "quadratic_equation"
	case strings.Contains(problemType, "integral"), strings.Contains(problemType, "integration"):
		return "integration"
	case strings.Contains(problemType, "derivative"), strings.Contains(problemType, "differentiation"):
		return "differentiation"
	case strings.Contains(problemType, "fraction"):
		return "fraction_operations"
	case strings.Contains(problemType, "linear"):
		return "linear_equation"
	case strings.Contains(problemType, "trigonometric"):
		return "trigonometry"
	case strings.Contains(problemType, "logarithm"):
		return "logarithms"
	default:
		return "general_algebra"
	}
}

var stepTypeTitles = map[string]string{
	"quadratic_equation":  "Solving Quadratic Equations",
	"integration":         "Integration Problems",
	"differentiation":     "Differentiation Problems",
	"fraction_operations": "Working with Fractions",
	"linear_equation":     "Linear Equations",
	"trigonometry":        "Trigonometric Functions",
	"logarithms":          "Logarithmic Functions",
	"general_algebra":     "Algebraic Problem Solving",
}

var stepTypeDescriptions = map[string]string{
	"quadratic_equation":  "quadratic equations",
	"integration":         "integration techniques",
	"differentiation":     "differentiation rules",
	"fraction_operations": "fraction arithmetic",
	"linear_equation":     "linear equations",
	"trigonometry":        "trigonometric functions",
	"logarithms":          "logarithmic functions",
	"general_algebra":     "algebraic manipulation",
}

func lessonTitle(steps []types.LessonStep) string {
	if len(steps) == 0 {
		return "Math Problem Analysis"
	}

	counts := map[string]int{}
	for _, step := range steps {
		counts[step.StepType]++
	}
	primary, best := "", -1
	for _, step := range steps {
		// Iterate in step order so ties resolve deterministically.
		if counts[step.StepType] > best {
			primary, best = step.StepType, counts[step.StepType]
		}
	}

	base, ok := stepTypeTitles[primary]
	if !ok {
		base = "Mathematical Problem Solving"
	}
	if len(steps) > 1 {
		return fmt.Sprintf("%s - %d Step Solution", base, len(steps))
	}
	return base
}

func lessonSummary(steps []types.LessonStep) string {
	if len(steps) == 0 {
		return "No mathematical content found in the uploaded images."
	}

	seen := map[string]bool{}
	var descriptions []string
	for _, step := range steps {
		if seen[step.StepType] {
			continue
		}
		seen[step.StepType] = true
		if d, ok := stepTypeDescriptions[step.StepType]; ok {
			descriptions = append(descriptions, d)
		} else {
			descriptions = append(descriptions, strings.ReplaceAll(step.StepType, "_", " "))
		}
	}

	var joined string
	switch len(descriptions) {
	case 1:
		joined = descriptions[0]
	case 2:
		joined = descriptions[0] + " and " + descriptions[1]
	default:
		joined = strings.Join(descriptions[:len(descriptions)-1], ", ") + ", and " + descriptions[len(descriptions)-1]
	}

	return fmt.Sprintf(
		"This lesson covers %d mathematical problem(s) involving %s. Each step includes detailed explanations, key concepts, and common mistakes to avoid.",
		len(steps), joined,
	)
}
