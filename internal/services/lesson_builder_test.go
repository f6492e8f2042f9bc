package services

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/mathscrap/mathscrap-backend/internal/logger"
	"github.com/mathscrap/mathscrap-backend/internal/types"
)

func newBuilder(t *testing.T) LessonBuilderService {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	builder, err := NewLessonBuilderService(log)
	require.NoError(t, err)
	return builder
}

func taskWith(t *testing.T, index int, tag string, latex string, problemType string) *types.ImageTask {
	t.Helper()
	task := &types.ImageTask{ID: uuid.New(), Index: index, Tag: tag}
	if latex != "" {
		raw, err := json.Marshal(types.OcrResult{Latex: latex, Confidence: 0.9, Source: types.OcrSourceLocal})
		require.NoError(t, err)
		task.OcrResult = datatypes.JSON(raw)
	}
	if problemType != "" {
		raw, err := json.Marshal(types.ExplanationResult{ProblemType: problemType})
		require.NoError(t, err)
		task.ExplanationResult = datatypes.JSON(raw)
	}
	return task
}

func TestBuildOrdersStepsByImageIndex(t *testing.T) {
	builder := newBuilder(t)

	tasks := []*types.ImageTask{
		taskWith(t, 2, "pic3", "x+1", "Linear Equation"),
		taskWith(t, 0, "pic1", "x^2+1", "Quadratic Equation"),
		taskWith(t, 1, "pic2", "", ""), // no OCR output, excluded
	}

	title, _, steps, err := builder.Build(tasks)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, 0, steps[0].ImageIndex)
	require.Equal(t, 2, steps[1].ImageIndex)
	require.Equal(t, "step_1", steps[0].StepID)
	require.Equal(t, "step_2", steps[1].StepID)
	require.Contains(t, title, "2 Step Solution")
}

func TestBuildStepTypes(t *testing.T) {
	builder := newBuilder(t)

	cases := []struct {
		problemType string
		want        string
	}{
		{"Quadratic Equation", "quadratic_equation"},
		{"Definite Integral", "integration"},
		{"Derivative of a polynomial", "differentiation"},
		{"Fraction Operations", "fraction_operations"},
		{"Linear Equation", "linear_equation"},
		{"Trigonometric Identity", "trigonometry"},
		{"Logarithm rules", "logarithms"},
		{"Something else", "general_algebra"},
		{"", "general_algebra"},
	}
	for _, tc := range cases {
		_, _, steps, err := builder.Build([]*types.ImageTask{
			taskWith(t, 0, "pic1", "x", tc.problemType),
		})
		require.NoError(t, err)
		require.Len(t, steps, 1)
		require.Equal(t, tc.want, steps[0].StepType, "problem_type %q", tc.problemType)
	}
}

func TestBuildTitleAndSummary(t *testing.T) {
	builder := newBuilder(t)

	title, summary, _, err := builder.Build([]*types.ImageTask{
		taskWith(t, 0, "pic1", "x^2+1=0", "Quadratic Equation"),
	})
	require.NoError(t, err)
	require.Equal(t, "Solving Quadratic Equations", title)
	require.Contains(t, summary, "1 mathematical problem(s)")
	require.Contains(t, summary, "quadratic equations")

	title, summary, _, err = builder.Build([]*types.ImageTask{
		taskWith(t, 0, "pic1", "x^2+1=0", "Quadratic Equation"),
		taskWith(t, 1, "pic2", "2x=4", "Linear Equation"),
	})
	require.NoError(t, err)
	require.Equal(t, "Solving Quadratic Equations - 2 Step Solution", title)
	require.Contains(t, summary, "quadratic equations and linear equations")
}

func TestBuildEmptyTasks(t *testing.T) {
	builder := newBuilder(t)

	title, summary, steps, err := builder.Build(nil)
	require.NoError(t, err)
	require.Empty(t, steps)
	require.Equal(t, "Math Problem Analysis", title)
	require.Equal(t, "No mathematical content found in the uploaded images.", summary)
}

func TestBuildIsIdempotent(t *testing.T) {
	builder := newBuilder(t)

	tasks := []*types.ImageTask{
		taskWith(t, 0, "pic1", "x^2+1", "Quadratic Equation"),
		taskWith(t, 1, "pic2", "2x+3=7", "Linear Equation"),
	}

	_, _, first, err := builder.Build(tasks)
	require.NoError(t, err)
	firstRaw, err := json.Marshal(first)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, again, err := builder.Build(tasks)
		require.NoError(t, err)
		againRaw, err := json.Marshal(again)
		require.NoError(t, err)
		require.Equal(t, string(firstRaw), string(againRaw))
	}
}
