package services

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mathscrap/mathscrap-backend/internal/apperr"
	"github.com/mathscrap/mathscrap-backend/internal/logger"
	"github.com/mathscrap/mathscrap-backend/internal/repos"
	"github.com/mathscrap/mathscrap-backend/internal/storage"
	"github.com/mathscrap/mathscrap-backend/internal/types"
)

// fakeOcr keys its behavior off the image bytes: payloads prefixed "latex:"
// succeed with the remainder as the expression, everything else fails.
type fakeOcr struct{}

func (f *fakeOcr) Extract(ctx context.Context, image []byte, contentType string) (types.OcrResult, error) {
	s := string(image)
	if strings.HasPrefix(s, "latex:") {
		return types.OcrResult{
			Latex:      strings.TrimPrefix(s, "latex:"),
			Confidence: 0.9,
			Source:     types.OcrSourceMathpix,
		}, nil
	}
	return types.OcrResult{}, fmt.Errorf("unreadable image")
}

type fakeValidator struct{}

func (f *fakeValidator) Validate(latex string) types.ValidationResult {
	return types.ValidationResult{Valid: true, Simplified: latex, OriginalLatex: latex}
}

type fakeExplainer struct {
	fail bool
}

func (f *fakeExplainer) Explain(ctx context.Context, latex string, imageContext string) (types.ExplanationResult, error) {
	if f.fail {
		return types.ExplanationResult{}, fmt.Errorf("llm unavailable")
	}
	return types.ExplanationResult{
		ProblemType: "Quadratic Equation",
		Steps: []types.ExplanationStep{
			{StepNumber: 1, Description: "Analyze", Latex: latex, Explanation: "step one"},
		},
		KeyConcepts: []string{"Algebra"},
		FinalAnswer: latex,
		Source:      "test",
	}, nil
}

type pipelineEnv struct {
	db       *gorm.DB
	jobs     repos.JobRepo
	images   repos.ImageTaskRepo
	lessons  repos.LessonRepo
	pipeline PipelineService
}

func newPipelineEnv(t *testing.T, explainer ExplainerService) *pipelineEnv {
	t.Helper()

	log, err := logger.New("development")
	require.NoError(t, err)

	// Busy timeout matters: image goroutines write concurrently.
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=10000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Job{}, &types.ImageTask{}, &types.Lesson{}))

	store, err := storage.NewLocalStore(log, filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	jobRepo := repos.NewJobRepo(db, log)
	imageRepo := repos.NewImageTaskRepo(db, log)
	lessonRepo := repos.NewLessonRepo(db, log)

	builder, err := NewLessonBuilderService(log)
	require.NoError(t, err)

	pipeline, err := NewPipelineService(
		log, db, jobRepo, imageRepo, lessonRepo,
		store, &fakeOcr{}, &fakeValidator{}, explainer, builder, nil,
		PipelineOptions{MaxImages: 5},
	)
	require.NoError(t, err)

	return &pipelineEnv{
		db:       db,
		jobs:     jobRepo,
		images:   imageRepo,
		lessons:  lessonRepo,
		pipeline: pipeline,
	}
}

func (e *pipelineEnv) waitForTerminal(t *testing.T, jobID uuid.UUID) *types.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := e.jobs.GetByID(context.Background(), nil, jobID)
		require.NoError(t, err)
		if job.Status == types.JobStatusCompleted || job.Status == types.JobStatusError {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", jobID)
	return nil
}

func TestSubmitRejectsZeroImages(t *testing.T) {
	env := newPipelineEnv(t, &fakeExplainer{})

	_, err := env.pipeline.Submit(context.Background(), nil)
	require.ErrorIs(t, err, apperr.ErrValidation)

	var count int64
	require.NoError(t, env.db.Model(&types.Job{}).Count(&count).Error)
	require.Zero(t, count, "no job row should exist after a rejected submission")
}

func TestSubmitRejectsTooManyImages(t *testing.T) {
	env := newPipelineEnv(t, &fakeExplainer{})

	images := make([]ImageUpload, 6)
	for i := range images {
		images[i] = ImageUpload{Name: fmt.Sprintf("p%d.png", i), Data: []byte("latex:x")}
	}
	_, err := env.pipeline.Submit(context.Background(), images)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPipelineIsolatesFailedImage(t *testing.T) {
	env := newPipelineEnv(t, &fakeExplainer{})

	job, err := env.pipeline.Submit(context.Background(), []ImageUpload{
		{Name: "good.png", ContentType: "image/png", Data: []byte("latex:x^2+1")},
		{Name: "bad.png", ContentType: "image/png", Data: []byte("garbage")},
	})
	require.NoError(t, err)
	require.Equal(t, types.JobStatusPending, job.Status)

	final := env.waitForTerminal(t, job.ID)
	require.Equal(t, types.JobStatusCompleted, final.Status)
	require.True(t, final.OcrDone)
	require.True(t, final.LlmDone)
	require.True(t, final.LessonBuilt)
	require.NotNil(t, final.LessonID)
	require.Empty(t, final.Error)

	lesson, err := env.lessons.GetByID(context.Background(), nil, *final.LessonID)
	require.NoError(t, err)
	require.Equal(t, 1, lesson.TotalSteps)

	var steps []types.LessonStep
	require.NoError(t, json.Unmarshal(lesson.Steps, &steps))
	require.Len(t, steps, 1)
	require.Equal(t, 0, steps[0].ImageIndex)
	require.Equal(t, "x^2+1", steps[0].Latex)
	require.Equal(t, types.OcrSourceMathpix, steps[0].Ocr.Source)

	// Lesson assembly reads the job with its images preloaded in upload order.
	withImages, err := env.jobs.GetWithImages(context.Background(), nil, job.ID)
	require.NoError(t, err)
	require.Len(t, withImages.Images, 2)
	require.Equal(t, 0, withImages.Images[0].Index)
	require.Equal(t, 1, withImages.Images[1].Index)

	failed := withImages.Images[1]
	require.Contains(t, failed.StageErrors[types.StageOCR], "failed: ")
	require.Equal(t, "skipped: missing input", failed.StageErrors[types.StageValidation])
	require.Equal(t, "skipped: missing input", failed.StageErrors[types.StageExplanation])
	require.NotContains(t, withImages.Images[0].StageErrors, types.StageOCR,
		"a successful stage writes no stage_errors entry")
}

func TestPipelineFailsJobWhenNoImageYieldsOcr(t *testing.T) {
	env := newPipelineEnv(t, &fakeExplainer{})

	job, err := env.pipeline.Submit(context.Background(), []ImageUpload{
		{Name: "a.png", ContentType: "image/png", Data: []byte("garbage")},
		{Name: "b.png", ContentType: "image/png", Data: []byte("also garbage")},
	})
	require.NoError(t, err)

	final := env.waitForTerminal(t, job.ID)
	require.Equal(t, types.JobStatusError, final.Status)
	require.NotEmpty(t, final.Error)

	// Attempt flags still flip: every image attempted both stages.
	require.True(t, final.OcrDone)
	require.True(t, final.LlmDone)
	require.False(t, final.LessonBuilt)
	require.Nil(t, final.LessonID)
}

func TestPipelineExplanationFailureDoesNotFailJob(t *testing.T) {
	env := newPipelineEnv(t, &fakeExplainer{fail: true})

	job, err := env.pipeline.Submit(context.Background(), []ImageUpload{
		{Name: "a.png", ContentType: "image/png", Data: []byte("latex:2x+3=7")},
	})
	require.NoError(t, err)

	final := env.waitForTerminal(t, job.ID)
	require.Equal(t, types.JobStatusCompleted, final.Status)
	require.True(t, final.LlmDone)
	require.NotNil(t, final.LessonID)

	tasks, err := env.images.GetByJobID(context.Background(), nil, job.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Contains(t, tasks[0].StageErrors[types.StageExplanation], "failed")

	// The step survives with OCR and validation but no explanation.
	lesson, err := env.lessons.GetByID(context.Background(), nil, *final.LessonID)
	require.NoError(t, err)
	var steps []types.LessonStep
	require.NoError(t, json.Unmarshal(lesson.Steps, &steps))
	require.Len(t, steps, 1)
	require.Nil(t, steps[0].Explanation)
	require.NotNil(t, steps[0].Validation)
}

func TestPipelineAssignsDefaultTags(t *testing.T) {
	env := newPipelineEnv(t, &fakeExplainer{})

	job, err := env.pipeline.Submit(context.Background(), []ImageUpload{
		{Name: "a.png", ContentType: "image/png", Tag: "intro", Data: []byte("latex:x")},
		{Name: "b.png", ContentType: "image/png", Data: []byte("latex:y")},
	})
	require.NoError(t, err)

	tasks, err := env.images.GetByJobID(context.Background(), nil, job.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, "intro", tasks[0].Tag)
	require.Equal(t, "pic2", tasks[1].Tag)

	env.waitForTerminal(t, job.ID)
}
