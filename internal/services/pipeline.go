package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mathscrap/mathscrap-backend/internal/apperr"
	"github.com/mathscrap/mathscrap-backend/internal/events"
	"github.com/mathscrap/mathscrap-backend/internal/logger"
	"github.com/mathscrap/mathscrap-backend/internal/repos"
	"github.com/mathscrap/mathscrap-backend/internal/storage"
	"github.com/mathscrap/mathscrap-backend/internal/types"
)

// ImageUpload is one submitted image before persistence.
type ImageUpload struct {
	Name        string
	ContentType string
	Tag         string
	Data        []byte
}

// PipelineOptions are the orchestration tunables.
type PipelineOptions struct {
	MaxImages      int
	OcrTimeout     time.Duration
	ExplainTimeout time.Duration
}

// PipelineService owns the job lifecycle: submission, the per-image stage
// pipeline, flag advancement, and final lesson assembly.
type PipelineService interface {
	Submit(ctx context.Context, images []ImageUpload) (*types.Job, error)
}

type pipelineService struct {
	log       *logger.Logger
	db        *gorm.DB
	jobs      repos.JobRepo
	images    repos.ImageTaskRepo
	lessons   repos.LessonRepo
	store     storage.BlobStore
	ocr       OcrService
	validator ValidatorService
	explainer ExplainerService // nil when no LLM credentials are configured
	builder   LessonBuilderService
	bus       events.Bus // nil when no event bus is configured
	opts      PipelineOptions
}

func NewPipelineService(
	log *logger.Logger,
	db *gorm.DB,
	jobs repos.JobRepo,
	images repos.ImageTaskRepo,
	lessons repos.LessonRepo,
	store storage.BlobStore,
	ocr OcrService,
	validator ValidatorService,
	explainer ExplainerService,
	builder LessonBuilderService,
	bus events.Bus,
	opts PipelineOptions,
) (PipelineService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if db == nil || jobs == nil || images == nil || lessons == nil {
		return nil, fmt.Errorf("database and repos required")
	}
	if store == nil || ocr == nil || validator == nil || builder == nil {
		return nil, fmt.Errorf("storage, ocr, validator, and builder required")
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = 5
	}
	if opts.OcrTimeout <= 0 {
		opts.OcrTimeout = 60 * time.Second
	}
	if opts.ExplainTimeout <= 0 {
		opts.ExplainTimeout = 90 * time.Second
	}
	return &pipelineService{
		log:       log.With("service", "PipelineService"),
		db:        db,
		jobs:      jobs,
		images:    images,
		lessons:   lessons,
		store:     store,
		ocr:       ocr,
		validator: validator,
		explainer: explainer,
		builder:   builder,
		bus:       bus,
		opts:      opts,
	}, nil
}

func (s *pipelineService) Submit(ctx context.Context, images []ImageUpload) (*types.Job, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: at least one image is required", apperr.ErrValidation)
	}
	if len(images) > s.opts.MaxImages {
		return nil, fmt.Errorf("%w: at most %d images per job", apperr.ErrValidation, s.opts.MaxImages)
	}
	for i, img := range images {
		if len(img.Data) == 0 {
			return nil, fmt.Errorf("%w: image %d is empty", apperr.ErrValidation, i)
		}
	}

	job := &types.Job{
		ID:     uuid.New(),
		Status: types.JobStatusPending,
	}

	tasks := make([]*types.ImageTask, 0, len(images))
	for i, img := range images {
		tag := strings.TrimSpace(img.Tag)
		if tag == "" {
			tag = fmt.Sprintf("pic%d", i+1)
		}

		handle, err := s.store.Save(ctx, fmt.Sprintf("%s_%d_%s", job.ID, i, img.Name), img.Data)
		if err != nil {
			return nil, fmt.Errorf("store image %d: %w", i, err)
		}
		tasks = append(tasks, &types.ImageTask{
			ID:      uuid.New(),
			JobID:   job.ID,
			Index:   i,
			Tag:     tag,
			FileRef: handle,
		})
	}

	contentTypes := make([]string, len(images))
	for i, img := range images {
		contentTypes[i] = img.ContentType
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.jobs.Create(ctx, tx, job); err != nil {
			return err
		}
		if _, err := s.images.CreateBatch(ctx, tx, tasks); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	s.log.Info("Job submitted", "job_id", job.ID.String(), "images", len(tasks))
	s.publish(events.JobEvent{JobID: job.ID.String(), Status: types.JobStatusPending})

	go s.processJob(context.Background(), job.ID, tasks, contentTypes)

	return job, nil
}

// completionTracker flips the monotonic job flags once every image has
// attempted the relevant stage. Guarded by its own mutex; task goroutines are
// the only writers.
type completionTracker struct {
	mu           sync.Mutex
	total        int
	ocrAttempts  int
	llmAttempts  int
	ocrSuccesses int
	ocrFlipped   bool
	llmFlipped   bool
}

func (t *completionTracker) ocrAttempted(success bool) (flip bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ocrAttempts++
	if success {
		t.ocrSuccesses++
	}
	if t.ocrAttempts == t.total && !t.ocrFlipped {
		t.ocrFlipped = true
		return true
	}
	return false
}

func (t *completionTracker) llmAttempted() (flip bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.llmAttempts++
	if t.llmAttempts == t.total && !t.llmFlipped {
		t.llmFlipped = true
		return true
	}
	return false
}

func (t *completionTracker) successes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ocrSuccesses
}

func (s *pipelineService) processJob(ctx context.Context, jobID uuid.UUID, tasks []*types.ImageTask, contentTypes []string) {
	log := s.log.With("job_id", jobID.String())

	if err := s.jobs.UpdateFields(ctx, nil, jobID, map[string]interface{}{
		"status": types.JobStatusProcessing,
	}); err != nil {
		log.Error("Failed to mark job processing", "error", err)
		s.failJob(ctx, jobID, fmt.Sprintf("pipeline fault: %v", err))
		return
	}
	s.publish(events.JobEvent{JobID: jobID.String(), Status: types.JobStatusProcessing})

	tracker := &completionTracker{total: len(tasks)}

	g, gctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		task := task
		contentType := ""
		if i < len(contentTypes) {
			contentType = contentTypes[i]
		}
		g.Go(func() error {
			// Stage failures are data; nothing an image does can fail the
			// group and take its siblings down with it.
			s.processImage(gctx, jobID, task, contentType, tracker)
			return nil
		})
	}
	_ = g.Wait()

	if tracker.successes() == 0 {
		log.Warn("No image produced OCR output; failing job")
		s.failJob(ctx, jobID, "no mathematical content could be extracted from any image")
		return
	}

	if err := s.assembleLesson(ctx, jobID); err != nil {
		log.Error("Lesson assembly failed", "error", err)
		s.failJob(ctx, jobID, fmt.Sprintf("lesson assembly failed: %v", err))
		return
	}

	if err := s.jobs.UpdateFields(ctx, nil, jobID, map[string]interface{}{
		"status": types.JobStatusCompleted,
	}); err != nil {
		log.Error("Failed to mark job completed", "error", err)
		return
	}
	log.Info("Job completed")
	s.publish(events.JobEvent{JobID: jobID.String(), Status: types.JobStatusCompleted})
}

func (s *pipelineService) processImage(ctx context.Context, jobID uuid.UUID, task *types.ImageTask, contentType string, tracker *completionTracker) {
	log := s.log.With("job_id", jobID.String(), "image_index", task.Index)
	outcomes := map[string]types.StageOutcome{}

	// ---- OCR ----
	var ocrResult *types.OcrResult

	data, err := s.store.Load(ctx, task.FileRef)
	if err != nil {
		outcomes[types.StageOCR] = types.StageFailure(fmt.Sprintf("load image: %v", err))
	} else {
		ocrCtx, cancel := context.WithTimeout(ctx, s.opts.OcrTimeout)
		res, ocrErr := s.ocr.Extract(ocrCtx, data, contentType)
		cancel()
		if ocrErr != nil {
			outcomes[types.StageOCR] = types.StageFailure(ocrErr.Error())
			log.Warn("OCR failed", "error", ocrErr.Error())
		} else {
			ocrResult = &res
			outcomes[types.StageOCR] = types.StageOK()
		}
	}

	updates := map[string]interface{}{}
	if ocrResult != nil {
		raw, mErr := json.Marshal(ocrResult)
		if mErr != nil {
			outcomes[types.StageOCR] = types.StageFailure(fmt.Sprintf("encode result: %v", mErr))
			ocrResult = nil
		} else {
			updates["ocr_result"] = datatypes.JSON(raw)
		}
	}
	if fields := stageErrorFields(outcomes); len(fields) > 0 {
		updates["stage_errors"] = fields
	}
	if len(updates) > 0 {
		if err := s.images.UpdateFields(ctx, nil, task.ID, updates); err != nil {
			log.Error("Failed to persist OCR stage", "error", err)
		}
	}

	if tracker.ocrAttempted(outcomes[types.StageOCR].Succeeded()) {
		s.flipFlag(ctx, jobID, "ocr_done")
	}
	s.publishStage(jobID, types.StageOCR, task.Index, outcomes[types.StageOCR])

	// ---- Validation ----
	if ocrResult == nil {
		outcomes[types.StageValidation] = types.StageSkip("missing input")
		outcomes[types.StageExplanation] = types.StageSkip("missing input")
		if err := s.images.UpdateFields(ctx, nil, task.ID, map[string]interface{}{
			"stage_errors": stageErrorFields(outcomes),
		}); err != nil {
			log.Error("Failed to persist skip markers", "error", err)
		}
		if tracker.llmAttempted() {
			s.flipFlag(ctx, jobID, "llm_done")
		}
		return
	}

	validation := s.validator.Validate(ocrResult.Latex)
	outcomes[types.StageValidation] = types.StageOK()
	if raw, mErr := json.Marshal(validation); mErr == nil {
		if err := s.images.UpdateFields(ctx, nil, task.ID, map[string]interface{}{
			"validation_result": datatypes.JSON(raw),
		}); err != nil {
			log.Error("Failed to persist validation stage", "error", err)
		}
	}
	s.publishStage(jobID, types.StageValidation, task.Index, outcomes[types.StageValidation])

	// ---- Explanation ----
	var explanation *types.ExplanationResult
	if s.explainer == nil {
		outcomes[types.StageExplanation] = types.StageFailure("explanation service not configured")
	} else {
		expCtx, cancel := context.WithTimeout(ctx, s.opts.ExplainTimeout)
		imageContext := fmt.Sprintf("This is image %d from a sequence of math problems", task.Index+1)
		res, expErr := s.explainer.Explain(expCtx, ocrResult.Latex, imageContext)
		cancel()
		if expErr != nil {
			outcomes[types.StageExplanation] = types.StageFailure(expErr.Error())
			log.Warn("Explanation failed", "error", expErr.Error())
		} else {
			explanation = &res
			outcomes[types.StageExplanation] = types.StageOK()
		}
	}

	updates = map[string]interface{}{}
	if explanation != nil {
		if raw, mErr := json.Marshal(explanation); mErr == nil {
			updates["explanation_result"] = datatypes.JSON(raw)
		}
	}
	if fields := stageErrorFields(outcomes); len(fields) > 0 {
		updates["stage_errors"] = fields
	}
	if len(updates) > 0 {
		if err := s.images.UpdateFields(ctx, nil, task.ID, updates); err != nil {
			log.Error("Failed to persist explanation stage", "error", err)
		}
	}

	if tracker.llmAttempted() {
		s.flipFlag(ctx, jobID, "llm_done")
	}
	s.publishStage(jobID, types.StageExplanation, task.Index, outcomes[types.StageExplanation])
}

// stageErrorFields keeps only the non-success outcomes; a clean run writes no
// stage_errors at all.
func stageErrorFields(outcomes map[string]types.StageOutcome) datatypes.JSONMap {
	fields := datatypes.JSONMap{}
	for stage, outcome := range outcomes {
		if !outcome.Succeeded() {
			fields[stage] = outcome.Describe()
		}
	}
	return fields
}

func (s *pipelineService) assembleLesson(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.jobs.GetWithImages(ctx, nil, jobID)
	if err != nil {
		return fmt.Errorf("load job images: %w", err)
	}
	tasks := make([]*types.ImageTask, len(job.Images))
	for i := range job.Images {
		tasks[i] = &job.Images[i]
	}

	title, summary, steps, err := s.builder.Build(tasks)
	if err != nil {
		return err
	}

	rawSteps, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}

	lesson := &types.Lesson{
		ID:         uuid.New(),
		JobID:      jobID,
		Title:      title,
		Summary:    summary,
		TotalSteps: len(steps),
		Steps:      datatypes.JSON(rawSteps),
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.lessons.Create(ctx, tx, lesson); err != nil {
			return err
		}
		return s.jobs.UpdateFields(ctx, tx, jobID, map[string]interface{}{
			"lesson_built": true,
			"lesson_id":    lesson.ID,
		})
	})
}

func (s *pipelineService) flipFlag(ctx context.Context, jobID uuid.UUID, column string) {
	if err := s.jobs.UpdateFields(ctx, nil, jobID, map[string]interface{}{
		column: true,
	}); err != nil {
		s.log.Error("Failed to flip job flag", "job_id", jobID.String(), "flag", column, "error", err)
		return
	}
	s.publish(events.JobEvent{JobID: jobID.String(), Status: types.JobStatusProcessing, Detail: column})
}

func (s *pipelineService) failJob(ctx context.Context, jobID uuid.UUID, reason string) {
	if err := s.jobs.UpdateFields(ctx, nil, jobID, map[string]interface{}{
		"status": types.JobStatusError,
		"error":  reason,
	}); err != nil {
		s.log.Error("Failed to mark job errored", "job_id", jobID.String(), "error", err)
		return
	}
	s.publish(events.JobEvent{JobID: jobID.String(), Status: types.JobStatusError, Detail: reason})
}

func (s *pipelineService) publish(ev events.JobEvent) {
	if s.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Debug("Job event publish failed", "error", err)
	}
}

func (s *pipelineService) publishStage(jobID uuid.UUID, stage string, index int, outcome types.StageOutcome) {
	if s.bus == nil {
		return
	}
	d := ""
	if !outcome.Succeeded() {
		d = outcome.Describe()
	}
	idx := index
	s.publish(events.JobEvent{
		JobID:      jobID.String(),
		Status:     types.JobStatusProcessing,
		Stage:      stage,
		ImageIndex: &idx,
		Detail:     d,
	})
}
