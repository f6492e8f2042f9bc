package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mathscrap/mathscrap-backend/internal/logger"
	"github.com/mathscrap/mathscrap-backend/internal/repos"
	"github.com/mathscrap/mathscrap-backend/internal/types"
)

// StatusService serves read-only snapshots for the polling endpoints. Reads
// go straight to the database and never wait on in-flight pipeline work.
type StatusService interface {
	GetStatus(ctx context.Context, jobID uuid.UUID) (*types.JobStatus, error)
	GetLesson(ctx context.Context, lessonID uuid.UUID) (*types.LessonDocument, error)
}

type statusService struct {
	log     *logger.Logger
	jobs    repos.JobRepo
	lessons repos.LessonRepo
}

func NewStatusService(log *logger.Logger, jobs repos.JobRepo, lessons repos.LessonRepo) (StatusService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if jobs == nil || lessons == nil {
		return nil, fmt.Errorf("repos required")
	}
	return &statusService{
		log:     log.With("service", "StatusService"),
		jobs:    jobs,
		lessons: lessons,
	}, nil
}

func (s *statusService) GetStatus(ctx context.Context, jobID uuid.UUID) (*types.JobStatus, error) {
	job, err := s.jobs.GetByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	return &types.JobStatus{
		JobID:       job.ID,
		Status:      job.Status,
		CreatedAt:   job.CreatedAt,
		OcrDone:     job.OcrDone,
		LlmDone:     job.LlmDone,
		LessonBuilt: job.LessonBuilt,
		LessonID:    job.LessonID,
		Error:       job.Error,
	}, nil
}

func (s *statusService) GetLesson(ctx context.Context, lessonID uuid.UUID) (*types.LessonDocument, error) {
	lesson, err := s.lessons.GetByID(ctx, nil, lessonID)
	if err != nil {
		return nil, err
	}
	var steps []types.LessonStep
	if len(lesson.Steps) > 0 {
		if err := json.Unmarshal(lesson.Steps, &steps); err != nil {
			return nil, fmt.Errorf("decode lesson steps: %w", err)
		}
	}
	return &types.LessonDocument{
		LessonID:   lesson.ID,
		Title:      lesson.Title,
		Summary:    lesson.Summary,
		TotalSteps: lesson.TotalSteps,
		Steps:      steps,
		CreatedAt:  lesson.CreatedAt,
		JobID:      lesson.JobID,
	}, nil
}
