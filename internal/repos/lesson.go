package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mathscrap/mathscrap-backend/internal/apperr"
	"github.com/mathscrap/mathscrap-backend/internal/logger"
	"github.com/mathscrap/mathscrap-backend/internal/types"
)

type LessonRepo interface {
	Create(ctx context.Context, tx *gorm.DB, lesson *types.Lesson) (*types.Lesson, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Lesson, error)
}

type lessonRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLessonRepo(db *gorm.DB, baseLog *logger.Logger) LessonRepo {
	return &lessonRepo{
		db:  db,
		log: baseLog.With("repo", "LessonRepo"),
	}
}

func (r *lessonRepo) Create(ctx context.Context, tx *gorm.DB, lesson *types.Lesson) (*types.Lesson, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if lesson == nil {
		return nil, errors.New("lesson required")
	}
	if lesson.ID == uuid.Nil {
		lesson.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(lesson).Error; err != nil {
		return nil, err
	}
	return lesson, nil
}

func (r *lessonRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Lesson, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, apperr.ErrNotFound
	}
	var lesson types.Lesson
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&lesson).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}
