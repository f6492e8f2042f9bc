package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mathscrap/mathscrap-backend/internal/logger"
	"github.com/mathscrap/mathscrap-backend/internal/types"
)

type ImageTaskRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, tasks []*types.ImageTask) ([]*types.ImageTask, error)
	GetByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.ImageTask, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type imageTaskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImageTaskRepo(db *gorm.DB, baseLog *logger.Logger) ImageTaskRepo {
	return &imageTaskRepo{
		db:  db,
		log: baseLog.With("repo", "ImageTaskRepo"),
	}
}

func (r *imageTaskRepo) CreateBatch(ctx context.Context, tx *gorm.DB, tasks []*types.ImageTask) ([]*types.ImageTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(tasks) == 0 {
		return []*types.ImageTask{}, nil
	}
	for _, t := range tasks {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
	}
	if err := transaction.WithContext(ctx).Create(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *imageTaskRepo) GetByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.ImageTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ImageTask
	if jobID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("image_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *imageTaskRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.ImageTask{}).
		Where("id = ?", id).
		Updates(updates).Error
}
