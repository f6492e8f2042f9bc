package app

import (
	"os"

	"gorm.io/gorm"

	"github.com/mathscrap/mathscrap-backend/internal/clients/mathpix"
	"github.com/mathscrap/mathscrap-backend/internal/clients/openrouter"
	"github.com/mathscrap/mathscrap-backend/internal/clients/tesseract"
	"github.com/mathscrap/mathscrap-backend/internal/events"
	"github.com/mathscrap/mathscrap-backend/internal/logger"
	"github.com/mathscrap/mathscrap-backend/internal/services"
	"github.com/mathscrap/mathscrap-backend/internal/storage"
)

type Services struct {
	Store     storage.BlobStore
	Ocr       services.OcrService
	Validator services.ValidatorService
	Explainer services.ExplainerService
	Builder   services.LessonBuilderService
	Pipeline  services.PipelineService
	Status    services.StatusService
}

func wireServices(theDB *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, bus events.Bus) (Services, error) {
	var out Services

	store, err := storage.NewLocalStore(log, cfg.UploadDir)
	if err != nil {
		return out, err
	}

	local, err := tesseract.NewRecognizer(log)
	if err != nil {
		return out, err
	}

	// Mathpix is optional; without credentials the OCR service runs local-only.
	var remote mathpix.Client
	if os.Getenv("MATHPIX_APP_ID") != "" {
		remote, err = mathpix.NewClient(log)
		if err != nil {
			log.Warn("Mathpix client unavailable; continuing local-only", "error", err)
			remote = nil
		}
	}

	ocr, err := services.NewOcrService(log, local, remote, cfg.OcrConfidence)
	if err != nil {
		return out, err
	}

	validator, err := services.NewValidatorService(log)
	if err != nil {
		return out, err
	}

	// Explanations degrade to per-image stage failures when no key is set.
	var explainer services.ExplainerService
	if os.Getenv("OPENROUTER_API_KEY") != "" {
		llm, err := openrouter.NewClient(log)
		if err != nil {
			return out, err
		}
		explainer, err = services.NewExplainerService(log, llm)
		if err != nil {
			return out, err
		}
	} else {
		log.Warn("OPENROUTER_API_KEY not set; explanation stage disabled")
	}

	builder, err := services.NewLessonBuilderService(log)
	if err != nil {
		return out, err
	}

	pipeline, err := services.NewPipelineService(
		log, theDB,
		reposet.Jobs, reposet.Images, reposet.Lessons,
		store, ocr, validator, explainer, builder, bus,
		services.PipelineOptions{
			MaxImages:      cfg.MaxImages,
			OcrTimeout:     cfg.OcrTimeout,
			ExplainTimeout: cfg.ExplainTimeout,
		},
	)
	if err != nil {
		return out, err
	}

	status, err := services.NewStatusService(log, reposet.Jobs, reposet.Lessons)
	if err != nil {
		return out, err
	}

	out = Services{
		Store:     store,
		Ocr:       ocr,
		Validator: validator,
		Explainer: explainer,
		Builder:   builder,
		Pipeline:  pipeline,
		Status:    status,
	}
	return out, nil
}
