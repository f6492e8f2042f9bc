package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusError      = "error"
)

const (
	StageOCR         = "ocr"
	StageValidation  = "validation"
	StageExplanation = "explanation"
)

const (
	OcrSourceLocal   = "local"
	OcrSourceMathpix = "mathpix"
)

// Job is one upload batch moving through the pipeline. The three done flags
// are monotonic: they flip false -> true exactly once and never revert.
type Job struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	Status      string      `gorm:"column:status;not null;index" json:"status"`
	Error       string      `gorm:"column:error" json:"error,omitempty"`
	OcrDone     bool        `gorm:"column:ocr_done;not null;default:false" json:"ocr_done"`
	LlmDone     bool        `gorm:"column:llm_done;not null;default:false" json:"llm_done"`
	LessonBuilt bool        `gorm:"column:lesson_built;not null;default:false" json:"lesson_built"`
	LessonID    *uuid.UUID  `gorm:"type:uuid;column:lesson_id" json:"lesson_id,omitempty"`
	Images      []ImageTask `gorm:"foreignKey:JobID" json:"images,omitempty"`
	CreatedAt   time.Time   `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"not null" json:"updated_at"`
}

func (Job) TableName() string { return "job" }

// ImageTask is owned exclusively by its Job. Index is the upload position and
// stays stable for the life of the job; stage results land in the JSON
// columns as each stage reaches a terminal state.
type ImageTask struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	JobID             uuid.UUID         `gorm:"type:uuid;not null;index" json:"job_id"`
	Index             int               `gorm:"column:image_index;not null" json:"index"`
	Tag               string            `gorm:"column:tag" json:"tag"`
	FileRef           string            `gorm:"column:file_ref" json:"file_ref"`
	OcrResult         datatypes.JSON    `gorm:"column:ocr_result" json:"ocr_result,omitempty"`
	ValidationResult  datatypes.JSON    `gorm:"column:validation_result" json:"validation_result,omitempty"`
	ExplanationResult datatypes.JSON    `gorm:"column:explanation_result" json:"explanation_result,omitempty"`
	StageErrors       datatypes.JSONMap `gorm:"column:stage_errors" json:"stage_errors,omitempty"`
	CreatedAt         time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null" json:"updated_at"`
}

func (ImageTask) TableName() string { return "image_task" }

// Lesson is derived once per job and immutable after that.
type Lesson struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"job_id"`
	Title      string         `gorm:"column:title;not null" json:"title"`
	Summary    string         `gorm:"column:summary" json:"summary,omitempty"`
	TotalSteps int            `gorm:"column:total_steps;not null" json:"total_steps"`
	Steps      datatypes.JSON `gorm:"column:steps" json:"steps"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
}

func (Lesson) TableName() string { return "lesson" }

// ---- Stage payloads (marshaled into the ImageTask JSON columns) ----

type OcrResult struct {
	Latex      string  `json:"latex"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

type ValidationResult struct {
	Valid         bool   `json:"valid"`
	Simplified    string `json:"simplified,omitempty"`
	Error         string `json:"error,omitempty"`
	OriginalLatex string `json:"original_latex"`
}

type ExplanationStep struct {
	StepNumber  int    `json:"step_number"`
	Description string `json:"description"`
	Latex       string `json:"latex"`
	Explanation string `json:"explanation"`
}

type ExplanationResult struct {
	ProblemType    string            `json:"problem_type"`
	Steps          []ExplanationStep `json:"steps"`
	KeyConcepts    []string          `json:"key_concepts"`
	CommonMistakes []string          `json:"common_mistakes"`
	FinalAnswer    string            `json:"final_answer"`
	Source         string            `json:"source,omitempty"`
}

// ---- Stage outcome tags ----

type StageState string

const (
	StageSuccess StageState = "success"
	StageFailed  StageState = "failed"
	StageSkipped StageState = "skipped"
)

// StageOutcome is the tagged per-stage result the orchestrator tracks while
// advancing flags and writing stage_errors. Failures and skips are data here,
// never errors crossing image boundaries.
type StageOutcome struct {
	State  StageState `json:"state"`
	Reason string     `json:"reason,omitempty"`
}

func StageOK() StageOutcome { return StageOutcome{State: StageSuccess} }

func StageFailure(reason string) StageOutcome {
	return StageOutcome{State: StageFailed, Reason: reason}
}

func StageSkip(reason string) StageOutcome {
	return StageOutcome{State: StageSkipped, Reason: reason}
}

func (o StageOutcome) Succeeded() bool { return o.State == StageSuccess }

// Describe renders the outcome the way stage_errors records it, e.g.
// "failed: unreadable image" or "skipped: missing input".
func (o StageOutcome) Describe() string {
	if o.Reason == "" {
		return string(o.State)
	}
	return string(o.State) + ": " + o.Reason
}

// ---- Boundary snapshots ----

type JobStatus struct {
	JobID       uuid.UUID  `json:"job_id"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	OcrDone     bool       `json:"ocr_done"`
	LlmDone     bool       `json:"llm_done"`
	LessonBuilt bool       `json:"lesson_built"`
	LessonID    *uuid.UUID `json:"lesson_id,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type LessonStep struct {
	StepID      string             `json:"step_id"`
	ImageIndex  int                `json:"image_index"`
	Tag         string             `json:"tag"`
	Latex       string             `json:"latex"`
	StepType    string             `json:"step_type"`
	Ocr         *OcrResult         `json:"ocr_result,omitempty"`
	Validation  *ValidationResult  `json:"validation,omitempty"`
	Explanation *ExplanationResult `json:"explanation,omitempty"`
}

type LessonDocument struct {
	LessonID   uuid.UUID    `json:"lesson_id"`
	Title      string       `json:"title"`
	Summary    string       `json:"summary,omitempty"`
	TotalSteps int          `json:"total_steps"`
	Steps      []LessonStep `json:"steps"`
	CreatedAt  time.Time    `json:"created_at"`
	JobID      uuid.UUID    `json:"job_id"`
}
