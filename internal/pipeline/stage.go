package pipeline

import "time"

// Stage identifies one step of the fixed processing sequence.
type Stage string

const (
	StageValidation        Stage = "VALIDATION"
	StagePreprocessing     Stage = "PREPROCESSING"
	StageRecognition       Stage = "RECOGNITION"
	StageFieldExtraction   Stage = "FIELD_EXTRACTION"
	StageConfidenceScoring Stage = "CONFIDENCE_SCORING"
	StageResultValidation  Stage = "RESULT_VALIDATION"
	StageCompilation       Stage = "COMPILATION"
)

type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepRunning   StepStatus = "RUNNING"
	StepRetrying  StepStatus = "RETRYING"
	StepCompleted StepStatus = "COMPLETED"
	StepFailed    StepStatus = "FAILED"
	StepSkipped   StepStatus = "SKIPPED"
)

// StepRecord is the append-only per-stage audit record of one run. It is
// owned by the orchestrator while the run executes and immutable afterwards.
type StepRecord struct {
	Stage        Stage
	Status       StepStatus
	Start        time.Time
	End          time.Time
	RetryCount   int
	EngineUsed   string
	ErrorMessage string
}
