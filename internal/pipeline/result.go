package pipeline

import (
	"fmt"
	"time"
)

// Result is the compiled outcome of one pipeline run. A failed run never
// carries partial extraction output: Success=false implies Confidence=0 and
// a populated FailedStage/Err, with the full step history retained.
type Result struct {
	Success      bool
	Text         string
	Fields       map[string]string
	Confidence   float64
	EnginesUsed  []string
	FallbackUsed bool
	CacheHit     bool
	Duration     time.Duration
	Steps        []StepRecord
	FailedStage  Stage
	Err          error
}

// StageError wraps a stage-terminal failure with stage identity and the
// number of attempts that were made, so the caller always receives a
// structured failure instead of a raw engine error.
type StageError struct {
	Stage    Stage
	Attempts int
	Cause    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }
