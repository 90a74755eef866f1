package scheduler

import (
	"time"

	"github.com/google/uuid"

	"github.com/m3n3sx/faktulove-ocr/internal/document"
	"github.com/m3n3sx/faktulove-ocr/internal/pipeline"
)

type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent

	priorityLevels = 4
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	}
	return "unknown"
}

type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Callback is invoked exactly once when a task finishes, on the worker
// goroutine that ran it.
type Callback func(TaskView)

// Task is owned by the scheduler until dispatch, then exclusively by the
// executing worker until completion, after which it moves to the bounded
// completed table.
type Task struct {
	ID          uuid.UUID
	Document    document.Document
	Priority    Priority
	SubmittedAt time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Status      TaskStatus
	Result      *pipeline.Result
	Err         error

	callback Callback
}

// TaskView is the immutable snapshot returned to callers.
type TaskView struct {
	ID          uuid.UUID
	Priority    Priority
	Status      TaskStatus
	SubmittedAt time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Result      *pipeline.Result
	Err         error
}

func (t *Task) view() TaskView {
	return TaskView{
		ID:          t.ID,
		Priority:    t.Priority,
		Status:      t.Status,
		SubmittedAt: t.SubmittedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
		Result:      t.Result,
		Err:         t.Err,
	}
}
