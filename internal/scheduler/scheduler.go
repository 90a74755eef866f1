// Package scheduler accepts documents for asynchronous processing through a
// 4-level priority queue and a resizable worker pool that feeds the
// pipeline orchestrator. Only queue and bookkeeping mutation is serialized;
// task execution itself never holds a scheduler lock.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/m3n3sx/faktulove-ocr/internal/document"
	"github.com/m3n3sx/faktulove-ocr/internal/errdefs"
	"github.com/m3n3sx/faktulove-ocr/internal/pipeline"
	"github.com/m3n3sx/faktulove-ocr/pkg/metrics"
)

type Config struct {
	Workers        int
	MaxWorkers     int
	QueueCapacity  int
	CompletedLimit int
}

func DefaultConfig() Config {
	return Config{
		Workers:        4,
		MaxWorkers:     16,
		QueueCapacity:  256,
		CompletedLimit: 1000,
	}
}

// Runner is the orchestration entry point invoked per task. Satisfied by
// *pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context, doc document.Document) pipeline.Result
}

type Scheduler struct {
	cfg    Config
	queue  *priorityQueue
	runner Runner
	log    *zap.SugaredLogger

	mu             sync.Mutex
	active         map[uuid.UUID]*Task
	completed      map[uuid.UUID]*Task
	completedOrder []uuid.UUID
	workerStops    []chan struct{}
	stopped        bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg Config, runner Runner) *Scheduler {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxWorkers < cfg.Workers {
		cfg.MaxWorkers = cfg.Workers
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}
	if cfg.CompletedLimit <= 0 {
		cfg.CompletedLimit = def.CompletedLimit
	}
	return &Scheduler{
		cfg:       cfg,
		queue:     newPriorityQueue(cfg.QueueCapacity),
		runner:    runner,
		log:       zap.S().Named("scheduler"),
		active:    make(map[uuid.UUID]*Task),
		completed: make(map[uuid.UUID]*Task),
	}
}

// Start launches the initial worker pool.
func (s *Scheduler) Start(ctx context.Context) {
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.mu.Lock()
	for i := 0; i < s.cfg.Workers; i++ {
		s.spawnWorkerLocked()
	}
	s.mu.Unlock()
	s.log.Infof("scheduler started with %d workers", s.cfg.Workers)
}

// Submit enqueues a document. It blocks when the queue is full and fails
// once the scheduler is stopped. The optional callback fires exactly once
// on completion.
func (s *Scheduler) Submit(doc document.Document, priority Priority, callback Callback) (uuid.UUID, error) {
	if priority < PriorityLow || priority > PriorityUrgent {
		return uuid.Nil, errdefs.NewValidationError("invalid priority %d", priority)
	}
	task := &Task{
		ID:          uuid.New(),
		Document:    doc,
		Priority:    priority,
		SubmittedAt: time.Now(),
		Status:      TaskQueued,
		callback:    callback,
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return uuid.Nil, errors.New("scheduler stopped")
	}
	s.active[task.ID] = task
	s.mu.Unlock()

	if err := s.queue.Put(task); err != nil {
		s.mu.Lock()
		delete(s.active, task.ID)
		s.mu.Unlock()
		return uuid.Nil, err
	}
	metrics.IncreaseTasksSubmittedTotalMetric(priority.String())
	metrics.SetQueueDepthMetric(s.queue.Len())
	return task.ID, nil
}

// Status reports the current state of a task, searching active tasks first
// and then the bounded completed table.
func (s *Scheduler) Status(taskID uuid.UUID) (TaskView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.active[taskID]; ok {
		return t.view(), true
	}
	if t, ok := s.completed[taskID]; ok {
		return t.view(), true
	}
	return TaskView{}, false
}

// AwaitAll blocks until every submitted task has finished or the timeout
// elapses, reporting whether the backlog fully drained.
func (s *Scheduler) AwaitAll(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		pending := len(s.active)
		s.mu.Unlock()
		if pending == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// QueueDepth returns the number of queued, not yet dispatched tasks.
func (s *Scheduler) QueueDepth() int { return s.queue.Len() }

// WorkerCount returns the current size of the worker pool.
func (s *Scheduler) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workerStops)
}

// Grow adds workers up to the configured maximum and reports the new size.
func (s *Scheduler) Grow(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n && len(s.workerStops) < s.cfg.MaxWorkers; i++ {
		s.spawnWorkerLocked()
	}
	return len(s.workerStops)
}

// Shrink signals workers to exit after their current task, keeping at
// least one worker, and reports the new size.
func (s *Scheduler) Shrink(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n && len(s.workerStops) > 1; i++ {
		stop := s.workerStops[len(s.workerStops)-1]
		s.workerStops = s.workerStops[:len(s.workerStops)-1]
		close(stop)
	}
	metrics.SetWorkerCountMetric(len(s.workerStops))
	return len(s.workerStops)
}

// Stop drains nothing: it closes the queue, cancels in-flight contexts and
// waits for workers to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.queue.Close()
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) spawnWorkerLocked() {
	stop := make(chan struct{})
	s.workerStops = append(s.workerStops, stop)
	s.wg.Add(1)
	go s.worker(stop)
	metrics.SetWorkerCountMetric(len(s.workerStops))
}

func (s *Scheduler) worker(stop chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-stop:
			return
		case <-s.baseCtx.Done():
			return
		default:
		}

		task, ok := s.queue.Get()
		if !ok {
			return
		}
		metrics.SetQueueDepthMetric(s.queue.Len())
		s.execute(task)

		select {
		case <-stop:
			return
		default:
		}
	}
}

func (s *Scheduler) execute(task *Task) {
	s.mu.Lock()
	task.Status = TaskProcessing
	task.StartedAt = time.Now()
	s.mu.Unlock()

	result := s.runner.Run(s.baseCtx, task.Document)

	s.mu.Lock()
	task.CompletedAt = time.Now()
	task.Result = &result
	if result.Success {
		task.Status = TaskCompleted
	} else {
		task.Status = TaskFailed
		task.Err = result.Err
	}
	delete(s.active, task.ID)
	s.retireLocked(task)
	view := task.view()
	s.mu.Unlock()

	metrics.IncreaseTasksCompletedTotalMetric(string(task.Status))
	if task.callback != nil {
		task.callback(view)
	}
}

// retireLocked moves a finished task into the completed table, evicting the
// oldest entry when the table is full.
func (s *Scheduler) retireLocked(task *Task) {
	s.completed[task.ID] = task
	s.completedOrder = append(s.completedOrder, task.ID)
	for len(s.completedOrder) > s.cfg.CompletedLimit {
		oldest := s.completedOrder[0]
		s.completedOrder = s.completedOrder[1:]
		delete(s.completed, oldest)
	}
}
