package scheduler

import (
	"errors"
	"sync"
)

var errQueueClosed = errors.New("task queue closed")

// priorityQueue is the 4-level blocking queue feeding the worker pool.
// Dequeue always drains urgent before high before normal before low; within
// one level the order is FIFO. Put blocks under backpressure when the queue
// is at capacity.
type priorityQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	levels   [priorityLevels][]*Task
	size     int
	capacity int
	closed   bool
}

func newPriorityQueue(capacity int) *priorityQueue {
	if capacity <= 0 {
		capacity = 256
	}
	q := &priorityQueue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

func (q *priorityQueue) Put(t *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size >= q.capacity && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return errQueueClosed
	}
	q.levels[t.Priority] = append(q.levels[t.Priority], t)
	q.size++
	q.notEmpty.Signal()
	return nil
}

// Get blocks until a task is available or the queue is closed and drained.
func (q *priorityQueue) Get() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.size == 0 {
		return nil, false
	}
	for level := priorityLevels - 1; level >= 0; level-- {
		if len(q.levels[level]) > 0 {
			t := q.levels[level][0]
			q.levels[level] = q.levels[level][1:]
			q.size--
			q.notFull.Signal()
			return t, true
		}
	}
	return nil, false
}

func (q *priorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Close unblocks every waiter. Queued tasks may still be drained by Get.
func (q *priorityQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}
