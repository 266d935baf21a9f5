// Package worker implements the task-type-keyed queue that hands
// collector work out to attached workers: round-robin dispatch,
// ack/nack with retry, in-flight deadlines, and requeue on worker
// detachment.
package worker

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/invgraph/graphcore/pkg/clock"
	"github.com/invgraph/graphcore/pkg/errs"
	"github.com/invgraph/graphcore/pkg/metrics"
)

// Task is one unit of work offered to the queue.
type Task struct {
	ID         string
	TaskType   string
	Data       json.RawMessage
	Attempts   int
	MaxAttempts int
}

// Result is what ack/nack resolve a task's future with.
type Result struct {
	Output json.RawMessage
	Err    error
}

// inFlight tracks a task currently assigned to a worker.
type inFlight struct {
	task     Task
	workerID string
	deadline time.Time
	done     chan Result
}

// Queue is a task-type-keyed FIFO queue with round-robin delivery to
// attached workers. Modeled on the teacher's explicit-timeout-context
// style in services/workflow/engine.go (nodeTimeout/workflowTimeout)
// generalized into a per-task deadline tracked by the queue itself
// rather than the caller's context.
type Queue struct {
	mu                 sync.Mutex
	clock              clock.Clock
	maxQueued          int
	workers            map[string][]string // taskType -> worker ids, round-robin order
	nextWorker         map[string]int
	pending            map[string]*list.List // taskType -> *list.List of Task
	inFlightByID       map[string]*inFlight
	doneChannels       map[string]chan Result // taskID -> future for a task still in the backlog
	defaultTimeout     time.Duration
	defaultMaxAttempts int
	metrics            *metrics.Metrics
}

// SetMetrics attaches a Metrics collector; queue depth and in-flight
// gauges are updated on every mutation. Optional — a nil collector
// (the zero value) disables reporting.
func (q *Queue) SetMetrics(m *metrics.Metrics) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.metrics = m
}

func (q *Queue) reportLocked(taskType string) {
	if q.metrics == nil {
		return
	}
	depth := 0
	if l := q.pending[taskType]; l != nil {
		depth = l.Len()
	}
	inFlight := 0
	for _, inf := range q.inFlightByID {
		if inf.task.TaskType == taskType {
			inFlight++
		}
	}
	q.metrics.QueueDepth.WithLabelValues(taskType).Set(float64(depth))
	q.metrics.InFlight.WithLabelValues(taskType).Set(float64(inFlight))
}

// New creates an empty Queue. maxQueued bounds the pending backlog per
// task type; 0 means unbounded. defaultMaxAttempts is used for any
// Task offered with MaxAttempts unset (0); New replaces a value <= 0
// with 3.
func New(c clock.Clock, maxQueued int, defaultTimeout time.Duration, defaultMaxAttempts int) *Queue {
	if defaultMaxAttempts <= 0 {
		defaultMaxAttempts = 3
	}
	return &Queue{
		clock:              c,
		maxQueued:          maxQueued,
		workers:            map[string][]string{},
		nextWorker:         map[string]int{},
		pending:            map[string]*list.List{},
		inFlightByID:       map[string]*inFlight{},
		defaultTimeout:     defaultTimeout,
		defaultMaxAttempts: defaultMaxAttempts,
	}
}

// Attach registers workerID as a subscriber of taskType.
func (q *Queue) Attach(workerID, taskType string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.workers[taskType] = append(q.workers[taskType], workerID)
}

// Detach removes workerID from taskType and re-queues any task
// currently in flight to it.
func (q *Queue) Detach(workerID, taskType string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ws := q.workers[taskType]
	for i, w := range ws {
		if w == workerID {
			q.workers[taskType] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	for id, inf := range q.inFlightByID {
		if inf.workerID == workerID && inf.task.TaskType == taskType {
			delete(q.inFlightByID, id)
			q.enqueueLocked(inf.task)
			q.doneByTaskID()[id] = inf.done
		}
	}
	q.reportLocked(taskType)
}

// Offer submits task for delivery. If an attached worker exists for
// task.TaskType, it is delivered immediately (round-robin) and marked
// in-flight; otherwise it is enqueued. Offer returns a channel that
// receives the task's eventual Result.
func (q *Queue) Offer(task Task) <-chan Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	done := make(chan Result, 1)

	ws := q.workers[task.TaskType]
	if len(ws) == 0 {
		q.enqueueLocked(task)
		q.pendingDone(task.ID, done)
		q.reportLocked(task.TaskType)
		return done
	}
	workerID := q.pickWorkerLocked(task.TaskType, ws)
	q.dispatchLocked(task, workerID, done)
	q.reportLocked(task.TaskType)
	return done
}

func (q *Queue) pendingDone(taskID string, done chan Result) {
	// stored alongside the task itself once dispatched; while queued,
	// the channel is recovered from doneByTaskID.
	q.doneByTaskID()[taskID] = done
}

func (q *Queue) doneByTaskID() map[string]chan Result {
	if q.doneChannels == nil {
		q.doneChannels = map[string]chan Result{}
	}
	return q.doneChannels
}

func (q *Queue) enqueueLocked(task Task) {
	if q.pending[task.TaskType] == nil {
		q.pending[task.TaskType] = list.New()
	}
	l := q.pending[task.TaskType]
	if q.maxQueued > 0 && l.Len() >= q.maxQueued {
		l.Remove(l.Front()) // reject oldest when full
	}
	l.PushBack(task)
}

func (q *Queue) pickWorkerLocked(taskType string, ws []string) string {
	idx := q.nextWorker[taskType] % len(ws)
	q.nextWorker[taskType] = (idx + 1) % len(ws)
	return ws[idx]
}

func (q *Queue) dispatchLocked(task Task, workerID string, done chan Result) {
	deadline := q.clock.Now().Add(q.defaultTimeout)
	q.inFlightByID[task.ID] = &inFlight{task: task, workerID: workerID, deadline: deadline, done: done}
}

// TryDispatch pulls the next queued task of taskType (if any) and
// assigns it to workerID, enforcing the at-most-one-task-in-flight
// invariant per worker at the caller's discretion (a worker should not
// call TryDispatch again until it acks/nacks its current task).
func (q *Queue) TryDispatch(taskType, workerID string) (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	l := q.pending[taskType]
	if l == nil || l.Len() == 0 {
		return Task{}, false
	}
	front := l.Remove(l.Front()).(Task)
	done := q.doneByTaskID()[front.ID]
	if done == nil {
		done = make(chan Result, 1)
	}
	delete(q.doneChannels, front.ID)
	q.dispatchLocked(front, workerID, done)
	q.reportLocked(taskType)
	return front, true
}

// Ack completes taskID's future successfully.
func (q *Queue) Ack(taskID string, output json.RawMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	inf, ok := q.inFlightByID[taskID]
	if !ok {
		return errs.NotFound("no in-flight task with id " + taskID)
	}
	delete(q.inFlightByID, taskID)
	inf.done <- Result{Output: output}
	q.reportLocked(inf.task.TaskType)
	return nil
}

// Nack fails taskID's future with err. If the task has attempts left
// under MaxAttempts, it is put back on its task type's backlog instead
// of being resolved; it is not handed to an attached worker until a
// TryDispatch call picks it up.
func (q *Queue) Nack(taskID string, err error) error {
	q.mu.Lock()
	inf, ok := q.inFlightByID[taskID]
	if !ok {
		q.mu.Unlock()
		return errs.NotFound("no in-flight task with id " + taskID)
	}
	delete(q.inFlightByID, taskID)
	task := inf.task
	task.Attempts++
	if task.MaxAttempts == 0 {
		task.MaxAttempts = q.defaultMaxAttempts
	}
	retry := task.Attempts < task.MaxAttempts
	if retry {
		q.enqueueLocked(task)
		q.doneByTaskID()[task.ID] = inf.done
	}
	q.reportLocked(task.TaskType)
	q.mu.Unlock()

	if !retry {
		inf.done <- Result{Err: err}
	}
	return nil
}

// Stats is a point-in-time queue depth and in-flight count for one
// task type.
type Stats struct {
	Depth    int
	InFlight int
}

// Snapshot returns the current depth and in-flight count for every
// task type the queue has ever seen, for callers (e.g. a Redis
// cross-process cache) that need to publish queue state outside the
// metrics registry.
func (q *Queue) Snapshot() map[string]Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]Stats, len(q.pending))
	for taskType, l := range q.pending {
		out[taskType] = Stats{Depth: l.Len()}
	}
	for _, inf := range q.inFlightByID {
		s := out[inf.task.TaskType]
		s.InFlight++
		out[inf.task.TaskType] = s
	}
	return out
}

// ExpireDeadlines scans in-flight tasks and nacks any past its
// deadline with a Timeout error.
func (q *Queue) ExpireDeadlines(ctx context.Context) {
	now := q.clock.Now()
	q.mu.Lock()
	var expired []string
	for id, inf := range q.inFlightByID {
		if now.After(inf.deadline) {
			expired = append(expired, id)
		}
	}
	q.mu.Unlock()
	for _, id := range expired {
		_ = q.Nack(id, errs.Timeout("task "+id+" exceeded its in-flight deadline"))
	}
	_ = ctx
}
