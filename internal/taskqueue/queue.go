package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ilmhub/lms-ai-back/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

// TaskFunc is the unit of work a job executes once it holds a concurrency slot.
type TaskFunc func(ctx context.Context) (json.RawMessage, error)

type Config struct {
	MaxConcurrent int
	JobTimeout    time.Duration
	JobTTL        time.Duration
	SweepInterval time.Duration
	SlotPoll      time.Duration
	Logger        *log.Logger
}

type Stats struct {
	TotalJobs     int `json:"total_jobs"`
	Active        int `json:"active"`
	Pending       int `json:"pending"`
	Completed     int `json:"completed"`
	Failed        int `json:"failed"`
	MaxConcurrent int `json:"max_concurrent"`
}

// pendingTask is one queued submission awaiting a concurrency slot.
type pendingTask struct {
	jobID string
	kind  domain.JobKind
	task  TaskFunc
}

// Queue is the in-process registry of async jobs. At most MaxConcurrent jobs
// are in processing state at once; everything else waits its turn in FIFO
// submission order. Jobs are swept from the table once they outlive JobTTL,
// regardless of status, so callers must poll promptly.
type Queue struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job

	pendMu  sync.Mutex
	pending []pendingTask
	wake    chan struct{}

	slots         chan struct{}
	maxConcurrent int
	jobTimeout    time.Duration
	jobTTL        time.Duration
	slotPoll      time.Duration
	logger        *log.Logger

	baseCtx      context.Context
	cancel       context.CancelFunc
	sweepDone    chan struct{}
	dispatchDone chan struct{}
}

func New(config Config) *Queue {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 2
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 3 * time.Minute
	}
	if config.JobTTL <= 0 {
		config.JobTTL = time.Hour
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 10 * time.Minute
	}
	if config.SlotPoll <= 0 {
		config.SlotPoll = 500 * time.Millisecond
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	queue := &Queue{
		jobs:          make(map[string]*domain.Job),
		wake:          make(chan struct{}, 1),
		slots:         make(chan struct{}, config.MaxConcurrent),
		maxConcurrent: config.MaxConcurrent,
		jobTimeout:    config.JobTimeout,
		jobTTL:        config.JobTTL,
		slotPoll:      config.SlotPoll,
		logger:        config.Logger,
		baseCtx:       baseCtx,
		cancel:        cancel,
		sweepDone:     make(chan struct{}),
		dispatchDone:  make(chan struct{}),
	}
	go queue.sweepLoop(config.SweepInterval)
	go queue.dispatchLoop()
	return queue
}

// Submit registers a pending job and queues it for execution. Jobs acquire
// slots in the order they were submitted. The returned snapshot is safe for
// the caller to keep.
func (q *Queue) Submit(kind domain.JobKind, task TaskFunc) *domain.Job {
	job := &domain.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    domain.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.mu.Unlock()

	q.pendMu.Lock()
	q.pending = append(q.pending, pendingTask{jobID: job.ID, kind: kind, task: task})
	q.pendMu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}

	return cloneJob(job)
}

func (q *Queue) Get(jobID string) (*domain.Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := Stats{
		TotalJobs:     len(q.jobs),
		MaxConcurrent: q.maxConcurrent,
	}
	for _, job := range q.jobs {
		switch job.Status {
		case domain.JobStatusPending:
			stats.Pending++
		case domain.JobStatusProcessing:
			stats.Active++
		case domain.JobStatusCompleted:
			stats.Completed++
		case domain.JobStatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// Close stops the dispatcher and the sweeper and cancels all running tasks.
func (q *Queue) Close() {
	q.cancel()
	<-q.sweepDone
	<-q.dispatchDone
}

// dispatchLoop admits queued jobs to concurrency slots strictly in
// submission order. A single admitting goroutine means two waiting jobs can
// never race each other for a freed slot.
func (q *Queue) dispatchLoop() {
	defer close(q.dispatchDone)

	for {
		next, ok := q.nextPending()
		if !ok {
			return
		}
		if !q.acquireSlot(next.jobID) {
			if q.baseCtx.Err() != nil {
				return
			}
			// Evicted while waiting; admit the next submission.
			continue
		}
		go q.execute(next)
	}
}

// nextPending blocks until a submission is queued or the queue shuts down.
func (q *Queue) nextPending() (pendingTask, bool) {
	for {
		q.pendMu.Lock()
		if len(q.pending) > 0 {
			next := q.pending[0]
			q.pending = q.pending[1:]
			q.pendMu.Unlock()
			return next, true
		}
		q.pendMu.Unlock()

		select {
		case <-q.baseCtx.Done():
			return pendingTask{}, false
		case <-q.wake:
		}
	}
}

func (q *Queue) execute(p pendingTask) {
	defer func() { <-q.slots }()

	if !q.markProcessing(p.jobID) {
		// Evicted between admission and start; nothing observable left.
		return
	}

	taskCtx, cancel := context.WithTimeout(q.baseCtx, q.jobTimeout)
	defer cancel()

	result, err := q.invoke(taskCtx, p.task)
	if err != nil {
		q.markFailed(p.jobID, err)
		if q.logger != nil {
			q.logger.Printf("job failed kind=%s job_id=%s err=%v", p.kind, p.jobID, err)
		}
		return
	}

	q.markCompleted(p.jobID, result)
	if q.logger != nil {
		q.logger.Printf("job completed kind=%s job_id=%s", p.kind, p.jobID)
	}
}

// acquireSlot blocks until a concurrency slot is free. While waiting it
// periodically re-checks the job table: a job evicted by the sweeper must
// never start executing.
func (q *Queue) acquireSlot(jobID string) bool {
	ticker := time.NewTicker(q.slotPoll)
	defer ticker.Stop()

	for {
		select {
		case <-q.baseCtx.Done():
			return false
		case q.slots <- struct{}{}:
			return true
		case <-ticker.C:
			if !q.exists(jobID) {
				return false
			}
		}
	}
}

func (q *Queue) invoke(ctx context.Context, task TaskFunc) (result json.RawMessage, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = errors.New("task panicked")
			if q.logger != nil {
				q.logger.Printf("job task panic recovered: %v", recovered)
			}
		}
	}()
	return task(ctx)
}

func (q *Queue) exists(jobID string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.jobs[jobID]
	return ok
}

func (q *Queue) markProcessing(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return false
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusProcessing
	job.StartedAt = &now
	return true
}

func (q *Queue) markCompleted(jobID string, result json.RawMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusCompleted
	job.Result = append(json.RawMessage(nil), result...)
	job.CompletedAt = &now
}

func (q *Queue) markFailed(jobID string, taskErr error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = taskErr.Error()
	job.CompletedAt = &now
}

func (q *Queue) sweepLoop(interval time.Duration) {
	defer close(q.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.baseCtx.Done():
			return
		case <-ticker.C:
			q.sweep()
		}
	}
}

// sweep deletes jobs older than the TTL regardless of status. A completed
// result a caller never polled is lost here; that is the documented
// bounded-memory policy.
func (q *Queue) sweep() {
	cutoff := time.Now().UTC().Add(-q.jobTTL)

	q.mu.Lock()
	defer q.mu.Unlock()

	for id, job := range q.jobs {
		if job.CreatedAt.Before(cutoff) {
			delete(q.jobs, id)
		}
	}
}

func cloneJob(job *domain.Job) *domain.Job {
	if job == nil {
		return nil
	}
	clone := *job
	clone.Result = append(json.RawMessage(nil), job.Result...)
	if job.StartedAt != nil {
		started := *job.StartedAt
		clone.StartedAt = &started
	}
	if job.CompletedAt != nil {
		completed := *job.CompletedAt
		clone.CompletedAt = &completed
	}
	return &clone
}
