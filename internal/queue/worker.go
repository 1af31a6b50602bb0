package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

var (
	// ErrQueueFull is returned when the job buffer is at capacity
	ErrQueueFull = errors.New("pipeline queue full")
	// ErrStopped is returned when enqueueing after Stop
	ErrStopped = errors.New("worker pool stopped")
)

type task struct {
	info   TaskInfo
	cancel context.CancelFunc
}

// WorkerPool manages a pool of workers processing stage jobs
type WorkerPool struct {
	jobQueue    chan *Job
	workerCount int
	timeout     time.Duration
	log         *logger.Logger

	mu      sync.Mutex
	tasks   map[string]*task
	stopped bool
	wg      sync.WaitGroup
	baseCtx context.Context
	stopAll context.CancelFunc
}

// NewWorkerPool creates a new worker pool. Every job runs with the given timeout.
func NewWorkerPool(workerCount, queueSize int, timeout time.Duration, log *logger.Logger) *WorkerPool {
	if queueSize <= 0 {
		queueSize = 100
	}
	baseCtx, stopAll := context.WithCancel(context.Background())
	return &WorkerPool{
		jobQueue:    make(chan *Job, queueSize),
		workerCount: workerCount,
		timeout:     timeout,
		log:         log.Component("queue"),
		tasks:       make(map[string]*task),
		baseCtx:     baseCtx,
		stopAll:     stopAll,
	}
}

// Start initializes all workers
func (wp *WorkerPool) Start() {
	wp.log.Infof("Starting worker pool with %d workers", wp.workerCount)
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop stops accepting jobs, cancels running ones and waits for workers to
// drain until ctx is done
func (wp *WorkerPool) Stop(ctx context.Context) error {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return nil
	}
	wp.stopped = true
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.stopAll()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.log.Info("Worker pool stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue adds a job to the queue without blocking
func (wp *WorkerPool) Enqueue(job *Job) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.stopped {
		return ErrStopped
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	select {
	case wp.jobQueue <- job:
	default:
		return ErrQueueFull
	}

	wp.tasks[job.ID] = &task{info: TaskInfo{ID: job.ID, Kind: job.Kind, QueuedAt: job.CreatedAt}}
	wp.log.WithField("job_id", job.ID).WithField("kind", job.Kind).Debug("Job enqueued")
	return nil
}

// IsActive reports whether a job with this id is queued or running
func (wp *WorkerPool) IsActive(id string) bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	_, ok := wp.tasks[id]
	return ok
}

// Tasks returns a snapshot of queued and running jobs
func (wp *WorkerPool) Tasks() []TaskInfo {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	out := make([]TaskInfo, 0, len(wp.tasks))
	for _, t := range wp.tasks {
		out = append(out, t.info)
	}
	return out
}

// Cancel cancels a running job's context. It reports whether the job was running.
func (wp *WorkerPool) Cancel(id string) bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	t, ok := wp.tasks[id]
	if !ok || t.cancel == nil {
		return false
	}
	t.cancel()
	return true
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	wp.log.Debugf("Worker %d started", id)

	for job := range wp.jobQueue {
		wp.processJob(id, job)
	}
}

// processJob runs one job with its deadline and panic recovery, then reports to Finish
func (wp *WorkerPool) processJob(workerID int, job *Job) {
	ctx, cancel := context.WithTimeout(wp.baseCtx, wp.timeout)

	wp.mu.Lock()
	t, ok := wp.tasks[job.ID]
	if !ok {
		t = &task{info: TaskInfo{ID: job.ID, Kind: job.Kind, QueuedAt: job.CreatedAt}}
		wp.tasks[job.ID] = t
	}
	t.info.StartedAt = time.Now()
	t.info.Deadline = t.info.StartedAt.Add(wp.timeout)
	t.cancel = cancel
	wp.mu.Unlock()

	log := wp.log.WithField("worker", workerID).WithField("job_id", job.ID).WithField("kind", job.Kind)
	log.Info("Processing job")

	result, err := wp.run(ctx, job, log)
	cancel()

	// the task stays registered until Finish has recorded the outcome
	defer func() {
		wp.mu.Lock()
		delete(wp.tasks, job.ID)
		wp.mu.Unlock()
	}()

	if err != nil {
		log.WithField("error", err.Error()).Warn("Job failed")
	} else {
		log.Info("Job completed")
	}

	if job.Finish == nil {
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC finishing job: %v\n%s", r, string(debug.Stack()))
			}
		}()
		job.Finish(result, err)
	}()
}

// run calls job.Run, converting a panic into an error
func (wp *WorkerPool) run(ctx context.Context, job *Job, log *logrus.Entry) (result types.StageResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("PANIC processing job: %v\n%s", r, string(debug.Stack()))
			result = nil
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()

	result, err = job.Run(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return result, err
}
