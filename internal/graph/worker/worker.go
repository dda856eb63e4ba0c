// Package worker implements the background similarity-edge computation
// task: a bounded two-priority queue drained by a single consumer
// goroutine, decoupling decision storage from the O(n) pairwise
// similarity scan it triggers.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dev.aicounsel.server/internal/aierrors"
	"dev.aicounsel.server/internal/graph/store"
	"dev.aicounsel.server/internal/similarity"
)

// Priority selects which of the two internal queues a job lands on.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
)

// Job is one unit of similarity-computation work.
type Job struct {
	DecisionID string
	Priority   Priority
	CreatedAt  time.Time
	JobID      string
}

// Stats is a snapshot of the worker's lifetime counters.
type Stats struct {
	Running               bool
	HighPending           int
	LowPending            int
	Active                int
	Processed             int64
	Failed                int64
	SimilaritiesComputed  int64
	MaxSize               int
	BatchSize             int
	Threshold             float64
}

// ErrQueueFull is returned by Enqueue when the target priority queue is
// at capacity; the caller should fall back to synchronous computation.
var ErrQueueFull = aierrors.NewWorkerError

// Worker drains similarity jobs from two fixed-capacity channels (high
// and low priority) on a single consumer goroutine.
type Worker struct {
	store     store.Store
	detector  *similarity.Detector
	logger    *logrus.Logger
	batchSize int
	threshold float64
	maxSize   int

	high chan Job
	low  chan Job

	mu      sync.Mutex
	running bool
	active  int
	processed int64
	failed    int64
	similaritiesComputed int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a worker; call Start to begin draining jobs.
func New(s store.Store, detector *similarity.Detector, logger *logrus.Logger, maxSize, batchSize int, threshold float64) *Worker {
	if logger == nil {
		logger = logrus.New()
	}
	if maxSize <= 0 {
		maxSize = 1000
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if threshold <= 0 {
		threshold = 0.5
	}
	return &Worker{
		store: s, detector: detector, logger: logger,
		batchSize: batchSize, threshold: threshold, maxSize: maxSize,
		high: make(chan Job, maxSize), low: make(chan Job, maxSize),
	}
}

// Start spawns the single processing goroutine. Idempotent: calling it
// again while already running is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.run()
}

// Enqueue schedules decisionID for similarity computation after delay,
// returning ErrQueueFull-classified error when the target queue is saturated.
func (w *Worker) Enqueue(ctx context.Context, decisionID string, priority Priority, jobID string, delay time.Duration) error {
	job := Job{DecisionID: decisionID, Priority: priority, CreatedAt: time.Now(), JobID: jobID}

	schedule := func() error {
		queue := w.low
		if priority == PriorityHigh {
			queue = w.high
		}
		select {
		case queue <- job:
			return nil
		default:
			return ErrQueueFull(decisionID, nil)
		}
	}

	if delay <= 0 {
		return schedule()
	}
	go func() {
		select {
		case <-time.After(delay):
			_ = schedule()
		case <-ctx.Done():
		}
	}()
	return nil
}

// Stop stops accepting new work implicitly (callers should stop
// calling Enqueue) and waits up to timeout for the active job to
// finish before cancelling the consumer goroutine. Any jobs still
// queued when the timeout elapses are logged, not dropped silently.
func (w *Worker) Stop(timeout time.Duration) {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	close(w.stopCh)
	select {
	case <-w.doneCh:
	case <-time.After(timeout):
		pending := len(w.high) + len(w.low)
		if pending > 0 {
			w.logger.WithField("pending_jobs", pending).Warn("worker stopped with jobs still queued")
		}
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

func (w *Worker) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case job := <-w.high:
			w.process(job)
			continue
		default:
		}

		select {
		case <-w.stopCh:
			return
		case job := <-w.high:
			w.process(job)
		case job := <-w.low:
			w.process(job)
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (w *Worker) process(job Job) {
	w.mu.Lock()
	w.active++
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.active--
		w.mu.Unlock()
	}()

	if err := w.computeSimilarities(job); err != nil {
		w.mu.Lock()
		w.failed++
		w.mu.Unlock()
		w.logger.WithError(err).WithField("decision_id", job.DecisionID).Warn("similarity job failed")
		time.Sleep(time.Second)
		return
	}
	w.mu.Lock()
	w.processed++
	w.mu.Unlock()
}

// ComputeNow runs the similarity job synchronously, bypassing the
// queue entirely. Used as the fallback when Enqueue reports the target
// queue is full or when no worker loop is running.
func (w *Worker) ComputeNow(decisionID string) error {
	return w.computeSimilarities(Job{DecisionID: decisionID, CreatedAt: time.Now()})
}

func (w *Worker) computeSimilarities(job Job) error {
	ctx := context.Background()
	decision, err := w.store.GetDecision(job.DecisionID)
	if err != nil {
		return aierrors.NewWorkerError(job.DecisionID, err)
	}
	if decision == nil {
		return aierrors.NewWorkerError(job.DecisionID, nil)
	}

	candidates, err := w.store.ListDecisions(w.batchSize+1, 0)
	if err != nil {
		return aierrors.NewWorkerError(job.DecisionID, err)
	}

	computed := int64(0)
	for _, candidate := range candidates {
		if candidate.ID == decision.ID {
			continue
		}
		score, err := w.detector.Similarity(ctx, decision.Question, candidate.Question)
		if err != nil {
			w.logger.WithError(err).WithField("candidate_id", candidate.ID).Warn("similarity computation failed for candidate, continuing")
			continue
		}
		if score < w.threshold {
			continue
		}
		edge := store.SimilarityEdge{SourceID: decision.ID, TargetID: candidate.ID, SimilarityScore: score, ComputedAt: time.Now()}
		if err := w.store.SaveSimilarity(edge); err != nil {
			w.logger.WithError(err).WithField("candidate_id", candidate.ID).Warn("failed to persist similarity edge, continuing")
			continue
		}
		computed++
	}

	w.mu.Lock()
	w.similaritiesComputed += computed
	w.mu.Unlock()
	return nil
}

// Stats returns a point-in-time snapshot of the worker's counters.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Running:              w.running,
		HighPending:          len(w.high),
		LowPending:           len(w.low),
		Active:               w.active,
		Processed:            w.processed,
		Failed:               w.failed,
		SimilaritiesComputed: w.similaritiesComputed,
		MaxSize:              w.maxSize,
		BatchSize:            w.batchSize,
		Threshold:            w.threshold,
	}
}
