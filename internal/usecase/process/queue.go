package process

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/metrics"
)

// ErrQueueFull is returned when the processing queue cannot accept more work.
var ErrQueueFull = errors.New("processing queue full")

// Runner executes the pipeline for one document.
type Runner interface {
	Process(ctx context.Context, documentID string) error
}

// Queue fans document IDs out to a fixed pool of pipeline workers.
type Queue struct {
	runner  Runner
	jobs    chan string
	workers int
	wg      sync.WaitGroup
	once    sync.Once
	logger  *zap.Logger
}

func NewQueue(runner Runner, workers, size int, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	if workers <= 0 {
		workers = 4
	}
	if size <= 0 {
		size = 256
	}
	return &Queue{
		runner:  runner,
		jobs:    make(chan string, size),
		workers: workers,
		logger:  log.Named("queue"),
	}
}

// Start launches the worker pool. Workers drain remaining jobs after ctx is
// cancelled so accepted work is not silently dropped on shutdown.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Enqueue hands a document to the pool without blocking.
func (q *Queue) Enqueue(documentID string) error {
	select {
	case q.jobs <- documentID:
		metrics.QueueDepth.Set(float64(len(q.jobs)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for in-flight jobs to finish.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.jobs) })
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	log := q.logger.With(zap.Int("worker", id))
	for documentID := range q.jobs {
		metrics.QueueDepth.Set(float64(len(q.jobs)))
		err := q.runner.Process(ctx, documentID)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrAlreadyProcessing):
			log.Warn("document already being processed", zap.String("document_id", documentID))
		default:
			log.Error("pipeline run failed",
				zap.String("document_id", documentID),
				zap.Error(err))
		}
	}
}
