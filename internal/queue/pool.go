// Package queue runs the document-processing worker pool over the job table.
package queue

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"caseos/internal/store"
)

// Pool polls the job table with N workers. The table is the contract: the
// pool can run in-process next to the CLI or in a separate worker binary.
type Pool struct {
	store     *store.Store
	processor *Processor
	workers   int
	interval  time.Duration
	metrics   *Metrics
	logger    *zap.Logger
}

// NewPool builds a worker pool. metrics may be nil to disable instrumentation.
func NewPool(st *store.Store, processor *Processor, workers int, interval time.Duration, metrics *Metrics, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		store:     st,
		processor: processor,
		workers:   workers,
		interval:  interval,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, processing jobs with the configured
// number of workers. Jobs for different documents run in parallel; the
// at-most-once lease in the store serializes work on a single document.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < p.workers; i++ {
		worker := i
		g.Go(func() error {
			return p.runWorker(ctx, worker)
		})
	}

	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id int) error {
	log := p.logger.With(zap.Int("worker", id))
	log.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopping")
			return ctx.Err()
		default:
		}

		job, err := p.store.LeaseNextJob(ctx)
		if err != nil {
			log.Error("failed to lease job", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			if p.metrics != nil {
				p.metrics.QueueEmpty.Inc()
			}
			p.sleep(ctx)
			continue
		}

		p.runJob(ctx, job, log)
	}
}

func (p *Pool) runJob(ctx context.Context, job *store.ProcessingJob, log *zap.Logger) {
	start := time.Now()
	err := p.processor.Process(ctx, job)
	elapsed := time.Since(start)

	if p.metrics != nil {
		p.metrics.JobDuration.Observe(elapsed.Seconds())
	}

	if err == nil {
		if completeErr := p.store.CompleteJob(ctx, job.ID); completeErr != nil {
			log.Error("failed to record job completion", zap.Error(completeErr))
		}
		if p.metrics != nil {
			p.metrics.JobsProcessed.WithLabelValues("done").Inc()
		}
		log.Info("job done", zap.String("job", job.ID), zap.Duration("elapsed", elapsed))
		return
	}

	terminal, failErr := p.store.FailJob(ctx, job.ID, err.Error())
	if failErr != nil {
		log.Error("failed to record job failure", zap.Error(failErr))
		return
	}

	if terminal {
		// Exhausted attempts: the document is marked failed but stays in the
		// case; the case itself is untouched.
		if docErr := p.store.SetDocumentStatus(ctx, job.DocumentID, store.DocStatusFailed); docErr != nil {
			log.Error("failed to mark document failed", zap.Error(docErr))
		}
		if p.metrics != nil {
			p.metrics.JobsProcessed.WithLabelValues("failed").Inc()
		}
		log.Warn("job terminally failed", zap.String("job", job.ID), zap.Error(err))
		return
	}

	if p.metrics != nil {
		p.metrics.JobsProcessed.WithLabelValues("retried").Inc()
	}
	log.Warn("job failed, requeued", zap.String("job", job.ID), zap.Error(err))
}

// sleep waits one poll interval with jitter, or until cancellation.
func (p *Pool) sleep(ctx context.Context) {
	quarter := int64(p.interval) / 4
	if quarter < 1 {
		quarter = 1
	}
	jitter := time.Duration(rand.Int63n(quarter))
	select {
	case <-ctx.Done():
	case <-time.After(p.interval + jitter):
	}
}
