// internal/worker/pool.go
package worker

import (
	"context"
	"sync"
	"time"

	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/queue"
)

// Source is where the pool claims work from.
type Source interface {
	JobClient
	Claim(ctx context.Context) (*queue.Job, error)
}

// Handler processes one claimed job and acknowledges it.
type Handler interface {
	Handle(ctx context.Context, client JobClient, job *queue.Job)
}

// Pool runs a fixed number of consumers; each handles one job at a time.
type Pool struct {
	source       Source
	handler      Handler
	concurrency  int
	pollInterval time.Duration
	logger       logger.Logger
}

func NewPool(source Source, handler Handler, concurrency int, pollInterval time.Duration, log logger.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = 10
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Pool{
		source:       source,
		handler:      handler,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		logger:       logger.Component(log, "worker-pool"),
	}
}

// Run blocks until ctx is cancelled and every in-flight job has finished.
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info("worker pool started", map[string]interface{}{"concurrency": p.concurrency})

	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			p.consume(ctx, slot)
		}(i)
	}
	wg.Wait()

	p.logger.Info("worker pool stopped", nil)
}

func (p *Pool) consume(ctx context.Context, slot int) {
	// In-flight jobs finish even after shutdown starts.
	jobCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.source.Claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("claim failed", map[string]interface{}{"slot": slot, "error": err.Error()})
			p.sleep(ctx)
			continue
		}
		if job == nil {
			p.sleep(ctx)
			continue
		}

		p.handler.Handle(jobCtx, p.source, job)
	}
}

func (p *Pool) sleep(ctx context.Context) {
	t := time.NewTimer(p.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
