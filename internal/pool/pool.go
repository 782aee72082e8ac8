package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/joshu-sajeev/promptrelay/internal/worker"
	"github.com/rs/zerolog"
)

// WorkerPool runs independent worker loops, one per control channel.
type WorkerPool struct {
	workers []*worker.Worker
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	log     *zerolog.Logger
}

func NewWorkerPool(workers []*worker.Worker, logger *zerolog.Logger) *WorkerPool {
	l := logger.With().Str("component", "WorkerPool").Logger()
	return &WorkerPool{workers: workers, log: &l}
}

// Start launches every worker. It is not safe to call twice.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *worker.Worker) {
			defer p.wg.Done()
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.log.Error().Err(err).Str("worker_id", w.ID).Msg("worker exited")
			}
		}(w)
	}
	p.log.Info().Int("workers", len(p.workers)).Msg("worker pool started")
}

// Stop cancels every worker and waits for the current jobs to wind down.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *WorkerPool) Size() int { return len(p.workers) }

// WorkerIDs derives one identifier per worker from base. A single worker
// keeps base unchanged.
func WorkerIDs(base string, n int) []string {
	if n == 1 {
		return []string{base}
	}
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%d", base, i+1)
	}
	return ids
}
