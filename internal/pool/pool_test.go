package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joshu-sajeev/promptrelay/internal/dto"
	"github.com/joshu-sajeev/promptrelay/internal/logging"
	"github.com/joshu-sajeev/promptrelay/internal/session"
	"github.com/joshu-sajeev/promptrelay/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingQueue struct {
	claims atomic.Int32
}

func (q *countingQueue) Claim(context.Context, string) (*dto.JobResponseDTO, error) {
	q.claims.Add(1)
	return nil, nil
}

func (q *countingQueue) Complete(context.Context, uint, *dto.CompleteDTO) error { return nil }

func (q *countingQueue) Fail(context.Context, uint, string) error { return nil }

type idleRunner struct{}

func (idleRunner) Run(context.Context, session.Request) (*session.Result, error) {
	return nil, nil
}

func TestWorkerPool_StartStop(t *testing.T) {
	q := &countingQueue{}

	var workers []*worker.Worker
	for _, id := range WorkerIDs("host", 3) {
		workers = append(workers, worker.NewWorker(id, q, idleRunner{}, 5*time.Millisecond, logging.Nop()))
	}

	p := NewWorkerPool(workers, logging.Nop())
	p.Start(context.Background())

	require.Eventually(t, func() bool { return q.claims.Load() >= 6 }, 2*time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
	}
	assert.Equal(t, 3, p.Size())
}

func TestWorkerIDs(t *testing.T) {
	assert.Equal(t, []string{"relay"}, WorkerIDs("relay", 1))
	assert.Equal(t, []string{"relay-1", "relay-2", "relay-3"}, WorkerIDs("relay", 3))
}
