package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joshu-sajeev/promptrelay/internal/dto"
	"github.com/joshu-sajeev/promptrelay/internal/metrics"
	"github.com/joshu-sajeev/promptrelay/internal/session"
	"github.com/rs/zerolog"
)

const reportTimeout = 30 * time.Second

// Queue is the worker's view of the queue boundary.
type Queue interface {
	// Claim returns (nil, nil) when there is no pending job.
	Claim(ctx context.Context, workerID string) (*dto.JobResponseDTO, error)
	Complete(ctx context.Context, id uint, req *dto.CompleteDTO) error
	Fail(ctx context.Context, id uint, reason string) error
}

type Runner interface {
	Run(ctx context.Context, req session.Request) (*session.Result, error)
}

// Worker claims one job at a time and reports its outcome. It owns its runner
// and therefore its control channel.
type Worker struct {
	ID           string
	queue        Queue
	runner       Runner
	pollInterval time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
	log          *zerolog.Logger
}

type Option func(*Worker)

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(w *Worker) { w.sleep = sleep }
}

func NewWorker(id string, queue Queue, runner Runner, pollInterval time.Duration, logger *zerolog.Logger, opts ...Option) *Worker {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	l := logger.With().Str("component", "Worker").Str("worker_id", id).Logger()
	w := &Worker{
		ID:           id,
		queue:        queue,
		runner:       runner,
		pollInterval: pollInterval,
		sleep:        sleepCtx,
		log:          &l,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run loops until ctx ends. Errors never stop it.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Dur("poll_interval", w.pollInterval).Msg("worker started")
	defer w.log.Info().Msg("worker stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.Tick(ctx) {
			continue
		}
		if err := w.sleep(ctx, w.pollInterval); err != nil {
			return err
		}
	}
}

// Tick performs one claim and, if a job came back, runs and reports it.
// It reports whether a job was processed.
func (w *Worker) Tick(ctx context.Context) bool {
	job, err := w.queue.Claim(ctx, w.ID)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("claim failed")
		}
		return false
	}
	if job == nil {
		w.log.Debug().Msg("no work available")
		return false
	}

	log := w.log.With().Uint("job_id", job.ID).Logger()
	log.Info().Msg("processing job")

	res, err := w.execute(ctx, job)

	// the outcome is reported even when ctx was cancelled mid-job
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	if err != nil {
		log.Error().Err(err).Msg("job failed")
		rerr := w.queue.Fail(rctx, job.ID, err.Error())
		metrics.IncWorkerReport("fail", rerr)
		if rerr != nil {
			log.Error().Err(rerr).Msg("failed to report failure")
		}
		return true
	}

	req := &dto.CompleteDTO{Response: res.Response, Result: res.Raw}
	if res.URL != "" {
		url := res.URL
		req.ConversationURL = &url
	}
	rerr := w.queue.Complete(rctx, job.ID, req)
	metrics.IncWorkerReport("complete", rerr)
	if rerr != nil {
		log.Error().Err(rerr).Msg("failed to report completion")
		return true
	}

	log.Info().Msg("job completed")
	return true
}

func (w *Worker) execute(ctx context.Context, job *dto.JobResponseDTO) (res *session.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("session panicked: %v", p)
		}
	}()

	res, err = w.runner.Run(ctx, RequestFor(job))
	if err == nil && res == nil {
		err = errors.New("session returned no result")
	}
	return res, err
}

// RequestFor maps a claimed job onto a session request.
func RequestFor(job *dto.JobResponseDTO) session.Request {
	return session.Request{
		JobID:           job.ID,
		Prompt:          job.Prompt,
		PromptMode:      deref(job.PromptMode),
		ModelMode:       deref(job.ModelMode),
		ImageURL:        deref(job.ImageURL),
		ContinuationURL: deref(job.ContinuationTarget),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
