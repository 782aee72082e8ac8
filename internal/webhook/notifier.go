// Package webhook delivers terminal-state callbacks for jobs that asked for one.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joshu-sajeev/promptrelay/common"
	"github.com/joshu-sajeev/promptrelay/internal/config"
	"github.com/joshu-sajeev/promptrelay/internal/dto"
	"github.com/joshu-sajeev/promptrelay/internal/job"
	"github.com/joshu-sajeev/promptrelay/internal/metrics"
	"github.com/joshu-sajeev/promptrelay/internal/models"
	"github.com/joshu-sajeev/promptrelay/internal/retry"
	"github.com/rs/zerolog"
)

const (
	userAgent   = "prompt-relay-webhook/1.0"
	maxAttempts = 3
)

// DefaultDelays is the wait table between attempts. With three attempts only
// the first two entries are used.
var DefaultDelays = []time.Duration{time.Second, 5 * time.Second, 15 * time.Second}

// Store is the slice of the Job Store the notifier needs.
type Store interface {
	Get(ctx context.Context, id uint) (*models.Job, error)
	MarkWebhookDelivered(ctx context.Context, id uint) (bool, error)
}

type Notifier struct {
	client   *http.Client
	store    Store
	delays   []time.Duration
	timer    retry.Timer
	deadline time.Duration
	timeout  time.Duration
	log      *zerolog.Logger
	wg       sync.WaitGroup
}

type Option func(*Notifier)

func WithHTTPClient(c *http.Client) Option { return func(n *Notifier) { n.client = c } }

func WithDelays(d ...time.Duration) Option { return func(n *Notifier) { n.delays = d } }

// WithTimer replaces the wall-clock timer used between attempts.
func WithTimer(t retry.Timer) Option { return func(n *Notifier) { n.timer = t } }

func NewNotifier(store Store, timeout time.Duration, logger *zerolog.Logger, opts ...Option) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := logger.With().Str("component", "WebhookNotifier").Logger()
	n := &Notifier{
		client:  &http.Client{Timeout: timeout},
		store:   store,
		delays:  DefaultDelays,
		timeout: timeout,
		log:     &l,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.deadline = n.MaxDelivery() + storeSlack
	return n
}

// storeSlack covers the store reads and writes around the HTTP attempts.
const storeSlack = 10 * time.Second

// MaxDelivery is the longest a single delivery can spend posting: every
// attempt timing out plus the waits between attempts.
func (n *Notifier) MaxDelivery() time.Duration {
	perAttempt := n.client.Timeout
	if perAttempt <= 0 {
		perAttempt = n.timeout
	}
	total := time.Duration(maxAttempts) * perAttempt
	sched := retry.NewSchedule(maxAttempts, n.delays...)
	for {
		d := sched.NextBackOff()
		if d == backoff.Stop {
			return total
		}
		total += d
	}
}

// DrainTimeout bounds how long shutdown should wait for deliveries that are
// already running.
func (n *Notifier) DrainTimeout() time.Duration { return n.deadline }

var _ job.Notifier = (*Notifier)(nil)

// Notify schedules delivery in the background and returns immediately.
func (n *Notifier) Notify(j *models.Job) {
	if j == nil || j.WebhookURL == nil || j.WebhookDelivered {
		return
	}
	snapshot := *j

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.deadline)
		defer cancel()

		if err := n.Deliver(ctx, &snapshot); err != nil {
			n.log.Warn().Err(err).Uint("job_id", snapshot.ID).Msg("webhook not delivered")
		}
	}()
}

// Wait blocks until in-flight deliveries finish or ctx ends.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver POSTs the envelope for j with bounded retries and records success.
// A nil error with no request sent means another delivery already succeeded.
func (n *Notifier) Deliver(ctx context.Context, j *models.Job) error {
	if j.WebhookURL == nil || !j.Status.Terminal() {
		return nil
	}

	current, err := n.store.Get(ctx, j.ID)
	if err != nil {
		return fmt.Errorf("load job %d: %w", j.ID, err)
	}
	if current.WebhookDelivered {
		metrics.IncWebhookDelivery("skipped")
		return nil
	}

	body, err := json.Marshal(NewEnvelope(current))
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	url := *current.WebhookURL
	log := n.log.With().Uint("job_id", current.ID).Str("url", url).Logger()

	err = retry.Do(ctx, retry.Policy{
		Attempts: maxAttempts,
		Delays:   n.delays,
		Timer:    n.timer,
		Notify: func(err error, attempt int, wait time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("webhook attempt failed")
		},
	}, func(ctx context.Context) error {
		metrics.IncWebhookAttempt()
		return n.post(ctx, url, body)
	})
	if err != nil {
		metrics.IncWebhookDelivery("exhausted")
		return fmt.Errorf("%w after %d attempts: %v", common.ErrDeliveryFailure, maxAttempts, err)
	}

	marked, err := n.store.MarkWebhookDelivered(ctx, current.ID)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	if !marked {
		log.Debug().Msg("delivery already recorded")
	}

	metrics.IncWebhookDelivery("delivered")
	log.Info().Msg("webhook delivered")
	return nil
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// NewEnvelope builds the callback body. Response is set only for completed
// jobs and Error only for failed ones.
func NewEnvelope(j *models.Job) dto.WebhookEnvelope {
	env := dto.WebhookEnvelope{
		JobID:     j.ID,
		Status:    j.Status,
		Prompt:    j.Prompt,
		Timestamp: j.UpdatedAt,
		WorkerID:  j.WorkerID,
	}
	switch j.Status {
	case config.JobStatusCompleted:
		env.Response = j.Response
	case config.JobStatusFailed:
		env.Error = j.Error
	}
	return env
}
