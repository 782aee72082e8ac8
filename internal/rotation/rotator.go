package rotation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joshu-sajeev/promptrelay/common"
	"github.com/joshu-sajeev/promptrelay/internal/config"
	"github.com/joshu-sajeev/promptrelay/internal/metrics"
	"github.com/joshu-sajeev/promptrelay/internal/retry"
	"github.com/rs/zerolog"
)

// Status is the state reported by the identity capability.
type Status struct {
	Connected bool
	Endpoint  string
	Location  string
	Fields    map[string]string
}

// Capability is the external identity control surface.
type Capability interface {
	Disconnect(ctx context.Context) error
	Connect(ctx context.Context, region string) error
	Status(ctx context.Context) (Status, error)
}

var (
	errNotConnected = errors.New("not connected")
	errSameEndpoint = errors.New("reconnected to the previous endpoint")
)

const (
	statusPoll  = 500 * time.Millisecond
	retryDelay  = 500 * time.Millisecond
	defaultWait = 20 * time.Second
)

// Rotator is shared by every worker on a host; rotations are serialised.
type Rotator struct {
	mu    sync.Mutex
	cap   Capability
	cfg   config.RotationConfig
	clock retry.Clock
	timer retry.Timer
	log   *zerolog.Logger
}

type Option func(*Rotator)

func WithClock(clock retry.Clock, timer retry.Timer) Option {
	return func(r *Rotator) {
		r.clock = clock
		r.timer = timer
	}
}

func NewRotator(capability Capability, cfg config.RotationConfig, logger *zerolog.Logger, opts ...Option) *Rotator {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultWait
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	l := logger.With().Str("component", "IdentityRotator").Logger()
	r := &Rotator{cap: capability, cfg: cfg, log: &l}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rotate drops the current identity and waits for a new one. The returned
// error wraps common.ErrRotationFailure; callers log it and carry on.
func (r *Rotator) Rotate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	before, err := r.cap.Status(ctx)
	if err != nil {
		r.log.Debug().Err(err).Msg("status before rotation unavailable")
	}

	if err := r.cap.Disconnect(ctx); err != nil {
		r.log.Debug().Err(err).Msg("disconnect failed")
	}

	var current Status
	err = retry.Do(ctx, retry.Policy{
		Attempts: r.cfg.MaxRetries + 1,
		Delays:   []time.Duration{retryDelay},
		Timer:    r.timer,
		Notify: func(err error, attempt int, _ time.Duration) {
			r.log.Info().Err(err).Int("attempt", attempt).Msg("rotation attempt failed, retrying")
		},
	}, func(ctx context.Context) error {
		if err := r.cap.Connect(ctx, r.cfg.Region); err != nil {
			r.log.Debug().Err(err).Msg("connect command failed")
		}

		st, err := r.waitConnected(ctx)
		current = st
		if err != nil {
			r.disconnect(ctx)
			return err
		}
		if r.cfg.RequireNew && before.Endpoint != "" && st.Endpoint == before.Endpoint {
			r.disconnect(ctx)
			return errSameEndpoint
		}
		return nil
	})
	if err != nil {
		metrics.IncRotation("failed")
		return fmt.Errorf("rotate identity (last status %q): %v: %w", current.Endpoint, err, common.ErrRotationFailure)
	}

	metrics.IncRotation("rotated")
	r.log.Info().
		Str("previous", before.Endpoint).
		Str("endpoint", current.Endpoint).
		Str("location", current.Location).
		Msg("identity rotated")
	return nil
}

func (r *Rotator) waitConnected(ctx context.Context) (Status, error) {
	var last Status
	err := retry.Poll(ctx, retry.PollOptions{
		Interval: statusPoll,
		Deadline: r.cfg.ConnectTimeout,
		Clock:    r.clock,
		Timer:    r.timer,
	}, func(ctx context.Context) (bool, error) {
		st, err := r.cap.Status(ctx)
		if err != nil {
			return false, nil
		}
		last = st
		return st.Connected, nil
	})
	if errors.Is(err, retry.ErrDeadline) {
		return last, errNotConnected
	}
	return last, err
}

func (r *Rotator) disconnect(ctx context.Context) {
	if err := r.cap.Disconnect(ctx); err != nil {
		r.log.Debug().Err(err).Msg("disconnect failed")
	}
}
