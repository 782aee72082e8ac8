// Package retry holds the one bounded-retry primitive used across the relay:
// webhook delivery, identity rotation and result polling are all
// parameterisations of it.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joshu-sajeev/promptrelay/common"
)

// Timer and Clock are the injection points that let tests drive waits
// without sleeping.
type (
	Timer = backoff.Timer
	Clock = backoff.Clock
)

// ErrDeadline is returned by Poll when the condition never held in time.
var ErrDeadline = fmt.Errorf("poll deadline exceeded: %w", common.ErrTimeout)

var errNotYet = errors.New("condition not met")

// Permanent marks err as not worth retrying; Do returns it unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Policy bounds Do. Delays are the waits between consecutive attempts; when
// there are fewer delays than gaps the last one repeats.
type Policy struct {
	Attempts int
	Delays   []time.Duration
	Timer    Timer
	// Notify, when set, is called before each wait with the error that caused it.
	Notify func(err error, attempt int, wait time.Duration)
}

// Schedule is a BackOff over a fixed delay table.
type Schedule struct {
	delays   []time.Duration
	attempts int
	n        int
}

func NewSchedule(attempts int, delays ...time.Duration) *Schedule {
	return &Schedule{delays: delays, attempts: attempts}
}

func (s *Schedule) NextBackOff() time.Duration {
	if s.n >= s.attempts-1 {
		return backoff.Stop
	}
	var d time.Duration
	switch {
	case len(s.delays) == 0:
	case s.n < len(s.delays):
		d = s.delays[s.n]
	default:
		d = s.delays[len(s.delays)-1]
	}
	s.n++
	return d
}

func (s *Schedule) Reset() { s.n = 0 }

// Do runs op until it succeeds, returns a Permanent error, the attempts are
// spent, or ctx ends. The last error is returned.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	attempt := 0
	var notify backoff.Notify
	if p.Notify != nil {
		notify = func(err error, wait time.Duration) { p.Notify(err, attempt, wait) }
	}

	b := backoff.WithContext(NewSchedule(p.Attempts, p.Delays...), ctx)
	return backoff.RetryNotifyWithTimer(func() error {
		attempt++
		return op(ctx)
	}, b, notify, p.Timer)
}

// PollOptions bounds Poll.
type PollOptions struct {
	Interval time.Duration
	Deadline time.Duration
	Clock    Clock
	Timer    Timer
}

// Poll evaluates check immediately and then every Interval until it reports
// done, returns an error, or Deadline has elapsed. An error from check ends the
// poll and is returned as is.
func Poll(ctx context.Context, o PollOptions, check func(ctx context.Context) (bool, error)) error {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Deadline <= 0 {
		// a single check
		o.Deadline = time.Nanosecond
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.Interval
	eb.MaxInterval = o.Interval
	eb.Multiplier = 1
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = o.Deadline
	if o.Clock != nil {
		eb.Clock = o.Clock
	}
	eb.Reset()

	err := backoff.RetryNotifyWithTimer(func() error {
		done, err := check(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			return errNotYet
		}
		return nil
	}, backoff.WithContext(eb, ctx), nil, o.Timer)

	if errors.Is(err, errNotYet) {
		return ErrDeadline
	}
	return err
}
