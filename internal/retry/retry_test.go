package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joshu-sajeev/promptrelay/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSchedule(t *testing.T) {
	s := NewSchedule(4, time.Second, 5*time.Second)

	assert.Equal(t, time.Second, s.NextBackOff())
	assert.Equal(t, 5*time.Second, s.NextBackOff())
	assert.Equal(t, 5*time.Second, s.NextBackOff(), "last delay repeats")
	assert.Less(t, s.NextBackOff(), time.Duration(0), "stops after attempts-1 waits")

	s.Reset()
	assert.Equal(t, time.Second, s.NextBackOff())
}

func TestDo(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name        string
		attempts    int
		failUntil   int
		permanentAt int
		wantErr     error
		wantCalls   int
		wantWaits   []time.Duration
	}{
		{
			name:      "first try succeeds",
			attempts:  3,
			failUntil: 0,
			wantCalls: 1,
		},
		{
			name:      "succeeds on third attempt",
			attempts:  3,
			failUntil: 2,
			wantCalls: 3,
			wantWaits: []time.Duration{time.Second, 5 * time.Second},
		},
		{
			name:      "exhausts attempts",
			attempts:  3,
			failUntil: 10,
			wantErr:   boom,
			wantCalls: 3,
			wantWaits: []time.Duration{time.Second, 5 * time.Second},
		},
		{
			name:        "permanent error stops early",
			attempts:    3,
			failUntil:   10,
			permanentAt: 1,
			wantErr:     boom,
			wantCalls:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewFakeClock(t0)
			calls := 0

			err := Do(context.Background(), Policy{
				Attempts: tt.attempts,
				Delays:   []time.Duration{time.Second, 5 * time.Second, 15 * time.Second},
				Timer:    clock,
			}, func(context.Context) error {
				calls++
				if calls == tt.permanentAt {
					return Permanent(boom)
				}
				if calls <= tt.failUntil {
					return boom
				}
				return nil
			})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantWaits, clock.Waits())
		})
	}
}

func TestDo_NotifyReportsAttempt(t *testing.T) {
	clock := NewFakeClock(t0)
	var seen []int

	_ = Do(context.Background(), Policy{
		Attempts: 3,
		Delays:   []time.Duration{time.Millisecond},
		Timer:    clock,
		Notify:   func(_ error, attempt int, _ time.Duration) { seen = append(seen, attempt) },
	}, func(context.Context) error { return errors.New("nope") })

	assert.Equal(t, []int{1, 2}, seen)
}

func TestDo_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, Policy{Attempts: 5, Delays: []time.Duration{time.Hour}}, func(context.Context) error {
		calls++
		return errors.New("nope")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPoll(t *testing.T) {
	t.Run("condition met", func(t *testing.T) {
		clock := NewFakeClock(t0)
		checks := 0

		err := Poll(context.Background(), PollOptions{
			Interval: time.Second, Deadline: time.Minute, Clock: clock, Timer: clock,
		}, func(context.Context) (bool, error) {
			checks++
			return checks == 4, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 4, checks)
		assert.Equal(t, 3*time.Second, clock.Elapsed())
	})

	t.Run("deadline", func(t *testing.T) {
		clock := NewFakeClock(t0)
		checks := 0

		err := Poll(context.Background(), PollOptions{
			Interval: time.Second, Deadline: 10 * time.Second, Clock: clock, Timer: clock,
		}, func(context.Context) (bool, error) {
			checks++
			return false, nil
		})

		assert.ErrorIs(t, err, ErrDeadline)
		assert.ErrorIs(t, err, common.ErrTimeout)
		assert.Equal(t, 11, checks)
		assert.Equal(t, 10*time.Second, clock.Elapsed())
	})

	t.Run("check error aborts", func(t *testing.T) {
		clock := NewFakeClock(t0)
		boom := errors.New("channel closed")

		err := Poll(context.Background(), PollOptions{
			Interval: time.Second, Deadline: time.Minute, Clock: clock, Timer: clock,
		}, func(context.Context) (bool, error) {
			return false, boom
		})

		assert.ErrorIs(t, err, boom)
		assert.Zero(t, clock.Elapsed())
	})

	t.Run("zero deadline checks once", func(t *testing.T) {
		checks := 0
		err := Poll(context.Background(), PollOptions{Interval: time.Second}, func(context.Context) (bool, error) {
			checks++
			return false, nil
		})

		assert.ErrorIs(t, err, ErrDeadline)
		assert.Equal(t, 1, checks)
	})
}
