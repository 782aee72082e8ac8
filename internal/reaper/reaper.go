package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/joshu-sajeev/promptrelay/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	DefaultInterval  = time.Hour
	DefaultRetention = 24 * time.Hour
)

type Cleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// Reaper periodically purges terminal jobs older than the retention window.
type Reaper struct {
	store     Cleaner
	interval  time.Duration
	retention time.Duration
	log       *zerolog.Logger
}

func New(store Cleaner, interval, retention time.Duration, logger *zerolog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if retention < 0 {
		retention = DefaultRetention
	}
	l := logger.With().Str("component", "RetentionReaper").Logger()
	return &Reaper{store: store, interval: interval, retention: retention, log: &l}
}

func (r *Reaper) Run(ctx context.Context) error {
	r.log.Info().
		Dur("interval", r.interval).
		Dur("retention", r.retention).
		Msg("starting retention reaper")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("stopping retention reaper")
			return ctx.Err()
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. Errors and panics are logged and
// swallowed so the next tick still runs.
func (r *Reaper) RunOnce(ctx context.Context) (deleted int64, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("cleanup panicked: %v", p)
		}
		metrics.ObserveReaperRun(deleted, err)
		if err != nil {
			r.log.Error().Err(err).Msg("retention sweep failed")
		}
	}()

	deleted, err = r.store.Cleanup(ctx, r.retention)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		r.log.Info().Int64("count", deleted).Msg("purged expired jobs")
	}
	return deleted, nil
}
