package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joshu-sajeev/promptrelay/common"
	"github.com/joshu-sajeev/promptrelay/internal/config"
	"github.com/joshu-sajeev/promptrelay/internal/metrics"
	"github.com/joshu-sajeev/promptrelay/internal/retry"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Runner executes one job at a time against the page behind its Dialer.
type Runner struct {
	dialer   Dialer
	cfg      config.SessionConfig
	images   ImageResolver
	rotator  Rotator
	rotateOn string
	clock    retry.Clock
	timer    retry.Timer
	sleep    func(ctx context.Context, d time.Duration) error
	log      *zerolog.Logger
}

type Option func(*Runner)

func WithImageResolver(r ImageResolver) Option {
	return func(rn *Runner) { rn.images = r }
}

// WithRotator enables identity rotation for jobs whose prompt mode equals mode.
func WithRotator(r Rotator, mode string) Option {
	return func(rn *Runner) {
		rn.rotator = r
		rn.rotateOn = mode
	}
}

func WithClock(clock retry.Clock, timer retry.Timer) Option {
	return func(rn *Runner) {
		rn.clock = clock
		rn.timer = timer
	}
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(rn *Runner) { rn.sleep = sleep }
}

func NewRunner(dialer Dialer, cfg config.SessionConfig, logger *zerolog.Logger, opts ...Option) *Runner {
	l := logger.With().Str("component", "ExecutionSession").Logger()
	r := &Runner{
		dialer: dialer,
		cfg:    cfg,
		images: NewHTTPImageResolver(nil),
		sleep:  sleepCtx,
		log:    &l,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Session is the record of one execution. It is not reused.
type Session struct {
	ID    string
	Job   uint
	state State
	log   zerolog.Logger
}

func (s *Session) State() State { return s.state }

func (s *Session) advance(to State) error {
	if !s.state.CanTransition(to) {
		return transitionError{from: s.state, to: to}
	}
	s.log.Debug().Str("from", string(s.state)).Str("state", string(to)).Msg("session transition")
	s.state = to
	return nil
}

func (s *Session) fail(err error) error {
	if s.state.CanTransition(StateFailed) {
		s.log.Warn().Err(err).Str("at", string(s.state)).Msg("session failed")
		s.state = StateFailed
	}
	return err
}

// Run drives a single job to a parsed result. Every error wraps one of
// common.ErrTransport, common.ErrTimeout or common.ErrMalformedResult, except
// a bad destination which wraps common.ErrValidation.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	s := &Session{ID: ulid.Make().String(), Job: req.JobID, state: StateInit}
	s.log = r.log.With().Str("session_id", s.ID).Uint("job_id", req.JobID).Logger()

	start := time.Now()
	res, err := r.run(ctx, s, req)
	metrics.ObserveSession(outcome(err), time.Since(start))
	if err != nil {
		return nil, s.fail(err)
	}

	s.log.Info().Dur("took", time.Since(start)).Msg("session done")
	return res, nil
}

func (r *Runner) run(ctx context.Context, s *Session, req Request) (*Result, error) {
	dest, err := Destination(r.cfg.TargetURL, req.ContinuationURL, r.cfg.ModelParam, r.cfg.ModelValueFormat, req.ModelMode)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, common.ErrValidation)
	}

	if r.rotator != nil && req.PromptMode != "" && strings.EqualFold(req.PromptMode, r.rotateOn) {
		if err := r.rotator.Rotate(ctx); err != nil {
			s.log.Warn().Err(err).Msg("identity rotation failed, continuing with current identity")
		}
	}

	page, err := r.dialer.Open(ctx)
	if err != nil {
		return nil, transport("open control channel", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			s.log.Debug().Err(cerr).Msg("close control channel")
		}
	}()

	if err := r.navigate(ctx, s, page, dest, req.ContinuationURL != ""); err != nil {
		return nil, err
	}
	if err := s.advance(StateNavigated); err != nil {
		return nil, err
	}

	vars := Variables{Prompt: req.Prompt, PromptMode: req.PromptMode}
	if req.ImageURL != "" && r.images != nil {
		img, err := r.images.Resolve(ctx, req.ImageURL)
		if err != nil {
			s.log.Warn().Err(err).Msg("image resolution failed, sending prompt without it")
		} else {
			vars.Image = img
		}
	}
	if err := page.Inject(ctx, vars); err != nil {
		return nil, transport("inject prompt", err)
	}
	if err := s.advance(StatePromptInjected); err != nil {
		return nil, err
	}

	before, err := page.ResultManifest(ctx)
	if err != nil {
		return nil, transport("snapshot result manifest", err)
	}
	known := make(map[string]struct{}, len(before))
	for _, k := range before {
		known[k] = struct{}{}
	}

	if err := page.Trigger(ctx); err != nil {
		return nil, transport("trigger page agent", err)
	}
	if err := s.advance(StateTriggered); err != nil {
		return nil, err
	}
	if err := s.advance(StateAwaitingResult); err != nil {
		return nil, err
	}

	key, err := r.awaitResult(ctx, page, known)
	if err != nil {
		return nil, err
	}

	content, err := page.ReadResult(ctx, key)
	if err != nil {
		return nil, transport("read result "+key, err)
	}
	res, err := ParseResult(key, content)
	if err != nil {
		return nil, err
	}
	if err := s.advance(StateParsed); err != nil {
		return nil, err
	}

	if err := s.advance(StateDone); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Runner) navigate(ctx context.Context, s *Session, page Page, dest string, continuation bool) error {
	if continuation {
		current, err := page.Location(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("could not read current location")
		}
		if SameLocation(current, dest) {
			s.log.Info().Str("url", dest).Msg("already on continuation target, skipping navigation")
			return nil
		}
	}

	s.log.Info().Str("url", dest).Bool("continuation", continuation).Msg("navigating")
	if err := page.Navigate(ctx, dest); err != nil {
		return transport("navigate", err)
	}
	if r.cfg.NavigationSettle > 0 {
		if err := r.sleep(ctx, r.cfg.NavigationSettle); err != nil {
			return transport("wait for page", err)
		}
	}
	return nil
}

// awaitResult polls the manifest until an identifier outside known appears.
func (r *Runner) awaitResult(ctx context.Context, page Page, known map[string]struct{}) (string, error) {
	var found string
	err := retry.Poll(ctx, retry.PollOptions{
		Interval: r.cfg.ResultPoll,
		Deadline: r.cfg.ResultTimeout,
		Clock:    r.clock,
		Timer:    r.timer,
	}, func(ctx context.Context) (bool, error) {
		keys, err := page.ResultManifest(ctx)
		if err != nil {
			return false, err
		}
		for _, k := range keys {
			if _, ok := known[k]; !ok {
				found = k
				return true, nil
			}
		}
		return false, nil
	})

	switch {
	case err == nil:
		return found, nil
	case errors.Is(err, retry.ErrDeadline):
		return "", fmt.Errorf("no result after %s: %w", r.cfg.ResultTimeout, err)
	default:
		return "", transport("poll result manifest", err)
	}
}

func transport(op string, err error) error {
	if errors.Is(err, common.ErrTransport) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %v: %w", op, err, common.ErrTransport)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "done"
	case errors.Is(err, common.ErrTimeout):
		return "timeout"
	case errors.Is(err, common.ErrMalformedResult):
		return "malformed"
	case errors.Is(err, common.ErrTransport):
		return "transport"
	}
	return "error"
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
