package job

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/joshu-sajeev/promptrelay/common"
	"github.com/joshu-sajeev/promptrelay/internal/config"
	"github.com/joshu-sajeev/promptrelay/internal/dto"
	"github.com/joshu-sajeev/promptrelay/internal/metrics"
	"github.com/joshu-sajeev/promptrelay/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type JobService struct {
	repo     JobRepoInterface
	notifier Notifier
	log      *zerolog.Logger
}

func NewJobService(repo JobRepoInterface, notifier Notifier, logger *zerolog.Logger) *JobService {
	l := logger.With().Str("component", "JobService").Logger()
	return &JobService{repo: repo, notifier: notifier, log: &l}
}

var _ JobServiceInterface = (*JobService)(nil)

// Submit validates the prompt, persists a pending job and returns the full record.
func (s *JobService) Submit(ctx context.Context, req *dto.JobCreateDTO) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	if strings.TrimSpace(req.Prompt) == "" {
		return nil, common.NewAPIError(
			http.StatusBadRequest,
			common.ErrValidation.Error(),
			map[string]any{"Prompt": "must not be empty"},
		)
	}

	job := models.Job{
		Prompt:          req.Prompt,
		Status:          config.JobStatusPending,
		WebhookURL:      blankToNil(req.WebhookURL),
		PromptMode:      blankToNil(req.PromptMode),
		ModelMode:       blankToNil(req.ModelMode),
		ImageURL:        blankToNil(req.ImageURL),
		ContinuationURL: blankToNil(req.ContinuationTarget),
	}

	if err := s.repo.Create(ctx, &job); err != nil {
		return nil, s.mapError(err, "failed to add job to database")
	}

	metrics.IncJobSubmitted()
	s.log.Info().Uint("job_id", job.ID).Msg("job submitted")
	return dto.NewJobResponse(&job), nil
}

// Get fetches a job. With deleteAfter the read and the removal happen as one
// store operation, so a concurrent reader sees either the job or NotFound.
func (s *JobService) Get(ctx context.Context, id uint, deleteAfter bool) (*dto.JobResponseDTO, error) {
	if deleteAfter {
		return s.Consume(ctx, id)
	}
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.mapError(err, "failed to get job")
	}
	return dto.NewJobResponse(job), nil
}

// Delete removes a job without reading it back and reports whether it existed.
func (s *JobService) Delete(ctx context.Context, id uint) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	existed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, s.mapError(err, "failed to delete job")
	}
	if existed {
		s.log.Info().Uint("job_id", id).Msg("job deleted")
	}
	return existed, nil
}

// Consume atomically fetches and deletes a job.
func (s *JobService) Consume(ctx context.Context, id uint) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	job, err := s.repo.GetAndDelete(ctx, id)
	if err != nil {
		return nil, s.mapError(err, "failed to consume job")
	}
	return dto.NewJobResponse(job), nil
}

func (s *JobService) List(ctx context.Context, filter models.ListFilter) ([]dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	if filter.Status != "" && !slices.Contains(config.AllowedStatuses, filter.Status) {
		return nil, common.NewAPIError(
			http.StatusBadRequest,
			"invalid status",
			map[string]any{
				"provided": filter.Status,
				"allowed":  config.AllowedStatuses,
			},
		)
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}

	jobs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, s.mapError(err, "failed to list jobs")
	}

	dtos := make([]dto.JobResponseDTO, len(jobs))
	for i := range jobs {
		dtos[i] = *dto.NewJobResponse(&jobs[i])
	}
	return dtos, nil
}

func (s *JobService) Stats(ctx context.Context) (*models.Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, s.mapError(err, "failed to collect stats")
	}
	return stats, nil
}

// Claim hands the oldest available pending job to workerID. A nil result with
// a nil error means the queue is empty.
func (s *JobService) Claim(ctx context.Context, workerID string) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}
	if strings.TrimSpace(workerID) == "" {
		return nil, common.Errf(http.StatusBadRequest, "worker_id is required")
	}

	job, err := s.repo.Claim(ctx, workerID)
	if err != nil {
		return nil, s.mapError(err, "failed to claim job")
	}
	if job == nil {
		return nil, nil
	}

	metrics.IncJobClaimed()
	s.log.Info().Uint("job_id", job.ID).Str("worker_id", workerID).Msg("job claimed")
	return dto.NewJobResponse(job), nil
}

func (s *JobService) Complete(ctx context.Context, id uint, req *dto.CompleteDTO) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	completion := models.Completion{
		Response:        req.Response,
		ConversationURL: blankToNil(req.ConversationURL),
	}
	if len(req.Result) > 0 && string(req.Result) != "null" {
		completion.Result = datatypes.JSON(req.Result)
	}

	job, err := s.repo.Complete(ctx, id, completion)
	if err != nil {
		return nil, s.mapError(err, "failed to complete job")
	}

	s.finished(job)
	return dto.NewJobResponse(job), nil
}

func (s *JobService) Fail(ctx context.Context, id uint, req *dto.FailDTO) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	job, err := s.repo.Fail(ctx, id, req.Error)
	if err != nil {
		return nil, s.mapError(err, "failed to fail job")
	}

	s.finished(job)
	return dto.NewJobResponse(job), nil
}

// Cleanup removes terminal jobs last updated more than retentionHours ago.
func (s *JobService) Cleanup(ctx context.Context, retentionHours int) (int64, error) {
	if retentionHours < 0 {
		return 0, common.Errf(http.StatusBadRequest, "retention_hours must be non-negative")
	}

	n, err := s.repo.Cleanup(ctx, time.Duration(retentionHours)*time.Hour)
	if err != nil {
		return 0, s.mapError(err, "failed to clean up jobs")
	}
	s.log.Info().Int64("deleted", n).Int("retention_hours", retentionHours).Msg("cleanup finished")
	return n, nil
}

// finished records the terminal transition and hands the job to the notifier.
// The notifier runs in the background so the reporting worker is never held up.
func (s *JobService) finished(job *models.Job) {
	metrics.IncJobFinished(string(job.Status))
	s.log.Info().
		Uint("job_id", job.ID).
		Str("status", string(job.Status)).
		Msg("job finished")

	if s.notifier != nil && job.WebhookURL != nil && !job.WebhookDelivered {
		s.notifier.Notify(job)
	}
}

// mapError translates store errors into boundary errors with a stable category.
func (s *JobService) mapError(err error, fallback string) error {
	switch {
	case errors.Is(err, context.Canceled):
		return common.Errf(http.StatusRequestTimeout, "request was canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return common.Errf(http.StatusRequestTimeout, "request timeout")
	case errors.Is(err, common.ErrNotFound):
		return common.Errf(http.StatusNotFound, "job not found")
	case errors.Is(err, common.ErrInvalidTransition):
		return common.Errf(http.StatusConflict, "job is already in a terminal state")
	case errors.Is(err, common.ErrValidation):
		return common.Errf(http.StatusBadRequest, "%s", err.Error())
	}

	s.log.Error().Err(err).Msg(fallback)
	return common.Errf(http.StatusInternalServerError, "%s", fallback)
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
