package relational

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joshu-sajeev/promptrelay/common"
	"github.com/joshu-sajeev/promptrelay/internal/config"
	"github.com/joshu-sajeev/promptrelay/internal/job"
	"github.com/joshu-sajeev/promptrelay/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// claimAttempts bounds the optimistic claim loop used where row locks are
// unavailable. Each lost race means another claimer made progress.
const claimAttempts = 8

var terminal = []string{string(config.JobStatusCompleted), string(config.JobStatusFailed)}

type JobRepository struct {
	db       *gorm.DB
	rowLocks bool
	now      func() time.Time
}

type Option func(*JobRepository)

// WithNow overrides the clock used for updated_at and retention cutoffs.
func WithNow(now func() time.Time) Option {
	return func(r *JobRepository) { r.now = now }
}

// NewJobRepository wraps db. On Postgres, claims use FOR UPDATE SKIP LOCKED;
// elsewhere they fall back to a conditional update on the status column.
func NewJobRepository(db *gorm.DB, opts ...Option) *JobRepository {
	r := &JobRepository{
		db:       db,
		rowLocks: isPostgres(db),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ job.JobRepoInterface = (*JobRepository)(nil)

// Create inserts a new pending job. Lifecycle fields are reset so a caller
// cannot smuggle in a worker or a result.
func (r *JobRepository) Create(ctx context.Context, j *models.Job) error {
	now := r.now()
	j.Status = config.JobStatusPending
	j.Response, j.Error, j.WorkerID = nil, nil, nil
	j.WebhookDelivered = false
	j.CreatedAt, j.UpdatedAt = now, now

	if err := r.db.WithContext(ctx).Create(j).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Get retrieves a single job record by its ID.
func (r *JobRepository) Get(ctx context.Context, id uint) (*models.Job, error) {
	var j models.Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("get job %d: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// Claim moves the oldest pending job to processing for workerID.
func (r *JobRepository) Claim(ctx context.Context, workerID string) (*models.Job, error) {
	if r.rowLocks {
		return r.claimLocked(ctx, workerID)
	}
	return r.claimConditional(ctx, workerID)
}

// claimLocked selects the oldest pending row no other transaction holds and
// updates it in the same transaction. Locked rows are skipped, not waited on.
func (r *JobRepository) claimLocked(ctx context.Context, workerID string) (*models.Job, error) {
	var claimed *models.Job

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var j models.Job
		res := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", string(config.JobStatusPending)).
			Order("created_at ASC, id ASC").
			Limit(1).
			Find(&j)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		now := r.now()
		if err := tx.Model(&models.Job{}).
			Where("id = ?", j.ID).
			Updates(map[string]any{
				"status":     string(config.JobStatusProcessing),
				"worker_id":  workerID,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		j.Status = config.JobStatusProcessing
		j.WorkerID = &workerID
		j.UpdatedAt = now
		claimed = &j
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return claimed, nil
}

// claimConditional picks a candidate without locking and claims it with an
// UPDATE guarded by status = 'pending'. Losing the race moves on to the next
// candidate.
func (r *JobRepository) claimConditional(ctx context.Context, workerID string) (*models.Job, error) {
	db := r.db.WithContext(ctx)

	for range claimAttempts {
		var candidate models.Job
		res := db.Select("id").
			Where("status = ?", string(config.JobStatusPending)).
			Order("created_at ASC, id ASC").
			Limit(1).
			Find(&candidate)
		if res.Error != nil {
			return nil, fmt.Errorf("claim job: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, nil
		}

		upd := db.Model(&models.Job{}).
			Where("id = ? AND status = ?", candidate.ID, string(config.JobStatusPending)).
			Updates(map[string]any{
				"status":     string(config.JobStatusProcessing),
				"worker_id":  workerID,
				"updated_at": r.now(),
			})
		if upd.Error != nil {
			return nil, fmt.Errorf("claim job: %w", upd.Error)
		}
		if upd.RowsAffected == 1 {
			return r.Get(ctx, candidate.ID)
		}
	}

	return nil, nil
}

// Complete marks a pre-terminal job completed. The error column is cleared;
// worker_id is left as the claim set it.
func (r *JobRepository) Complete(ctx context.Context, id uint, c models.Completion) (*models.Job, error) {
	values := map[string]any{
		"status":     string(config.JobStatusCompleted),
		"response":   c.Response,
		"error":      nil,
		"updated_at": r.now(),
	}
	if len(c.Result) > 0 {
		values["result"] = c.Result
	}
	if c.ConversationURL != nil {
		values["conversation_url"] = *c.ConversationURL
	}

	j, err := r.finish(ctx, id, config.JobStatusCompleted, values)
	if err != nil {
		return nil, fmt.Errorf("complete job %d: %w", id, err)
	}
	return j, nil
}

// Fail marks a pre-terminal job failed. response stays null.
func (r *JobRepository) Fail(ctx context.Context, id uint, reason string) (*models.Job, error) {
	j, err := r.finish(ctx, id, config.JobStatusFailed, map[string]any{
		"status":     string(config.JobStatusFailed),
		"error":      reason,
		"response":   nil,
		"updated_at": r.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("fail job %d: %w", id, err)
	}
	return j, nil
}

func (r *JobRepository) finish(ctx context.Context, id uint, to config.JobStatus, values map[string]any) (*models.Job, error) {
	var out models.Job

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Job{}).
			Where("id = ? AND status IN ?", id, config.SourcesOf(to)).
			Updates(values)
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			var existing models.Job
			if err := tx.Select("status").First(&existing, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return common.ErrNotFound
				}
				return err
			}
			return fmt.Errorf("job is %s: %w", existing.Status, common.ErrInvalidTransition)
		}

		return tx.First(&out, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes the row and reports whether it existed.
func (r *JobRepository) Delete(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&models.Job{}, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("delete job: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetAndDelete reads and removes a job in one transaction. Two concurrent
// callers cannot both receive the record.
func (r *JobRepository) GetAndDelete(ctx context.Context, id uint) (*models.Job, error) {
	var out models.Job

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if r.rowLocks {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&out, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrNotFound
			}
			return err
		}

		res := tx.Delete(&models.Job{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return common.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get and delete job %d: %w", id, err)
	}
	return &out, nil
}

// Cleanup deletes terminal jobs whose last update is older than now-retention.
func (r *JobRepository) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := r.now().Add(-retention)

	res := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", terminal, cutoff).
		Delete(&models.Job{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// MarkWebhookDelivered flips webhook_delivered from false to true. It returns
// false when the flag was already set or the job is gone.
func (r *JobRepository) MarkWebhookDelivered(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND webhook_delivered = ?", id, false).
		Updates(map[string]any{
			"webhook_delivered": true,
			"updated_at":        r.now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("mark webhook delivered: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// List returns jobs newest first.
func (r *JobRepository) List(ctx context.Context, filter models.ListFilter) ([]models.Job, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var jobs []models.Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Stats counts jobs per status and reports the creation-time range.
func (r *JobRepository) Stats(ctx context.Context) (*models.Stats, error) {
	db := r.db.WithContext(ctx)

	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Job{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}

	stats := &models.Stats{ByStatus: make(map[config.JobStatus]int64, len(config.AllowedStatuses))}
	for _, s := range config.AllowedStatuses {
		stats.ByStatus[s] = 0
	}
	for _, row := range rows {
		stats.ByStatus[config.JobStatus(row.Status)] = row.Count
		stats.Total += row.Count
	}
	if stats.Total == 0 {
		return stats, nil
	}

	var oldest, newest []time.Time
	if err := db.Model(&models.Job{}).Order("created_at ASC").Limit(1).Pluck("created_at", &oldest).Error; err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	if err := db.Model(&models.Job{}).Order("created_at DESC").Limit(1).Pluck("created_at", &newest).Error; err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	if len(oldest) == 1 {
		stats.Oldest = &oldest[0]
	}
	if len(newest) == 1 {
		stats.Newest = &newest[0]
	}
	return stats, nil
}
