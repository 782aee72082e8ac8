package job

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/promptrelay/internal/dto"
	"github.com/joshu-sajeev/promptrelay/internal/models"
)

// JobRepoInterface is the Job Store contract. Every implementation must make
// Claim atomic: under concurrent callers a pending job is handed out at most
// once, and a claimer never waits on a row another claimer holds.
//
// Not-found conditions wrap common.ErrNotFound; a complete or fail on a job
// that is already terminal wraps common.ErrInvalidTransition.
type JobRepoInterface interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id uint) (*models.Job, error)
	// Claim returns (nil, nil) when nothing is pending.
	Claim(ctx context.Context, workerID string) (*models.Job, error)
	Complete(ctx context.Context, id uint, c models.Completion) (*models.Job, error)
	Fail(ctx context.Context, id uint, reason string) (*models.Job, error)
	Delete(ctx context.Context, id uint) (bool, error)
	GetAndDelete(ctx context.Context, id uint) (*models.Job, error)
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
	MarkWebhookDelivered(ctx context.Context, id uint) (bool, error)
	List(ctx context.Context, filter models.ListFilter) ([]models.Job, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

// JobServiceInterface defines the contract for job business logic operations.
type JobServiceInterface interface {
	Submit(ctx context.Context, req *dto.JobCreateDTO) (*dto.JobResponseDTO, error)
	Get(ctx context.Context, id uint, deleteAfter bool) (*dto.JobResponseDTO, error)
	Consume(ctx context.Context, id uint) (*dto.JobResponseDTO, error)
	Delete(ctx context.Context, id uint) (bool, error)
	List(ctx context.Context, filter models.ListFilter) ([]dto.JobResponseDTO, error)
	Stats(ctx context.Context) (*models.Stats, error)
	Claim(ctx context.Context, workerID string) (*dto.JobResponseDTO, error)
	Complete(ctx context.Context, id uint, req *dto.CompleteDTO) (*dto.JobResponseDTO, error)
	Fail(ctx context.Context, id uint, req *dto.FailDTO) (*dto.JobResponseDTO, error)
	Cleanup(ctx context.Context, retentionHours int) (int64, error)
}

// JobHandlerInterface defines the contract for HTTP request handlers.
type JobHandlerInterface interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Consume(c *gin.Context)
	Delete(c *gin.Context)
	List(c *gin.Context)
	Stats(c *gin.Context)
	Claim(c *gin.Context)
	Complete(c *gin.Context)
	Fail(c *gin.Context)
	Cleanup(c *gin.Context)
}

// Notifier is told about every terminal transition. Implementations must
// return quickly; delivery happens in the background.
type Notifier interface {
	Notify(job *models.Job)
}
