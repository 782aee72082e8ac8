package models

import (
	"time"

	"github.com/joshu-sajeev/promptrelay/internal/config"
	"gorm.io/datatypes"
)

// Job is one queued prompt. Nullable columns are pointers so that
// "absent" survives a round trip through every store.
type Job struct {
	ID               uint             `gorm:"primaryKey;autoIncrement"`
	Prompt           string           `gorm:"type:text;not null"`
	Status           config.JobStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_jobs_status_created,priority:1"`
	Response         *string          `gorm:"type:text"`
	Error            *string          `gorm:"type:text"`
	WorkerID         *string          `gorm:"type:varchar(255)"`
	WebhookURL       *string          `gorm:"type:text"`
	WebhookDelivered bool             `gorm:"not null;default:false"`
	PromptMode       *string          `gorm:"type:varchar(50)"`
	ModelMode        *string          `gorm:"type:varchar(50)"`
	ImageURL         *string          `gorm:"type:text"`
	ContinuationURL  *string          `gorm:"type:text"`
	ConversationURL  *string          `gorm:"type:text"`
	Result           datatypes.JSON
	CreatedAt        time.Time `gorm:"autoCreateTime;index:idx_jobs_status_created,priority:2"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

func (Job) TableName() string { return "jobs" }

// Stats summarises the table for the admin endpoint.
type Stats struct {
	Total    int64                      `json:"total"`
	ByStatus map[config.JobStatus]int64 `json:"by_status"`
	Oldest   *time.Time                 `json:"oldest,omitempty"`
	Newest   *time.Time                 `json:"newest,omitempty"`
}

// ListFilter narrows List. A zero Status means every status.
type ListFilter struct {
	Status config.JobStatus
	Limit  int
}

// Completion carries what a worker reports for a successful job.
type Completion struct {
	Response        string
	Result          datatypes.JSON
	ConversationURL *string
}
