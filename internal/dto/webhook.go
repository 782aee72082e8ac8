package dto

import (
	"time"

	"github.com/joshu-sajeev/promptrelay/internal/config"
)

// WebhookEnvelope is the body POSTed to a job's webhook_url after it
// reaches a terminal state. Exactly one of Response and Error is set.
type WebhookEnvelope struct {
	JobID     uint             `json:"job_id"`
	Status    config.JobStatus `json:"status"`
	Prompt    string           `json:"prompt"`
	Timestamp time.Time        `json:"timestamp"`
	WorkerID  *string          `json:"worker_id"`
	Response  *string          `json:"response,omitempty"`
	Error     *string          `json:"error,omitempty"`
}
