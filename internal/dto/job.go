package dto

import (
	"encoding/json"
	"time"

	"github.com/joshu-sajeev/promptrelay/internal/config"
	"github.com/joshu-sajeev/promptrelay/internal/models"
)

type JobCreateDTO struct {
	Prompt             string  `json:"prompt" validate:"required"`
	WebhookURL         *string `json:"webhook_url,omitempty" validate:"omitempty,url"`
	PromptMode         *string `json:"prompt_mode,omitempty" validate:"omitempty,max=50"`
	ModelMode          *string `json:"model_mode,omitempty" validate:"omitempty,max=50"`
	ImageURL           *string `json:"image_url,omitempty"`
	ContinuationTarget *string `json:"continuation_target,omitempty" validate:"omitempty,url"`
}

type JobResponseDTO struct {
	ID                 uint             `json:"id"`
	Prompt             string           `json:"prompt"`
	Status             config.JobStatus `json:"status"`
	Response           *string          `json:"response"`
	Error              *string          `json:"error"`
	WorkerID           *string          `json:"worker_id"`
	WebhookURL         *string          `json:"webhook_url,omitempty"`
	WebhookDelivered   bool             `json:"webhook_delivered"`
	PromptMode         *string          `json:"prompt_mode,omitempty"`
	ModelMode          *string          `json:"model_mode,omitempty"`
	ImageURL           *string          `json:"image_url,omitempty"`
	ContinuationTarget *string          `json:"continuation_target,omitempty"`
	ConversationURL    *string          `json:"conversation_url,omitempty"`
	Result             json.RawMessage  `json:"result,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

type ClaimDTO struct {
	WorkerID string `json:"worker_id" validate:"required,max=255"`
}

type CompleteDTO struct {
	Response        string          `json:"response"`
	Result          json.RawMessage `json:"result,omitempty"`
	ConversationURL *string         `json:"conversation_url,omitempty"`
}

type FailDTO struct {
	Error string `json:"error" validate:"required"`
}

type CleanupDTO struct {
	RetentionHours *int `json:"retention_hours" validate:"required,gte=0"`
}

type DeleteResultDTO struct {
	ID      uint `json:"id"`
	Deleted bool `json:"deleted"`
}

type CleanupResultDTO struct {
	Deleted int64 `json:"deleted"`
}

// NewJobResponse maps the persisted model to its wire form.
func NewJobResponse(job *models.Job) *JobResponseDTO {
	resp := &JobResponseDTO{
		ID:                 job.ID,
		Prompt:             job.Prompt,
		Status:             job.Status,
		Response:           job.Response,
		Error:              job.Error,
		WorkerID:           job.WorkerID,
		WebhookURL:         job.WebhookURL,
		WebhookDelivered:   job.WebhookDelivered,
		PromptMode:         job.PromptMode,
		ModelMode:          job.ModelMode,
		ImageURL:           job.ImageURL,
		ContinuationTarget: job.ContinuationURL,
		ConversationURL:    job.ConversationURL,
		CreatedAt:          job.CreatedAt,
		UpdatedAt:          job.UpdatedAt,
	}
	if len(job.Result) > 0 {
		resp.Result = json.RawMessage(job.Result)
	}
	return resp
}
