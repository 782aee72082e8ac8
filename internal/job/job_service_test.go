package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/joshu-sajeev/promptrelay/common"
	"github.com/joshu-sajeev/promptrelay/internal/config"
	"github.com/joshu-sajeev/promptrelay/internal/dto"
	"github.com/joshu-sajeev/promptrelay/internal/logging"
	"github.com/joshu-sajeev/promptrelay/internal/mocks"
	"github.com/joshu-sajeev/promptrelay/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func strPtr(s string) *string { return &s }

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	var apiErr common.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, want, apiErr.Status)
}

func TestJobService_Submit(t *testing.T) {
	tests := []struct {
		name       string
		req        *dto.JobCreateDTO
		setupMock  func(*mocks.JobRepoMock)
		ctx        func() context.Context
		wantStatus int
	}{
		{
			name: "stores a pending job",
			req:  &dto.JobCreateDTO{Prompt: "hello"},
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Create", mock.Anything, mock.MatchedBy(func(job *models.Job) bool {
					return job.Prompt == "hello" &&
						job.Status == config.JobStatusPending &&
						job.WorkerID == nil &&
						job.WebhookURL == nil
				})).Run(func(args mock.Arguments) {
					args.Get(1).(*models.Job).ID = 7
				}).Return(nil)
			},
		},
		{
			name: "blank optional fields are dropped",
			req: &dto.JobCreateDTO{
				Prompt:             "hi",
				WebhookURL:         strPtr("https://hooks.example.com/x"),
				PromptMode:         strPtr("  "),
				ContinuationTarget: strPtr(" https://chatgpt.com/c/abc "),
			},
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Create", mock.Anything, mock.MatchedBy(func(job *models.Job) bool {
					return job.PromptMode == nil &&
						job.WebhookURL != nil && *job.WebhookURL == "https://hooks.example.com/x" &&
						job.ContinuationURL != nil && *job.ContinuationURL == "https://chatgpt.com/c/abc"
				})).Return(nil)
			},
		},
		{
			name:       "whitespace prompt is rejected",
			req:        &dto.JobCreateDTO{Prompt: " \n\t"},
			setupMock:  func(m *mocks.JobRepoMock) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "store failure",
			req:  &dto.JobCreateDTO{Prompt: "hello"},
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection refused"))
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:      "canceled context",
			req:       &dto.JobCreateDTO{Prompt: "hello"},
			setupMock: func(m *mocks.JobRepoMock) {},
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantStatus: http.StatusRequestTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.JobRepoMock)
			tt.setupMock(repo)
			svc := NewJobService(repo, nil, logging.Nop())

			ctx := context.Background()
			if tt.ctx != nil {
				ctx = tt.ctx()
			}

			resp, err := svc.Submit(ctx, tt.req)
			if tt.wantStatus != 0 {
				assertStatus(t, err, tt.wantStatus)
				assert.Nil(t, resp)
			} else {
				require.NoError(t, err)
				assert.Equal(t, config.JobStatusPending, resp.Status)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestJobService_Get(t *testing.T) {
	stored := &models.Job{ID: 3, Prompt: "p", Status: config.JobStatusPending}

	t.Run("plain read", func(t *testing.T) {
		repo := new(mocks.JobRepoMock)
		repo.On("Get", mock.Anything, uint(3)).Return(stored, nil)

		resp, err := NewJobService(repo, nil, logging.Nop()).Get(context.Background(), 3, false)
		require.NoError(t, err)
		assert.Equal(t, uint(3), resp.ID)
		repo.AssertNotCalled(t, "GetAndDelete", mock.Anything, mock.Anything)
	})

	t.Run("delete after read uses the atomic path", func(t *testing.T) {
		repo := new(mocks.JobRepoMock)
		repo.On("GetAndDelete", mock.Anything, uint(3)).Return(stored, nil)

		resp, err := NewJobService(repo, nil, logging.Nop()).Get(context.Background(), 3, true)
		require.NoError(t, err)
		assert.Equal(t, "p", resp.Prompt)
		repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("missing job", func(t *testing.T) {
		repo := new(mocks.JobRepoMock)
		repo.On("Get", mock.Anything, uint(9)).Return(nil, fmt.Errorf("get job 9: %w", common.ErrNotFound))

		_, err := NewJobService(repo, nil, logging.Nop()).Get(context.Background(), 9, false)
		assertStatus(t, err, http.StatusNotFound)
	})
}

func TestJobService_List(t *testing.T) {
	tests := []struct {
		name       string
		filter     models.ListFilter
		wantFilter models.ListFilter
		wantStatus int
	}{
		{
			name:       "default limit",
			filter:     models.ListFilter{},
			wantFilter: models.ListFilter{Limit: 100},
		},
		{
			name:       "limit is capped",
			filter:     models.ListFilter{Status: config.JobStatusFailed, Limit: 50000},
			wantFilter: models.ListFilter{Status: config.JobStatusFailed, Limit: 1000},
		},
		{
			name:       "unknown status",
			filter:     models.ListFilter{Status: "queued"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.JobRepoMock)
			if tt.wantStatus == 0 {
				repo.On("List", mock.Anything, tt.wantFilter).
					Return([]models.Job{{ID: 2}, {ID: 1}}, nil)
			}

			got, err := NewJobService(repo, nil, logging.Nop()).List(context.Background(), tt.filter)
			if tt.wantStatus != 0 {
				assertStatus(t, err, tt.wantStatus)
				repo.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, uint(2), got[0].ID)
			repo.AssertExpectations(t)
		})
	}
}

func TestJobService_Claim(t *testing.T) {
	t.Run("hands out a job", func(t *testing.T) {
		repo := new(mocks.JobRepoMock)
		repo.On("Claim", mock.Anything, "w-1").Return(&models.Job{
			ID: 4, Prompt: "p", Status: config.JobStatusProcessing, WorkerID: strPtr("w-1"),
		}, nil)

		resp, err := NewJobService(repo, nil, logging.Nop()).Claim(context.Background(), "w-1")
		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, config.JobStatusProcessing, resp.Status)
		assert.Equal(t, "w-1", *resp.WorkerID)
	})

	t.Run("empty queue", func(t *testing.T) {
		repo := new(mocks.JobRepoMock)
		repo.On("Claim", mock.Anything, "w-1").Return(nil, nil)

		resp, err := NewJobService(repo, nil, logging.Nop()).Claim(context.Background(), "w-1")
		assert.NoError(t, err)
		assert.Nil(t, resp)
	})

	t.Run("blank worker id", func(t *testing.T) {
		repo := new(mocks.JobRepoMock)

		_, err := NewJobService(repo, nil, logging.Nop()).Claim(context.Background(), "  ")
		assertStatus(t, err, http.StatusBadRequest)
		repo.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything)
	})
}

func TestJobService_Complete(t *testing.T) {
	hook := "https://hooks.example.com/done"

	tests := []struct {
		name       string
		req        *dto.CompleteDTO
		stored     *models.Job
		repoErr    error
		wantNotify bool
		wantStatus int
	}{
		{
			name:       "notifies when a webhook is set",
			req:        &dto.CompleteDTO{Response: "answer", Result: json.RawMessage(`{"response":"answer"}`)},
			stored:     &models.Job{ID: 1, Status: config.JobStatusCompleted, Response: strPtr("answer"), WebhookURL: &hook},
			wantNotify: true,
		},
		{
			name:   "no webhook no notify",
			req:    &dto.CompleteDTO{Response: "answer"},
			stored: &models.Job{ID: 1, Status: config.JobStatusCompleted, Response: strPtr("answer")},
		},
		{
			name:   "already delivered is not re-notified",
			req:    &dto.CompleteDTO{Response: "answer"},
			stored: &models.Job{ID: 1, Status: config.JobStatusCompleted, WebhookURL: &hook, WebhookDelivered: true},
		},
		{
			name:       "terminal job conflicts",
			req:        &dto.CompleteDTO{Response: "again"},
			repoErr:    fmt.Errorf("complete job 1: %w", common.ErrInvalidTransition),
			wantStatus: http.StatusConflict,
		},
		{
			name:       "missing job",
			req:        &dto.CompleteDTO{Response: "x"},
			repoErr:    fmt.Errorf("complete job 1: %w", common.ErrNotFound),
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.JobRepoMock)
			notifier := new(mocks.NotifierMock)

			repo.On("Complete", mock.Anything, uint(1), mock.MatchedBy(func(c models.Completion) bool {
				return c.Response == tt.req.Response
			})).Return(tt.stored, tt.repoErr)
			if tt.wantNotify {
				notifier.On("Notify", tt.stored).Return()
			}

			resp, err := NewJobService(repo, notifier, logging.Nop()).Complete(context.Background(), 1, tt.req)
			if tt.wantStatus != 0 {
				assertStatus(t, err, tt.wantStatus)
			} else {
				require.NoError(t, err)
				assert.Equal(t, config.JobStatusCompleted, resp.Status)
			}

			repo.AssertExpectations(t)
			notifier.AssertExpectations(t)
			if !tt.wantNotify {
				notifier.AssertNotCalled(t, "Notify", mock.Anything)
			}
		})
	}
}

func TestJobService_Complete_ForwardsResult(t *testing.T) {
	repo := new(mocks.JobRepoMock)
	want := models.Completion{
		Response:        "answer",
		Result:          datatypes.JSON(`{"response":"answer"}`),
		ConversationURL: strPtr("https://chatgpt.com/c/1"),
	}
	repo.On("Complete", mock.Anything, uint(5), want).
		Return(&models.Job{ID: 5, Status: config.JobStatusCompleted}, nil)

	_, err := NewJobService(repo, nil, logging.Nop()).Complete(context.Background(), 5, &dto.CompleteDTO{
		Response:        "answer",
		Result:          json.RawMessage(`{"response":"answer"}`),
		ConversationURL: strPtr("https://chatgpt.com/c/1"),
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestJobService_Fail(t *testing.T) {
	hook := "https://hooks.example.com/done"
	stored := &models.Job{ID: 2, Status: config.JobStatusFailed, Error: strPtr("boom"), WebhookURL: &hook}

	repo := new(mocks.JobRepoMock)
	notifier := new(mocks.NotifierMock)
	repo.On("Fail", mock.Anything, uint(2), "boom").Return(stored, nil)
	notifier.On("Notify", stored).Return()

	resp, err := NewJobService(repo, notifier, logging.Nop()).Fail(context.Background(), 2, &dto.FailDTO{Error: "boom"})
	require.NoError(t, err)
	assert.Equal(t, config.JobStatusFailed, resp.Status)
	assert.Equal(t, "boom", *resp.Error)
	notifier.AssertExpectations(t)
}

func TestJobService_Cleanup(t *testing.T) {
	t.Run("converts hours", func(t *testing.T) {
		repo := new(mocks.JobRepoMock)
		repo.On("Cleanup", mock.Anything, 48*time.Hour).Return(int64(3), nil)

		n, err := NewJobService(repo, nil, logging.Nop()).Cleanup(context.Background(), 48)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("zero retention purges all terminal", func(t *testing.T) {
		repo := new(mocks.JobRepoMock)
		repo.On("Cleanup", mock.Anything, time.Duration(0)).Return(int64(10), nil)

		n, err := NewJobService(repo, nil, logging.Nop()).Cleanup(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(10), n)
	})

	t.Run("negative retention", func(t *testing.T) {
		repo := new(mocks.JobRepoMock)

		_, err := NewJobService(repo, nil, logging.Nop()).Cleanup(context.Background(), -1)
		assertStatus(t, err, http.StatusBadRequest)
	})
}

func TestJobService_Delete(t *testing.T) {
	tests := []struct {
		name       string
		existed    bool
		repoErr    error
		wantStatus int
	}{
		{name: "existing job", existed: true},
		{name: "missing job is not an error", existed: false},
		{name: "store failure", repoErr: errors.New("connection reset"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.JobRepoMock)
			repo.On("Delete", mock.Anything, uint(5)).Return(tt.existed, tt.repoErr)

			existed, err := NewJobService(repo, nil, logging.Nop()).Delete(context.Background(), 5)
			if tt.wantStatus != 0 {
				assertStatus(t, err, tt.wantStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.existed, existed)
			repo.AssertNotCalled(t, "GetAndDelete", mock.Anything, mock.Anything)
		})
	}
}

func TestJobService_MapError(t *testing.T) {
	svc := NewJobService(new(mocks.JobRepoMock), nil, logging.Nop())

	tests := []struct {
		err  error
		want int
	}{
		{context.Canceled, http.StatusRequestTimeout},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), http.StatusRequestTimeout},
		{common.ErrNotFound, http.StatusNotFound},
		{common.ErrInvalidTransition, http.StatusConflict},
		{fmt.Errorf("bad: %w", common.ErrValidation), http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assertStatus(t, svc.mapError(tt.err, "failed"), tt.want)
		})
	}
}
