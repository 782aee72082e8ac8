package mocks

import (
	"context"
	"time"

	"github.com/joshu-sajeev/promptrelay/internal/models"
	"github.com/stretchr/testify/mock"
)

type JobRepoMock struct {
	mock.Mock
}

func (m *JobRepoMock) Create(ctx context.Context, job *models.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *JobRepoMock) Get(ctx context.Context, id uint) (*models.Job, error) {
	args := m.Called(ctx, id)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) Claim(ctx context.Context, workerID string) (*models.Job, error) {
	args := m.Called(ctx, workerID)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) Complete(ctx context.Context, id uint, c models.Completion) (*models.Job, error) {
	args := m.Called(ctx, id, c)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) Fail(ctx context.Context, id uint, reason string) (*models.Job, error) {
	args := m.Called(ctx, id, reason)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) Delete(ctx context.Context, id uint) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *JobRepoMock) GetAndDelete(ctx context.Context, id uint) (*models.Job, error) {
	args := m.Called(ctx, id)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	args := m.Called(ctx, retention)

	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

func (m *JobRepoMock) MarkWebhookDelivered(ctx context.Context, id uint) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *JobRepoMock) List(ctx context.Context, filter models.ListFilter) ([]models.Job, error) {
	args := m.Called(ctx, filter)

	jobs, _ := args.Get(0).([]models.Job)
	return jobs, args.Error(1)
}

func (m *JobRepoMock) Stats(ctx context.Context) (*models.Stats, error) {
	args := m.Called(ctx)

	stats, _ := args.Get(0).(*models.Stats)
	return stats, args.Error(1)
}
