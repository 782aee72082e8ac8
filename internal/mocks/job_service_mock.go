package mocks

import (
	"context"

	"github.com/joshu-sajeev/promptrelay/internal/dto"
	"github.com/joshu-sajeev/promptrelay/internal/models"
	"github.com/stretchr/testify/mock"
)

type JobServiceMock struct {
	mock.Mock
}

func (m *JobServiceMock) Submit(ctx context.Context, req *dto.JobCreateDTO) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, req)

	resp, _ := args.Get(0).(*dto.JobResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) Get(ctx context.Context, id uint, deleteAfter bool) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, id, deleteAfter)

	resp, _ := args.Get(0).(*dto.JobResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) Consume(ctx context.Context, id uint) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, id)

	resp, _ := args.Get(0).(*dto.JobResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) Delete(ctx context.Context, id uint) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *JobServiceMock) List(ctx context.Context, filter models.ListFilter) ([]dto.JobResponseDTO, error) {
	args := m.Called(ctx, filter)

	resp, _ := args.Get(0).([]dto.JobResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) Stats(ctx context.Context) (*models.Stats, error) {
	args := m.Called(ctx)

	stats, _ := args.Get(0).(*models.Stats)
	return stats, args.Error(1)
}

func (m *JobServiceMock) Claim(ctx context.Context, workerID string) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, workerID)

	resp, _ := args.Get(0).(*dto.JobResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) Complete(ctx context.Context, id uint, req *dto.CompleteDTO) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, id, req)

	resp, _ := args.Get(0).(*dto.JobResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) Fail(ctx context.Context, id uint, req *dto.FailDTO) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, id, req)

	resp, _ := args.Get(0).(*dto.JobResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) Cleanup(ctx context.Context, retentionHours int) (int64, error) {
	args := m.Called(ctx, retentionHours)

	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}
