package mocks

import (
	"github.com/joshu-sajeev/promptrelay/internal/models"
	"github.com/stretchr/testify/mock"
)

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Notify(job *models.Job) {
	m.Called(job)
}
