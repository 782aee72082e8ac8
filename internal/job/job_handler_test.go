package job

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/promptrelay/common"
	"github.com/joshu-sajeev/promptrelay/internal/config"
	"github.com/joshu-sajeev/promptrelay/internal/dto"
	"github.com/joshu-sajeev/promptrelay/internal/mocks"
	"github.com/joshu-sajeev/promptrelay/internal/models"
	"github.com/joshu-sajeev/promptrelay/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testKey = "secret"

func newTestRouter(svc JobServiceInterface) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(middleware.TimeoutMiddleware(5*time.Second), middleware.ErrorHandler())
	RegisterRoutes(r, NewJobHandler(svc), testKey)
	return r
}

func do(r http.Handler, method, path, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("X-API-Key", testKey)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJobHandler_Create(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMock      func(*mocks.JobServiceMock)
		expectedStatus int
	}{
		{
			name: "successful submission",
			body: `{"prompt":"write a haiku","webhook_url":"https://hooks.example.com/a"}`,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("Submit", mock.Anything, mock.MatchedBy(func(req *dto.JobCreateDTO) bool {
					return req.Prompt == "write a haiku" && *req.WebhookURL == "https://hooks.example.com/a"
				})).Return(&dto.JobResponseDTO{ID: 1, Prompt: "write a haiku", Status: config.JobStatusPending}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "invalid request body JSON",
			body:           "{invalid json}",
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing prompt",
			body:           `{"webhook_url":"https://hooks.example.com/a"}`,
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed webhook url",
			body:           `{"prompt":"x","webhook_url":"not a url"}`,
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "store failure",
			body: `{"prompt":"x"}`,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("Submit", mock.Anything, mock.Anything).
					Return(nil, common.Errf(http.StatusInternalServerError, "failed to add job to database"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mocks.JobServiceMock)
			tt.setupMock(svc)

			w := do(newTestRouter(svc), http.MethodPost, "/requests", tt.body, true)

			assert.Equal(t, tt.expectedStatus, w.Code, "Status code mismatch for test: %s", tt.name)
			svc.AssertExpectations(t)
		})
	}
}

func TestJobHandler_Auth(t *testing.T) {
	svc := new(mocks.JobServiceMock)
	r := newTestRouter(svc)

	t.Run("missing key", func(t *testing.T) {
		w := do(r, http.MethodGet, "/stats", "", false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bearer token", func(t *testing.T) {
		svc.On("Stats", mock.Anything).Return(&models.Stats{Total: 0, ByStatus: map[config.JobStatus]int64{}}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/stats", nil)
		req.Header.Set("Authorization", "Bearer "+testKey)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("health is open", func(t *testing.T) {
		w := do(r, http.MethodGet, "/health", "", false)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	svc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestJobHandler_Get(t *testing.T) {
	job := &dto.JobResponseDTO{ID: 1, Prompt: "p", Status: config.JobStatusPending}

	tests := []struct {
		name           string
		path           string
		setupMock      func(*mocks.JobServiceMock)
		expectedStatus int
	}{
		{
			name: "successful fetch",
			path: "/requests/1",
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("Get", mock.Anything, uint(1), false).Return(job, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "fetch and delete",
			path: "/requests/1?delete=true",
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("Get", mock.Anything, uint(1), true).Return(job, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "not found",
			path: "/requests/99",
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("Get", mock.Anything, uint(99), false).
					Return(nil, common.Errf(http.StatusNotFound, "job not found"))
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "invalid id",
			path:           "/requests/abc",
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "zero id",
			path:           "/requests/0",
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mocks.JobServiceMock)
			tt.setupMock(svc)

			w := do(newTestRouter(svc), http.MethodGet, tt.path, "", true)

			assert.Equal(t, tt.expectedStatus, w.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestJobHandler_Consume(t *testing.T) {
	svc := new(mocks.JobServiceMock)
	svc.On("Consume", mock.Anything, uint(4)).
		Return(&dto.JobResponseDTO{ID: 4, Status: config.JobStatusCompleted}, nil)

	w := do(newTestRouter(svc), http.MethodDelete, "/requests/4", "", true)

	assert.Equal(t, http.StatusOK, w.Code)
	var got dto.JobResponseDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, uint(4), got.ID)
}

func TestJobHandler_Delete(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		existed  bool
		wantCode int
		wantBody string
	}{
		{name: "removed", path: "/admin/requests/4", existed: true, wantCode: http.StatusOK, wantBody: `{"id":4,"deleted":true}`},
		{name: "absent", path: "/admin/requests/4", existed: false, wantCode: http.StatusOK, wantBody: `{"id":4,"deleted":false}`},
		{name: "bad id", path: "/admin/requests/x", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mocks.JobServiceMock)
			svc.On("Delete", mock.Anything, uint(4)).Return(tt.existed, nil)

			w := do(newTestRouter(svc), http.MethodDelete, tt.path, "", true)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestJobHandler_List(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		setupMock      func(*mocks.JobServiceMock)
		expectedStatus int
	}{
		{
			name: "filter and limit",
			path: "/requests?status=failed&limit=5",
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("List", mock.Anything, models.ListFilter{Status: config.JobStatusFailed, Limit: 5}).
					Return([]dto.JobResponseDTO{{ID: 3}}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "no filter",
			path: "/requests",
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("List", mock.Anything, models.ListFilter{}).Return([]dto.JobResponseDTO{}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "bad limit",
			path:           "/requests?limit=-3",
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mocks.JobServiceMock)
			tt.setupMock(svc)

			w := do(newTestRouter(svc), http.MethodGet, tt.path, "", true)

			assert.Equal(t, tt.expectedStatus, w.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestJobHandler_Claim(t *testing.T) {
	t.Run("job available", func(t *testing.T) {
		svc := new(mocks.JobServiceMock)
		svc.On("Claim", mock.Anything, "w-1").
			Return(&dto.JobResponseDTO{ID: 2, Status: config.JobStatusProcessing}, nil)

		w := do(newTestRouter(svc), http.MethodPost, "/worker/claim", `{"worker_id":"w-1"}`, true)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"processing"`)
	})

	t.Run("queue empty", func(t *testing.T) {
		svc := new(mocks.JobServiceMock)
		svc.On("Claim", mock.Anything, "w-1").Return(nil, nil)

		w := do(newTestRouter(svc), http.MethodPost, "/worker/claim", `{"worker_id":"w-1"}`, true)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("missing worker id", func(t *testing.T) {
		svc := new(mocks.JobServiceMock)

		w := do(newTestRouter(svc), http.MethodPost, "/worker/claim", `{}`, true)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "failed required")
	})
}

func TestJobHandler_Report(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		body           string
		setupMock      func(*mocks.JobServiceMock)
		expectedStatus int
	}{
		{
			name: "complete",
			path: "/worker/1/complete",
			body: `{"response":"done","result":{"response":"done"}}`,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("Complete", mock.Anything, uint(1), mock.MatchedBy(func(req *dto.CompleteDTO) bool {
					return req.Response == "done" && string(req.Result) == `{"response":"done"}`
				})).Return(&dto.JobResponseDTO{ID: 1, Status: config.JobStatusCompleted}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "complete on terminal job",
			path: "/worker/1/complete",
			body: `{"response":"again"}`,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("Complete", mock.Anything, uint(1), mock.Anything).
					Return(nil, common.Errf(http.StatusConflict, "job is already in a terminal state"))
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "fail",
			path: "/worker/2/fail",
			body: `{"error":"timed out waiting for result"}`,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("Fail", mock.Anything, uint(2), &dto.FailDTO{Error: "timed out waiting for result"}).
					Return(&dto.JobResponseDTO{ID: 2, Status: config.JobStatusFailed}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "fail without reason",
			path:           "/worker/2/fail",
			body:           `{}`,
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mocks.JobServiceMock)
			tt.setupMock(svc)

			w := do(newTestRouter(svc), http.MethodPost, tt.path, tt.body, true)

			assert.Equal(t, tt.expectedStatus, w.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestJobHandler_Cleanup(t *testing.T) {
	t.Run("deletes", func(t *testing.T) {
		svc := new(mocks.JobServiceMock)
		svc.On("Cleanup", mock.Anything, 0).Return(int64(6), nil)

		w := do(newTestRouter(svc), http.MethodPost, "/admin/cleanup", `{"retention_hours":0}`, true)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"deleted":6}`, w.Body.String())
	})

	t.Run("retention required", func(t *testing.T) {
		svc := new(mocks.JobServiceMock)

		w := do(newTestRouter(svc), http.MethodPost, "/admin/cleanup", `{}`, true)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestJobHandler_Timeout(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := new(mocks.JobServiceMock)
	svc.On("Stats", mock.Anything).Run(func(args mock.Arguments) {
		<-args.Get(0).(interface{ Done() <-chan struct{} }).Done()
	}).Return(nil, common.Errf(http.StatusRequestTimeout, "request timeout"))

	r := gin.New()
	r.Use(middleware.TimeoutMiddleware(20*time.Millisecond), middleware.ErrorHandler())
	RegisterRoutes(r, NewJobHandler(svc), testKey)

	w := do(r, http.MethodGet, "/stats", "", true)
	assert.Equal(t, http.StatusRequestTimeout, w.Code)
}
