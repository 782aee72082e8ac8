package job

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/promptrelay/common"
	"github.com/joshu-sajeev/promptrelay/internal/config"
	"github.com/joshu-sajeev/promptrelay/internal/dto"
	"github.com/joshu-sajeev/promptrelay/internal/models"
	"github.com/joshu-sajeev/promptrelay/middleware"
)

type JobHandler struct {
	service JobServiceInterface
}

func NewJobHandler(s JobServiceInterface) *JobHandler {
	return &JobHandler{service: s}
}

var _ JobHandlerInterface = (*JobHandler)(nil)

// Create handles HTTP requests for submitting a new prompt.
// It binds and validates the body, delegates to the JobService,
// and returns HTTP 201 with the stored job.
func (h *JobHandler) Create(c *gin.Context) {
	var req dto.JobCreateDTO

	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	resp, err := h.service.Submit(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Get returns a job by ID. With ?delete=true the job is removed in the same call.
func (h *JobHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	deleteAfter, _ := strconv.ParseBool(c.DefaultQuery("delete", "false"))

	resp, err := h.service.Get(c.Request.Context(), id, deleteAfter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Consume fetches and deletes a job as a single operation.
func (h *JobHandler) Consume(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	resp, err := h.service.Consume(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Delete removes a job. A missing job is not an error; the body says whether
// anything was removed.
func (h *JobHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	existed, err := h.service.Delete(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.DeleteResultDTO{ID: id, Deleted: existed})
}

// List returns jobs newest first, optionally filtered by ?status= and capped by ?limit=.
func (h *JobHandler) List(c *gin.Context) {
	filter := models.ListFilter{Status: config.JobStatus(c.Query("status"))}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			c.Error(common.Errf(http.StatusBadRequest, "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	jobs, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, jobs)
}

func (h *JobHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Claim hands the next pending job to the calling worker.
// An empty queue is answered with 204 and no body.
func (h *JobHandler) Claim(c *gin.Context) {
	var req dto.ClaimDTO
	if !middleware.Bind(c, &req) {
		return
	}

	resp, err := h.service.Claim(c.Request.Context(), req.WorkerID)
	if err != nil {
		c.Error(err)
		return
	}
	if resp == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *JobHandler) Complete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req dto.CompleteDTO
	if !middleware.Bind(c, &req) {
		return
	}

	resp, err := h.service.Complete(c.Request.Context(), id, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *JobHandler) Fail(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req dto.FailDTO
	if !middleware.Bind(c, &req) {
		return
	}

	resp, err := h.service.Fail(c.Request.Context(), id, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Cleanup purges terminal jobs older than the requested retention.
func (h *JobHandler) Cleanup(c *gin.Context) {
	var req dto.CleanupDTO
	if !middleware.Bind(c, &req) {
		return
	}

	n, err := h.service.Cleanup(c.Request.Context(), *req.RetentionHours)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.CleanupResultDTO{Deleted: n})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil || id < 1 {
		c.Error(common.Errf(http.StatusBadRequest, "invalid ID"))
		return 0, false
	}
	return uint(id), true
}
