// Package client talks to the queue boundary over HTTP. The worker uses it
// to claim and report; relayctl uses the rest.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joshu-sajeev/promptrelay/common"
	"github.com/joshu-sajeev/promptrelay/internal/dto"
	"github.com/joshu-sajeev/promptrelay/internal/models"
)

const userAgent = "prompt-relay-client/1.0"

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code    int
	Message string
	Fields  map[string]any
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Unwrap exposes the error category so callers can use errors.Is.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusBadRequest:
		return common.ErrValidation
	case http.StatusUnauthorized:
		return common.ErrUnauthorized
	case http.StatusNotFound:
		return common.ErrNotFound
	case http.StatusConflict:
		return common.ErrInvalidTransition
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return common.ErrTimeout
	}
	return nil
}

type Client struct {
	base   string
	apiKey string
	http   *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Submit(ctx context.Context, req *dto.JobCreateDTO) (*dto.JobResponseDTO, error) {
	var out dto.JobResponseDTO
	if _, err := c.do(ctx, http.MethodPost, "/requests", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Get(ctx context.Context, id uint, deleteAfter bool) (*dto.JobResponseDTO, error) {
	path := "/requests/" + strconv.FormatUint(uint64(id), 10)
	if deleteAfter {
		path += "?delete=true"
	}

	var out dto.JobResponseDTO
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Consume fetches and deletes a job in one call.
func (c *Client) Consume(ctx context.Context, id uint) (*dto.JobResponseDTO, error) {
	var out dto.JobResponseDTO
	if _, err := c.do(ctx, http.MethodDelete, "/requests/"+strconv.FormatUint(uint64(id), 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a job and reports whether it existed.
func (c *Client) Delete(ctx context.Context, id uint) (bool, error) {
	var out dto.DeleteResultDTO
	if _, err := c.do(ctx, http.MethodDelete, "/admin/requests/"+strconv.FormatUint(uint64(id), 10), nil, &out); err != nil {
		return false, err
	}
	return out.Deleted, nil
}

func (c *Client) List(ctx context.Context, status string, limit int) ([]dto.JobResponseDTO, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/requests"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []dto.JobResponseDTO
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Stats(ctx context.Context) (*models.Stats, error) {
	var out models.Stats
	if _, err := c.do(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Claim asks for the next pending job. It returns (nil, nil) when the queue
// is empty.
func (c *Client) Claim(ctx context.Context, workerID string) (*dto.JobResponseDTO, error) {
	var out dto.JobResponseDTO
	status, err := c.do(ctx, http.MethodPost, "/worker/claim", dto.ClaimDTO{WorkerID: workerID}, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &out, nil
}

func (c *Client) Complete(ctx context.Context, id uint, req *dto.CompleteDTO) error {
	path := fmt.Sprintf("/worker/%d/complete", id)
	_, err := c.do(ctx, http.MethodPost, path, req, nil)
	return err
}

func (c *Client) Fail(ctx context.Context, id uint, reason string) error {
	path := fmt.Sprintf("/worker/%d/fail", id)
	_, err := c.do(ctx, http.MethodPost, path, dto.FailDTO{Error: reason}, nil)
	return err
}

func (c *Client) Cleanup(ctx context.Context, retentionHours int) (int64, error) {
	var out dto.CleanupResultDTO
	if _, err := c.do(ctx, http.MethodPost, "/admin/cleanup", dto.CleanupDTO{RetentionHours: &retentionHours}, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %v: %w", method, path, err, common.ErrTransport)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Code: resp.StatusCode}
		var payload struct {
			Error  string         `json:"error"`
			Fields map[string]any `json:"fields"`
		}
		if raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20)); json.Unmarshal(raw, &payload) == nil {
			se.Message = payload.Error
			se.Fields = payload.Fields
		}
		return resp.StatusCode, se
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return resp.StatusCode, nil
}
