// Package redisstore is a Job Store kept in Redis: one hash per job plus
// sorted sets indexing pending, terminal and all jobs.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joshu-sajeev/promptrelay/common"
	"github.com/joshu-sajeev/promptrelay/internal/config"
	"github.com/joshu-sajeev/promptrelay/internal/job"
	"github.com/joshu-sajeev/promptrelay/internal/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Connect opens a client and verifies the server answers.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type JobStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

type Option func(*JobStore)

func WithNow(now func() time.Time) Option {
	return func(s *JobStore) { s.now = now }
}

func NewJobStore(client redis.UniversalClient, prefix string, opts ...Option) *JobStore {
	if prefix == "" {
		prefix = "relay"
	}
	s := &JobStore{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ job.JobRepoInterface = (*JobStore)(nil)

func (s *JobStore) seqKey() string      { return s.prefix + ":seq" }
func (s *JobStore) pendingKey() string  { return s.prefix + ":pending" }
func (s *JobStore) terminalKey() string { return s.prefix + ":terminal" }
func (s *JobStore) allKey() string      { return s.prefix + ":all" }
func (s *JobStore) jobPrefix() string   { return s.prefix + ":job:" }

func (s *JobStore) jobKey(id uint) string {
	return s.jobPrefix() + strconv.FormatUint(uint64(id), 10)
}

func (s *JobStore) Create(ctx context.Context, j *models.Job) error {
	id, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	now := s.now()
	j.ID = uint(id)
	j.Status = config.JobStatusPending
	j.Response, j.Error, j.WorkerID = nil, nil, nil
	j.WebhookDelivered = false
	j.CreatedAt, j.UpdatedAt = now, now

	member := redis.Z{Score: float64(id), Member: id}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.jobKey(j.ID), encode(j))
		pipe.ZAdd(ctx, s.pendingKey(), member)
		pipe.ZAdd(ctx, s.allKey(), member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id uint) (*models.Job, error) {
	fields, err := s.client.HGetAll(ctx, s.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("get job %d: %w", id, common.ErrNotFound)
	}
	return decode(fields)
}

func (s *JobStore) Claim(ctx context.Context, workerID string) (*models.Job, error) {
	id, err := luaClaim.Run(ctx, s.client,
		[]string{s.pendingKey()},
		s.jobPrefix(), workerID, formatTime(s.now()),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}

	n, err := strconv.ParseUint(id, 10, 0)
	if err != nil {
		return nil, fmt.Errorf("claim job: bad id %q", id)
	}
	return s.Get(ctx, uint(n))
}

func (s *JobStore) Complete(ctx context.Context, id uint, c models.Completion) (*models.Job, error) {
	set := []string{
		"status", string(config.JobStatusCompleted),
		"response", c.Response,
	}
	if len(c.Result) > 0 {
		set = append(set, "result", string(c.Result))
	}
	if c.ConversationURL != nil {
		set = append(set, "conversation_url", *c.ConversationURL)
	}

	j, err := s.finish(ctx, id, config.JobStatusCompleted, set, "error")
	if err != nil {
		return nil, fmt.Errorf("complete job %d: %w", id, err)
	}
	return j, nil
}

func (s *JobStore) Fail(ctx context.Context, id uint, reason string) (*models.Job, error) {
	j, err := s.finish(ctx, id, config.JobStatusFailed, []string{
		"status", string(config.JobStatusFailed),
		"error", reason,
	}, "response")
	if err != nil {
		return nil, fmt.Errorf("fail job %d: %w", id, err)
	}
	return j, nil
}

func (s *JobStore) finish(ctx context.Context, id uint, to config.JobStatus, set []string, unset ...string) (*models.Job, error) {
	now := s.now()
	set = append(set, "updated_at", formatTime(now))

	args := []any{id, now.UnixMicro(), strings.Join(config.SourcesOf(to), ","), len(set) / 2}
	for _, v := range set {
		args = append(args, v)
	}
	for _, v := range unset {
		args = append(args, v)
	}

	res, err := luaFinish.Run(ctx, s.client,
		[]string{s.jobKey(id), s.pendingKey(), s.terminalKey()},
		args...,
	).Text()
	if err != nil {
		return nil, err
	}

	switch res {
	case "ok":
		return s.Get(ctx, id)
	case "missing":
		return nil, common.ErrNotFound
	default:
		return nil, fmt.Errorf("job is %s: %w", res, common.ErrInvalidTransition)
	}
}

func (s *JobStore) Delete(ctx context.Context, id uint) (bool, error) {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.jobKey(id))
		pipe.ZRem(ctx, s.pendingKey(), id)
		pipe.ZRem(ctx, s.terminalKey(), id)
		pipe.ZRem(ctx, s.allKey(), id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	return del.Val() > 0, nil
}

func (s *JobStore) GetAndDelete(ctx context.Context, id uint) (*models.Job, error) {
	raw, err := luaGetAndDelete.Run(ctx, s.client,
		[]string{s.jobKey(id), s.pendingKey(), s.terminalKey(), s.allKey()},
		id,
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get and delete job %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get and delete job %d: %w", id, err)
	}

	fields := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		fields[raw[i]] = raw[i+1]
	}
	return decode(fields)
}

func (s *JobStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention).UnixMicro()

	n, err := luaCleanup.Run(ctx, s.client,
		[]string{s.terminalKey(), s.allKey()},
		cutoff, s.jobPrefix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("cleanup jobs: %w", err)
	}
	return n, nil
}

func (s *JobStore) MarkWebhookDelivered(ctx context.Context, id uint) (bool, error) {
	now := s.now()
	n, err := luaMarkDelivered.Run(ctx, s.client,
		[]string{s.jobKey(id), s.terminalKey()},
		formatTime(now), now.UnixMicro(), id,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("mark webhook delivered: %w", err)
	}
	return n == 1, nil
}

// List walks the all-jobs index newest first.
func (s *JobStore) List(ctx context.Context, filter models.ListFilter) ([]models.Job, error) {
	jobs, err := s.loadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	out := make([]models.Job, 0, len(jobs))
	for i := len(jobs) - 1; i >= 0; i-- {
		if filter.Status != "" && jobs[i].Status != filter.Status {
			continue
		}
		out = append(out, jobs[i])
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *JobStore) Stats(ctx context.Context) (*models.Stats, error) {
	jobs, err := s.loadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}

	stats := &models.Stats{ByStatus: make(map[config.JobStatus]int64, len(config.AllowedStatuses))}
	for _, st := range config.AllowedStatuses {
		stats.ByStatus[st] = 0
	}
	for i := range jobs {
		stats.Total++
		stats.ByStatus[jobs[i].Status]++

		created := jobs[i].CreatedAt
		if stats.Oldest == nil || created.Before(*stats.Oldest) {
			stats.Oldest = &created
		}
		if stats.Newest == nil || created.After(*stats.Newest) {
			stats.Newest = &created
		}
	}
	return stats, nil
}

// loadAll returns every job in creation order.
func (s *JobStore) loadAll(ctx context.Context) ([]models.Job, error) {
	ids, err := s.client.ZRange(ctx, s.allKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.jobPrefix()+id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	jobs := make([]models.Job, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// removed between the index read and the fetch
			continue
		}
		j, err := decode(fields)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func encode(j *models.Job) map[string]any {
	fields := map[string]any{
		"id":                j.ID,
		"prompt":            j.Prompt,
		"status":            string(j.Status),
		"webhook_delivered": boolField(j.WebhookDelivered),
		"created_at":        formatTime(j.CreatedAt),
		"updated_at":        formatTime(j.UpdatedAt),
	}
	optional := map[string]*string{
		"response":         j.Response,
		"error":            j.Error,
		"worker_id":        j.WorkerID,
		"webhook_url":      j.WebhookURL,
		"prompt_mode":      j.PromptMode,
		"model_mode":       j.ModelMode,
		"image_url":        j.ImageURL,
		"continuation_url": j.ContinuationURL,
		"conversation_url": j.ConversationURL,
	}
	for k, v := range optional {
		if v != nil {
			fields[k] = *v
		}
	}
	if len(j.Result) > 0 {
		fields["result"] = string(j.Result)
	}
	return fields
}

func decode(fields map[string]string) (*models.Job, error) {
	id, err := strconv.ParseUint(fields["id"], 10, 0)
	if err != nil {
		return nil, fmt.Errorf("decode job: bad id %q", fields["id"])
	}
	created, err := time.Parse(timeLayout, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("decode job %d: %w", id, err)
	}
	updated, err := time.Parse(timeLayout, fields["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("decode job %d: %w", id, err)
	}

	opt := func(key string) *string {
		if v, ok := fields[key]; ok {
			return &v
		}
		return nil
	}

	j := &models.Job{
		ID:               uint(id),
		Prompt:           fields["prompt"],
		Status:           config.JobStatus(fields["status"]),
		Response:         opt("response"),
		Error:            opt("error"),
		WorkerID:         opt("worker_id"),
		WebhookURL:       opt("webhook_url"),
		WebhookDelivered: fields["webhook_delivered"] == "1",
		PromptMode:       opt("prompt_mode"),
		ModelMode:        opt("model_mode"),
		ImageURL:         opt("image_url"),
		ContinuationURL:  opt("continuation_url"),
		ConversationURL:  opt("conversation_url"),
		CreatedAt:        created,
		UpdatedAt:        updated,
	}
	if v, ok := fields["result"]; ok {
		j.Result = datatypes.JSON(v)
	}
	return j, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
