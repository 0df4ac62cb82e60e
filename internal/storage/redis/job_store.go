// Package redis keeps the job registry in Redis so several API replicas and
// workers can share it. Jobs are JSON documents under <prefix>job:<id>; a
// sorted set <prefix>jobs indexes them by creation time.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

const maxWatchRetries = 5

// Config configures the registry keys.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL expires finished and abandoned jobs. Zero keeps them forever.
	TTL time.Duration
}

// JobStore implements crawler.JobStore on Redis.
type JobStore struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// Dial connects to cfg.Addr and verifies the connection.
func Dial(ctx context.Context, cfg Config) (*JobStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return New(client, cfg), nil
}

// New wraps an existing client.
func New(client *goredis.Client, cfg Config) *JobStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "seo:"
	}
	return &JobStore{client: client, prefix: prefix, ttl: cfg.TTL}
}

// Ping reports whether Redis answers.
func (s *JobStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *JobStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

func (s *JobStore) jobKey(id string) string { return s.prefix + "job:" + id }

func (s *JobStore) indexKey() string { return s.prefix + "jobs" }

// CreateJob stores job unless its ID is taken.
func (s *JobStore) CreateJob(ctx context.Context, job crawler.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.jobKey(job.ID), payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	if !ok {
		return fmt.Errorf("create job %s: %w", job.ID, crawler.ErrJobExists)
	}
	score := float64(job.CreatedAt.UnixNano())
	if err := s.client.ZAdd(ctx, s.indexKey(), goredis.Z{Score: score, Member: job.ID}).Err(); err != nil {
		return fmt.Errorf("index job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob loads one job.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (crawler.Job, error) {
	raw, err := s.client.Get(ctx, s.jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return crawler.Job{}, fmt.Errorf("get job %s: %w", jobID, crawler.ErrJobNotFound)
		}
		return crawler.Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	var job crawler.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return crawler.Job{}, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return job, nil
}

// UpdateJobState applies a transition under WATCH, so a concurrent writer
// forces a re-read instead of a lost update.
func (s *JobStore) UpdateJobState(
	ctx context.Context,
	jobID string,
	state crawler.JobState,
	update crawler.JobUpdate,
) error {
	key := s.jobKey(jobID)
	txf := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return fmt.Errorf("update job %s: %w", jobID, crawler.ErrJobNotFound)
			}
			return fmt.Errorf("read job %s: %w", jobID, err)
		}
		var job crawler.Job
		if err := json.Unmarshal(raw, &job); err != nil {
			return fmt.Errorf("decode job %s: %w", jobID, err)
		}
		if err := crawler.ApplyTransition(&job, state, update); err != nil {
			return err
		}
		payload, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}

	for range maxWatchRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update job %s: too much contention", jobID)
}

// ListJobs returns the newest jobs first. Index entries whose job expired
// are pruned on the way.
func (s *JobStore) ListJobs(ctx context.Context, limit int) ([]crawler.Job, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list job ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}

	jobs := make([]crawler.Job, 0, len(values))
	var expired []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var job crawler.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("decode job %s: %w", ids[i], err)
		}
		jobs = append(jobs, job)
	}
	if len(expired) > 0 {
		_ = s.client.ZRem(ctx, s.indexKey(), expired...).Err()
	}
	return jobs, nil
}
