package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"retention_backend/platform/apperr"
	"retention_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// defaultUniqueTTL keeps a second enqueue of the same account sync from
// queueing while the first is still waiting.
const defaultUniqueTTL = 30 * time.Minute

type Client struct {
	client    *asynq.Client
	queue     string
	uniqueTTL time.Duration
}

// SyncEnqueuer queues booking sync work.
type SyncEnqueuer interface {
	EnqueueSync(ctx context.Context, payload BookingSyncPayload) (string, error)
	EnqueueResume(ctx context.Context, payload BookingResumePayload) (string, error)
}

// NudgeEnqueuer queues outreach evaluations.
type NudgeEnqueuer interface {
	EnqueueNudgeEvaluate(ctx context.Context, payload NudgeEvaluatePayload) (string, error)
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return newClient(asynq.NewClient(opt), cfg), nil
}

func newClient(client *asynq.Client, cfg config.SchedulerConfig) *Client {
	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}
	uniqueTTL := cfg.GetSyncLockTTL()
	if uniqueTTL <= 0 {
		uniqueTTL = defaultUniqueTTL
	}
	return &Client{client: client, queue: queue, uniqueTTL: uniqueTTL}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) EnqueueSync(ctx context.Context, payload BookingSyncPayload) (string, error) {
	task, err := NewBookingSyncTask(payload)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "invalid sync request", err)
	}
	return c.enqueue(ctx, task, asynq.Unique(c.uniqueTTL), asynq.MaxRetry(3))
}

func (c *Client) EnqueueResume(ctx context.Context, payload BookingResumePayload) (string, error) {
	task, err := NewBookingResumeTask(payload)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "invalid resume request", err)
	}
	return c.enqueue(ctx, task, asynq.Unique(c.uniqueTTL), asynq.MaxRetry(3))
}

func (c *Client) EnqueueNudgeEvaluate(ctx context.Context, payload NudgeEvaluatePayload) (string, error) {
	task, err := NewNudgeEvaluateTask(payload)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "invalid nudge request", err)
	}
	return c.enqueue(ctx, task, asynq.MaxRetry(1))
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (string, error) {
	if c == nil || c.client == nil {
		return "", apperr.Internal("task queue not configured")
	}

	opts = append(opts, asynq.Queue(c.queue))
	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return "", apperr.Conflict("an identical task is already queued")
	}
	if err != nil {
		return "", apperr.Transient("enqueue "+task.Type(), err)
	}
	return info.ID, nil
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}

// RedisClient opens a go-redis client on the scheduler's Redis, used for
// account locks.
func RedisClient(cfg config.SchedulerConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return redis.NewClient(opt), nil
}
