// internal/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"notification-pipeline/internal/common/config"
	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/common/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Options configure retries, retention and leasing.
type Options struct {
	Name          string
	Attempts      int
	Backoff       time.Duration
	KeepCompleted int64
	KeepFailed    int64
	Lease         time.Duration
	PromoteBatch  int
}

func DefaultOptions() Options {
	return Options{
		Name:          "notifications",
		Attempts:      3,
		Backoff:       2 * time.Second,
		KeepCompleted: 1000,
		KeepFailed:    5000,
		Lease:         60 * time.Second,
		PromoteBatch:  100,
	}
}

// OptionsFromConfig maps the queue section of the process config. Zero values fall back to defaults in New.
func OptionsFromConfig(cfg config.QueueConfig) Options {
	return Options{
		Name:          cfg.Name,
		Attempts:      cfg.Attempts,
		Backoff:       config.GetDuration(cfg.BackoffMs),
		KeepCompleted: cfg.KeepCompleted,
		KeepFailed:    cfg.KeepFailed,
		Lease:         config.GetDuration(cfg.LeaseMs),
	}
}

// Job is a claimed unit of work. Attempt counts from 1.
type Job struct {
	ID          string
	Name        string
	Data        []byte
	Attempt     int
	MaxAttempts int
	Priority    int
}

// Decode unmarshals the job payload.
func (j *Job) Decode(v interface{}) error {
	return json.Unmarshal(j.Data, v)
}

// Request describes one job to enqueue.
type Request struct {
	Name     string
	Payload  interface{}
	Priority int
}

type keys struct {
	wait, active, delayed, completed, failed, jobPrefix string
}

func newKeys(name string) keys {
	base := "queue:" + name + ":"
	return keys{
		wait:      base + "wait",
		active:    base + "active",
		delayed:   base + "delayed",
		completed: base + "completed",
		failed:    base + "failed",
		jobPrefix: base + "job:",
	}
}

// Queue is an at-least-once job queue on Redis sorted sets. Lower priority runs sooner.
type Queue struct {
	rdb    redis.Cmdable
	opts   Options
	keys   keys
	logger logger.Logger
	now    func() time.Time
	newID  func() string
}

func New(rdb redis.Cmdable, opts Options, log logger.Logger) *Queue {
	def := DefaultOptions()
	if opts.Name == "" {
		opts.Name = def.Name
	}
	if opts.Attempts <= 0 {
		opts.Attempts = def.Attempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = def.Backoff
	}
	if opts.KeepCompleted <= 0 {
		opts.KeepCompleted = def.KeepCompleted
	}
	if opts.KeepFailed <= 0 {
		opts.KeepFailed = def.KeepFailed
	}
	if opts.Lease <= 0 {
		opts.Lease = def.Lease
	}
	if opts.PromoteBatch <= 0 {
		opts.PromoteBatch = def.PromoteBatch
	}
	return &Queue{
		rdb:    rdb,
		opts:   opts,
		keys:   newKeys(opts.Name),
		logger: logger.Component(log, "queue").With(map[string]interface{}{"queue": opts.Name}),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

func (q *Queue) Options() Options { return q.opts }

func (q *Queue) jobKey(id string) string { return q.keys.jobPrefix + id }

func waitScore(priority int, at time.Time) float64 {
	return float64(priority)*priorityWeight + float64(at.UnixMilli())
}

// Enqueue adds one job and returns its id.
func (q *Queue) Enqueue(ctx context.Context, req Request) (string, error) {
	ids, err := q.EnqueueMany(ctx, []Request{req})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// EnqueueMany adds jobs in one transaction.
func (q *Queue) EnqueueMany(ctx context.Context, reqs []Request) ([]string, error) {
	now := q.now()
	ids := make([]string, len(reqs))

	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, req := range reqs {
			data, err := json.Marshal(req.Payload)
			if err != nil {
				return fmt.Errorf("encode job %s: %w", req.Name, err)
			}
			id := q.newID()
			ids[i] = id
			pipe.HSet(ctx, q.jobKey(id),
				"name", req.Name,
				"data", string(data),
				"attempts", 0,
				"maxAttempts", q.opts.Attempts,
				"priority", req.Priority,
				"state", "waiting",
				"enqueuedAt", now.UnixMilli(),
			)
			pipe.ZAdd(ctx, q.keys.wait, redis.Z{Score: waitScore(req.Priority, now), Member: id})
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.NewQueueError("enqueue", err)
	}
	return ids, nil
}

// Claim leases the next due job. It returns nil when the queue is empty.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	lease := q.now().Add(q.opts.Lease).UnixMilli()
	res, err := claimScript.Run(ctx, q.rdb, []string{q.keys.wait, q.keys.active}, lease, q.keys.jobPrefix).Slice()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewQueueError("claim", err)
	}
	if len(res) < 6 {
		return nil, apperrors.NewQueueError("claim", fmt.Errorf("unexpected claim reply of %d fields", len(res)))
	}

	job := &Job{
		ID:          asString(res[0]),
		Name:        asString(res[1]),
		Data:        []byte(asString(res[2])),
		Attempt:     asInt(res[3]),
		MaxAttempts: asInt(res[4]),
		Priority:    asInt(res[5]),
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.opts.Attempts
	}
	return job, nil
}

// Complete records success. A job whose lease was already reclaimed is ignored.
func (q *Queue) Complete(ctx context.Context, job *Job) error {
	ok, err := completeScript.Run(ctx, q.rdb, []string{q.keys.active, q.keys.completed},
		job.ID, q.opts.KeepCompleted, q.keys.jobPrefix, q.now().UnixMilli()).Int()
	if err != nil {
		return apperrors.NewQueueError("complete", err)
	}
	if ok == 0 {
		q.logger.Warn("completed job was no longer active", map[string]interface{}{"jobId": job.ID})
	}
	return nil
}

// Fail schedules a retry with exponential backoff or moves the job to the failed list.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error, retry bool) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	if retry {
		runAt := q.now().Add(q.BackoffFor(job.Attempt)).UnixMilli()
		_, err := retryScript.Run(ctx, q.rdb, []string{q.keys.active, q.keys.delayed},
			job.ID, runAt, q.keys.jobPrefix, msg).Int()
		if err != nil {
			return apperrors.NewQueueError("retry", err)
		}
		return nil
	}

	_, err := deadLetterScript.Run(ctx, q.rdb, []string{q.keys.active, q.keys.failed},
		job.ID, q.opts.KeepFailed, q.keys.jobPrefix, q.now().UnixMilli(), msg).Int()
	if err != nil {
		return apperrors.NewQueueError("fail", err)
	}
	return nil
}

// BackoffFor is the delay after the given failed attempt: base * 2^(attempt-1).
func (q *Queue) BackoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return q.opts.Backoff * time.Duration(1<<uint(attempt-1))
}

// PromoteDelayed moves due retries back to wait.
func (q *Queue) PromoteDelayed(ctx context.Context) (int, error) {
	return q.requeueDue(ctx, q.keys.delayed, "promote")
}

// RecoverStalled re-queues jobs whose lease expired without a completion.
func (q *Queue) RecoverStalled(ctx context.Context) (int, error) {
	n, err := q.requeueDue(ctx, q.keys.active, "recover stalled")
	if err == nil && n > 0 {
		q.logger.Warn("re-queued stalled jobs", map[string]interface{}{"count": n})
	}
	return n, err
}

func (q *Queue) requeueDue(ctx context.Context, source, op string) (int, error) {
	n, err := requeueDueScript.Run(ctx, q.rdb, []string{source, q.keys.wait},
		q.now().UnixMilli(), q.keys.jobPrefix, q.opts.PromoteBatch, priorityWeight).Int()
	if err != nil {
		return 0, apperrors.NewQueueError(op, err)
	}
	return n, nil
}

// Counts reports the number of jobs per state and updates the depth gauge.
func (q *Queue) Counts(ctx context.Context) (map[string]int64, error) {
	pipe := q.rdb.Pipeline()
	wait := pipe.ZCard(ctx, q.keys.wait)
	active := pipe.ZCard(ctx, q.keys.active)
	delayed := pipe.ZCard(ctx, q.keys.delayed)
	completed := pipe.LLen(ctx, q.keys.completed)
	failed := pipe.LLen(ctx, q.keys.failed)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperrors.NewQueueError("counts", err)
	}

	counts := map[string]int64{
		"waiting":   wait.Val(),
		"active":    active.Val(),
		"delayed":   delayed.Val(),
		"completed": completed.Val(),
		"failed":    failed.Val(),
	}
	for state, n := range counts {
		metrics.QueueDepth.WithLabelValues(state).Set(float64(n))
	}
	return counts, nil
}

// JobState returns the stored state and last error of a job.
func (q *Queue) JobState(ctx context.Context, id string) (state, lastError string, err error) {
	vals, err := q.rdb.HMGet(ctx, q.jobKey(id), "state", "lastError").Result()
	if err != nil {
		return "", "", apperrors.NewQueueError("job state", err)
	}
	return asString(vals[0]), asString(vals[1]), nil
}

// RunMaintenance promotes due retries, recovers stalled leases and refreshes depth gauges until ctx ends.
func (q *Queue) RunMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.PromoteDelayed(ctx); err != nil {
				q.logger.Warn("promote delayed failed", map[string]interface{}{"error": err.Error()})
			}
			if _, err := q.RecoverStalled(ctx); err != nil {
				q.logger.Warn("stalled recovery failed", map[string]interface{}{"error": err.Error()})
			}
			if _, err := q.Counts(ctx); err != nil {
				q.logger.Debug("queue counts failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v interface{}) int {
	switch t := v.(type) {
	case int64:
		return int(t)
	default:
		n, _ := strconv.Atoi(asString(v))
		return n
	}
}
