// Package queue adapts the worker's job/result flow onto a redis broker.
// Every operation maps directly onto a single redis primitive; there is no
// retry or reconnection logic here — that is the supervisor's
// responsibility, so an Adapter can be thrown away and recreated cheaply.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/benchworker/agent/internal/model"
)

// ResultsKey is the well-known list key the results sink lives at.
const ResultsKey = "results"

// Adapter wraps a redis client with the handful of list operations the
// worker needs: pushing jobs, claiming jobs with a blocking multi-key pop,
// and pushing results.
type Adapter struct {
	client *redis.Client
}

// New constructs an Adapter from connection options (host:port, password,
// db index). It does not attempt to connect — the first operation will
// surface any connectivity failure.
func New(addr, password string, db int) *Adapter {
	return &Adapter{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewFromClient wraps an already-configured client, used by tests that
// point at a miniredis instance.
func NewFromClient(client *redis.Client) *Adapter {
	return &Adapter{client: client}
}

// Close releases the underlying connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// IsConnected reports whether the broker answers a PING within ctx.
func (a *Adapter) IsConnected(ctx context.Context) bool {
	return a.client.Ping(ctx).Err() == nil
}

// PushJob appends a job id onto the tail of queueKey.
func (a *Adapter) PushJob(ctx context.Context, queueKey, jobID string) error {
	return a.client.RPush(ctx, queueKey, jobID).Err()
}

// PopJob blocks on the first non-empty of queueKeys, in order, and pops a
// single job id from its head. timeout of 0 blocks indefinitely, matching
// redis's BLPOP semantics. The returned bool is false only when the
// timeout elapsed with nothing to pop — not an error condition.
func (a *Adapter) PopJob(ctx context.Context, queueKeys []string, timeout time.Duration) (jobID string, ok bool, err error) {
	result, err := a.client.BLPop(ctx, timeout, queueKeys...).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	// BLPop returns [key, value]; we only ever care about the value.
	if len(result) != 2 {
		return "", false, nil
	}
	return result[1], true, nil
}

// PushResult JSON-marshals a result record and appends it to the results
// list.
func (a *Adapter) PushResult(ctx context.Context, result model.Result) (bool, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return false, err
	}
	if err := a.client.RPush(ctx, ResultsKey, payload).Err(); err != nil {
		return false, err
	}
	return true, nil
}
