package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limit is a request budget shared by every process using the same key
type Limit struct {
	Key    string
	Max    int
	Window time.Duration
}

// SourceLimit is the per-minute fetch budget for the remote source
func SourceLimit(perMinute int) Limit {
	if perMinute <= 0 {
		perMinute = 30
	}
	return Limit{Key: "source", Max: perMinute, Window: time.Minute}
}

// Decision is the outcome of one Take
type Decision struct {
	Allowed   bool
	Remaining int
	RetryIn   time.Duration // zero when allowed
}

// Limiter is a sliding-log limiter backed by a sorted set per key
// ⭐ SSOT: 레이트 리밋은 여기서만
type Limiter struct {
	client *Client
	prefix string
	seq    atomic.Uint64
}

// NewLimiter creates a limiter; keys are stored under prefix:ratelimit:
func NewLimiter(client *Client, prefix string) *Limiter {
	return &Limiter{client: client, prefix: prefix}
}

// takeScript returns {allowed, remaining, retry_ms}.
// The member is unique per call so two takes in the same millisecond both count.
var takeScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max    = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local used = redis.call('ZCARD', key)
if used < max then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	return {1, max - used - 1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local retry = window
if oldest[2] then
	retry = tonumber(oldest[2]) + window - now
end
return {0, 0, retry}
`)

// Take records one request if the budget allows it.
// Without redis every request is allowed.
func (l *Limiter) Take(ctx context.Context, lim Limit) (Decision, error) {
	if !l.client.Enabled() {
		return Decision{Allowed: true, Remaining: lim.Max}, nil
	}

	now := time.Now().UnixMilli()
	member := strconv.FormatInt(now, 10) + "-" + strconv.FormatUint(l.seq.Add(1), 10)

	res, err := takeScript.Run(ctx, l.client.Redis(),
		[]string{l.prefix + ":ratelimit:" + lim.Key},
		now, lim.Window.Milliseconds(), lim.Max, member,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", lim.Key, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit %s: unexpected reply %v", lim.Key, res)
	}

	return Decision{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
		RetryIn:   time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// Wait blocks until Take succeeds or ctx ends
func (l *Limiter) Wait(ctx context.Context, lim Limit) error {
	for {
		d, err := l.Take(ctx, lim)
		if err != nil {
			return err
		}
		if d.Allowed {
			return nil
		}

		pause := max(d.RetryIn, 10*time.Millisecond)
		t := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
