package ai

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lexiflow/core/internal/config"
	"github.com/redis/go-redis/v9"
)

// TierSource resolves the subscription tier of a user.
type TierSource interface {
	TierOf(ctx context.Context, userID string) (string, error)
}

// Meter counts AI requests and tokens per user in fixed windows.
// Keys: lexiflow:usage:{user}:{window}:requests|tokens.
type Meter struct {
	rdb   *redis.Client
	cfg   config.UsageConfig
	tiers TierSource
	now   func() time.Time
}

func NewMeter(rdb *redis.Client, cfg config.UsageConfig, tiers TierSource) *Meter {
	return &Meter{rdb: rdb, cfg: cfg, tiers: tiers, now: time.Now}
}

func (m *Meter) window() (index int64, resetAt time.Time) {
	w := m.cfg.Window
	if w <= 0 {
		w = 24 * time.Hour
	}
	now := m.now()
	index = now.UnixNano() / int64(w)
	return index, time.Unix(0, (index+1)*int64(w)).UTC()
}

func usageKeys(userID string, index int64) (requests, tokens string) {
	base := fmt.Sprintf("lexiflow:usage:%s:%d", userID, index)
	return base + ":requests", base + ":tokens"
}

// Check returns the user's quota for the current window.
func (m *Meter) Check(ctx context.Context, userID string) (*Quota, error) {
	tierName := ""
	if m.tiers != nil {
		t, err := m.tiers.TierOf(ctx, userID)
		if err != nil {
			return nil, err
		}
		tierName = t
	}
	name, tier := m.cfg.Tier(tierName)

	index, resetAt := m.window()
	reqKey, tokKey := usageKeys(userID, index)
	vals, err := m.rdb.MGet(ctx, reqKey, tokKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read usage: %w", err)
	}
	used := [2]int64{}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("read usage: %w", err)
		}
		used[i] = n
	}

	q := &Quota{
		Tier:         name,
		Features:     append([]string(nil), tier.Features...),
		RequestLimit: tier.Requests,
		TokenLimit:   tier.Tokens,
		UsedRequests: used[0],
		UsedTokens:   used[1],
		ResetAt:      resetAt,
	}
	q.RemainingRequests = max(tier.Requests-used[0], 0)
	q.RemainingTokens = max(tier.Tokens-used[1], 0)
	q.CanUseAI = q.RemainingRequests > 0 && q.RemainingTokens > 0
	if q.Features == nil {
		q.Features = []string{}
	}
	return q, nil
}

// reserveScript takes one request slot when the window still has room.
// It returns the new request count, or -1 when either limit is spent.
var reserveScript = redis.NewScript(`
local used = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
local tokens = tonumber(redis.call('GET', KEYS[2]) or '0')
if used > tonumber(ARGV[1]) or tokens >= tonumber(ARGV[2]) then
  redis.call('DECR', KEYS[1])
  return -1
end
return used
`)

// Reservation is one admitted request in the window it was taken from.
type Reservation struct {
	m         *Meter
	userID    string
	reqKey    string
	tokKey    string
	ttl       time.Duration
	Remaining int64
}

// Reserve atomically counts one request against q's limits. Concurrent
// callers cannot overshoot the request limit.
func (m *Meter) Reserve(ctx context.Context, userID string, q *Quota) (*Reservation, error) {
	if userID == "" {
		return nil, errors.New("usage: empty user id")
	}
	index, resetAt := m.window()
	reqKey, tokKey := usageKeys(userID, index)
	ttl := resetAt.Sub(m.now()) + time.Minute

	used, err := reserveScript.Run(ctx, m.rdb, []string{reqKey, tokKey},
		q.RequestLimit, q.TokenLimit, ttl.Milliseconds()).Int64()
	if err != nil {
		return nil, fmt.Errorf("reserve usage: %w", err)
	}
	if used < 0 {
		return nil, errQuotaSpent
	}
	return &Reservation{
		m:         m,
		userID:    userID,
		reqKey:    reqKey,
		tokKey:    tokKey,
		ttl:       ttl,
		Remaining: max(q.RequestLimit-used, 0),
	}, nil
}

var errQuotaSpent = errors.New("usage: quota spent")

// Charge adds the tokens a completed call consumed.
func (r *Reservation) Charge(ctx context.Context, tokens int64) error {
	_, err := r.m.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.IncrBy(ctx, r.tokKey, max(tokens, 0))
		p.Expire(ctx, r.tokKey, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Release hands the request slot back after a call that produced nothing.
func (r *Reservation) Release(ctx context.Context) error {
	if err := r.m.rdb.Decr(ctx, r.reqKey).Err(); err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	return nil
}
