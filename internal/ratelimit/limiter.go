package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Class describes the budget for one operation class.
type Class struct {
	Name   string
	Max    int
	Window time.Duration
}

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a sliding-window-log rate limiter over Redis sorted sets. Each
// (user, class) key holds one member per recorded request, scored by its
// nanosecond timestamp; a check trims members older than the window and
// counts what remains. Precise but memory-proportional to request rate,
// which is acceptable for short windows and per-user keys. Windows live only
// in Redis: losing them softens limiting briefly and nothing else.
type Limiter struct {
	client  *redis.Client
	classes map[string]Class
}

// NewLimiter constructs a limiter for the given classes.
func NewLimiter(client *redis.Client, classes ...Class) *Limiter {
	byName := make(map[string]Class, len(classes))
	for _, class := range classes {
		byName[class.Name] = class
	}
	return &Limiter{client: client, classes: byName}
}

// Allow checks the (user, class) window and records the request when within
// budget. A denial carries the remaining count (zero) and a retry-after hint
// derived from the oldest timestamp still inside the window.
func (l *Limiter) Allow(ctx context.Context, userID, class string) (Decision, error) {
	cls, ok := l.classes[class]
	if !ok || cls.Max <= 0 {
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	now := time.Now()
	key := windowKey(class, userID)
	cutoff := strconv.FormatInt(now.Add(-cls.Window).UnixNano(), 10)

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", cutoff)
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}

	count := int(card.Val())
	if count >= cls.Max {
		retryAfter := cls.Window
		oldest, err := l.client.ZRangeWithScores(ctx, key, 0, 0).Result()
		if err == nil && len(oldest) > 0 {
			oldestAt := time.Unix(0, int64(oldest[0].Score))
			retryAfter = oldestAt.Add(cls.Window).Sub(now)
			if retryAfter < 0 {
				retryAfter = 0
			}
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	member := fmt.Sprintf("%d-%d", now.UnixNano(), count)
	record := l.client.Pipeline()
	record.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
	record.Expire(ctx, key, cls.Window+time.Second)
	if _, err := record.Exec(ctx); err != nil {
		return Decision{}, err
	}

	return Decision{Allowed: true, Remaining: cls.Max - count - 1}, nil
}

func windowKey(class, userID string) string {
	return "rl:" + class + ":" + userID
}
