package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LockState is the outcome of acquiring the per-event lock.
type LockState int

const (
	// LockAcquired means this delivery owns the event until release.
	LockAcquired LockState = iota
	// LockHeld means another delivery of the same event is in flight.
	LockHeld
	// LockProcessed means the event was handled recently.
	LockProcessed
	// LockUnavailable means Redis could not be consulted; the caller
	// proceeds and relies on the store claims.
	LockUnavailable
)

func (s LockState) String() string {
	switch s {
	case LockAcquired:
		return "acquired"
	case LockHeld:
		return "held"
	case LockProcessed:
		return "processed"
	default:
		return "unavailable"
	}
}

// releaseScript deletes the lock only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// EventLock serialises deliveries of the same provider event across
// instances and remembers processed events for a while. It only saves work;
// the store claims stay authoritative.
type EventLock struct {
	redis   *redis.Client
	lockTTL time.Duration
	doneTTL time.Duration
	token   func() string
}

func NewEventLock(client *redis.Client, lockTTL, doneTTL time.Duration) *EventLock {
	return &EventLock{
		redis:   client,
		lockTTL: lockTTL,
		doneTTL: doneTTL,
		token:   uuid.NewString,
	}
}

func lockKey(eventID string) string {
	return "webhook:lock:" + eventID
}

func doneKey(eventID string) string {
	return "webhook:done:" + eventID
}

// Acquire tries to take the lock for eventID. The returned release must be
// called once handling ends; processed marks the event as done.
func (l *EventLock) Acquire(ctx context.Context, eventID string) (LockState, func(processed bool)) {
	noop := func(bool) {}
	if l == nil || l.redis == nil || eventID == "" {
		return LockUnavailable, noop
	}

	done, err := l.redis.Exists(ctx, doneKey(eventID)).Result()
	if err != nil {
		slog.Warn("event lock unavailable", "event_id", eventID, "error", err)
		return LockUnavailable, noop
	}
	if done > 0 {
		return LockProcessed, noop
	}

	token := l.token()
	ok, err := l.redis.SetNX(ctx, lockKey(eventID), token, l.lockTTL).Result()
	if err != nil {
		slog.Warn("event lock unavailable", "event_id", eventID, "error", err)
		return LockUnavailable, noop
	}
	if !ok {
		return LockHeld, noop
	}

	return LockAcquired, func(processed bool) {
		rctx := context.WithoutCancel(ctx)
		if processed {
			if err := l.redis.Set(rctx, doneKey(eventID), "1", l.doneTTL).Err(); err != nil {
				slog.Warn("failed to mark event processed", "event_id", eventID, "error", err)
			}
		}
		if err := releaseScript.Run(rctx, l.redis, []string{lockKey(eventID)}, token).Err(); err != nil {
			slog.Warn("failed to release event lock", "event_id", eventID, "error", err)
		}
	}
}
