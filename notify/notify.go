package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Event types emitted by the lifecycle engine.
const (
	EventBidPlaced       = "bid.placed"
	EventTaskAssigned    = "task.assigned"
	EventPaymentReceived = "task.payment_received"
	EventProviderDone    = "task.completed_by_provider"
	EventTaskCompleted   = "task.completed"
	EventTaskCancelled   = "task.cancelled"
	EventReviewReceived  = "review.received"
)

type Event struct {
	Type      string    `json:"type"`
	UserID    uint      `json:"user_id"`
	TaskID    uint      `json:"task_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Dispatcher delivers a domain event to a user over whatever channel the
// transport layer owns. Dispatch failures must never roll back the state
// transition that produced the event; callers log and move on.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

// Nop discards all events. Used in tests and when Redis is not configured.
type Nop struct{}

func (Nop) Dispatch(ctx context.Context, ev Event) error { return nil }

// RedisDispatcher routes events through Redis. The socket transport maintains
// an online registry (online:<user_id> keys); online users get the event
// published to their channel, offline users get it queued for the push worker.
type RedisDispatcher struct {
	rdb *redis.Client
}

func NewRedisDispatcher(rdb *redis.Client) *RedisDispatcher {
	return &RedisDispatcher{rdb: rdb}
}

func onlineKey(userID uint) string   { return fmt.Sprintf("online:%d", userID) }
func userChannel(userID uint) string { return fmt.Sprintf("user:%d:events", userID) }

const pushQueueKey = "push:queue"

func (d *RedisDispatcher) Dispatch(ctx context.Context, ev Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	online, err := d.rdb.Exists(ctx, onlineKey(ev.UserID)).Result()
	if err != nil {
		return fmt.Errorf("online lookup: %w", err)
	}
	if online > 0 {
		return d.rdb.Publish(ctx, userChannel(ev.UserID), body).Err()
	}
	return d.rdb.LPush(ctx, pushQueueKey, body).Err()
}
