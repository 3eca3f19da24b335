// Package notify fans committed notifications out to live subscribers. The
// notifications table stays the source of truth; publishing is best effort.
package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/Rancune/nightcity-hq/internal/domain"
)

type Publisher interface {
	Publish(ctx context.Context, n domain.Notification) error
}

type Nop struct{}

func (Nop) Publish(context.Context, domain.Notification) error { return nil }

// Redis publishes each notification on a per-actor channel.
type Redis struct {
	Client *redis.Client
	Prefix string
}

func NewRedis(addr, password string, db int) Redis {
	return Redis{
		Client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		Prefix: "fixer:notify:",
	}
}

// Channel is the pub/sub channel for an actor.
func (r Redis) Channel(actorID string) string {
	prefix := r.Prefix
	if prefix == "" {
		prefix = "fixer:notify:"
	}
	return prefix + actorID
}

func (r Redis) Publish(ctx context.Context, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return r.Client.Publish(ctx, r.Channel(n.ActorID), data).Err()
}

// Subscribe streams an actor's notifications until ctx ends.
func (r Redis) Subscribe(ctx context.Context, actorID string) (<-chan domain.Notification, func() error) {
	sub := r.Client.Subscribe(ctx, r.Channel(actorID))
	out := make(chan domain.Notification)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var n domain.Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, sub.Close
}

func (r Redis) Close() error {
	return r.Client.Close()
}
