package notifybus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/notification"
)

// RedisBus publishes notifications on a Redis channel; every instance
// subscribed to it forwards them to its own hub.
type RedisBus struct {
	rdb     *goredis.Client
	channel string
	hub     *Hub
	logger  core.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

var _ Bus = (*RedisBus)(nil)

func NewRedisBus(ctx context.Context, conf core.RedisConfig, hub *Hub, logger core.Logger) (*RedisBus, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        conf.Addr,
		Password:    conf.Password,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}

	channel := conf.Channel
	if channel == "" {
		channel = "notifications"
	}
	return &RedisBus{rdb: rdb, channel: channel, hub: hub, logger: logger}, nil
}

func (b *RedisBus) Publish(ctx context.Context, n notification.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "encoding notification")
	}
	return errors.Wrap(b.rdb.Publish(ctx, b.channel, raw).Err(), "publishing notification")
}

func (b *RedisBus) Start(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)
	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		b.cancel()
		return errors.Wrap(err, "subscribing to redis")
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { _ = sub.Close() }()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var n notification.Notification
				if err := json.Unmarshal([]byte(m.Payload), &n); err != nil {
					b.logger.Warn("bad notification payload", err)
					continue
				}
				b.hub.Deliver(n)
			}
		}
	}()
	return nil
}

func (b *RedisBus) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	return b.rdb.Close()
}
