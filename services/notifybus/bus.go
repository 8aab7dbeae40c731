package notifybus

import (
	"context"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/notification"
)

// Bus carries stored notifications to the hub of every API instance.
type Bus interface {
	notification.Publisher
	// Start begins forwarding published notifications to the hub.
	Start(ctx context.Context) error
	Close() error
}

// New returns a Redis bus when an address is configured, an in-process one otherwise.
func New(ctx context.Context, conf core.RedisConfig, hub *Hub, logger core.Logger) (Bus, error) {
	if conf.Addr == "" {
		return NewLocalBus(hub), nil
	}
	bus, err := NewRedisBus(ctx, conf, hub, logger)
	if err != nil {
		return nil, err
	}
	return bus, nil
}

// LocalBus delivers straight to the hub; only valid for a single API instance.
type LocalBus struct {
	hub *Hub
}

var _ Bus = (*LocalBus)(nil)

func NewLocalBus(hub *Hub) *LocalBus {
	return &LocalBus{hub: hub}
}

func (b *LocalBus) Publish(_ context.Context, n notification.Notification) error {
	b.hub.Deliver(n)
	return nil
}

func (b *LocalBus) Start(context.Context) error { return nil }
func (b *LocalBus) Close() error                { return nil }
