package notifybus_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/notification"
	"github.com/oiclass/oiclass/services/notifybus"
	"github.com/oiclass/oiclass/testutil"
)

func TestRedisBus(t *testing.T) {
	srv := miniredis.RunT(t)
	conf := core.RedisConfig{Addr: srv.Addr(), Channel: "test-notifications"}
	ctx := context.Background()

	// two API instances sharing one redis
	newInstance := func() (*notifybus.Hub, notifybus.Bus) {
		hub := notifybus.NewHub(testutil.NewLogger(t))
		bus, err := notifybus.New(ctx, conf, hub, testutil.NewLogger(t))
		require.NoError(t, err)
		require.IsType(t, &notifybus.RedisBus{}, bus)
		require.NoError(t, bus.Start(ctx))
		t.Cleanup(func() {
			assert.NoError(t, bus.Close())
			hub.Close()
		})
		return hub, bus
	}
	hubA, busA := newInstance()
	hubB, _ := newInstance()

	onA := hubA.Subscribe("alice")
	onB := hubB.Subscribe("alice")
	bob := hubB.Subscribe("bob")

	require.NoError(t, busA.Publish(ctx, notification.Notification{ID: "n1", UserID: "alice", Kind: notification.KindContestCreated, Title: "Weekly"}))
	got := receive(t, onB)
	assert.Equal(t, "n1", got.ID)
	assert.Equal(t, "Weekly", got.Title)
	assert.Equal(t, "n1", receive(t, onA).ID)
	assert.Empty(t, bob.Outbound)

	t.Run("bad payloads are skipped", func(t *testing.T) {
		srv.Publish(conf.Channel, "not json")
		require.NoError(t, busA.Publish(ctx, notification.Notification{ID: "n2", UserID: "bob"}))
		assert.Equal(t, "n2", receive(t, bob).ID)
	})
}

func TestRedisBus_unreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	hub := notifybus.NewHub(testutil.NewLogger(t))
	defer hub.Close()
	_, err := notifybus.New(context.Background(), core.RedisConfig{Addr: addr}, hub, testutil.NewLogger(t))
	assert.Error(t, err)
}
