package notifybus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/oiclass/oiclass/core/notification"
	"github.com/oiclass/oiclass/services/notifybus"
	"github.com/oiclass/oiclass/testutil"
)

func TestMain(m *testing.M) {
	// rollbar-go starts its transport at init
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/rollbar/rollbar-go.NewAsyncTransport.func1"))
}

func receive(t *testing.T, c *notifybus.Client) notification.Notification {
	t.Helper()
	select {
	case n := <-c.Outbound:
		return n
	case <-time.After(time.Second):
		t.Fatal("no notification received")
		return notification.Notification{}
	}
}

func TestHub(t *testing.T) {
	hub := notifybus.NewHub(testutil.NewLogger(t))
	bus := notifybus.NewLocalBus(hub)
	ctx := context.Background()
	require.NoError(t, bus.Start(ctx))
	defer bus.Close()

	tab := hub.Subscribe("alice")
	phone := hub.Subscribe("alice")
	bob := hub.Subscribe("bob")
	assert.Equal(t, 2, hub.ClientCount("alice"))
	assert.NotEqual(t, tab.ID, phone.ID)

	require.NoError(t, bus.Publish(ctx, notification.Notification{ID: "1", UserID: "alice", Title: "hi"}))
	assert.Equal(t, "1", receive(t, tab).ID)
	assert.Equal(t, "1", receive(t, phone).ID)
	assert.Empty(t, bob.Outbound)

	hub.Unsubscribe(phone)
	assert.Equal(t, 1, hub.ClientCount("alice"))
	select {
	case <-phone.Done():
	default:
		t.Fatal("unsubscribed client not done")
	}
	// unsubscribing twice is harmless
	hub.Unsubscribe(phone)

	hub.Deliver(notification.Notification{ID: "2", UserID: "alice"})
	assert.Equal(t, "2", receive(t, tab).ID)
	assert.Empty(t, phone.Outbound)

	hub.Close()
	<-tab.Done()
	<-bob.Done()
	assert.Zero(t, hub.ClientCount("alice"))
	assert.Zero(t, hub.ClientCount("bob"))
}

func TestHub_Deliver_slowClient(t *testing.T) {
	hub := notifybus.NewHub(testutil.NewLogger(t))
	defer hub.Close()
	c := hub.Subscribe("alice")

	// a client nobody reads from never blocks delivery
	for i := 0; i < 100; i++ {
		hub.Deliver(notification.Notification{UserID: "alice"})
	}
	assert.Equal(t, cap(c.Outbound), len(c.Outbound))
}

func TestHub_concurrent(t *testing.T) {
	hub := notifybus.NewHub(testutil.NewLogger(t))
	defer hub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := hub.Subscribe("alice")
			hub.Deliver(notification.Notification{UserID: "alice"})
			hub.Unsubscribe(c)
		}()
	}
	wg.Wait()
	assert.Zero(t, hub.ClientCount("alice"))
}
