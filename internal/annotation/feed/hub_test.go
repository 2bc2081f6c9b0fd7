package feed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHub(t *testing.T, opts ...HubOption) *Hub {
	t.Helper()
	hub := NewHub(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.done
	})
	return hub
}

// subscribe attaches a pumpless client so the test can read its send channel
// directly.
func subscribe(t *testing.T, hub *Hub, resource string) *Client {
	t.Helper()
	before := hub.Subscribers()
	c := newClient(hub, nil, resource)
	hub.register <- c
	require.Eventually(t, func() bool {
		return hub.Subscribers() == before+1
	}, time.Second, 5*time.Millisecond)
	return c
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var e Event
		require.NoError(t, json.Unmarshal(payload, &e))
		return e
	case <-time.After(time.Second):
		t.Fatal("no event arrived")
		return Event{}
	}
}

func TestHub_DeliversToResourceSubscribers(t *testing.T) {
	hub := runHub(t)
	watcher := subscribe(t, hub, "urn:doc:a")
	bystander := subscribe(t, hub, "urn:doc:b")

	hub.Notify(context.Background(), Event{
		Type:         EventCreated,
		Resource:     "urn:doc:a",
		AnnotationID: "ann-1",
		Motivation:   "highlighting",
	})

	got := receive(t, watcher)
	assert.Equal(t, EventCreated, got.Type)
	assert.Equal(t, "urn:doc:a", got.Resource)
	assert.Equal(t, "ann-1", got.AnnotationID)
	assert.Equal(t, "highlighting", got.Motivation)

	select {
	case payload := <-bystander.send:
		t.Fatalf("bystander received %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_NotifyStampsTimestamp(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	hub := runHub(t, WithClock(func() time.Time { return at }))
	watcher := subscribe(t, hub, "urn:doc:a")

	hub.Notify(context.Background(), Event{Type: EventDeleted, Resource: "urn:doc:a"})

	got := receive(t, watcher)
	assert.True(t, got.At.Equal(at), "zero At is stamped by the hub")
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := runHub(t)
	watcher := subscribe(t, hub, "urn:doc:a")

	hub.unregister <- watcher
	require.Eventually(t, func() bool {
		return hub.Subscribers() == 0
	}, time.Second, 5*time.Millisecond)

	_, ok := <-watcher.send
	assert.False(t, ok)

	// Events for the resource now go nowhere, without blocking.
	hub.Notify(context.Background(), Event{Type: EventCreated, Resource: "urn:doc:a"})
}

func TestHub_DisconnectsSlowSubscriber(t *testing.T) {
	hub := runHub(t)
	slow := subscribe(t, hub, "urn:doc:a")

	// One more event than the send buffer holds: the overflow disconnects
	// the client instead of queueing.
	for i := 0; i <= sendBuffer; i++ {
		hub.Notify(context.Background(), Event{Type: EventCreated, Resource: "urn:doc:a"})
	}

	require.Eventually(t, func() bool {
		return hub.Subscribers() == 0
	}, time.Second, 5*time.Millisecond)

	drained := 0
	for range slow.send {
		drained++
	}
	assert.Equal(t, sendBuffer, drained, "buffered events survive, the channel is closed")
}

func TestHub_StopClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	c := subscribe(t, hub, "urn:doc:a")
	cancel()
	<-hub.done

	_, ok := <-c.send
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers())
}
