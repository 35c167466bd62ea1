package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fillQueue 填满 Hub 的处理队列
func fillQueue(h *Hub) {
	for i := 0; i < cap(h.messageChan); i++ {
		h.messageChan <- HubMessage{Type: "noop"}
	}
}

func TestClient_UnregisterWaitsForFullQueue(t *testing.T) {
	f := newFixture(t, false)
	c := f.connect()
	fillQueue(f.hub)

	result := make(chan bool, 1)
	go func() { result <- c.requestUnregister() }()

	// 队列满时持续等待，不能超时放弃
	select {
	case <-result:
		t.Fatal("unregister returned while the hub queue was full")
	case <-time.After(1200 * time.Millisecond):
	}

	<-f.hub.messageChan
	select {
	case ok := <-result:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("unregister still blocked after the queue drained")
	}

	var got *HubMessage
	for len(f.hub.messageChan) > 0 {
		msg := <-f.hub.messageChan
		if msg.Type == "unregister" {
			got = &msg
		}
	}
	require.NotNil(t, got)
	assert.Same(t, c, got.Client)
}

func TestClient_UnregisterGivesUpWhenHubStopped(t *testing.T) {
	f := newFixture(t, false)
	c := f.connect()
	fillQueue(f.hub)

	result := make(chan bool, 1)
	go func() { result <- c.requestUnregister() }()
	f.hub.Stop()

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("unregister blocked after the hub stopped")
	}
}

func TestClient_UnregisterProcessedByRunLoop(t *testing.T) {
	f := newFixture(t, false)
	a, b := f.connect(), f.connect()
	f.join(t, a, "alice")
	f.join(t, b, "bob")
	drain(t, a)
	drain(t, b)

	go f.hub.Run()
	t.Cleanup(f.hub.Stop)

	require.True(t, a.requestUnregister())
	assert.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}
