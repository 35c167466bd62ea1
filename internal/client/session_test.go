package client

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanhasank/together-stream/internal/domain"
	"github.com/amanhasank/together-stream/internal/protocol"
	"github.com/amanhasank/together-stream/internal/reconcile"
)

type discardEmitter struct{}

func (discardEmitter) Emit(string, interface{}) error { return nil }

func newTestSession(t *testing.T, userID string) *Session {
	t.Helper()
	agent := reconcile.NewAgent(reconcile.NewSimPlayer(nil), discardEmitter{}, reconcile.Options{
		RoomID:           "ROOM01",
		SyncInterval:     time.Hour,
		WatchdogInterval: time.Hour,
	})
	t.Cleanup(agent.Stop)
	return &Session{
		cfg:   SessionConfig{RoomID: "ROOM01", UserID: userID},
		agent: agent,
		log:   logrus.WithField("user_id", userID),
	}
}

func envelope(t *testing.T, event string, data interface{}) protocol.Envelope {
	t.Helper()
	frame, err := protocol.Encode(event, data)
	require.NoError(t, err)
	env, err := protocol.Decode(frame)
	require.NoError(t, err)
	return env
}

func roomUpdated(t *testing.T, version uint64, controller string) protocol.Envelope {
	room := domain.NewRoom("ROOM01", 10, time.Now())
	room.Version = version
	room.Controller = &domain.ControllerRef{UserID: controller}
	return envelope(t, protocol.EventRoomUpdated, protocol.SessionMessage{Session: room})
}

func controlChanged(t *testing.T, version uint64, controller string) protocol.Envelope {
	return envelope(t, protocol.EventControlChanged, protocol.ControlChangedMessage{
		Controller: domain.ControllerRef{UserID: controller},
		Version:    version,
	})
}

func TestSession_DiscardsStaleSnapshots(t *testing.T) {
	s := newTestSession(t, "alice")

	require.NoError(t, s.handle(roomUpdated(t, 3, "alice")))
	assert.True(t, s.agent.IsController())

	// 提交顺序更早的快照晚到，不能覆盖
	require.NoError(t, s.handle(roomUpdated(t, 2, "bob")))
	assert.True(t, s.agent.IsController())
	require.NoError(t, s.handle(controlChanged(t, 1, "bob")))
	assert.True(t, s.agent.IsController())

	require.NoError(t, s.handle(controlChanged(t, 4, "bob")))
	assert.False(t, s.agent.IsController())

	// 同一版本的 room-updated 与 control-changed 都被接受
	require.NoError(t, s.handle(roomUpdated(t, 4, "bob")))
	assert.False(t, s.agent.IsController())
	assert.Equal(t, uint64(4), s.version)
}

func TestSession_InitialSnapshotOlderThanUpdate(t *testing.T) {
	s := newTestSession(t, "alice")

	require.NoError(t, s.handle(roomUpdated(t, 5, "bob")))

	room := domain.NewRoom("ROOM01", 10, time.Now())
	room.Version = 4
	room.Controller = &domain.ControllerRef{UserID: "alice"}
	require.NoError(t, s.handle(envelope(t, protocol.EventRoomState, protocol.SessionMessage{Session: room})))

	assert.False(t, s.agent.IsController())
	assert.Equal(t, uint64(5), s.version)
}
