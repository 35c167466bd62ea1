package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amanhasank/together-stream/internal/domain"
	mempersistence "github.com/amanhasank/together-stream/internal/infra/persistence/memory"
	"github.com/amanhasank/together-stream/internal/service"
)

// fakeClock 可手动推进的时钟
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type testEnv struct {
	clock    *fakeClock
	rooms    *service.RoomService
	members  *service.MembershipService
	playback *service.PlaybackService
	chat     *service.ChatService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	repo := mempersistence.NewMemoryRoomRepository()
	members := service.NewMembershipService(repo).WithClock(clock.Now)
	return &testEnv{
		clock:    clock,
		rooms:    service.NewRoomService(repo, domain.DefaultHistoryCapacity).WithClock(clock.Now),
		members:  members,
		playback: service.NewPlaybackService(repo, members).WithClock(clock.Now),
		chat:     service.NewChatService(repo, members, 0).WithClock(clock.Now),
	}
}

func (e *testEnv) createRoom(t *testing.T) string {
	t.Helper()
	room, err := e.rooms.CreateRoom(context.Background())
	require.NoError(t, err)
	return room.ID
}

func (e *testEnv) join(t *testing.T, connID, roomID, userID string) *service.JoinResult {
	t.Helper()
	res, err := e.members.Join(context.Background(), connID, roomID, userID, userID+"-name")
	require.NoError(t, err)
	return res
}

func (e *testEnv) room(t *testing.T, roomID string) *domain.Room {
	t.Helper()
	r, err := e.rooms.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	return r
}
