package service_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanhasank/together-stream/internal/domain"
	"github.com/amanhasank/together-stream/internal/service"
)

func TestMembership_Join_AssignsSlotsAndController(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t)

	a := env.join(t, "c1", id, "alice")
	assert.Equal(t, domain.RoleHost, a.Participant.Role)
	require.NotNil(t, a.Room.Controller)
	assert.Equal(t, "alice", a.Room.Controller.UserID)
	assert.NotNil(t, a.Notice)
	assert.Empty(t, a.Replay, "空历史不回放")

	b := env.join(t, "c2", id, "bob")
	assert.Equal(t, domain.RolePartner, b.Participant.Role)
	assert.Equal(t, "alice", b.Room.Controller.UserID, "已有控制者时不改变")

	c := env.join(t, "c3", id, "carol")
	assert.Equal(t, domain.RoleObserver, c.Participant.Role)

	room := env.room(t, id)
	assert.Equal(t, "alice", room.Host.UserID)
	assert.Equal(t, "bob", room.Partner.UserID)
	assert.False(t, room.Occupies("carol"))
	assert.Len(t, room.Members, 3)
}

func TestMembership_Join_ThirdAndLaterUsersNeverTakeSlot(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t)
	for i := 0; i < 10; i++ {
		env.join(t, fmt.Sprintf("c%d", i), id, fmt.Sprintf("user%d", i))
	}
	room := env.room(t, id)
	assert.Equal(t, "user0", room.Host.UserID)
	assert.Equal(t, "user1", room.Partner.UserID)
	assert.Equal(t, "user0", room.Controller.UserID)
}

func TestMembership_Join_Errors(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.members.Join(context.Background(), "c1", "NOSUCH", "alice", "Alice")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)

	_, err = env.members.Join(context.Background(), "c1", "", "alice", "Alice")
	assert.ErrorIs(t, err, service.ErrInvalidRoomID)

	_, err = env.members.Resolve("c1")
	assert.ErrorIs(t, err, service.ErrNotJoined)
}

func TestMembership_Join_LowercaseRoomID(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t)
	res := env.join(t, "c1", " "+strings.ToLower(id)+" ", "alice")
	assert.Equal(t, id, res.Participant.RoomID)
}

func TestMembership_Reconnect_SuppressesJoinNoticeAndKeepsSlot(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t)
	env.join(t, "c1", id, "alice")
	env.join(t, "c2", id, "bob")

	// bob 开了第二个连接，原连接还在
	again := env.join(t, "c2b", id, "bob")
	assert.True(t, again.Reconnect)
	assert.Nil(t, again.Notice)
	assert.Equal(t, domain.RolePartner, again.Participant.Role)
	assert.NotEmpty(t, again.Replay, "新连接首次加入仍然回放历史")

	// 原连接断开：席位已被新连接占用，不清空；同一 userId 仍在线，不发离开通知
	left, err := env.members.Leave(context.Background(), "c2")
	require.NoError(t, err)
	assert.Nil(t, left.Notice)
	room := env.room(t, id)
	require.NotNil(t, room.Partner)
	assert.Equal(t, "c2b", room.Partner.ConnectionID)
}

func TestMembership_RejoinSameConnection_NoReplayNoNotice(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t)
	env.join(t, "c1", id, "alice")
	env.join(t, "c2", id, "bob")

	again := env.join(t, "c2", id, "bob")
	assert.Nil(t, again.Notice)
	assert.Empty(t, again.Replay)
	assert.Equal(t, domain.RolePartner, again.Participant.Role)
}

func TestMembership_RejoinWithNewUserID_KeepsSingleSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRoom(t)

	env.join(t, "c1", id, "alice")
	res := env.join(t, "c1", id, "bob")
	assert.Equal(t, domain.RoleHost, res.Participant.Role)

	room := env.room(t, id)
	require.NotNil(t, room.Host)
	assert.Equal(t, "c1", room.Host.ConnectionID)
	assert.Equal(t, "bob", room.Host.UserID)
	assert.Nil(t, room.Partner, "同一连接不能同时占据两个席位")
	assert.Len(t, room.Members, 1)

	_, peer, err := env.members.Peer(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, peer)

	env.join(t, "c2", id, "carol")
	_, peer, err = env.members.Peer(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, peer)
	assert.Equal(t, "c2", peer.ConnectionID)
}

func TestMembership_Leave_KeepsControllerAndFreesSlot(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t)
	env.join(t, "c1", id, "alice")
	env.join(t, "c2", id, "bob")

	left, err := env.members.Leave(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, left.Notice)
	assert.Equal(t, fmt.Sprintf("leave-%d-c1", env.clock.Now().UnixNano()/1e6), left.Notice.ID)
	assert.Equal(t, 1, left.Remaining())

	room := env.room(t, id)
	assert.Nil(t, room.Host)
	require.NotNil(t, room.Controller)
	assert.Equal(t, "alice", room.Controller.UserID, "离开不清空控制者")
	assert.True(t, room.History.Contains(left.Notice.ID))

	// alice 重连，收回 host 席位，控制者不变
	back := env.join(t, "c1b", id, "alice")
	assert.Equal(t, domain.RoleHost, back.Participant.Role)
	assert.Equal(t, "alice", back.Room.Controller.UserID)

	_, err = env.members.Resolve("c1")
	assert.ErrorIs(t, err, service.ErrNotJoined)
}

func TestMembership_Leave_LastMemberNoNotice(t *testing.T) {
	env := newTestEnv(t)
	id := env.createRoom(t)
	env.join(t, "c1", id, "alice")

	assert.Equal(t, 1, env.members.Count())
	left, err := env.members.Leave(context.Background(), "c1")
	require.NoError(t, err)
	assert.Nil(t, left.Notice)
	assert.Zero(t, left.Remaining())
	assert.Zero(t, env.members.Count())

	_, err = env.members.Leave(context.Background(), "c1")
	assert.ErrorIs(t, err, service.ErrNotJoined)
}

func TestMembership_Join_ReplaysHistoryOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRoom(t)
	env.join(t, "c1", id, "alice")
	_, err := env.chat.Send(ctx, "c1", "hello", "", "m1")
	require.NoError(t, err)

	b := env.join(t, "c2", id, "bob")
	ids := entryIDs(b.Replay)
	assert.Contains(t, ids, "m1")
	assert.NotContains(t, ids, b.Notice.ID, "回放不包含自己的加入通知")
}

func TestMembership_SwitchRoom_LeavesPrevious(t *testing.T) {
	env := newTestEnv(t)
	first := env.createRoom(t)
	second := env.createRoom(t)
	env.join(t, "c1", first, "alice")

	res := env.join(t, "c1", second, "alice")
	require.NotNil(t, res.Left)
	assert.Equal(t, first, res.Left.Participant.RoomID)
	assert.Nil(t, env.room(t, first).Host)

	p, err := env.members.Resolve("c1")
	require.NoError(t, err)
	assert.Equal(t, second, p.RoomID)
}

func TestMembership_Peer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRoom(t)
	env.join(t, "c1", id, "alice")

	_, peer, err := env.members.Peer(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, peer, "对方席位为空")

	env.join(t, "c2", id, "bob")
	env.join(t, "c3", id, "carol")

	_, peer, err = env.members.Peer(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c2", peer.ConnectionID)

	_, _, err = env.members.Peer(ctx, "c3")
	assert.ErrorIs(t, err, service.ErrNotAuthorized)
}

func entryIDs(entries []domain.HistoryEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}
