package service_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanhasank/together-stream/internal/service"
)

// 场景 A：B 接管控制权后，A 的 play 被丢弃
func TestPlayback_TakeControl_LastWriterWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRoom(t)
	env.join(t, "cA", id, "userA")
	env.join(t, "cB", id, "userB")

	res, err := env.playback.TakeControl(ctx, "cB")
	require.NoError(t, err)
	assert.Equal(t, "userB", res.Controller.UserID)
	require.NotNil(t, res.Notice)
	assert.Equal(t, "userB-name took control", res.Notice.Payload)

	before := env.room(t, id).Playback
	_, err = env.playback.Play(ctx, "cA", 10, nil)
	assert.ErrorIs(t, err, service.ErrNotAuthorized)
	assert.Equal(t, before, env.room(t, id).Playback, "被拒绝的事件不修改状态")

	// A 再次接管，覆盖 B
	_, err = env.playback.TakeControl(ctx, "cA")
	require.NoError(t, err)
	assert.Equal(t, "userA", env.room(t, id).Controller.UserID)
}

func TestPlayback_TakeControl_ObserverRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRoom(t)
	env.join(t, "c1", id, "alice")
	env.join(t, "c2", id, "bob")
	env.join(t, "c3", id, "carol")

	_, err := env.playback.TakeControl(ctx, "c3")
	assert.ErrorIs(t, err, service.ErrNotAuthorized)
	assert.Equal(t, "alice", env.room(t, id).Controller.UserID)

	_, err = env.playback.TakeControl(ctx, "nobody")
	assert.ErrorIs(t, err, service.ErrNotJoined)
}

// 场景 B：pause 之后权威状态为 playing=false, position=42.5
func TestPlayback_PauseSetsAuthoritativeState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRoom(t)
	env.join(t, "c1", id, "alice")
	env.join(t, "c2", id, "bob")

	_, err := env.playback.Play(ctx, "c1", 40, nil)
	require.NoError(t, err)
	env.clock.Advance(2500 * time.Millisecond)

	res, err := env.playback.Pause(ctx, "c1", 42.5)
	require.NoError(t, err)
	assert.False(t, res.State.Playing)
	assert.Equal(t, 42.5, res.State.Position)
	assert.Equal(t, env.clock.Now(), res.State.LastUpdateAt)

	room := env.room(t, id)
	assert.False(t, room.Playback.Playing)
	assert.Equal(t, 42.5, room.Playback.Position)
}

func TestPlayback_GatedEventsRequireController(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRoom(t)
	env.join(t, "c1", id, "alice")
	env.join(t, "c2", id, "bob")
	before := env.room(t, id).Playback

	_, err := env.playback.Play(ctx, "c2", 1, nil)
	assert.ErrorIs(t, err, service.ErrNotAuthorized)
	_, err = env.playback.Pause(ctx, "c2", 1)
	assert.ErrorIs(t, err, service.ErrNotAuthorized)
	_, err = env.playback.Seek(ctx, "c2", 1)
	assert.ErrorIs(t, err, service.ErrNotAuthorized)
	_, err = env.playback.Skip(ctx, "c2", 10)
	assert.ErrorIs(t, err, service.ErrNotAuthorized)
	_, err = env.playback.Sync(ctx, "c2", 1, true)
	assert.ErrorIs(t, err, service.ErrNotAuthorized)

	assert.Equal(t, before, env.room(t, id).Playback)
}

func TestPlayback_SeekPreservesPlaying(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRoom(t)
	env.join(t, "c1", id, "alice")

	rate := 1.5
	_, err := env.playback.Play(ctx, "c1", 5, &rate)
	require.NoError(t, err)

	res, err := env.playback.Seek(ctx, "c1", 90)
	require.NoError(t, err)
	assert.True(t, res.State.Playing)
	assert.Equal(t, 90.0, res.State.Position)
	assert.Equal(t, 1.5, res.State.Rate)
}

func TestPlayback_SkipClampsAtZeroAndUsesStoredPosition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRoom(t)
	env.join(t, "c1", id, "alice")

	_, err := env.playback.Pause(ctx, "c1", 5)
	require.NoError(t, err)
	res, err := env.playback.Skip(ctx, "c1", -10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.State.Position)

	// 基准是存储的位置，不含播放中流逝的 5 秒
	_, err = env.playback.Play(ctx, "c1", 10, nil)
	require.NoError(t, err)
	env.clock.Advance(5 * time.Second)
	res, err = env.playback.Skip(ctx, "c1", 10)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, res.State.Position, 1e-9)
	assert.Equal(t, env.clock.Now(), res.State.LastUpdateAt)
	assert.True(t, res.State.Playing)

	_, err = env.playback.Skip(ctx, "c1", math.NaN())
	assert.ErrorIs(t, err, service.ErrInvalidMessage)
}

func TestPlayback_SyncUpdatesState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRoom(t)
	env.join(t, "c1", id, "alice")

	res, err := env.playback.Sync(ctx, "c1", 12.25, true)
	require.NoError(t, err)
	assert.True(t, res.State.Playing)
	assert.Equal(t, 12.25, res.State.Position)

	res, err = env.playback.Play(ctx, "c1", math.Inf(1), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.State.Position, "非法位置按 0 处理")
}

func TestPlayback_ChangeVideoNotGated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRoom(t)
	env.join(t, "c1", id, "alice")
	env.join(t, "c2", id, "bob")
	_, err := env.playback.Pause(ctx, "c1", 7)
	require.NoError(t, err)

	res, err := env.playback.ChangeVideo(ctx, "c2", " https://cdn.example.com/movie.m3u8 ")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/movie.m3u8", res.Room.MediaReference)
	assert.Equal(t, 7.0, res.State.Position, "换片不修改播放状态")

	_, err = env.playback.ChangeVideo(ctx, "ghost", "x")
	assert.ErrorIs(t, err, service.ErrNotJoined)
}

func TestPlayback_ControllerSurvivesDisconnect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createRoom(t)
	env.join(t, "c1", id, "alice")
	env.join(t, "c2", id, "bob")

	_, err := env.members.Leave(ctx, "c1")
	require.NoError(t, err)

	// bob 不是控制者，alice 离开后仍然不能控制
	_, err = env.playback.Play(ctx, "c2", 1, nil)
	assert.ErrorIs(t, err, service.ErrNotAuthorized)

	// alice 重连后直接恢复控制
	env.join(t, "c1b", id, "alice")
	_, err = env.playback.Play(ctx, "c1b", 1, nil)
	assert.NoError(t, err)
}
