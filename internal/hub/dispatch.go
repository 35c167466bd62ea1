package hub

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amanhasank/together-stream/internal/domain"
	"github.com/amanhasank/together-stream/internal/protocol"
	"github.com/amanhasank/together-stream/internal/service"
)

const eventTimeout = 5 * time.Second

func backgroundCtx() context.Context { return context.Background() }

// HandleFrame 解析并处理一帧。在连接自己的读循环中调用。
func (h *Hub) HandleFrame(c *Client, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		c.logCtx().WithError(err).Debug("Malformed frame")
		c.sendError(protocol.CodeBadRequest, "malformed frame", "")
		return
	}

	ctx, cancel := context.WithTimeout(backgroundCtx(), eventTimeout)
	defer cancel()

	logCtx := c.logCtx().WithField("event", env.Type)
	logCtx.Debug("Handling event")

	if protocol.IsSignaling(env.Type) {
		if err := h.handleSignal(ctx, c, env); err != nil {
			h.reject(c, env.Type, err)
		}
		return
	}

	switch env.Type {
	case protocol.EventJoinRoom:
		err = h.handleJoin(ctx, c, env)
	case protocol.EventTakeControl:
		err = h.handleTakeControl(ctx, c)
	case protocol.EventPlay, protocol.EventPause, protocol.EventSeek, protocol.EventSkip, protocol.EventSyncUpdate:
		err = h.handlePlayback(ctx, c, env)
	case protocol.EventVideoChange:
		err = h.handleVideoChange(ctx, c, env)
	case protocol.EventChatMessage:
		err = h.handleChat(ctx, c, env)
	case protocol.EventAvatarAction:
		err = h.handleAvatar(c, env)
	default:
		logCtx.Debug("Unknown event type")
		c.sendError(protocol.CodeBadRequest, "unknown event type", env.Type)
		return
	}
	if err != nil {
		h.reject(c, env.Type, err)
	}
}

// errBadPayload 载荷无法解析
var errBadPayload = errors.New("malformed payload")

// reject 处理被拒绝的事件。join 失败总是通知发送者；
// 其他事件只有在开启 RejectionNotices 时才通知，否则静默丢弃。
func (h *Hub) reject(c *Client, event string, err error) {
	code, msg := errorCode(err)
	logCtx := c.logCtx().WithFields(logrus.Fields{"event": event, "code": code})
	if code == protocol.CodeInternal {
		logCtx.WithError(err).Error("Event failed")
	} else {
		logCtx.WithError(err).Debug("Event rejected")
	}
	if event == protocol.EventJoinRoom || code == protocol.CodeBadRequest || h.opts.RejectionNotices {
		c.sendError(code, msg, event)
	}
}

func errorCode(err error) (string, string) {
	switch {
	case errors.Is(err, errBadPayload):
		return protocol.CodeBadRequest, "malformed payload"
	case errors.Is(err, service.ErrInvalidRoomID):
		return protocol.CodeInvalidRoomID, "Invalid room ID"
	case errors.Is(err, service.ErrRoomNotFound):
		return protocol.CodeRoomNotFound, "Room not found"
	case errors.Is(err, service.ErrNotAuthorized):
		return protocol.CodeNotAuthorized, "Only the controller can do this"
	case errors.Is(err, service.ErrNotJoined):
		return protocol.CodeNotJoined, "Join a room first"
	case errors.Is(err, service.ErrInvalidMessage):
		return protocol.CodeInvalidMessage, "Invalid message"
	}
	return protocol.CodeInternal, "Internal server error"
}

func decode(env protocol.Envelope, v interface{}) error {
	if err := protocol.DecodeData(env, v); err != nil {
		return errBadPayload
	}
	return nil
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, env protocol.Envelope) error {
	var req protocol.JoinRoomRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	res, err := h.members.Join(ctx, c.ID(), req.RoomID, req.UserID, req.DisplayName)
	if err != nil {
		return err
	}
	roomID := res.Participant.RoomID

	// 同一连接切换房间：先移出旧房间再通知旧房间的成员
	if res.Left != nil {
		h.detach(c)
		h.announceLeave(res.Left)
	}
	h.attach(c, roomID)
	c.setUser(res.Participant.UserID)

	// 顺序：历史回放 -> 加入通知 -> 初始快照 -> 全员快照
	if len(res.Replay) > 0 {
		h.fanOut(roomID, c, protocol.EventChatHistory, protocol.ChatHistoryMessage{Entries: res.Replay})
	}
	if res.Notice != nil {
		h.fanOut(roomID, c, protocol.EventUserJoined, protocol.PresenceMessage{
			UserID:      res.Participant.UserID,
			DisplayName: res.Participant.DisplayName,
			MessageID:   res.Notice.ID,
			Message:     res.Notice.Payload,
		})
	}
	state := sessionMessage(res.Room)
	state.Role = res.Participant.Role
	h.fanOut(roomID, c, protocol.EventRoomState, state)
	h.fanOut(roomID, c, protocol.EventRoomUpdated, sessionMessage(res.Room))
	return nil
}

// announceLeave 通知剩余成员有人离开。
func (h *Hub) announceLeave(left *service.LeaveResult) {
	if left == nil || left.Room == nil || left.Remaining() == 0 {
		return
	}
	roomID := left.Participant.RoomID
	if left.Notice != nil {
		h.fanOut(roomID, nil, protocol.EventUserLeft, protocol.PresenceMessage{
			UserID:      left.Participant.UserID,
			DisplayName: left.Participant.DisplayName,
			MessageID:   left.Notice.ID,
			Message:     left.Notice.Payload,
		})
	}
	h.fanOut(roomID, nil, protocol.EventRoomUpdated, sessionMessage(left.Room))
}

func (h *Hub) handleTakeControl(ctx context.Context, c *Client) error {
	res, err := h.playback.TakeControl(ctx, c.ID())
	if err != nil {
		return err
	}
	roomID := res.Participant.RoomID
	msg := protocol.ControlChangedMessage{Controller: res.Controller, Version: res.Room.Version}
	if res.Notice != nil {
		msg.Message = res.Notice.Payload
		msg.MessageID = res.Notice.ID
	}
	h.fanOut(roomID, c, protocol.EventControlChanged, msg)
	h.fanOut(roomID, c, protocol.EventRoomUpdated, sessionMessage(res.Room))
	return nil
}

func (h *Hub) handlePlayback(ctx context.Context, c *Client, env protocol.Envelope) error {
	var req protocol.PlaybackRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	var (
		res *service.PlaybackResult
		err error
	)
	switch env.Type {
	case protocol.EventPlay:
		res, err = h.playback.Play(ctx, c.ID(), req.Position, req.Rate)
	case protocol.EventPause:
		res, err = h.playback.Pause(ctx, c.ID(), req.Position)
	case protocol.EventSeek:
		res, err = h.playback.Seek(ctx, c.ID(), req.Position)
	case protocol.EventSkip:
		res, err = h.playback.Skip(ctx, c.ID(), req.Seconds)
	case protocol.EventSyncUpdate:
		res, err = h.playback.Sync(ctx, c.ID(), req.Position, req.Playing)
	}
	if err != nil {
		return err
	}
	h.fanOut(res.Participant.RoomID, c, env.Type, playbackMessage(res.State, res.Participant.UserID))
	return nil
}

func sessionMessage(room *domain.Room) protocol.SessionMessage {
	return protocol.SessionMessage{
		Session:    room,
		Phase:      room.Phase(),
		ServerTime: unixMillis(time.Now()),
	}
}

func playbackMessage(ps domain.PlaybackState, userID string) protocol.PlaybackMessage {
	return protocol.PlaybackMessage{
		Position:  ps.Position,
		Playing:   ps.Playing,
		Rate:      ps.Rate,
		Timestamp: unixMillis(ps.LastUpdateAt),
		UserID:    userID,
	}
}

func (h *Hub) handleVideoChange(ctx context.Context, c *Client, env protocol.Envelope) error {
	var req protocol.VideoChangeRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	res, err := h.playback.ChangeVideo(ctx, c.ID(), req.MediaReference)
	if err != nil {
		return err
	}
	h.fanOut(res.Participant.RoomID, c, protocol.EventVideoChange, protocol.VideoChangeMessage{
		MediaReference: res.Room.MediaReference,
		UserID:         res.Participant.UserID,
	})
	return nil
}

func (h *Hub) handleChat(ctx context.Context, c *Client, env protocol.Envelope) error {
	var req protocol.ChatRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	res, err := h.chat.Send(ctx, c.ID(), req.Text, req.DisplayName, req.ID)
	if err != nil {
		return err
	}
	if res.Duplicate {
		return nil
	}
	h.fanOut(res.Participant.RoomID, c, protocol.EventChatMessage, res.Entry)
	return nil
}

// handleSignal 信令只转发给另一个席位上的连接，服务端不保存任何状态。
func (h *Hub) handleSignal(ctx context.Context, c *Client, env protocol.Envelope) error {
	var req protocol.RelayRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	sender, peer, err := h.members.Peer(ctx, c.ID())
	if err != nil {
		return err
	}
	if peer == nil {
		c.logCtx().WithField("event", env.Type).Debug("No peer to relay signaling to")
		return nil
	}
	frame, err := protocol.Encode(env.Type, protocol.RelayMessage{
		From:    c.ID(),
		UserID:  sender.UserID,
		Payload: req.Payload,
	})
	if err != nil {
		return err
	}
	if !h.sendTo(peer.ConnectionID, frame) {
		c.logCtx().WithField("event", env.Type).Debug("Peer connection not reachable")
	}
	return nil
}

// handleAvatar 不做任何校验，原样转发给房间内其他成员。
func (h *Hub) handleAvatar(c *Client, env protocol.Envelope) error {
	var req protocol.RelayRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	sender, err := h.members.Resolve(c.ID())
	if err != nil {
		return err
	}
	h.fanOut(sender.RoomID, c, protocol.EventAvatarAction, protocol.RelayMessage{
		From:   c.ID(),
		UserID: sender.UserID,
		Kind:   req.Kind,
		Data:   req.Data,
	})
	return nil
}

func unixMillis(t time.Time) int64 { return t.UnixNano() / int64(time.Millisecond) }
