package client

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/amanhasank/together-stream/internal/domain"
	"github.com/amanhasank/together-stream/internal/protocol"
	"github.com/amanhasank/together-stream/internal/reconcile"
)

// SessionConfig 无界面同步客户端的参数
type SessionConfig struct {
	URL          string
	Origin       string
	RoomID       string
	UserID       string
	DisplayName  string
	TakeControl  bool // 加入后立即接管控制权
	Player       reconcile.Player
	AgentOptions reconcile.Options
	// OnEvent 每收到一个事件调用一次 (可选)
	OnEvent func(protocol.Envelope)
}

// Session 把一条连接和一个 reconcile.Agent 绑在一起：收到的播放事件交给 Agent 校正，
// 控制权变化时切换 Agent 的定时器。
type Session struct {
	cfg   SessionConfig
	conn  *Conn
	agent *reconcile.Agent
	log   *logrus.Entry

	// 已见过的最大房间版本，只在读循环中访问
	version uint64
}

// NewSession 连接服务端并创建会话，调用 Run 开始工作
func NewSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if cfg.Player == nil {
		cfg.Player = reconcile.NewSimPlayer(nil)
	}
	conn, err := Dial(ctx, cfg.URL, cfg.Origin)
	if err != nil {
		return nil, err
	}
	opts := cfg.AgentOptions
	opts.RoomID = domain.NormalizeRoomID(cfg.RoomID)
	return &Session{
		cfg:   cfg,
		conn:  conn,
		agent: reconcile.NewAgent(cfg.Player, conn, opts),
		log:   logrus.WithFields(logrus.Fields{"room_id": opts.RoomID, "user_id": cfg.UserID}),
	}, nil
}

// Agent 返回同步代理
func (s *Session) Agent() *reconcile.Agent { return s.agent }

// Conn 返回底层连接
func (s *Session) Conn() *Conn { return s.conn }

// Run 加入房间并处理事件，直到 ctx 取消或连接断开。
func (s *Session) Run(ctx context.Context) error {
	if err := s.conn.Emit(protocol.EventJoinRoom, protocol.JoinRoomRequest{
		RoomID:      s.cfg.RoomID,
		UserID:      s.cfg.UserID,
		DisplayName: s.cfg.DisplayName,
	}); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		s.agent.Stop()
		return s.conn.Close()
	})
	g.Go(func() error {
		for {
			env, err := s.conn.Next(0)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			if err := s.handle(env); err != nil {
				return err
			}
		}
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Session) handle(env protocol.Envelope) error {
	if s.cfg.OnEvent != nil {
		s.cfg.OnEvent(env)
	}
	switch env.Type {
	case protocol.EventRoomState:
		var msg protocol.SessionMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil || msg.Session == nil {
			return nil
		}
		// 更新的 room-updated 可能先于初始快照到达，此时只保留较新的角色
		if s.observe(msg.Session.Version) {
			s.onSnapshot(msg)
		}
		if s.cfg.TakeControl && !s.agent.IsController() {
			return s.conn.Emit(protocol.EventTakeControl, protocol.RoomRequest{RoomID: msg.Session.ID})
		}
	case protocol.EventRoomUpdated:
		var msg protocol.SessionMessage
		if err := json.Unmarshal(env.Data, &msg); err == nil && msg.Session != nil && s.observe(msg.Session.Version) {
			s.agent.SetController(s.isController(msg.Session))
		}
	case protocol.EventControlChanged:
		var msg protocol.ControlChangedMessage
		if err := json.Unmarshal(env.Data, &msg); err == nil && s.observe(msg.Version) {
			s.agent.SetController(msg.Controller.UserID == s.cfg.UserID)
			s.log.WithField("controller", msg.Controller.UserID).Info(msg.Message)
		}
	case protocol.EventPlay, protocol.EventPause, protocol.EventSeek, protocol.EventSkip, protocol.EventSyncUpdate:
		var msg protocol.PlaybackMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil
		}
		if s.agent.Apply(env.Type, msg) {
			s.log.WithFields(logrus.Fields{"event": env.Type, "position": msg.Position}).Info("Corrected local playback")
		}
	case protocol.EventError:
		var msg protocol.ErrorMessage
		if err := json.Unmarshal(env.Data, &msg); err == nil {
			s.log.WithFields(logrus.Fields{"code": msg.Code, "event": msg.Event}).Warn(msg.Message)
			if msg.Event == protocol.EventJoinRoom {
				return errors.New(msg.Message)
			}
		}
	}
	return nil
}

// observe 记录快照版本，比已见版本更旧时返回 false。同一版本的多个事件都接受。
func (s *Session) observe(version uint64) bool {
	if version < s.version {
		s.log.WithFields(logrus.Fields{"version": version, "seen": s.version}).Debug("Discarded stale snapshot")
		return false
	}
	s.version = version
	return true
}

// onSnapshot 用初始快照对齐本地播放器并启动对应角色的定时器
func (s *Session) onSnapshot(msg protocol.SessionMessage) {
	room := msg.Session
	s.agent.SetController(s.isController(room))
	if room.Playback.LastUpdateAt.IsZero() {
		return
	}
	s.agent.Apply(protocol.EventSeek, protocol.PlaybackMessage{
		Position:  room.Playback.Position,
		Playing:   room.Playback.Playing,
		Rate:      room.Playback.Rate,
		Timestamp: room.Playback.LastUpdateAt.UnixNano() / int64(time.Millisecond),
	})
}

func (s *Session) isController(room *domain.Room) bool {
	return room.Controller != nil && room.Controller.UserID == s.cfg.UserID
}
