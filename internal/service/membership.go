package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amanhasank/together-stream/internal/domain"
	"github.com/amanhasank/together-stream/internal/repository"
)

const maxDisplayNameLength = 64

// JoinResult 描述一次 join 的结果，传输层据此决定发送哪些事件。
type JoinResult struct {
	Participant domain.Participant
	Room        *domain.Room          // 加入后的房间快照
	Replay      []domain.HistoryEntry // 仅在该连接首次加入时非空
	Notice      *domain.HistoryEntry  // 新 userId 的加入通知；重连时为 nil
	Reconnect   bool
	Left        *LeaveResult // 同一连接切换房间时，旧房间的离开结果
}

// LeaveResult 描述一次 leave 的结果。
type LeaveResult struct {
	Participant domain.Participant
	Room        *domain.Room // 离开后的房间快照；房间已被回收时为 nil
	Notice      *domain.HistoryEntry
}

// Remaining 离开后房间内剩余的连接数。
func (r *LeaveResult) Remaining() int {
	if r == nil || r.Room == nil {
		return 0
	}
	return len(r.Room.Members)
}

// MembershipService 维护连接到房间的映射，负责席位分配和加入/离开通知。
// 同一连接上的调用由传输层串行化 (每个连接一个读循环)。
type MembershipService struct {
	roomRepo repository.RoomRepository
	now      Clock

	mu    sync.RWMutex
	conns map[string]domain.Participant // connectionID -> participant
}

// NewMembershipService 创建 MembershipService 实例。
func NewMembershipService(roomRepo repository.RoomRepository) *MembershipService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for MembershipService")
	}
	return &MembershipService{
		roomRepo: roomRepo,
		now:      time.Now,
		conns:    make(map[string]domain.Participant),
	}
}

// WithClock 替换时钟 (测试用)。
func (s *MembershipService) WithClock(now Clock) *MembershipService {
	s.now = now
	return s
}

// Join 把连接加入房间并分配席位。
func (s *MembershipService) Join(ctx context.Context, connID, rawRoomID, userID, displayName string) (*JoinResult, error) {
	roomID, err := normalizeRoomID(rawRoomID)
	if err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = connID // 匿名连接以连接 ID 作为身份
	}
	displayName = cleanDisplayName(displayName, userID)

	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":       roomID,
		"user_id":       userID,
		"connection_id": connID,
	})

	result := &JoinResult{}
	prev, hadPrev := s.lookup(connID)

	now := s.now()
	var participant domain.Participant
	room, err := s.roomRepo.Update(ctx, roomID, func(r *domain.Room) error {
		_, already := r.Members[connID]
		result.Reconnect = r.HasUser(userID, connID)

		role := assignSlot(r, connID, userID, displayName)
		if r.Controller == nil && role == domain.RoleHost {
			r.Controller = &domain.ControllerRef{UserID: userID, DisplayName: displayName}
		}

		participant = domain.Participant{
			ConnectionID: connID,
			UserID:       userID,
			DisplayName:  displayName,
			RoomID:       roomID,
			Role:         role,
			JoinedAt:     now,
		}
		if already {
			participant.JoinedAt = r.Members[connID].JoinedAt
		}
		r.Members[connID] = participant

		// 历史回放只在该连接第一次加入时发送一次，且不包含自己的加入通知
		if !already && r.History.Len() > 0 {
			result.Replay = r.History.Entries()
		}
		if !already && !result.Reconnect {
			notice := domain.HistoryEntry{
				ID:          systemEntryID("join", now, userID),
				Kind:        domain.KindSystemNotice,
				Payload:     fmt.Sprintf("%s joined the room", displayName),
				DisplayName: displayName,
				CreatedAt:   now,
			}
			if r.History.Append(notice) {
				result.Notice = &notice
			}
		}
		r.Touch(now)
		return nil
	})
	if err != nil {
		err = mapRepoError(err)
		logCtx.WithError(err).Warn("Join failed")
		return nil, err
	}

	// 同一连接切换到另一个房间：新房间加入成功后再离开旧房间
	if hadPrev && prev.RoomID != roomID {
		left, err := s.Leave(ctx, connID)
		if err != nil && !errors.Is(err, ErrNotJoined) {
			logCtx.WithError(err).Warn("Failed to leave previous room")
		}
		result.Left = left
	}

	s.mu.Lock()
	s.conns[connID] = participant
	s.mu.Unlock()

	result.Participant = participant
	result.Room = room
	logCtx.WithFields(logrus.Fields{"role": participant.Role, "reconnect": result.Reconnect}).Info("User joined room")
	return result, nil
}

// assignSlot 分配席位：已占席位的连接保留原席位 (身份随本次 join 更新)，
// 其次同一 userId 收回原席位，再次 host 空位、partner 空位，否则旁观。
// 一个连接最多占据一个席位。
func assignSlot(r *domain.Room, connID, userID, displayName string) domain.Role {
	slot := &domain.Slot{ConnectionID: connID, UserID: userID, DisplayName: displayName}
	switch {
	case r.Host != nil && r.Host.ConnectionID == connID:
		r.Host = slot
		return domain.RoleHost
	case r.Partner != nil && r.Partner.ConnectionID == connID:
		r.Partner = slot
		return domain.RolePartner
	case r.Host != nil && r.Host.UserID == userID:
		r.Host = slot
		return domain.RoleHost
	case r.Partner != nil && r.Partner.UserID == userID:
		r.Partner = slot
		return domain.RolePartner
	case r.Host == nil:
		r.Host = slot
		return domain.RoleHost
	case r.Partner == nil:
		r.Partner = slot
		return domain.RolePartner
	}
	return domain.RoleObserver
}

// Leave 把连接移出房间。只清空与该连接匹配的席位，不清空控制者。
func (s *MembershipService) Leave(ctx context.Context, connID string) (*LeaveResult, error) {
	participant, ok := s.lookup(connID)
	if !ok {
		return nil, ErrNotJoined
	}
	s.mu.Lock()
	delete(s.conns, connID)
	s.mu.Unlock()

	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":       participant.RoomID,
		"user_id":       participant.UserID,
		"connection_id": connID,
	})
	result := &LeaveResult{Participant: participant}

	now := s.now()
	room, err := s.roomRepo.Update(ctx, participant.RoomID, func(r *domain.Room) error {
		delete(r.Members, connID)
		if r.Host != nil && r.Host.ConnectionID == connID {
			r.Host = nil
		}
		if r.Partner != nil && r.Partner.ConnectionID == connID {
			r.Partner = nil
		}
		// 同一 userId 还有其他连接在线时不发离开通知
		if len(r.Members) > 0 && !r.HasUser(participant.UserID, "") {
			notice := domain.HistoryEntry{
				ID:          systemEntryID("leave", now, connID),
				Kind:        domain.KindSystemNotice,
				Payload:     fmt.Sprintf("%s left the room", participant.DisplayName),
				DisplayName: participant.DisplayName,
				CreatedAt:   now,
			}
			if r.History.Append(notice) {
				result.Notice = &notice
			}
		}
		r.Touch(now)
		return nil
	})
	if err != nil {
		err = mapRepoError(err)
		if errors.Is(err, ErrRoomNotFound) {
			// 房间已被回收，连接记录已删除即可
			logCtx.Debug("Leave: room no longer exists")
			return result, nil
		}
		logCtx.WithError(err).Warn("Leave failed")
		return result, err
	}
	result.Room = room
	logCtx.WithField("remaining", len(room.Members)).Info("User left room")
	return result, nil
}

// Resolve 返回连接对应的参与者。授权相关的操作一律以此为准，而不是客户端传来的字段。
func (s *MembershipService) Resolve(connID string) (domain.Participant, error) {
	p, ok := s.lookup(connID)
	if !ok {
		return domain.Participant{}, ErrNotJoined
	}
	return p, nil
}

// Peer 返回信令转发的目标席位：发送方必须占据一个席位，目标是另一个席位。
// 对方席位为空时返回 (nil, nil)。
func (s *MembershipService) Peer(ctx context.Context, connID string) (domain.Participant, *domain.Slot, error) {
	p, err := s.Resolve(connID)
	if err != nil {
		return p, nil, err
	}
	room, err := s.roomRepo.Get(ctx, p.RoomID)
	if err != nil {
		return p, nil, mapRepoError(err)
	}
	if room.SlotOf(connID) == domain.RoleObserver {
		return p, nil, ErrNotAuthorized
	}
	return p, room.OtherSlot(connID), nil
}

// Count 当前在线连接数。
func (s *MembershipService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *MembershipService) lookup(connID string) (domain.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.conns[connID]
	return p, ok
}

func cleanDisplayName(name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallback
	}
	if r := []rune(name); len(r) > maxDisplayNameLength {
		name = string(r[:maxDisplayNameLength])
	}
	return name
}
