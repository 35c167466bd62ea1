package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
	"github.com/sirupsen/logrus"

	"github.com/amanhasank/together-stream/internal/domain"
	"github.com/amanhasank/together-stream/internal/repository"
)

const (
	roomCodeAlphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	roomCodeLength      = 6
	roomCodeMaxAttempts = 10
)

// RoomService 负责房间注册表：创建、查找和回收房间。
type RoomService struct {
	roomRepo        repository.RoomRepository
	historyCapacity int
	newCode         func() string
	now             Clock
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository, historyCapacity int) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	gen, err := nanoid.CustomASCII(roomCodeAlphabet, roomCodeLength)
	if err != nil {
		panic(fmt.Sprintf("invalid room code alphabet: %v", err))
	}
	if historyCapacity <= 0 {
		historyCapacity = domain.DefaultHistoryCapacity
	}
	return &RoomService{
		roomRepo:        roomRepo,
		historyCapacity: historyCapacity,
		newCode:         gen,
		now:             time.Now,
	}
}

// WithCodeGenerator 替换房间码生成器 (测试用)。
func (s *RoomService) WithCodeGenerator(gen func() string) *RoomService {
	s.newCode = gen
	return s
}

// WithClock 替换时钟 (测试用)。
func (s *RoomService) WithClock(now Clock) *RoomService {
	s.now = now
	return s
}

// CreateRoom 创建一个新房间：空播放状态、空历史、无控制者。
func (s *RoomService) CreateRoom(ctx context.Context) (*domain.Room, error) {
	for attempt := 0; attempt < roomCodeMaxAttempts; attempt++ {
		code := s.newCode()
		logCtx := logrus.WithField("room_id", code)

		exists, err := s.roomRepo.Exists(ctx, code)
		if err != nil {
			logCtx.WithError(err).Error("Repository error checking room code uniqueness")
			return nil, ErrInternalServer
		}
		if exists {
			logCtx.Warnf("Generated room code already exists, retrying (attempt %d)...", attempt+1)
			continue
		}

		room := domain.NewRoom(code, s.historyCapacity, s.now())
		if err := s.roomRepo.Create(ctx, room); err != nil {
			if errors.Is(err, repository.ErrDuplicateEntry) {
				// Exists 和 Create 之间被并发抢占，换一个码重试
				logCtx.Warn("Room code taken concurrently, retrying")
				continue
			}
			logCtx.WithError(err).Error("Failed to save new room")
			return nil, ErrInternalServer
		}
		logCtx.Info("Room created successfully")
		return room, nil
	}
	logrus.Errorf("Failed to generate a unique room code after %d attempts", roomCodeMaxAttempts)
	return nil, ErrCodeSpaceExhausted
}

// GetRoom 按房间码查找房间快照，房间码不区分大小写。
func (s *RoomService) GetRoom(ctx context.Context, rawID string) (*domain.Room, error) {
	id, err := normalizeRoomID(rawID)
	if err != nil {
		return nil, err
	}
	room, err := s.roomRepo.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logrus.WithError(err).WithField("room_id", id).Error("GetRoom: Repository error")
		}
		return nil, mapRepoError(err)
	}
	return room, nil
}

// SweepIdle 删除没有在线连接且空闲超过 ttl 的房间，返回删除数量。
// ttl <= 0 时不做任何事。
func (s *RoomService) SweepIdle(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	ids, err := s.roomRepo.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rooms: %w", err)
	}
	cutoff := s.now().Add(-ttl)
	removed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		deleted, err := s.roomRepo.DeleteIf(ctx, id, func(r *domain.Room) bool {
			return len(r.Members) == 0 && r.LastActive.Before(cutoff)
		})
		if err != nil {
			logrus.WithError(err).WithField("room_id", id).Warn("SweepIdle: failed to delete room")
			continue
		}
		if deleted {
			removed++
			logrus.WithField("room_id", id).Info("Idle room reclaimed")
		}
	}
	return removed, nil
}

// normalizeRoomID 规整并校验客户端传入的房间码。
func normalizeRoomID(raw string) (string, error) {
	id := domain.NormalizeRoomID(raw)
	if !domain.ValidRoomID(id) {
		return "", ErrInvalidRoomID
	}
	return id, nil
}
