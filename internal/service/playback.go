package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amanhasank/together-stream/internal/domain"
	"github.com/amanhasank/together-stream/internal/repository"
)

const maxMediaReferenceLength = 4096

// PlaybackResult 是一次播放状态变更的结果。
type PlaybackResult struct {
	Participant domain.Participant
	Room        *domain.Room
	State       domain.PlaybackState // 变更后的权威状态
}

// ControlResult 是一次控制权转移的结果。
type ControlResult struct {
	Participant domain.Participant
	Room        *domain.Room
	Controller  domain.ControllerRef
	Notice      *domain.HistoryEntry
}

// PlaybackService 负责控制权仲裁和播放状态机。
type PlaybackService struct {
	roomRepo repository.RoomRepository
	members  *MembershipService
	now      Clock
}

// NewPlaybackService 创建 PlaybackService 实例。
func NewPlaybackService(roomRepo repository.RoomRepository, members *MembershipService) *PlaybackService {
	if roomRepo == nil || members == nil {
		panic("RoomRepository and MembershipService cannot be nil for PlaybackService")
	}
	return &PlaybackService{roomRepo: roomRepo, members: members, now: time.Now}
}

// WithClock 替换时钟 (测试用)。
func (s *PlaybackService) WithClock(now Clock) *PlaybackService {
	s.now = now
	return s
}

// TakeControl 把控制权无条件交给请求者，后到的请求覆盖先到的。
// 请求者必须占据 host 或 partner 席位，旁观者不能成为控制者。
func (s *PlaybackService) TakeControl(ctx context.Context, connID string) (*ControlResult, error) {
	p, err := s.members.Resolve(connID)
	if err != nil {
		return nil, err
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": p.RoomID, "user_id": p.UserID, "operation": "take-control"})

	result := &ControlResult{Participant: p}
	now := s.now()
	room, err := s.roomRepo.Update(ctx, p.RoomID, func(r *domain.Room) error {
		if !r.Occupies(p.UserID) {
			return ErrNotAuthorized
		}
		ref := domain.ControllerRef{UserID: p.UserID, DisplayName: p.DisplayName}
		r.Controller = &ref
		result.Controller = ref

		notice := domain.HistoryEntry{
			ID:          systemEntryID("control", now, p.UserID),
			Kind:        domain.KindSystemNotice,
			Payload:     fmt.Sprintf("%s took control", p.DisplayName),
			DisplayName: p.DisplayName,
			CreatedAt:   now,
		}
		if r.History.Append(notice) {
			result.Notice = &notice
		}
		r.Touch(now)
		return nil
	})
	if err != nil {
		err = mapRepoError(err)
		logCtx.WithError(err).Debug("Take control rejected")
		return nil, err
	}
	result.Room = room
	logCtx.Info("Controller changed")
	return result, nil
}

// Play 开始播放。
func (s *PlaybackService) Play(ctx context.Context, connID string, position float64, rate *float64) (*PlaybackResult, error) {
	return s.gated(ctx, connID, "play", func(ps *domain.PlaybackState, now time.Time) {
		ps.Playing = true
		ps.Position = domain.SanitizePosition(position)
		applyRate(ps, rate)
		ps.LastUpdateAt = now
	})
}

// Pause 暂停播放。
func (s *PlaybackService) Pause(ctx context.Context, connID string, position float64) (*PlaybackResult, error) {
	return s.gated(ctx, connID, "pause", func(ps *domain.PlaybackState, now time.Time) {
		ps.Playing = false
		ps.Position = domain.SanitizePosition(position)
		ps.LastUpdateAt = now
	})
}

// Seek 跳转到指定位置，保持播放/暂停状态不变。
func (s *PlaybackService) Seek(ctx context.Context, connID string, position float64) (*PlaybackResult, error) {
	return s.gated(ctx, connID, "seek", func(ps *domain.PlaybackState, now time.Time) {
		ps.Position = domain.SanitizePosition(position)
		ps.LastUpdateAt = now
	})
}

// Skip 相对跳转，结果不小于 0。基准是存储的权威位置，不做推算。
func (s *PlaybackService) Skip(ctx context.Context, connID string, delta float64) (*PlaybackResult, error) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return nil, ErrInvalidMessage
	}
	return s.gated(ctx, connID, "skip", func(ps *domain.PlaybackState, now time.Time) {
		ps.Position = math.Max(0, ps.Position+delta)
		ps.LastUpdateAt = now
	})
}

// Sync 控制者的周期性同步。
func (s *PlaybackService) Sync(ctx context.Context, connID string, position float64, playing bool) (*PlaybackResult, error) {
	return s.gated(ctx, connID, "sync-update", func(ps *domain.PlaybackState, now time.Time) {
		ps.Position = domain.SanitizePosition(position)
		ps.Playing = playing
		ps.LastUpdateAt = now
	})
}

// ChangeVideo 更换媒体。任何已加入的参与者都可以触发，不修改播放状态。
func (s *PlaybackService) ChangeVideo(ctx context.Context, connID, mediaReference string) (*PlaybackResult, error) {
	mediaReference = strings.TrimSpace(mediaReference)
	if len(mediaReference) > maxMediaReferenceLength {
		return nil, ErrInvalidMessage
	}
	p, err := s.members.Resolve(connID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	room, err := s.roomRepo.Update(ctx, p.RoomID, func(r *domain.Room) error {
		r.MediaReference = mediaReference
		r.Touch(now)
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	logrus.WithFields(logrus.Fields{"room_id": p.RoomID, "user_id": p.UserID, "operation": "video-change"}).
		Info("Media reference changed")
	return &PlaybackResult{Participant: p, Room: room, State: room.Playback}, nil
}

// gated 执行需要控制权的状态变更。授权检查和修改在同一个房间临界区内完成。
func (s *PlaybackService) gated(ctx context.Context, connID, op string, apply func(ps *domain.PlaybackState, now time.Time)) (*PlaybackResult, error) {
	p, err := s.members.Resolve(connID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	room, err := s.roomRepo.Update(ctx, p.RoomID, func(r *domain.Room) error {
		if !r.IsController(p.UserID) {
			return ErrNotAuthorized
		}
		apply(&r.Playback, now)
		r.Touch(now)
		return nil
	})
	if err != nil {
		err = mapRepoError(err)
		logrus.WithFields(logrus.Fields{
			"room_id":   p.RoomID,
			"user_id":   p.UserID,
			"operation": op,
		}).WithError(err).Debug("Playback event rejected")
		return nil, err
	}
	return &PlaybackResult{Participant: p, Room: room, State: room.Playback}, nil
}

func applyRate(ps *domain.PlaybackState, rate *float64) {
	if rate == nil {
		return
	}
	if r := *rate; r > 0 && !math.IsNaN(r) && !math.IsInf(r, 0) {
		ps.Rate = r
	}
}
