package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/amanhasank/together-stream/internal/domain"
	"github.com/amanhasank/together-stream/internal/repository"
)

const (
	DefaultChatMaxLength = 2000
	maxClientMessageID   = 128
)

// ChatResult 是一次聊天追加的结果。Duplicate 为 true 时不应再次广播。
type ChatResult struct {
	Participant domain.Participant
	Entry       domain.HistoryEntry
	Duplicate   bool
}

// ChatService 负责房间的消息历史。
type ChatService struct {
	roomRepo  repository.RoomRepository
	members   *MembershipService
	maxLength int
	now       Clock
}

// NewChatService 创建 ChatService 实例。
func NewChatService(roomRepo repository.RoomRepository, members *MembershipService, maxLength int) *ChatService {
	if roomRepo == nil || members == nil {
		panic("RoomRepository and MembershipService cannot be nil for ChatService")
	}
	if maxLength <= 0 {
		maxLength = DefaultChatMaxLength
	}
	return &ChatService{roomRepo: roomRepo, members: members, maxLength: maxLength, now: time.Now}
}

// WithClock 替换时钟 (测试用)。
func (s *ChatService) WithClock(now Clock) *ChatService {
	s.now = now
	return s
}

// Send 把一条聊天消息追加到历史。clientID 非空时用于重试去重，
// 否则生成 <unixMillis>-<connectionId>-<random> 形式的 ID。
func (s *ChatService) Send(ctx context.Context, connID, text, displayName, clientID string) (*ChatResult, error) {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > s.maxLength {
		return nil, ErrInvalidMessage
	}
	clientID = strings.TrimSpace(clientID)
	if len(clientID) > maxClientMessageID {
		return nil, ErrInvalidMessage
	}
	p, err := s.members.Resolve(connID)
	if err != nil {
		return nil, err
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": p.RoomID, "user_id": p.UserID, "operation": "chat-message"})

	now := s.now()
	id := clientID
	if id == "" {
		id = fmt.Sprintf("%d-%s-%s", unixMillis(now), connID, randomSuffix())
	}
	entry := domain.HistoryEntry{
		ID:           id,
		Kind:         domain.KindUserMessage,
		Payload:      text,
		AuthorUserID: p.UserID,
		DisplayName:  cleanDisplayName(displayName, p.DisplayName),
		CreatedAt:    now,
	}

	result := &ChatResult{Participant: p, Entry: entry}
	_, err = s.roomRepo.Update(ctx, p.RoomID, func(r *domain.Room) error {
		result.Duplicate = !r.History.Append(entry)
		r.Touch(now)
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	if result.Duplicate {
		logCtx.WithField("message_id", id).Debug("Duplicate chat message ignored")
	}
	return result, nil
}
