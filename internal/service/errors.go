package service

import (
	"context"
	"errors"

	"github.com/amanhasank/together-stream/internal/repository"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrInvalidRoomID      = errors.New("invalid room id")
	ErrNotAuthorized      = errors.New("not authorized: only the controller can do this")
	ErrNotJoined          = errors.New("connection has not joined a room")
	ErrInvalidMessage     = errors.New("invalid message data")
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique room code")
	ErrInternalServer     = errors.New("internal server error")
)

// mapRepoError 将仓库层的错误映射到服务层定义的错误。
// 服务层自己的错误 (由 RoomMutation 返回) 原样透传。
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrRoomNotFound
	case errors.Is(err, ErrNotAuthorized),
		errors.Is(err, ErrInvalidMessage),
		errors.Is(err, ErrNotJoined),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return ErrInternalServer
}
