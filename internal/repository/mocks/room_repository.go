package mocks

import (
	"context"

	"github.com/amanhasank/together-stream/internal/domain"
	"github.com/amanhasank/together-stream/internal/repository"
	"github.com/stretchr/testify/mock"
)

// RoomRepository 是 repository.RoomRepository 的 testify mock。
type RoomRepository struct {
	mock.Mock
}

var _ repository.RoomRepository = (*RoomRepository)(nil)

func (m *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *RoomRepository) Exists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepository) Get(ctx context.Context, id string) (*domain.Room, error) {
	args := m.Called(ctx, id)
	var room *domain.Room
	if r := args.Get(0); r != nil {
		room = r.(*domain.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepository) Update(ctx context.Context, id string, fn repository.RoomMutation) (*domain.Room, error) {
	args := m.Called(ctx, id, fn)
	var room *domain.Room
	if r := args.Get(0); r != nil {
		room = r.(*domain.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepository) DeleteIf(ctx context.Context, id string, pred func(room *domain.Room) bool) (bool, error) {
	args := m.Called(ctx, id, pred)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepository) IDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	var ids []string
	if v := args.Get(0); v != nil {
		ids = v.([]string)
	}
	return ids, args.Error(1)
}
