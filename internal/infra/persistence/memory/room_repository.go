package mempersistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/amanhasank/together-stream/internal/domain"
	"github.com/amanhasank/together-stream/internal/repository"
)

// roomEntry 每个房间一把锁，保证同一房间的修改不会交错。
type roomEntry struct {
	mu      sync.Mutex
	room    *domain.Room
	deleted bool // 已从 map 中移除，持有旧指针的调用方需要按不存在处理
}

// MemoryRoomRepository 是 RoomRepository 接口的内存实现。
// map 本身由 RWMutex 保护，只在增删房间时短暂加写锁。
type MemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry
}

// NewMemoryRoomRepository 创建 MemoryRoomRepository 实例
func NewMemoryRoomRepository() *MemoryRoomRepository {
	return &MemoryRoomRepository{rooms: make(map[string]*roomEntry)}
}

var _ repository.RoomRepository = (*MemoryRoomRepository)(nil)

func (r *MemoryRoomRepository) entry(id string) (*roomEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.rooms[id]
	return e, ok
}

// Create 实现保存新房间
func (r *MemoryRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room == nil || room.ID == "" {
		return fmt.Errorf("memory: create room: empty room")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rooms[room.ID]; exists {
		return repository.ErrRoomIDTaken
	}
	r.rooms[room.ID] = &roomEntry{room: room.Clone()}
	return nil
}

// Exists 实现房间 ID 占用检查
func (r *MemoryRoomRepository) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := r.entry(id)
	return ok, nil
}

// Get 实现根据 ID 获取房间快照
func (r *MemoryRoomRepository) Get(ctx context.Context, id string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := r.entry(id)
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, repository.ErrRoomNotFound
	}
	return e.room.Clone(), nil
}

// Update 实现房间级的原子修改。fn 在副本上执行，成功后才替换。
func (r *MemoryRoomRepository) Update(ctx context.Context, id string, fn repository.RoomMutation) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := r.entry(id)
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, repository.ErrRoomNotFound
	}
	working := e.room.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.Version = e.room.Version + 1
	e.room = working
	return working.Clone(), nil
}

// DeleteIf 实现条件删除
func (r *MemoryRoomRepository) DeleteIf(ctx context.Context, id string, pred func(room *domain.Room) bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e, ok := r.entry(id)
	if !ok {
		return false, nil
	}
	// 锁顺序：房间锁 -> map 锁
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted || !pred(e.room) {
		return false, nil
	}
	e.deleted = true
	r.mu.Lock()
	delete(r.rooms, id)
	r.mu.Unlock()
	return true, nil
}

// IDs 实现房间 ID 列表
func (r *MemoryRoomRepository) IDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	return ids, nil
}
