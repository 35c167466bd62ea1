package repository

import (
	"context"

	"github.com/amanhasank/together-stream/internal/domain"
)

// RoomMutation 在房间的临界区内执行。返回错误时本次修改全部丢弃。
type RoomMutation func(room *domain.Room) error

// RoomRepository 定义了房间数据的存储和检索操作。
// 同一房间的修改必须串行执行，不同房间之间互不阻塞。
type RoomRepository interface {
	// Create 保存新房间。ID 已存在时返回 ErrDuplicateEntry。
	Create(ctx context.Context, room *domain.Room) error

	// Exists 检查房间 ID 是否已被占用。
	Exists(ctx context.Context, id string) (bool, error)

	// Get 返回房间的快照 (深拷贝)。不存在时返回 ErrNotFound。
	Get(ctx context.Context, id string) (*domain.Room, error)

	// Update 在房间锁内执行 fn，成功后提交并返回提交后的快照。
	// 房间不存在时返回 ErrNotFound；fn 返回的错误原样返回。
	Update(ctx context.Context, id string, fn RoomMutation) (*domain.Room, error)

	// DeleteIf 在房间锁内判断 pred，为 true 时删除房间。
	DeleteIf(ctx context.Context, id string, pred func(room *domain.Room) bool) (bool, error)

	// IDs 返回当前所有房间 ID (顺序不保证)。
	IDs(ctx context.Context) ([]string, error)
}
