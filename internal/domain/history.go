package domain

import "time"

// DefaultHistoryCapacity 每个房间保留的历史条数上限。
const DefaultHistoryCapacity = 100

// EntryKind 历史条目类型。
type EntryKind string

const (
	KindUserMessage  EntryKind = "user-message"
	KindSystemNotice EntryKind = "system-notice"
)

// HistoryEntry 是一条聊天或系统通知。ID 只用于去重，不表示顺序。
type HistoryEntry struct {
	ID           string    `json:"id"`
	Kind         EntryKind `json:"kind"`
	Payload      string    `json:"payload"`
	AuthorUserID string    `json:"authorUserId,omitempty"` // 系统通知为空
	DisplayName  string    `json:"displayName,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// History 是有界、去重、按插入顺序排列的历史记录。
// 满了以后从头部 (最旧) 开始淘汰。非并发安全，由房间锁保护。
type History struct {
	capacity int
	entries  []HistoryEntry
	ids      map[string]struct{}
}

// NewHistory 创建指定容量的历史记录，capacity <= 0 时使用默认值。
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{
		capacity: capacity,
		entries:  make([]HistoryEntry, 0, capacity),
		ids:      make(map[string]struct{}, capacity),
	}
}

// Append 追加一条记录。ID 已存在时不做任何修改并返回 false。
func (h *History) Append(e HistoryEntry) bool {
	if _, dup := h.ids[e.ID]; dup {
		return false
	}
	h.entries = append(h.entries, e)
	h.ids[e.ID] = struct{}{}
	for len(h.entries) > h.capacity {
		evicted := h.entries[0]
		delete(h.ids, evicted.ID)
		// 复制到新切片，避免底层数组无限增长
		h.entries = append(h.entries[:0:0], h.entries[1:]...)
	}
	return true
}

// Contains 判断 ID 是否仍在历史中。
func (h *History) Contains(id string) bool {
	_, ok := h.ids[id]
	return ok
}

// Entries 返回按插入顺序排列的副本 (最旧的在前)。
func (h *History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *History) Len() int      { return len(h.entries) }
func (h *History) Capacity() int { return h.capacity }

// Clone 深拷贝。
func (h *History) Clone() *History {
	if h == nil {
		return nil
	}
	cp := NewHistory(h.capacity)
	for _, e := range h.entries {
		cp.entries = append(cp.entries, e)
		cp.ids[e.ID] = struct{}{}
	}
	return cp
}
