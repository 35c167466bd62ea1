package tasks

import (
	"encoding/json"
	"fmt"
	"time"
)

// 任务类型常量
const (
	TypeRoomSweep = "room:sweep" // 回收空闲房间
)

// RoomSweepPayload 回收任务的参数
type RoomSweepPayload struct {
	// IdleTTL 没有成员且超过该时长未活动的房间会被删除
	IdleTTL time.Duration `json:"idle_ttl"`
}

// NewRoomSweepTask 序列化回收任务的 payload
func NewRoomSweepTask(idleTTL time.Duration) ([]byte, error) {
	if idleTTL <= 0 {
		return nil, fmt.Errorf("tasks: idle ttl must be positive, got %s", idleTTL)
	}
	return json.Marshal(RoomSweepPayload{IdleTTL: idleTTL})
}

// ParseRoomSweepPayload 解析回收任务的 payload
func ParseRoomSweepPayload(data []byte) (RoomSweepPayload, error) {
	var p RoomSweepPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, err
	}
	if p.IdleTTL <= 0 {
		return p, fmt.Errorf("tasks: idle ttl must be positive, got %s", p.IdleTTL)
	}
	return p, nil
}
