// Package reconcile 实现客户端的漂移校正：把权威状态按经过的时间外推，
// 只有偏差超过阈值时才硬跳转，避免过度校正造成的卡顿。
package reconcile

import (
	"math"
	"time"

	"github.com/amanhasank/together-stream/internal/protocol"
)

// 阈值 (秒)
const (
	EventTolerance    = 0.1 // play/pause/seek/skip
	SyncTolerance     = 0.2 // sync-update
	WatchdogTolerance = 0.3 // 观看者自己的定时检查
)

const (
	SyncInterval     = time.Second     // 控制者发送 sync-update 的周期
	WatchdogInterval = 2 * time.Second // 观看者定时检查的周期
	SuppressWindow   = 500 * time.Millisecond
)

// Authoritative 收到的权威播放状态
type Authoritative struct {
	Position  float64
	Playing   bool
	Rate      float64
	Timestamp time.Time // 服务端时间戳
}

// FromMessage 从播放事件构造权威状态
func FromMessage(msg protocol.PlaybackMessage) Authoritative {
	return Authoritative{
		Position:  msg.Position,
		Playing:   msg.Playing,
		Rate:      msg.Rate,
		Timestamp: time.Unix(0, msg.Timestamp*int64(time.Millisecond)),
	}
}

// Expected 推算 now 时刻应处的位置。elapsed 小于 0 时按 0 处理，推算结果不会倒退。
func Expected(auth Authoritative, now time.Time) float64 {
	if !auth.Playing {
		return auth.Position
	}
	elapsed := now.Sub(auth.Timestamp).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	rate := auth.Rate
	if rate <= 0 {
		rate = 1
	}
	return auth.Position + elapsed*rate
}

// Decide 判断是否需要校正。当且仅当 |local - Expected| > tol 时返回 (target, true)。
func Decide(local float64, auth Authoritative, now time.Time, tol float64) (float64, bool) {
	target := Expected(auth, now)
	if math.Abs(local-target) > tol {
		return target, true
	}
	return target, false
}

// ToleranceFor 返回事件对应的阈值
func ToleranceFor(event string) float64 {
	if event == protocol.EventSyncUpdate {
		return SyncTolerance
	}
	return EventTolerance
}
