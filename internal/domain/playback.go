package domain

import (
	"math"
	"time"
)

// Phase 播放状态机的阶段。Seek/Skip 只修改位置，不是独立阶段。
type Phase string

const (
	PhaseEmpty   Phase = "empty"  // 未加载媒体
	PhaseLoaded  Phase = "loaded" // 已加载，尚未有过播放/暂停
	PhasePlaying Phase = "playing"
	PhasePaused  Phase = "paused"
)

// PlaybackState 是房间权威的播放状态。
type PlaybackState struct {
	Playing      bool      `json:"playing"`
	Position     float64   `json:"position"` // 秒
	Rate         float64   `json:"rate"`
	LastUpdateAt time.Time `json:"lastUpdateAt"`
}

// NewPlaybackState 返回初始状态：暂停在 0 秒，倍速 1。
func NewPlaybackState() PlaybackState {
	return PlaybackState{Rate: 1}
}

// PositionAt 推算 now 时刻的位置。
// 时钟回拨时 elapsed 按 0 处理，保证推算出的时间不会倒退。
func (p PlaybackState) PositionAt(now time.Time) float64 {
	if !p.Playing || p.LastUpdateAt.IsZero() {
		return p.Position
	}
	elapsed := now.Sub(p.LastUpdateAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	rate := p.Rate
	if rate <= 0 {
		rate = 1
	}
	return p.Position + elapsed*rate
}

// SanitizePosition 把客户端上报的位置规整为有限的非负数。
func SanitizePosition(pos float64) float64 {
	if math.IsNaN(pos) || math.IsInf(pos, 0) || pos < 0 {
		return 0
	}
	return pos
}
