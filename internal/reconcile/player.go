package reconcile

import (
	"sync"
	"time"
)

// Player 是本地播放器的最小控制面
type Player interface {
	Position() float64
	Playing() bool
	Seek(position float64)
	Play()
	Pause()
}

// SimPlayer 按时钟推进位置的模拟播放器，用于无界面的客户端和测试
type SimPlayer struct {
	mu      sync.Mutex
	now     func() time.Time
	base    float64
	since   time.Time
	playing bool
	rate    float64
	seeks   int
}

// NewSimPlayer 创建模拟播放器，now 为 nil 时使用 time.Now
func NewSimPlayer(now func() time.Time) *SimPlayer {
	if now == nil {
		now = time.Now
	}
	return &SimPlayer{now: now, since: now(), rate: 1}
}

func (p *SimPlayer) positionLocked() float64 {
	if !p.playing {
		return p.base
	}
	elapsed := p.now().Sub(p.since).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return p.base + elapsed*p.rate
}

func (p *SimPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *SimPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *SimPlayer) Seek(position float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if position < 0 {
		position = 0
	}
	p.base = position
	p.since = p.now()
	p.seeks++
}

func (p *SimPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return
	}
	p.since = p.now()
	p.playing = true
}

func (p *SimPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.base = p.positionLocked()
	p.playing = false
}

// SetRate 修改倍速
func (p *SimPlayer) SetRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rate <= 0 {
		return
	}
	p.base = p.positionLocked()
	p.since = p.now()
	p.rate = rate
}

// Seeks 返回被硬跳转的次数
func (p *SimPlayer) Seeks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seeks
}
