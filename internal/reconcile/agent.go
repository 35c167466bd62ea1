package reconcile

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amanhasank/together-stream/internal/protocol"
)

// Emitter 把事件发往服务端
type Emitter interface {
	Emit(event string, data interface{}) error
}

// Options Agent 的可调参数，零值使用默认值
type Options struct {
	RoomID           string
	Now              func() time.Time
	SyncInterval     time.Duration
	WatchdogInterval time.Duration
	SuppressWindow   time.Duration
}

// Agent 是单个连接的同步代理。任意时刻只持有一个定时器：
// 控制者的 sync-update 发送器，或观看者的漂移检查器。
type Agent struct {
	player  Player
	emitter Emitter
	opts    Options
	log     *logrus.Entry

	mu            sync.Mutex
	controller    bool
	last          *Authoritative
	suppressUntil time.Time
	stopTimer     chan struct{}
	timerDone     chan struct{}
	stopped       bool
	corrections   int
}

// NewAgent 创建 Agent，定时器在第一次 SetController 时启动
func NewAgent(player Player, emitter Emitter, opts Options) *Agent {
	if player == nil || emitter == nil {
		panic("Player and Emitter cannot be nil for Agent")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = SyncInterval
	}
	if opts.WatchdogInterval <= 0 {
		opts.WatchdogInterval = WatchdogInterval
	}
	if opts.SuppressWindow <= 0 {
		opts.SuppressWindow = SuppressWindow
	}
	return &Agent{
		player:  player,
		emitter: emitter,
		opts:    opts,
		log:     logrus.WithFields(logrus.Fields{"component": "reconcile", "room_id": opts.RoomID}),
	}
}

// SetController 切换角色：先拆掉旧定时器，再启动新角色的定时器。角色不变时什么也不做。
func (a *Agent) SetController(isController bool) {
	a.mu.Lock()
	if a.stopped || (a.stopTimer != nil && a.controller == isController) {
		a.mu.Unlock()
		return
	}
	a.controller = isController
	oldStop, oldDone := a.stopTimer, a.timerDone
	stop, done := make(chan struct{}), make(chan struct{})
	a.stopTimer, a.timerDone = stop, done
	a.mu.Unlock()

	if oldStop != nil {
		close(oldStop)
		<-oldDone
	}
	a.log.WithField("controller", isController).Debug("Role changed, timer restarted")
	go a.loop(isController, stop, done)
}

// IsController 当前是否为控制者
func (a *Agent) IsController() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.controller
}

// Stop 拆掉定时器，返回时定时器 goroutine 已退出
func (a *Agent) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	stop, done := a.stopTimer, a.timerDone
	a.stopTimer, a.timerDone = nil, nil
	a.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (a *Agent) loop(controller bool, stop, done chan struct{}) {
	defer close(done)
	interval := a.opts.WatchdogInterval
	if controller {
		interval = a.opts.SyncInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if controller {
				a.emitSync()
			} else {
				a.watchdog()
			}
		}
	}
}

func (a *Agent) emitSync() {
	err := a.emitter.Emit(protocol.EventSyncUpdate, protocol.PlaybackRequest{
		RoomID:   a.opts.RoomID,
		Position: a.player.Position(),
		Playing:  a.player.Playing(),
	})
	if err != nil {
		a.log.WithError(err).Debug("Failed to emit sync-update")
	}
}

// watchdog 没有新事件时也按最近一次权威状态检查漂移
func (a *Agent) watchdog() {
	a.mu.Lock()
	last := a.last
	a.mu.Unlock()
	if last == nil {
		return
	}
	now := a.opts.Now()
	if target, need := Decide(a.player.Position(), *last, now, WatchdogTolerance); need {
		a.correct(target, now)
		a.log.WithField("target", target).Debug("Watchdog corrected drift")
	}
}

// Apply 处理收到的播放事件，返回是否做了硬跳转。
func (a *Agent) Apply(event string, msg protocol.PlaybackMessage) bool {
	auth := FromMessage(msg)
	now := a.opts.Now()

	a.mu.Lock()
	a.last = &auth
	a.mu.Unlock()

	toggled := false
	if auth.Playing && !a.player.Playing() {
		a.suppress(now)
		a.player.Play()
		toggled = true
	} else if !auth.Playing && a.player.Playing() {
		a.suppress(now)
		a.player.Pause()
		toggled = true
	}

	target, need := Decide(a.player.Position(), auth, now, ToleranceFor(event))
	if need {
		a.correct(target, now)
	}
	if toggled || need {
		a.log.WithFields(logrus.Fields{"event": event, "target": target, "seeked": need}).Debug("Applied authoritative state")
	}
	return need
}

func (a *Agent) correct(target float64, now time.Time) {
	a.suppress(now)
	a.player.Seek(target)
	a.mu.Lock()
	a.corrections++
	a.mu.Unlock()
}

func (a *Agent) suppress(now time.Time) {
	a.mu.Lock()
	a.suppressUntil = now.Add(a.opts.SuppressWindow)
	a.mu.Unlock()
}

// Corrections 返回硬跳转次数
func (a *Agent) Corrections() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.corrections
}

// LocalPlay、LocalPause、LocalSeek 由播放器回调调用，表示本地已经发生的状态变化。
// 校正进行中的回调是校正本身引起的，不能再当作用户操作发出去；非控制者从不发送播放事件。
func (a *Agent) LocalPlay(position float64) bool {
	return a.local(protocol.EventPlay, position)
}

func (a *Agent) LocalPause(position float64) bool {
	return a.local(protocol.EventPause, position)
}

func (a *Agent) LocalSeek(position float64) bool {
	return a.local(protocol.EventSeek, position)
}

func (a *Agent) local(event string, position float64) bool {
	now := a.opts.Now()
	a.mu.Lock()
	controller := a.controller
	suppressed := now.Before(a.suppressUntil)
	a.mu.Unlock()

	if suppressed {
		a.log.WithField("event", event).Debug("Suppressed local transition caused by correction")
		return false
	}
	if !controller {
		return false
	}
	if err := a.emitter.Emit(event, protocol.PlaybackRequest{RoomID: a.opts.RoomID, Position: position}); err != nil {
		a.log.WithError(err).WithField("event", event).Warn("Failed to emit local transition")
		return false
	}
	return true
}
