package domain

import "time"

// Slot 表示房间中的一个席位 (host 或 partner)。
type Slot struct {
	ConnectionID string `json:"connectionId"` // 占用该席位的连接 ID，重连后会变化
	UserID       string `json:"userId"`       // 客户端提供的稳定身份
	DisplayName  string `json:"displayName"`
}

// ControllerRef 指向当前拥有播放控制权的用户。
type ControllerRef struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// Room 表示一个同步观看房间 (会话)。
// Room 本身不是并发安全的，所有修改必须在仓库提供的房间级临界区内完成。
type Room struct {
	ID             string         `json:"id"`
	Version        uint64         `json:"version"` // 每次提交修改后加一，接收方丢弃比已见版本更旧的快照
	Host           *Slot          `json:"host"`
	Partner        *Slot          `json:"partner"`
	Controller     *ControllerRef `json:"controller"`
	MediaReference string         `json:"mediaReference"`
	Playback       PlaybackState  `json:"playbackState"`
	CreatedAt      time.Time      `json:"createdAt"`
	LastActive     time.Time      `json:"lastActive"`

	// 以下字段不对外暴露
	History *History               `json:"-"`
	Members map[string]Participant `json:"-"` // connectionID -> 当前在线的连接 (包括旁观者)
}

// NewRoom 创建一个空房间：无媒体、无控制者、空历史。
func NewRoom(id string, historyCapacity int, now time.Time) *Room {
	return &Room{
		ID:         id,
		Playback:   NewPlaybackState(),
		CreatedAt:  now,
		LastActive: now,
		History:    NewHistory(historyCapacity),
		Members:    make(map[string]Participant),
	}
}

// SlotOf 返回连接所占的席位角色；未占席位时返回 RoleObserver。
func (r *Room) SlotOf(connectionID string) Role {
	if r.Host != nil && r.Host.ConnectionID == connectionID {
		return RoleHost
	}
	if r.Partner != nil && r.Partner.ConnectionID == connectionID {
		return RolePartner
	}
	return RoleObserver
}

// Occupies 判断某个 userID 是否占据 host 或 partner 席位。
func (r *Room) Occupies(userID string) bool {
	return (r.Host != nil && r.Host.UserID == userID) ||
		(r.Partner != nil && r.Partner.UserID == userID)
}

// IsController 判断 userID 是否为当前控制者。
func (r *Room) IsController(userID string) bool {
	return r.Controller != nil && userID != "" && r.Controller.UserID == userID
}

// OtherSlot 返回与给定连接相对的另一个席位 (信令转发的目标)。
func (r *Room) OtherSlot(connectionID string) *Slot {
	switch r.SlotOf(connectionID) {
	case RoleHost:
		return r.Partner
	case RolePartner:
		return r.Host
	}
	return nil
}

// HasUser 判断除 exceptConn 之外是否还有同一 userID 的在线连接。
func (r *Room) HasUser(userID, exceptConn string) bool {
	for connID, p := range r.Members {
		if connID != exceptConn && p.UserID == userID {
			return true
		}
	}
	return false
}

// Touch 更新最后活跃时间。
func (r *Room) Touch(now time.Time) { r.LastActive = now }

// Phase 返回当前播放阶段。
func (r *Room) Phase() Phase {
	switch {
	case r.MediaReference == "":
		return PhaseEmpty
	case r.Playback.Playing:
		return PhasePlaying
	case r.Playback.LastUpdateAt.IsZero():
		return PhaseLoaded
	default:
		return PhasePaused
	}
}

// Clone 返回房间的深拷贝，用于在临界区之外序列化或发送快照。
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Host != nil {
		h := *r.Host
		cp.Host = &h
	}
	if r.Partner != nil {
		p := *r.Partner
		cp.Partner = &p
	}
	if r.Controller != nil {
		c := *r.Controller
		cp.Controller = &c
	}
	cp.History = r.History.Clone()
	cp.Members = make(map[string]Participant, len(r.Members))
	for k, v := range r.Members {
		cp.Members[k] = v
	}
	return &cp
}
