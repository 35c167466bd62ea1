package domain

import "time"

// Role 表示连接在房间中的身份。
type Role string

const (
	RoleHost     Role = "host"
	RolePartner  Role = "partner"
	RoleObserver Role = "observer" // 房间已满时的旁观者，不占席位
)

// Participant 表示一个在线连接 (每个连接一条记录，断开即删除)。
type Participant struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"displayName"`
	RoomID       string    `json:"roomId"`
	Role         Role      `json:"role"`
	JoinedAt     time.Time `json:"joinedAt"`
}
