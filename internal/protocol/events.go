package protocol

// 事件名称，客户端和服务端共用
const (
	EventJoinRoom       = "join-room"
	EventRoomState      = "room-state"
	EventRoomUpdated    = "room-updated"
	EventChatHistory    = "chat-history"
	EventTakeControl    = "take-control"
	EventControlChanged = "control-changed"
	EventPlay           = "play"
	EventPause          = "pause"
	EventSeek           = "seek"
	EventSkip           = "skip"
	EventSyncUpdate     = "sync-update"
	EventVideoChange    = "video-change"
	EventChatMessage    = "chat-message"
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventOffer          = "offer"
	EventAnswer         = "answer"
	EventICECandidate   = "ice-candidate"
	EventAvatarAction   = "avatar-action"
	EventError          = "error"
)

// Scope 决定一个事件广播给房间里的哪些连接。
type Scope int

const (
	ScopeAll    Scope = iota // 包括发送者
	ScopeOthers              // 除发送者外的所有成员
	ScopePeer                // 另一个席位上的成员 (信令)
	ScopeSender              // 只发给发送者
)

func (s Scope) String() string {
	switch s {
	case ScopeAll:
		return "all"
	case ScopeOthers:
		return "others"
	case ScopePeer:
		return "peer"
	case ScopeSender:
		return "sender"
	}
	return "unknown"
}

// scopes 广播范围表。这张表就是协议本身，改动会影响客户端的状态收敛。
var scopes = map[string]Scope{
	EventVideoChange:    ScopeAll,
	EventPlay:           ScopeOthers,
	EventPause:          ScopeAll,
	EventSeek:           ScopeOthers,
	EventSkip:           ScopeAll,
	EventSyncUpdate:     ScopeOthers,
	EventControlChanged: ScopeAll,
	EventChatMessage:    ScopeAll,
	EventOffer:          ScopePeer,
	EventAnswer:         ScopePeer,
	EventICECandidate:   ScopePeer,
	EventAvatarAction:   ScopeOthers,
	EventRoomUpdated:    ScopeAll,
	EventUserJoined:     ScopeOthers,
	EventUserLeft:       ScopeOthers,
	EventRoomState:      ScopeSender,
	EventChatHistory:    ScopeSender,
	EventError:          ScopeSender,
}

// ScopeOf 返回事件的广播范围，未知事件只回给发送者。
func ScopeOf(event string) Scope {
	if s, ok := scopes[event]; ok {
		return s
	}
	return ScopeSender
}

// IsSignaling 判断是否为 WebRTC 信令事件。
func IsSignaling(event string) bool {
	return event == EventOffer || event == EventAnswer || event == EventICECandidate
}

// 错误码
const (
	CodeBadRequest     = "bad_request"
	CodeInvalidRoomID  = "invalid_room_id"
	CodeRoomNotFound   = "room_not_found"
	CodeNotAuthorized  = "not_authorized"
	CodeNotJoined      = "not_joined"
	CodeInvalidMessage = "invalid_message"
	CodeRateLimited    = "rate_limited"
	CodeInternal       = "internal_error"
)
