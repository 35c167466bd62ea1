package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/amanhasank/together-stream/internal/domain"
)

// Envelope 是所有 WebSocket 帧的外层结构。
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode 把事件编码成一帧。
func Encode(eventType string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s payload: %w", eventType, err)
	}
	return json.Marshal(Envelope{Type: eventType, Data: raw})
}

// Decode 解析一帧，只校验外层结构。
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return env, fmt.Errorf("protocol: invalid frame: %w", err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("protocol: missing event type")
	}
	return env, nil
}

// DecodeData 解析事件数据，空数据视为 {}。
func DecodeData(env Envelope, v interface{}) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("protocol: invalid %s payload: %w", env.Type, err)
	}
	return nil
}

// --- 客户端 -> 服务端 ---

type JoinRoomRequest struct {
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// RoomRequest 只携带 roomId 的请求 (take-control)。roomId 仅作参考，服务端以连接所在房间为准。
type RoomRequest struct {
	RoomID string `json:"roomId"`
}

// PlaybackRequest 覆盖 play/pause/seek/skip/sync-update。
type PlaybackRequest struct {
	RoomID   string   `json:"roomId"`
	Position float64  `json:"position"`
	Playing  bool     `json:"playing"`
	Rate     *float64 `json:"rate,omitempty"`
	Seconds  float64  `json:"seconds"` // skip 的相对偏移
}

type VideoChangeRequest struct {
	RoomID         string `json:"roomId"`
	MediaReference string `json:"mediaReference"`
}

type ChatRequest struct {
	RoomID      string `json:"roomId"`
	Text        string `json:"text"`
	DisplayName string `json:"displayName"`
	ID          string `json:"id,omitempty"` // 客户端重试时携带同一个 ID
}

// RelayRequest 覆盖信令和 avatar-action，载荷原样转发。
type RelayRequest struct {
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// --- 服务端 -> 客户端 ---

type SessionMessage struct {
	Session    *domain.Room `json:"session"`
	Role       domain.Role  `json:"role,omitempty"` // 仅 room-state
	Phase      domain.Phase `json:"phase"`
	ServerTime int64        `json:"serverTime"`
}

type ChatHistoryMessage struct {
	Entries []domain.HistoryEntry `json:"entries"`
}

type ControlChangedMessage struct {
	Controller domain.ControllerRef `json:"controller"`
	Message    string               `json:"message"`
	MessageID  string               `json:"messageId,omitempty"`
	Version    uint64               `json:"version"` // 与对应 room-updated 快照的版本一致
}

// PlaybackMessage 播放事件。Timestamp 是服务端接收时刻 (unix 毫秒)，接收方据此推算。
type PlaybackMessage struct {
	Position  float64 `json:"position"`
	Playing   bool    `json:"playing"`
	Rate      float64 `json:"rate"`
	Timestamp int64   `json:"timestamp"`
	UserID    string  `json:"userId,omitempty"`
}

type VideoChangeMessage struct {
	MediaReference string `json:"mediaReference"`
	UserID         string `json:"userId"`
}

type PresenceMessage struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	MessageID   string `json:"messageId,omitempty"`
	Message     string `json:"message,omitempty"`
}

type RelayMessage struct {
	From    string          `json:"from"`
	UserID  string          `json:"userId"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"` // 被拒绝的事件名
}
