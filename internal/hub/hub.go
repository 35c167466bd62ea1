package hub

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amanhasank/together-stream/internal/protocol"
	"github.com/amanhasank/together-stream/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// 默认最大消息大小，SDP offer 可能有几十 KB
	defaultMaxMessageSize = 64 * 1024

	sendBufferSize = 256
)

// Options Hub 的可调参数
type Options struct {
	// RejectionNotices 为 true 时，被拒绝的事件会给发送者回一个 error 事件
	RejectionNotices bool
	// EventsPerSecond 每个连接每秒允许的入站事件数，<= 0 表示不限制
	EventsPerSecond int
	// MaxMessageSize 入站帧的最大字节数
	MaxMessageSize int64
}

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type   string // "register", "unregister"
	Client *Client
}

// Hub 维护活跃连接，并按房间做事件分发。
// 连接上的事件在各自的读循环中同步处理；注册/注销经由 Run 循环串行处理。
type Hub struct {
	messageChan chan HubMessage
	done        chan struct{}
	stopOnce    sync.Once

	// map[roomID]map[*Client]bool
	rooms   map[string]map[*Client]bool
	clients map[string]*Client // connectionID -> client
	roomsMu sync.RWMutex

	members  *service.MembershipService
	playback *service.PlaybackService
	chat     *service.ChatService

	opts Options
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(members *service.MembershipService, playback *service.PlaybackService, chat *service.ChatService, opts Options) *Hub {
	if members == nil {
		panic("MembershipService cannot be nil for Hub")
	}
	if playback == nil {
		panic("PlaybackService cannot be nil for Hub")
	}
	if chat == nil {
		panic("ChatService cannot be nil for Hub")
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		done:        make(chan struct{}),
		rooms:       make(map[string]map[*Client]bool),
		clients:     make(map[string]*Client),
		members:     members,
		playback:    playback,
		chat:        chat,
		opts:        opts,
	}
}

// Run 启动 Hub 的主事件处理循环，应在单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")
	for {
		select {
		case msg := <-h.messageChan:
			switch msg.Type {
			case "register":
				h.registerClient(msg.Client)
			case "unregister":
				h.unregisterClient(msg.Client)
			default:
				log.Warnf("Hub: Received unknown message type: %s", msg.Type)
			}
		case <-h.done:
			log.Info("Hub is shutting down...")
			return
		}
	}
}

// Stop 停止 Run 循环并关闭所有连接。
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.roomsMu.RLock()
		clients := make([]*Client, 0, len(h.clients))
		for _, c := range h.clients {
			clients = append(clients, c)
		}
		h.roomsMu.RUnlock()
		for _, c := range clients {
			c.CloseConn()
		}
	})
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 返回 true 如果消息成功入队，false 如果队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// ClientCount 当前注册的连接数
func (h *Hub) ClientCount() int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	h.roomsMu.Lock()
	h.clients[client.ID()] = client
	h.roomsMu.Unlock()
	logrus.WithField("connection_id", client.ID()).Info("Client registered to Hub")
}

// unregisterClient 连接断开：执行 leave 流程，通知剩余成员，然后关闭发送通道。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"connection_id": client.ID(),
		"room_id":       client.RoomID(),
		"user_id":       client.UserID(),
		"action":        "unregisterClient",
	})

	h.detach(client)
	h.roomsMu.Lock()
	delete(h.clients, client.ID())
	h.roomsMu.Unlock()

	left, err := h.members.Leave(backgroundCtx(), client.ID())
	if err == nil {
		h.announceLeave(left)
	}
	client.closeSend()
	logCtx.WithField("members_online", h.members.Count()).Info("Client unregistered from Hub")
}

// attach 把连接放入房间的广播集合。
func (h *Hub) attach(client *Client, roomID string) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	if old := client.RoomID(); old != "" && old != roomID {
		h.removeLocked(client, old)
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	h.clients[client.ID()] = client
	client.setRoom(roomID)
}

func (h *Hub) detach(client *Client) {
	roomID := client.RoomID()
	if roomID == "" {
		return
	}
	h.roomsMu.Lock()
	h.removeLocked(client, roomID)
	h.roomsMu.Unlock()
}

func (h *Hub) removeLocked(client *Client, roomID string) {
	if roomClients, ok := h.rooms[roomID]; ok {
		delete(roomClients, client)
		if len(roomClients) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// broadcast 将消息发送给房间内的所有连接，exclude 非空时排除该连接。
func (h *Hub) broadcast(roomID string, message []byte, exclude *Client) {
	h.roomsMu.RLock()
	roomClients, ok := h.rooms[roomID]
	// 复制接收者列表，避免在发送时持有锁
	clientsToSend := make([]*Client, 0, len(roomClients))
	if ok {
		for client := range roomClients {
			if client != exclude {
				clientsToSend = append(clientsToSend, client)
			}
		}
	}
	h.roomsMu.RUnlock()

	if len(clientsToSend) == 0 {
		return
	}
	logrus.WithFields(logrus.Fields{
		"room_id":         roomID,
		"message_size":    len(message),
		"recipient_count": len(clientsToSend),
	}).Debug("Broadcasting message to clients")

	for _, client := range clientsToSend {
		client.enqueue(message)
	}
}

// sendTo 按连接 ID 投递 (信令)。
func (h *Hub) sendTo(connID string, message []byte) bool {
	h.roomsMu.RLock()
	client, ok := h.clients[connID]
	h.roomsMu.RUnlock()
	if !ok {
		return false
	}
	return client.enqueue(message)
}

// fanOut 按协议的广播范围表发送事件。
func (h *Hub) fanOut(roomID string, sender *Client, event string, payload interface{}) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("Failed to encode outgoing event")
		return
	}
	switch protocol.ScopeOf(event) {
	case protocol.ScopeAll:
		h.broadcast(roomID, frame, nil)
	case protocol.ScopeOthers:
		h.broadcast(roomID, frame, sender)
	case protocol.ScopeSender:
		if sender != nil {
			sender.enqueue(frame)
		}
	default:
		logrus.WithField("event", event).Warn("fanOut called for peer-scoped event")
	}
}
