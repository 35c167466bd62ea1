package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/amanhasank/together-stream/internal/protocol"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	id      string      // 连接 ID，重连后会变化
	send    chan []byte // 用于向此客户端发送消息的缓冲通道
	limiter *rate.Limiter

	mu     sync.RWMutex
	roomID string
	userID string
	closed bool
}

// NewClient 创建一个新的 Client 实例，连接 ID 由 uuid 生成。
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	limit := rate.Inf
	burst := 0
	if hub.opts.EventsPerSecond > 0 {
		limit = rate.Limit(hub.opts.EventsPerSecond)
		burst = hub.opts.EventsPerSecond
	}
	return &Client{
		hub:     hub,
		conn:    conn,
		id:      uuid.NewString(),
		send:    make(chan []byte, sendBufferSize),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) logCtx() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"connection_id": c.id,
		"room_id":       c.RoomID(),
		"user_id":       c.UserID(),
	})
}

// ReadPump 从 WebSocket 连接读取事件并在当前 goroutine 中同步处理，
// 因此同一连接的事件严格按到达顺序执行。
func (c *Client) ReadPump() {
	defer func() {
		c.requestUnregister()
		c.conn.Close()
		c.logCtx().Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logCtx().WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				c.logCtx().Debug("WebSocket connection closed normally or read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.logCtx().Debugf("Received non-text message type: %d", messageType)
			continue
		}
		if !c.limiter.Allow() {
			c.logCtx().Warn("Inbound event budget exceeded, dropping message")
			if c.hub.opts.RejectionNotices {
				c.sendError(protocol.CodeRateLimited, "too many events", "")
			}
			continue
		}
		c.hub.HandleFrame(c, message)
	}
}

// requestUnregister 请求 Hub 注销此客户端。队列满时阻塞等待，Hub 停止后放弃。
func (c *Client) requestUnregister() bool {
	select {
	case c.hub.messageChan <- HubMessage{Type: "unregister", Client: c}:
		return true
	case <-c.hub.done:
		c.logCtx().Debug("Hub stopped, unregister skipped")
		return false
	}
}

// WritePump 将消息从 send 通道写入 WebSocket 连接，并定期发送 Ping。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logCtx().Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭了 (注销时)
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logCtx().WithError(err).Warn("Failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logCtx().WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}

// enqueue 非阻塞地放入发送队列，队列满或已关闭时丢弃。
func (c *Client) enqueue(message []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		// 这里持有读锁，不能再调用 logCtx
		logrus.WithField("connection_id", c.id).Warn("Client send channel full, message dropped")
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) sendError(code, message, event string) {
	frame, err := protocol.Encode(protocol.EventError, protocol.ErrorMessage{Code: code, Message: message, Event: event})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func (c *Client) setRoom(roomID string) {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
}

func (c *Client) setUser(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

func (c *Client) ID() string { return c.id }

func (c *Client) RoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) CloseConn() {
	if c.conn != nil {
		c.conn.Close()
	}
}
