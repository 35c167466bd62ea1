// Package client 是服务端协议的 Go 客户端，供命令行同步客户端和端到端测试使用。
package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amanhasank/together-stream/internal/protocol"
)

const writeWait = 10 * time.Second

// Conn 是一条到服务端的 WebSocket 连接。写操作是并发安全的，读操作只能在一个 goroutine 中进行。
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// Dial 连接到服务端的 /ws 端点
func Dial(ctx context.Context, url string, origin string) (*Conn, error) {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("client: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	return &Conn{ws: ws}, nil
}

// Emit 发送一个事件，实现 reconcile.Emitter
func (c *Conn) Emit(event string, data interface{}) error {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// Next 读取下一个事件，timeout <= 0 表示不超时
func (c *Conn) Next(timeout time.Duration) (protocol.Envelope, error) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	_ = c.ws.SetReadDeadline(deadline)
	_, frame, err := c.ws.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, err
	}
	return protocol.Decode(frame)
}

// Expect 读取事件直到遇到指定类型，跳过其他事件
func (c *Conn) Expect(event string, timeout time.Duration) (protocol.Envelope, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return protocol.Envelope{}, fmt.Errorf("client: timed out waiting for %s", event)
		}
		env, err := c.Next(remaining)
		if err != nil {
			return env, fmt.Errorf("client: waiting for %s: %w", event, err)
		}
		if env.Type == event {
			return env, nil
		}
	}
}

// Close 发送关闭帧并关闭连接
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}
