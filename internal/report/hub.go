package report

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"bracketflow/internal/model"
	"bracketflow/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

var ErrTooManyClients = errors.New("too many stream clients")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

// StreamMessage 推送给 websocket 客户端的帧
type StreamMessage struct {
	Action string                 `json:"action"`
	Data   *model.ExecutionReport `json:"data"`
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub 管理 websocket 连接，把执行报告广播给所有客户端
type Hub struct {
	mu         sync.RWMutex
	clients    map[*streamClient]struct{}
	maxClients int
	upgrader   websocket.Upgrader
}

func NewHub(maxClients int) *Hub {
	if maxClients <= 0 {
		maxClients = 100
	}
	return &Hub{
		clients:    make(map[*streamClient]struct{}),
		maxClients: maxClients,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Hub) Name() string { return "stream" }

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Report 广播，客户端队列满时丢弃该帧
func (h *Hub) Report(_ context.Context, rep *model.ExecutionReport) error {
	data, err := json.Marshal(StreamMessage{Action: "execution", Data: rep})
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			logger.Warnf("[Stream] client %s send queue full, drop execution %d", c.conn.RemoteAddr(), rep.ExecutionID)
		}
	}
	return nil
}

// Serve 升级连接并阻塞到客户端断开
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) error {
	if h.Clients() >= h.maxClients {
		http.Error(w, ErrTooManyClients.Error(), http.StatusServiceUnavailable)
		return ErrTooManyClients
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &streamClient{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if len(h.clients) >= h.maxClients {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ErrTooManyClients.Error()),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return ErrTooManyClients
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	logger.Infof("[Stream] client connected %s, total=%d", conn.RemoteAddr(), h.Clients())

	go c.writePump()
	c.readPump()

	h.mu.Lock()
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
	logger.Infof("[Stream] client disconnected %s", conn.RemoteAddr())
	return nil
}

// Close 断开所有客户端
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		_ = c.conn.Close()
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// 只读，客户端发来的消息都忽略
func (c *streamClient) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
