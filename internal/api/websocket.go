// internal/api/websocket.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Corphon/AvaChat/internal/utils"
)

const (
	wsWriteWait   = 10 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = (wsPongWait * 9) / 10
	wsMaxMessage  = 16 * 1024
	wsSendBacklog = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketConnection is the subset of *websocket.Conn the manager uses.
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetReadLimit(limit int64)
}

// WebSocketClient is one connected chat page.
type WebSocketClient struct {
	id        string
	conn      WebSocketConnection
	send      chan []byte
	done      chan struct{}
	closed    int32
	lastPing  atomic.Int64
	createdAt time.Time
}

func newWebSocketClient(conn WebSocketConnection) *WebSocketClient {
	client := &WebSocketClient{
		id:        uuid.NewString(),
		conn:      conn,
		send:      make(chan []byte, wsSendBacklog),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	client.UpdatePing()
	return client
}

// Close marks the client closed and closes the connection once.
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		close(client.done)
		client.conn.Close()
	}
}

func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

func (client *WebSocketClient) UpdatePing() {
	client.lastPing.Store(time.Now().UnixNano())
}

// IsExpired reports whether no pong arrived within timeout.
func (client *WebSocketClient) IsExpired(timeout time.Duration) bool {
	if timeout <= 0 {
		return true
	}
	return time.Since(time.Unix(0, client.lastPing.Load())) > timeout
}

// SendMessage queues v for the writer. It blocks while the backlog is full
// so stream chunks are never dropped, and fails once the client is gone.
func (client *WebSocketClient) SendMessage(ctx context.Context, v interface{}) error {
	msgBytes, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case client.send <- msgBytes:
		return nil
	case <-client.done:
		return websocket.ErrCloseSent
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WebSocketManager tracks open chat sockets and reaps dead ones.
type WebSocketManager struct {
	clients     map[string]*WebSocketClient
	mutex       sync.RWMutex
	pingTimeout time.Duration
	logger      *utils.Logger
	metrics     *utils.MetricsCollector
}

func NewWebSocketManager(metrics *utils.MetricsCollector) *WebSocketManager {
	return &WebSocketManager{
		clients:     make(map[string]*WebSocketClient),
		pingTimeout: wsPongWait + wsWriteWait,
		logger:      utils.GetLogger(),
		metrics:     metrics,
	}
}

// Run reaps expired connections until ctx ends, then closes all clients.
func (manager *WebSocketManager) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			manager.Shutdown()
			return
		case <-ticker.C:
			manager.cleanupExpiredConnections()
		}
	}
}

func (manager *WebSocketManager) register(client *WebSocketClient) {
	manager.mutex.Lock()
	manager.clients[client.id] = client
	count := len(manager.clients)
	manager.mutex.Unlock()

	manager.metrics.SetGauge("websocket_connections", int64(count))
	manager.logger.Debug("WebSocket client connected", map[string]interface{}{"client_id": client.id})
}

func (manager *WebSocketManager) unregister(client *WebSocketClient) {
	manager.mutex.Lock()
	delete(manager.clients, client.id)
	count := len(manager.clients)
	manager.mutex.Unlock()

	client.Close()
	manager.metrics.SetGauge("websocket_connections", int64(count))
	manager.logger.Debug("WebSocket client disconnected", map[string]interface{}{"client_id": client.id})
}

func (manager *WebSocketManager) cleanupExpiredConnections() {
	manager.mutex.Lock()
	var expired []*WebSocketClient
	for id, client := range manager.clients {
		if client.IsClosed() || client.IsExpired(manager.pingTimeout) {
			delete(manager.clients, id)
			expired = append(expired, client)
		}
	}
	count := len(manager.clients)
	manager.mutex.Unlock()

	for _, client := range expired {
		client.Close()
	}
	if len(expired) > 0 {
		manager.metrics.SetGauge("websocket_connections", int64(count))
		manager.logger.Info("Reaped idle WebSocket clients", map[string]interface{}{"count": len(expired)})
	}
}

// Shutdown closes every client.
func (manager *WebSocketManager) Shutdown() {
	manager.mutex.Lock()
	clients := manager.clients
	manager.clients = make(map[string]*WebSocketClient)
	manager.mutex.Unlock()

	for _, client := range clients {
		client.Close()
	}
	manager.metrics.SetGauge("websocket_connections", 0)
}

// GetStatus summarizes open connections.
func (manager *WebSocketManager) GetStatus() map[string]interface{} {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	active := 0
	var oldest time.Time
	for _, client := range manager.clients {
		if client.IsClosed() {
			continue
		}
		active++
		if oldest.IsZero() || client.createdAt.Before(oldest) {
			oldest = client.createdAt
		}
	}

	status := map[string]interface{}{"total_connections": active}
	if !oldest.IsZero() {
		status["oldest_connected_at"] = oldest.Format(time.RFC3339)
	}
	return status
}
