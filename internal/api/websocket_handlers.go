// internal/api/websocket_handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	apperrors "github.com/Corphon/AvaChat/internal/errors"
	"github.com/Corphon/AvaChat/internal/services"
)

// wsRequest is a frame sent by the page. Type defaults to "chat".
type wsRequest struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Mode    string `json:"mode"`
}

// ChatWebSocket streams chat replies over a websocket. One reply runs at a
// time per connection; a second message while busy gets an error frame.
func (h *Handler) ChatWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	client := newWebSocketClient(conn)
	h.WebSocket.register(client)
	defer h.WebSocket.unregister(client)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go h.handleWebSocketWrites(client)

	_ = client.SendMessage(ctx, gin.H{"type": "connected", "client_id": client.id})
	h.handleWebSocketReads(ctx, client)
}

func (h *Handler) handleWebSocketReads(ctx context.Context, client *WebSocketClient) {
	client.conn.SetReadLimit(wsMaxMessage)
	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	ctx, cancel := context.WithCancel(ctx)
	var (
		busy int32
		wg   sync.WaitGroup
	)
	defer wg.Wait()
	defer cancel()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read ended", map[string]interface{}{
					"client_id": client.id,
					"error":     err.Error(),
				})
			}
			return
		}
		client.UpdatePing()

		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			h.sendWSError(ctx, client, ErrorMessageInvalid, "Invalid message")
			continue
		}

		switch req.Type {
		case "ping":
			_ = client.SendMessage(ctx, gin.H{"type": "pong", "time": time.Now().Unix()})
		case "", "chat":
			if !atomic.CompareAndSwapInt32(&busy, 0, 1) {
				h.sendWSError(ctx, client, ErrorBadRequest, "A reply is already in progress")
				continue
			}
			wg.Add(1)
			go func(req services.ChatRequest) {
				defer wg.Done()
				var once sync.Once
				release := func() { once.Do(func() { atomic.StoreInt32(&busy, 0) }) }
				defer release()
				h.streamToWebSocket(ctx, client, req, release)
			}(services.ChatRequest{Message: req.Message, Mode: req.Mode})
		default:
			h.sendWSError(ctx, client, ErrorBadRequest, "Unknown message type")
		}
	}
}

// streamToWebSocket relays one reply. release is called before the final
// frame is queued so the page may send its next message right away.
func (h *Handler) streamToWebSocket(ctx context.Context, client *WebSocketClient, req services.ChatRequest, release func()) {
	emittedError := false
	err := h.Chat.Stream(ctx, req, func(ev services.StreamEvent) error {
		switch ev.Type {
		case services.EventError:
			emittedError = true
			release()
		case services.EventResult:
			release()
		}
		return client.SendMessage(ctx, ev)
	})
	if err == nil || emittedError || ctx.Err() != nil {
		return
	}
	release()

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		h.sendWSError(ctx, client, appErr.Code, appErr.Message)
		return
	}
	h.sendWSError(ctx, client, ErrorStreamFailed, "Chat request failed")
}

func (h *Handler) sendWSError(ctx context.Context, client *WebSocketClient, code, message string) {
	_ = client.SendMessage(ctx, services.StreamEvent{Type: services.EventError, Error: message, Code: code})
}

func (h *Handler) handleWebSocketWrites(client *WebSocketClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case <-client.done:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			client.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("WebSocket write failed", map[string]interface{}{
					"client_id": client.id,
					"error":     err.Error(),
				})
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
