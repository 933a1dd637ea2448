package realtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaiso/Webmata/internal/domain"
	"github.com/shaiso/Webmata/internal/telemetry"
)

// Conn — соединение с клиентом.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// DefaultSendBuffer — размер очереди исходящих сообщений клиента.
const DefaultSendBuffer = 64

// client — соединение сессии, его очередь записи и метаданные.
type client struct {
	conn      Conn
	send      chan Message
	done      chan struct{}
	closeOnce sync.Once
	meta      map[string]any
}

// enqueue ставит сообщение в очередь, не блокируясь.
// Переполненная очередь считается ошибкой отправки.
func (c *client) enqueue(msg Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Config — конфигурация Hub.
type Config struct {
	Logger *slog.Logger

	// SendBuffer — очередь исходящих сообщений на соединение.
	SendBuffer int

	// AllowedOrigins — origin, с которых разрешено подключение. "*" — любые.
	// Запросы без заголовка Origin пропускаются.
	AllowedOrigins []string
}

// Hub — реестр WebSocket-соединений сессий редактора.
type Hub struct {
	clients    map[string]*client
	mu         sync.RWMutex
	logger     *slog.Logger
	sendBuffer int
	upgrader   websocket.Upgrader
}

// NewHub создаёт Hub.
func NewHub(cfg Config) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	return &Hub{
		clients:    make(map[string]*client),
		logger:     logger,
		sendBuffer: cfg.SendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		},
	}
}

// Connect регистрирует соединение сессии. Прежнее соединение закрывается.
func (h *Hub) Connect(sessionID string, conn Conn) {
	h.connect(sessionID, conn)
}

func (h *Hub) connect(sessionID string, conn Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan Message, h.sendBuffer),
		done: make(chan struct{}),
		meta: map[string]any{
			"connected_at": float64(time.Now().UnixMilli()) / 1000,
			"step_count":   0,
			"recording":    false,
		},
	}

	h.mu.Lock()
	old, replaced := h.clients[sessionID]
	h.clients[sessionID] = c
	h.mu.Unlock()

	go h.writePump(sessionID, c)

	if replaced {
		old.close()
		h.logger.Info("websocket connection replaced", "session_id", sessionID)
	} else {
		telemetry.WSConnections.Inc()
		h.logger.Info("websocket connected", "session_id", sessionID)
	}
	return c
}

// Disconnect удаляет соединение и метаданные сессии.
// Возвращает false, если сессия не подключена.
func (h *Hub) Disconnect(sessionID string) bool {
	h.mu.Lock()
	c, ok := h.clients[sessionID]
	if ok {
		delete(h.clients, sessionID)
	}
	h.mu.Unlock()

	if !ok {
		return false
	}
	h.release(sessionID, c)
	return true
}

// disconnectClient удаляет соединение, только если оно всё ещё текущее.
func (h *Hub) disconnectClient(sessionID string, c *client) bool {
	h.mu.Lock()
	cur, ok := h.clients[sessionID]
	current := ok && cur == c
	if current {
		delete(h.clients, sessionID)
	}
	h.mu.Unlock()

	if current {
		h.release(sessionID, c)
	}
	return current
}

// writePump — единственный писатель в соединение клиента.
func (h *Hub) writePump(sessionID string, c *client) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.Warn("websocket write failed",
					"session_id", sessionID,
					"type", msg.Type,
					"error", err,
				)
				h.disconnectClient(sessionID, c)
				return
			}
		}
	}
}

func (h *Hub) release(sessionID string, c *client) {
	c.close()
	telemetry.WSConnections.Dec()
	h.logger.Info("websocket disconnected", "session_id", sessionID)
}

func (h *Hub) get(sessionID string) *client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[sessionID]
}

// Send ставит сообщение в очередь сессии. Переполнение очереди или
// ошибка записи отключают сессию.
func (h *Hub) Send(sessionID string, msg Message) bool {
	c := h.get(sessionID)
	if c == nil {
		return false
	}
	return h.send(sessionID, c, msg)
}

func (h *Hub) send(sessionID string, c *client, msg Message) bool {
	if !c.enqueue(msg) {
		h.logger.Warn("websocket send queue full",
			"session_id", sessionID,
			"type", msg.Type,
		)
		h.disconnectClient(sessionID, c)
		return false
	}
	return true
}

// Broadcast ставит сообщение в очереди всех сессий, кроме exclude.
// Возвращает количество принятых в очередь сообщений.
func (h *Hub) Broadcast(msg Message, exclude string) int {
	h.mu.RLock()
	targets := make(map[string]*client, len(h.clients))
	for id, c := range h.clients {
		if id != exclude {
			targets[id] = c
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for id, c := range targets {
		if h.send(id, c, msg) {
			delivered++
		}
	}
	return delivered
}

// HandleMessage обрабатывает входящее сообщение сессии.
func (h *Hub) HandleMessage(sessionID string, msg Message) {
	switch msg.Type {
	case TypePing:
		h.Send(sessionID, Message{Type: TypePong})

	case TypeUpdateStatus:
		h.updateMeta(sessionID, func(meta map[string]any) {
			for k, v := range msg.Data {
				meta[k] = v
			}
		})

	case TypeRecordingEvent:
		eventType, _ := msg.Data["event_type"].(string)
		switch eventType {
		case "start":
			h.updateMeta(sessionID, func(meta map[string]any) { meta["recording"] = true })
		case "stop":
			h.updateMeta(sessionID, func(meta map[string]any) { meta["recording"] = false })
		}

	case TypeRequestSnapshot:
		if url, _ := msg.Data["url"].(string); url != "" {
			h.Send(sessionID, Message{
				Type: TypeSnapshotRequested,
				Data: map[string]any{"url": url},
			})
		}

	default:
		h.logger.Debug("ignoring websocket message", "session_id", sessionID, "type", msg.Type)
	}
}

// NotifyStepsRecorded сообщает сессии о записанных шагах.
func (h *Hub) NotifyStepsRecorded(sessionID string, count, total int) bool {
	h.updateMeta(sessionID, func(meta map[string]any) {
		n, _ := domain.ToFloat(meta["step_count"])
		meta["step_count"] = int(n) + count
	})
	return h.Send(sessionID, Message{
		Type: TypeStepsRecorded,
		Data: map[string]any{
			"step_count":  count,
			"total_steps": total,
		},
	})
}

// Publish рассылает событие движка всем сессиям. Не ждёт записи в
// соединения.
func (h *Hub) Publish(_ context.Context, event domain.Event) {
	h.Broadcast(eventMessage(event), "")
}

// Metadata возвращает копию метаданных соединения.
func (h *Hub) Metadata(sessionID string) (map[string]any, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[sessionID]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(c.meta))
	for k, v := range c.meta {
		out[k] = v
	}
	return out, true
}

func (h *Hub) updateMeta(sessionID string, fn func(meta map[string]any)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[sessionID]; ok {
		fn(c.meta)
	}
}

// IsConnected проверяет, подключена ли сессия.
func (h *Hub) IsConnected(sessionID string) bool {
	return h.get(sessionID) != nil
}

// Sessions возвращает подключённые сессии по алфавиту.
func (h *Hub) Sessions() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len возвращает количество соединений.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close закрывает все соединения.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for id, c := range clients {
		h.release(id, c)
	}
}
