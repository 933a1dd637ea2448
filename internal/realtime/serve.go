package realtime

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// checkOrigin пропускает запросы без Origin и origin из списка.
func checkOrigin(origins []string) func(r *http.Request) bool {
	allowAll := slices.Contains(origins, "*")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowAll || slices.Contains(origins, origin)
	}
}

// wsConn выставляет дедлайн на каждую запись.
type wsConn struct {
	*websocket.Conn
}

func (c wsConn) WriteJSON(v any) error {
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteJSON(v)
}

// Serve переводит запрос в WebSocket и обслуживает канал сессии до
// разрыва соединения.
//
// Клиент сразу получает connected и session_status, затем сообщения
// клиента передаются в HandleMessage.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) error {
	if sessionID == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return errors.New("empty session id")
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}

	c := h.connect(sessionID, wsConn{ws})
	defer h.disconnectClient(sessionID, c)

	if !h.send(sessionID, c, Message{
		Type: TypeConnected,
		Data: map[string]any{"session_id": sessionID},
	}) {
		return nil
	}

	meta, _ := h.Metadata(sessionID)
	if !h.send(sessionID, c, Message{Type: TypeSessionStatus, Data: meta}) {
		return nil
	}

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed", "session_id", sessionID, "error", err)
			}
			return nil
		}
		h.HandleMessage(sessionID, msg)
	}
}
