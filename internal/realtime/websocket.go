// internal/realtime/websocket.go
package realtime

import (
	"net/http"
	"strings"
	"time"

	"notification-pipeline/internal/common/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Transport upgrades HTTP requests to websocket connections joined to a user room.
type Transport struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// NewTransport builds the /ws handler. An empty or "*" origin list accepts any origin.
func NewTransport(hub *Hub, allowedOrigins []string, log logger.Logger) *Transport {
	t := &Transport{hub: hub, logger: logger.Component(log, "realtime-transport")}
	t.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return t
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Debug("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	q := r.URL.Query()
	tenantID, appID, userID := q.Get("tenantId"), q.Get("appId"), q.Get("userId")
	if tenantID == "" || appID == "" || userID == "" {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "tenantId, appId and userId are required"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	room := Room(tenantID, appID, userID)
	c := &wsConn{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	t.hub.Join(room, c)
	t.logger.Debug("connection joined room", map[string]interface{}{"room": room})

	go c.writePump()
	c.readPump()

	t.hub.Leave(room, c)
	c.shutdown()
	t.logger.Debug("connection left room", map[string]interface{}{"room": room})
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

func (c *wsConn) Deliver(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *wsConn) shutdown() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// readPump discards client frames and returns when the connection drops.
func (c *wsConn) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
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

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
