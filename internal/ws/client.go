package ws

import (
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// MaxFrameBytes caps a single inbound frame.
	MaxFrameBytes = 16 << 10

	sendBuffer = 256
)

// Client is one WebSocket connection bound to a single scene.
type Client struct {
	UserID  string
	SceneID string
	Send    chan []byte
	Conn    *websocket.Conn
}

func NewClient(conn *websocket.Conn, userID, sceneID string) *Client {
	return &Client{
		UserID:  userID,
		SceneID: sceneID,
		Send:    make(chan []byte, sendBuffer),
		Conn:    conn,
	}
}

// ReadPump reads text frames and passes them to handle until the socket
// closes or handle returns false. It owns the read side of the connection.
func (c *Client) ReadPump(handle func(data []byte) bool) {
	c.Conn.SetReadLimit(MaxFrameBytes)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Printf("[WS] Read error for client %s in scene %s: %v", c.UserID, c.SceneID, err)
			}
			return
		}
		if !handle(message) {
			return
		}
	}
}

// WritePump writes queued frames and keepalive pings until Send is closed.
// It owns the write side of the connection and closes it on exit.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] Write error for client %s in scene %s: %v", c.UserID, c.SceneID, err)
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// CloseWithReason sends a close frame and closes the socket.
func (c *Client) CloseWithReason(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = c.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = c.Conn.Close()
}
