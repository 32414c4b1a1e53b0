package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cuappdev/clicker-backend/internal/models"
)

const writeWait = 10 * time.Second

// Client is one websocket connection attached to a group's channel, already
// resolved to a user and role.
type Client struct {
	ID     string
	UserID string
	Role   models.Role
	Conn   *websocket.Conn

	mu     sync.Mutex
	hook   func(models.WSFrame)
	closed bool
}

func NewClient(conn *websocket.Conn, userID string, role models.Role) *Client {
	return &Client{ID: uuid.NewString(), UserID: userID, Role: role, Conn: conn}
}

// SetSendHook replaces the default WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func(models.WSFrame)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

func (c *Client) IsAdmin() bool { return c.Role == models.RoleAdmin }

func (c *Client) Send(frame models.WSFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.hook != nil {
		c.hook(frame)
		return
	}
	if c.Conn == nil {
		return
	}
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.Conn.WriteJSON(frame)
}

// Close shuts the underlying connection. Further sends are dropped.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.Conn != nil {
		_ = c.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
			time.Now().Add(writeWait))
		_ = c.Conn.Close()
	}
}

func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
