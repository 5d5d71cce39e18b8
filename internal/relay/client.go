package relay

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	maxFrameSize = 4096
)

// Client is one authenticated websocket connection. userId and projectId
// are bound by the gateway before registration and never change.
type Client struct {
	conn      *websocket.Conn
	rs        *RelayServer
	log       *log.Logger
	sessionId string
	userId    string
	projectId string
	room      *Room
	send      chan []byte
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewClient(userId, projectId string, conn *websocket.Conn, rs *RelayServer, l *log.Logger) *Client {
	return &Client{
		conn:      conn,
		rs:        rs,
		log:       l,
		sessionId: uuid.NewString(),
		userId:    userId,
		projectId: projectId,
		send:      make(chan []byte, 256),
		stop:      make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("session %s: write exiting", c.sessionId)
	}()

	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return
			}

			if !c.sendMessage(websocket.TextMessage, raw) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Printf("session %s: read exiting", c.sessionId)
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		// A bad frame never terminates the session; it is logged and
		// dropped, and the next frame is read as usual.
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.Printf("session %s: dropping unparseable frame: %v", c.sessionId, err)
			continue
		}

		if !frame.Type.Valid() {
			c.log.Printf("session %s: dropping frame with unknown type %q", c.sessionId, frame.Type)
			continue
		}

		if frame.ProjectId != c.projectId {
			c.log.Printf("session %s: dropping frame for project %q, connection is bound to %q",
				c.sessionId, frame.ProjectId, c.projectId)
			continue
		}

		frame.client = c
		select {
		case c.room.frameChan <- &frame:
		default:
			c.log.Printf("frame channel full on room %q, dropping %s frame", c.projectId, frame.Type)
		}
	}
}

// queueEvent enqueues a pre-serialized event for delivery. Events for a
// stopped connection or a full send queue are dropped, never an error.
func (c *Client) queueEvent(raw []byte) bool {
	select {
	case <-c.stop:
		return false
	default:
	}

	select {
	case c.send <- raw:
		return true
	default:
		c.log.Printf("session %s: send queue full, dropping event", c.sessionId)
		return false
	}
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// cleanup removes the connection from its room. When the room already
// stopped this client (room exit), the leave is skipped.
func (c *Client) cleanup() {
	select {
	case c.room.leaveChan <- c:
	case <-c.stop:
	}
	c.stopClient()
}
