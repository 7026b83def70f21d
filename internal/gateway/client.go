package gateway

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akarczewski/go-msgbroker/internal/broker"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Client bridges one websocket connection to a broker mailbox. Everything the
// broker drops into the mailbox goes out as JSON; every JSON frame the peer
// sends becomes a broker request stamped with the mailbox id.
type Client struct {
	conn    *websocket.Conn
	broker  *broker.Broker
	log     *log.Logger
	session string
	mailbox int64
	recv    <-chan *broker.ServerMessage
	// local holds responses generated by the gateway itself, such as
	// rejections for frames that never reached the broker.
	local chan *broker.ServerMessage
	stop  chan struct{}
}

func NewClient(conn *websocket.Conn, b *broker.Broker, l *log.Logger, session string, mailbox int64, recv <-chan *broker.ServerMessage) *Client {
	return &Client{
		conn:    conn,
		broker:  b,
		log:     l,
		session: session,
		mailbox: mailbox,
		recv:    recv,
		local:   make(chan *broker.ServerMessage, 8),
		stop:    make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("[%s] write exiting", c.session)
	}()

	for {
		select {
		case msg := <-c.recv:
			if !c.writeJSON(msg) {
				return
			}
		case msg := <-c.local:
			if !c.writeJSON(msg) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
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
		c.log.Printf("[%s] read exiting", c.session)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("[%s] ws: read: %v", c.session, err)
			}
			break
		}

		var req broker.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			c.log.Printf("[%s] error parsing request: %v", c.session, err)
			c.queueLocal(broker.FailResponse(broker.TextBadRequest))
			continue
		}

		// the mailbox always comes from the connection, never the payload
		req.Mailbox = c.mailbox

		if !c.broker.Submit(&req) {
			c.queueLocal(broker.FailResponse(broker.TextBusy))
		}
	}
}

func (c *Client) queueLocal(msg *broker.ServerMessage) {
	select {
	case c.local <- msg:
	default:
		c.log.Printf("[%s] local queue full, dropping response", c.session)
	}
}

func (c *Client) writeJSON(msg *broker.ServerMessage) bool {
	bytes, err := json.Marshal(msg)
	if err != nil {
		c.log.Printf("[%s] failed to serialize message: %v", c.session, err)
		return true
	}

	return c.sendMessage(websocket.TextMessage, bytes)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("[%s] write message: %s", c.session, err)
		}
		return false
	}

	return true
}

// cleanup logs the user out and releases the mailbox once the connection is
// gone. The logout is best effort: a saturated broker simply loses it.
func (c *Client) cleanup() {
	if !c.broker.Submit(&broker.Request{Mailbox: c.mailbox, Logout: &broker.Logout{}}) {
		c.log.Printf("[%s] could not enqueue logout for mailbox %d", c.session, c.mailbox)
	}
	c.broker.Directory().Deregister(c.mailbox)
	close(c.stop)
}
