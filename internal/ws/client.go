package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	errClientClosed = errors.New("client closed")
	errClientSlow   = errors.New("client send buffer full")
)

// client adapts one gorilla connection to the session.Transport interface:
// a buffered send channel drained by a single writePump goroutine, so Send
// is safe from any dispatch task and a slow reader is disconnected instead
// of blocking the whole session.
type client struct {
	conn         *websocket.Conn
	send         chan []byte
	log          zerolog.Logger
	writeTimeout time.Duration
	pingInterval time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn, sendBuffer int, writeTimeout, pingInterval time.Duration, log zerolog.Logger) *client {
	c := &client{
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		log:          log,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		done:         make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send implements session.Transport. It never blocks: a full buffer means
// the client cannot keep up and gets disconnected.
func (c *client) Send(b []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		c.log.Warn().Msg("client too slow, disconnecting")
		c.Close()
		return errClientSlow
	}
}

// Close implements session.Transport. It only signals: the writePump
// flushes queued frames, sends the close frame, and tears the connection
// down, which also unblocks the read loop.
func (c *client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// writePump is the single writer on the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg := <-c.send:
			if !c.write(websocket.TextMessage, msg) {
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}
		case <-c.done:
			// Flush whatever was queued before the close signal. The auth
			// denial verdict arrives this way.
			for {
				select {
				case msg := <-c.send:
					if !c.write(websocket.TextMessage, msg) {
						return
					}
				default:
					deadline := time.Now().Add(c.writeTimeout)
					_ = c.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
					return
				}
			}
		}
	}
}

func (c *client) write(messageType int, payload []byte) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(messageType, payload); err != nil {
		c.Close()
		return false
	}
	return true
}
