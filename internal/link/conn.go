package link

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"indlink/internal/model"
)

const (
	defaultWriteWait    = 10 * time.Second
	defaultPongWait     = 60 * time.Second
	defaultPingInterval = 30 * time.Second
	maxPacketSize       = 64 * 1024
)

var errConnClosed = errors.New("link: connection closed")

// packetConn wraps a websocket with a write lock so that session replies
// and keepalive pings never interleave. Writes are synchronous: a reply has
// left the process when WritePacket returns.
type packetConn struct {
	ws        *websocket.Conn
	writeWait time.Duration

	wmu    sync.Mutex
	closed bool
}

var _ model.PacketWriter = (*packetConn)(nil)

func newPacketConn(ws *websocket.Conn, writeWait time.Duration) *packetConn {
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	return &packetConn{ws: ws, writeWait: writeWait}
}

// WritePacket sends one packet as one text message.
func (c *packetConn) WritePacket(command string, args []string) error {
	return c.write(websocket.TextMessage, EncodePacket(command, args))
}

func (c *packetConn) ping() error {
	return c.write(websocket.PingMessage, nil)
}

func (c *packetConn) write(kind int, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.closed {
		return errConnClosed
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.ws.WriteMessage(kind, data)
}

// readPacket blocks for the next message and decodes it. Decode failures
// are returned as *decodeError so callers can keep the connection open.
func (c *packetConn) readPacket() (*model.Packet, error) {
	kind, msg, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	if kind != websocket.TextMessage {
		return nil, &decodeError{err: errors.New("link: binary message")}
	}
	p, err := DecodePacket(msg)
	if err != nil {
		return nil, &decodeError{err: err}
	}
	return p, nil
}

// keepalive pings until stop is closed or a ping fails.
func (c *packetConn) keepalive(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// close sends a close frame and releases the socket. Safe to call twice.
func (c *packetConn) close(code int, reason string) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	c.ws.Close()
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }
