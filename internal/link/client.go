package link

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"indlink/internal/model"
)

// ClientLink is the platform side of a link: it sends HELLO and bars and
// reads the server's replies. Used by the bar replay tool and in tests.
type ClientLink struct {
	conn     *packetConn
	blocking bool
	fields   []string
}

// Dial connects to url, sends hello and waits for the SIGNALS registration.
func Dial(ctx context.Context, url string, hello model.Hello) (*ClientLink, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("link: dial %s: %w", url, err)
	}
	ws.SetReadLimit(maxPacketSize)
	c := &ClientLink{conn: newPacketConn(ws, defaultWriteWait)}

	if err := c.conn.WritePacket(model.PacketHello, hello.Args()); err != nil {
		c.Close()
		return nil, fmt.Errorf("link: send HELLO: %w", err)
	}

	if dl, ok := ctx.Deadline(); ok {
		ws.SetReadDeadline(dl)
	}
	p, err := c.conn.readPacket()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("link: await SIGNALS: %w", err)
	}
	ws.SetReadDeadline(time.Time{})

	switch p.Command {
	case model.PacketSignals:
	case model.PacketError:
		c.Close()
		return nil, fmt.Errorf("%w: %s", ErrHandshake, p.Arg(0))
	default:
		c.Close()
		return nil, fmt.Errorf("link: expected %s, got %s", model.PacketSignals, p.Command)
	}
	c.blocking = p.Arg(0) == "1"
	if len(p.Args) > 1 {
		c.fields = append([]string(nil), p.Args[1:]...)
	}
	return c, nil
}

// Blocking reports whether the server replies to every bar.
func (c *ClientLink) Blocking() bool { return c.blocking }

// Fields returns the field specs the server registered, in packet order.
func (c *ClientLink) Fields() []string { return c.fields }

// SendBar sends one BAR packet.
func (c *ClientLink) SendBar(when int64, instrument string, values []string) error {
	args := make([]string, 0, 2+len(values))
	args = append(args, strconv.FormatInt(when, 10), instrument)
	args = append(args, values...)
	return c.conn.WritePacket(model.PacketBar, args)
}

// ReadPacket blocks for the next server packet.
func (c *ClientLink) ReadPacket() (*model.Packet, error) {
	return c.conn.readPacket()
}

// SetReadDeadline bounds the next ReadPacket.
func (c *ClientLink) SetReadDeadline(t time.Time) error {
	return c.conn.ws.SetReadDeadline(t)
}

// Goodbye ends the session and closes the connection.
func (c *ClientLink) Goodbye() error {
	err := c.conn.WritePacket(model.PacketGoodbye, nil)
	c.Close()
	return err
}

// Close closes the connection without GOODBYE.
func (c *ClientLink) Close() {
	c.conn.close(websocket.CloseNormalClosure, "")
}
