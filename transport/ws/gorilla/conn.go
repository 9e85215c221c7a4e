// Websocket transport using Gorilla's Websocket library
package gorilla

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vipnode/asyncrpc/transport"
	"github.com/vipnode/asyncrpc/transport/ws"
	"golang.org/x/sync/semaphore"
)

// Dialer connects to a websocket endpoint.
type Dialer struct {
	URL    string
	Header http.Header
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

func (d Dialer) Connect(ctx context.Context) (transport.Sender, transport.Receiver, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, nil, err
	}
	c := NewConn(conn)
	return c, c, nil
}

var _ transport.Conn = &Conn{}

// Conn sends each frame as a single text message.
type Conn struct {
	muWrite *semaphore.Weighted
	conn    *websocket.Conn

	closeOnce sync.Once
	closed    chan struct{}
}

func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{
		muWrite: semaphore.NewWeighted(1),
		conn:    conn,
		closed:  make(chan struct{}),
	}
}

// Send aborts a blocked write once ctx ends. An aborted write breaks the
// websocket, so the connection has to be closed afterwards.
func (c *Conn) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}
	if err := c.muWrite.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.muWrite.Release(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Time{}); err != nil {
		return err
	}
	stop := transport.AbortWrite(ctx, c.conn.UnderlyingConn())
	err := c.conn.WriteMessage(websocket.TextMessage, frame)
	stop()
	return err
}

func (c *Conn) Receive() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return nil, io.EOF
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Close sends a close message to the peer before closing the connection.
func (c *Conn) Close() error {
	err := transport.ErrClosed
	c.closeOnce.Do(func() {
		close(c.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

var _ ws.Upgrader = &Upgrader{}

// Upgrader upgrades an HTTP request to a websocket connection.
type Upgrader struct {
	Upgrader websocket.Upgrader
}

func (u *Upgrader) Upgrade(r *http.Request, w http.ResponseWriter, h http.Header) (transport.Conn, error) {
	conn, err := u.Upgrader.Upgrade(w, r, h)
	if err != nil {
		return nil, err
	}
	return NewConn(conn), nil
}
