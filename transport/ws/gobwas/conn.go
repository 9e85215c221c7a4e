package gobwas

import (
	"context"
	"errors"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/vipnode/asyncrpc/transport"
	wsupgrader "github.com/vipnode/asyncrpc/transport/ws"
	"golang.org/x/sync/semaphore"
)

// Dialer connects to a websocket endpoint.
type Dialer struct {
	URL string
}

func (d Dialer) Connect(ctx context.Context) (transport.Sender, transport.Receiver, error) {
	conn, br, _, err := ws.Dial(ctx, d.URL)
	if err != nil {
		return nil, nil, err
	}
	var src io.Reader = conn
	if br != nil {
		// The server already sent frames along with the handshake.
		src = br
	}
	c := newConn(conn, src, ws.StateClientSide)
	return c, c, nil
}

var _ transport.Conn = &Conn{}

// Conn sends each frame as a single text message.
type Conn struct {
	conn net.Conn
	r    *wsutil.Reader
	// control answers pings and close frames, writing through the same lock
	// as Send.
	control wsutil.FrameHandlerFunc

	muWrite *semaphore.Weighted
	w       *wsutil.Writer

	closeOnce sync.Once
	closed    chan struct{}
}

type lockedWriter struct {
	mu *semaphore.Weighted
	w  io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	if err := l.mu.Acquire(context.Background(), 1); err != nil {
		return 0, err
	}
	defer l.mu.Release(1)
	return l.w.Write(p)
}

func newConn(conn net.Conn, src io.Reader, state ws.State) *Conn {
	c := &Conn{
		conn:    conn,
		r:       wsutil.NewReader(src, state),
		muWrite: semaphore.NewWeighted(1),
		w:       wsutil.NewWriter(conn, state, ws.OpText),
		closed:  make(chan struct{}),
	}
	c.control = wsutil.ControlFrameHandler(lockedWriter{c.muWrite, conn}, state)
	c.r.OnIntermediate = c.control
	return c
}

// Send aborts a blocked write once ctx ends. An aborted write may leave a
// partial frame behind, so the connection has to be closed afterwards.
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
	stop := transport.AbortWrite(ctx, c.conn)
	defer stop()
	if _, err := c.w.Write(frame); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *Conn) Receive() ([]byte, error) {
	data, err := c.receive()
	if err == nil {
		return data, nil
	}
	select {
	case <-c.closed:
		return nil, io.EOF
	default:
	}
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		return nil, io.EOF
	}
	return nil, err
}

func (c *Conn) receive() ([]byte, error) {
	for {
		hdr, err := c.r.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := c.control(hdr, c.r); err != nil {
				return nil, err
			}
			continue
		}
		return ioutil.ReadAll(c.r)
	}
}

func (c *Conn) Close() error {
	err := transport.ErrClosed
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

var _ wsupgrader.Upgrader = &Upgrader{}

// Upgrader upgrades an HTTP request to a websocket connection.
type Upgrader struct {
	Upgrader ws.HTTPUpgrader
}

func (u *Upgrader) Upgrade(r *http.Request, w http.ResponseWriter, h http.Header) (transport.Conn, error) {
	conn, rw, _, err := u.Upgrader.Upgrade(r, w)
	if err != nil {
		return nil, err
	}
	var src io.Reader = conn
	if rw != nil {
		src = rw.Reader
	}
	return newConn(conn, src, ws.StateServerSide), nil
}
