package transport

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

var _ Sender = &StreamConn{}
var _ Receiver = &StreamConn{}

// StreamConn frames JSON values over a byte stream such as a TCP or unix
// socket. Outbound frames are newline terminated; inbound frames are split
// by a JSON decoder, so any whitespace separation is accepted.
type StreamConn struct {
	dec *json.Decoder

	// wmu is a lock that can be given up when the sender's context ends.
	wmu *semaphore.Weighted
	rwc io.ReadWriteCloser

	closeOnce sync.Once
	closed    chan struct{}
}

// Stream returns a transport over rwc.
func Stream(rwc io.ReadWriteCloser) *StreamConn {
	return &StreamConn{
		dec:    json.NewDecoder(rwc),
		wmu:    semaphore.NewWeighted(1),
		rwc:    rwc,
		closed: make(chan struct{}),
	}
}

// Pipe returns both ends of an in-process synchronous connection. Useful for
// testing.
func Pipe() (*StreamConn, *StreamConn) {
	c1, c2 := net.Pipe()
	return Stream(c1), Stream(c2)
}

// Send writes frame followed by a newline. On a net.Conn a blocked write is
// aborted when ctx ends; an abort before any byte went out returns ctx.Err().
func (c *StreamConn) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	if err := c.wmu.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.wmu.Release(1)
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')

	conn, ok := c.rwc.(net.Conn)
	if !ok {
		_, err := c.rwc.Write(buf)
		return err
	}
	// Clear whatever an earlier abort left behind.
	if err := conn.SetWriteDeadline(time.Time{}); err != nil {
		return err
	}
	stop := AbortWrite(ctx, conn)
	n, err := conn.Write(buf)
	if aborted := stop(); aborted && err != nil && n == 0 {
		return ctx.Err()
	}
	return err
}

func (c *StreamConn) Receive() ([]byte, error) {
	var raw json.RawMessage
	if err := c.dec.Decode(&raw); err != nil {
		select {
		case <-c.closed:
			return nil, io.EOF
		default:
		}
		return nil, err
	}
	return raw, nil
}

func (c *StreamConn) Close() error {
	err := ErrClosed
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.rwc.Close()
	})
	return err
}

// NetDialer connects to a stream socket, for example a node's IPC path with
// Network "unix".
type NetDialer struct {
	Network string
	Address string
	Timeout time.Duration
}

func (d NetDialer) Connect(ctx context.Context) (Sender, Receiver, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, d.Network, d.Address)
	if err != nil {
		return nil, nil, err
	}
	s := Stream(conn)
	return s, s, nil
}
