// Package transport is the contract between the client core and whatever
// carries its bytes. A transport is an already negotiated duplex: a Sender
// for outbound frames and a Receiver yielding inbound frames until the
// connection closes. Each frame is one JSONRPC message or batch.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send after the transport was closed.
var ErrClosed = errors.New("transport: closed")

// Sender writes frames. It must be safe for concurrent use.
type Sender interface {
	// Send returns once frame was written or ctx is done. If ctx ends before
	// any byte was written, Send returns ctx.Err() itself and the connection
	// stays usable. Any other error leaves the stream in an unknown state.
	Send(ctx context.Context, frame []byte) error
	// Close closes the connection, which also ends the Receiver.
	Close() error
}

// Receiver reads frames. Only one goroutine reads at a time. Receive returns
// io.EOF once the connection was closed in an orderly way.
type Receiver interface {
	Receive() ([]byte, error)
}

// Connector establishes a connection.
type Connector interface {
	Connect(ctx context.Context) (Sender, Receiver, error)
}

// ConnectorFunc adapts a function into a Connector.
type ConnectorFunc func(ctx context.Context) (Sender, Receiver, error)

func (fn ConnectorFunc) Connect(ctx context.Context) (Sender, Receiver, error) {
	return fn(ctx)
}

// Conn is a connection that both sends and receives, as most transports do.
type Conn interface {
	Sender
	Receiver
}

// Dial connects using connector and checks that both endpoints exist.
func Dial(ctx context.Context, connector Connector) (Sender, Receiver, error) {
	sender, receiver, err := connector.Connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	if sender == nil || receiver == nil {
		return nil, nil, errors.New("transport: connector returned a nil endpoint")
	}
	return sender, receiver, nil
}
