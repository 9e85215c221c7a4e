package client

import (
	"context"
	"time"

	"github.com/vipnode/asyncrpc/jsonrpc2"
	"github.com/vipnode/asyncrpc/middleware"
	"github.com/vipnode/asyncrpc/transport"
)

const (
	DefaultMaxConcurrentRequests = 256
	DefaultMaxBufferCapacity     = 1024
	DefaultRequestTimeout        = 60 * time.Second
)

// Builder configures a Client. Configuration is fixed once the client is
// built. Each option returns a modified copy.
type Builder struct {
	cfg        config
	middleware middleware.RPCBuilder
}

// NewBuilder returns a builder with the defaults: number ids, 256 concurrent
// requests, 1024 buffered notifications per subscription, a 60 second request
// timeout, the default logging layer, waiting admission and closing
// subscriptions on overflow.
func NewBuilder() Builder {
	return Builder{
		cfg: config{
			idKind:         jsonrpc2.IDKindNumber,
			maxConcurrent:  DefaultMaxConcurrentRequests,
			bufferCapacity: DefaultMaxBufferCapacity,
			timeout:        DefaultRequestTimeout,
			admission:      AdmissionWait,
			overflow:       OverflowClose,
		},
		middleware: middleware.DefaultRPCBuilder(),
	}
}

// IDFormat sets how request ids are encoded.
func (b Builder) IDFormat(kind jsonrpc2.IDKind) Builder {
	b.cfg.idKind = kind
	return b
}

// MaxConcurrentRequests caps the number of calls in flight. A batch counts as
// one call.
func (b Builder) MaxConcurrentRequests(n int) Builder {
	b.cfg.maxConcurrent = n
	return b
}

// MaxBufferCapacityPerSubscription bounds each subscription queue.
func (b Builder) MaxBufferCapacityPerSubscription(n int) Builder {
	b.cfg.bufferCapacity = n
	return b
}

// RequestTimeout sets the deadline of every call. Zero disables it.
func (b Builder) RequestTimeout(d time.Duration) Builder {
	b.cfg.timeout = d
	return b
}

// SetRPCMiddleware replaces the layers around the core.
func (b Builder) SetRPCMiddleware(m middleware.RPCBuilder) Builder {
	b.middleware = m
	return b
}

func (b Builder) AdmissionPolicy(p AdmissionPolicy) Builder {
	b.cfg.admission = p
	return b
}

func (b Builder) OverflowPolicy(p OverflowPolicy) Builder {
	b.cfg.overflow = p
	return b
}

// ProtocolErrorHandler is called with every *jsonrpc2.DecodeError and
// *DuplicateResponseError. It runs on the dispatcher and must not block.
func (b Builder) ProtocolErrorHandler(fn func(error)) Builder {
	b.cfg.onProtocolError = fn
	return b
}

// Build connects and returns the client.
func (b Builder) Build(ctx context.Context, connector transport.Connector) (*Client, error) {
	sender, receiver, err := transport.Dial(ctx, connector)
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}
	return b.BuildWithTransport(sender, receiver), nil
}

// BuildWithTransport returns a client over an established connection.
func (b Builder) BuildWithTransport(sender transport.Sender, receiver transport.Receiver) *Client {
	remote := newRemote(sender, receiver, b.cfg)
	return &Client{
		remote:  remote,
		service: b.middleware.Service(remote),
	}
}
