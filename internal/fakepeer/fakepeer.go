// Package fakepeer is a scripted JSONRPC server for tests and demos. It
// answers calls with registered handlers, keeps subscriptions and records
// everything it receives.
package fakepeer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/vipnode/asyncrpc/jsonrpc2"
	"github.com/vipnode/asyncrpc/transport"
)

// ErrNoReply makes a handler leave a call unanswered.
var ErrNoReply = errors.New("fakepeer: no reply")

type call struct {
	Method string
	Params string
}

type Calls []call

func Call(method string, params string) call {
	return call{method, params}
}

// Handler answers a call. An *jsonrpc2.ErrorObject error is sent as an error
// response, other errors as an internal error.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Peer serves one connection.
type Peer struct {
	conn transport.Conn

	mu       sync.Mutex
	handlers map[string]Handler
	after    map[string]func(ctx context.Context, result interface{})
	calls    Calls
	subs     map[string]string
	received chan struct{}
}

func New(conn transport.Conn) *Peer {
	return &Peer{
		conn:     conn,
		handlers: map[string]Handler{},
		after:    map[string]func(context.Context, interface{}){},
		calls:    Calls{},
		subs:     map[string]string{},
		received: make(chan struct{}, 1),
	}
}

// Pipe starts a peer on one end of an in-process connection and returns the
// other end.
func Pipe() (transport.Conn, *Peer) {
	c1, c2 := transport.Pipe()
	p := New(c2)
	go p.Serve()
	return c1, p
}

// Connector returns a connector that starts a new peer for every connection,
// configured by setup.
func Connector(setup func(*Peer)) transport.Connector {
	return transport.ConnectorFunc(func(ctx context.Context) (transport.Sender, transport.Receiver, error) {
		c1, c2 := transport.Pipe()
		p := New(c2)
		if setup != nil {
			setup(p)
		}
		go p.Serve()
		return c1, c1, nil
	})
}

func (p *Peer) Handle(method string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[method] = h
}

// HandleSubscribe serves subscribeMethod by opening a subscription whose
// notifications are named notifyMethod, and unsubscribeMethod by closing it.
// The initial results are published right after the subscribe response.
func (p *Peer) HandleSubscribe(subscribeMethod, notifyMethod, unsubscribeMethod string, initial ...interface{}) {
	p.Handle(subscribeMethod, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		id := "0x" + strings.Replace(uuid.New().String(), "-", "", -1)[:16]
		p.mu.Lock()
		p.subs[id] = notifyMethod
		p.mu.Unlock()
		return id, nil
	})
	p.mu.Lock()
	p.after[subscribeMethod] = func(ctx context.Context, result interface{}) {
		for _, v := range initial {
			p.Publish(ctx, result.(string), v)
		}
	}
	p.mu.Unlock()

	if unsubscribeMethod == "" {
		return
	}
	p.Handle(unsubscribeMethod, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var args []string
		if err := json.Unmarshal(params, &args); err != nil || len(args) != 1 {
			return nil, jsonrpc2.NewError(jsonrpc2.ErrCodeInvalidParams, "expected [subscription id]", nil)
		}
		p.mu.Lock()
		_, ok := p.subs[args[0]]
		delete(p.subs, args[0])
		p.mu.Unlock()
		return ok, nil
	})
}

// Subscriptions returns the ids of open subscriptions.
func (p *Peer) Subscriptions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	return ids
}

// Publish sends a subscription notification carrying result.
func (p *Peer) Publish(ctx context.Context, subscription string, result interface{}) error {
	return p.publish(ctx, subscription, "result", result)
}

// PublishError sends a subscription notification carrying an error.
func (p *Peer) PublishError(ctx context.Context, subscription string, data interface{}) error {
	return p.publish(ctx, subscription, "error", data)
}

func (p *Peer) publish(ctx context.Context, subscription string, field string, v interface{}) error {
	p.mu.Lock()
	method, ok := p.subs[subscription]
	p.mu.Unlock()
	if !ok {
		return errors.New("fakepeer: unknown subscription")
	}
	params, err := json.Marshal(map[string]interface{}{
		"subscription": subscription,
		field:          v,
	})
	if err != nil {
		return err
	}
	return p.send(ctx, jsonrpc2.NewNotification(method, params))
}

// Notify sends a plain notification.
func (p *Peer) Notify(ctx context.Context, method string, params interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return p.send(ctx, jsonrpc2.NewNotification(method, raw))
}

// SendRaw sends frame as is.
func (p *Peer) SendRaw(ctx context.Context, frame string) error {
	return p.conn.Send(ctx, []byte(frame))
}

func (p *Peer) send(ctx context.Context, v interface{}) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.conn.Send(ctx, frame)
}

// Calls returns a copy of the recorded calls and notifications.
func (p *Peer) Calls() Calls {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append(Calls{}, p.calls...)
}

// Received is signalled whenever a call or notification was recorded.
func (p *Peer) Received() <-chan struct{} {
	return p.received
}

func (p *Peer) record(msg jsonrpc2.Message) {
	p.mu.Lock()
	p.calls = append(p.calls, Call(msg.Method, string(msg.Params)))
	p.mu.Unlock()
	select {
	case p.received <- struct{}{}:
	default:
	}
}

// Serve answers calls until the connection closes.
func (p *Peer) Serve() error {
	for {
		frame, err := p.conn.Receive()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		msgs, batch, err := jsonrpc2.ParseMessages(frame)
		if err != nil {
			p.send(context.Background(), jsonrpc2.NewResponse(jsonrpc2.Failure[json.RawMessage](
				jsonrpc2.NewError(jsonrpc2.ErrCodeParse, err.Error(), nil)), jsonrpc2.NullID))
			continue
		}
		for _, msg := range msgs {
			p.record(msg)
		}
		if batch {
			go p.serveBatch(msgs)
			continue
		}
		if msgs[0].Kind == jsonrpc2.KindRequest {
			go p.serveRequest(msgs[0])
		}
	}
}

func (p *Peer) serveRequest(msg jsonrpc2.Message) {
	ctx := context.Background()
	resp, result, ok := p.handle(ctx, msg)
	if !ok {
		return
	}
	if err := p.send(ctx, resp); err != nil {
		return
	}
	p.mu.Lock()
	after := p.after[msg.Method]
	p.mu.Unlock()
	if after != nil && resp.Payload.IsSuccess() {
		after(ctx, result)
	}
}

func (p *Peer) serveBatch(msgs []jsonrpc2.Message) {
	ctx := context.Background()
	resps := []*jsonrpc2.Response[json.RawMessage]{}
	for _, msg := range msgs {
		if msg.Kind != jsonrpc2.KindRequest {
			continue
		}
		if resp, _, ok := p.handle(ctx, msg); ok {
			resps = append(resps, resp)
		}
	}
	if len(resps) == 0 {
		return
	}
	p.send(ctx, resps)
}

func (p *Peer) handle(ctx context.Context, msg jsonrpc2.Message) (*jsonrpc2.Response[json.RawMessage], interface{}, bool) {
	p.mu.Lock()
	h, ok := p.handlers[msg.Method]
	p.mu.Unlock()
	if !ok {
		errObj := jsonrpc2.NewError(jsonrpc2.ErrCodeMethodNotFound, "method not found", msg.Method)
		return jsonrpc2.NewResponse(jsonrpc2.Failure[json.RawMessage](errObj), msg.ID), nil, true
	}

	result, err := h(ctx, msg.Params)
	if err == ErrNoReply {
		return nil, nil, false
	}
	if err != nil {
		var errObj *jsonrpc2.ErrorObject
		if !errors.As(err, &errObj) {
			errObj = jsonrpc2.NewError(jsonrpc2.ErrCodeInternal, err.Error(), nil)
		}
		return jsonrpc2.NewResponse(jsonrpc2.Failure[json.RawMessage](errObj), msg.ID), nil, true
	}
	raw, err := json.Marshal(result)
	if err != nil {
		errObj := jsonrpc2.NewError(jsonrpc2.ErrCodeInternal, err.Error(), nil)
		return jsonrpc2.NewResponse(jsonrpc2.Failure[json.RawMessage](errObj), msg.ID), nil, true
	}
	return jsonrpc2.NewResponse(jsonrpc2.Success(json.RawMessage(raw)), msg.ID), result, true
}

// Close closes the connection.
func (p *Peer) Close() error {
	return p.conn.Close()
}
