package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vipnode/asyncrpc/jsonrpc2"
	"github.com/vipnode/asyncrpc/middleware"
	"github.com/vipnode/asyncrpc/transport"
	"golang.org/x/sync/semaphore"
)

// AdmissionPolicy decides what happens to a call while every request slot is
// taken.
type AdmissionPolicy int

const (
	// AdmissionWait suspends the caller until a slot frees up or its context
	// is done.
	AdmissionWait AdmissionPolicy = iota
	// AdmissionReject fails the call with ErrMaxConcurrentRequests.
	AdmissionReject
)

func (p AdmissionPolicy) String() string {
	if p == AdmissionReject {
		return "reject"
	}
	return "wait"
}

// ParseAdmissionPolicy parses the String form of a policy.
func ParseAdmissionPolicy(s string) (AdmissionPolicy, error) {
	switch strings.ToLower(s) {
	case "wait", "":
		return AdmissionWait, nil
	case "reject":
		return AdmissionReject, nil
	}
	return AdmissionWait, fmt.Errorf("unknown admission policy: %q", s)
}

type config struct {
	idKind          jsonrpc2.IDKind
	maxConcurrent   int
	bufferCapacity  int
	timeout         time.Duration
	admission       AdmissionPolicy
	overflow        OverflowPolicy
	onProtocolError func(error)
}

// subscribeRequest marks a request whose response opens a subscription.
type subscribeRequest struct {
	unsubscribeMethod string
}

type command interface{}

type registerCmd struct {
	call *pendingCall
}

type cancelCmd struct {
	call *pendingCall
	err  error
}

type subscribeMethodCmd struct {
	sub   *Subscription
	reply chan error
}

type forgetCmd struct {
	sub *Subscription
}

type statsCmd struct {
	reply chan Stats
}

// Stats is a snapshot of the state owned by the dispatcher.
type Stats struct {
	// Pending is the number of request ids waiting for a response.
	Pending int
	// Subscriptions is the number of open subscriptions, including method
	// subscriptions.
	Subscriptions int
}

var _ middleware.RPCService = &Remote{}

// Remote is the core of the client: it owns one connection and multiplexes
// calls, batches, notifications and subscriptions over it.
//
// A single reader goroutine drains the transport and hands frames to a single
// dispatcher goroutine, which owns the pending table and the subscriptions.
// Callers only talk to the dispatcher through its mailbox. A call is
// registered with the dispatcher before its request is sent, so a response
// can never overtake its waiter.
type Remote struct {
	sender   transport.Sender
	receiver transport.Receiver
	cfg      config

	nextID uint64
	slots  *semaphore.Weighted

	mailbox chan command
	frames  chan []byte
	stop    chan error
	done    chan struct{}
	// err is the close reason and final is the dispatcher state left by
	// teardown. Both are set before done is closed.
	err   error
	final Stats
}

func newRemote(sender transport.Sender, receiver transport.Receiver, cfg config) *Remote {
	if cfg.maxConcurrent < 1 {
		cfg.maxConcurrent = 1
	}
	r := &Remote{
		sender:   sender,
		receiver: receiver,
		cfg:      cfg,
		slots:    semaphore.NewWeighted(int64(cfg.maxConcurrent)),
		mailbox:  make(chan command),
		frames:   make(chan []byte),
		stop:     make(chan error, 1),
		done:     make(chan struct{}),
	}
	go r.readLoop()
	go r.dispatch()
	return r
}

// Call sends req and resolves with its response. The request id is assigned
// here; req.ID is ignored.
func (r *Remote) Call(ctx context.Context, req *jsonrpc2.Request) middleware.Future[middleware.MethodResult] {
	return middleware.Go(func() middleware.MethodResult {
		return r.call(ctx, req)
	})
}

// Batch sends every entry as one frame. The batch takes a single request
// slot.
func (r *Remote) Batch(ctx context.Context, batch jsonrpc2.Batch) middleware.Future[middleware.BatchResult] {
	return middleware.Go(func() middleware.BatchResult {
		return r.batch(ctx, batch)
	})
}

// Notify sends n without waiting for anything but the transport.
func (r *Remote) Notify(ctx context.Context, n *jsonrpc2.Notification) middleware.Future[error] {
	return middleware.Go(func() error {
		if err := r.closed(); err != nil {
			return err
		}
		out := *n
		if out.Version == nil {
			out.Version = jsonrpc2.V2()
		}
		frame, err := json.Marshal(&out)
		if err != nil {
			return err
		}
		ctx, cancel := r.withTimeout(ctx)
		defer cancel()
		broken, err := r.write(ctx, frame)
		if broken != nil {
			r.shutdown(broken)
		}
		return err
	})
}

func (r *Remote) call(ctx context.Context, req *jsonrpc2.Request) middleware.MethodResult {
	if err := r.acquire(ctx); err != nil {
		return middleware.MethodResult{Err: err}
	}
	defer r.slots.Release(1)

	out := *req
	out.ID = r.allocID()
	frame, err := json.Marshal(&out)
	if err != nil {
		return middleware.MethodResult{Err: err}
	}

	call := newPendingCall([]jsonrpc2.ID{out.ID}, false)
	if sub, ok := jsonrpc2.GetExtension[subscribeRequest](req.Extensions); ok {
		call.subscribe = &sub
	}
	res := r.roundTrip(ctx, call, frame)
	if res.err != nil {
		return middleware.MethodResult{Err: res.err}
	}
	result := res.results[0]
	if res.sub != nil {
		jsonrpc2.SetExtension(&result.Response.Extensions, res.sub)
	}
	return result
}

func (r *Remote) batch(ctx context.Context, batch jsonrpc2.Batch) middleware.BatchResult {
	if len(batch) == 0 {
		return middleware.BatchResult{Err: errors.New("empty batch")}
	}
	requests := batch.Requests()
	if requests == 0 {
		// Only notifications: nothing to wait for.
		if err := r.closed(); err != nil {
			return middleware.BatchResult{Err: err}
		}
		frame, err := r.encodeBatch(batch, nil)
		if err != nil {
			return middleware.BatchResult{Err: err}
		}
		ctx, cancel := r.withTimeout(ctx)
		defer cancel()
		broken, err := r.write(ctx, frame)
		if broken != nil {
			r.shutdown(broken)
		}
		return middleware.BatchResult{Err: err}
	}

	if err := r.acquire(ctx); err != nil {
		return middleware.BatchResult{Err: err}
	}
	defer r.slots.Release(1)

	ids := make([]jsonrpc2.ID, requests)
	for i := range ids {
		ids[i] = r.allocID()
	}
	frame, err := r.encodeBatch(batch, ids)
	if err != nil {
		return middleware.BatchResult{Err: err}
	}
	res := r.roundTrip(ctx, newPendingCall(ids, true), frame)
	return middleware.BatchResult{Responses: res.results, Err: res.err}
}

func (r *Remote) encodeBatch(batch jsonrpc2.Batch, ids []jsonrpc2.ID) ([]byte, error) {
	out := make(jsonrpc2.Batch, len(batch))
	for i, e := range batch {
		switch {
		case e.Request != nil:
			req := *e.Request
			req.ID, ids = ids[0], ids[1:]
			out[i] = jsonrpc2.BatchEntry{Request: &req}
		case e.Notification != nil:
			n := *e.Notification
			if n.Version == nil {
				n.Version = jsonrpc2.V2()
			}
			out[i] = jsonrpc2.BatchEntry{Notification: &n}
		default:
			return nil, fmt.Errorf("batch entry %d is empty", i)
		}
	}
	return json.Marshal(out)
}

func (r *Remote) allocID() jsonrpc2.ID {
	return r.cfg.idKind.ID(atomic.AddUint64(&r.nextID, 1) - 1)
}

func (r *Remote) acquire(ctx context.Context) error {
	if err := r.closed(); err != nil {
		return err
	}
	if r.cfg.admission == AdmissionReject {
		if !r.slots.TryAcquire(1) {
			return ErrMaxConcurrentRequests
		}
		return nil
	}
	return r.slots.Acquire(ctx, 1)
}

// withTimeout bounds ctx by the request timeout. Once the timeout fires,
// context.Cause of the returned context is ErrRequestTimeout.
func (r *Remote) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.timeout > 0 {
		return context.WithTimeoutCause(ctx, r.cfg.timeout, ErrRequestTimeout)
	}
	return context.WithCancel(ctx)
}

// roundTrip registers call, sends frame and waits until call is resolved. The
// result always comes from the dispatcher, so a call resolves exactly once.
// The request timeout covers the send as well as the wait for a response.
func (r *Remote) roundTrip(ctx context.Context, call *pendingCall, frame []byte) callResult {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if !r.send(registerCmd{call}) {
		return callResult{err: r.closed()}
	}
	if broken, err := r.write(ctx, frame); err != nil {
		// Resolve the call before the connection goes down, so that the
		// caller sees why its own send failed.
		r.send(cancelCmd{call, err})
		if broken != nil {
			r.shutdown(broken)
		}
		return <-call.done
	}

	select {
	case res := <-call.done:
		return res
	case <-ctx.Done():
		r.send(cancelCmd{call, context.Cause(ctx)})
	}
	return <-call.done
}

// write sends frame. err is the error for the caller: context.Cause(ctx) if
// ctx ended first. A non-nil broken means the transport may have written part
// of the frame, which leaves the stream unusable, so the connection must be
// closed with broken as the reason.
func (r *Remote) write(ctx context.Context, frame []byte) (broken error, err error) {
	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}
	sendErr := r.sender.Send(ctx, frame)
	if sendErr == nil {
		return nil, nil
	}
	if cerr := r.closed(); cerr != nil {
		return nil, cerr
	}
	broken = &TransportError{Op: "send", Err: sendErr}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if sendErr == ctxErr {
			// Nothing was written.
			return nil, context.Cause(ctx)
		}
		return broken, context.Cause(ctx)
	}
	return broken, broken
}

// send hands cmd to the dispatcher. It returns false if the dispatcher is
// gone.
func (r *Remote) send(cmd command) bool {
	select {
	case r.mailbox <- cmd:
		return true
	case <-r.done:
		return false
	}
}

func (r *Remote) shutdown(err error) {
	select {
	case r.stop <- err:
	default:
	}
}

// closed returns a *ConnectionClosedError once the connection is closed.
func (r *Remote) closed() error {
	select {
	case <-r.done:
		return &ConnectionClosedError{Err: r.err}
	default:
		return nil
	}
}

func (r *Remote) subscribeMethod(ctx context.Context, method string) (*Subscription, error) {
	sub := newSubscription(r, r.cfg.bufferCapacity, r.cfg.overflow)
	sub.method = method
	reply := make(chan error, 1)
	if !r.send(subscribeMethodCmd{sub, reply}) {
		return nil, r.closed()
	}
	if err := <-reply; err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *Remote) forget(sub *Subscription) {
	r.send(forgetCmd{sub})
}

// Stats returns a snapshot of the dispatcher state. Once the connection is
// closed it returns the state teardown left behind.
func (r *Remote) Stats() Stats {
	reply := make(chan Stats, 1)
	if !r.send(statsCmd{reply}) {
		return r.final
	}
	return <-reply
}

// Close closes the connection. Every outstanding call and subscription
// resolves with a *ConnectionClosedError wrapping ErrClientClosed.
func (r *Remote) Close() error {
	r.shutdown(ErrClientClosed)
	<-r.done
	return nil
}

// Done is closed once the connection is closed.
func (r *Remote) Done() <-chan struct{} {
	return r.done
}

// Err returns the close reason after Done is closed: ErrClientClosed, io.EOF
// or a *TransportError.
func (r *Remote) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

func (r *Remote) readLoop() {
	for {
		frame, err := r.receiver.Receive()
		if err != nil {
			if err != io.EOF {
				err = &TransportError{Op: "receive", Err: err}
			}
			r.shutdown(err)
			return
		}
		select {
		case r.frames <- frame:
		case <-r.done:
			return
		}
	}
}

func (r *Remote) dispatch() {
	d := &dispatcher{
		remote:     r,
		pending:    newPendingTable(),
		subs:       map[jsonrpc2.SubscriptionID]*Subscription{},
		methodSubs: map[string]*Subscription{},
	}
	for {
		select {
		case cmd := <-r.mailbox:
			d.handleCommand(cmd)
		case frame := <-r.frames:
			d.handleFrame(frame)
		case err := <-r.stop:
			d.teardown(err)
			return
		}
	}
}
