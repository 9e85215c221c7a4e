package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/vipnode/asyncrpc/jsonrpc2"
)

// OverflowPolicy decides what happens to a notification that arrives while
// its subscription queue is full.
type OverflowPolicy int

const (
	// OverflowClose closes the subscription with ErrSubscriptionOverflow.
	// Notifications already queued can still be read.
	OverflowClose OverflowPolicy = iota
	// OverflowDropOldest discards the oldest queued notification.
	OverflowDropOldest
	// OverflowDropNewest discards the arriving notification.
	OverflowDropNewest
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDropOldest:
		return "drop-oldest"
	case OverflowDropNewest:
		return "drop-newest"
	}
	return "close"
}

// ParseOverflowPolicy parses the String form of a policy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(s) {
	case "close", "":
		return OverflowClose, nil
	case "drop-oldest":
		return OverflowDropOldest, nil
	case "drop-newest":
		return OverflowDropNewest, nil
	}
	return OverflowClose, fmt.Errorf("unknown overflow policy: %q", s)
}

type notification struct {
	result json.RawMessage
	err    error
}

// ring is a fixed capacity FIFO.
type ring struct {
	buf  []notification
	head int
	n    int
}

func newRing(capacity int) ring {
	return ring{buf: make([]notification, capacity)}
}

func (r *ring) full() bool { return r.n == len(r.buf) }

func (r *ring) push(v notification) {
	r.buf[(r.head+r.n)%len(r.buf)] = v
	r.n++
}

func (r *ring) pop() (notification, bool) {
	if r.n == 0 {
		return notification{}, false
	}
	v := r.buf[r.head]
	r.buf[r.head] = notification{}
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	return v, true
}

// Subscription is a stream of notifications pushed by the remote. Either a
// subscription id returned by a subscribe call, or a method name for plain
// notifications, routes notifications into its bounded queue.
//
// Next is meant for a single consumer.
type Subscription struct {
	id                jsonrpc2.SubscriptionID
	method            string
	unsubscribeMethod string
	remote            *Remote
	policy            OverflowPolicy

	mu      sync.Mutex
	queue   ring
	closed  bool
	err     error
	dropped uint64

	notify chan struct{}
	done   chan struct{}
}

func newSubscription(remote *Remote, capacity int, policy OverflowPolicy) *Subscription {
	if capacity < 1 {
		capacity = 1
	}
	return &Subscription{
		remote: remote,
		policy: policy,
		queue:  newRing(capacity),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// ID returns the subscription id assigned by the remote. It is the zero
// value for method subscriptions.
func (s *Subscription) ID() jsonrpc2.SubscriptionID {
	return s.id
}

// Method returns the notification method of a method subscription.
func (s *Subscription) Method() string {
	return s.method
}

// push queues n, applying the overflow policy. It never blocks. It returns
// true if the subscription was closed by this push.
func (s *Subscription) push(n notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.queue.full() {
		s.dropped++
		switch s.policy {
		case OverflowDropOldest:
			s.queue.pop()
		case OverflowDropNewest:
			return false
		default:
			s.closeLocked(ErrSubscriptionOverflow)
			return true
		}
	}
	s.queue.push(n)
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return false
}

// close returns false if the subscription was already closed.
func (s *Subscription) close(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked(err)
}

func (s *Subscription) closeLocked(err error) bool {
	if s.closed {
		return false
	}
	s.closed = true
	s.err = err
	close(s.done)
	return true
}

// Next blocks until a notification is available and returns its result. A
// notification carrying an error is returned as a *SubscriptionError; the
// subscription stays open. Once the subscription is closed and drained, Next
// returns the close reason.
func (s *Subscription) Next(ctx context.Context) (json.RawMessage, error) {
	for {
		s.mu.Lock()
		n, ok := s.queue.pop()
		closed, err := s.closed, s.err
		s.mu.Unlock()
		if ok {
			return n.result, n.err
		}
		if closed {
			return nil, err
		}
		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// NextAs is Next, decoding the result into T.
func NextAs[T any](ctx context.Context, s *Subscription) (T, error) {
	var v T
	raw, err := s.Next(ctx)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &jsonrpc2.DecodeError{Reason: "invalid notification result", Err: err}
	}
	return v, nil
}

// Len returns the number of queued notifications.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.n
}

// Dropped returns the number of notifications discarded by the overflow
// policy.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Done is closed when the subscription is closed. Queued notifications may
// still be read.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the close reason, or nil while the subscription is open.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Unsubscribe closes the subscription and, if it has an unsubscribe method,
// tells the remote. Queued notifications are discarded.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	if !s.close(ErrUnsubscribed) {
		return nil
	}
	s.mu.Lock()
	s.queue = newRing(len(s.queue.buf))
	s.mu.Unlock()

	s.remote.forget(s)
	return s.unsubscribeRemote(ctx)
}

func (s *Subscription) unsubscribeRemote(ctx context.Context) error {
	if s.unsubscribeMethod == "" {
		return nil
	}
	params, err := jsonrpc2.ArrayParams(s.id)
	if err != nil {
		return err
	}
	res := s.remote.Call(ctx, jsonrpc2.NewRequest(s.unsubscribeMethod, params)).Wait()
	return res.Failure()
}
