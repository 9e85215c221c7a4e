package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/vipnode/asyncrpc/internal/fakepeer"
	"github.com/vipnode/asyncrpc/jsonrpc2"
	"github.com/vipnode/asyncrpc/middleware"
	"github.com/vipnode/asyncrpc/transport"
	"golang.org/x/sync/errgroup"
)

func TestClientCall(t *testing.T) {
	c, peer := newTestClient(t, NewBuilder())
	ctx := context.Background()

	var got []int
	if err := c.Call(ctx, &got, "echo", []int{1, 2}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("got: %v; want: [1 2]", got)
	}

	raw, err := c.Request(ctx, "echo", json.RawMessage(`["x"]`))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `"x"` {
		t.Errorf("got: %s; want: %s", raw, `"x"`)
	}

	err = c.Call(ctx, nil, "missing")
	var errObj *jsonrpc2.ErrorObject
	if !errors.As(err, &errObj) {
		t.Fatalf("got: %v; want *jsonrpc2.ErrorObject", err)
	}
	if errObj.ErrorCode() != jsonrpc2.ErrCodeMethodNotFound {
		t.Errorf("got code: %d; want: %d", errObj.ErrorCode(), jsonrpc2.ErrCodeMethodNotFound)
	}

	if err := c.Notify(ctx, "hello", "world"); err != nil {
		t.Fatal(err)
	}
	waitCalls(t, peer, 4)
	calls := peer.Calls()
	if want := fakepeer.Call("hello", `["world"]`); calls[3] != want {
		t.Errorf("got: %v; want: %v", calls[3], want)
	}
}

func TestClientIDFormat(t *testing.T) {
	for _, tc := range []struct {
		kind jsonrpc2.IDKind
		want string
	}{
		{jsonrpc2.IDKindNumber, `{"jsonrpc":"2.0","id":0,"method":"ping"}`},
		{jsonrpc2.IDKindString, `{"jsonrpc":"2.0","id":"0","method":"ping"}`},
	} {
		local, remote := transport.Pipe()
		c := NewBuilder().IDFormat(tc.kind).BuildWithTransport(local, local)

		fut := c.Remote().Call(context.Background(), jsonrpc2.NewRequest("ping", nil))
		frame, err := remote.Receive()
		if err != nil {
			t.Fatal(err)
		}
		if string(frame) != tc.want {
			t.Errorf("%s: got: %s; want: %s", tc.kind, frame, tc.want)
		}
		c.Close()
		if err := fut.Wait().Err; !errors.Is(err, ErrClientClosed) {
			t.Errorf("%s: got: %v; want: %v", tc.kind, err, ErrClientClosed)
		}
		remote.Close()
	}
}

func TestClientAdmission(t *testing.T) {
	c, peer := newTestClient(t, NewBuilder().MaxConcurrentRequests(2))
	release := make(chan struct{})
	peer.Handle("block", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		<-release
		return true, nil
	})

	var g errgroup.Group
	for i := 0; i < 3; i++ {
		g.Go(func() error {
			return c.Call(context.Background(), nil, "block")
		})
	}

	waitCalls(t, peer, 2)
	time.Sleep(50 * time.Millisecond)
	if n := len(peer.Calls()); n != 2 {
		t.Fatalf("transport saw %d calls; want 2", n)
	}

	release <- struct{}{}
	waitCalls(t, peer, 3)
	close(release)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestClientAdmissionReject(t *testing.T) {
	c, peer := newTestClient(t, NewBuilder().MaxConcurrentRequests(1).AdmissionPolicy(AdmissionReject))
	release := make(chan struct{})
	peer.Handle("block", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		<-release
		return true, nil
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Call(context.Background(), nil, "block")
	}()
	waitCalls(t, peer, 1)

	if err := c.Call(context.Background(), nil, "ping"); err != ErrMaxConcurrentRequests {
		t.Errorf("got: %v; want: %v", err, ErrMaxConcurrentRequests)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	ping(t, c)
}

func TestClientTimeout(t *testing.T) {
	var perrs protocolErrors
	c, peer := newTestClient(t, NewBuilder().
		RequestTimeout(50*time.Millisecond).
		MaxConcurrentRequests(1).
		ProtocolErrorHandler(perrs.handle))
	peer.Handle("slow", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return nil, fakepeer.ErrNoReply
	})

	if err := c.Call(context.Background(), nil, "slow"); err != ErrRequestTimeout {
		t.Fatalf("got: %v; want: %v", err, ErrRequestTimeout)
	}
	if stats := c.Remote().Stats(); stats.Pending != 0 {
		t.Errorf("pending after timeout: %d", stats.Pending)
	}

	// The late response is discarded without a trace.
	if err := peer.SendRaw(context.Background(), `{"jsonrpc":"2.0","id":0,"result":"late"}`); err != nil {
		t.Fatal(err)
	}
	ping(t, c)
	if errs := perrs.get(); len(errs) != 0 {
		t.Errorf("unexpected protocol errors: %v", errs)
	}
}

func TestClientCancel(t *testing.T) {
	c, peer := newTestClient(t, NewBuilder().MaxConcurrentRequests(1))
	peer.Handle("slow", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return nil, fakepeer.ErrNoReply
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Call(ctx, nil, "slow")
	}()
	waitCalls(t, peer, 1)
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("got: %v; want: %v", err, context.Canceled)
	}
	if stats := c.Remote().Stats(); stats.Pending != 0 {
		t.Errorf("pending after cancel: %d", stats.Pending)
	}
	// The slot was released.
	ping(t, c)
}

// newStalledClient returns a client whose remote never reads, so every send
// blocks.
func newStalledClient(t *testing.T, b Builder) *Client {
	t.Helper()
	local, remote := transport.Pipe()
	c := b.BuildWithTransport(local, local)
	t.Cleanup(func() {
		c.Close()
		remote.Close()
	})
	return c
}

// callWithin returns the result of fn, failing the test if it blocks.
func callWithin(t *testing.T, fn func() error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("call still blocked after 2s")
		return nil
	}
}

func TestClientTimeoutBlockedSend(t *testing.T) {
	c := newStalledClient(t, NewBuilder().
		RequestTimeout(50*time.Millisecond).
		MaxConcurrentRequests(1).
		AdmissionPolicy(AdmissionReject))

	// The second call only gets a slot if the first one released it.
	for i := 0; i < 2; i++ {
		err := callWithin(t, func() error {
			return c.Call(context.Background(), nil, "ping")
		})
		if err != ErrRequestTimeout {
			t.Fatalf("call %d: got: %v; want: %v", i, err, ErrRequestTimeout)
		}
		if stats := c.Remote().Stats(); stats.Pending != 0 {
			t.Errorf("call %d: pending after timeout: %d", i, stats.Pending)
		}
	}
	err := callWithin(t, func() error {
		return c.Notify(context.Background(), "hello")
	})
	if err != ErrRequestTimeout {
		t.Errorf("notify: got: %v; want: %v", err, ErrRequestTimeout)
	}

	// Nothing was written, so the connection is still open.
	select {
	case <-c.Done():
		t.Errorf("connection closed: %v", c.Err())
	default:
	}
}

func TestClientCancelBlockedSend(t *testing.T) {
	c := newStalledClient(t, NewBuilder().
		RequestTimeout(0).
		MaxConcurrentRequests(1).
		AdmissionPolicy(AdmissionReject))

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)
		err := callWithin(t, func() error {
			return c.Call(ctx, nil, "ping")
		})
		cancel()
		if err != context.Canceled {
			t.Fatalf("call %d: got: %v; want: %v", i, err, context.Canceled)
		}
		if stats := c.Remote().Stats(); stats.Pending != 0 {
			t.Errorf("call %d: pending after cancel: %d", i, stats.Pending)
		}
	}
}

func TestClientTimeoutPartialSend(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	go func() {
		// Take the start of the first frame, then stop reading.
		buf := make([]byte, 4)
		io.ReadFull(remote, buf)
	}()
	conn := transport.Stream(local)
	c := NewBuilder().RequestTimeout(50 * time.Millisecond).BuildWithTransport(conn, conn)
	defer c.Close()

	err := callWithin(t, func() error {
		return c.Call(context.Background(), nil, "ping")
	})
	if err != ErrRequestTimeout {
		t.Fatalf("got: %v; want: %v", err, ErrRequestTimeout)
	}

	// Half a frame went out, so the connection is gone.
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection still open after a partial write")
	}
	var transportErr *TransportError
	if err := c.Err(); !errors.As(err, &transportErr) || transportErr.Op != "send" {
		t.Errorf("got: %v; want a send *TransportError", err)
	}
}

func TestClientDuplicateResponse(t *testing.T) {
	var perrs protocolErrors
	c, peer := newTestClient(t, NewBuilder().ProtocolErrorHandler(perrs.handle))

	ping(t, c)
	if err := peer.SendRaw(context.Background(), `{"jsonrpc":"2.0","id":0,"result":"pong"}`); err != nil {
		t.Fatal(err)
	}
	ping(t, c)

	errs := perrs.get()
	if len(errs) != 1 {
		t.Fatalf("got %d protocol errors; want 1: %v", len(errs), errs)
	}
	var dup *DuplicateResponseError
	if !errors.As(errs[0], &dup) {
		t.Fatalf("got: %v; want *DuplicateResponseError", errs[0])
	}
	if dup.ID != jsonrpc2.NumberID(0) {
		t.Errorf("got id: %s; want: 0", dup.ID)
	}
}

func TestClientDecodeError(t *testing.T) {
	var perrs protocolErrors
	c, peer := newTestClient(t, NewBuilder().ProtocolErrorHandler(perrs.handle))
	ctx := context.Background()

	for _, frame := range []string{`{"foo":1}`, `[]`, `[{"bar":2}]`} {
		if err := peer.SendRaw(ctx, frame); err != nil {
			t.Fatal(err)
		}
	}
	ping(t, c)

	errs := perrs.get()
	if len(errs) != 3 {
		t.Fatalf("got %d protocol errors; want 3: %v", len(errs), errs)
	}
	for _, err := range errs {
		var decodeErr *jsonrpc2.DecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("got: %v; want *jsonrpc2.DecodeError", err)
		}
	}
}

func TestClientBatch(t *testing.T) {
	c, peer := newTestClient(t, NewBuilder())
	peer.Handle("silent", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return nil, fakepeer.ErrNoReply
	})

	echo := func(v string) jsonrpc2.BatchEntry {
		params, _ := jsonrpc2.ArrayParams(v)
		return jsonrpc2.BatchEntry{Request: jsonrpc2.NewRequest("echo", params)}
	}
	batch := jsonrpc2.Batch{
		echo("a"),
		{Notification: jsonrpc2.NewNotification("hello", nil)},
		{Request: jsonrpc2.NewRequest("missing", nil)},
		{Request: jsonrpc2.NewRequest("silent", nil)},
		echo("b"),
	}
	results, err := c.Batch(context.Background(), batch)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results; want 4", len(results))
	}

	for i, want := range map[int]string{0: `"a"`, 3: `"b"`} {
		raw, ok := results[i].Response.Payload.Result()
		if !ok || string(raw) != want {
			t.Errorf("result %d: got: %s; want: %s", i, raw, want)
		}
	}
	if got := results[1].Outcome(); got != "remote_error" {
		t.Errorf("result 1: got outcome %q; want %q", got, "remote_error")
	}
	if err := results[2].Err; err != ErrBatchResponseMissing {
		t.Errorf("result 2: got: %v; want: %v", err, ErrBatchResponseMissing)
	}
	if stats := c.Remote().Stats(); stats.Pending != 0 {
		t.Errorf("pending after batch: %d", stats.Pending)
	}

	// Notifications only.
	results, err = c.Batch(context.Background(), jsonrpc2.Batch{{Notification: jsonrpc2.NewNotification("bye", nil)}})
	if err != nil || len(results) != 0 {
		t.Errorf("got: %v, %v; want no results", results, err)
	}
}

func TestClientClose(t *testing.T) {
	c, peer := newTestClient(t, NewBuilder())
	release := make(chan struct{})
	defer close(release)
	peer.Handle("block", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		<-release
		return true, nil
	})
	peer.HandleSubscribe("sub", "note", "unsub")
	ctx := context.Background()

	sub1, err := c.Subscribe(ctx, "sub", "unsub")
	if err != nil {
		t.Fatal(err)
	}
	sub2, err := c.SubscribeToMethod(ctx, "event")
	if err != nil {
		t.Fatal(err)
	}

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			errs <- c.Call(ctx, nil, "block")
		}()
	}
	waitCalls(t, peer, 4)
	if got, want := c.Remote().Stats(), (Stats{Pending: 3, Subscriptions: 2}); got != want {
		t.Errorf("got: %+v; want: %+v", got, want)
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		err := <-errs
		var closed *ConnectionClosedError
		if !errors.As(err, &closed) || !errors.Is(err, ErrClientClosed) {
			t.Errorf("call %d: got: %v; want closed by client", i, err)
		}
	}
	for _, sub := range []*Subscription{sub1, sub2} {
		var closed *ConnectionClosedError
		if _, err := sub.Next(ctx); !errors.As(err, &closed) {
			t.Errorf("got: %v; want *ConnectionClosedError", err)
		}
	}

	// Recorded by teardown after it resolved everything.
	if stats := c.Remote().Stats(); stats != (Stats{}) {
		t.Errorf("state left after close: %+v", stats)
	}
	if err := c.Err(); err != ErrClientClosed {
		t.Errorf("got: %v; want: %v", err, ErrClientClosed)
	}
	if err := c.Call(ctx, nil, "ping"); !errors.Is(err, ErrClientClosed) {
		t.Errorf("call after close: got: %v; want: %v", err, ErrClientClosed)
	}
	if err := c.Notify(ctx, "ping"); !errors.Is(err, ErrClientClosed) {
		t.Errorf("notify after close: got: %v; want: %v", err, ErrClientClosed)
	}
}

func TestClientRemoteClose(t *testing.T) {
	c, peer := newTestClient(t, NewBuilder())
	peer.Handle("slow", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return nil, fakepeer.ErrNoReply
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Call(context.Background(), nil, "slow")
	}()
	waitCalls(t, peer, 1)
	peer.Close()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the closed connection")
	}
	if err := c.Err(); err != io.EOF {
		t.Errorf("got: %v; want: %v", err, io.EOF)
	}
	var closed *ConnectionClosedError
	if err := <-done; !errors.As(err, &closed) {
		t.Errorf("got: %v; want *ConnectionClosedError", err)
	}
}

func TestBuild(t *testing.T) {
	connector := fakepeer.Connector(func(p *fakepeer.Peer) {
		p.Handle("ping", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
			return "pong", nil
		})
	})
	c, err := NewBuilder().Build(context.Background(), connector)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ping(t, c)

	failed := transport.ConnectorFunc(func(ctx context.Context) (transport.Sender, transport.Receiver, error) {
		return nil, nil, io.ErrUnexpectedEOF
	})
	_, err = NewBuilder().Build(context.Background(), failed)
	var terr *TransportError
	if !errors.As(err, &terr) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("got: %v; want *TransportError wrapping %v", err, io.ErrUnexpectedEOF)
	}
}

func TestClientMiddleware(t *testing.T) {
	conn, peer := fakepeer.Pipe()
	peer.Handle("ping", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return "pong", nil
	})

	var methods []string
	record := middleware.LayerFunc[middleware.MethodResult, middleware.BatchResult, error](func(inner middleware.RPCService) middleware.RPCService {
		return middleware.ServiceFuncs[middleware.MethodResult, middleware.BatchResult, error]{
			CallFunc: func(ctx context.Context, req *jsonrpc2.Request) middleware.MethodResult {
				methods = append(methods, req.Method)
				return inner.Call(ctx, req).Wait()
			},
		}
	})
	c := NewBuilder().SetRPCMiddleware(middleware.NewRPCBuilder().Layer(record)).BuildWithTransport(conn, conn)
	defer c.Close()

	ping(t, c)
	ping(t, c)
	if len(methods) != 2 || methods[0] != "ping" {
		t.Errorf("got: %v; want: [ping ping]", methods)
	}
}
