package client

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/vipnode/asyncrpc/internal/fakepeer"
)

func newTestClient(t *testing.T, b Builder) (*Client, *fakepeer.Peer) {
	t.Helper()
	conn, peer := fakepeer.Pipe()
	peer.Handle("ping", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return "pong", nil
	})
	peer.Handle("echo", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var args []json.RawMessage
		if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
			return nil, nil
		}
		return args[0], nil
	})
	c := b.BuildWithTransport(conn, conn)
	t.Cleanup(func() {
		c.Close()
	})
	return c, peer
}

func ping(t *testing.T, c *Client) {
	t.Helper()
	var got string
	if err := c.Call(context.Background(), &got, "ping"); err != nil {
		t.Fatal(err)
	}
	if got != "pong" {
		t.Fatalf("got: %q; want: %q", got, "pong")
	}
}

// waitCalls blocks until the peer received at least n messages.
func waitCalls(t *testing.T, p *fakepeer.Peer, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for len(p.Calls()) < n {
		select {
		case <-p.Received():
		case <-deadline:
			t.Fatalf("peer received %d messages; want %d", len(p.Calls()), n)
		}
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type protocolErrors struct {
	mu   sync.Mutex
	errs []error
}

func (p *protocolErrors) handle(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, err)
}

func (p *protocolErrors) get() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error{}, p.errs...)
}
