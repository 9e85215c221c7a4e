package gobwas

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
)

func TestConn(t *testing.T) {
	c1, c2 := net.Pipe()

	client := newConn(c1, c1, ws.StateClientSide)
	server := newConn(c2, c2, ws.StateServerSide)

	go client.Send(context.Background(), []byte(`{"jsonrpc":"2.0","method":"foo"}`))
	frame, err := server.Receive()
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"jsonrpc":"2.0","method":"foo"}`; string(frame) != want {
		t.Errorf("got: %s; want: %s", frame, want)
	}

	go server.Send(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"result":"bar"}`))
	frame, err = client.Receive()
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"jsonrpc":"2.0","id":1,"result":"bar"}`; string(frame) != want {
		t.Errorf("got: %s; want: %s", frame, want)
	}

	client.Close()
	if _, err := client.Receive(); err != io.EOF {
		t.Errorf("got: %v; want: %v", err, io.EOF)
	}
	if _, err := server.Receive(); err == nil {
		t.Error("expected error after peer closed")
	}
}

func TestConnSendAborted(t *testing.T) {
	// Nobody reads from c2.
	c1, c2 := net.Pipe()
	defer c2.Close()
	client := newConn(c1, c1, ws.StateClientSide)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- client.Send(ctx, []byte(`{"jsonrpc":"2.0","method":"foo"}`))
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Error("expected an error from an aborted send")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send still blocked after its context ended")
	}
}
