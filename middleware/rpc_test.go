package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/vipnode/asyncrpc/jsonrpc2"
	"golang.org/x/time/rate"
)

var errBoom = errors.New("boom")

// fakeCore answers "ok" with a result, "fail" with a remote error and
// anything else with a transport error. Like the client core, it assigns the
// response id itself.
func fakeCore() RPCService {
	return ServiceFuncs[MethodResult, BatchResult, error]{
		CallFunc: func(ctx context.Context, req *jsonrpc2.Request) MethodResult {
			switch req.Method {
			case "ok":
				return MethodResult{Response: jsonrpc2.NewResponse(jsonrpc2.Success(json.RawMessage(`"fine"`)), jsonrpc2.NumberID(7))}
			case "fail":
				return MethodResult{Response: jsonrpc2.NewResponse(jsonrpc2.Failure[json.RawMessage](&jsonrpc2.ErrorObject{Code: -1, Message: "nope"}), req.ID)}
			}
			return MethodResult{Err: errBoom}
		},
		BatchFunc: func(ctx context.Context, batch jsonrpc2.Batch) BatchResult {
			return BatchResult{Responses: make([]MethodResult, batch.Requests())}
		},
		NotifyFunc: func(ctx context.Context, n *jsonrpc2.Notification) error {
			return nil
		},
	}
}

func TestMethodResult(t *testing.T) {
	ctx := context.Background()
	core := fakeCore()

	res := core.Call(ctx, jsonrpc2.NewRequest("ok", nil)).Wait()
	if res.Failure() != nil || res.Outcome() != "ok" {
		t.Errorf("ok: got %v, %s", res.Failure(), res.Outcome())
	}
	res = core.Call(ctx, jsonrpc2.NewRequest("fail", nil)).Wait()
	var errObj *jsonrpc2.ErrorObject
	if !errors.As(res.Failure(), &errObj) || res.Outcome() != "remote_error" {
		t.Errorf("fail: got %v, %s", res.Failure(), res.Outcome())
	}
	res = core.Call(ctx, jsonrpc2.NewRequest("other", nil)).Wait()
	if res.Failure() != errBoom || res.Outcome() != "error" {
		t.Errorf("other: got %v, %s", res.Failure(), res.Outcome())
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := golog.New(&buf, log.Debug)
	svc := NewRPCBuilder().Layer(Logger(l, 48)).Service(fakeCore())

	params := json.RawMessage(`["` + strings.Repeat("a", 64) + `"]`)
	res := svc.Call(context.Background(), jsonrpc2.NewRequest("ok", params)).Wait()
	if res.Failure() != nil {
		t.Fatal(res.Failure())
	}
	if err := svc.Notify(context.Background(), jsonrpc2.NewNotification("ping", nil)).Wait(); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{"method=ok id=7", "(68 bytes)", `"result":"fine"`, "notification method=ping"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("a", 64)) {
		t.Errorf("log output was not abbreviated:\n%s", out)
	}
	if strings.Contains(out, "id=null") {
		t.Errorf("log output has the unassigned request id:\n%s", out)
	}
}

func TestLoggerPackageDefault(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(&buf)
	defer SetLogger(nopWriter{})

	svc := DefaultRPCBuilder().Service(fakeCore())
	svc.Call(context.Background(), jsonrpc2.NewRequest("other", nil)).Wait()
	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("expected failure in log output, got:\n%s", buf.String())
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRateLimit(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 2)
	svc := NewRPCBuilder().Layer(RateLimit(limiter)).Service(fakeCore())

	for i := 0; i < 2; i++ {
		if res := svc.Call(context.Background(), jsonrpc2.NewRequest("ok", nil)).Wait(); res.Err != nil {
			t.Fatalf("request %d should pass, got: %s", i, res.Err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := svc.Call(ctx, jsonrpc2.NewRequest("ok", nil)).Wait()
	if res.Err == nil {
		t.Fatal("request 3 should be rate limited")
	}
	if err := svc.Notify(ctx, jsonrpc2.NewNotification("n", nil)).Wait(); err == nil {
		t.Error("notification should be rate limited")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg, "test")
	if err != nil {
		t.Fatal(err)
	}
	svc := NewRPCBuilder().Layer(m).Service(fakeCore())
	ctx := context.Background()
	for _, method := range []string{"ok", "ok", "fail", "other"} {
		svc.Call(ctx, jsonrpc2.NewRequest(method, nil)).Wait()
	}
	svc.Batch(ctx, jsonrpc2.Batch{{Request: jsonrpc2.NewRequest("ok", nil)}}).Wait()
	svc.Notify(ctx, jsonrpc2.NewNotification("n", nil)).Wait()

	tests := []struct {
		c    prometheus.Collector
		want float64
	}{
		{m.calls.WithLabelValues("ok", "ok"), 2},
		{m.calls.WithLabelValues("fail", "remote_error"), 1},
		{m.calls.WithLabelValues("other", "error"), 1},
		{m.batches.WithLabelValues("ok"), 1},
		{m.notifications.WithLabelValues("n", "ok"), 1},
		{m.inflight, 0},
	}
	for i, tc := range tests {
		if got := testutil.ToFloat64(tc.c); got != tc.want {
			t.Errorf("case #%d: got %v; want %v", i, got, tc.want)
		}
	}

	if _, err := NewMetrics(reg, "test"); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}
