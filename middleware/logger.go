package middleware

import (
	"context"
	"io"
	"io/ioutil"
	"time"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
	"github.com/vipnode/asyncrpc/internal/pretty"
	"github.com/vipnode/asyncrpc/jsonrpc2"
)

var logger *golog.Logger

// SetLogger overrides the logger output for this package. The Logger layer
// writes here unless it was given its own logger.
func SetLogger(w io.Writer) {
	logger = golog.New(w, log.Debug)
}

func init() {
	SetLogger(ioutil.Discard)
}

// DebugLogger is the part of a leveled logger used by the Logger layer.
type DebugLogger interface {
	Debugf(format string, args ...interface{})
}

// Logger returns a layer that logs every call, batch and notification with
// its outcome and latency at debug level. Payloads longer than maxLen bytes
// are abbreviated. A nil l logs to the package logger.
func Logger(l DebugLogger, maxLen int) RPCLayer {
	return LayerFunc[MethodResult, BatchResult, error](func(inner RPCService) RPCService {
		return &rpcLogger{inner: inner, logger: l, maxLen: maxLen}
	})
}

type rpcLogger struct {
	inner  RPCService
	logger DebugLogger
	maxLen int
}

func (l *rpcLogger) log() DebugLogger {
	if l.logger != nil {
		return l.logger
	}
	return logger
}

func (l *rpcLogger) abbrev(b []byte) pretty.Abbreviated {
	return pretty.Abbrev(string(b), l.maxLen)
}

// Call logs the request before it goes down the stack. The id is logged with
// the response, since the core assigns it below every layer.
func (l *rpcLogger) Call(ctx context.Context, req *jsonrpc2.Request) Future[MethodResult] {
	start := time.Now()
	l.log().Debugf("call method=%s params=%s", req.Method, l.abbrev(req.Params))
	return Then(l.inner.Call(ctx, req), func(res MethodResult) MethodResult {
		elapsed := time.Since(start)
		switch {
		case res.Err != nil:
			l.log().Debugf("call method=%s failed after %s: %s", req.Method, elapsed, res.Err)
		case res.Response != nil:
			out, _ := res.Response.MarshalJSON()
			l.log().Debugf("call method=%s id=%s response after %s: %s", req.Method, res.Response.ID, elapsed, l.abbrev(out))
		}
		return res
	})
}

func (l *rpcLogger) Batch(ctx context.Context, batch jsonrpc2.Batch) Future[BatchResult] {
	start := time.Now()
	l.log().Debugf("batch entries=%d requests=%d", len(batch), batch.Requests())
	return Then(l.inner.Batch(ctx, batch), func(res BatchResult) BatchResult {
		elapsed := time.Since(start)
		if res.Err != nil {
			l.log().Debugf("batch failed after %s: %s", elapsed, res.Err)
		} else {
			l.log().Debugf("batch responses=%d after %s", len(res.Responses), elapsed)
		}
		return res
	})
}

func (l *rpcLogger) Notify(ctx context.Context, n *jsonrpc2.Notification) Future[error] {
	l.log().Debugf("notification method=%s params=%s", n.Method, l.abbrev(n.Params))
	return Then(l.inner.Notify(ctx, n), func(err error) error {
		if err != nil {
			l.log().Debugf("notification method=%s failed: %s", n.Method, err)
		}
		return err
	})
}
