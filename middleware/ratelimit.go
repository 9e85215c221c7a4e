package middleware

import (
	"context"

	"github.com/vipnode/asyncrpc/jsonrpc2"
	"golang.org/x/time/rate"
)

// RateLimit returns a layer that takes a token from limiter before anything
// is forwarded. Waiting honours the operation's context; if the context ends
// first, the operation fails with the context error and is never sent.
func RateLimit(limiter *rate.Limiter) RPCLayer {
	return LayerFunc[MethodResult, BatchResult, error](func(inner RPCService) RPCService {
		return &rateLimiter{inner: inner, limiter: limiter}
	})
}

type rateLimiter struct {
	inner   RPCService
	limiter *rate.Limiter
}

func (r *rateLimiter) Call(ctx context.Context, req *jsonrpc2.Request) Future[MethodResult] {
	return Go(func() MethodResult {
		if err := r.limiter.Wait(ctx); err != nil {
			return MethodResult{Err: err}
		}
		return r.inner.Call(ctx, req).Wait()
	})
}

func (r *rateLimiter) Batch(ctx context.Context, batch jsonrpc2.Batch) Future[BatchResult] {
	return Go(func() BatchResult {
		if err := r.limiter.Wait(ctx); err != nil {
			return BatchResult{Err: err}
		}
		return r.inner.Batch(ctx, batch).Wait()
	})
}

func (r *rateLimiter) Notify(ctx context.Context, n *jsonrpc2.Notification) Future[error] {
	return Go(func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		return r.inner.Notify(ctx, n).Wait()
	})
}
