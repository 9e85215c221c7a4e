package middleware

import (
	"context"

	"github.com/vipnode/asyncrpc/jsonrpc2"
)

// Service is implemented by the client core and by every layer around it. M,
// B and N are the results of Call, Batch and Notify respectively.
type Service[M, B, N any] interface {
	Call(ctx context.Context, req *jsonrpc2.Request) Future[M]
	Batch(ctx context.Context, batch jsonrpc2.Batch) Future[B]
	Notify(ctx context.Context, n *jsonrpc2.Notification) Future[N]
}

// Layer wraps a Service with another Service of the same response types.
type Layer[M, B, N any] interface {
	Wrap(inner Service[M, B, N]) Service[M, B, N]
}

// LayerFunc adapts a function into a Layer.
type LayerFunc[M, B, N any] func(inner Service[M, B, N]) Service[M, B, N]

func (fn LayerFunc[M, B, N]) Wrap(inner Service[M, B, N]) Service[M, B, N] {
	return fn(inner)
}

// Identity is the layer that adds nothing.
type Identity[M, B, N any] struct{}

func (Identity[M, B, N]) Wrap(inner Service[M, B, N]) Service[M, B, N] {
	return inner
}

var _ Service[int, int, int] = ServiceFuncs[int, int, int]{}

// ServiceFuncs adapts plain functions into a Service. Nil functions resolve to
// the zero value.
type ServiceFuncs[M, B, N any] struct {
	CallFunc   func(ctx context.Context, req *jsonrpc2.Request) M
	BatchFunc  func(ctx context.Context, batch jsonrpc2.Batch) B
	NotifyFunc func(ctx context.Context, n *jsonrpc2.Notification) N
}

func (s ServiceFuncs[M, B, N]) Call(ctx context.Context, req *jsonrpc2.Request) Future[M] {
	if s.CallFunc == nil {
		var zero M
		return Ready(zero)
	}
	return Go(func() M { return s.CallFunc(ctx, req) })
}

func (s ServiceFuncs[M, B, N]) Batch(ctx context.Context, batch jsonrpc2.Batch) Future[B] {
	if s.BatchFunc == nil {
		var zero B
		return Ready(zero)
	}
	return Go(func() B { return s.BatchFunc(ctx, batch) })
}

func (s ServiceFuncs[M, B, N]) Notify(ctx context.Context, n *jsonrpc2.Notification) Future[N] {
	if s.NotifyFunc == nil {
		var zero N
		return Ready(zero)
	}
	return Go(func() N { return s.NotifyFunc(ctx, n) })
}

// Builder is an ordered stack of layers. Adding a layer returns a new Builder,
// so a Builder can be shared and extended without affecting other users.
type Builder[M, B, N any] struct {
	layers []Layer[M, B, N]
}

// NewBuilder returns an empty stack.
func NewBuilder[M, B, N any]() Builder[M, B, N] {
	return Builder[M, B, N]{}
}

// Layer returns a builder with l added inside all previously added layers.
func (b Builder[M, B, N]) Layer(l Layer[M, B, N]) Builder[M, B, N] {
	layers := make([]Layer[M, B, N], 0, len(b.layers)+1)
	layers = append(layers, b.layers...)
	layers = append(layers, l)
	return Builder[M, B, N]{layers: layers}
}

// Len returns the number of layers.
func (b Builder[M, B, N]) Len() int {
	return len(b.layers)
}

// Service wraps inner with every layer; the first layer added is outermost.
func (b Builder[M, B, N]) Service(inner Service[M, B, N]) Service[M, B, N] {
	svc := inner
	for i := len(b.layers) - 1; i >= 0; i-- {
		svc = b.layers[i].Wrap(svc)
	}
	return svc
}
