package middleware

import (
	"context"

	"github.com/vipnode/asyncrpc/jsonrpc2"
)

type side uint8

const (
	sideLeft side = iota
	sideRight
)

// Either holds one of two services with identical response types and forwards
// every operation to it. The choice is fixed when the value is created.
type Either[M, B, N any] struct {
	side  side
	left  Service[M, B, N]
	right Service[M, B, N]
}

// Left returns an Either forwarding to s.
func Left[M, B, N any](s Service[M, B, N]) Either[M, B, N] {
	return Either[M, B, N]{side: sideLeft, left: s}
}

// Right returns an Either forwarding to s.
func Right[M, B, N any](s Service[M, B, N]) Either[M, B, N] {
	return Either[M, B, N]{side: sideRight, right: s}
}

// IsLeft reports which variant is active.
func (e Either[M, B, N]) IsLeft() bool {
	return e.side == sideLeft
}

func (e Either[M, B, N]) Call(ctx context.Context, req *jsonrpc2.Request) Future[M] {
	switch e.side {
	case sideLeft:
		return e.left.Call(ctx, req)
	default:
		return e.right.Call(ctx, req)
	}
}

func (e Either[M, B, N]) Batch(ctx context.Context, batch jsonrpc2.Batch) Future[B] {
	switch e.side {
	case sideLeft:
		return e.left.Batch(ctx, batch)
	default:
		return e.right.Batch(ctx, batch)
	}
}

func (e Either[M, B, N]) Notify(ctx context.Context, n *jsonrpc2.Notification) Future[N] {
	switch e.side {
	case sideLeft:
		return e.left.Notify(ctx, n)
	default:
		return e.right.Notify(ctx, n)
	}
}

// EitherLayer holds one of two layers and produces an Either of whichever
// service that layer builds.
type EitherLayer[M, B, N any] struct {
	side  side
	left  Layer[M, B, N]
	right Layer[M, B, N]
}

// LeftLayer returns an EitherLayer using l.
func LeftLayer[M, B, N any](l Layer[M, B, N]) EitherLayer[M, B, N] {
	return EitherLayer[M, B, N]{side: sideLeft, left: l}
}

// RightLayer returns an EitherLayer using l.
func RightLayer[M, B, N any](l Layer[M, B, N]) EitherLayer[M, B, N] {
	return EitherLayer[M, B, N]{side: sideRight, right: l}
}

func (e EitherLayer[M, B, N]) Wrap(inner Service[M, B, N]) Service[M, B, N] {
	switch e.side {
	case sideLeft:
		return Left(e.left.Wrap(inner))
	default:
		return Right(e.right.Wrap(inner))
	}
}
