package middleware

import (
	"encoding/json"

	"github.com/vipnode/asyncrpc/jsonrpc2"
)

// MethodResult is the outcome of a call through the client stack. A remote
// error is a successful exchange: Response is set and carries the error
// payload. Err is set when no response was obtained (transport failure,
// timeout, cancellation, closed connection).
type MethodResult struct {
	Response *jsonrpc2.Response[json.RawMessage]
	Err      error
}

// Failure returns Err, or the remote ErrorObject if the response is an error.
func (r MethodResult) Failure() error {
	if r.Err != nil {
		return r.Err
	}
	if r.Response == nil {
		return nil
	}
	if errObj := r.Response.Payload.Err(); errObj != nil {
		return errObj
	}
	return nil
}

// Outcome classifies the result as "ok", "remote_error" or "error".
func (r MethodResult) Outcome() string {
	switch {
	case r.Err != nil:
		return "error"
	case r.Response != nil && !r.Response.Payload.IsSuccess():
		return "remote_error"
	}
	return "ok"
}

// BatchResult is the outcome of a batch. Responses has one entry per request
// in the batch, in request order; notifications have no entry.
type BatchResult struct {
	Responses []MethodResult
	Err       error
}

// RPCService is the service shape of the client stack.
type RPCService = Service[MethodResult, BatchResult, error]

// RPCLayer is a layer of the client stack.
type RPCLayer = Layer[MethodResult, BatchResult, error]

// RPCBuilder builds the client stack.
type RPCBuilder = Builder[MethodResult, BatchResult, error]

// NewRPCBuilder returns an empty client stack.
func NewRPCBuilder() RPCBuilder {
	return NewBuilder[MethodResult, BatchResult, error]()
}

// DefaultRPCBuilder returns the default client stack: a single Logger layer
// abbreviating payloads to 1024 bytes.
func DefaultRPCBuilder() RPCBuilder {
	return NewRPCBuilder().Layer(Logger(nil, 1024))
}
