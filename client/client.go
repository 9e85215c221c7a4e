// Package client multiplexes JSONRPC calls, batches, notifications and
// subscriptions over a single connection.
package client

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vipnode/asyncrpc/jsonrpc2"
	"github.com/vipnode/asyncrpc/middleware"
)

// Service represents a remote service that can be called.
type Service interface {
	Call(ctx context.Context, result interface{}, method string, params ...interface{}) error
}

var _ Service = &Client{}

// Client sends everything through its middleware stack to the Remote core.
// Use a Builder to create one.
type Client struct {
	remote  *Remote
	service middleware.RPCService
}

// Request calls method with raw params and returns the raw result. A remote
// error is returned as a *jsonrpc2.ErrorObject.
func (c *Client) Request(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	res := c.service.Call(ctx, jsonrpc2.NewRequest(method, params)).Wait()
	if err := res.Failure(); err != nil {
		return nil, err
	}
	raw, _ := res.Response.Payload.Result()
	return raw, nil
}

// Call calls method with positional params and decodes the result into
// result. A null result leaves result untouched.
func (c *Client) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	p, err := jsonrpc2.ArrayParams(params...)
	if err != nil {
		return err
	}
	raw, err := c.Request(ctx, method, p)
	if err != nil {
		return err
	}
	if result == nil || len(raw) == 0 || string(raw) == "null" {
		// No result
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return &jsonrpc2.DecodeError{Reason: "invalid result", Err: err}
	}
	return nil
}

// Notify sends a notification with positional params.
func (c *Client) Notify(ctx context.Context, method string, params ...interface{}) error {
	p, err := jsonrpc2.ArrayParams(params...)
	if err != nil {
		return err
	}
	return c.service.Notify(ctx, jsonrpc2.NewNotification(method, p)).Wait()
}

// Batch sends the batch and returns one result per request, in order.
// Per-entry failures, including remote errors, are in each result.
func (c *Client) Batch(ctx context.Context, batch jsonrpc2.Batch) ([]middleware.MethodResult, error) {
	res := c.service.Batch(ctx, batch).Wait()
	return res.Responses, res.Err
}

// Subscribe calls subscribeMethod and opens a subscription on the id it
// returns. Unsubscribe calls unsubscribeMethod with that id; an empty
// unsubscribeMethod only drops the subscription locally.
func (c *Client) Subscribe(ctx context.Context, subscribeMethod string, unsubscribeMethod string, params ...interface{}) (*Subscription, error) {
	p, err := jsonrpc2.ArrayParams(params...)
	if err != nil {
		return nil, err
	}
	req := jsonrpc2.NewRequest(subscribeMethod, p)
	jsonrpc2.SetExtension(&req.Extensions, subscribeRequest{unsubscribeMethod: unsubscribeMethod})
	res := c.service.Call(ctx, req).Wait()
	if err := res.Failure(); err != nil {
		return nil, err
	}
	sub, ok := jsonrpc2.GetExtension[*Subscription](res.Response.Extensions)
	if !ok {
		return nil, errors.New("subscribe response did not open a subscription")
	}
	return sub, nil
}

// SubscribeToMethod queues every plain notification named method. Only one
// subscription per method can be open.
func (c *Client) SubscribeToMethod(ctx context.Context, method string) (*Subscription, error) {
	if method == "" {
		return nil, errors.New("empty method name")
	}
	return c.remote.subscribeMethod(ctx, method)
}

// Remote returns the core below the middleware stack.
func (c *Client) Remote() *Remote {
	return c.remote
}

// Close closes the connection, resolving everything outstanding.
func (c *Client) Close() error {
	return c.remote.Close()
}

// Done is closed once the connection is closed.
func (c *Client) Done() <-chan struct{} {
	return c.remote.Done()
}

// Err returns the close reason once Done is closed.
func (c *Client) Err() error {
	return c.remote.Err()
}
