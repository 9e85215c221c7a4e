package client

import (
	"errors"
	"fmt"

	"github.com/vipnode/asyncrpc/jsonrpc2"
)

// ErrRequestTimeout is returned when a call was not answered within the
// request timeout. The call is terminal: a later response is discarded.
var ErrRequestTimeout = errors.New("request timed out")

// ErrSubscriptionOverflow closes a subscription whose queue was full when a
// notification arrived, under the OverflowClose policy.
var ErrSubscriptionOverflow = errors.New("subscription queue overflow")

// ErrMaxConcurrentRequests is returned under the AdmissionReject policy when
// every request slot is taken.
var ErrMaxConcurrentRequests = errors.New("too many concurrent requests")

// ErrClientClosed is the close reason after Close was called.
var ErrClientClosed = errors.New("client closed")

// ErrUnsubscribed is returned by Next after Unsubscribe.
var ErrUnsubscribed = errors.New("unsubscribed")

// ErrBatchResponseMissing is the error of a batch entry the remote did not
// answer.
var ErrBatchResponseMissing = errors.New("missing response in batch")

// TransportError is a failure to connect, send or receive. It is fatal for the
// connection.
type TransportError struct {
	Op  string
	Err error
}

func (err *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %s", err.Op, err.Err)
}

func (err *TransportError) Unwrap() error {
	return err.Err
}

// ConnectionClosedError is returned for every call and subscription that was
// outstanding when the connection closed.
type ConnectionClosedError struct {
	Err error
}

func (err *ConnectionClosedError) Error() string {
	if err.Err == nil {
		return "connection closed"
	}
	return fmt.Sprintf("connection closed: %s", err.Err)
}

func (err *ConnectionClosedError) Unwrap() error {
	return err.Err
}

// DuplicateResponseError is reported when a response arrives for an id that
// was already answered.
type DuplicateResponseError struct {
	ID jsonrpc2.ID
}

func (err *DuplicateResponseError) Error() string {
	return fmt.Sprintf("duplicate response for id %s", err.ID)
}

// SubscriptionError is a notification carrying an error instead of a result.
type SubscriptionError struct {
	Subscription jsonrpc2.SubscriptionID
	Data         []byte
}

func (err *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription %s: %s", err.Subscription, err.Data)
}
