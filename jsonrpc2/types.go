package jsonrpc2

import (
	"encoding/json"
	"fmt"
)

const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
	ErrCodeServer         = -32000
)

// ErrorObject is the "error" member of a failed response. It is also the error
// value returned to callers when the remote side answered with an error.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewError returns an ErrorObject, encoding data if it is not nil.
func NewError(code int, message string, data interface{}) *ErrorObject {
	e := &ErrorObject{Code: code, Message: message}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			e.Data = raw
		}
	}
	return e
}

func (err *ErrorObject) Error() string {
	return fmt.Sprintf("%d: %s", err.Code, err.Message)
}

// ErrorCode returns the JSONRPC error code.
func (err *ErrorObject) ErrorCode() int {
	return err.Code
}

// DecodeError is returned when an inbound envelope is malformed.
type DecodeError struct {
	Reason string
	Err    error
}

func (err *DecodeError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("jsonrpc2: decode failed: %s: %s", err.Reason, err.Err)
	}
	return fmt.Sprintf("jsonrpc2: decode failed: %s", err.Reason)
}

func (err *DecodeError) Unwrap() error {
	return err.Err
}

func decodeErr(reason string, err error) *DecodeError {
	return &DecodeError{Reason: reason, Err: err}
}

// Request is an outbound method call.
type Request struct {
	Version    TwoPointZero    `json:"jsonrpc"`
	ID         ID              `json:"id"`
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params,omitempty"`
	Extensions Extensions      `json:"-"`
}

// NewRequest returns a request without an id; the client assigns one.
func NewRequest(method string, params json.RawMessage) *Request {
	return &Request{Method: method, Params: params}
}

// Notification is a request without an id. Outbound notifications are fire
// and forget; inbound ones carry subscription payloads or server events.
type Notification struct {
	Version    *TwoPointZero   `json:"jsonrpc,omitempty"`
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params,omitempty"`
	Extensions Extensions      `json:"-"`
}

// NewNotification returns an outbound notification.
func NewNotification(method string, params json.RawMessage) *Notification {
	return &Notification{Version: V2(), Method: method, Params: params}
}

// BatchEntry is one element of a batch: a Request or a Notification.
type BatchEntry struct {
	Request      *Request
	Notification *Notification
}

func (e BatchEntry) MarshalJSON() ([]byte, error) {
	if e.Request != nil {
		return json.Marshal(e.Request)
	}
	if e.Notification != nil {
		return json.Marshal(e.Notification)
	}
	return nil, fmt.Errorf("jsonrpc2: empty batch entry")
}

// Batch is an ordered list of requests and notifications sent as one array.
type Batch []BatchEntry

// Requests returns the number of entries that expect a response.
func (b Batch) Requests() int {
	n := 0
	for _, e := range b {
		if e.Request != nil {
			n++
		}
	}
	return n
}

// ArrayParams encodes positional params. No args means no params member.
func ArrayParams(args ...interface{}) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return json.Marshal(args)
}

// ObjectParams encodes named params.
func ObjectParams(params map[string]interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return json.Marshal(params)
}
