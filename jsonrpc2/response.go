package jsonrpc2

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Response is a JSONRPC response object with a result of type T.
type Response[T any] struct {
	// Version is nil when the "jsonrpc" member was absent or null.
	Version    *TwoPointZero
	Payload    Payload[T]
	ID         ID
	Extensions Extensions
}

// NewResponse returns a response with the version member set.
func NewResponse[T any](payload Payload[T], id ID) *Response[T] {
	return &Response[T]{Version: V2(), Payload: payload, ID: id}
}

// DecodeResponse decodes a single response object.
func DecodeResponse[T any](data []byte) (*Response[T], error) {
	var r Response[T]
	if err := r.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return &r, nil
}

// IntoOwned returns a copy whose payload does not borrow.
func (r *Response[T]) IntoOwned() *Response[T] {
	return &Response[T]{
		Version:    r.Version,
		Payload:    r.Payload.IntoOwned(),
		ID:         r.ID,
		Extensions: r.Extensions,
	}
}

// SuccessResponse is a response that is known to be successful.
type SuccessResponse[T any] struct {
	Version *TwoPointZero
	Result  T
	ID      ID
}

// Success returns the success-only view of the response, or the contained
// ErrorObject if the payload is an error.
func (r *Response[T]) Success() (*SuccessResponse[T], error) {
	if err := r.Payload.Err(); err != nil {
		return nil, err
	}
	result, _ := r.Payload.Result()
	return &SuccessResponse[T]{Version: r.Version, Result: result, ID: r.ID}, nil
}

func (r Response[T]) String() string {
	out, err := r.MarshalJSON()
	if err != nil {
		return "<invalid response: " + err.Error() + ">"
	}
	return string(out)
}

type responseOut struct {
	Version *TwoPointZero   `json:"jsonrpc,omitempty"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

func (r Response[T]) MarshalJSON() ([]byte, error) {
	out := responseOut{
		Version: r.Version,
		ID:      r.ID,
		Error:   r.Payload.Err(),
	}
	if out.Error == nil {
		result, _ := r.Payload.Result()
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		out.Result = raw
	}
	return json.Marshal(out)
}

// responseIn keeps every member raw so presence can be told apart from null.
type responseIn struct {
	Version json.RawMessage `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

func (r *Response[T]) UnmarshalJSON(data []byte) error {
	var in responseIn
	if err := json.Unmarshal(data, &in); err != nil {
		return decodeErr("invalid response object", err)
	}
	if key, err := duplicateMember(data); err != nil {
		return decodeErr("invalid response object", err)
	} else if key != "" {
		return decodeErr("duplicate field `"+key+"`", nil)
	}
	if len(in.ID) == 0 {
		return decodeErr("missing field `id`", nil)
	}
	var id ID
	if err := id.UnmarshalJSON(in.ID); err != nil {
		return decodeErr("invalid field `id`", err)
	}
	version, err := decodeVersion(in.Version)
	if err != nil {
		return err
	}

	var payload Payload[T]
	switch {
	case len(in.Result) > 0 && len(in.Error) > 0:
		return decodeErr("result and error are mutually exclusive", nil)
	case len(in.Result) > 0:
		var result T
		if err := json.Unmarshal(in.Result, &result); err != nil {
			return decodeErr("invalid field `result`", err)
		}
		payload = Success(result)
	case len(in.Error) > 0:
		var errObj ErrorObject
		if err := json.Unmarshal(in.Error, &errObj); err != nil {
			return decodeErr("invalid field `error`", err)
		}
		payload = Failure[T](&errObj)
	default:
		return decodeErr("missing field `result` or `error`", nil)
	}

	*r = Response[T]{
		Version: version,
		Payload: payload,
		ID:      id,
	}
	return nil
}

// duplicateMember returns the first response member that appears twice in
// the object. Member names match case-insensitively, like encoding/json does.
func duplicateMember(data []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return "", err
	}
	seen := map[string]bool{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		key, _ := tok.(string)
		switch key = strings.ToLower(key); key {
		case "jsonrpc", "id", "result", "error":
			if seen[key] {
				return key, nil
			}
			seen[key] = true
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return "", err
		}
	}
	return "", nil
}

// decodeVersion maps an absent or null "jsonrpc" member to nil.
func decodeVersion(raw json.RawMessage) (*TwoPointZero, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	v := new(TwoPointZero)
	if err := v.UnmarshalJSON(raw); err != nil {
		return nil, decodeErr("invalid field `jsonrpc`", err)
	}
	return v, nil
}
