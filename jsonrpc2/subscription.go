package jsonrpc2

import (
	"encoding/json"
	"fmt"
)

// SubscriptionID identifies a server-side subscription. It is a number or a
// string, never null.
type SubscriptionID struct {
	ID
}

// NumberSubscriptionID returns a numeric subscription id.
func NumberSubscriptionID(n uint64) SubscriptionID {
	return SubscriptionID{NumberID(n)}
}

// StringSubscriptionID returns a string subscription id.
func StringSubscriptionID(s string) SubscriptionID {
	return SubscriptionID{StringID(s)}
}

func (id *SubscriptionID) UnmarshalJSON(data []byte) error {
	if err := id.ID.UnmarshalJSON(data); err != nil {
		return err
	}
	if id.IsNull() {
		return fmt.Errorf("invalid subscription id: null")
	}
	return nil
}

// SubscriptionPayload is the params of a subscription notification carrying a
// result.
type SubscriptionPayload[T any] struct {
	Subscription SubscriptionID `json:"subscription"`
	Result       T              `json:"result"`
}

// SubscriptionPayloadError is the params of a subscription notification
// carrying an error.
type SubscriptionPayloadError[T any] struct {
	Subscription SubscriptionID `json:"subscription"`
	Error        T              `json:"error"`
}

// SubscriptionParams is a decoded subscription notification. Exactly one of
// Result and Error is set.
type SubscriptionParams struct {
	Subscription SubscriptionID
	Result       json.RawMessage
	Error        json.RawMessage
}

type subscriptionIn struct {
	Subscription json.RawMessage `json:"subscription"`
	Result       json.RawMessage `json:"result"`
	Error        json.RawMessage `json:"error"`
}

// DecodeSubscriptionParams decodes the params of a notification as a
// subscription payload. A DecodeError means the notification is not a
// subscription notification.
func DecodeSubscriptionParams(params json.RawMessage) (*SubscriptionParams, error) {
	if len(params) == 0 {
		return nil, decodeErr("missing params", nil)
	}
	var in subscriptionIn
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, decodeErr("invalid subscription params", err)
	}
	if len(in.Subscription) == 0 {
		return nil, decodeErr("missing field `subscription`", nil)
	}
	var p SubscriptionParams
	if err := p.Subscription.UnmarshalJSON(in.Subscription); err != nil {
		return nil, decodeErr("invalid field `subscription`", err)
	}
	switch {
	case len(in.Result) > 0 && len(in.Error) > 0:
		return nil, decodeErr("result and error are mutually exclusive", nil)
	case len(in.Result) > 0:
		p.Result = in.Result
	case len(in.Error) > 0:
		p.Error = in.Error
	default:
		return nil, decodeErr("missing field `result` or `error`", nil)
	}
	return &p, nil
}
