package jsonrpc2

import (
	"encoding/json"
)

// MessageKind classifies an inbound JSONRPC object.
type MessageKind int

const (
	KindInvalid MessageKind = iota
	// KindResponse has an id and a result or error.
	KindResponse
	// KindNotification has a method and no id.
	KindNotification
	// KindRequest has a method and an id: a call from the remote side.
	KindRequest
)

func (k MessageKind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	case KindRequest:
		return "request"
	}
	return "invalid"
}

// Message is one inbound JSONRPC object, classified but not yet decoded
// against a result type.
type Message struct {
	Kind MessageKind
	// Raw is the complete object, for decoding with DecodeResponse.
	Raw json.RawMessage
	// ID is set for responses and requests.
	ID     ID
	Method string
	Params json.RawMessage
	// Err is set when Kind is KindInvalid.
	Err error
}

func (msg *Message) String() string {
	return string(msg.Raw)
}

type messageProbe struct {
	ID     json.RawMessage `json:"id"`
	Method *string         `json:"method"`
	Params json.RawMessage `json:"params"`
}

// ParseMessages splits an inbound frame into messages. A frame is a single
// object or a batch array. An error is only returned if the frame is not valid
// JSON at all; problems with individual objects are reported in Message.Err.
func ParseMessages(frame []byte) (msgs []Message, batch bool, err error) {
	if isArray(frame) {
		var raws []json.RawMessage
		if err := json.Unmarshal(frame, &raws); err != nil {
			return nil, true, decodeErr("invalid batch", err)
		}
		if len(raws) == 0 {
			return nil, true, decodeErr("empty batch", nil)
		}
		msgs = make([]Message, 0, len(raws))
		for _, raw := range raws {
			msgs = append(msgs, classify(raw))
		}
		return msgs, true, nil
	}
	if !json.Valid(frame) {
		return nil, false, decodeErr("invalid JSON frame", nil)
	}
	raw := make(json.RawMessage, len(frame))
	copy(raw, frame)
	return []Message{classify(raw)}, false, nil
}

func classify(raw json.RawMessage) Message {
	msg := Message{Raw: raw}
	var probe messageProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		msg.Err = decodeErr("invalid message object", err)
		return msg
	}
	if len(probe.ID) > 0 {
		if err := msg.ID.UnmarshalJSON(probe.ID); err != nil {
			msg.Err = decodeErr("invalid field `id`", err)
			return msg
		}
	}
	switch {
	case probe.Method != nil && len(probe.ID) == 0:
		msg.Kind = KindNotification
	case probe.Method != nil:
		msg.Kind = KindRequest
	case len(probe.ID) > 0:
		msg.Kind = KindResponse
	default:
		msg.Err = decodeErr("neither a response nor a notification", nil)
		return msg
	}
	if probe.Method != nil {
		msg.Method = *probe.Method
	}
	msg.Params = probe.Params
	return msg
}
