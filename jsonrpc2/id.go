package jsonrpc2

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type idKind uint8

const (
	idNull idKind = iota
	idNumber
	idString
)

// ID is a JSONRPC request id: a number, a string or null. The zero value is
// the null id. IDs are comparable and can be used as map keys.
type ID struct {
	kind idKind
	num  uint64
	str  string
}

// NullID is the null request id.
var NullID = ID{}

// NumberID returns a numeric id.
func NumberID(n uint64) ID {
	return ID{kind: idNumber, num: n}
}

// StringID returns a string id.
func StringID(s string) ID {
	return ID{kind: idString, str: s}
}

// IsNull returns true for the null id.
func (id ID) IsNull() bool {
	return id.kind == idNull
}

// Number returns the numeric value, if the id is a number.
func (id ID) Number() (uint64, bool) {
	return id.num, id.kind == idNumber
}

// Text returns the string value, if the id is a string.
func (id ID) Text() (string, bool) {
	return id.str, id.kind == idString
}

// String formats the id the way it appears on the wire.
func (id ID) String() string {
	switch id.kind {
	case idNumber:
		return strconv.FormatUint(id.num, 10)
	case idString:
		return strconv.Quote(id.str)
	}
	return "null"
}

func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idNumber:
		return strconv.AppendUint(nil, id.num, 10), nil
	case idString:
		return json.Marshal(id.str)
	}
	return []byte("null"), nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("invalid id: empty")
	}
	switch data[0] {
	case 'n':
		if string(data) != "null" {
			return fmt.Errorf("invalid id: %s", data)
		}
		*id = NullID
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id: %s", data)
	}
	*id = NumberID(n)
	return nil
}

// IDKind is the policy used to encode generated request ids.
type IDKind int

const (
	// IDKindNumber encodes ids as JSON numbers: 0, 1, 2...
	IDKindNumber IDKind = iota
	// IDKindString encodes ids as decimal JSON strings: "0", "1", "2"...
	IDKindString
)

// ID encodes the n-th generated id according to the kind.
func (k IDKind) ID(n uint64) ID {
	if k == IDKindString {
		return StringID(strconv.FormatUint(n, 10))
	}
	return NumberID(n)
}

func (k IDKind) String() string {
	if k == IDKindString {
		return "string"
	}
	return "number"
}

// ParseIDKind parses "number" or "string".
func ParseIDKind(s string) (IDKind, error) {
	switch s {
	case "number", "":
		return IDKindNumber, nil
	case "string":
		return IDKindString, nil
	}
	return IDKindNumber, fmt.Errorf("unknown id kind: %q", s)
}
