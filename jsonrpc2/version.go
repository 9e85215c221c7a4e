package jsonrpc2

import (
	"bytes"
	"fmt"
)

// Version is the only protocol version this package speaks.
const Version = "2.0"

// TwoPointZero is an uninstantiated type which always marshals to our constant
// Version, and only succeeds to unmarshal if the version is exactly "2.0".
// Envelopes hold it by pointer: nil means the member was absent or null.
//
// Inspired by https://go-review.googlesource.com/c/tools/+/136675/1/internal/jsonrpc2/jsonrpc2.go#221
type TwoPointZero struct{}

var quotedVersion = []byte(`"` + Version + `"`)

func (v TwoPointZero) MarshalJSON() ([]byte, error) {
	return quotedVersion, nil
}

func (v *TwoPointZero) UnmarshalJSON(version []byte) error {
	if bytes.Equal(bytes.TrimSpace(version), quotedVersion) {
		return nil
	}
	return fmt.Errorf("unsupported version: %s", version)
}

// V2 returns a version marker to embed in outbound envelopes.
func V2() *TwoPointZero {
	return &TwoPointZero{}
}
