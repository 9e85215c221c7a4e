package jsonrpc2

// Extensions is a type-keyed bag of out-of-band values attached to requests and
// responses. It never appears on the wire. Layers use it to pass metadata to
// each other, and the client uses it to hand back subscription handles.
type Extensions struct {
	values map[interface{}]interface{}
}

type extKey[T any] struct{}

// SetExtension stores v, replacing any earlier value of the same type.
func SetExtension[T any](ext *Extensions, v T) {
	if ext.values == nil {
		ext.values = map[interface{}]interface{}{}
	}
	ext.values[extKey[T]{}] = v
}

// GetExtension returns the value of type T, if one was stored.
func GetExtension[T any](ext Extensions) (T, bool) {
	v, ok := ext.values[extKey[T]{}].(T)
	return v, ok
}

// Len returns the number of stored values.
func (ext Extensions) Len() int {
	return len(ext.values)
}

// Clone returns a shallow copy, so the copy can be modified independently.
func (ext Extensions) Clone() Extensions {
	if ext.values == nil {
		return Extensions{}
	}
	values := make(map[interface{}]interface{}, len(ext.values))
	for k, v := range ext.values {
		values[k] = v
	}
	return Extensions{values: values}
}
