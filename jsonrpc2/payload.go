package jsonrpc2

// Cow holds either a borrowed reference to a value or an owned copy of it.
// A borrowed Cow is only valid while the referenced value is; call IntoOwned
// before it outlives that, for example before it is queued.
type Cow[T any] struct {
	borrowed *T
	owned    T
}

// Owned wraps a value that the Cow owns.
func Owned[T any](v T) Cow[T] {
	return Cow[T]{owned: v}
}

// Borrowed wraps a reference to a value owned by someone else.
func Borrowed[T any](v *T) Cow[T] {
	return Cow[T]{borrowed: v}
}

// Get returns the value.
func (c Cow[T]) Get() T {
	if c.borrowed != nil {
		return *c.borrowed
	}
	return c.owned
}

// IsBorrowed returns true if the Cow refers to a value it does not own.
func (c Cow[T]) IsBorrowed() bool {
	return c.borrowed != nil
}

// IntoOwned copies a borrowed value into the Cow.
func (c Cow[T]) IntoOwned() Cow[T] {
	if c.borrowed == nil {
		return c
	}
	return Cow[T]{owned: *c.borrowed}
}

// Payload is the outcome carried by a Response: a successful result or an
// ErrorObject. The two are mutually exclusive.
type Payload[T any] struct {
	result Cow[T]
	err    *ErrorObject
}

// Success returns a successful payload owning v.
func Success[T any](v T) Payload[T] {
	return Payload[T]{result: Owned(v)}
}

// SuccessBorrowed returns a successful payload referring to v.
func SuccessBorrowed[T any](v *T) Payload[T] {
	return Payload[T]{result: Borrowed(v)}
}

// Failure returns an error payload.
func Failure[T any](err *ErrorObject) Payload[T] {
	if err == nil {
		err = &ErrorObject{Code: ErrCodeInternal, Message: "missing error object"}
	}
	return Payload[T]{err: err}
}

// IsSuccess returns true if the payload holds a result.
func (p Payload[T]) IsSuccess() bool {
	return p.err == nil
}

// Result returns the successful result; ok is false for error payloads.
func (p Payload[T]) Result() (result T, ok bool) {
	if p.err != nil {
		return result, false
	}
	return p.result.Get(), true
}

// Err returns the error object, or nil for successful payloads.
func (p Payload[T]) Err() *ErrorObject {
	return p.err
}

// IsBorrowed returns true if the payload refers to a result it does not own.
func (p Payload[T]) IsBorrowed() bool {
	return p.err == nil && p.result.IsBorrowed()
}

// IntoOwned normalizes a borrowed result into an owned one.
func (p Payload[T]) IntoOwned() Payload[T] {
	if p.err != nil {
		errCopy := *p.err
		return Payload[T]{err: &errCopy}
	}
	return Payload[T]{result: p.result.IntoOwned()}
}
