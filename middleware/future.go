package middleware

// Future is the pending result of a service operation. The zero value is not
// usable; create futures with Go or Ready.
type Future[T any] struct {
	f *future[T]
}

type future[T any] struct {
	done chan struct{}
	val  T
}

// Go runs fn in a new goroutine and returns a future for its result.
func Go[T any](fn func() T) Future[T] {
	f := &future[T]{done: make(chan struct{})}
	go func() {
		f.val = fn()
		close(f.done)
	}()
	return Future[T]{f}
}

// Ready returns an already resolved future.
func Ready[T any](v T) Future[T] {
	f := &future[T]{done: make(chan struct{}), val: v}
	close(f.done)
	return Future[T]{f}
}

// Then returns a future resolving to fn applied to the result of f.
func Then[T, U any](f Future[T], fn func(T) U) Future[U] {
	return Go(func() U {
		return fn(f.Wait())
	})
}

// Done is closed once the result is available.
func (f Future[T]) Done() <-chan struct{} {
	return f.f.done
}

// Wait blocks until the result is available and returns it.
func (f Future[T]) Wait() T {
	<-f.f.done
	return f.f.val
}
