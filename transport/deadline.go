package transport

import (
	"context"
	"time"
)

// abortRetry is how often a pending abort re-applies the expired deadline.
// Some websocket writers reset the deadline of the underlying connection
// right before writing, which could undo a single abort.
const abortRetry = 10 * time.Millisecond

// aLongTimeAgo is a deadline that has always passed.
var aLongTimeAgo = time.Unix(1, 0)

// WriteDeadliner is the part of net.Conn that can interrupt a blocked write.
type WriteDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// AbortWrite interrupts writes on conn once ctx is done, by moving the write
// deadline into the past. The returned stop func must be called after the
// write returned; it reports whether the write was aborted. The deadline is
// left expired after an abort.
func AbortWrite(ctx context.Context, conn WriteDeadliner) (stop func() bool) {
	finished := make(chan struct{})
	exited := make(chan struct{})
	stopWatch := context.AfterFunc(ctx, func() {
		defer close(exited)
		ticker := time.NewTicker(abortRetry)
		defer ticker.Stop()
		for {
			conn.SetWriteDeadline(aLongTimeAgo)
			select {
			case <-finished:
				return
			case <-ticker.C:
			}
		}
	})
	return func() bool {
		if stopWatch() {
			return false
		}
		close(finished)
		<-exited
		return true
	}
}
