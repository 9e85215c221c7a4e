package client

import (
	"sort"
	"time"

	"github.com/vipnode/asyncrpc/jsonrpc2"
	"github.com/vipnode/asyncrpc/middleware"
)

const (
	// resolvedLimit is the number of resolved ids to remember before the
	// oldest get discarded.
	resolvedLimit = 1024
	// resolvedDiscard is the number of oldest resolved ids that get discarded
	// when resolvedLimit is reached.
	resolvedDiscard = 128
)

// pendingCall is a call or batch waiting for responses. It is owned by the
// dispatcher; the caller only reads from done.
type pendingCall struct {
	ids       []jsonrpc2.ID
	results   []middleware.MethodResult
	received  int
	batch     bool
	finished  bool
	subscribe *subscribeRequest
	timestamp time.Time

	// done receives exactly one result. It is buffered so the dispatcher
	// never blocks on it.
	done chan callResult
}

type callResult struct {
	results []middleware.MethodResult
	sub     *Subscription
	err     error
}

func newPendingCall(ids []jsonrpc2.ID, batch bool) *pendingCall {
	return &pendingCall{
		ids:       ids,
		results:   make([]middleware.MethodResult, len(ids)),
		batch:     batch,
		timestamp: time.Now(),
		done:      make(chan callResult, 1),
	}
}

func (c *pendingCall) index(id jsonrpc2.ID) int {
	for i, other := range c.ids {
		if other == id {
			return i
		}
	}
	return -1
}

type resolvedMsg struct {
	answered  bool
	timestamp time.Time
}

// pendingTable maps request ids to their calls and remembers recently
// resolved ids, so that a second response for an answered id is told apart
// from a late response for a call that timed out.
type pendingTable struct {
	calls    map[jsonrpc2.ID]*pendingCall
	resolved map[jsonrpc2.ID]resolvedMsg
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		calls:    map[jsonrpc2.ID]*pendingCall{},
		resolved: map[jsonrpc2.ID]resolvedMsg{},
	}
}

func (p *pendingTable) add(call *pendingCall) {
	for _, id := range call.ids {
		p.calls[id] = call
	}
}

func (p *pendingTable) get(id jsonrpc2.ID) (*pendingCall, bool) {
	call, ok := p.calls[id]
	return call, ok
}

// answer removes a single id of call after its response was matched.
func (p *pendingTable) answer(id jsonrpc2.ID) {
	delete(p.calls, id)
	p.remember(id, true)
}

// remove removes every id of call that is still pending.
func (p *pendingTable) remove(call *pendingCall) {
	for _, id := range call.ids {
		if p.calls[id] != call {
			continue
		}
		delete(p.calls, id)
		p.remember(id, false)
	}
}

func (p *pendingTable) lookupResolved(id jsonrpc2.ID) (resolvedMsg, bool) {
	r, ok := p.resolved[id]
	return r, ok
}

func (p *pendingTable) remember(id jsonrpc2.ID, answered bool) {
	if len(p.resolved) >= resolvedLimit {
		for _, item := range pendingOldest(p.resolved, resolvedDiscard) {
			delete(p.resolved, item.key)
		}
	}
	p.resolved[id] = resolvedMsg{answered: answered, timestamp: time.Now()}
}

// drain empties the table and returns every distinct pending call.
func (p *pendingTable) drain() []*pendingCall {
	seen := map[*pendingCall]struct{}{}
	calls := make([]*pendingCall, 0, len(p.calls))
	for id, call := range p.calls {
		delete(p.calls, id)
		if _, ok := seen[call]; ok {
			continue
		}
		seen[call] = struct{}{}
		calls = append(calls, call)
	}
	return calls
}

// Len returns the number of pending ids.
func (p *pendingTable) Len() int {
	return len(p.calls)
}

type pendingItem struct {
	key       jsonrpc2.ID
	timestamp time.Time
}

type pendingQueue []pendingItem

func (p pendingQueue) Len() int {
	return len(p)
}

func (p pendingQueue) Less(i, j int) bool {
	return p[i].timestamp.Before(p[j].timestamp)
}

func (p pendingQueue) Swap(i, j int) {
	p[i], p[j] = p[j], p[i]
}

func pendingOldest(resolved map[jsonrpc2.ID]resolvedMsg, num int) pendingQueue {
	if num > len(resolved) {
		num = len(resolved)
	}
	queue := make(pendingQueue, 0, len(resolved))
	for key, r := range resolved {
		queue = append(queue, pendingItem{
			key, r.timestamp,
		})
	}
	sort.Sort(queue)
	return queue[:num]
}
