package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vipnode/asyncrpc/jsonrpc2"
	"github.com/vipnode/asyncrpc/middleware"
)

// dispatcher is the state owned by the dispatch goroutine. Nothing else
// touches it.
type dispatcher struct {
	remote     *Remote
	pending    *pendingTable
	subs       map[jsonrpc2.SubscriptionID]*Subscription
	methodSubs map[string]*Subscription
}

func (d *dispatcher) handleCommand(cmd command) {
	switch cmd := cmd.(type) {
	case registerCmd:
		d.pending.add(cmd.call)
	case cancelCmd:
		if cmd.call.finished {
			return
		}
		d.pending.remove(cmd.call)
		d.resolve(cmd.call, callResult{err: cmd.err})
	case subscribeMethodCmd:
		if _, ok := d.methodSubs[cmd.sub.method]; ok {
			cmd.reply <- fmt.Errorf("already subscribed to method %q", cmd.sub.method)
			return
		}
		d.methodSubs[cmd.sub.method] = cmd.sub
		cmd.reply <- nil
	case forgetCmd:
		d.dropSubscription(cmd.sub)
	case statsCmd:
		cmd.reply <- d.stats()
	default:
		panic(fmt.Sprintf("client: unknown command %T", cmd))
	}
}

func (d *dispatcher) stats() Stats {
	return Stats{
		Pending:       d.pending.Len(),
		Subscriptions: len(d.subs) + len(d.methodSubs),
	}
}

func (d *dispatcher) handleFrame(frame []byte) {
	msgs, batch, err := jsonrpc2.ParseMessages(frame)
	if err != nil {
		d.protocolError(err)
		return
	}
	var batches []*pendingCall
	for _, msg := range msgs {
		switch msg.Kind {
		case jsonrpc2.KindResponse:
			call := d.handleResponse(msg)
			if batch && call != nil && call.batch {
				batches = append(batches, call)
			}
		case jsonrpc2.KindNotification:
			d.handleNotification(msg)
		case jsonrpc2.KindRequest:
			logger.Debugf("dropping request from remote: method=%s id=%s", msg.Method, msg.ID)
		default:
			d.protocolError(msg.Err)
		}
	}
	// A batch response frame carries every answer to its batch; whatever
	// is left unanswered is not coming.
	for _, call := range batches {
		if call.finished {
			continue
		}
		for i := range call.results {
			if call.results[i].Response == nil && call.results[i].Err == nil {
				call.results[i].Err = ErrBatchResponseMissing
			}
		}
		d.pending.remove(call)
		d.finish(call)
	}
}

// handleResponse matches msg to its pending call and returns the call.
func (d *dispatcher) handleResponse(msg jsonrpc2.Message) *pendingCall {
	call, ok := d.pending.get(msg.ID)
	if !ok {
		resolved, seen := d.pending.lookupResolved(msg.ID)
		switch {
		case seen && resolved.answered:
			d.protocolError(&DuplicateResponseError{ID: msg.ID})
		case seen:
			logger.Debugf("discarding late response: id=%s", msg.ID)
		default:
			logger.Debugf("dropping response for unknown id: id=%s", msg.ID)
		}
		return nil
	}
	d.pending.answer(msg.ID)

	resp, err := jsonrpc2.DecodeResponse[json.RawMessage](msg.Raw)
	if err != nil {
		d.protocolError(err)
	}
	call.results[call.index(msg.ID)] = middleware.MethodResult{Response: resp, Err: err}
	call.received++
	if call.received == len(call.ids) {
		d.finish(call)
	}
	return call
}

// finish resolves a call whose every id was answered.
func (d *dispatcher) finish(call *pendingCall) {
	res := callResult{results: call.results}
	if call.subscribe != nil {
		res.sub = d.openSubscription(call)
	}
	d.resolve(call, res)
}

func (d *dispatcher) resolve(call *pendingCall, res callResult) {
	call.finished = true
	call.done <- res
}

// openSubscription registers the subscription named by a subscribe response.
// It runs before any later frame is handled, so no notification for the new
// id can be missed.
func (d *dispatcher) openSubscription(call *pendingCall) *Subscription {
	result := &call.results[0]
	if result.Err != nil {
		return nil
	}
	raw, ok := result.Response.Payload.Result()
	if !ok {
		return nil
	}
	var id jsonrpc2.SubscriptionID
	if err := json.Unmarshal(raw, &id); err != nil {
		result.Err = &jsonrpc2.DecodeError{Reason: "invalid subscription id", Err: err}
		return nil
	}
	if _, ok := d.subs[id]; ok {
		result.Err = fmt.Errorf("duplicate subscription id %s", id)
		return nil
	}
	sub := newSubscription(d.remote, d.remote.cfg.bufferCapacity, d.remote.cfg.overflow)
	sub.id = id
	sub.unsubscribeMethod = call.subscribe.unsubscribeMethod
	d.subs[id] = sub
	return sub
}

func (d *dispatcher) handleNotification(msg jsonrpc2.Message) {
	if params, err := jsonrpc2.DecodeSubscriptionParams(msg.Params); err == nil {
		if sub, ok := d.subs[params.Subscription]; ok {
			n := notification{result: params.Result}
			if params.Error != nil {
				n = notification{err: &SubscriptionError{Subscription: params.Subscription, Data: params.Error}}
			}
			d.deliver(sub, n)
			return
		}
	}
	if sub, ok := d.methodSubs[msg.Method]; ok {
		d.deliver(sub, notification{result: msg.Params})
		return
	}
	logger.Debugf("dropping notification: method=%s", msg.Method)
}

func (d *dispatcher) deliver(sub *Subscription, n notification) {
	if !sub.push(n) {
		return
	}
	logger.Warningf("closing subscription on queue overflow: id=%s method=%s", sub.id, sub.method)
	d.dropSubscription(sub)
	if sub.unsubscribeMethod == "" {
		return
	}
	go func() {
		// Bounded by the request timeout.
		if err := sub.unsubscribeRemote(context.Background()); err != nil {
			logger.Debugf("unsubscribe after overflow failed: id=%s err=%s", sub.id, err)
		}
	}()
}

func (d *dispatcher) dropSubscription(sub *Subscription) {
	if sub.method != "" {
		if d.methodSubs[sub.method] == sub {
			delete(d.methodSubs, sub.method)
		}
		return
	}
	if d.subs[sub.id] == sub {
		delete(d.subs, sub.id)
	}
}

func (d *dispatcher) protocolError(err error) {
	logger.Warningf("protocol error: %s", err)
	if d.remote.cfg.onProtocolError != nil {
		d.remote.cfg.onProtocolError(err)
	}
}

// teardown resolves everything outstanding with a *ConnectionClosedError.
func (d *dispatcher) teardown(cause error) {
	r := d.remote
	r.err = cause
	closedErr := &ConnectionClosedError{Err: cause}
	for _, call := range d.pending.drain() {
		d.resolve(call, callResult{err: closedErr})
	}
	for id, sub := range d.subs {
		delete(d.subs, id)
		sub.close(closedErr)
	}
	for method, sub := range d.methodSubs {
		delete(d.methodSubs, method)
		sub.close(closedErr)
	}
	if err := r.sender.Close(); err != nil {
		logger.Debugf("closing transport: %s", err)
	}
	r.final = d.stats()
	logger.Debugf("connection closed: %s", cause)
	close(r.done)
}
