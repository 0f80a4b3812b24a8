// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tagmatch is the engine-side half of tag matching shared by the
// ucp engines: the request table, the posted (expected) and arrived
// (unexpected) queues, and the ready-event FIFO that Progress fires.
//
// A Matcher is owned by one engine and used from the goroutine that steps it.
package tagmatch

import (
	"slices"

	"github.com/eapache/queue"

	"code.hybscloud.com/ucp"
)

// Message is one tagged payload handed to the matcher. The matcher owns Data.
type Message struct {
	Tag  ucp.Tag
	Data []byte
}

// Request is an engine request. Status is final once it is not InProgress;
// it changes only while events fire.
type Request struct {
	Handle ucp.RequestHandle
	Status ucp.Status
	recv   *recvOp
}

type recvOp struct {
	req  *Request
	buf  []byte
	tag  ucp.Tag
	mask ucp.Tag
	cb   ucp.RecvCallback
}

// Counters are the matcher's request accounting.
type Counters struct {
	Allocs      uint64
	Frees       uint64
	DoubleFrees uint64
}

// Matcher matches arrived messages against posted receives in order.
type Matcher struct {
	next       uint64
	events     *queue.Queue
	reqs       map[ucp.RequestHandle]*Request
	expected   []*recvOp
	unexpected []Message
	counters   Counters
}

// New returns an empty matcher.
func New() *Matcher {
	return &Matcher{
		events: queue.New(),
		reqs:   make(map[ucp.RequestHandle]*Request),
	}
}

// Counters returns the request accounting so far.
func (m *Matcher) Counters() Counters { return m.counters }

// Outstanding returns the number of requests not yet freed.
func (m *Matcher) Outstanding() int { return len(m.reqs) }

// Post schedules ev for the next Fire.
func (m *Matcher) Post(ev func()) { m.events.Add(ev) }

// Fire runs the events that were queued when it was called, in order.
// Events may post further events and may call Fire again.
func (m *Matcher) Fire() int {
	n := 0
	for ready := m.events.Length(); ready > 0 && m.events.Length() > 0; ready-- {
		ev := m.events.Remove().(func())
		ev()
		n++
	}
	return n
}

// NewRequest allocates an in-progress request.
func (m *Matcher) NewRequest() *Request {
	m.next++
	r := &Request{Handle: ucp.RequestHandle(m.next), Status: ucp.InProgress}
	m.reqs[r.Handle] = r
	m.counters.Allocs++
	return r
}

// Complete schedules r's completion for the next Fire: the status becomes
// visible together with cb, never earlier.
func (m *Matcher) Complete(r *Request, st ucp.Status, cb func()) {
	r.recv = nil
	m.Post(func() {
		r.Status = st
		cb()
	})
}

// Arrive matches msg against the oldest compatible posted receive, or
// keeps it for a later Recv.
func (m *Matcher) Arrive(msg Message) {
	for i, op := range m.expected {
		if ucp.Match(msg.Tag, op.tag, op.mask) {
			m.expected = slices.Delete(m.expected, i, i+1)
			info, st := deliver(op.buf, msg)
			m.Complete(op.req, st, func() { op.cb(st, info) })
			return
		}
	}
	m.unexpected = append(m.unexpected, msg)
}

// Recv posts buf for the next message matching (tag, mask). A message
// that already arrived resolves the receive immediately.
func (m *Matcher) Recv(buf []byte, tag, mask ucp.Tag, cb ucp.RecvCallback) (ucp.RequestHandle, ucp.RecvInfo, ucp.Status) {
	for i, msg := range m.unexpected {
		if ucp.Match(msg.Tag, tag, mask) {
			m.unexpected = slices.Delete(m.unexpected, i, i+1)
			info, st := deliver(buf, msg)
			return 0, info, st
		}
	}
	if cb == nil {
		cb = func(ucp.Status, ucp.RecvInfo) {}
	}
	op := &recvOp{req: m.NewRequest(), buf: buf, tag: tag, mask: mask, cb: cb}
	op.req.recv = op
	m.expected = append(m.expected, op)
	return op.req.Handle, ucp.RecvInfo{}, ucp.InProgress
}

// deliver copies msg into buf. A message longer than buf is truncated to
// its leading bytes and reported as ErrMessageTruncated.
func deliver(buf []byte, msg Message) (ucp.RecvInfo, ucp.Status) {
	k := copy(buf, msg.Data)
	info := ucp.RecvInfo{Length: k, SenderTag: msg.Tag}
	if k < len(msg.Data) {
		return info, ucp.ErrMessageTruncated
	}
	return info, ucp.OK
}

// Status returns the status of h, or ErrInvalidParam if h is not live.
func (m *Matcher) Status(h ucp.RequestHandle) ucp.Status {
	r, ok := m.reqs[h]
	if !ok {
		return ucp.ErrInvalidParam
	}
	return r.Status
}

// Free releases h. Freeing a receive that has not matched yet withdraws
// it, so it can no longer consume a message. Freeing an unknown handle is
// counted as a double free.
func (m *Matcher) Free(h ucp.RequestHandle) {
	r, ok := m.reqs[h]
	if !ok {
		m.counters.DoubleFrees++
		return
	}
	delete(m.reqs, h)
	m.counters.Frees++
	if r.recv != nil {
		m.expected = slices.DeleteFunc(m.expected, func(op *recvOp) bool { return op == r.recv })
		r.recv = nil
	}
}

// Reset drops every request, message and event. It returns the number of
// requests that were never freed.
func (m *Matcher) Reset() int {
	leaked := len(m.reqs)
	clear(m.reqs)
	m.expected = nil
	m.unexpected = nil
	m.events = queue.New()
	return leaked
}
