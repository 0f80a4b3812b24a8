// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fabric

import (
	"net/netip"
	"slices"

	"code.hybscloud.com/ucp"
	"code.hybscloud.com/ucp/internal/tagmatch"
)

type endpointState uint8

const (
	endpointConnecting endpointState = iota
	endpointConnected
	endpointFailed
	endpointClosed
)

type endpoint struct {
	n       *node
	h       ucp.EndpointHandle
	onError ucp.ErrorCallback
	state   endpointState
	link    *link
	side    int
	peer    *endpoint
	outbox  []*sendOp
	local   netip.AddrPort
	conn    *connReq
}

type listener struct {
	n      *node
	h      ucp.ListenerHandle
	addr   netip.AddrPort
	onConn ucp.ConnCallback
}

// connReq is an inbound connection attempt waiting at a listener's node.
type connReq struct {
	h      ucp.ConnHandle
	l      *listener
	client *endpoint
}

type sendOp struct {
	req *tagmatch.Request
	msg tagmatch.Message
	cb  ucp.CompletionCallback
}

// node is one engine on the fabric.
type node struct {
	f         *Fabric
	addr      netip.Addr
	next      uint64
	m         *tagmatch.Matcher
	eps       []*endpoint
	byHandle  map[ucp.EndpointHandle]*endpoint
	listeners map[ucp.ListenerHandle]*listener
	conns     map[ucp.ConnHandle]*connReq
	closed    bool
}

func newNode(f *Fabric, addr netip.Addr) *node {
	return &node{
		f:         f,
		addr:      addr,
		m:         tagmatch.New(),
		byHandle:  make(map[ucp.EndpointHandle]*endpoint),
		listeners: make(map[ucp.ListenerHandle]*listener),
		conns:     make(map[ucp.ConnHandle]*connReq),
	}
}

func (n *node) handle() uint64 {
	n.next++
	return n.next
}

func (n *node) newEndpoint(onError ucp.ErrorCallback) *endpoint {
	ep := &endpoint{
		n:       n,
		h:       ucp.EndpointHandle(n.handle()),
		onError: onError,
		local:   netip.AddrPortFrom(n.addr, n.f.ephemeralPort()),
	}
	n.eps = append(n.eps, ep)
	n.byHandle[ep.h] = ep
	n.f.stats.EndpointsCreated++
	return ep
}

func (n *node) dropEndpoint(ep *endpoint) {
	delete(n.byHandle, ep.h)
	n.eps = slices.DeleteFunc(n.eps, func(e *endpoint) bool { return e == ep })
}

// Progress moves queued sends onto links, matches arrived messages against
// posted receives, then fires the callbacks that were ready at that point.
func (n *node) Progress() int {
	if n.closed {
		return 0
	}
	n.f.stats.Progress++
	work := 0
	for _, ep := range n.eps {
		work += n.flush(ep)
	}
	for _, ep := range n.eps {
		if ep.link == nil {
			continue
		}
		q := ep.link.in(ep.side)
		for {
			msg, err := q.Dequeue()
			if err != nil {
				break
			}
			n.m.Arrive(msg)
			work++
		}
	}
	return work + n.m.Fire()
}

// flush moves outbox sends onto the link in order until it is full.
func (n *node) flush(ep *endpoint) int {
	if ep.state != endpointConnected {
		return 0
	}
	moved := 0
	q := ep.link.out(ep.side)
	for len(ep.outbox) > 0 {
		op := ep.outbox[0]
		if err := q.Enqueue(&op.msg); err != nil {
			break
		}
		ep.outbox = ep.outbox[1:]
		n.m.Complete(op.req, ucp.OK, func() { op.cb(ucp.OK) })
		moved++
	}
	return moved
}

// fail moves ep to the failed state: queued sends are canceled and the
// error callback is scheduled, unless the endpoint is closed locally first.
// Once the callback has run the endpoint is torn down and its handle is no
// longer valid.
func (n *node) fail(ep *endpoint, st ucp.Status) {
	if ep.state == endpointFailed || ep.state == endpointClosed {
		return
	}
	ep.state = endpointFailed
	n.cancelOutbox(ep)
	n.m.Post(func() {
		if ep.state != endpointFailed {
			return
		}
		if ep.onError != nil {
			ep.onError(st)
		}
		ep.state = endpointClosed
		n.dropEndpoint(ep)
	})
}

func (n *node) cancelOutbox(ep *endpoint) {
	for _, op := range ep.outbox {
		n.m.Complete(op.req, ucp.ErrCanceled, func() { op.cb(ucp.ErrCanceled) })
	}
	ep.outbox = nil
}

func (n *node) Connect(addr netip.AddrPort, onError ucp.ErrorCallback) (ucp.EndpointHandle, ucp.Status) {
	if n.closed {
		return 0, ucp.ErrInvalidParam
	}
	l, ok := n.f.listeners[addr]
	if !ok {
		return 0, ucp.ErrUnreachable
	}
	ep := n.newEndpoint(onError)
	ln := l.n
	cr := &connReq{h: ucp.ConnHandle(ln.handle()), l: l, client: ep}
	ep.conn = cr
	ln.conns[cr.h] = cr
	n.f.stats.ConnRequests++
	ln.m.Post(func() {
		if _, live := ln.conns[cr.h]; live {
			l.onConn(cr.h)
		}
	})
	return ep.h, ucp.OK
}

func (n *node) Accept(conn ucp.ConnHandle, onError ucp.ErrorCallback) (ucp.EndpointHandle, ucp.Status) {
	cr, ok := n.conns[conn]
	if !ok {
		return 0, ucp.ErrInvalidParam
	}
	delete(n.conns, conn)
	client := cr.client
	client.conn = nil
	if client.state != endpointConnecting {
		return 0, ucp.ErrNotConnected
	}
	server := n.newEndpoint(onError)
	lk := newLink(n.f.cfg.linkCapacity)
	client.link, client.side, client.peer, client.state = lk, 0, server, endpointConnected
	server.link, server.side, server.peer, server.state = lk, 1, client, endpointConnected
	client.n.flush(client)
	return server.h, ucp.OK
}

func (n *node) Reject(conn ucp.ConnHandle) ucp.Status {
	cr, ok := n.conns[conn]
	if !ok {
		return ucp.ErrInvalidParam
	}
	delete(n.conns, conn)
	n.f.stats.Rejects++
	cr.client.conn = nil
	cr.client.n.fail(cr.client, ucp.ErrRejected)
	return ucp.OK
}

func (n *node) ConnAddr(conn ucp.ConnHandle) (netip.AddrPort, ucp.Status) {
	cr, ok := n.conns[conn]
	if !ok {
		return netip.AddrPort{}, ucp.ErrInvalidParam
	}
	return cr.client.local, ucp.OK
}

// CloseEndpoint always answers with a pending request that completes on
// the next Progress. The peer is failed with ErrConnectionReset.
func (n *node) CloseEndpoint(h ucp.EndpointHandle, mode ucp.CloseMode, cb ucp.CompletionCallback) (ucp.RequestHandle, ucp.Status) {
	ep, ok := n.byHandle[h]
	if !ok {
		return 0, ucp.ErrInvalidParam
	}
	n.f.stats.EndpointCloses++
	if mode == ucp.CloseFlush {
		n.flush(ep)
	}
	n.cancelOutbox(ep)
	if ep.conn != nil {
		delete(ep.conn.l.n.conns, ep.conn.h)
		ep.conn = nil
	}
	if ep.peer != nil {
		ep.peer.n.fail(ep.peer, ucp.ErrConnectionReset)
		ep.peer.peer = nil
	}
	ep.state = endpointClosed
	ep.peer = nil
	n.dropEndpoint(ep)
	r := n.m.NewRequest()
	n.m.Complete(r, ucp.OK, func() {
		if cb != nil {
			cb(ucp.OK)
		}
	})
	return r.Handle, ucp.InProgress
}

// TagSend completes at once when the payload fits the eager limit and the
// link has room; otherwise it queues behind earlier sends.
func (n *node) TagSend(h ucp.EndpointHandle, data []byte, tag ucp.Tag, cb ucp.CompletionCallback) (ucp.RequestHandle, ucp.Status) {
	ep, ok := n.byHandle[h]
	if !ok {
		return 0, ucp.ErrInvalidParam
	}
	switch ep.state {
	case endpointFailed:
		return 0, ucp.ErrConnectionReset
	case endpointClosed:
		return 0, ucp.ErrNotConnected
	}
	if cb == nil {
		cb = func(ucp.Status) {}
	}
	msg := tagmatch.Message{Tag: tag, Data: slices.Clone(data)}
	eager := len(data) <= n.f.cfg.eagerLimit
	if eager && ep.state == endpointConnected && len(ep.outbox) == 0 {
		if err := ep.link.out(ep.side).Enqueue(&msg); err == nil {
			return 0, ucp.OK
		}
	}
	op := &sendOp{req: n.m.NewRequest(), msg: msg, cb: cb}
	ep.outbox = append(ep.outbox, op)
	n.flush(ep)
	return op.req.Handle, ucp.InProgress
}

func (n *node) TagRecv(buf []byte, tag, mask ucp.Tag, cb ucp.RecvCallback) (ucp.RequestHandle, ucp.RecvInfo, ucp.Status) {
	if n.closed {
		return 0, ucp.RecvInfo{}, ucp.ErrInvalidParam
	}
	return n.m.Recv(buf, tag, mask, cb)
}

func (n *node) RequestStatus(h ucp.RequestHandle) ucp.Status { return n.m.Status(h) }

func (n *node) RequestFree(h ucp.RequestHandle) { n.m.Free(h) }

func (n *node) Listen(addr netip.AddrPort, onConn ucp.ConnCallback) (ucp.ListenerHandle, ucp.Status) {
	if n.closed {
		return 0, ucp.ErrInvalidParam
	}
	ip := addr.Addr()
	if ip.IsUnspecified() {
		ip = n.addr
	}
	port := addr.Port()
	if port == 0 {
		port = n.f.ephemeralPort()
	}
	bound := netip.AddrPortFrom(ip, port)
	if _, taken := n.f.listeners[bound]; taken {
		return 0, ucp.ErrBusy
	}
	l := &listener{n: n, h: ucp.ListenerHandle(n.handle()), addr: bound, onConn: onConn}
	n.listeners[l.h] = l
	n.f.listeners[bound] = l
	return l.h, ucp.OK
}

func (n *node) ListenerAddr(h ucp.ListenerHandle) (netip.AddrPort, ucp.Status) {
	l, ok := n.listeners[h]
	if !ok {
		return netip.AddrPort{}, ucp.ErrInvalidParam
	}
	return l.addr, ucp.OK
}

// DestroyListener unbinds the listener and rejects connection attempts
// still waiting at it.
func (n *node) DestroyListener(h ucp.ListenerHandle) {
	l, ok := n.listeners[h]
	if !ok {
		return
	}
	delete(n.listeners, h)
	delete(n.f.listeners, l.addr)
	for ch, cr := range n.conns {
		if cr.l == l {
			n.Reject(ch)
		}
	}
}

// Close destroys the node. Requests still allocated are counted as leaked.
func (n *node) Close() {
	if n.closed {
		return
	}
	for h := range n.listeners {
		n.DestroyListener(h)
	}
	for _, ep := range slices.Clone(n.eps) {
		if ep.peer != nil {
			ep.peer.n.fail(ep.peer, ucp.ErrConnectionReset)
			ep.peer.peer = nil
		}
		if ep.conn != nil {
			delete(ep.conn.l.n.conns, ep.conn.h)
		}
		ep.state = endpointClosed
		n.dropEndpoint(ep)
	}
	n.f.stats.LeakedRequests += uint64(n.m.Reset())
	n.closed = true
}
