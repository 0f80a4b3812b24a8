// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tcp

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"slices"
	"syscall"

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
	h       ucp.EndpointHandle
	onError ucp.ErrorCallback
	state   endpointState
	p       *pipe
	conn    net.Conn
	cancel  context.CancelFunc
	sends   map[ucp.RequestHandle]*sendOp
	backlog []outbound
	closing *sendOp
}

type sendOp struct {
	req *tagmatch.Request
	cb  ucp.CompletionCallback
}

type listener struct {
	h      ucp.ListenerHandle
	a      *acceptor
	onConn ucp.ConnCallback
}

type pendingConn struct {
	conn net.Conn
	l    *listener
}

type engine struct {
	cfg       config
	log       ucp.Logger
	next      uint64
	m         *tagmatch.Matcher
	eps       map[ucp.EndpointHandle]*endpoint
	listeners map[ucp.ListenerHandle]*listener
	retired   []*acceptor
	conns     map[ucp.ConnHandle]*pendingConn
	closed    bool
}

func newEngine(cfg config) *engine {
	return &engine{
		cfg:       cfg,
		log:       cfg.log,
		m:         tagmatch.New(),
		eps:       make(map[ucp.EndpointHandle]*endpoint),
		listeners: make(map[ucp.ListenerHandle]*listener),
		conns:     make(map[ucp.ConnHandle]*pendingConn),
	}
}

func (e *engine) handle() uint64 {
	e.next++
	return e.next
}

// start registers an endpoint and launches its writer. conn is nil for an
// outbound endpoint, which dials addr.
func (e *engine) start(addr netip.AddrPort, conn net.Conn, onError ucp.ErrorCallback) *endpoint {
	ctx, cancel := context.WithCancel(context.Background())
	ep := &endpoint{
		h:       ucp.EndpointHandle(e.handle()),
		onError: onError,
		p:       newPipe(e.cfg.queueCapacity),
		conn:    conn,
		cancel:  cancel,
		sends:   make(map[ucp.RequestHandle]*sendOp),
	}
	if conn != nil {
		ep.state = endpointConnected
	}
	e.eps[ep.h] = ep
	go ep.p.writer(ctx, e.cfg.dialTimeout, addr.String(), conn, e.log)
	return ep
}

// Progress collects accepted connections, dial outcomes, write acks and
// received frames from the pumps, then fires the callbacks that were ready
// at that point.
func (e *engine) Progress() int {
	if e.closed {
		return 0
	}
	work := 0
	for _, l := range e.listeners {
		work += e.pollListener(l)
	}
	e.reapRetired()
	for _, ep := range e.eps {
		work += e.pollEndpoint(ep)
	}
	return work + e.m.Fire()
}

func (e *engine) pollListener(l *listener) int {
	n := 0
	for {
		c, err := l.a.conns.Dequeue()
		if err != nil {
			return n
		}
		n++
		h := ucp.ConnHandle(e.handle())
		e.conns[h] = &pendingConn{conn: c, l: l}
		e.m.Post(func() {
			if _, live := e.conns[h]; live {
				l.onConn(h)
			}
		})
	}
}

// reapRetired closes connections that raced a listener's destruction and
// forgets acceptors whose goroutine has exited.
func (e *engine) reapRetired() {
	e.retired = slices.DeleteFunc(e.retired, func(a *acceptor) bool {
		for {
			c, err := a.conns.Dequeue()
			if err != nil {
				break
			}
			c.Close()
		}
		return a.done.Load() != 0
	})
}

func (e *engine) pollEndpoint(ep *endpoint) int {
	n := 0
	if ep.state == endpointConnecting {
		if r, err := ep.p.dialed.Dequeue(); err == nil {
			n++
			if r.err != nil {
				e.fail(ep, ucp.ErrUnreachable)
				return n
			}
			ep.conn = r.conn
			ep.state = endpointConnected
		}
	}
	for {
		a, err := ep.p.acks.Dequeue()
		if err != nil {
			break
		}
		n++
		if op, ok := ep.sends[a.req]; ok {
			delete(ep.sends, a.req)
			st := a.status
			e.m.Complete(op.req, st, func() { op.cb(st) })
		}
	}
	for len(ep.backlog) > 0 {
		if err := ep.p.outbox.Enqueue(&ep.backlog[0]); err != nil {
			break
		}
		ep.backlog = ep.backlog[1:]
		n++
	}
	for ep.state != endpointClosed {
		in, err := ep.p.inbox.Dequeue()
		if err != nil {
			break
		}
		n++
		if in.fail != ucp.OK {
			e.fail(ep, in.fail)
			break
		}
		e.m.Arrive(tagmatch.Message{Tag: in.msg.tag, Data: in.msg.data})
	}
	if ep.closing != nil && len(ep.sends) == 0 {
		e.finishClose(ep)
		n++
	}
	return n
}

// fail moves ep to the failed state and stops its pumps. The error
// callback is scheduled unless the endpoint is closed locally first; a
// flushing close in progress completes instead. After the callback the
// endpoint is forgotten.
func (e *engine) fail(ep *endpoint, st ucp.Status) {
	if ep.state == endpointFailed || ep.state == endpointClosed {
		return
	}
	e.log.Debug("tcp: endpoint failed", "endpoint", uint64(ep.h), "status", st.Error())
	ep.state = endpointFailed
	e.halt(ep)
	if ep.closing != nil {
		e.finishClose(ep)
		return
	}
	e.m.Post(func() {
		if ep.state != endpointFailed {
			return
		}
		if ep.onError != nil {
			ep.onError(st)
		}
		ep.state = endpointClosed
		delete(e.eps, ep.h)
	})
}

// halt stops the pumps, drops the socket and cancels unfinished sends.
func (e *engine) halt(ep *endpoint) {
	ep.p.stop.Store(1)
	ep.cancel()
	if ep.conn != nil {
		ep.conn.Close()
	}
	for h, op := range ep.sends {
		delete(ep.sends, h)
		e.m.Complete(op.req, ucp.ErrCanceled, func() { op.cb(ucp.ErrCanceled) })
	}
	ep.backlog = nil
}

func (e *engine) finishClose(ep *endpoint) {
	op := ep.closing
	ep.closing = nil
	e.shutdown(ep)
	e.m.Complete(op.req, ucp.OK, func() { op.cb(ucp.OK) })
}

func (e *engine) shutdown(ep *endpoint) {
	e.halt(ep)
	ep.state = endpointClosed
	delete(e.eps, ep.h)
}

func (e *engine) Connect(addr netip.AddrPort, onError ucp.ErrorCallback) (ucp.EndpointHandle, ucp.Status) {
	if e.closed {
		return 0, ucp.ErrInvalidParam
	}
	if !addr.IsValid() || addr.Port() == 0 {
		return 0, ucp.ErrInvalidAddr
	}
	return e.start(addr, nil, onError).h, ucp.OK
}

func (e *engine) Accept(conn ucp.ConnHandle, onError ucp.ErrorCallback) (ucp.EndpointHandle, ucp.Status) {
	pc, ok := e.conns[conn]
	if !ok {
		return 0, ucp.ErrInvalidParam
	}
	delete(e.conns, conn)
	return e.start(netip.AddrPort{}, pc.conn, onError).h, ucp.OK
}

func (e *engine) Reject(conn ucp.ConnHandle) ucp.Status {
	pc, ok := e.conns[conn]
	if !ok {
		return ucp.ErrInvalidParam
	}
	delete(e.conns, conn)
	go refuse(pc.conn, e.cfg.dialTimeout)
	return ucp.OK
}

func (e *engine) ConnAddr(conn ucp.ConnHandle) (netip.AddrPort, ucp.Status) {
	pc, ok := e.conns[conn]
	if !ok {
		return netip.AddrPort{}, ucp.ErrInvalidParam
	}
	addr, err := netip.ParseAddrPort(pc.conn.RemoteAddr().String())
	if err != nil {
		return netip.AddrPort{}, ucp.ErrInvalidAddr
	}
	return addr, ucp.OK
}

// CloseEndpoint with CloseForce drops the socket at once and resolves
// immediately. CloseFlush waits for sends already handed to the writer.
func (e *engine) CloseEndpoint(h ucp.EndpointHandle, mode ucp.CloseMode, cb ucp.CompletionCallback) (ucp.RequestHandle, ucp.Status) {
	ep, ok := e.eps[h]
	if !ok || ep.closing != nil {
		return 0, ucp.ErrInvalidParam
	}
	if mode == ucp.CloseFlush && ep.state != endpointFailed && (len(ep.sends) > 0 || len(ep.backlog) > 0) {
		if cb == nil {
			cb = func(ucp.Status) {}
		}
		ep.closing = &sendOp{req: e.m.NewRequest(), cb: cb}
		return ep.closing.req.Handle, ucp.InProgress
	}
	e.shutdown(ep)
	return 0, ucp.OK
}

func (e *engine) TagSend(h ucp.EndpointHandle, data []byte, tag ucp.Tag, cb ucp.CompletionCallback) (ucp.RequestHandle, ucp.Status) {
	ep, ok := e.eps[h]
	if !ok {
		return 0, ucp.ErrInvalidParam
	}
	switch {
	case ep.state == endpointFailed:
		return 0, ucp.ErrConnectionReset
	case ep.closing != nil:
		return 0, ucp.ErrNotConnected
	case len(data) > MaxFrameSize:
		return 0, ucp.ErrInvalidParam
	}
	if cb == nil {
		cb = func(ucp.Status) {}
	}
	op := &sendOp{req: e.m.NewRequest(), cb: cb}
	ep.sends[op.req.Handle] = op
	out := outbound{req: op.req.Handle, tag: tag, data: slices.Clone(data)}
	if len(ep.backlog) > 0 || ep.p.outbox.Enqueue(&out) != nil {
		ep.backlog = append(ep.backlog, out)
	}
	return op.req.Handle, ucp.InProgress
}

func (e *engine) TagRecv(buf []byte, tag, mask ucp.Tag, cb ucp.RecvCallback) (ucp.RequestHandle, ucp.RecvInfo, ucp.Status) {
	if e.closed {
		return 0, ucp.RecvInfo{}, ucp.ErrInvalidParam
	}
	return e.m.Recv(buf, tag, mask, cb)
}

func (e *engine) RequestStatus(h ucp.RequestHandle) ucp.Status { return e.m.Status(h) }

func (e *engine) RequestFree(h ucp.RequestHandle) { e.m.Free(h) }

func (e *engine) Listen(addr netip.AddrPort, onConn ucp.ConnCallback) (ucp.ListenerHandle, ucp.Status) {
	if e.closed {
		return 0, ucp.ErrInvalidParam
	}
	ln, err := net.Listen("tcp", addr.String())
	if err != nil {
		e.log.Debug("tcp: listen failed", "addr", addr.String(), "error", err)
		if errors.Is(err, syscall.EADDRINUSE) {
			return 0, ucp.ErrBusy
		}
		return 0, ucp.ErrIO
	}
	l := &listener{
		h:      ucp.ListenerHandle(e.handle()),
		a:      newAcceptor(ln, e.cfg.queueCapacity),
		onConn: onConn,
	}
	e.listeners[l.h] = l
	go l.a.run(e.log)
	return l.h, ucp.OK
}

func (e *engine) ListenerAddr(h ucp.ListenerHandle) (netip.AddrPort, ucp.Status) {
	l, ok := e.listeners[h]
	if !ok {
		return netip.AddrPort{}, ucp.ErrInvalidParam
	}
	addr, err := netip.ParseAddrPort(l.a.ln.Addr().String())
	if err != nil {
		return netip.AddrPort{}, ucp.ErrInvalidAddr
	}
	return addr, ucp.OK
}

// DestroyListener closes the socket and refuses connections accepted but
// not yet handed out.
func (e *engine) DestroyListener(h ucp.ListenerHandle) {
	l, ok := e.listeners[h]
	if !ok {
		return
	}
	delete(e.listeners, h)
	l.a.stop.Store(1)
	l.a.ln.Close()
	e.retired = append(e.retired, l.a)
	for ch, pc := range e.conns {
		if pc.l == l {
			e.Reject(ch)
		}
	}
}

// Close destroys the engine: listeners and endpoints are torn down and
// every pump is told to stop.
func (e *engine) Close() {
	if e.closed {
		return
	}
	for h := range e.listeners {
		e.DestroyListener(h)
	}
	for _, ep := range e.eps {
		e.shutdown(ep)
	}
	for h, pc := range e.conns {
		delete(e.conns, h)
		pc.conn.Close()
	}
	e.reapRetired()
	if leaked := e.m.Reset(); leaked > 0 {
		e.log.Warn("tcp: engine closed with requests outstanding", "count", leaked)
	}
	e.closed = true
}
