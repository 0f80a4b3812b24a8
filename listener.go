// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

import (
	"fmt"
	"net/netip"
)

// ConnHandler handles one inbound connection attempt. It runs inside a
// progress step of w and should either Accept req or Reject it; a request
// left alone stays valid until the listener closes.
type ConnHandler[S any] func(req *ConnRequest, w *Worker, state S)

// dispatcher is the listener's dispatch context: handler, state and worker.
type dispatcher interface {
	dispatch(req *ConnRequest)
}

type connDispatch[S any] struct {
	handler ConnHandler[S]
	state   S
	w       *Worker
}

// dispatch hands the handler its own copy of the state.
func (d *connDispatch[S]) dispatch(req *ConnRequest) {
	d.handler(req, d.w, d.state)
}

// Listener accepts inbound connections on a bound address.
// The listener owns its dispatch context; the engine only holds a cookie
// that is invalidated when the listener closes.
type Listener struct {
	w        *Worker
	h        ListenerHandle
	cookie   uint64
	dispatch dispatcher
	serial   Serial
	reqs     map[*ConnRequest]struct{}
	closed   bool
}

// Listen binds address ("ip:port", port 0 picks one) and dispatches each
// inbound connection attempt to handler together with a copy of state.
// Dispatch happens inside w's progress steps. A panicking handler is
// recovered and logged; the connection it was given is rejected unless it
// was already consumed.
func Listen[S any](w *Worker, address string, handler ConnHandler[S], state S) (*Listener, error) {
	addr, err := netip.ParseAddrPort(address)
	if err != nil {
		return nil, &BindError{Addr: address, Err: ErrInvalidAddress}
	}
	if handler == nil {
		return nil, &BindError{Addr: address, Err: ErrInvalidParam}
	}
	if err := w.acquire(); err != nil {
		return nil, &BindError{Addr: address, Err: err}
	}
	l := &Listener{
		w:        w,
		dispatch: &connDispatch[S]{handler: handler, state: state, w: w},
		serial:   nextSerial(),
		reqs:     make(map[*ConnRequest]struct{}),
	}
	l.cookie = w.table.insert(l)
	h, st := w.eng.Listen(addr, l.onConn())
	if st != OK {
		w.table.remove(l.cookie)
		l.closed = true
		w.release()
		return nil, &BindError{Addr: address, Err: FromStatus(st)}
	}
	l.h = h
	w.log.Debug("ucp: listener bound", "worker", w.serial, "listener", l.serial, "addr", l.Addr().String())
	return l, nil
}

// onConn returns the engine connection callback. A connection arriving for
// a listener that no longer exists is rejected.
func (l *Listener) onConn() ConnCallback {
	t, c, eng := &l.w.table, l.cookie, l.w.eng
	return func(conn ConnHandle) {
		v, ok := lookup[*Listener](t, c)
		if !ok {
			eng.Reject(conn)
			return
		}
		v.deliver(conn)
	}
}

func (l *Listener) deliver(conn ConnHandle) {
	req := &ConnRequest{l: l, h: conn}
	l.reqs[req] = struct{}{}
	l.w.m.dispatches.Inc()
	defer func() {
		if p := recover(); p != nil {
			l.w.m.handlerPanics.Inc()
			l.w.log.Error("ucp: listener handler panicked", "listener", l.serial, "panic", fmt.Sprint(p))
			if !req.consumed && !l.closed {
				_ = req.Reject()
			}
		}
	}()
	l.dispatch.dispatch(req)
}

// Addr returns the bound address, with the port resolved if 0 was asked for.
func (l *Listener) Addr() netip.AddrPort {
	if l.closed {
		return netip.AddrPort{}
	}
	addr, _ := l.w.eng.ListenerAddr(l.h)
	return addr
}

// Serial returns the listener's serial.
func (l *Listener) Serial() Serial { return l.serial }

// Close unregisters the listener. Connection requests not yet consumed are
// rejected and can no longer be accepted. Close is idempotent.
func (l *Listener) Close() {
	if l.closed {
		return
	}
	l.closed = true
	l.w.table.remove(l.cookie)
	for req := range l.reqs {
		l.w.eng.Reject(req.h)
	}
	clear(l.reqs)
	l.w.eng.DestroyListener(l.h)
	l.w.log.Debug("ucp: listener closed", "listener", l.serial)
	l.w.release()
}

// ConnRequest is a single-use token for an inbound connection attempt.
// Accept or Reject consumes it; any further use fails.
type ConnRequest struct {
	l        *Listener
	h        ConnHandle
	consumed bool
}

func (r *ConnRequest) take() (ConnHandle, error) {
	if r.consumed {
		return 0, ErrConnRequestConsumed
	}
	if r.l.closed {
		return 0, ErrListenerClosed
	}
	r.consumed = true
	delete(r.l.reqs, r)
	return r.h, nil
}

// Reject consumes the request and refuses the connection.
func (r *ConnRequest) Reject() error {
	h, err := r.take()
	if err != nil {
		return err
	}
	return FromStatus(r.l.w.eng.Reject(h))
}

// RemoteAddr returns the address the connection attempt came from.
func (r *ConnRequest) RemoteAddr() (netip.AddrPort, error) {
	if r.consumed {
		return netip.AddrPort{}, ErrConnRequestConsumed
	}
	if r.l.closed {
		return netip.AddrPort{}, ErrListenerClosed
	}
	addr, st := r.l.w.eng.ConnAddr(r.h)
	return addr, FromStatus(st)
}
