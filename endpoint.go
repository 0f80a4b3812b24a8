// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

import (
	"fmt"
	"net/netip"

	"code.hybscloud.com/atomix"
)

type endpointState uint8

const (
	endpointOpen endpointState = iota
	endpointClosing
	endpointClosed
)

// closedFlag is the cell shared between an endpoint and the error callback
// the engine holds for it. The callback is the only writer; the endpoint
// reads it at teardown.
type closedFlag struct {
	v atomix.Uint32
}

func (f *closedFlag) set()        { f.v.Store(1) }
func (f *closedFlag) isSet() bool { return f.v.Load() != 0 }

// Endpoint is a bidirectional tag-matched channel to one peer.
//
// Teardown runs once, on the first Close. If the engine reported a peer
// failure through the error callback, the channel is already gone and no
// close request is issued. Otherwise a forced close request is issued and
// waited for by stepping the worker.
type Endpoint struct {
	w      *Worker
	h      EndpointHandle
	flag   *closedFlag
	cookie uint64
	serial Serial
	state  endpointState
	proto  sessionContext
}

func newEndpoint(w *Worker) *Endpoint {
	ep := &Endpoint{w: w, flag: &closedFlag{}, serial: nextSerial()}
	ep.cookie = w.table.insert(ep.flag)
	ep.proto.ep = ep
	return ep
}

// onError returns the engine error callback. It resolves the flag through
// the worker table, so once the endpoint is torn down it does nothing.
func (ep *Endpoint) onError() ErrorCallback {
	t, c, w, s := &ep.w.table, ep.cookie, ep.w, ep.serial
	return func(st Status) {
		if f, ok := lookup[*closedFlag](t, c); ok {
			f.set()
			w.log.Debug("ucp: endpoint peer failure", "endpoint", s, "status", st.Error())
		}
	}
}

// abandon undoes newEndpoint after the engine refused the endpoint.
func (ep *Endpoint) abandon() {
	ep.w.table.remove(ep.cookie)
	ep.state = endpointClosed
	ep.w.release()
}

func (ep *Endpoint) opened(h EndpointHandle) {
	ep.h = h
	ep.w.m.endpoints.Inc()
}

// Connect establishes an outbound endpoint to address ("ip:port").
func Connect(w *Worker, address string) (*Endpoint, error) {
	addr, err := netip.ParseAddrPort(address)
	if err != nil {
		return nil, &ConnectError{Addr: address, Err: ErrInvalidAddress}
	}
	if err := w.acquire(); err != nil {
		return nil, &ConnectError{Addr: address, Err: err}
	}
	ep := newEndpoint(w)
	h, st := w.eng.Connect(addr, ep.onError())
	if st != OK {
		ep.abandon()
		return nil, &ConnectError{Addr: address, Err: FromStatus(st)}
	}
	ep.opened(h)
	w.log.Debug("ucp: endpoint connected", "worker", w.serial, "endpoint", ep.serial, "addr", addr.String())
	w.Progress()
	return ep, nil
}

// Accept consumes req and establishes the inbound endpoint it announces.
// req must come from a listener on w.
func Accept(w *Worker, req *ConnRequest) (*Endpoint, error) {
	if req == nil || req.l.w != w {
		return nil, &AcceptError{Err: ErrInvalidParam}
	}
	conn, err := req.take()
	if err != nil {
		return nil, &AcceptError{Err: err}
	}
	if err := w.acquire(); err != nil {
		return nil, &AcceptError{Err: err}
	}
	ep := newEndpoint(w)
	h, st := w.eng.Accept(conn, ep.onError())
	if st != OK {
		ep.abandon()
		return nil, &AcceptError{Err: FromStatus(st)}
	}
	ep.opened(h)
	w.log.Debug("ucp: endpoint accepted", "worker", w.serial, "endpoint", ep.serial, "listener", req.l.serial)
	return ep, nil
}

// Worker returns the worker the endpoint was created from.
func (ep *Endpoint) Worker() *Worker { return ep.w }

// Serial returns the endpoint's serial.
func (ep *Endpoint) Serial() Serial { return ep.serial }

// PeerClosed reports whether the engine has reported a peer failure.
func (ep *Endpoint) PeerClosed() bool { return ep.flag.isSet() }

func (ep *Endpoint) String() string {
	return fmt.Sprintf("ucp.Endpoint(%d worker=%d)", ep.serial, ep.w.serial)
}

// Send submits data tagged with tag. It never blocks. The returned request
// is resolved if the engine completed the send immediately.
// data must not be modified until the request resolves.
func (ep *Endpoint) Send(tag Tag, data []byte) *Request {
	r := ep.w.newRequest("send", tag)
	if ep.state != endpointOpen || ep.flag.isSet() {
		return r.settle(0, RecvInfo{}, ErrNotConnected)
	}
	h, st := ep.w.eng.TagSend(ep.h, data, tag, r.onComplete())
	return r.settle(h, RecvInfo{}, st)
}

// Receive posts buf for the next message whose tag satisfies
// (incoming & mask) == (tag & mask). Matching is performed by the engine
// across the endpoint's worker. buf must not be touched until the request
// resolves. A message longer than buf fills buf and fails with
// ErrMessageTruncated. Receive stays valid after a peer failure, so messages
// that arrived before it can still be drained.
func (ep *Endpoint) Receive(buf []byte, tag, mask Tag) *Request {
	r := ep.w.newRequest("recv", tag)
	if ep.state != endpointOpen {
		return r.settle(0, RecvInfo{}, ErrNotConnected)
	}
	h, info, st := ep.w.eng.TagRecv(buf, tag, mask, r.onRecv())
	return r.settle(h, info, st)
}

// Close tears the endpoint down. Only the first call does anything.
// Close failures are logged, not returned.
func (ep *Endpoint) Close() {
	if ep.state != endpointOpen {
		return
	}
	w := ep.w
	if ep.flag.isSet() {
		w.m.teardowns.WithLabelValues(teardownPeer).Inc()
		w.log.Debug("ucp: endpoint closed by peer", "endpoint", ep.serial)
	} else {
		ep.state = endpointClosing
		r := w.newRequest("close", 0)
		h, st := w.eng.CloseEndpoint(ep.h, CloseForce, r.onComplete())
		if err := r.settle(h, RecvInfo{}, st).Wait(w); err != nil {
			w.log.Error("ucp: endpoint close failed", "endpoint", ep.serial, "error", err)
		}
		w.m.teardowns.WithLabelValues(teardownForced).Inc()
		w.log.Debug("ucp: endpoint closed", "endpoint", ep.serial)
	}
	ep.state = endpointClosed
	w.table.remove(ep.cookie)
	w.m.endpoints.Dec()
	w.release()
}
