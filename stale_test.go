// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp_test

import (
	"errors"
	"net/netip"
	"testing"

	"code.hybscloud.com/ucp"
	"code.hybscloud.com/ucp/fabric"
)

// recordingContext hands out engines that keep every callback the core
// registers, so a test can invoke them after their owner is gone.
type recordingContext struct {
	inner ucp.Context
	eng   *recordingEngine
}

func (c *recordingContext) NewEngine() (ucp.Engine, error) {
	e, err := c.inner.NewEngine()
	if err != nil {
		return nil, err
	}
	c.eng = &recordingEngine{Engine: e}
	return c.eng, nil
}

type recordingEngine struct {
	ucp.Engine
	onError    []ucp.ErrorCallback
	onConn     []ucp.ConnCallback
	onComplete []ucp.CompletionCallback
	onRecv     []ucp.RecvCallback
	rejected   []ucp.ConnHandle
}

func (e *recordingEngine) Connect(addr netip.AddrPort, cb ucp.ErrorCallback) (ucp.EndpointHandle, ucp.Status) {
	e.onError = append(e.onError, cb)
	return e.Engine.Connect(addr, cb)
}

func (e *recordingEngine) Accept(conn ucp.ConnHandle, cb ucp.ErrorCallback) (ucp.EndpointHandle, ucp.Status) {
	e.onError = append(e.onError, cb)
	return e.Engine.Accept(conn, cb)
}

func (e *recordingEngine) Reject(conn ucp.ConnHandle) ucp.Status {
	e.rejected = append(e.rejected, conn)
	return e.Engine.Reject(conn)
}

func (e *recordingEngine) CloseEndpoint(h ucp.EndpointHandle, mode ucp.CloseMode, cb ucp.CompletionCallback) (ucp.RequestHandle, ucp.Status) {
	e.onComplete = append(e.onComplete, cb)
	return e.Engine.CloseEndpoint(h, mode, cb)
}

func (e *recordingEngine) TagSend(h ucp.EndpointHandle, data []byte, tag ucp.Tag, cb ucp.CompletionCallback) (ucp.RequestHandle, ucp.Status) {
	e.onComplete = append(e.onComplete, cb)
	return e.Engine.TagSend(h, data, tag, cb)
}

func (e *recordingEngine) TagRecv(buf []byte, tag, mask ucp.Tag, cb ucp.RecvCallback) (ucp.RequestHandle, ucp.RecvInfo, ucp.Status) {
	e.onRecv = append(e.onRecv, cb)
	return e.Engine.TagRecv(buf, tag, mask, cb)
}

func (e *recordingEngine) Listen(addr netip.AddrPort, cb ucp.ConnCallback) (ucp.ListenerHandle, ucp.Status) {
	e.onConn = append(e.onConn, cb)
	return e.Engine.Listen(addr, cb)
}

// recordedPair connects a recorded client worker to a plain server worker.
func recordedPair(t *testing.T, f *fabric.Fabric) (*recordingContext, *conn) {
	t.Helper()
	rec := &recordingContext{inner: f}
	c := &conn{f: f, srvW: newWorker(t, f), cliW: newWorker(t, rec)}
	accepted := new([]*ucp.Endpoint)
	l, err := ucp.Listen(c.srvW, "0.0.0.0:0", acceptAll, accepted)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	c.l = l
	c.cli, err = ucp.Connect(c.cliW, l.Addr().String())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c.srvW.Until(func() bool { return len(*accepted) > 0 })
	c.srv = (*accepted)[0]
	return rec, c
}

func TestStaleErrorCallbackAfterClose(t *testing.T) {
	skipRace(t)
	rec, c := recordedPair(t, fabric.New())
	defer c.close()
	if len(rec.eng.onError) != 1 {
		t.Fatalf("recorded %d error callbacks, want 1", len(rec.eng.onError))
	}
	c.cli.Close()
	rec.eng.onError[0](ucp.ErrConnectionReset)
	if c.cli.PeerClosed() {
		t.Fatal("error callback reached a closed endpoint")
	}
	if err := c.cli.Send(1, []byte("x")).Wait(c.cliW); !errors.Is(err, ucp.ErrNotConnected) {
		t.Fatalf("send after close: got %v, want ErrNotConnected", err)
	}
}

func TestStaleConnCallbackRejects(t *testing.T) {
	f := fabric.New()
	rec := &recordingContext{inner: f}
	w := newWorker(t, rec)
	defer w.Close()
	var got []*ucp.ConnRequest
	l, err := ucp.Listen(w, "0.0.0.0:0", collect, &got)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	l.Close()
	const orphan = ucp.ConnHandle(4242)
	rec.eng.onConn[0](orphan)
	if len(got) != 0 {
		t.Fatalf("closed listener dispatched %d requests", len(got))
	}
	if len(rec.eng.rejected) != 1 || rec.eng.rejected[0] != orphan {
		t.Fatalf("rejected %v, want [%d]", rec.eng.rejected, orphan)
	}
}

func TestStaleCompletionAfterRelease(t *testing.T) {
	skipRace(t)
	rec, c := recordedPair(t, fabric.New(fabric.WithEagerLimit(-1)))
	defer c.close()

	s := c.cli.Send(2, []byte("queued"))
	if !s.Pending() {
		t.Fatal("send with eager disabled should be pending")
	}
	sendCb := rec.eng.onComplete[len(rec.eng.onComplete)-1]
	s.Release()
	sendCb(ucp.OK)
	if err := s.Wait(c.cliW); !errors.Is(err, ucp.ErrCanceled) {
		t.Fatalf("released send: got %v, want ErrCanceled", err)
	}

	buf := make([]byte, 8)
	r := c.cli.Receive(buf, 3, ucp.TagMaskFull)
	if !r.Pending() {
		t.Fatal("receive with no message should be pending")
	}
	recvCb := rec.eng.onRecv[len(rec.eng.onRecv)-1]
	r.Release()
	recvCb(ucp.OK, ucp.RecvInfo{Length: 5, SenderTag: 3})
	if r.Len() != 0 || r.SenderTag() != 0 {
		t.Fatalf("stale receive callback wrote info: len %d tag %d", r.Len(), r.SenderTag())
	}
	if err := r.Wait(c.cliW); !errors.Is(err, ucp.ErrCanceled) {
		t.Fatalf("released receive: got %v, want ErrCanceled", err)
	}
	// The engine's own late completion is dropped as well.
	c.cliW.Progress()
	c.srvW.Progress()
}
