// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"code.hybscloud.com/ucp"
	"code.hybscloud.com/ucp/fabric"
)

type failingContext struct{}

var errNoDevice = errors.New("no device")

func (failingContext) NewEngine() (ucp.Engine, error) { return nil, errNoDevice }

func TestNewWorkerEngineError(t *testing.T) {
	_, err := ucp.NewWorker(failingContext{})
	if !errors.Is(err, errNoDevice) {
		t.Fatalf("got %v, want wrapped engine error", err)
	}
}

func TestProgressCountsSteps(t *testing.T) {
	w := newWorker(t, fabric.New())
	defer w.Close()
	for range 3 {
		if n := w.Progress(); n != 0 {
			t.Fatalf("idle progress processed %d events", n)
		}
	}
	if w.Steps() != 3 {
		t.Fatalf("steps %d, want 3", w.Steps())
	}
}

func TestWorkerOutlivesCreatorWhileEndpointsOpen(t *testing.T) {
	skipRace(t)
	f := fabric.New()
	c := dial(t, f)
	c.cliW.Close()
	c.cliW.Close()
	before := c.cliW.Steps()
	c.cliW.Progress()
	if c.cliW.Steps() != before+1 {
		t.Fatal("worker destroyed while its endpoint is open")
	}
	if err := c.cli.Send(1, []byte("still here")).Wait(c.cliW); err != nil {
		t.Fatalf("send after worker Close: %v", err)
	}
	c.cli.Close()
	before = c.cliW.Steps()
	c.cliW.Progress()
	if c.cliW.Steps() != before {
		t.Fatal("worker still stepping after last endpoint closed")
	}
	if _, err := ucp.Connect(c.cliW, c.l.Addr().String()); !errors.Is(err, ucp.ErrWorkerClosed) {
		t.Fatalf("connect on destroyed worker: got %v", err)
	}
	c.srv.Close()
	c.l.Close()
	c.srvW.Close()
}

func TestWorkerDestroyFreesPendingRequests(t *testing.T) {
	skipRace(t)
	f := fabric.New()
	c := dial(t, f)
	r := c.cli.Receive(make([]byte, 8), 42, ucp.TagMaskFull)
	if !r.Pending() {
		t.Fatal("unmatched receive resolved")
	}
	c.close()
	s := f.Stats()
	if s.LeakedRequests != 0 || s.DoubleFrees != 0 {
		t.Fatalf("stats %+v", s)
	}
	if s.RequestAllocs != s.RequestFrees {
		t.Fatalf("allocs %d != frees %d", s.RequestAllocs, s.RequestFrees)
	}
	if err := r.Wait(c.cliW); !errors.Is(err, ucp.ErrCanceled) {
		t.Fatalf("wait after destroy: got %v, want ErrCanceled", err)
	}
	r.Release()
	if got := f.Stats().DoubleFrees; got != 0 {
		t.Fatalf("double frees %d", got)
	}
}

func TestUntil(t *testing.T) {
	skipRace(t)
	c := dial(t, fabric.New())
	defer c.close()
	r := c.srv.Receive(make([]byte, 8), 0, 0)
	c.cli.Send(0, []byte("ping"))
	c.srvW.Until(r.Done)
	if err := r.Wait(c.srvW); err != nil || r.Len() != 4 {
		t.Fatalf("got %v len %d", err, r.Len())
	}
}

func TestUntilContextDeadline(t *testing.T) {
	w := newWorker(t, fabric.New())
	defer w.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.UntilContext(ctx, func() bool { return false })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want DeadlineExceeded", err)
	}
}

func TestWorkerMetrics(t *testing.T) {
	skipRace(t)
	reg := prometheus.NewRegistry()
	f := fabric.New(fabric.WithEagerLimit(-1))
	srvW := newWorker(t, f, ucp.WithMetrics(reg))
	cliW := newWorker(t, f)
	label := srvW.Serial().String()

	accepted := new([]*ucp.Endpoint)
	l, err := ucp.Listen(srvW, "0.0.0.0:0", acceptAll, accepted)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	cli, err := ucp.Connect(cliW, l.Addr().String())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	srvW.Until(func() bool { return len(*accepted) == 1 })
	srv := (*accepted)[0]

	if v := metricValue(t, reg, "ucp_listener_dispatches_total", "worker", label); v != 1 {
		t.Fatalf("dispatches %v, want 1", v)
	}
	if v := metricValue(t, reg, "ucp_endpoints_open", "worker", label); v != 1 {
		t.Fatalf("endpoints open %v, want 1", v)
	}
	r := srv.Send(1, []byte("x"))
	if v := metricValue(t, reg, "ucp_requests_inflight", "worker", label); v != 1 {
		t.Fatalf("inflight %v, want 1", v)
	}
	if err := r.Wait(srvW); err != nil {
		t.Fatalf("send: %v", err)
	}
	if v := metricValue(t, reg, "ucp_requests_inflight", "worker", label); v != 0 {
		t.Fatalf("inflight %v, want 0", v)
	}

	cli.Close()
	srvW.Progress()
	srv.Close()
	if v := metricValue(t, reg, "ucp_endpoint_teardowns_total", "path", "peer"); v != 1 {
		t.Fatalf("peer teardowns %v, want 1", v)
	}
	if v := metricValue(t, reg, "ucp_endpoint_teardowns_total", "path", "forced"); v != 0 {
		t.Fatalf("forced teardowns %v, want 0", v)
	}
	if v := metricValue(t, reg, "ucp_endpoints_open", "worker", label); v != 0 {
		t.Fatalf("endpoints open %v, want 0", v)
	}
	if v := metricValue(t, reg, "ucp_worker_progress_steps_total", "worker", label); v < 1 {
		t.Fatalf("steps %v", v)
	}
	l.Close()
	srvW.Close()
	cliW.Close()
}
