// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp_test

import (
	"testing"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
	"github.com/prometheus/client_golang/prometheus"

	"code.hybscloud.com/ucp"
	"code.hybscloud.com/ucp/fabric"
)

func newWorker(tb testing.TB, ctx ucp.Context, opts ...ucp.Option) *ucp.Worker {
	tb.Helper()
	opts = append([]ucp.Option{ucp.WithLogger(ucp.NopLogger{})}, opts...)
	w, err := ucp.NewWorker(ctx, opts...)
	if err != nil {
		tb.Fatalf("NewWorker: %v", err)
	}
	return w
}

// acceptAll is a listener handler that accepts every request into state.
func acceptAll(req *ucp.ConnRequest, w *ucp.Worker, accepted *[]*ucp.Endpoint) {
	ep, err := ucp.Accept(w, req)
	if err != nil {
		panic(err)
	}
	*accepted = append(*accepted, ep)
}

// conn is a connected endpoint pair on two workers of one fabric.
type conn struct {
	f        *fabric.Fabric
	srvW     *ucp.Worker
	cliW     *ucp.Worker
	l        *ucp.Listener
	srv, cli *ucp.Endpoint
}

// dial listens on one worker, connects from another and steps the server
// until the connection is accepted.
func dial(tb testing.TB, f *fabric.Fabric) *conn {
	tb.Helper()
	c := &conn{f: f, srvW: newWorker(tb, f), cliW: newWorker(tb, f)}
	accepted := new([]*ucp.Endpoint)
	l, err := ucp.Listen(c.srvW, "0.0.0.0:0", acceptAll, accepted)
	if err != nil {
		tb.Fatalf("Listen: %v", err)
	}
	c.l = l
	c.cli, err = ucp.Connect(c.cliW, l.Addr().String())
	if err != nil {
		tb.Fatalf("Connect: %v", err)
	}
	for range 8 {
		if len(*accepted) > 0 {
			break
		}
		c.srvW.Progress()
	}
	if len(*accepted) != 1 {
		tb.Fatalf("accepted %d endpoints, want 1", len(*accepted))
	}
	c.srv = (*accepted)[0]
	return c
}

// close tears down everything dial created.
func (c *conn) close() {
	c.cli.Close()
	c.srv.Close()
	c.l.Close()
	c.cliW.Close()
	c.srvW.Close()
}

// runPair drives two Expr-world protocols to completion from one
// goroutine, advancing each in turn and stepping both workers between
// attempts.
func runPair[A, B any](tb testing.TB, a *ucp.Endpoint, pa kont.Expr[A], b *ucp.Endpoint, pb kont.Expr[B]) (A, B) {
	tb.Helper()
	ra, sa := ucp.Step[A](pa)
	rb, sb := ucp.Step[B](pb)
	for spins := 0; sa != nil || sb != nil; spins++ {
		if spins > 10000 {
			tb.Fatal("protocols did not complete")
		}
		var err error
		if sa != nil {
			if ra, sa, err = ucp.Advance(a, sa); err != nil && !iox.IsWouldBlock(err) {
				tb.Fatalf("advance a: %v", err)
			}
		}
		if sb != nil {
			if rb, sb, err = ucp.Advance(b, sb); err != nil && !iox.IsWouldBlock(err) {
				tb.Fatalf("advance b: %v", err)
			}
		}
		a.Worker().Progress()
		b.Worker().Progress()
	}
	return ra, rb
}

// metricValue returns the value of the first sample of name whose labels
// include want.
func metricValue(tb testing.TB, g prometheus.Gatherer, name string, want ...string) float64 {
	tb.Helper()
	mfs, err := g.Gather()
	if err != nil {
		tb.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for i := 0; i+1 < len(want); i += 2 {
				found := false
				for _, lp := range m.GetLabel() {
					if lp.GetName() == want[i] && lp.GetValue() == want[i+1] {
						found = true
					}
				}
				if !found {
					continue next
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	tb.Fatalf("metric %s%v not found", name, want)
	return 0
}
