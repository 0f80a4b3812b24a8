// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tcp

import (
	"bufio"
	"context"
	"errors"
	"net"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"

	"code.hybscloud.com/ucp"
)

// inbound is a received frame, or the reason the connection ended when
// fail is not OK.
type inbound struct {
	msg  message
	fail ucp.Status
}

// outbound is a send handed to the writer.
type outbound struct {
	req  ucp.RequestHandle
	tag  ucp.Tag
	data []byte
}

// ack reports a send the writer has flushed, or failed to.
type ack struct {
	req    ucp.RequestHandle
	status ucp.Status
}

type dialResult struct {
	conn net.Conn
	err  error
}

// pipe is the only state an endpoint shares with its pumps. Each queue has
// exactly one producer and one consumer goroutine.
type pipe struct {
	inbox  lfq.SPSC[inbound]    // reader -> engine
	outbox lfq.SPSC[outbound]   // engine -> writer
	acks   lfq.SPSC[ack]        // writer -> engine
	dialed lfq.SPSC[dialResult] // writer -> engine
	stop   atomix.Uint32
}

func newPipe(capacity int) *pipe {
	p := &pipe{}
	p.inbox.Init(capacity)
	p.outbox.Init(capacity)
	p.acks.Init(capacity)
	p.dialed.Init(2)
	return p
}

func (p *pipe) stopped() bool { return p.stop.Load() != 0 }

// push enqueues v, backing off while q is full. It gives up once the pipe
// is stopped.
func push[T any](p *pipe, q *lfq.SPSC[T], v T) bool {
	var bo iox.Backoff
	for {
		if err := q.Enqueue(&v); err == nil {
			return true
		}
		if p.stopped() {
			return false
		}
		bo.Wait()
	}
}

// writer runs the send side of an endpoint and owns the connection: it
// closes it on exit. A connecting endpoint (conn is nil) dials addr first
// and reports the outcome on dialed; an accepted one announces acceptance.
// It starts the reader once the connection is up and exits when the pipe
// stops or the connection breaks.
func (p *pipe) writer(ctx context.Context, timeout time.Duration, addr string, conn net.Conn, log ucp.Logger) {
	client := conn == nil
	if client {
		d := net.Dialer{Timeout: timeout}
		c, err := d.DialContext(ctx, "tcp", addr)
		push(p, &p.dialed, dialResult{conn: c, err: err})
		if err != nil {
			log.Debug("tcp: dial failed", "addr", addr, "error", err)
			return
		}
		conn = c
	}
	defer conn.Close()
	if p.stopped() {
		return
	}
	w := bufio.NewWriter(conn)
	if !client {
		if err := w.WriteByte(handshakeAccept); err != nil {
			return
		}
	}
	go p.reader(conn, client, log)

	var bo iox.Backoff
	var written []ack
	for !p.stopped() {
		op, err := p.outbox.Dequeue()
		if err == nil {
			bo.Reset()
			st := ucp.OK
			if err := writeFrame(w, op.tag, op.data); err != nil {
				log.Debug("tcp: write failed", "error", err)
				st = ucp.ErrConnectionReset
			}
			written = append(written, ack{req: op.req, status: st})
			if st != ucp.OK {
				p.ack(written)
				return
			}
			continue
		}
		if w.Buffered() > 0 {
			if err := w.Flush(); err != nil {
				log.Debug("tcp: flush failed", "error", err)
				for i := range written {
					written[i].status = ucp.ErrConnectionReset
				}
				p.ack(written)
				return
			}
		}
		if len(written) > 0 {
			p.ack(written)
			written = written[:0]
			continue
		}
		bo.Wait()
	}
}

func (p *pipe) ack(done []ack) {
	for _, a := range done {
		if !push(p, &p.acks, a) {
			return
		}
	}
}

// reader runs the receive side. The connecting side first reads the
// handshake byte; end of stream before it means the peer refused.
func (p *pipe) reader(conn net.Conn, client bool, log ucp.Logger) {
	r := bufio.NewReader(conn)
	if client {
		b, err := r.ReadByte()
		if err != nil || b != handshakeAccept {
			push(p, &p.inbox, inbound{fail: ucp.ErrRejected})
			return
		}
	}
	for {
		m, err := readFrame(r)
		if err != nil {
			if p.stopped() {
				return
			}
			st := ucp.ErrConnectionReset
			if errors.Is(err, errFrameTooLarge) {
				log.Warn("tcp: dropping connection", "remote", conn.RemoteAddr().String(), "error", err)
				st = ucp.ErrIO
				conn.Close()
			}
			push(p, &p.inbox, inbound{fail: st})
			return
		}
		if !push(p, &p.inbox, inbound{msg: m}) {
			return
		}
	}
}

// acceptor runs a listener's accept loop.
type acceptor struct {
	ln    net.Listener
	conns lfq.SPSC[net.Conn] // acceptor -> engine
	stop  atomix.Uint32
	done  atomix.Uint32
}

func newAcceptor(ln net.Listener, capacity int) *acceptor {
	a := &acceptor{ln: ln}
	a.conns.Init(capacity)
	return a
}

// run accepts until the listener is closed. Other accept errors, such as
// running out of file descriptors, are retried with backoff.
func (a *acceptor) run(log ucp.Logger) {
	defer a.done.Store(1)
	var bo iox.Backoff
	for {
		c, err := a.ln.Accept()
		if err != nil {
			if a.stop.Load() != 0 || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("tcp: accept failed, retrying", "addr", a.ln.Addr().String(), "error", err)
			bo.Wait()
			continue
		}
		bo.Reset()
		for a.conns.Enqueue(&c) != nil {
			if a.stop.Load() != 0 {
				c.Close()
				return
			}
			bo.Wait()
		}
	}
}

// refuse tells a connecting peer it was rejected and hangs up.
func refuse(conn net.Conn, timeout time.Duration) {
	conn.SetWriteDeadline(time.Now().Add(timeout))
	conn.Write([]byte{handshakeReject})
	conn.Close()
}
