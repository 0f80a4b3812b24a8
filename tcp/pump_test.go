// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !race

// The acceptor hands connections over an SPSC queue, whose cross-variable
// memory ordering the race detector cannot see.

package tcp

import (
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"code.hybscloud.com/ucp"
)

// flakyListener fails its first accepts with EMFILE, then hands out conns.
type flakyListener struct {
	mu     sync.Mutex
	fails  int
	conns  chan net.Conn
	closed chan struct{}
	once   sync.Once
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.fails > 0 {
		l.fails--
		l.mu.Unlock()
		return nil, &net.OpError{Op: "accept", Net: "tcp", Err: syscall.EMFILE}
	}
	l.mu.Unlock()
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *flakyListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *flakyListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 10301}
}

func TestAcceptorRetriesAfterTransientError(t *testing.T) {
	ln := &flakyListener{fails: 3, conns: make(chan net.Conn, 1), closed: make(chan struct{})}
	a := newAcceptor(ln, 4)
	go a.run(ucp.NopLogger{})

	server, client := net.Pipe()
	defer client.Close()
	ln.conns <- server

	deadline := time.Now().Add(5 * time.Second)
	for {
		c, err := a.conns.Dequeue()
		if err == nil {
			if c != server {
				t.Fatal("accepted an unexpected connection")
			}
			c.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("acceptor stopped after a transient accept error")
		}
		time.Sleep(time.Millisecond)
	}

	a.stop.Store(1)
	ln.Close()
	for a.done.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("acceptor did not exit after close")
		}
		time.Sleep(time.Millisecond)
	}
}
