// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tcp is a socket transport engine for ucp.
//
// Every endpoint is one TCP connection carrying length-prefixed frames
// (8-byte big-endian tag, 4-byte big-endian length, payload). The accepting
// side answers a connection with a single handshake byte before any frame,
// which is how a rejected connection is told apart from a reset one.
//
// Socket I/O runs on pump goroutines: a writer per endpoint (which also
// dials), a reader per endpoint and an acceptor per listener. Pumps hand
// results to the engine only through bounded lock-free SPSC queues, which
// the engine drains during Progress, so every engine callback still runs on
// the goroutine stepping the worker.
package tcp

import (
	"time"

	"code.hybscloud.com/ucp"
)

const (
	defaultDialTimeout   = 5 * time.Second
	defaultQueueCapacity = 256
)

type config struct {
	dialTimeout   time.Duration
	queueCapacity int
	log           ucp.Logger
}

// Option configures a Context.
type Option func(*config)

// WithDialTimeout bounds how long a connect may take before the endpoint
// fails with ErrUnreachable.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithQueueCapacity sets the capacity of each pump queue.
func WithQueueCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueCapacity = n
		}
	}
}

// WithLogger sets the logger engines report socket errors to.
func WithLogger(l ucp.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// Context creates tcp engines. It implements ucp.Context.
type Context struct {
	cfg config
}

// New returns a Context.
func New(opts ...Option) *Context {
	cfg := config{
		dialTimeout:   defaultDialTimeout,
		queueCapacity: defaultQueueCapacity,
		log:           ucp.NewSlogLogger(nil),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Context{cfg: cfg}
}

// NewEngine returns a new engine. Engines share nothing.
func (c *Context) NewEngine() (ucp.Engine, error) {
	return newEngine(c.cfg), nil
}
