// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fabric is an in-process transport engine for ucp.
//
// A Fabric is a simulated network. Each engine it creates is a node with
// its own address (10.0.0.N); listeners bind addresses on the fabric and
// endpoints connect to them by address. Accepted endpoint pairs exchange
// messages over bounded lock-free SPSC queues. Completions are delivered
// only inside the owning node's Progress.
//
// The fabric is instrumented: Stats counts request allocations and frees,
// double frees, endpoint closes, connection requests and rejections, which
// is what tests of request and endpoint lifetime assert on. Sever injects
// peer failures.
//
// A Fabric and every engine it created must be driven from one goroutine.
package fabric

import (
	"fmt"
	"net/netip"

	"code.hybscloud.com/ucp"
)

const (
	defaultEagerLimit   = 64
	defaultLinkCapacity = 64
	firstEphemeralPort  = 49152
)

type config struct {
	eagerLimit   int
	linkCapacity int
}

// Option configures a Fabric.
type Option func(*config)

// WithEagerLimit sets the largest payload a send may complete immediately.
// Larger sends always return a pending request. Negative disables eager
// completion.
func WithEagerLimit(n int) Option {
	return func(c *config) { c.eagerLimit = n }
}

// WithLinkCapacity sets the per-direction queue capacity of a link.
// Sends beyond it wait in the sender's outbox.
func WithLinkCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.linkCapacity = n
		}
	}
}

// Stats are the fabric's instrumentation counters.
type Stats struct {
	RequestAllocs    uint64
	RequestFrees     uint64
	DoubleFrees      uint64
	LeakedRequests   uint64
	EndpointsCreated uint64
	EndpointsOpen    uint64
	EndpointCloses   uint64
	ConnRequests     uint64
	Rejects          uint64
	Progress         uint64
}

// Fabric is a simulated network of engines. It implements ucp.Context.
type Fabric struct {
	cfg       config
	listeners map[netip.AddrPort]*listener
	nodes     []*node
	nextPort  uint16
	stats     Stats
}

// New creates an empty fabric.
func New(opts ...Option) *Fabric {
	cfg := config{eagerLimit: defaultEagerLimit, linkCapacity: defaultLinkCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Fabric{
		cfg:       cfg,
		listeners: make(map[netip.AddrPort]*listener),
		nextPort:  firstEphemeralPort,
	}
}

// NewEngine adds a node to the fabric.
func (f *Fabric) NewEngine() (ucp.Engine, error) {
	i := len(f.nodes) + 1
	if i > 254 {
		return nil, fmt.Errorf("fabric: address space exhausted")
	}
	n := newNode(f, netip.AddrFrom4([4]byte{10, 0, 0, byte(i)}))
	f.nodes = append(f.nodes, n)
	return n, nil
}

// Stats returns a snapshot of the counters.
func (f *Fabric) Stats() Stats {
	s := f.stats
	for _, n := range f.nodes {
		c := n.m.Counters()
		s.RequestAllocs += c.Allocs
		s.RequestFrees += c.Frees
		s.DoubleFrees += c.DoubleFrees
		s.EndpointsOpen += uint64(len(n.eps))
	}
	return s
}

// Sever fails every connected endpoint on the fabric with st, as if the
// network had dropped all links. Error callbacks fire during each node's
// next Progress.
func (f *Fabric) Sever(st ucp.Status) {
	for _, n := range f.nodes {
		for _, ep := range n.eps {
			if ep.state == endpointConnected {
				n.fail(ep, st)
			}
		}
	}
}

func (f *Fabric) ephemeralPort() uint16 {
	p := f.nextPort
	f.nextPort++
	if f.nextPort == 0 {
		f.nextPort = firstEphemeralPort
	}
	return p
}
