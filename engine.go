// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

import "net/netip"

// Tag is the 64-bit matching key carried by every message.
type Tag uint64

// TagMaskFull matches tags exactly. A zero mask matches any tag.
const TagMaskFull Tag = ^Tag(0)

// Match reports whether a message sent with incoming satisfies the
// receive selector (tag, mask).
func Match(incoming, tag, mask Tag) bool {
	return incoming&mask == tag&mask
}

// Opaque engine handles. The zero value never names a live object.
type (
	EndpointHandle uint64
	ListenerHandle uint64
	ConnHandle     uint64
	RequestHandle  uint64
)

// CloseMode selects how an engine endpoint is closed.
type CloseMode uint8

const (
	// CloseForce aborts in-flight work on the endpoint.
	CloseForce CloseMode = iota
	// CloseFlush completes queued sends before closing.
	CloseFlush
)

// RecvInfo describes a completed receive.
type RecvInfo struct {
	Length    int
	SenderTag Tag
}

// Engine callbacks. The engine invokes them only from inside Progress, on
// the goroutine calling Progress. The core never hands the engine anything
// but these closures, and every closure it hands over resolves its target
// through the worker's handle table, so an invocation after the target was
// torn down is a no-op.
type (
	ErrorCallback      func(status Status)
	CompletionCallback func(status Status)
	RecvCallback       func(status Status, info RecvInfo)
	ConnCallback       func(conn ConnHandle)
)

// Engine is the non-blocking transport engine a Worker drives.
//
// Request-issuing methods follow one convention: a zero RequestHandle means
// the operation already resolved with the returned Status (no callback will
// follow); a non-zero handle means it is in flight, its callback fires
// during some later Progress call, and the handle must be released with
// RequestFree exactly once.
type Engine interface {
	// Progress drives ready completions and returns the number of events
	// processed. It must return promptly and must tolerate reentrant calls
	// from inside callbacks.
	Progress() int

	Connect(addr netip.AddrPort, onError ErrorCallback) (EndpointHandle, Status)
	Accept(conn ConnHandle, onError ErrorCallback) (EndpointHandle, Status)
	Reject(conn ConnHandle) Status
	ConnAddr(conn ConnHandle) (netip.AddrPort, Status)
	CloseEndpoint(ep EndpointHandle, mode CloseMode, cb CompletionCallback) (RequestHandle, Status)

	TagSend(ep EndpointHandle, data []byte, tag Tag, cb CompletionCallback) (RequestHandle, Status)
	TagRecv(buf []byte, tag, mask Tag, cb RecvCallback) (RequestHandle, RecvInfo, Status)

	RequestStatus(req RequestHandle) Status
	RequestFree(req RequestHandle)

	Listen(addr netip.AddrPort, onConn ConnCallback) (ListenerHandle, Status)
	ListenerAddr(l ListenerHandle) (netip.AddrPort, Status)
	DestroyListener(l ListenerHandle)

	// Close destroys the engine. No callback fires afterwards.
	Close()
}

// Context creates engines, one per Worker. It owns whatever process-wide
// transport state the engine needs.
type Context interface {
	NewEngine() (Engine, error)
}
