// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

import (
	"code.hybscloud.com/kont"
)

// Send is the effect operation for sending a tagged message.
// Perform(Send{Tag: t, Data: b}) sends b on the endpoint.
type Send struct {
	kont.Phantom[struct{}]
	Tag  Tag
	Data []byte
}

// DispatchSession handles Send on an endpoint.
// Non-blocking: returns iox.ErrWouldBlock while the send is in flight.
func (s Send) DispatchSession(ctx *sessionContext) (kont.Resumed, error) {
	if ctx.inflight == nil {
		ctx.inflight = ctx.ep.Send(s.Tag, s.Data)
	}
	if _, err := ctx.poll(); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

// Recv is the effect operation for receiving a tagged message into Buf.
// Perform(Recv{...}) resumes with the filled prefix of Buf.
type Recv struct {
	kont.Phantom[[]byte]
	Tag  Tag
	Mask Tag
	Buf  []byte
}

// DispatchSession handles Recv on an endpoint.
// Non-blocking: returns iox.ErrWouldBlock until a matching message arrived.
func (r Recv) DispatchSession(ctx *sessionContext) (kont.Resumed, error) {
	if ctx.inflight == nil {
		ctx.inflight = ctx.ep.Receive(r.Buf, r.Tag, r.Mask)
	}
	req, err := ctx.poll()
	if err != nil {
		return nil, err
	}
	return r.Buf[:req.Len()], nil
}

// Close is the effect operation for tearing the endpoint down.
// Perform(Close{}) runs Endpoint.Close, which steps the worker itself.
type Close struct {
	kont.Phantom[struct{}]
}

// DispatchSession handles Close on an endpoint. Never returns an error.
func (Close) DispatchSession(ctx *sessionContext) (kont.Resumed, error) {
	ctx.ep.Close()
	return struct{}{}, nil
}
