// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

import (
	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// sessionContext carries protocol state for one endpoint between dispatch
// attempts: the request issued for the operation currently suspended.
type sessionContext struct {
	ep       *Endpoint
	inflight *Request
}

// poll observes the in-flight request without stepping the worker.
// It returns iox.ErrWouldBlock while the request is still in progress.
func (ctx *sessionContext) poll() (*Request, error) {
	r := ctx.inflight
	if !r.Done() {
		return nil, iox.ErrWouldBlock
	}
	ctx.inflight = nil
	return r, r.Wait(ctx.ep.w)
}

// sessionDispatcher is the structural interface for protocol operations.
// DispatchSession is non-blocking: the first call issues the operation,
// and it returns iox.ErrWouldBlock until the operation completes.
type sessionDispatcher interface {
	DispatchSession(ctx *sessionContext) (kont.Resumed, error)
}

// sessionHandler implements kont.Handler for protocol effects over an
// Endpoint. An operation failure short-circuits the computation with
// Left(err).
// Value type: passed to evalFrames on the stack, avoiding heap allocation.
type sessionHandler[R any] struct {
	ctx *sessionContext
}

// Dispatch implements kont.Handler via structural interface assertion.
func (h sessionHandler[R]) Dispatch(op kont.Operation) (kont.Resumed, bool) {
	sop, ok := op.(sessionDispatcher)
	if !ok {
		panic("ucp: unhandled effect in sessionHandler")
	}
	v, err := dispatchWait(h.ctx, sop)
	if err != nil {
		return kont.Left[error, R](err), false
	}
	return v, true
}

// dispatchWait retries DispatchSession until it succeeds or fails,
// stepping the endpoint's worker on iox.ErrWouldBlock and backing off
// when a step processed nothing.
func dispatchWait(ctx *sessionContext, sop sessionDispatcher) (kont.Resumed, error) {
	var bo iox.Backoff
	for {
		v, err := sop.DispatchSession(ctx)
		if err == nil {
			return v, nil
		}
		if !iox.IsWouldBlock(err) {
			return nil, err
		}
		if ctx.ep.w.Progress() == 0 {
			bo.Wait()
		} else {
			bo.Reset()
		}
	}
}
