// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

import "code.hybscloud.com/iox"

// Request is the token for one send, receive or close operation. It takes
// no reference on its worker.
//
// A Request is either resolved, holding a final status and no engine
// resource, or pending, holding an engine handle. A pending handle is
// released exactly once: by Wait or Done when the operation is observed
// complete, by Release, or by worker destruction, whichever comes first.
type Request struct {
	w      *Worker
	op     string
	tag    Tag
	handle RequestHandle
	cookie uint64
	status Status
	info   RecvInfo
}

func (w *Worker) newRequest(op string, tag Tag) *Request {
	r := &Request{w: w, op: op, tag: tag}
	r.cookie = w.table.insert(r)
	return r
}

// onComplete returns the engine callback for send and close requests.
func (r *Request) onComplete() CompletionCallback {
	t, c := &r.w.table, r.cookie
	return func(st Status) {
		if v, ok := lookup[*Request](t, c); ok {
			v.completed(st)
		}
	}
}

// onRecv returns the engine callback for receive requests.
func (r *Request) onRecv() RecvCallback {
	t, c := &r.w.table, r.cookie
	return func(st Status, info RecvInfo) {
		if v, ok := lookup[*Request](t, c); ok {
			v.info = info
			v.completed(st)
		}
	}
}

// completed runs inside Progress when the engine reports completion.
// The handle's status stays authoritative; failures are noted for debugging.
func (r *Request) completed(st Status) {
	if st != OK {
		r.w.log.Debug("ucp: request failed", "worker", r.w.serial, "op", r.op, "tag", uint64(r.tag), "status", st.Error())
	}
}

// settle records the engine's answer to the issuing call.
func (r *Request) settle(h RequestHandle, info RecvInfo, st Status) *Request {
	if h == 0 {
		r.w.table.remove(r.cookie)
		r.status = st
		r.info = info
		return r
	}
	r.handle = h
	r.status = InProgress
	r.w.pending[r] = struct{}{}
	r.w.m.inflight.Inc()
	return r
}

// resolve ends the pending state with st and releases the handle.
func (r *Request) resolve(st Status) {
	if r.handle == 0 {
		return
	}
	r.w.eng.RequestFree(r.handle)
	r.handle = 0
	r.status = st
	r.w.table.remove(r.cookie)
	delete(r.w.pending, r)
	r.w.m.inflight.Dec()
}

// cancel resolves a pending request with whatever the engine knows,
// or ErrCanceled if it is still in flight.
func (r *Request) cancel() {
	if r.handle == 0 {
		return
	}
	st := r.w.eng.RequestStatus(r.handle)
	if st == InProgress {
		st = ErrCanceled
	}
	r.resolve(st)
}

// Pending reports whether the request still holds an engine handle.
func (r *Request) Pending() bool { return r.handle != 0 }

// Done reports whether the operation has completed, without stepping the
// worker. A completed pending request releases its handle here.
func (r *Request) Done() bool {
	if r.handle == 0 {
		return true
	}
	st := r.w.eng.RequestStatus(r.handle)
	if st == InProgress {
		return false
	}
	r.resolve(st)
	return true
}

// Wait blocks until the operation completes by stepping w, which must be
// the worker the request was issued on.
// A resolved request returns at once without touching w. A pending request
// is polled: while the engine reports it in progress, w takes a step.
// Engines publish completions only inside a step, so a pending wait always
// takes at least one.
// Wait has no timeout: an unmatched receive spins for as long as the caller
// keeps waiting.
func (r *Request) Wait(w *Worker) error {
	if w != r.w {
		return &OpError{Op: r.op, Tag: r.tag, Err: ErrInvalidParam}
	}
	var bo iox.Backoff
	for r.handle != 0 {
		st := r.w.eng.RequestStatus(r.handle)
		if st != InProgress {
			r.resolve(st)
			break
		}
		if w.Progress() == 0 {
			bo.Wait()
		} else {
			bo.Reset()
		}
	}
	return r.err()
}

// Release gives up the request. A pending handle is freed; a later Wait
// reports ErrCanceled unless the operation had already completed.
// Release is idempotent and a no-op on resolved requests.
func (r *Request) Release() {
	r.cancel()
}

// Len returns the number of bytes a completed receive wrote.
func (r *Request) Len() int { return r.info.Length }

// SenderTag returns the tag a completed receive matched.
func (r *Request) SenderTag() Tag { return r.info.SenderTag }

func (r *Request) err() error {
	err := FromStatus(r.status)
	if err == nil {
		return nil
	}
	return &OpError{Op: r.op, Tag: r.tag, Err: err}
}
