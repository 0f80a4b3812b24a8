// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

import (
	"code.hybscloud.com/kont"
)

// Step evaluates a protocol until the first effect suspension.
// Returns (result, nil) on completion, or (zero, suspension) if pending.
func Step[R any](protocol kont.Expr[R]) (R, *kont.Suspension[R]) {
	return kont.StepExpr(protocol)
}

// Advance dispatches the suspended operation on ep without stepping the
// worker. The caller owns the loop: call ep.Worker().Progress between
// attempts.
//
// On success (nil error), the suspension is consumed and the protocol
// advances to the next effect or completion.
// On iox.ErrWouldBlock, the operation is in flight and the suspension is
// returned unconsumed for a later retry.
// On any other error the operation failed; the suspension is returned
// unconsumed and retrying it issues the operation again. Discard it to
// abandon the protocol.
func Advance[R any](ep *Endpoint, susp *kont.Suspension[R]) (R, *kont.Suspension[R], error) {
	sop, ok := susp.Op().(sessionDispatcher)
	if !ok {
		panic("ucp: unhandled effect in Advance")
	}
	v, err := sop.DispatchSession(&ep.proto)
	if err != nil {
		var zero R
		return zero, susp, err
	}
	result, next := susp.Resume(v)
	return result, next, nil
}
