// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

import (
	"code.hybscloud.com/kont"
)

// Pre-boxed frame and operation values for the Expr-world constructors.
var (
	exprReturnFrame kont.Frame  = kont.ReturnFrame{}
	exprClose       kont.Erased = Close{}
)

func identityResume(v kont.Erased) kont.Erased { return v }

// ExprSendThen sends data tagged with tag and then continues with next.
// Fuses ExprPerform(Send{...}) + ExprThen.
func ExprSendThen[B any](tag Tag, data []byte, next kont.Expr[B]) kont.Expr[B] {
	tf := kont.AcquireThenFrame()
	tf.Second = kont.Expr[kont.Erased]{Value: kont.Erased(next.Value), Frame: next.Frame}
	tf.Next = exprReturnFrame
	ef := kont.AcquireEffectFrame()
	ef.Operation = Send{Tag: tag, Data: data}
	ef.Resume = identityResume
	ef.Next = tf
	return kont.ExprSuspend[B](ef)
}

func recvBindUnwind[B any](data, _, _ kont.Erased, current kont.Erased) (kont.Erased, kont.Frame) {
	f := data.(func([]byte) kont.Expr[B])
	result := f(current.([]byte))
	return kont.Erased(result.Value), result.Frame
}

// ExprRecvBind receives a message matching (tag, mask) into buf and passes
// the filled prefix to f.
// Fuses ExprPerform(Recv{...}) + ExprBind.
func ExprRecvBind[B any](tag, mask Tag, buf []byte, f func([]byte) kont.Expr[B]) kont.Expr[B] {
	bf := kont.AcquireUnwindFrame()
	bf.Data1 = f
	bf.Unwind = recvBindUnwind[B]
	ef := kont.AcquireEffectFrame()
	ef.Operation = Recv{Tag: tag, Mask: mask, Buf: buf}
	ef.Resume = identityResume
	ef.Next = bf
	return kont.ExprSuspend[B](ef)
}

// ExprCloseDone closes the endpoint and returns a.
// Fuses ExprPerform(Close{}) + ExprThen + ExprReturn.
func ExprCloseDone[A any](a A) kont.Expr[A] {
	tf := kont.AcquireThenFrame()
	tf.Second = kont.Expr[kont.Erased]{Value: kont.Erased(a), Frame: exprReturnFrame}
	tf.Next = exprReturnFrame
	ef := kont.AcquireEffectFrame()
	ef.Operation = exprClose
	ef.Resume = identityResume
	ef.Next = tf
	return kont.ExprSuspend[A](ef)
}
