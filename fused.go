// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

import (
	"code.hybscloud.com/kont"
)

// SendThen sends data tagged with tag and then continues with next.
// Fuses Perform(Send{...}) + Then.
func SendThen[B any](tag Tag, data []byte, next kont.Eff[B]) kont.Eff[B] {
	return kont.Then(kont.Perform(Send{Tag: tag, Data: data}), next)
}

// RecvBind receives a message matching (tag, mask) into buf and passes the
// filled prefix to f.
// Fuses Perform(Recv{...}) + Bind.
func RecvBind[B any](tag, mask Tag, buf []byte, f func([]byte) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Recv{Tag: tag, Mask: mask, Buf: buf}), f)
}

// CloseDone closes the endpoint and returns a.
// Fuses Perform(Close{}) + Then + Pure.
func CloseDone[A any](a A) kont.Eff[A] {
	return kont.Then(kont.Perform(Close{}), kont.Pure(a))
}

// Reify converts a Cont-world protocol to Expr-world, for ExecExpr or
// Step and Advance.
func Reify[A any](m kont.Eff[A]) kont.Expr[A] {
	return kont.Reify(m)
}

// Reflect converts an Expr-world protocol to Cont-world, for Exec.
func Reflect[A any](m kont.Expr[A]) kont.Eff[A] {
	return kont.Reflect(m)
}
