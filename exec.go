// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

import (
	"code.hybscloud.com/kont"
)

// Exec runs a Cont-world protocol on ep until it completes or an
// operation fails. Waiting steps ep's worker, backing off on idle steps.
// The first failed operation ends the protocol and is returned.
func Exec[R any](ep *Endpoint, protocol kont.Eff[R]) (R, error) {
	wrapped := kont.Map[kont.Resumed, R, kont.Either[error, R]](protocol, func(r R) kont.Either[error, R] {
		return kont.Right[error, R](r)
	})
	h := sessionHandler[R]{ctx: &ep.proto}
	return fromEither(kont.Handle(wrapped, h))
}

// ExecExpr runs an Expr-world protocol on ep. See Exec.
func ExecExpr[R any](ep *Endpoint, protocol kont.Expr[R]) (R, error) {
	wrapped := kont.ExprMap(protocol, func(r R) kont.Either[error, R] {
		return kont.Right[error, R](r)
	})
	h := sessionHandler[R]{ctx: &ep.proto}
	return fromEither(kont.HandleExpr(wrapped, h))
}

func fromEither[R any](e kont.Either[error, R]) (R, error) {
	if err, ok := e.GetLeft(); ok {
		var zero R
		return zero, err
	}
	r, _ := e.GetRight()
	return r, nil
}
