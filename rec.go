// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

import (
	"code.hybscloud.com/kont"
)

// Loop runs a recursive protocol (Cont-world), e.g. a request/reply
// exchange repeated until a terminating message.
// step returns Left(nextState) to continue or Right(result) to finish.
func Loop[S, A any](initial S, step func(S) kont.Eff[kont.Either[S, A]]) kont.Eff[A] {
	return kont.Bind(step(initial), func(e kont.Either[S, A]) kont.Eff[A] {
		if next, ok := e.GetLeft(); ok {
			return Loop(next, step)
		}
		result, _ := e.GetRight()
		return kont.Pure(result)
	})
}
