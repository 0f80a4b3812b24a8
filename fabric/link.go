// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fabric

import (
	"code.hybscloud.com/lfq"

	"code.hybscloud.com/ucp/internal/tagmatch"
)

// link is the transport between an accepted endpoint pair: one bounded
// SPSC queue per direction.
type link struct {
	ab lfq.SPSC[tagmatch.Message]
	ba lfq.SPSC[tagmatch.Message]
}

func newLink(capacity int) *link {
	l := &link{}
	l.ab.Init(capacity)
	l.ba.Init(capacity)
	return l
}

// out returns the queue side sends on; in the queue it receives from.
// Side 0 is the connecting endpoint, side 1 the accepting one.
func (l *link) out(side int) *lfq.SPSC[tagmatch.Message] {
	if side == 0 {
		return &l.ab
	}
	return &l.ba
}

func (l *link) in(side int) *lfq.SPSC[tagmatch.Message] {
	if side == 0 {
		return &l.ba
	}
	return &l.ab
}
