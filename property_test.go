// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp_test

import (
	"bytes"
	"testing"
	"testing/quick"

	"code.hybscloud.com/ucp"
	"code.hybscloud.com/ucp/fabric"
)

// TestPropertyMatch checks the tag selector algebra: a zero mask accepts
// every tag, a full mask accepts exactly the posted tag, and matching
// depends only on the masked bits.
func TestPropertyMatch(t *testing.T) {
	zero := func(incoming, tag uint64) bool {
		return ucp.Match(ucp.Tag(incoming), ucp.Tag(tag), 0)
	}
	if err := quick.Check(zero, nil); err != nil {
		t.Fatal(err)
	}
	full := func(incoming, tag uint64) bool {
		return ucp.Match(ucp.Tag(incoming), ucp.Tag(tag), ucp.TagMaskFull) == (incoming == tag)
	}
	if err := quick.Check(full, nil); err != nil {
		t.Fatal(err)
	}
	masked := func(incoming, tag, mask, noise uint64) bool {
		m := ucp.Tag(mask)
		flipped := ucp.Tag(incoming) ^ (ucp.Tag(noise) &^ m)
		return ucp.Match(ucp.Tag(incoming), ucp.Tag(tag), m) == ucp.Match(flipped, ucp.Tag(tag), m)
	}
	if err := quick.Check(masked, nil); err != nil {
		t.Fatal(err)
	}
}

// TestPropertyTransportFIFO checks that messages on one tag arrive in send
// order, without loss or duplication, whatever their sizes and however the
// link backs up.
func TestPropertyTransportFIFO(t *testing.T) {
	skipRace(t)
	fifo := func(payloads [][]byte) bool {
		c := dial(t, fabric.New(fabric.WithLinkCapacity(4), fabric.WithEagerLimit(8)))
		defer c.close()
		var sends []*ucp.Request
		for _, p := range payloads {
			sends = append(sends, c.cli.Send(1, p))
		}
		buf := make([]byte, 1024)
		for _, want := range payloads {
			r := c.srv.Receive(buf, 1, ucp.TagMaskFull)
			for !r.Done() {
				c.cliW.Progress()
				c.srvW.Progress()
			}
			if err := r.Wait(c.srvW); err != nil {
				return false
			}
			if r.Len() != len(want) || !bytes.Equal(buf[:r.Len()], want) {
				return false
			}
		}
		for _, s := range sends {
			if err := s.Wait(c.cliW); err != nil {
				return false
			}
		}
		return true
	}
	if err := quick.Check(fifo, &quick.Config{MaxCount: 50}); err != nil {
		t.Fatal(err)
	}
}
