// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp_test

import (
	"testing"

	"code.hybscloud.com/ucp"
	"code.hybscloud.com/ucp/fabric"
)

func TestSerialMonotonic(t *testing.T) {
	f := fabric.New()
	w1 := newWorker(t, f)
	w2 := newWorker(t, f)
	l, err := ucp.Listen(w1, "0.0.0.0:0", collect, new([]*ucp.ConnRequest))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	s1, s2, s3 := w1.Serial(), w2.Serial(), l.Serial()
	if s1 >= s2 {
		t.Fatalf("serials not increasing: %d >= %d", s1, s2)
	}
	if s2 >= s3 {
		t.Fatalf("serials not increasing: %d >= %d", s2, s3)
	}
	l.Close()
	w1.Close()
	w2.Close()
}

func TestEndpointSerialsDistinct(t *testing.T) {
	skipRace(t)
	c := dial(t, fabric.New())
	defer c.close()
	if c.cli.Serial() == c.srv.Serial() {
		t.Fatalf("endpoint serials equal: %d", c.cli.Serial())
	}
}
