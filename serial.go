// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

import (
	"strconv"

	"code.hybscloud.com/atomix"
)

// Serial identifies a worker, endpoint or listener in log lines and metric
// labels. All three draw from one process-wide sequence, so serials are
// unique and increasing across workers.
type Serial uint32

// String returns the decimal form, as used for the "worker" metric label.
func (s Serial) String() string { return strconv.FormatUint(uint64(s), 10) }

var serials atomix.Uint32

func nextSerial() Serial {
	return Serial(serials.Add(1))
}
