// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shared

import (
	"io"

	"github.com/fatih/color"
)

var red = color.New(color.FgRed).FprintfFunc()
var blue = color.New(color.FgBlue).FprintfFunc()

// ErrorMsg prints an error message to w in red.
func ErrorMsg(w io.Writer, format string, a ...any) {
	red(w, "[!] Error: "+format, a...)
}

// InfoMsg prints an informational message to w in blue.
func InfoMsg(w io.Writer, format string, a ...any) {
	blue(w, "[+] "+format, a...)
}
