// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tcp

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"code.hybscloud.com/ucp"
)

// MaxFrameSize is the largest payload a frame may carry (64 MiB).
const MaxFrameSize = 64 << 20

// headerSize is the frame header: 8-byte big-endian tag followed by a
// 4-byte big-endian payload length.
const headerSize = 12

// Handshake bytes the accepting side writes before any frame.
const (
	handshakeReject byte = 0
	handshakeAccept byte = 1
)

var errFrameTooLarge = errors.New("tcp: frame exceeds maximum size")

// message is one received frame.
type message struct {
	tag  ucp.Tag
	data []byte
}

func writeFrame(w *bufio.Writer, tag ucp.Tag, data []byte) error {
	if len(data) > MaxFrameSize {
		return errFrameTooLarge
	}
	var h [headerSize]byte
	binary.BigEndian.PutUint64(h[0:8], uint64(tag))
	binary.BigEndian.PutUint32(h[8:12], uint32(len(data)))
	if _, err := w.Write(h[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

func readFrame(r *bufio.Reader) (message, error) {
	var h [headerSize]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return message{}, err
	}
	n := binary.BigEndian.Uint32(h[8:12])
	if n > MaxFrameSize {
		return message{}, fmt.Errorf("%w: %d bytes", errFrameTooLarge, n)
	}
	m := message{tag: ucp.Tag(binary.BigEndian.Uint64(h[0:8])), data: make([]byte, n)}
	if _, err := io.ReadFull(r, m.data); err != nil {
		return message{}, fmt.Errorf("read payload: %w", err)
	}
	return m, nil
}
