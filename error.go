// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

import (
	"errors"
	"fmt"
	"strconv"

	"code.hybscloud.com/iox"
)

// Status is an engine status code.
// Values match the engine family's wire-visible codes bit for bit.
// Failure codes implement error and compare with errors.Is.
type Status int8

const (
	OK         Status = 0
	InProgress Status = 1

	ErrNoMessage        Status = -1
	ErrNoResource       Status = -2
	ErrIO               Status = -3
	ErrNoMemory         Status = -4
	ErrInvalidParam     Status = -5
	ErrUnreachable      Status = -6
	ErrInvalidAddr      Status = -7
	ErrNotImplemented   Status = -8
	ErrMessageTruncated Status = -9
	ErrNoProgress       Status = -10
	ErrBufferTooSmall   Status = -11
	ErrNoElem           Status = -12
	ErrBusy             Status = -15
	ErrCanceled         Status = -16
	ErrAlreadyExists    Status = -18
	ErrOutOfRange       Status = -19
	ErrTimedOut         Status = -20
	ErrUnsupported      Status = -22
	ErrRejected         Status = -23
	ErrNotConnected     Status = -24
	ErrConnectionReset  Status = -25
	ErrEndpointTimeout  Status = -80
)

var statusText = map[Status]string{
	OK:                  "success",
	InProgress:          "operation in progress",
	ErrNoMessage:        "no pending message",
	ErrNoResource:       "no resources are available to initiate the operation",
	ErrIO:               "input/output error",
	ErrNoMemory:         "out of memory",
	ErrInvalidParam:     "invalid parameter",
	ErrUnreachable:      "destination is unreachable",
	ErrInvalidAddr:      "address not valid",
	ErrNotImplemented:   "function not implemented",
	ErrMessageTruncated: "message truncated",
	ErrNoProgress:       "no progress",
	ErrBufferTooSmall:   "provided buffer is too small",
	ErrNoElem:           "no such element",
	ErrBusy:             "device is busy",
	ErrCanceled:         "request canceled",
	ErrAlreadyExists:    "element already exists",
	ErrOutOfRange:       "index out of range",
	ErrTimedOut:         "timed out",
	ErrUnsupported:      "operation is not supported",
	ErrRejected:         "operation rejected by remote peer",
	ErrNotConnected:     "endpoint is not connected",
	ErrConnectionReset:  "connection reset by remote peer",
	ErrEndpointTimeout:  "endpoint timeout",
}

// Known reports whether s belongs to the closed set of codes the core maps.
func (s Status) Known() bool {
	_, ok := statusText[s]
	return ok
}

// Error implements error.
func (s Status) Error() string {
	if t, ok := statusText[s]; ok {
		return t
	}
	return "unknown status " + strconv.Itoa(int(s))
}

// String returns the status text.
func (s Status) String() string { return s.Error() }

// FromStatus is the single translation point from engine status codes to
// Go errors. OK maps to nil. InProgress maps to iox.ErrWouldBlock, which is
// not a failure: it drives polling and is never returned by Request.Wait.
// Failures map to the Status itself; codes outside the known set map to
// ErrIO carrying the raw code.
func FromStatus(s Status) error {
	switch {
	case s == OK:
		return nil
	case s == InProgress:
		return iox.ErrWouldBlock
	case s.Known():
		return s
	default:
		return fmt.Errorf("%w: raw status %d", ErrIO, int(s))
	}
}

// Precondition failures raised by the core before the engine is involved.
var (
	ErrInvalidAddress      = errors.New("ucp: malformed socket address")
	ErrConnRequestConsumed = errors.New("ucp: connection request already consumed")
	ErrListenerClosed      = errors.New("ucp: listener closed")
	ErrWorkerClosed        = errors.New("ucp: worker closed")
)

// ConnectError is returned by Connect.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string { return "ucp: connect " + e.Addr + ": " + e.Err.Error() }
func (e *ConnectError) Unwrap() error { return e.Err }

// AcceptError is returned by Accept.
type AcceptError struct {
	Err error
}

func (e *AcceptError) Error() string { return "ucp: accept: " + e.Err.Error() }
func (e *AcceptError) Unwrap() error { return e.Err }

// BindError is returned by Listen.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string { return "ucp: listen " + e.Addr + ": " + e.Err.Error() }
func (e *BindError) Unwrap() error { return e.Err }

// OpError reports a failed send, receive or close request.
// It is only observable through Request.Wait.
type OpError struct {
	Op  string
	Tag Tag
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("ucp: %s tag=%#x: %v", e.Op, uint64(e.Tag), e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
