// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

import (
	"context"
	"fmt"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
)

// Worker owns an engine and its cooperative progress loop.
// Completions are discovered only inside Progress, which runs engine
// callbacks synchronously on the calling goroutine.
//
// A Worker is shared by every Endpoint and Listener built from it. Each of
// them holds a reference; the engine is destroyed when the creator has
// called Close and the last endpoint or listener has been closed.
// A Worker is not safe for concurrent use.
type Worker struct {
	eng     Engine
	log     Logger
	m       *metrics
	serial  Serial
	refs    atomix.Uint32
	table   handleTable
	pending map[*Request]struct{}
	steps   uint64
	closed  bool
	dead    bool
}

// NewWorker creates a worker with an engine from ctx.
func NewWorker(ctx Context, opts ...Option) (*Worker, error) {
	o := options{logger: NewSlogLogger(nil)}
	for _, opt := range opts {
		opt(&o)
	}
	eng, err := ctx.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("ucp: create worker: %w", err)
	}
	s := nextSerial()
	w := &Worker{
		eng:     eng,
		log:     o.logger,
		m:       newMetrics(s, o.registry),
		serial:  s,
		pending: make(map[*Request]struct{}),
	}
	w.refs.Store(1)
	w.log.Debug("ucp: worker created", "worker", s)
	return w, nil
}

// Serial returns the worker's serial.
func (w *Worker) Serial() Serial { return w.serial }

// Steps returns the number of progress steps taken so far.
func (w *Worker) Steps() uint64 { return w.steps }

// Progress takes one step: it drives ready completions and returns the
// number of engine events processed. Callbacks (completion, error, listener
// dispatch) run inside this call and may call Progress again. Progress
// never blocks indefinitely and reports no errors; failures surface only
// through requests and error callbacks.
func (w *Worker) Progress() int {
	if w.dead {
		return 0
	}
	w.steps++
	n := w.eng.Progress()
	w.m.steps.Inc()
	if n > 0 {
		w.m.events.Add(float64(n))
	}
	return n
}

// Until steps the worker until done reports true. Idle steps back off
// adaptively. There is no timeout: use UntilContext to impose one.
func (w *Worker) Until(done func() bool) {
	var bo iox.Backoff
	for !done() {
		if w.Progress() == 0 {
			bo.Wait()
		} else {
			bo.Reset()
		}
	}
}

// UntilContext is Until with cancellation. It returns ctx.Err() if ctx
// ends before done reports true.
func (w *Worker) UntilContext(ctx context.Context, done func() bool) error {
	var bo iox.Backoff
	for !done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.Progress() == 0 {
			bo.Wait()
		} else {
			bo.Reset()
		}
	}
	return nil
}

// Close releases the creator's reference. It is idempotent.
func (w *Worker) Close() {
	if w.closed {
		return
	}
	w.closed = true
	w.release()
}

func (w *Worker) acquire() error {
	if w.dead {
		return ErrWorkerClosed
	}
	w.refs.Add(1)
	return nil
}

func (w *Worker) release() {
	if w.refs.Add(^uint32(0)) == 0 {
		w.destroy()
	}
}

// destroy frees requests nobody released, then the engine.
func (w *Worker) destroy() {
	for r := range w.pending {
		r.cancel()
	}
	w.eng.Close()
	w.dead = true
	w.table = handleTable{}
	w.log.Debug("ucp: worker destroyed", "worker", w.serial, "steps", w.steps)
}
