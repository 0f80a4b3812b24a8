// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ucp provides a completion and lifetime layer over a
// progress-driven tagged-message engine.
//
// A [Worker] owns an engine instance and drives it only through
// [Worker.Progress]. Every operation answers with a [Request] that is either
// resolved at once or pending until a later progress step completes it.
//
// # Architecture
//
//   - Engine: any [Context] whose [Engine] completes work inside Progress. Package fabric provides an in-process engine, package tcp a socket one.
//   - Lifetime: workers are reference counted by their creator, endpoints and listeners. Engine callbacks hold cookies, never pointers, so late completions are dropped.
//   - Requests: [Request.Wait] steps the worker until completion, [Request.Done] only polls. Pending engine requests are freed exactly once.
//   - Errors: engine [Status] codes are surfaced as errors and wrapped in [ConnectError], [AcceptError], [BindError] and [OpError].
//
// # API Topologies
//
//   - Connections: [Connect], [Listen], [Accept], [ConnRequest.Reject].
//   - Messages: [Endpoint.Send] and [Endpoint.Receive] with tag and mask matching ([Match]).
//   - Protocols: the [Send], [Recv] and [Close] effects on [code.hybscloud.com/kont], composed with [SendThen], [RecvBind], [CloseDone] or their Expr-world forms, and [Loop] for iteration.
//
// # Integration
//
//   - Stepping: [Step] and [Advance] evaluate an Expr-world protocol one effect at a time; Advance returns [code.hybscloud.com/iox.ErrWouldBlock] while the effect is pending.
//   - Blocking: [Exec] and [ExecExpr] run a protocol to completion, stepping the worker with adaptive backoff.
//
// # Example
//
//	w, _ := ucp.NewWorker(fabric.New())
//	ep, _ := ucp.Connect(w, addr)
//	if err := ep.Send(99, []byte("Hello, World!")).Wait(w); err != nil {
//		return err
//	}
//	ep.Close()
package ucp
