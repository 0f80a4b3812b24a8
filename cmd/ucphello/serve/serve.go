// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package serve implements the receiving side of the hello-world exchange.
package serve

import (
	"context"
	"fmt"
	"io"
	"net/netip"

	"github.com/urfave/cli/v3"

	"code.hybscloud.com/ucp"
	"code.hybscloud.com/ucp/cmd/ucphello/shared"
)

// GetCommand ...
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Accept one connection and print the message it carries",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := shared.ConfigFromCommand(cmd)
			if err != nil {
				return err
			}
			return Run(ctx, cfg, cmd.Writer, func(addr netip.AddrPort) {
				shared.InfoMsg(cmd.ErrWriter, "Listening on %s\n", addr)
			})
		},
		Flags: shared.GetCommonFlags(),
	}
}

// server is the listener state: the first connection is accepted, later
// ones are turned away.
type server struct {
	ep  *ucp.Endpoint
	err error
}

func handle(req *ucp.ConnRequest, w *ucp.Worker, s *server) {
	if s.ep != nil || s.err != nil {
		_ = req.Reject()
		return
	}
	s.ep, s.err = ucp.Accept(w, req)
}

// Run listens on all interfaces at cfg.Port, accepts one connection,
// receives one message matching (cfg.Tag, cfg.Mask) and writes it to out.
// ready, if not nil, is told the bound address.
func Run(ctx context.Context, cfg shared.Config, out io.Writer, ready func(netip.AddrPort)) error {
	w, err := ucp.NewWorker(cfg.Context, ucp.WithLogger(cfg.Logger))
	if err != nil {
		return err
	}
	defer w.Close()

	s := &server{}
	l, err := ucp.Listen(w, netip.AddrPortFrom(netip.IPv4Unspecified(), cfg.Port).String(), handle, s)
	if err != nil {
		return err
	}
	defer l.Close()
	if ready != nil {
		ready(l.Addr())
	}

	if err := w.UntilContext(ctx, func() bool { return s.ep != nil || s.err != nil }); err != nil {
		return err
	}
	if s.err != nil {
		return s.err
	}
	defer s.ep.Close()

	buf := make([]byte, shared.ReceiveBufSize)
	r := s.ep.Receive(buf, cfg.Tag, cfg.Mask)
	defer r.Release()
	if err := w.UntilContext(ctx, r.Done); err != nil {
		return err
	}
	if err := r.Wait(w); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", buf[:r.Len()])
	return err
}
