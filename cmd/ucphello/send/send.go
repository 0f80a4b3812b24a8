// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package send implements the sending side of the hello-world exchange.
package send

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/urfave/cli/v3"

	"code.hybscloud.com/ucp"
	"code.hybscloud.com/ucp/cmd/ucphello/shared"
)

// GetCommand ...
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Connect to a server and send it one message",
		ArgsUsage: "<ip>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one server address, got %d arguments", cmd.Args().Len())
			}
			ip, err := netip.ParseAddr(cmd.Args().First())
			if err != nil {
				return fmt.Errorf("invalid server address: %w", err)
			}
			cfg, err := shared.ConfigFromCommand(cmd)
			if err != nil {
				return err
			}
			addr := netip.AddrPortFrom(ip, cfg.Port)
			shared.InfoMsg(cmd.ErrWriter, "Sending to %s\n", addr)
			return Run(ctx, cfg, addr, []byte(shared.Message))
		},
		Flags: shared.GetCommonFlags(),
	}
}

// Run connects to addr and sends msg tagged cfg.Tag. It returns once the
// engine reports the send complete.
func Run(ctx context.Context, cfg shared.Config, addr netip.AddrPort, msg []byte) error {
	w, err := ucp.NewWorker(cfg.Context, ucp.WithLogger(cfg.Logger))
	if err != nil {
		return err
	}
	defer w.Close()

	ep, err := ucp.Connect(w, addr.String())
	if err != nil {
		return err
	}
	defer ep.Close()

	r := ep.Send(cfg.Tag, msg)
	defer r.Release()
	if err := w.UntilContext(ctx, r.Done); err != nil {
		return err
	}
	return r.Wait(w)
}
