// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command ucphello exchanges one tagged message over the tcp engine.
//
//	ucphello serve
//	ucphello send 127.0.0.1
package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"code.hybscloud.com/ucp/cmd/ucphello/send"
	"code.hybscloud.com/ucp/cmd/ucphello/serve"
	"code.hybscloud.com/ucp/cmd/ucphello/shared"
)

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "ucphello",
		Usage: "hello-world exchange over ucp",
		Commands: []*cli.Command{
			serve.GetCommand(),
			send.GetCommand(),
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		shared.ErrorMsg(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
