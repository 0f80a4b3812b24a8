// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package shared holds the flags and setup common to the ucphello commands.
package shared

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"code.hybscloud.com/ucp"
	"code.hybscloud.com/ucp/tcp"
)

// Flag names.
const (
	LogLevelFlag = "log-level"
	PortFlag     = "port"
	TagFlag      = "tag"
	MaskFlag     = "tag-mask"
)

// Defaults of the hello-world exchange.
const (
	DefaultPort    = 10301
	DefaultTag     = 99
	DefaultMask    = 0
	Message        = "Hello, World!"
	ReceiveBufSize = 256
)

const categoryCommon = "common"

// Config is what both commands need to run an exchange.
type Config struct {
	Context ucp.Context
	Logger  ucp.Logger
	Port    uint16
	Tag     ucp.Tag
	Mask    ucp.Tag
}

// GetCommonFlags returns the flags every command accepts.
func GetCommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     LogLevelFlag,
			Usage:    "Log level (debug, info, warn, error)",
			Category: categoryCommon,
			Value:    "warn",
		},
		&cli.IntFlag{
			Name:     PortFlag,
			Aliases:  []string{"p"},
			Usage:    "Port of the exchange",
			Category: categoryCommon,
			Value:    DefaultPort,
		},
		&cli.IntFlag{
			Name:     TagFlag,
			Usage:    "Message tag",
			Category: categoryCommon,
			Value:    DefaultTag,
		},
		&cli.IntFlag{
			Name:     MaskFlag,
			Usage:    "Receive tag mask (0 accepts any tag)",
			Category: categoryCommon,
			Value:    DefaultMask,
		},
	}
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

// NewLogger returns a text logger on stderr at the given level.
func NewLogger(level string) (ucp.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return ucp.NewSlogLogger(slog.New(h)), nil
}

// ConfigFromCommand builds a Config over the tcp engine from cmd's flags.
func ConfigFromCommand(cmd *cli.Command) (Config, error) {
	log, err := NewLogger(cmd.String(LogLevelFlag))
	if err != nil {
		return Config{}, err
	}
	port := cmd.Int(PortFlag)
	if port < 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid port %d", port)
	}
	tag := cmd.Int(TagFlag)
	if tag < 0 {
		return Config{}, fmt.Errorf("invalid tag %d", tag)
	}
	mask := cmd.Int(MaskFlag)
	if mask < 0 {
		return Config{}, fmt.Errorf("invalid tag mask %d", mask)
	}
	return Config{
		Context: tcp.New(tcp.WithLogger(log)),
		Logger:  log,
		Port:    uint16(port),
		Tag:     ucp.Tag(tag),
		Mask:    ucp.Tag(mask),
	}, nil
}
