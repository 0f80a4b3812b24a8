// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

import "log/slog"

// Logger is the logging collaborator injected into a Worker.
// Arguments after msg are slog-style key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogLogger adapts *slog.Logger to Logger.
type SlogLogger struct {
	*slog.Logger
}

// NewSlogLogger returns a Logger backed by l, or by slog.Default if l is nil.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return SlogLogger{Logger: l}
}

func (s SlogLogger) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }
func (s SlogLogger) Info(msg string, args ...any)  { s.Logger.Info(msg, args...) }
func (s SlogLogger) Warn(msg string, args ...any)  { s.Logger.Warn(msg, args...) }
func (s SlogLogger) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
