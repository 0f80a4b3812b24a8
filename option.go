// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

import "github.com/prometheus/client_golang/prometheus"

type options struct {
	logger   Logger
	registry prometheus.Registerer
}

// Option configures a Worker.
type Option func(*options)

// WithLogger sets the worker's logger. Endpoints and listeners created from
// the worker log through it. The default is NewSlogLogger(nil).
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics registers the worker's collectors with reg.
// Without it the collectors exist but are not registered anywhere.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}
