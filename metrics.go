// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ucp

import "github.com/prometheus/client_golang/prometheus"

// Teardown path label values.
const (
	teardownForced = "forced"
	teardownPeer   = "peer"
)

type metrics struct {
	steps         prometheus.Counter
	events        prometheus.Counter
	endpoints     prometheus.Gauge
	teardowns     *prometheus.CounterVec
	inflight      prometheus.Gauge
	dispatches    prometheus.Counter
	handlerPanics prometheus.Counter
}

func newMetrics(serial Serial, reg prometheus.Registerer) *metrics {
	labels := prometheus.Labels{"worker": serial.String()}
	m := &metrics{
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ucp_worker_progress_steps_total",
			Help:        "Number of progress steps taken by the worker.",
			ConstLabels: labels,
		}),
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ucp_worker_progress_events_total",
			Help:        "Number of engine events processed during progress steps.",
			ConstLabels: labels,
		}),
		endpoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "ucp_endpoints_open",
			Help:        "Number of endpoints not yet torn down.",
			ConstLabels: labels,
		}),
		teardowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ucp_endpoint_teardowns_total",
			Help:        "Endpoint teardowns by path: forced close request or peer failure.",
			ConstLabels: labels,
		}, []string{"path"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "ucp_requests_inflight",
			Help:        "Number of pending engine requests not yet released.",
			ConstLabels: labels,
		}),
		dispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ucp_listener_dispatches_total",
			Help:        "Number of connection requests dispatched to listener handlers.",
			ConstLabels: labels,
		}),
		handlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ucp_listener_handler_panics_total",
			Help:        "Number of listener handler invocations that panicked.",
			ConstLabels: labels,
		}),
	}
	m.teardowns.WithLabelValues(teardownForced)
	m.teardowns.WithLabelValues(teardownPeer)
	if reg != nil {
		reg.MustRegister(m.steps, m.events, m.endpoints, m.teardowns, m.inflight, m.dispatches, m.handlerPanics)
	}
	return m
}
