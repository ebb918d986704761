// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the gateway's components report
// to. It is constructed once per process and passed by reference.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	StreamsOpened    prometheus.Counter
	StreamsCompleted prometheus.Counter
	StreamsErrored   prometheus.Counter

	RegistryRefreshTotal *prometheus.CounterVec

	ApprovalsByState *prometheus.CounterVec
}

// NewMetrics registers every collector against a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Total HTTP requests by route and status.",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		StreamsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_streams_opened_total",
			Help: "Total SSE chat streams opened.",
		}),
		StreamsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_streams_completed_total",
			Help: "Total SSE chat streams completed normally.",
		}),
		StreamsErrored: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_streams_errored_total",
			Help: "Total SSE chat streams that ended in error.",
		}),
		RegistryRefreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_model_registry_refresh_total",
			Help: "Model registry refresh attempts by outcome.",
		}, []string{"outcome"}),
		ApprovalsByState: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_approvals_total",
			Help: "Approval decisions by terminal state.",
		}, []string{"state"}),
	}
}

// Handler exposes the registry in the Prometheus exposition format for
// mounting at GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
