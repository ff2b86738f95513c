// Copyright (C) 2025 The RouteMe Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routeme",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "routeme",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	MessagesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "routeme",
			Subsystem: "messaging",
			Name:      "messages_sent_total",
			Help:      "Total encrypted messages stored",
		},
	)

	ConversationsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "routeme",
			Subsystem: "messaging",
			Name:      "conversations_created_total",
			Help:      "Total conversations created",
		},
	)

	DecryptionFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "routeme",
			Subsystem: "messaging",
			Name:      "decryption_failures_total",
			Help:      "Messages replaced by the undecryptable placeholder",
		},
	)

	PaymentsInitiatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routeme",
			Subsystem: "payments",
			Name:      "initiated_total",
			Help:      "Payment initiations by provider and result",
		},
		[]string{"provider", "result"},
	)

	CallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routeme",
			Subsystem: "payments",
			Name:      "callbacks_total",
			Help:      "Inbound payment callbacks by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
)

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records an HTTP request
func RecordRequest(method, route string, status int, elapsed time.Duration) {
	RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
