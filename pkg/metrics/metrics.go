// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides the Prometheus instrumentation surface for
// the CoAP engine: queue depths, retransmission and dispatch outcomes,
// critical-option rejections, rate-limiter drops, and circuit-breaker
// state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the engine and its ambient
// packages populate.
type Metrics struct {
	// Queue depth, sampled by the event loop each iteration.
	SendQueueDepth    prometheus.Gauge
	ReceiveQueueDepth prometheus.Gauge

	// Retransmission outcomes: rescheduled or exhausted.
	Retransmissions *prometheus.CounterVec

	// Dispatcher outcomes, by message type and disposition (routed,
	// response, empty_ack, bad_option, not_local, dropped_wrong_version,
	// dropped_code). Short frames are dropped by the reader and never
	// reach the dispatcher.
	DispatchOutcomes *prometheus.CounterVec

	// Critical-option rejections, by message type (answered with Bad
	// Option for CON, silently dropped for NON).
	CriticalOptionRejections *prometheus.CounterVec

	// Datagrams dropped by the per-peer token bucket before allocation.
	RateLimiterDrops prometheus.Counter

	// Circuit breaker state (0=closed,1=half_open,2=open) and trip count
	// on the send path.
	CircuitBreakerState prometheus.Gauge
	CircuitBreakerTrips prometheus.Counter

	// CoAP messages seen, by method/code and direction.
	CoAPMessages *prometheus.CounterVec

	// Node allocation failures, by queue (send/receive).
	AllocationFailures *prometheus.CounterVec
}

// New creates every metric under namespace, registering them with the
// default Prometheus registry via promauto the way the rest of this
// corpus's services do.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "coapd"
	}

	return &Metrics{
		SendQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "send_queue_depth",
			Help:      "Number of nodes currently in the send queue",
		}),
		ReceiveQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "receive_queue_depth",
			Help:      "Number of nodes currently in the receive queue",
		}),
		Retransmissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retransmissions_total",
			Help:      "Total confirmable retransmission attempts, by outcome",
		}, []string{"outcome"}), // rescheduled | exhausted
		DispatchOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_outcomes_total",
			Help:      "Total dispatcher outcomes, by message type and disposition",
		}, []string{"type", "disposition"}),
		CriticalOptionRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "critical_option_rejections_total",
			Help:      "Total messages rejected for an unrecognized critical option",
		}, []string{"type"}), // CON | NON
		RateLimiterDrops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limiter_drops_total",
			Help:      "Total datagrams dropped by the per-peer rate limiter before allocation",
		}),
		CircuitBreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Send-path circuit breaker state (0=closed, 1=half_open, 2=open)",
		}),
		CircuitBreakerTrips: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_trips_total",
			Help:      "Total times the send-path circuit breaker opened",
		}),
		CoAPMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coap_messages_total",
			Help:      "Total CoAP messages, by method/code and direction",
		}, []string{"code", "direction"}), // direction: inbound | outbound
		AllocationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_failures_total",
			Help:      "Total node allocation failures, by queue",
		}, []string{"queue"}), // send | receive
	}
}

// ObserveBreakerState maps a breaker.State into the gauge's numeric
// encoding; the caller passes the int(state) so this package need not
// import pkg/breaker.
func (m *Metrics) ObserveBreakerState(state int) {
	m.CircuitBreakerState.Set(float64(state))
}

// The methods below satisfy the engine's Instrumentation interface, so a
// *Metrics can be installed directly in EndpointConfig.Instrumentation.

// Dispatched counts one dispatcher outcome.
func (m *Metrics) Dispatched(msgType, disposition string) {
	m.DispatchOutcomes.WithLabelValues(msgType, disposition).Inc()
}

// Retransmission counts one retransmission outcome.
func (m *Metrics) Retransmission(outcome string) {
	m.Retransmissions.WithLabelValues(outcome).Inc()
}

// CriticalOptionRejected counts one critical-option rejection.
func (m *Metrics) CriticalOptionRejected(msgType string) {
	m.CriticalOptionRejections.WithLabelValues(msgType).Inc()
}

// AllocationFailure counts one node allocation failure.
func (m *Metrics) AllocationFailure(queue string) {
	m.AllocationFailures.WithLabelValues(queue).Inc()
}

// RateLimited counts one datagram dropped by the rate limiter.
func (m *Metrics) RateLimited() {
	m.RateLimiterDrops.Inc()
}

// Message counts one CoAP message by code and direction.
func (m *Metrics) Message(code, direction string) {
	m.CoAPMessages.WithLabelValues(code, direction).Inc()
}
