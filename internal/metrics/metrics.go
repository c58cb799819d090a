// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package metrics exposes per-process Prometheus instrumentation for the
// counters and histograms §10.5 names: messages sent/dropped by NID,
// safety-layer CRC/MAC failures, handshake duration, auto-stop latency,
// and RTT per tracked message. The struct-of-metrics-with-nil-safe-
// methods shape is grounded on marmos91-dittofs's
// internal/protocol/nfs/rpc/gss.GSSMetrics; the /metrics HTTP endpoint is
// grounded on runZeroInc-sockstats's promhttp wiring.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds one process's registered instruments. A nil *Metrics is
// a valid no-op receiver for every Record method, so instrumentation can
// be threaded through OBU/RBC/bridge code unconditionally even when a
// process is run with metrics disabled.
type Metrics struct {
	MessagesSent    *prometheus.CounterVec
	MessagesDropped *prometheus.CounterVec

	SafetyCRCFailures *prometheus.CounterVec
	SafetyMACFailures *prometheus.CounterVec

	HandshakeDuration prometheus.Histogram
	AutoStopLatency   prometheus.Histogram
	MessageRTT        *prometheus.HistogramVec
}

// New constructs and registers a Metrics instance against registerer
// (prometheus.DefaultRegisterer if nil), tagged by process ("obu", "rbc",
// "bridge-forward", "bridge-reverse").
func New(registerer prometheus.Registerer, process string) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	constLabels := prometheus.Labels{"process": process}

	m := &Metrics{
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "etcsobu_messages_sent_total",
			Help:        "ETCS messages sent, by NID_MESSAGE.",
			ConstLabels: constLabels,
		}, []string{"nid"}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "etcsobu_messages_dropped_total",
			Help:        "Inbound ETCS messages dropped before dispatch, by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		SafetyCRCFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "etcsobu_safety_crc_failures_total",
			Help:        "Secure PDU CRC-16 mismatches on unwrap.",
			ConstLabels: constLabels,
		}, []string{"nid"}),
		SafetyMACFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "etcsobu_safety_mac_failures_total",
			Help:        "Secure PDU MAC mismatches on unwrap.",
			ConstLabels: constLabels,
		}, []string{"nid"}),
		HandshakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "etcsobu_handshake_duration_seconds",
			Help:        "Time from AU1 publish to session-established.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
		AutoStopLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "etcsobu_auto_stop_latency_seconds",
			Help:        "Time from an AI alert to the train-stop publish.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
		MessageRTT: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "etcsobu_message_rtt_seconds",
			Help:        "Round-trip time per tracked message, by NID_MESSAGE.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"nid"}),
	}

	registerer.MustRegister(
		m.MessagesSent,
		m.MessagesDropped,
		m.SafetyCRCFailures,
		m.SafetyMACFailures,
		m.HandshakeDuration,
		m.AutoStopLatency,
		m.MessageRTT,
	)

	return m
}

// Handler returns the promhttp handler to mount at a process's /metrics
// endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) RecordSent(nid int) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(nidLabel(nid)).Inc()
}

func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordCRCFailure(nid int) {
	if m == nil {
		return
	}
	m.SafetyCRCFailures.WithLabelValues(nidLabel(nid)).Inc()
}

func (m *Metrics) RecordMACFailure(nid int) {
	if m == nil {
		return
	}
	m.SafetyMACFailures.WithLabelValues(nidLabel(nid)).Inc()
}

func (m *Metrics) RecordHandshakeDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.HandshakeDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordAutoStopLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.AutoStopLatency.Observe(d.Seconds())
}

func (m *Metrics) RecordMessageRTT(nid int, d time.Duration) {
	if m == nil {
		return
	}
	m.MessageRTT.WithLabelValues(nidLabel(nid)).Observe(d.Seconds())
}

func nidLabel(nid int) string {
	return strconv.Itoa(nid)
}
