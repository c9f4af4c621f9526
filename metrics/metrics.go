// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package metrics holds the prometheus collectors of msgnet.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "msgnet"

// Transport label values.
const (
	TCP       = "tcp"
	WebSocket = "websocket"
)

var (
	// ConnectionsAccepted counts connections handed to a worker.
	ConnectionsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connections_accepted_total",
		Help:      "Number of accepted connections.",
	}, []string{"transport"})

	// ConnectionsRejected counts connections closed because the worker pool was full.
	ConnectionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connections_rejected_total",
		Help:      "Number of connections rejected at capacity.",
	}, []string{"transport"})

	// ActiveWorkers is the number of running connection workers.
	ActiveWorkers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_workers",
		Help:      "Number of running connection workers.",
	}, []string{"transport"})

	// FramesReceived counts decoded inbound messages.
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_received_total",
		Help:      "Number of messages read from connections.",
	}, []string{"transport"})

	// FramesSent counts outbound messages.
	FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_sent_total",
		Help:      "Number of messages written to connections.",
	}, []string{"transport"})

	// ProtocolErrors counts connections dropped for malformed frames.
	ProtocolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "protocol_errors_total",
		Help:      "Number of malformed frames.",
	}, []string{"transport"})

	// HandshakeFailures counts failed TLS handshakes.
	HandshakeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tls_handshake_failures_total",
		Help:      "Number of failed TLS handshakes.",
	})

	// HandlerErrors counts failed subscription deliveries.
	HandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handler_errors_total",
		Help:      "Number of failed message deliveries, by message kind.",
	}, []string{"kind"})

	// RelayedMessages counts messages forwarded to the broker, by result.
	RelayedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relayed_messages_total",
		Help:      "Number of messages forwarded to the broker.",
	}, []string{"result"})

	// FedRecords counts kafka records delivered to peers, by result.
	FedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fed_records_total",
		Help:      "Number of kafka records delivered to connected peers.",
	}, []string{"result"})
)
