package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	messagesSent     *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	reconnects       prometheus.Counter
	unmatchedReplies prometheus.Counter
	pendingRequests  prometheus.Gauge
}

func NewMetrics() *Metrics {
	metrics := &Metrics{
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rosbridge_messages_sent_total",
			Help: "The total number of envelopes written to the bridge",
		}, []string{"op"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rosbridge_messages_received_total",
			Help: "The total number of envelopes received from the bridge",
		}, []string{"op"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rosbridge_reconnects_total",
			Help: "The total number of transport reconnections",
		}),
		unmatchedReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rosbridge_unmatched_replies_total",
			Help: "The total number of replies with no pending request",
		}),
		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rosbridge_pending_requests",
			Help: "The number of outstanding correlated requests",
		}),
	}
	metrics.register()
	return metrics
}

func (m *Metrics) register() {
	prometheus.MustRegister(
		m.messagesSent,
		m.messagesReceived,
		m.reconnects,
		m.unmatchedReplies,
		m.pendingRequests,
	)
}

func (m *Metrics) IncrementMessagesSent(op string) {
	m.messagesSent.WithLabelValues(op).Inc()
}

func (m *Metrics) IncrementMessagesReceived(op string) {
	m.messagesReceived.WithLabelValues(op).Inc()
}

func (m *Metrics) IncrementReconnects() {
	m.reconnects.Inc()
}

func (m *Metrics) IncrementUnmatchedReplies() {
	m.unmatchedReplies.Inc()
}

func (m *Metrics) SetPendingRequests(count int) {
	m.pendingRequests.Set(float64(count))
}
