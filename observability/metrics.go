package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MessagesMetrics records message-lane activity: accepted outbound messages,
// inbound reception outcomes, confirmed deliveries and credited rewards.
type MessagesMetrics struct {
	accepted  prometheus.Counter
	received  *prometheus.CounterVec
	delivered prometheus.Counter
	rewards   prometheus.Counter
	rejected  *prometheus.CounterVec
}

var (
	messagesMetricsOnce sync.Once
	messagesRegistry    *MessagesMetrics
)

// Messages returns the lazily-initialised metrics registry for the message
// lane module.
func Messages() *MessagesMetrics {
	messagesMetricsOnce.Do(func() {
		messagesRegistry = &MessagesMetrics{
			accepted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lanebridge",
				Subsystem: "messages",
				Name:      "accepted_total",
				Help:      "Total outbound messages accepted into lane queues.",
			}),
			received: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lanebridge",
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total inbound messages segmented by reception outcome.",
			}, []string{"outcome"}),
			delivered: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lanebridge",
				Subsystem: "messages",
				Name:      "delivered_total",
				Help:      "Total outbound messages confirmed as delivered and pruned.",
			}),
			rewards: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lanebridge",
				Subsystem: "messages",
				Name:      "relayer_rewards_total",
				Help:      "Total message rewards credited to relayers.",
			}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lanebridge",
				Subsystem: "messages",
				Name:      "rejected_proofs_total",
				Help:      "Count of rejected proof submissions segmented by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			messagesRegistry.accepted,
			messagesRegistry.received,
			messagesRegistry.delivered,
			messagesRegistry.rewards,
			messagesRegistry.rejected,
		)
	})
	return messagesRegistry
}

// MessageAccepted records one accepted outbound message.
func (m *MessagesMetrics) MessageAccepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
}

// MessageReceived records one inbound message reception outcome, e.g.
// "dispatched" or "invalid_nonce".
func (m *MessagesMetrics) MessageReceived(outcome string) {
	if m == nil || outcome == "" {
		return
	}
	m.received.WithLabelValues(outcome).Inc()
}

// MessagesDelivered records n outbound messages confirmed as delivered.
func (m *MessagesMetrics) MessagesDelivered(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.delivered.Add(float64(n))
}

// RewardsCredited records n message rewards credited to relayers.
func (m *MessagesMetrics) RewardsCredited(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.rewards.Add(float64(n))
}

// ProofRejected records one rejected proof submission with the given reason.
func (m *MessagesMetrics) ProofRejected(reason string) {
	if m == nil || reason == "" {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}
