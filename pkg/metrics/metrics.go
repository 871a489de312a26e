package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_received_total",
			Help: "Number of messages received under peek-lock",
		},
		[]string{"queue"},
	)
	MessagesResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_resolved_total",
			Help: "Number of lock resolutions by outcome",
		},
		[]string{"queue", "outcome", "result"}, // outcome: complete|abandon; result: ok|error
	)
	HandlerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_handler_failures_total",
			Help: "Number of handler invocations that returned an error or panicked",
		},
		[]string{"queue"},
	)
	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_sent_total",
			Help: "Number of messages sent by the producer",
		},
		[]string{"queue", "result"},
	)
)

var (
	LockRenewals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lease_lock_renewals_total",
			Help: "Number of lock renewal attempts",
		},
		[]string{"result"}, // ok|error
	)
	ActiveLeases = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lease_active",
			Help: "Number of messages whose lock is currently being renewed",
		},
	)
	Reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_reconnects_total",
			Help: "Number of reconnects triggered by failed broker operations",
		},
		[]string{"op", "result"},
	)
)

var (
	CacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handled_cache_operations_total",
			Help: "Handled-message cache operations",
		},
		[]string{"op"}, // hit|miss|evicted|expired
	)
	CacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "handled_cache_size",
			Help: "Number of message ids currently in the handled cache",
		},
	)
)

var registerOnce sync.Once

// MustRegister - регистрирует метрики в глобальном реестре; повторный вызов безопасен.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			MessagesReceived, MessagesResolved, HandlerFailures, MessagesSent,
			LockRenewals, ActiveLeases, Reconnects,
			CacheOps, CacheSize,
		)
	})
}
