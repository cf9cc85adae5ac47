package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "coderev", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "coderev", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	SubscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "coderev", Name: "subscriptions_active", Help: "Live query subscriptions currently registered."},
	)
	SubscriptionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "coderev", Name: "subscription_registry_events_total", Help: "Registry operations by outcome (registered, duplicate, cancelled)."},
		[]string{"event"},
	)
	LiveChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "coderev", Name: "live_changes_total", Help: "Live query change events delivered by collection and type."},
		[]string{"collection", "type"},
	)
	LiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "coderev", Name: "live_sessions_active", Help: "Open live sessions."},
	)
	StorageOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "coderev", Name: "storage_operations_total", Help: "Object storage operations by op and result."},
		[]string{"op", "result"},
	)
	FunctionCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "coderev", Name: "function_calls_total", Help: "Callable function invocations by name and outcome."},
		[]string{"function", "outcome"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(SubscriptionsActive)
	reg.MustRegister(SubscriptionEvents)
	reg.MustRegister(LiveChanges)
	reg.MustRegister(LiveSessions)
	reg.MustRegister(StorageOps)
	reg.MustRegister(FunctionCalls)
}
