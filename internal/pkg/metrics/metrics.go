// Package metrics defines and registers the custom Prometheus metrics of the
// custody tracker. It is the single source of truth for metric names, labels
// and help strings.
//
// Metrics are registered with the default Prometheus registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "custody"

// ── Lifecycle metrics ─────────────────────────────────────────────────────────

// OperationsTotal counts lifecycle operations by outcome.
// Labels:
//   - operation: e.g. "transfer", "recall_product"
//   - result: "ok", "not_found", "unauthorized", "invalid_argument", "conflict", "error"
var OperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Total number of lifecycle operations, by operation and result.",
	},
	[]string{"operation", "result"},
)

// OperationDuration measures how long a lifecycle operation takes, storage included.
var OperationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Duration of lifecycle operations from authorization to commit.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// StatusTransitionsTotal counts history entries by resulting status.
var StatusTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_total",
		Help:      "Total number of committed history entries, by resulting status.",
	},
	[]string{"status"},
)

// AdminOverridesTotal counts adminForceUpdate calls that were committed.
var AdminOverridesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admin_overrides_total",
		Help:      "Total number of committed administrator overrides.",
	},
)

// RoleGrantsTotal counts grant calls that were accepted.
var RoleGrantsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "role_grants_total",
		Help:      "Total number of accepted role grants, by role.",
	},
	[]string{"role"},
)

// ── Notification metrics ──────────────────────────────────────────────────────

// NotificationsDeliveredTotal counts notifications handed to a sink successfully.
var NotificationsDeliveredTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_delivered_total",
		Help:      "Total number of notifications delivered, by kind.",
	},
	[]string{"kind"},
)

// NotificationsErrorsTotal counts failed deliveries.
var NotificationsErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_errors_total",
		Help:      "Total number of notification deliveries that failed, by kind.",
	},
	[]string{"kind"},
)

// NotificationsDedupTotal counts deduplication decisions at the sink.
// Label:
//   - result: "hit" (already published, skipped) or "miss"
var NotificationsDedupTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_dedup_total",
		Help:      "Total number of notification deduplication checks, by result.",
	},
	[]string{"result"},
)

// NotificationQueueDepth tracks pending notifications per dispatcher worker.
var NotificationQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notification_queue_depth",
		Help:      "Current number of notifications pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)
