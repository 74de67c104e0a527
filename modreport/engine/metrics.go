package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reportReceivedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modreport_reports_received",
	Help: "Number of accepted report candidates, by reason and integer score",
}, []string{"reason", "score"})

var reportSuppressedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modreport_reports_suppressed",
	Help: "Number of candidates suppressed by policy",
}, []string{"reason"})

var reportProcessedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modreport_reports_processed",
	Help: "Number of reports closed by moderators",
}, []string{"reason"})

var burstAlertCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modreport_burst_alerts",
	Help: "Number of escalation alerts sent to the notification channel",
})

var inquiryOpCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modreport_inquiry_ops",
	Help: "Number of inquiry state transitions, by operation",
}, []string{"op"})

var inquiryQueueFullCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modreport_inquiry_queue_full",
	Help: "Number of inquiry submissions rejected because the queue was full",
})

var inquiryTaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "modreport_inquiry_task_duration_sec",
	Help: "Duration of serialized inquiry tasks",
}, []string{"task"})

var expiredClaimCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modreport_expired_claims",
	Help: "Number of stale inquiry claims released by the sweep",
})

var accuracyRefreshCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modreport_accuracy_refreshes",
	Help: "Number of reporter accuracy recomputations (cache misses)",
})

var roomScoreRefreshCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modreport_room_score_refreshes",
	Help: "Number of room score recomputations (cache misses)",
})
