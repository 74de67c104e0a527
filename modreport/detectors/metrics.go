package detectors

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var detectorReportCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modreport_detector_reports",
	Help: "Number of reports filed by automated detectors",
}, []string{"reason"})
