package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// dispatchesTotal counts finished dispatches per pool and outcome
var dispatchesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "outbox",
		Name:      "dispatches_total",
		Help:      "Number of queue entry dispatches, by worker pool and result.",
	},
	[]string{"worker", "result"},
)
