package plan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var droppedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "manifold",
	Subsystem: "plan",
	Name:      "dropped_records_total",
	Help:      "total number of records dropped because they lacked a join or deduplication key",
}, []string{"reason"})
