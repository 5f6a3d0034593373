package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess      = "success"
	OutcomeFailure      = "failure"
	OutcomeCommitFailed = "commit_failed"
)

// PaymentsDispatched counts processor calls by processor and outcome.
var PaymentsDispatched = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payment_dispatcher_payments_dispatched_total",
		Help: "Payments sent to a processor, by processor and outcome",
	},
	[]string{"processor", "outcome"},
)

// PaymentsLost counts payments that could not be re-enqueued after a failure.
var PaymentsLost = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "payment_dispatcher_payments_lost_total",
		Help: "Payments dropped because the retry enqueue failed",
	},
)

var ProcessorCallLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "payment_dispatcher_processor_call_seconds",
		Help:    "Latency of payment calls to the processors",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"processor"},
)

var (
	ProcessorHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payment_dispatcher_processor_healthy",
			Help: "1 when the cached health of the processor is ok",
		},
		[]string{"processor"},
	)

	ProcessorMinResponseTime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payment_dispatcher_processor_min_response_seconds",
			Help: "Last minResponseTime reported by the processor health endpoint",
		},
		[]string{"processor"},
	)
)

var (
	DispatchCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_dispatcher_cycles_total",
			Help: "Dispatch cycles by the state they ended in",
		},
		[]string{"state"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "payment_dispatcher_queue_depth",
			Help: "Queue length observed by the last claim",
		},
	)

	PaymentsEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_dispatcher_payments_enqueued_total",
			Help: "Payments accepted by the ingress",
		},
	)
)

func init() {
	prometheus.MustRegister(PaymentsDispatched, PaymentsLost, ProcessorCallLatency)
	prometheus.MustRegister(ProcessorHealthy, ProcessorMinResponseTime)
	prometheus.MustRegister(DispatchCycles, QueueDepth, PaymentsEnqueued)
}
