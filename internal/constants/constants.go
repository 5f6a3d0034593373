package constants

import "time"

type Processor string

const (
	DefaultProcessor  Processor = "default"
	FallbackProcessor Processor = "fallback"
)

// Processors lists every processor in the order summaries report them.
var Processors = []Processor{DefaultProcessor, FallbackProcessor}

const (
	PaymentQueueKey    = "payment_queue"
	PaymentsLedgerKey  = "payments"
	SummaryRequestsKey = "summary:requests"
	SummaryAmountKey   = "summary:amount"
)

const (
	HealthPath  = "/payments/service-health"
	PaymentPath = "/payments"
)

const (
	// MaxBatchSize caps how many pending payments one cycle may claim.
	MaxBatchSize = 2000

	// FastDefaultLatency is the default processor latency at or below which
	// its chunk size is tripled.
	FastDefaultLatency = 1000 * time.Millisecond
	FastChunkFactor    = 3

	IdleWait     = 100 * time.Millisecond
	EmptyWait    = 50 * time.Millisecond
	ErrorBackoff = 100 * time.Millisecond
)
