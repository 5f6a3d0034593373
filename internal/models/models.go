package models

import (
	"math"
	"time"

	"github.com/mochaeng/payment-dispatcher/internal/constants"
	"github.com/shopspring/decimal"
)

func init() {
	// processors and summary clients expect amounts as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// InfiniteResponseTime marks a processor whose latency is unknown or unreachable.
const InfiniteResponseTime = time.Duration(math.MaxInt64)

type PaymentRequest struct {
	CorrelationID string           `json:"correlationId" validate:"required"`
	Amount        *decimal.Decimal `json:"amount" validate:"required"`
}

type PendingPayment struct {
	CorrelationID string          `json:"correlationId"`
	Amount        decimal.Decimal `json:"amount"`
}

// Batch is the result of one atomic claim. Depth is the queue length seen
// right before the claim.
type Batch struct {
	Items []PendingPayment
	Depth int64
}

type PaymentProcessorRequest struct {
	CorrelationID string          `json:"correlationId"`
	Amount        decimal.Decimal `json:"amount"`
	RequestedAt   time.Time       `json:"requestedAt"`
}

type HealthResponse struct {
	Failing         bool    `json:"failing"`
	// milliseconds, possibly fractional
	MinResponseTime float64 `json:"minResponseTime"`
}

type ProcessorHealth struct {
	OK              bool
	LastCheckedAt   time.Time
	MinResponseTime time.Duration
}

func UnknownHealth() ProcessorHealth {
	return ProcessorHealth{OK: false, MinResponseTime: InfiniteResponseTime}
}

// ProcessedRecord is one successful downstream call. ID keeps two commits of
// the same payment distinct in the ledger.
type ProcessedRecord struct {
	ID            string              `json:"id"`
	CorrelationID string              `json:"correlationId"`
	Processor     constants.Processor `json:"processor"`
	Amount        decimal.Decimal     `json:"amount"`
	AmountCents   int64               `json:"amountCents"`
	CommittedAt   time.Time           `json:"committedAt"`
}

type SummaryCounters struct {
	Count  int64
	Amount decimal.Decimal
}

type ProcessorSummary struct {
	TotalRequests int64           `json:"totalRequests"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
}

type PaymentSummaryResponse struct {
	Default  ProcessorSummary `json:"default"`
	Fallback ProcessorSummary `json:"fallback"`
}

// IsCentExact reports whether amount has no precision below one cent.
func IsCentExact(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(2))
}

// ToCents normalises an amount to integer cents, rounding half away from zero.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
