package services

import (
	"context"
	"time"

	"github.com/mochaeng/payment-dispatcher/internal/models"
)

type SummaryService struct {
	ledger Ledger
}

func NewSummaryService(ledger Ledger) *SummaryService {
	return &SummaryService{ledger: ledger}
}

// GetSummary reads the incremental counters when no bound is given and
// falls back to an exact ledger scan for any time window.
func (s *SummaryService) GetSummary(ctx context.Context, from, to *time.Time) (models.PaymentSummaryResponse, error) {
	if from == nil && to == nil {
		return s.ledger.Summary(ctx)
	}
	return s.ledger.RangeSummary(ctx, from, to)
}

func (s *SummaryService) Purge(ctx context.Context) error {
	return s.ledger.Reset(ctx)
}
