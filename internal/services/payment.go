package services

import (
	"context"
	"fmt"

	"github.com/mochaeng/payment-dispatcher/internal/metrics"
	"github.com/mochaeng/payment-dispatcher/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type enqueuer interface {
	EnqueueNew(ctx context.Context, payment models.PendingPayment) error
}

// PaymentService accepts payments from the ingress. Processing happens
// later, in the dispatcher.
type PaymentService struct {
	queue  enqueuer
	logger *zap.Logger
}

func NewPaymentService(queue enqueuer, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		queue:  queue,
		logger: logger.Named("payments"),
	}
}

func (p *PaymentService) Send(ctx context.Context, correlationID string, amount decimal.Decimal) error {
	if correlationID == "" || !amount.IsPositive() || !models.IsCentExact(amount) {
		return ErrInvalidPayment
	}

	payment := models.PendingPayment{
		CorrelationID: correlationID,
		Amount:        amount,
	}
	if err := p.queue.EnqueueNew(ctx, payment); err != nil {
		return fmt.Errorf("failed to accept payment %s: %w", correlationID, err)
	}

	metrics.PaymentsEnqueued.Inc()
	return nil
}
