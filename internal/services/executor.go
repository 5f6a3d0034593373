package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mochaeng/payment-dispatcher/internal/constants"
	"github.com/mochaeng/payment-dispatcher/internal/metrics"
	"github.com/mochaeng/payment-dispatcher/internal/models"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type retryQueue interface {
	EnqueueRetry(ctx context.Context, payment models.PendingPayment) error
}

type committer interface {
	Commit(ctx context.Context, record models.ProcessedRecord) error
}

type DispatchResult struct {
	Succeeded int
	Failed    int
}

// BatchExecutor sends partitions to a processor under a bulkhead: chunks run
// one after another and the payments of a chunk run concurrently, so at most
// chunkSize calls are in flight to a processor.
type BatchExecutor struct {
	httpClient *fasthttp.Client
	urls       map[constants.Processor]string
	timeout    time.Duration
	queue      retryQueue
	ledger     committer
	health     *HealthMonitor
	logger     *zap.Logger
	now        func() time.Time
}

func NewBatchExecutor(
	httpClient *fasthttp.Client,
	urls map[constants.Processor]string,
	timeout time.Duration,
	queue retryQueue,
	ledger committer,
	health *HealthMonitor,
	logger *zap.Logger,
) *BatchExecutor {
	return &BatchExecutor{
		httpClient: httpClient,
		urls:       urls,
		timeout:    timeout,
		queue:      queue,
		ledger:     ledger,
		health:     health,
		logger:     logger.Named("executor"),
		now:        time.Now,
	}
}

// Dispatch processes every payment of partition exactly once against
// processor. Failed payments are re-enqueued at the oldest end of the queue.
// Claimed work is always finished or re-enqueued, even once ctx is done.
func (e *BatchExecutor) Dispatch(
	ctx context.Context,
	partition []models.PendingPayment,
	processor constants.Processor,
	chunkSize int,
	requestedAt time.Time,
) DispatchResult {
	ctx = context.WithoutCancel(ctx)
	if chunkSize <= 0 {
		chunkSize = 1
	}

	var succeeded, failed atomic.Int64
	for start := 0; start < len(partition); start += chunkSize {
		chunk := partition[start:min(start+chunkSize, len(partition))]

		var wg sync.WaitGroup
		for _, payment := range chunk {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						e.logger.Error("panic while processing payment",
							zap.String("correlationId", payment.CorrelationID),
							zap.Any("panic", r),
						)
						failed.Add(1)
						e.retry(ctx, payment)
					}
				}()

				if e.process(ctx, payment, processor, requestedAt) {
					succeeded.Add(1)
				} else {
					failed.Add(1)
				}
			}()
		}
		wg.Wait()
	}

	return DispatchResult{Succeeded: int(succeeded.Load()), Failed: int(failed.Load())}
}

func (e *BatchExecutor) process(
	ctx context.Context,
	payment models.PendingPayment,
	processor constants.Processor,
	requestedAt time.Time,
) bool {
	start := time.Now()
	err := e.send(payment, processor, requestedAt)
	metrics.ProcessorCallLatency.WithLabelValues(string(processor)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.PaymentsDispatched.WithLabelValues(string(processor), metrics.OutcomeFailure).Inc()
		e.logger.Debug("payment failed, re-enqueueing",
			zap.String("processor", string(processor)),
			zap.String("correlationId", payment.CorrelationID),
			zap.Error(err),
		)

		e.retry(ctx, payment)
		// only the default processor is failed over eagerly
		if processor == constants.DefaultProcessor {
			e.health.ForceUnhealthy(processor)
		}
		return false
	}

	record := models.ProcessedRecord{
		ID:            uuid.NewString(),
		CorrelationID: payment.CorrelationID,
		Processor:     processor,
		Amount:        payment.Amount,
		AmountCents:   models.ToCents(payment.Amount),
		CommittedAt:   e.now().UTC(),
	}
	if err := e.ledger.Commit(ctx, record); err != nil {
		metrics.PaymentsDispatched.WithLabelValues(string(processor), metrics.OutcomeCommitFailed).Inc()
		e.logger.Error("failed to commit processed payment, re-enqueueing",
			zap.String("processor", string(processor)),
			zap.String("correlationId", payment.CorrelationID),
			zap.Error(err),
		)
		e.retry(ctx, payment)
		return false
	}

	metrics.PaymentsDispatched.WithLabelValues(string(processor), metrics.OutcomeSuccess).Inc()
	return true
}

func (e *BatchExecutor) send(payment models.PendingPayment, processor constants.Processor, requestedAt time.Time) error {
	url, ok := e.urls[processor]
	if !ok {
		return fmt.Errorf("no payment url for processor %q", processor)
	}

	body, err := json.Marshal(models.PaymentProcessorRequest{
		CorrelationID: payment.CorrelationID,
		Amount:        payment.Amount,
		RequestedAt:   requestedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payment request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := e.httpClient.DoTimeout(req, resp, e.timeout); err != nil {
		return fmt.Errorf("failed to do request: %w", err)
	}

	if code := resp.StatusCode(); code < 200 || code > 299 {
		return fmt.Errorf("%w: %d", ErrProcessorStatus, code)
	}

	return nil
}

func (e *BatchExecutor) retry(ctx context.Context, payment models.PendingPayment) {
	if err := e.queue.EnqueueRetry(ctx, payment); err != nil {
		metrics.PaymentsLost.Inc()
		e.logger.Error("failed to re-enqueue payment",
			zap.String("correlationId", payment.CorrelationID),
			zap.String("amount", payment.Amount.String()),
			zap.Error(err),
		)
	}
}
