package services

import (
	"context"
	"errors"
	"time"

	"github.com/mochaeng/payment-dispatcher/internal/config"
	"github.com/mochaeng/payment-dispatcher/internal/constants"
	"github.com/mochaeng/payment-dispatcher/internal/models"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var (
	ErrInvalidPayment  = errors.New("correlationId and a positive amount in whole cents are required")
	ErrProcessorStatus = errors.New("processor returned a non-2xx status")
)

type PaymentQueue interface {
	EnqueueNew(ctx context.Context, payment models.PendingPayment) error
	EnqueueRetry(ctx context.Context, payment models.PendingPayment) error
	ClaimBatch(ctx context.Context, maxItems int) (models.Batch, error)
}

type Ledger interface {
	Commit(ctx context.Context, record models.ProcessedRecord) error
	Summary(ctx context.Context) (models.PaymentSummaryResponse, error)
	RangeSummary(ctx context.Context, from, to *time.Time) (models.PaymentSummaryResponse, error)
	Reset(ctx context.Context) error
}

type Store interface {
	PaymentQueue
	Ledger
}

type Service struct {
	Payment    *PaymentService
	Summary    *SummaryService
	Health     *HealthMonitor
	Dispatcher *Dispatcher
}

func NewServices(cfg *config.Config, store Store, logger *zap.Logger) *Service {
	httpClient := &fasthttp.Client{
		MaxConnsPerHost:     cfg.WorkerConcurrency * constants.FastChunkFactor,
		MaxIdleConnDuration: 30 * time.Second,
		ReadTimeout:         cfg.RequestTimeout,
		WriteTimeout:        cfg.RequestTimeout,
		MaxConnWaitTimeout:  cfg.RequestTimeout,
	}

	healthURLs := make(map[constants.Processor]string, len(cfg.Urls))
	paymentURLs := make(map[constants.Processor]string, len(cfg.Urls))
	for processor, urls := range cfg.Urls {
		healthURLs[processor] = urls.HealthURL
		paymentURLs[processor] = urls.PaymentURL
	}

	health := NewHealthMonitor(httpClient, healthURLs, cfg.HealthCheckInterval, cfg.HealthTimeout, logger)
	executor := NewBatchExecutor(httpClient, paymentURLs, cfg.RequestTimeout, store, store, health, logger)
	router := LoadRouter{
		BaseChunk:        cfg.WorkerConcurrency,
		QueueThreshold:   cfg.QueueThreshold,
		LatencyThreshold: cfg.LatencyThreshold,
	}

	return &Service{
		Payment:    NewPaymentService(store, logger),
		Summary:    NewSummaryService(store),
		Health:     health,
		Dispatcher: NewDispatcher(health, store, router, executor, logger),
	}
}
