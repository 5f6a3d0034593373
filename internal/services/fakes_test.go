package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mochaeng/payment-dispatcher/internal/config"
	"github.com/mochaeng/payment-dispatcher/internal/constants"
	"github.com/mochaeng/payment-dispatcher/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// memStore is an in-memory Store. items[0] is the oldest end of the queue.
type memStore struct {
	mu      sync.Mutex
	items   []models.PendingPayment
	records []models.ProcessedRecord
	claims  int

	claimErr  error
	commitErr error
	claimHook func()
}

var _ Store = (*memStore)(nil)

func (s *memStore) EnqueueNew(_ context.Context, payment models.PendingPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, payment)
	return nil
}

func (s *memStore) EnqueueRetry(_ context.Context, payment models.PendingPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]models.PendingPayment{payment}, s.items...)
	return nil
}

func (s *memStore) ClaimBatch(_ context.Context, maxItems int) (models.Batch, error) {
	if s.claimHook != nil {
		s.claimHook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims++
	if s.claimErr != nil {
		return models.Batch{}, s.claimErr
	}

	depth := int64(len(s.items))
	n := min(maxItems, len(s.items))
	batch := models.Batch{Items: append([]models.PendingPayment(nil), s.items[:n]...), Depth: depth}
	s.items = s.items[n:]
	return batch, nil
}

func (s *memStore) Commit(_ context.Context, record models.ProcessedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	s.records = append(s.records, record)
	return nil
}

func (s *memStore) Summary(ctx context.Context) (models.PaymentSummaryResponse, error) {
	return s.RangeSummary(ctx, nil, nil)
}

func (s *memStore) RangeSummary(_ context.Context, from, to *time.Time) (models.PaymentSummaryResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resp models.PaymentSummaryResponse
	for _, r := range s.records {
		if from != nil && r.CommittedAt.Before(*from) || to != nil && r.CommittedAt.After(*to) {
			continue
		}
		target := &resp.Default
		if r.Processor == constants.FallbackProcessor {
			target = &resp.Fallback
		}
		target.TotalRequests++
		target.TotalAmount = target.TotalAmount.Add(r.Amount)
	}
	return resp, nil
}

func (s *memStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.records = nil
	return nil
}

func (s *memStore) queued() []models.PendingPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PendingPayment(nil), s.items...)
}

func (s *memStore) committed() []models.ProcessedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ProcessedRecord(nil), s.records...)
}

func (s *memStore) claimCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims
}

// mockProcessor is a thread-safe stand-in for a payment processor.
type mockProcessor struct {
	server *httptest.Server

	mu       sync.Mutex
	health   models.HealthResponse
	payments []models.PaymentProcessorRequest
	// respond decides the outcome of a payment call; nil means 200.
	respond func(req models.PaymentProcessorRequest) int
	delay   time.Duration

	healthHits  atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

type processorResponse struct {
	Message string `json:"message"`
}

// abortStatus makes the mock drop the connection instead of answering.
const abortStatus = -1

func newMockProcessor(t *testing.T, health models.HealthResponse) *mockProcessor {
	t.Helper()

	m := &mockProcessor{health: health}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case constants.HealthPath:
			m.healthHits.Add(1)
			m.mu.Lock()
			health := m.health
			m.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(health)
		case constants.PaymentPath:
			m.handlePayment(w, r)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockProcessor) handlePayment(w http.ResponseWriter, r *http.Request) {
	current := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxInFlight.Load()
		if current <= seen || m.maxInFlight.CompareAndSwap(seen, current) {
			break
		}
	}

	var req models.PaymentProcessorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	respond, delay := m.respond, m.delay
	m.mu.Unlock()

	status := http.StatusOK
	if respond != nil {
		status = respond(req)
	}
	if status == abortStatus {
		panic(http.ErrAbortHandler)
	}

	m.mu.Lock()
	m.payments = append(m.payments, req)
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(processorResponse{Message: "payment processed successfully"})
}

func (m *mockProcessor) setHealth(h models.HealthResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health = h
}

func (m *mockProcessor) setRespond(fn func(req models.PaymentProcessorRequest) int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.respond = fn
}

func (m *mockProcessor) setDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

func (m *mockProcessor) received() []models.PaymentProcessorRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PaymentProcessorRequest(nil), m.payments...)
}

func (m *mockProcessor) correlationIDs() []string {
	var ids []string
	for _, p := range m.received() {
		ids = append(ids, p.CorrelationID)
	}
	return ids
}

func testConfig(def, fb *mockProcessor) *config.Config {
	return &config.Config{
		Mode:                config.ModeAll,
		HealthCheckInterval: 5 * time.Second,
		HealthTimeout:       time.Second,
		RequestTimeout:      time.Second,
		WorkerConcurrency:   80,
		QueueThreshold:      1000,
		LatencyThreshold:    5 * time.Second,
		Urls: map[constants.Processor]*config.ProcessorsConfig{
			constants.DefaultProcessor:  config.NewProcessorsConfig(def.server.URL),
			constants.FallbackProcessor: config.NewProcessorsConfig(fb.server.URL),
		},
	}
}

func newTestClient() *fasthttp.Client {
	return &fasthttp.Client{}
}

func nopLogger() *zap.Logger {
	return zap.NewNop()
}

func payment(id string, amount string) models.PendingPayment {
	return models.PendingPayment{CorrelationID: id, Amount: decimal.RequireFromString(amount)}
}

func ids(payments []models.PendingPayment) []string {
	out := make([]string, 0, len(payments))
	for _, p := range payments {
		out = append(out, p.CorrelationID)
	}
	return out
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "amount: want %s, got %s", want, got)
}

var errStoreDown = errors.New("store unavailable")
