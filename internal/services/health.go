package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mochaeng/payment-dispatcher/internal/constants"
	"github.com/mochaeng/payment-dispatcher/internal/metrics"
	"github.com/mochaeng/payment-dispatcher/internal/models"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// HealthMonitor owns the process-wide health cache of both processors.
// Entries younger than ttl are served without probing, which bounds traffic
// against rate-limited health endpoints.
type HealthMonitor struct {
	httpClient *fasthttp.Client
	urls       map[constants.Processor]string
	ttl        time.Duration
	timeout    time.Duration
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.RWMutex
	cache map[constants.Processor]models.ProcessorHealth
}

func NewHealthMonitor(
	httpClient *fasthttp.Client,
	urls map[constants.Processor]string,
	ttl, timeout time.Duration,
	logger *zap.Logger,
) *HealthMonitor {
	cache := make(map[constants.Processor]models.ProcessorHealth, len(constants.Processors))
	for _, processor := range constants.Processors {
		cache[processor] = models.UnknownHealth()
	}

	return &HealthMonitor{
		httpClient: httpClient,
		urls:       urls,
		ttl:        ttl,
		timeout:    timeout,
		logger:     logger.Named("health"),
		now:        time.Now,
		cache:      cache,
	}
}

// Check returns the cached health of processor, probing it first when the
// entry is older than the TTL. Probe failures are reported as unhealthy,
// never as errors.
func (m *HealthMonitor) Check(ctx context.Context, processor constants.Processor) models.ProcessorHealth {
	now := m.now()

	m.mu.RLock()
	cached := m.cache[processor]
	m.mu.RUnlock()
	if now.Sub(cached.LastCheckedAt) < m.ttl {
		return cached
	}

	health := models.UnknownHealth()
	health.LastCheckedAt = now

	resp, err := m.probe(ctx, processor)
	if err != nil {
		m.logger.Debug("health probe failed", zap.String("processor", string(processor)), zap.Error(err))
	} else {
		health.OK = !resp.Failing
		health.MinResponseTime = time.Duration(resp.MinResponseTime * float64(time.Millisecond))
	}

	m.mu.Lock()
	m.cache[processor] = health
	m.mu.Unlock()

	m.observe(processor, health)
	return health
}

// ForceUnhealthy marks processor as failing until its next probe. The entry
// keeps its LastCheckedAt, so the regular TTL still decides when to re-probe.
func (m *HealthMonitor) ForceUnhealthy(processor constants.Processor) {
	m.mu.Lock()
	health := m.cache[processor]
	health.OK = false
	m.cache[processor] = health
	m.mu.Unlock()

	m.observe(processor, health)
}

// Snapshot returns the cached entry without probing.
func (m *HealthMonitor) Snapshot(processor constants.Processor) models.ProcessorHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache[processor]
}

func (m *HealthMonitor) probe(ctx context.Context, processor constants.Processor) (*models.HealthResponse, error) {
	url, ok := m.urls[processor]
	if !ok {
		return nil, fmt.Errorf("no health url for processor %q", processor)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := m.httpClient.DoTimeout(req, resp, m.timeout); err != nil {
		return nil, fmt.Errorf("failed to do request: %w", err)
	}

	if code := resp.StatusCode(); code < 200 || code > 299 {
		return nil, fmt.Errorf("%w: %d", ErrProcessorStatus, code)
	}

	var healthResp models.HealthResponse
	if err := json.Unmarshal(resp.Body(), &healthResp); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}

	return &healthResp, nil
}

func (m *HealthMonitor) observe(processor constants.Processor, health models.ProcessorHealth) {
	healthy := 0.0
	if health.OK {
		healthy = 1
	}
	metrics.ProcessorHealthy.WithLabelValues(string(processor)).Set(healthy)

	if health.MinResponseTime != models.InfiniteResponseTime {
		metrics.ProcessorMinResponseTime.WithLabelValues(string(processor)).Set(health.MinResponseTime.Seconds())
	}
}
