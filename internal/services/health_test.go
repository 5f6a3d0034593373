package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mochaeng/payment-dispatcher/internal/constants"
	"github.com/mochaeng/payment-dispatcher/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(urls map[constants.Processor]string) *HealthMonitor {
	return NewHealthMonitor(newTestClient(), urls, 5*time.Second, 200*time.Millisecond, nopLogger())
}

func TestHealthMonitor_StartsUnknown(t *testing.T) {
	m := newTestMonitor(nil)

	for _, p := range constants.Processors {
		h := m.Snapshot(p)
		assert.False(t, h.OK)
		assert.Equal(t, models.InfiniteResponseTime, h.MinResponseTime)
		assert.True(t, h.LastCheckedAt.IsZero())
	}
}

func TestHealthMonitor_ProbesAndCaches(t *testing.T) {
	proc := newMockProcessor(t, models.HealthResponse{Failing: false, MinResponseTime: 200})
	m := newTestMonitor(map[constants.Processor]string{
		constants.DefaultProcessor: proc.server.URL + constants.HealthPath,
	})

	now := time.Now()
	m.now = func() time.Time { return now }

	h := m.Check(context.Background(), constants.DefaultProcessor)
	assert.True(t, h.OK)
	assert.Equal(t, 200*time.Millisecond, h.MinResponseTime)
	assert.Equal(t, now, h.LastCheckedAt)
	assert.EqualValues(t, 1, proc.healthHits.Load())

	// within the TTL the cache is served even if the processor changed
	proc.setHealth(models.HealthResponse{Failing: true, MinResponseTime: 10})
	now = now.Add(4999 * time.Millisecond)
	h = m.Check(context.Background(), constants.DefaultProcessor)
	assert.True(t, h.OK)
	assert.EqualValues(t, 1, proc.healthHits.Load())

	now = now.Add(time.Millisecond)
	h = m.Check(context.Background(), constants.DefaultProcessor)
	assert.False(t, h.OK)
	assert.Equal(t, 10*time.Millisecond, h.MinResponseTime)
	assert.EqualValues(t, 2, proc.healthHits.Load())
}

func TestHealthMonitor_FailuresAreAbsorbed(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()

	malformed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer malformed.Close()

	rateLimited := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"failing":false,"minResponseTime":1}`))
	}))
	defer rateLimited.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
		w.Write([]byte(`{"failing":false,"minResponseTime":1}`))
	}))
	defer slow.Close()

	tests := map[string]string{
		"connection refused": closed.URL,
		"malformed body":     malformed.URL,
		"non-2xx":            rateLimited.URL,
		"timeout":            slow.URL,
	}

	for name, url := range tests {
		t.Run(name, func(t *testing.T) {
			m := newTestMonitor(map[constants.Processor]string{constants.FallbackProcessor: url})

			h := m.Check(context.Background(), constants.FallbackProcessor)
			assert.False(t, h.OK)
			assert.Equal(t, models.InfiniteResponseTime, h.MinResponseTime)
			assert.False(t, h.LastCheckedAt.IsZero())
		})
	}
}

func TestHealthMonitor_ForceUnhealthyKeepsTTL(t *testing.T) {
	proc := newMockProcessor(t, models.HealthResponse{Failing: false, MinResponseTime: 100})
	m := newTestMonitor(map[constants.Processor]string{
		constants.DefaultProcessor: proc.server.URL + constants.HealthPath,
	})

	now := time.Now()
	m.now = func() time.Time { return now }

	require.True(t, m.Check(context.Background(), constants.DefaultProcessor).OK)

	m.ForceUnhealthy(constants.DefaultProcessor)
	h := m.Check(context.Background(), constants.DefaultProcessor)
	assert.False(t, h.OK)
	assert.Equal(t, 100*time.Millisecond, h.MinResponseTime)
	assert.Equal(t, now, h.LastCheckedAt)
	assert.EqualValues(t, 1, proc.healthHits.Load())

	// the next probe after the TTL restores it
	now = now.Add(5 * time.Second)
	assert.True(t, m.Check(context.Background(), constants.DefaultProcessor).OK)
	assert.EqualValues(t, 2, proc.healthHits.Load())
}

func TestHealthMonitor_UnknownProcessorIsUnhealthy(t *testing.T) {
	m := newTestMonitor(map[constants.Processor]string{})

	h := m.Check(context.Background(), constants.DefaultProcessor)
	assert.False(t, h.OK)
}

func TestHealthMonitor_FractionalLatency(t *testing.T) {
	proc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"failing":false,"minResponseTime":12.5}`))
	}))
	defer proc.Close()

	m := newTestMonitor(map[constants.Processor]string{constants.DefaultProcessor: proc.URL})

	h := m.Check(context.Background(), constants.DefaultProcessor)
	assert.True(t, h.OK)
	assert.Equal(t, 12500*time.Microsecond, h.MinResponseTime)
}
