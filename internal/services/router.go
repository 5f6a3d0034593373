package services

import (
	"time"

	"github.com/mochaeng/payment-dispatcher/internal/constants"
	"github.com/mochaeng/payment-dispatcher/internal/models"
)

// Plan is how one claimed batch is split between the processors and how
// many calls each side may have in flight at once.
type Plan struct {
	Default       []models.PendingPayment
	Fallback      []models.PendingPayment
	ChunkDefault  int
	ChunkFallback int
}

type LoadRouter struct {
	BaseChunk        int
	QueueThreshold   int64
	LatencyThreshold time.Duration
}

// Route splits batch between the processors. It prefers the cheaper default
// processor and only spreads load onto fallback when default is slow or the
// backlog is deep. Callers must not route when both processors are
// unhealthy; an empty plan is returned in that case.
func (r LoadRouter) Route(
	batch []models.PendingPayment,
	def, fb models.ProcessorHealth,
	queueDepth int64,
) Plan {
	plan := Plan{}
	plan.ChunkDefault, plan.ChunkFallback = r.ChunkSizes(def)

	switch {
	case !def.OK && !fb.OK:
	case !def.OK:
		plan.Fallback = batch
	case !fb.OK:
		plan.Default = batch
	case def.MinResponseTime > r.LatencyThreshold || queueDepth > r.QueueThreshold:
		half := (len(batch) + 1) / 2
		plan.Default = batch[:half:half]
		plan.Fallback = batch[half:]
	default:
		plan.Default = batch
	}

	return plan
}

// ChunkSizes returns the bulkhead size for each processor. A fast default
// processor gets three times the base chunk.
func (r LoadRouter) ChunkSizes(def models.ProcessorHealth) (chunkDefault, chunkFallback int) {
	chunkDefault = r.BaseChunk
	if def.MinResponseTime <= constants.FastDefaultLatency {
		chunkDefault = r.BaseChunk * constants.FastChunkFactor
	}
	return chunkDefault, r.BaseChunk
}
