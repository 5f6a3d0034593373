package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mochaeng/payment-dispatcher/internal/constants"
	"github.com/mochaeng/payment-dispatcher/internal/metrics"
	"github.com/mochaeng/payment-dispatcher/internal/models"
	"go.uber.org/zap"
)

type State int32

const (
	StateIdle State = iota
	StateClaiming
	StateDispatching
	StateBackingOff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateClaiming:
		return "claiming"
	case StateDispatching:
		return "dispatching"
	case StateBackingOff:
		return "backing_off"
	default:
		return "unknown"
	}
}

type batchClaimer interface {
	ClaimBatch(ctx context.Context, maxItems int) (models.Batch, error)
}

// Dispatcher drains the payment queue one cycle at a time. Cycles never
// overlap: health refresh, claim, route and dispatch all finish before the
// next cycle starts.
type Dispatcher struct {
	health   *HealthMonitor
	queue    batchClaimer
	router   LoadRouter
	executor *BatchExecutor
	logger   *zap.Logger
	now      func() time.Time

	state atomic.Int32
}

func NewDispatcher(
	health *HealthMonitor,
	queue batchClaimer,
	router LoadRouter,
	executor *BatchExecutor,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		health:   health,
		queue:    queue,
		router:   router,
		executor: executor,
		logger:   logger.Named("dispatcher"),
		now:      time.Now,
	}
}

func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Run executes cycles until ctx is cancelled. Errors inside a cycle never
// stop the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started",
		zap.Int("baseChunk", d.router.BaseChunk),
		zap.Int64("queueThreshold", d.router.QueueThreshold),
		zap.Duration("latencyThreshold", d.router.LatencyThreshold),
	)

	for {
		if ctx.Err() != nil {
			d.logger.Info("dispatcher stopped")
			return nil
		}

		wait := d.Cycle(ctx)
		if wait <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
}

// Cycle runs a single dispatch cycle and returns how long to wait before
// the next one.
func (d *Dispatcher) Cycle(ctx context.Context) (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("unexpected error in dispatch cycle", zap.Any("panic", r), zap.Stack("stack"))
			d.setState(StateBackingOff)
			wait = constants.ErrorBackoff
		}
		metrics.DispatchCycles.WithLabelValues(d.State().String()).Inc()
	}()

	def, fb := d.refreshHealth(ctx)
	if !def.OK && !fb.OK {
		// no downstream capacity, leave the queue alone
		d.setState(StateIdle)
		return constants.IdleWait
	}

	d.setState(StateClaiming)
	batch, err := d.queue.ClaimBatch(ctx, constants.MaxBatchSize)
	if err != nil {
		d.logger.Error("failed to claim batch", zap.Error(err))
		d.setState(StateBackingOff)
		return constants.ErrorBackoff
	}
	metrics.QueueDepth.Set(float64(batch.Depth))

	if len(batch.Items) == 0 {
		d.setState(StateIdle)
		return constants.EmptyWait
	}

	d.setState(StateDispatching)
	requestedAt := d.now().UTC()
	plan := d.router.Route(batch.Items, def, fb, batch.Depth)

	var wg sync.WaitGroup
	var defResult, fbResult DispatchResult
	d.spawn(&wg, "dispatch default", func() {
		defResult = d.executor.Dispatch(ctx, plan.Default, constants.DefaultProcessor, plan.ChunkDefault, requestedAt)
	})
	d.spawn(&wg, "dispatch fallback", func() {
		fbResult = d.executor.Dispatch(ctx, plan.Fallback, constants.FallbackProcessor, plan.ChunkFallback, requestedAt)
	})
	wg.Wait()

	d.logger.Debug("batch dispatched",
		zap.Int("claimed", len(batch.Items)),
		zap.Int64("depth", batch.Depth),
		zap.Int("defaultOk", defResult.Succeeded),
		zap.Int("defaultFailed", defResult.Failed),
		zap.Int("fallbackOk", fbResult.Succeeded),
		zap.Int("fallbackFailed", fbResult.Failed),
	)

	return 0
}

// refreshHealth checks both processors concurrently. A check that panics
// leaves its processor unhealthy for this cycle.
func (d *Dispatcher) refreshHealth(ctx context.Context) (def, fb models.ProcessorHealth) {
	def, fb = models.UnknownHealth(), models.UnknownHealth()

	var wg sync.WaitGroup
	d.spawn(&wg, "health default", func() {
		def = d.health.Check(ctx, constants.DefaultProcessor)
	})
	d.spawn(&wg, "health fallback", func() {
		fb = d.health.Check(ctx, constants.FallbackProcessor)
	})
	wg.Wait()
	return def, fb
}

// spawn runs fn on its own goroutine tracked by wg. Panics are logged and
// swallowed so they never escape the cycle.
func (d *Dispatcher) spawn(wg *sync.WaitGroup, task string, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("unexpected error in dispatch task",
					zap.String("task", task),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
			}
		}()
		fn()
	}()
}

func (d *Dispatcher) setState(s State) {
	d.state.Store(int32(s))
}
