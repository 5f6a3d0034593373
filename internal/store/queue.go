package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mochaeng/payment-dispatcher/internal/constants"
	"github.com/mochaeng/payment-dispatcher/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// The queue is a single list: new payments enter on the left, claims and
// retries use the right, so the right end always holds the oldest work.

// claimScript returns the list length followed by up to ARGV[1] items taken
// from the right end, oldest first, and trims exactly those items.
var claimScript = redis.NewScript(`
local depth = redis.call('LLEN', KEYS[1])
local n = tonumber(ARGV[1])
if n > depth then
  n = depth
end
if n <= 0 then
  return {depth}
end
local items = redis.call('LRANGE', KEYS[1], -n, -1)
redis.call('LTRIM', KEYS[1], 0, -n - 1)
local out = {depth}
for i = #items, 1, -1 do
  out[#out + 1] = items[i]
end
return out
`)

func (r *RedisStore) EnqueueNew(ctx context.Context, payment models.PendingPayment) error {
	data, err := json.Marshal(payment)
	if err != nil {
		return fmt.Errorf("failed to marshal payment: %w", err)
	}

	if err := r.client.LPush(ctx, constants.PaymentQueueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue payment: %w", err)
	}
	return nil
}

// EnqueueRetry puts a failed payment back at the oldest end so it is claimed
// before anything enqueued through EnqueueNew.
func (r *RedisStore) EnqueueRetry(ctx context.Context, payment models.PendingPayment) error {
	data, err := json.Marshal(payment)
	if err != nil {
		return fmt.Errorf("failed to marshal payment: %w", err)
	}

	if err := r.client.RPush(ctx, constants.PaymentQueueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to re-enqueue payment: %w", err)
	}
	return nil
}

// ClaimBatch atomically removes and returns up to maxItems of the oldest
// pending payments. maxItems is capped at constants.MaxBatchSize.
func (r *RedisStore) ClaimBatch(ctx context.Context, maxItems int) (models.Batch, error) {
	if maxItems <= 0 || maxItems > constants.MaxBatchSize {
		maxItems = constants.MaxBatchSize
	}

	res, err := claimScript.Run(ctx, r.client, []string{constants.PaymentQueueKey}, maxItems).Slice()
	if err != nil {
		return models.Batch{}, fmt.Errorf("failed to claim batch: %w", err)
	}
	if len(res) == 0 {
		return models.Batch{}, fmt.Errorf("failed to claim batch: empty script reply")
	}

	depth, err := toInt64(res[0])
	if err != nil {
		return models.Batch{}, fmt.Errorf("failed to claim batch: %w", err)
	}

	batch := models.Batch{
		Items: make([]models.PendingPayment, 0, len(res)-1),
		Depth: depth,
	}
	for _, raw := range res[1:] {
		s, ok := raw.(string)
		if !ok {
			r.logger.Error("dropping non-string queue item", zap.Any("item", raw))
			continue
		}

		var payment models.PendingPayment
		if err := json.Unmarshal([]byte(s), &payment); err != nil {
			r.logger.Error("dropping undecodable queue item", zap.String("item", s), zap.Error(err))
			continue
		}
		batch.Items = append(batch.Items, payment)
	}

	return batch, nil
}

func (r *RedisStore) QueueSize(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, constants.PaymentQueueKey).Result()
}
