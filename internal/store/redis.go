package store

import (
	"context"
	"fmt"

	"github.com/mochaeng/payment-dispatcher/internal/constants"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore holds the durable state shared by the ingress and the
// dispatcher: the pending queue, the ledger and the summary counters.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisStore(url string, logger *zap.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	return NewRedisStoreFromClient(redis.NewClient(opt), logger), nil
}

func NewRedisStoreFromClient(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger.Named("store"),
	}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Reset clears the ledger, both counters and the queue.
func (r *RedisStore) Reset(ctx context.Context) error {
	err := r.client.Del(ctx,
		constants.PaymentsLedgerKey,
		constants.SummaryRequestsKey,
		constants.SummaryAmountKey,
		constants.PaymentQueueKey,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to purge payments: %w", err)
	}
	return nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected redis script value %T(%v)", v, v)
	}
}
