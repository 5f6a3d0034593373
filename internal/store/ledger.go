package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mochaeng/payment-dispatcher/internal/constants"
	"github.com/mochaeng/payment-dispatcher/internal/models"
	"github.com/redis/go-redis/v9"
)

// rangeSummaryScript scans the ledger between ARGV[1] and ARGV[2] (inclusive,
// "-inf"/"+inf" allowed) and returns default count, default cents, fallback
// count, fallback cents.
var rangeSummaryScript = redis.NewScript(`
local rows = redis.call('ZRANGEBYSCORE', KEYS[1], ARGV[1], ARGV[2])
local dc, ds, fc, fs = 0, 0, 0, 0
for _, raw in ipairs(rows) do
  local rec = cjson.decode(raw)
  if rec.processor == 'default' then
    dc = dc + 1
    ds = ds + rec.amountCents
  elseif rec.processor == 'fallback' then
    fc = fc + 1
    fs = fs + rec.amountCents
  end
end
return {dc, ds, fc, fs}
`)

// Append writes a processed record into the ledger, scored by its commit time
// in Unix milliseconds.
func (r *RedisStore) Append(ctx context.Context, record models.ProcessedRecord) error {
	if err := appendRecord(ctx, r.client, record); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	return nil
}

func (r *RedisStore) IncrementSummary(ctx context.Context, processor constants.Processor, amountCents int64) error {
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		incrementSummary(ctx, pipe, processor, amountCents)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to increment summary: %w", err)
	}
	return nil
}

// Commit appends the record and bumps its processor counters in a single
// MULTI/EXEC, so the ledger and the counters never see half a commit.
func (r *RedisStore) Commit(ctx context.Context, record models.ProcessedRecord) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := appendRecord(ctx, pipe, record); err != nil {
			return err
		}
		incrementSummary(ctx, pipe, record.Processor, record.AmountCents)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit record %s: %w", record.CorrelationID, err)
	}
	return nil
}

func appendRecord(ctx context.Context, c redis.Cmdable, record models.ProcessedRecord) error {
	member, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return c.ZAdd(ctx, constants.PaymentsLedgerKey, redis.Z{
		Score:  float64(record.CommittedAt.UnixMilli()),
		Member: member,
	}).Err()
}

func incrementSummary(ctx context.Context, pipe redis.Pipeliner, processor constants.Processor, amountCents int64) {
	pipe.HIncrBy(ctx, constants.SummaryRequestsKey, string(processor), 1)
	pipe.HIncrBy(ctx, constants.SummaryAmountKey, string(processor), amountCents)
}

func (r *RedisStore) ReadSummary(ctx context.Context, processor constants.Processor) (models.SummaryCounters, error) {
	var countCmd, amountCmd *redis.StringCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		countCmd = pipe.HGet(ctx, constants.SummaryRequestsKey, string(processor))
		amountCmd = pipe.HGet(ctx, constants.SummaryAmountKey, string(processor))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.SummaryCounters{}, fmt.Errorf("failed to read summary: %w", err)
	}

	count, err := int64OrZero(countCmd)
	if err != nil {
		return models.SummaryCounters{}, fmt.Errorf("failed to read request count: %w", err)
	}
	cents, err := int64OrZero(amountCmd)
	if err != nil {
		return models.SummaryCounters{}, fmt.Errorf("failed to read amount: %w", err)
	}

	return models.SummaryCounters{Count: count, Amount: models.FromCents(cents)}, nil
}

// Summary reads the incremental counters of both processors.
func (r *RedisStore) Summary(ctx context.Context) (models.PaymentSummaryResponse, error) {
	def, err := r.ReadSummary(ctx, constants.DefaultProcessor)
	if err != nil {
		return models.PaymentSummaryResponse{}, err
	}
	fb, err := r.ReadSummary(ctx, constants.FallbackProcessor)
	if err != nil {
		return models.PaymentSummaryResponse{}, err
	}

	return models.PaymentSummaryResponse{
		Default:  models.ProcessorSummary{TotalRequests: def.Count, TotalAmount: def.Amount},
		Fallback: models.ProcessorSummary{TotalRequests: fb.Count, TotalAmount: fb.Amount},
	}, nil
}

// RangeSummary computes exact totals from the ledger for records committed in
// [from, to]. A nil bound is open.
func (r *RedisStore) RangeSummary(ctx context.Context, from, to *time.Time) (models.PaymentSummaryResponse, error) {
	res, err := rangeSummaryScript.Run(ctx, r.client,
		[]string{constants.PaymentsLedgerKey},
		scoreBound(from, "-inf"), scoreBound(to, "+inf"),
	).Slice()
	if err != nil {
		return models.PaymentSummaryResponse{}, fmt.Errorf("failed to run range summary: %w", err)
	}
	if len(res) != 4 {
		return models.PaymentSummaryResponse{}, fmt.Errorf("unexpected range summary reply of %d values", len(res))
	}

	vals := make([]int64, len(res))
	for i, v := range res {
		if vals[i], err = toInt64(v); err != nil {
			return models.PaymentSummaryResponse{}, fmt.Errorf("failed to run range summary: %w", err)
		}
	}

	return models.PaymentSummaryResponse{
		Default:  models.ProcessorSummary{TotalRequests: vals[0], TotalAmount: models.FromCents(vals[1])},
		Fallback: models.ProcessorSummary{TotalRequests: vals[2], TotalAmount: models.FromCents(vals[3])},
	}, nil
}

func scoreBound(t *time.Time, open string) string {
	if t == nil {
		return open
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func int64OrZero(cmd *redis.StringCmd) (int64, error) {
	n, err := cmd.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
