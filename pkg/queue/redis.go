package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue against a single logical queue name, using
// Redis lists and a sorted set as described in the package doc.
type RedisQueue struct {
	client *redis.Client
	name   string
}

// NewRedisQueue builds a RedisQueue rooted at name (typically "tender").
func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{client: client, name: name}
}

func (q *RedisQueue) readyKey() string      { return q.name }
func (q *RedisQueue) processingKey() string { return q.name + ":processing" }
func (q *RedisQueue) delayedKey() string    { return q.name + ":delayed" }
func (q *RedisQueue) deadKey() string       { return q.name + ":dead" }

func (q *RedisQueue) Enqueue(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}
	if err := q.client.LPush(ctx, q.readyKey(), b).Err(); err != nil {
		return errors.Wrap(err, "lpush")
	}
	return nil
}

// Reserve pops the next ready job and simultaneously pushes it onto the
// in-flight list, so the raw bytes themselves are the reservation token:
// the same payload that leaves readyKey lands in processingKey, and Ack
// removes that exact value.
func (q *RedisQueue) Reserve(ctx context.Context, timeout time.Duration) (*Envelope, error) {
	raw, err := q.client.BRPopLPush(ctx, q.readyKey(), q.processingKey(), timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "brpoplpush")
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, errors.Wrap(err, "unmarshal envelope")
	}
	return &env, nil
}

func (q *RedisQueue) Ack(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}
	if err := q.client.LRem(ctx, q.processingKey(), 1, b).Err(); err != nil {
		return errors.Wrap(err, "lrem processing")
	}
	return nil
}

func (q *RedisQueue) RetryLater(ctx context.Context, env Envelope, delay time.Duration) error {
	oldRaw, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}

	env.Attempt++
	newRaw, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "marshal retried envelope")
	}

	dueAt := time.Now().Add(delay).UnixMilli()

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, oldRaw)
	pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(dueAt), Member: newRaw})
	_, err = pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "schedule retry")
	}
	return nil
}

func (q *RedisQueue) Deadletter(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, raw)
	pipe.LPush(ctx, q.deadKey(), raw)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "deadletter")
	}
	return nil
}

// PromoteDue moves delayed jobs whose score has elapsed back onto the
// ready queue. It uses WATCH to detect concurrent promotions by other
// worker processes and retries the transaction on conflict, so running
// PromoteDue from every worker's reap tick concurrently is safe.
func (q *RedisQueue) PromoteDue(ctx context.Context) (int, error) {
	now := float64(time.Now().UnixMilli())
	promoted := 0

	for {
		var due []string
		txErr := q.client.Watch(ctx, func(tx *redis.Tx) error {
			var err error
			due, err = tx.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
				Min: "-inf", Max: strconv.FormatFloat(now, 'f', 0, 64), Count: 100,
			}).Result()
			if err != nil {
				return err
			}
			if len(due) == 0 {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, member := range due {
					pipe.ZRem(ctx, q.delayedKey(), member)
					pipe.LPush(ctx, q.readyKey(), member)
				}
				return nil
			})
			return err
		}, q.delayedKey())

		if txErr != nil {
			if errors.Is(txErr, redis.TxFailedErr) {
				continue
			}
			return promoted, errors.Wrap(txErr, "promote due")
		}

		promoted += len(due)
		if len(due) < 100 {
			return promoted, nil
		}
	}
}

func (q *RedisQueue) Metrics(ctx context.Context) (Metrics, error) {
	pipe := q.client.Pipeline()
	readyCmd := pipe.LLen(ctx, q.readyKey())
	procCmd := pipe.LLen(ctx, q.processingKey())
	delayedCmd := pipe.ZCard(ctx, q.delayedKey())
	deadCmd := pipe.LLen(ctx, q.deadKey())

	if _, err := pipe.Exec(ctx); err != nil {
		return Metrics{}, errors.Wrap(err, "queue metrics")
	}

	return Metrics{
		Ready:    readyCmd.Val(),
		InFlight: procCmd.Val(),
		Delayed:  delayedCmd.Val(),
		Dead:     deadCmd.Val(),
	}, nil
}
