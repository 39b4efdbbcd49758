package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisQueue keeps ready message ids in a list, received ones in a sorted
// set scored by their visibility deadline, and bodies plus delivery counts
// in hashes.
//
//	<prefix>:<name>:ready       list of ids
//	<prefix>:<name>:inflight    zset id -> deadline (unix ms)
//	<prefix>:<name>:bodies      hash id -> body
//	<prefix>:<name>:deliveries  hash id -> dequeue count
type RedisQueue struct {
	name string
	key  string
	cli  *redis.Client
	now  func() time.Time
}

func NewRedisQueue(cli *redis.Client, prefix, name string) *RedisQueue {
	return &RedisQueue{
		name: name,
		key:  prefix + ":" + name,
		cli:  cli,
		now:  time.Now,
	}
}

func (q *RedisQueue) Name() string {
	return q.name
}

func (q *RedisQueue) ready() string      { return q.key + ":ready" }
func (q *RedisQueue) inflight() string   { return q.key + ":inflight" }
func (q *RedisQueue) bodies() string     { return q.key + ":bodies" }
func (q *RedisQueue) deliveries() string { return q.key + ":deliveries" }

func (q *RedisQueue) Send(ctx context.Context, body []byte) (string, error) {
	id := uuid.NewString()
	_, err := q.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.bodies(), id, body)
		pipe.RPush(ctx, q.ready(), id)
		return nil
	})
	return id, err
}

// requeueExpired moves messages whose visibility deadline passed back to the
// ready list. ZREM decides which consumer gets to move a given id.
func (q *RedisQueue) requeueExpired(ctx context.Context) error {
	now := strconv.FormatInt(q.now().UnixMilli(), 10)
	ids, err := q.cli.ZRangeByScore(ctx, q.inflight(), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		removed, err := q.cli.ZRem(ctx, q.inflight(), id).Result()
		if err != nil {
			return err
		}
		if removed == 1 {
			if err := q.cli.RPush(ctx, q.ready(), id).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (q *RedisQueue) Receive(ctx context.Context, max int, visibility time.Duration) ([]*Message, error) {
	if err := q.requeueExpired(ctx); err != nil {
		return nil, err
	}
	var result []*Message
	for len(result) < max {
		id, err := q.cli.LPop(ctx, q.ready()).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return result, err
		}
		deadline := q.now().Add(visibility).UnixMilli()
		if err := q.cli.ZAdd(ctx, q.inflight(), &redis.Z{Score: float64(deadline), Member: id}).Err(); err != nil {
			return result, err
		}
		body, err := q.cli.HGet(ctx, q.bodies(), id).Bytes()
		if err == redis.Nil {
			// deleted while queued
			q.cli.ZRem(ctx, q.inflight(), id)
			continue
		}
		if err != nil {
			return result, err
		}
		count, err := q.cli.HIncrBy(ctx, q.deliveries(), id, 1).Result()
		if err != nil {
			return result, err
		}
		result = append(result, &Message{ID: id, Body: body, DequeueCount: int(count), receipt: id})
	}
	return result, nil
}

func (q *RedisQueue) Delete(ctx context.Context, msg *Message) error {
	_, err := q.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.inflight(), msg.ID)
		pipe.HDel(ctx, q.bodies(), msg.ID)
		pipe.HDel(ctx, q.deliveries(), msg.ID)
		return nil
	})
	return err
}

func (q *RedisQueue) Release(ctx context.Context, msg *Message) error {
	removed, err := q.cli.ZRem(ctx, q.inflight(), msg.ID).Result()
	if err != nil || removed == 0 {
		return err
	}
	return q.cli.LPush(ctx, q.ready(), msg.ID).Err()
}
