// Copyright 2026 Esteban Alvarez. All Rights Reserved.
//
// Created: August 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package repo

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"marketpipe/internal/domain"
)

// RedisClient is the slice of the go-redis API the checkpoint store needs.
// *redis.Client satisfies it, and tests can back it with miniredis.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCheckpoints keeps per-symbol cursors in Redis, for deployments where
// many ingestors share one resume surface. Cursors carry no TTL; Clear is
// the only way one goes away.
type RedisCheckpoints struct {
	rdb RedisClient
}

// NewRedisCheckpoints wraps an already-connected client.
func NewRedisCheckpoints(rdb RedisClient) *RedisCheckpoints {
	return &RedisCheckpoints{rdb: rdb}
}

func checkpointKey(symbol domain.Symbol) string {
	return "checkpoint:" + symbol.String()
}

// Get implements CheckpointStore.
func (c *RedisCheckpoints) Get(ctx context.Context, symbol domain.Symbol) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, checkpointKey(symbol)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, &RepositoryError{Op: "redis get " + symbol.String(), Err: err}
	}
	cursor, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, &RepositoryError{Op: "redis decode " + symbol.String(), Err: err}
	}
	return cursor, true, nil
}

// Set implements CheckpointStore.
func (c *RedisCheckpoints) Set(ctx context.Context, symbol domain.Symbol, cursorNs int64) error {
	if err := c.rdb.Set(ctx, checkpointKey(symbol), strconv.FormatInt(cursorNs, 10), 0).Err(); err != nil {
		return &RepositoryError{Op: "redis set " + symbol.String(), Err: err}
	}
	return nil
}

// Clear implements CheckpointStore.
func (c *RedisCheckpoints) Clear(ctx context.Context, symbol domain.Symbol) error {
	if err := c.rdb.Del(ctx, checkpointKey(symbol)).Err(); err != nil {
		return &RepositoryError{Op: "redis del " + symbol.String(), Err: err}
	}
	return nil
}
