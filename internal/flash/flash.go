// Package flash stores one-time messages and admin reports per user in Redis.
package flash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	flashKeyFmt  = "flash:%d"
	resultKeyFmt = "admin_result:%d"
)

type Message struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

// Store keeps flashes until they are read once, or until ttl passes.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Push(ctx context.Context, userID uint, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(flashKeyFmt, userID)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, raw)
	pipe.Expire(ctx, key, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Pop returns and clears all pending flashes in the order they were pushed.
func (s *Store) Pop(ctx context.Context, userID uint) ([]Message, error) {
	key := fmt.Sprintf(flashKeyFmt, userID)
	pipe := s.rdb.TxPipeline()
	rng := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	var msgs []Message
	for _, raw := range rng.Val() {
		var m Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// StashResult keeps an admin report for one-time display, replacing any
// earlier one.
func (s *Store) StashResult(ctx context.Context, userID uint, report string) error {
	return s.rdb.Set(ctx, fmt.Sprintf(resultKeyFmt, userID), report, s.ttl).Err()
}

// PopResult returns and clears the stashed report; empty when none.
func (s *Store) PopResult(ctx context.Context, userID uint) (string, error) {
	report, err := s.rdb.GetDel(ctx, fmt.Sprintf(resultKeyFmt, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return report, err
}
