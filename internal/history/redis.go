package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// mgetChunk bounds the number of keys fetched per MGET.
const mgetChunk = 500

// RedisStore keeps one key per record, expiring after ttl, plus a sorted set
// indexing record ids by timestamp. Every record has its own key so
// concurrent appends never contend.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore wraps an existing client. A zero ttl keeps records forever.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

func (s *RedisStore) recordKey(id string) string { return s.prefix + "rec:" + id }
func (s *RedisStore) indexKey() string          { return s.prefix + "index" }

// Backend implements Store.
func (s *RedisStore) Backend() string { return "redis" }

// Close implements Store.
func (s *RedisStore) Close() error { return s.client.Close() }

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, rec Record) (Record, error) {
	rec = stamp(rec, s.now())
	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode history record: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(rec.ID), data, s.ttl)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(rec.Timestamp), Member: rec.ID})
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to store history record: %w", err)
	}
	return rec, nil
}

// List implements Store. The cursor is an offset into the timestamp index.
func (s *RedisStore) List(ctx context.Context, limit int, cursor string) (*Page, error) {
	if err := s.pruneExpired(ctx); err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)
	offset := parseOffset(cursor)

	total, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history index: %w", err)
	}
	records, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	p := &Page{Records: records, Total: int(total)}
	p.HasMore = int64(offset+limit) < total
	if p.HasMore {
		p.NextCursor = strconv.Itoa(offset + limit)
	}
	return p, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}
	return nil
}

// Stats implements Store.
func (s *RedisStore) Stats(ctx context.Context) (*Stats, error) {
	all, err := s.Records(ctx)
	if err != nil {
		return nil, err
	}
	return computeStats(all), nil
}

// Records implements Store.
func (s *RedisStore) Records(ctx context.Context) ([]Record, error) {
	if err := s.pruneExpired(ctx); err != nil {
		return nil, err
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history index: %w", err)
	}
	return s.load(ctx, ids)
}

// load fetches records by id, dropping index entries whose key is gone, and
// returns them newest first.
func (s *RedisStore) load(ctx context.Context, ids []string) ([]Record, error) {
	records := make([]Record, 0, len(ids))
	var missing []any
	for start := 0; start < len(ids); start += mgetChunk {
		end := min(start+mgetChunk, len(ids))
		keys := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, s.recordKey(id))
		}
		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read history records: %w", err)
		}
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				missing = append(missing, ids[start+i])
				continue
			}
			var rec Record
			if err := json.Unmarshal([]byte(str), &rec); err != nil {
				return nil, fmt.Errorf("failed to decode history record %s: %w", ids[start+i], err)
			}
			records = append(records, rec)
		}
	}
	if len(missing) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), missing...).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to prune history index: %w", err)
		}
	}
	sortNewestFirst(records)
	return records, nil
}

// pruneExpired drops index entries older than the ttl.
func (s *RedisStore) pruneExpired(ctx context.Context) error {
	if s.ttl <= 0 {
		return nil
	}
	cutoff := s.now().Add(-s.ttl).UnixMilli()
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+strconv.FormatInt(cutoff, 10)).Err()
	if err != nil {
		return fmt.Errorf("failed to prune history index: %w", err)
	}
	return nil
}
