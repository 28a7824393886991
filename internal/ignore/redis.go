package ignore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the ignore list of a project in a redis hash.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore returns a store using the hash "stagectl:ignore:<project>".
func NewRedisStore(client *redis.Client, project string) *RedisStore {
	return &RedisStore{client: client, key: "stagectl:ignore:" + project}
}

// Load reads the hash.
func (s *RedisStore) Load(ctx context.Context) (map[int64]string, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read ignore hash: %w", err)
	}
	entries := make(map[int64]string, len(raw))
	for field, msg := range raw {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ignore hash field %q is not a request id: %w", field, err)
		}
		entries[id] = msg
	}
	return entries, nil
}

// Save replaces the hash in one MULTI/EXEC transaction.
func (s *RedisStore) Save(ctx context.Context, entries map[int64]string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(entries) == 0 {
			return nil
		}
		values := make([]any, 0, len(entries)*2)
		for id, msg := range entries {
			values = append(values, strconv.FormatInt(id, 10), msg)
		}
		pipe.HSet(ctx, s.key, values...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write ignore hash: %w", err)
	}
	return nil
}
