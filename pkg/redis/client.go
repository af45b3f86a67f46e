package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"github.com/bantai/bantai-service/environments"
	"github.com/bantai/bantai-service/internal/domain"
	"github.com/bantai/bantai-service/pkg/logger"
)

type Client struct {
	client valkey.Client
}

const (
	sentMessageKeyPrefix = "sent_message:"
	sentMessageTTL       = 24 * time.Hour

	lockKeyPrefix = "lock:"
	lockTTL       = 10 * time.Second
	lockRetry     = 50 * time.Millisecond
)

var (
	incrementScript = valkey.NewLuaScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

	decrementScript = valkey.NewLuaScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count > 0 then
  redis.call('DECR', KEYS[1])
end
return 0
`)

	peekScript = valkey.NewLuaScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
return {count, redis.call('PTTL', KEYS[1])}
`)

	unlockScript = valkey.NewLuaScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)
)

func NewRedisClient(cfg environments.RedisConfig) (*Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infof("Connected to Redis (via Valkey client)")

	return &Client{client: client}, nil
}

// Increment bumps the fixed-window counter at key, starting the window on the
// first hit. The server clock decides expiry, so now is only used to express
// the reset time.
func (c *Client) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	values, err := incrementScript.Exec(ctx, c.client, []string{key}, []string{fmt.Sprint(window.Milliseconds())}).AsIntSlice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	if len(values) != 2 {
		return 0, time.Time{}, fmt.Errorf("unexpected increment reply for %s: %v", key, values)
	}

	return int(values[0]), now.Add(time.Duration(values[1]) * time.Millisecond), nil
}

func (c *Client) Decrement(ctx context.Context, key string, _ time.Time) error {
	if err := decrementScript.Exec(ctx, c.client, []string{key}, nil).Error(); err != nil {
		return fmt.Errorf("failed to decrement %s: %w", key, err)
	}
	return nil
}

func (c *Client) Peek(ctx context.Context, key string, now time.Time) (int, time.Time, error) {
	values, err := peekScript.Exec(ctx, c.client, []string{key}, nil).AsIntSlice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(values) != 2 || values[0] == 0 || values[1] < 0 {
		return 0, time.Time{}, nil
	}

	return int(values[0]), now.Add(time.Duration(values[1]) * time.Millisecond), nil
}

// Lock takes a cluster-wide lock on key. The lock expires on its own after
// lockTTL so a crashed holder cannot wedge the key.
func (c *Client) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := lockKeyPrefix + key
	token := uuid.NewString()

	for {
		err := c.client.Do(ctx, c.client.B().Set().Key(lockKey).Value(token).Nx().PxMilliseconds(lockTTL.Milliseconds()).Build()).Error()
		if err == nil {
			break
		}
		if !valkey.IsValkeyNil(err) {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { c.unlock(key, lockKey, token) })
	}, nil
}

// unlock deletes the lock only while it still carries our token.
func (c *Client) unlock(key, lockKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := unlockScript.Exec(ctx, c.client, []string{lockKey}, []string{token}).Error(); err != nil {
		logger.Warnf("failed to release lock %s: %v", key, err)
	}
}

func (c *Client) CacheSentMessage(ctx context.Context, logID int64, messageID string, sentAt time.Time) error {
	cache := domain.SentMessageCache{
		MessageID: messageID,
		SentAt:    sentAt,
	}

	data, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	key := fmt.Sprintf("%s%d", sentMessageKeyPrefix, logID)

	err = c.client.Do(ctx, c.client.B().Set().Key(key).Value(string(data)).Ex(sentMessageTTL).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to cache sent message: %w", err)
	}

	logger.Debugf("Cached SMS log %d -> %s in Redis", logID, messageID)

	return nil
}

func (c *Client) GetCachedMessage(ctx context.Context, logID int64) (*domain.SentMessageCache, error) {
	key := fmt.Sprintf("%s%d", sentMessageKeyPrefix, logID)

	result := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	if result.Error() != nil {
		if valkey.IsValkeyNil(result.Error()) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached message: %w", result.Error())
	}

	data, err := result.ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to read cached message: %w", err)
	}

	var cache domain.SentMessageCache
	if err := json.Unmarshal([]byte(data), &cache); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	return &cache, nil
}

func (c *Client) GetAllCachedMessages(ctx context.Context) (map[int64]*domain.SentMessageCache, error) {
	pattern := sentMessageKeyPrefix + "*"

	var keys []string
	var cursor uint64
	for {
		result := c.client.Do(ctx, c.client.B().Scan().Cursor(cursor).Match(pattern).Count(100).Build())
		if result.Error() != nil {
			return nil, fmt.Errorf("failed to scan cache keys: %w", result.Error())
		}

		scanResult, err := result.AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to parse scan result: %w", err)
		}

		keys = append(keys, scanResult.Elements...)
		cursor = scanResult.Cursor

		if cursor == 0 {
			break
		}
	}

	result := make(map[int64]*domain.SentMessageCache, len(keys))

	for _, key := range keys {
		var logID int64
		if _, err := fmt.Sscanf(key, sentMessageKeyPrefix+"%d", &logID); err != nil {
			logger.Warnf("failed to parse log id from redis key %q: %v", key, err)
			continue
		}

		cache, err := c.GetCachedMessage(ctx, logID)
		if err != nil || cache == nil {
			continue
		}

		result[logID] = cache
	}

	return result, nil
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}
