package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// RedisStream appends each record to a stream with XADD. Entries carry the
// JSON message in "data" and the publish time in "timestamp".
type RedisStream struct {
	client *redis.Client
	stream string
	device string
}

func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisStream(client *redis.Client, stream, device string) *RedisStream {
	return &RedisStream{client: client, stream: stream, device: device}
}

func (r *RedisStream) Notify(ctx context.Context, rec types.Record) error {
	data, err := json.Marshal(NewMessage(r.device, rec))
	if err != nil {
		return err
	}
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"data":      string(data),
			"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}

// Ping checks the connection at startup.
func (r *RedisStream) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
