package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Publisher 메시지 발행 인터페이스
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Close() error
}

// RedisOptions Redis 연결 설정
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// RedisClient Redis pub/sub 발행 클라이언트
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient Redis 클라이언트를 생성하고 연결을 확인합니다.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*RedisClient, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})

	// Redis 연결 테스트
	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redis 연결 실패: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Publish 메시지를 JSON으로 직렬화하여 발행합니다.
func (r *RedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("메시지 직렬화 실패: %w", err)
	}

	return r.client.Publish(ctx, channel, payload).Err()
}

// Close Redis 클라이언트 종료
func (r *RedisClient) Close() error {
	return r.client.Close()
}
