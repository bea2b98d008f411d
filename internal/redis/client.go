// Package redis constructs the shared Redis client used by the web
// delivery transport and the health endpoint.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CytrexSGR/newsbrief/internal/logger"
)

const connectTimeout = 2 * time.Second

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(addr, password string, log logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	log.Info("connected to redis", logger.String("address", addr))
	return client, nil
}
