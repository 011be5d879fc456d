package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/openclaw/export-worker-go/internal/config"
)

// jobEventPrefix namespaces the per-owner status channels.
const jobEventPrefix = "jobs:"

// Client carries job events between processes and backs the rate limiter.
type Client struct {
	*redis.Client
}

// Open parses a redis:// URL and pings the server once.
func Open(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	c := &Client{redis.NewClient(opts)}
	if err := c.Check(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, config.DBPingTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// JobEventChannel is the pub/sub channel carrying job status events for one owner.
func JobEventChannel(ownerID int64) string {
	return jobEventPrefix + strconv.FormatInt(ownerID, 10)
}
