package redis_db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis holds the universal client, which works for both single-instance and
// clustered Redis.
type Redis struct {
	addresses []string
	client    redis.UniversalClient
}

// ParseRedisURL parses a Redis URL into client options. Docker-style
// host:port addresses pass through unchanged.
func ParseRedisURL(rawURL string) (*redis.Options, error) {
	if strings.Count(rawURL, ":") == 1 && !strings.Contains(rawURL, "@") && !strings.Contains(rawURL, "//") {
		return &redis.Options{
			Addr: rawURL,
		}, nil
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		// Fall back to manual parsing for password@host forms.
		host := rawURL
		var password string
		if strings.Contains(rawURL, "@") {
			parts := strings.Split(rawURL, "@")
			if len(parts) == 2 {
				password = strings.TrimPrefix(parts[0], "redis://")
				host = parts[1]
			}
		}
		opts = &redis.Options{
			Addr:     host,
			Password: password,
			DB:       0,
		}
	}
	return opts, nil
}

// NewRedisClient builds a universal client from one or more addresses.
func NewRedisClient(addresses []string) (*Redis, error) {
	if len(addresses) == 0 {
		return nil, errors.New("redis addresses list cannot be empty")
	}

	opts, err := ParseRedisURL(addresses[0])
	if err != nil {
		return nil, fmt.Errorf("invalid redis address %q: %w", addresses[0], err)
	}

	var client redis.UniversalClient
	if len(addresses) == 1 {
		client = redis.NewClient(opts)
	} else {
		addrs := make([]string, 0, len(addresses))
		for _, a := range addresses {
			parsed, err := ParseRedisURL(a)
			if err != nil {
				return nil, fmt.Errorf("invalid redis address %q: %w", a, err)
			}
			addrs = append(addrs, parsed.Addr)
		}
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    addrs,
			Password: opts.Password,
		})
	}

	return &Redis{addresses: addresses, client: client}, nil
}

func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

// Ping verifies connectivity with a short deadline.
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}
