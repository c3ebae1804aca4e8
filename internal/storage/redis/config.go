package redis

import "time"

// Config is the connection and keyspace layout for the Redis store
type Config struct {
	// URL is a redis:// or rediss:// URL and may carry credentials and a db
	URL string

	PoolSize     int
	MinIdleConns int

	// PingTimeout bounds the connectivity check New performs
	PingTimeout time.Duration

	// KeyPrefix namespaces every key, so several deployments can share one
	// Redis database
	KeyPrefix string
}

func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		PingTimeout:  5 * time.Second,
		KeyPrefix:    "gamelobby",
	}
}
