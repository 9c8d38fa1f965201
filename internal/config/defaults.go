package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultExchange       = "upbit"
	DefaultRestURL        = "https://api.upbit.com/v1"
	DefaultWSURL          = "wss://api.upbit.com/websocket/v1"
	DefaultAPITimeout     = 10 * time.Second
	DefaultMaxRetries     = 3
	DefaultQuotePrefix    = "KRW-"
	DefaultReconnectDelay = 1 * time.Second
	DefaultPingInterval   = 30 * time.Second
	DefaultPingTimeout    = 120 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultStreamBuffer   = 1000
	DefaultFlashDuration  = 300 * time.Millisecond
	DefaultServerPort     = 8080
	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "tickerfeed"
	DefaultRedisTTL       = 10 * time.Minute
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 10
	DefaultMinConns       = 2
	DefaultBatchSize      = 500
	DefaultFlushInterval  = 1 * time.Second
	DefaultBufferSize     = 10000
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

func (c *Config) applyDefaults() {
	if c.Exchange.Name == "" {
		c.Exchange.Name = DefaultExchange
	}

	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Stream defaults
	if c.Stream.QuotePrefix == "" {
		c.Stream.QuotePrefix = DefaultQuotePrefix
	}
	if c.Stream.ReconnectDelay == 0 {
		c.Stream.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.PingTimeout == 0 {
		c.Stream.PingTimeout = DefaultPingTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBuffer
	}

	if c.Flash.Duration == 0 {
		c.Flash.Duration = DefaultFlashDuration
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = DefaultRedisTTL
	}

	applyDBDefaults(&c.Database.Postgres)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
