package sink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/tickerfeed/internal/model"
)

// RedisFlusher writes each entry as a hash at <prefix>:<exchange>:<symbol>
// and the connection flag at <prefix>:<exchange>:connected.
type RedisFlusher struct {
	client   redis.Cmdable
	prefix   string
	exchange string
	ttl      time.Duration
}

// NewRedisFlusher creates a flusher. exchange names the connection flag key;
// ttl of zero disables expiry.
func NewRedisFlusher(client redis.Cmdable, prefix, exchange string, ttl time.Duration) *RedisFlusher {
	return &RedisFlusher{
		client:   client,
		prefix:   prefix,
		exchange: exchange,
		ttl:      ttl,
	}
}

func (f *RedisFlusher) Name() string { return "redis" }

// PriceKey returns the hash key for (exchange, symbol).
func (f *RedisFlusher) PriceKey(exchange, symbol string) string {
	return fmt.Sprintf("%s:%s:%s", f.prefix, exchange, symbol)
}

// ConnectedKey returns the connection flag key.
func (f *RedisFlusher) ConnectedKey() string {
	return fmt.Sprintf("%s:%s:connected", f.prefix, f.exchange)
}

// Flush pipelines HSET (and EXPIRE) per entry plus the flag update.
func (f *RedisFlusher) Flush(ctx context.Context, b Batch) error {
	if len(b.Entries) == 0 && b.Connected == nil {
		return nil
	}

	_, err := f.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range b.Entries {
			key := f.PriceKey(e.Exchange, e.Symbol)
			pipe.HSet(ctx, key, recordFields(e.Record)...)
			if f.ttl > 0 {
				pipe.Expire(ctx, key, f.ttl)
			}
		}
		if b.Connected != nil {
			pipe.Set(ctx, f.ConnectedKey(), strconv.FormatBool(*b.Connected), 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// recordFields flattens rec into HSET field/value pairs.
func recordFields(rec model.PriceRecord) []any {
	return []any{
		"symbol", rec.Symbol,
		"base_code", rec.BaseCode,
		"display_name", rec.DisplayName,
		"price", strconv.FormatFloat(rec.Price, 'f', -1, 64),
		"absolute_change", strconv.FormatFloat(rec.AbsoluteChange, 'f', -1, 64),
		"percent_change", strconv.FormatFloat(rec.PercentChange, 'f', -1, 64),
		"formatted_volume", rec.FormattedVolume,
		"raw_volume", strconv.FormatFloat(rec.RawVolume, 'f', -1, 64),
		"timestamp", strconv.FormatInt(rec.Timestamp, 10),
	}
}
