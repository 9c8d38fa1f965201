package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// upsertLatestSQL replaces the row for (exchange, symbol) unless the stored
// row carries a newer exchange timestamp.
const upsertLatestSQL = `
	INSERT INTO latest_prices (exchange, symbol, base_code, display_name, price, absolute_change, percent_change, formatted_volume, raw_volume, ts, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
	ON CONFLICT (exchange, symbol) DO UPDATE SET
		base_code = EXCLUDED.base_code,
		display_name = EXCLUDED.display_name,
		price = EXCLUDED.price,
		absolute_change = EXCLUDED.absolute_change,
		percent_change = EXCLUDED.percent_change,
		formatted_volume = EXCLUDED.formatted_volume,
		raw_volume = EXCLUDED.raw_volume,
		ts = EXCLUDED.ts,
		updated_at = EXCLUDED.updated_at
	WHERE latest_prices.ts <= EXCLUDED.ts
`

// Batcher sends a pgx batch. *pgxpool.Pool satisfies it.
type Batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresFlusher upserts entries into latest_prices.
type PostgresFlusher struct {
	db Batcher
}

// NewPostgresFlusher creates a flusher backed by db.
func NewPostgresFlusher(db Batcher) *PostgresFlusher {
	return &PostgresFlusher{db: db}
}

func (f *PostgresFlusher) Name() string { return "postgres" }

// Flush upserts every entry in one round trip. The connection flag is not
// stored in Postgres.
func (f *PostgresFlusher) Flush(ctx context.Context, b Batch) error {
	if len(b.Entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range b.Entries {
		r := e.Record
		batch.Queue(upsertLatestSQL,
			e.Exchange, e.Symbol, r.BaseCode, r.DisplayName, r.Price, r.AbsoluteChange,
			r.PercentChange, r.FormattedVolume, r.RawVolume, r.Timestamp,
		)
	}

	results := f.db.SendBatch(ctx, batch)
	defer results.Close()

	for _, e := range b.Entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", e.Exchange, e.Symbol, err)
		}
	}
	return nil
}
