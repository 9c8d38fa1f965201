package sink

import (
	"context"
	"time"

	"github.com/rickgao/tickerfeed/internal/model"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of pending keys that triggers an early flush.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize caps the number of distinct pending keys.
	BufferSize int
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Entry is the latest record for one (exchange, symbol).
type Entry struct {
	Exchange string
	Symbol   string
	Record   model.PriceRecord
}

// Batch is one flush worth of work.
type Batch struct {
	Entries   []Entry // Sorted by exchange, then symbol
	Connected *bool   // Connection flag change since last flush, if any
}

// Flusher persists a batch.
type Flusher interface {
	Name() string
	Flush(ctx context.Context, b Batch) error
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Writes    int64 // Entries flushed successfully
	Coalesced int64 // Updates replaced before they were flushed
	Dropped   int64 // Updates rejected because BufferSize keys were pending
	Errors    int64
	Flushes   int64
}

type entryKey struct {
	exchange string
	symbol   string
}
