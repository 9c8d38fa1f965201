package sink

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/tickerfeed/internal/model"
)

// Writer coalesces store updates and flushes them in batches.
// It implements store.Observer and store.ConnectionObserver.
type Writer struct {
	cfg     WriterConfig
	flusher Flusher
	logger  *slog.Logger

	mu        sync.Mutex
	pending   map[entryKey]Entry
	connected *bool
	metrics   WriterMetrics

	notify chan struct{}

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter creates a writer for flusher.
func NewWriter(cfg WriterConfig, flusher Flusher, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = d.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = d.BufferSize
	}

	return &Writer{
		cfg:     cfg,
		flusher: flusher,
		logger:  logger.With("sink", flusher.Name()),
		pending: make(map[entryKey]Entry),
		notify:  make(chan struct{}, 1),
	}
}

// Start begins the flush loop.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("sink writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop ends the flush loop and flushes whatever is pending using ctx.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping sink writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("sink writer stop timed out")
	}

	// Final flush
	w.flush(ctx)

	w.logger.Info("sink writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

// Pending returns the number of keys waiting for the next flush.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// OnPrice queues rec, replacing any unflushed record for the same key.
func (w *Writer) OnPrice(exchange, symbol string, rec model.PriceRecord) {
	k := entryKey{exchange, symbol}

	w.mu.Lock()
	if _, ok := w.pending[k]; ok {
		w.metrics.Coalesced++
	} else if len(w.pending) >= w.cfg.BufferSize {
		w.metrics.Dropped++
		w.mu.Unlock()
		return
	}
	w.pending[k] = Entry{Exchange: exchange, Symbol: symbol, Record: rec}
	shouldFlush := len(w.pending) >= w.cfg.BatchSize
	w.mu.Unlock()

	if shouldFlush {
		w.signal()
	}
}

// OnConnected queues a connection flag change.
func (w *Writer) OnConnected(connected bool) {
	w.mu.Lock()
	w.connected = &connected
	w.mu.Unlock()

	w.signal()
}

func (w *Writer) signal() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// flushLoop flushes on the interval or when signalled.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		case <-w.notify:
			w.flush(w.ctx)
		}
	}
}

// flush hands everything pending to the flusher. On failure the entries go
// back to pending unless a newer record arrived meanwhile.
func (w *Writer) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 && w.connected == nil {
		w.mu.Unlock()
		return
	}

	// Take ownership of current batch
	pending := w.pending
	connected := w.connected
	w.pending = make(map[entryKey]Entry, len(pending))
	w.connected = nil
	w.mu.Unlock()

	batch := Batch{Entries: sortedEntries(pending), Connected: connected}
	start := time.Now()

	if err := w.flusher.Flush(ctx, batch); err != nil {
		w.logger.Error("flush failed", "error", err, "count", len(batch.Entries))

		w.mu.Lock()
		w.metrics.Errors++
		for k, e := range pending {
			if _, newer := w.pending[k]; !newer {
				w.pending[k] = e
			}
		}
		if w.connected == nil {
			w.connected = connected
		}
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	w.metrics.Writes += int64(len(batch.Entries))
	w.metrics.Flushes++
	w.mu.Unlock()

	w.logger.Debug("flushed prices",
		"count", len(batch.Entries),
		"duration", time.Since(start),
	)
}

func sortedEntries(m map[entryKey]Entry) []Entry {
	out := make([]Entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Exchange != out[j].Exchange {
			return out[i].Exchange < out[j].Exchange
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}
