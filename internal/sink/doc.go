// Package sink mirrors the latest price per (exchange, symbol) to external
// storage for out-of-process readers.
//
// A Writer observes the price store, coalesces updates per key and hands
// batches to a Flusher on an interval or once BatchSize keys are pending:
//   - PostgresFlusher upserts into latest_prices
//   - RedisFlusher writes one hash per symbol plus a connection flag
//
// Only the newest record per key is ever written; nothing accumulates.
package sink
