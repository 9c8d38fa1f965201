// Package store holds the process-wide table of latest prices, keyed by
// exchange and instrument symbol, plus the feed connection flag.
//
// Each exchange is expected to have a single writer (its stream client).
// Readers may call from any goroutine.
package store

import (
	"sort"
	"sync"

	"github.com/rickgao/tickerfeed/internal/model"
)

// Observer is notified after every Update, in update order.
type Observer interface {
	OnPrice(exchange, symbol string, rec model.PriceRecord)
}

// ConnectionObserver is optionally implemented by observers that also want
// connection flag changes.
type ConnectionObserver interface {
	OnConnected(connected bool)
}

// ObserverFunc is a function adapter for Observer.
type ObserverFunc func(exchange, symbol string, rec model.PriceRecord)

func (f ObserverFunc) OnPrice(exchange, symbol string, rec model.PriceRecord) {
	f(exchange, symbol, rec)
}

// Store is a two-level table exchange → symbol → PriceRecord.
type Store struct {
	mu        sync.RWMutex
	tables    map[string]map[string]model.PriceRecord
	connected bool

	obsMu     sync.RWMutex
	observers []Observer
}

// New creates an empty store.
func New() *Store {
	return &Store{
		tables: make(map[string]map[string]model.PriceRecord),
	}
}

// Update inserts or replaces the record for (exchange, symbol), creating the
// exchange table on first use.
func (s *Store) Update(exchange, symbol string, rec model.PriceRecord) {
	s.mu.Lock()
	table, ok := s.tables[exchange]
	if !ok {
		table = make(map[string]model.PriceRecord)
		s.tables[exchange] = table
	}
	table[symbol] = rec
	s.mu.Unlock()

	for _, o := range s.snapshotObservers() {
		o.OnPrice(exchange, symbol, rec)
	}
}

// Get returns the record for (exchange, symbol).
func (s *Store) Get(exchange, symbol string) (model.PriceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tables[exchange][symbol]
	return rec, ok
}

// ExchangeTable returns a copy of every record for exchange.
func (s *Store) ExchangeTable(exchange string) (map[string]model.PriceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, ok := s.tables[exchange]
	if !ok {
		return nil, false
	}

	out := make(map[string]model.PriceRecord, len(table))
	for k, v := range table {
		out[k] = v
	}
	return out, true
}

// Exchanges returns the exchanges that have at least one record, sorted.
func (s *Store) Exchanges() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.tables))
	for name := range s.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SetConnected records the feed connection state.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	changed := s.connected != connected
	s.connected = connected
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, o := range s.snapshotObservers() {
		if co, ok := o.(ConnectionObserver); ok {
			co.OnConnected(connected)
		}
	}
}

// IsConnected returns the feed connection state.
func (s *Store) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Observe registers o for all future updates.
func (s *Store) Observe(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	// Copy on write so Update can iterate without holding the lock.
	next := make([]Observer, len(s.observers), len(s.observers)+1)
	copy(next, s.observers)
	s.observers = append(next, o)
}

func (s *Store) snapshotObservers() []Observer {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	return s.observers
}
