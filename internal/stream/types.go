package stream

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/tickerfeed/internal/flash"
	"github.com/rickgao/tickerfeed/internal/model"
)

// ErrAlreadyConnected is returned by Connect while a session is active.
var ErrAlreadyConnected = errors.New("stream already connected")

// Codec encodes subscriptions and decodes frames for one exchange.
type Codec interface {
	SubscribeMessage(ticket string, codes []string) ([]byte, error)
	Decode(frame []byte) ([]model.TickerUpdate, error)
}

// Catalog resolves instrument metadata. *catalog.Catalog satisfies it.
type Catalog interface {
	Loaded() bool
	Load(ctx context.Context) model.Markets
	DisplayName(code string) string
	CodesWithPrefix(prefix string) []string
}

// FlashEmitter receives price-direction notifications. *flash.Notifier
// satisfies it.
type FlashEmitter interface {
	Emit(code string, dir flash.Direction)
	ClearAll()
}

// State is the client connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateClosed
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Config configures a stream client.
type Config struct {
	Exchange       string        // Store key, e.g. "upbit"
	URL            string        // Websocket endpoint
	QuotePrefix    string        // Filter applied to catalog codes when no symbols are given
	ReconnectDelay time.Duration // Wait between a close and the next dial
	PingInterval   time.Duration
	PingTimeout    time.Duration
	WriteTimeout   time.Duration
	BufferSize     int
}

// DefaultConfig returns the Upbit defaults.
func DefaultConfig() Config {
	return Config{
		Exchange:       "upbit",
		URL:            "wss://api.upbit.com/websocket/v1",
		QuotePrefix:    "KRW-",
		ReconnectDelay: time.Second,
		PingInterval:   30 * time.Second,
		PingTimeout:    120 * time.Second,
		WriteTimeout:   5 * time.Second,
		BufferSize:     1000,
	}
}
