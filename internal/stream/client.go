package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/tickerfeed/internal/connection"
	"github.com/rickgao/tickerfeed/internal/flash"
	"github.com/rickgao/tickerfeed/internal/format"
	"github.com/rickgao/tickerfeed/internal/model"
	"github.com/rickgao/tickerfeed/internal/store"
)

// Client streams tickers for one exchange into a store.
type Client struct {
	cfg     Config
	codec   Codec
	catalog Catalog
	store   *store.Store
	flash   FlashEmitter
	logger  *slog.Logger

	newTicket func() string

	// applyMu serializes store and flash writes against Disconnect. Store
	// observers must not call Disconnect.
	applyMu sync.Mutex

	mu           sync.Mutex
	state        State
	active       bool   // between Connect and Disconnect
	disconnected bool   // set by Disconnect, suppresses reconnects
	gen          uint64 // bumped per session so stale timers and loops are ignored
	symbols      []string
	subscription []string
	conn         connection.Client
	timer        *time.Timer
	cancel       context.CancelFunc
	stopWatch    func() bool
	sessionCtx   context.Context
}

// NewClient creates a stream client. flash may be nil.
func NewClient(cfg Config, codec Codec, cat Catalog, st *store.Store, fl FlashEmitter, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultConfig()
	if cfg.Exchange == "" {
		cfg.Exchange = d.Exchange
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = d.ReconnectDelay
	}
	if cfg.QuotePrefix == "" {
		cfg.QuotePrefix = d.QuotePrefix
	}

	return &Client{
		cfg:       cfg,
		codec:     codec,
		catalog:   cat,
		store:     st,
		flash:     fl,
		logger:    logger.With("exchange", cfg.Exchange),
		newTicket: uuid.NewString,
	}
}

// Connect starts a session. A nil symbols slice subscribes to every catalog
// code carrying the configured quote prefix, re-evaluated on each reconnect.
// A non-nil slice is used as given.
//
// An initial dial failure is returned, but the session stays active and keeps
// retrying until Disconnect or ctx is cancelled.
func (c *Client) Connect(ctx context.Context, symbols []string) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.active = true
	c.disconnected = false
	c.gen++
	gen := c.gen
	if symbols != nil {
		c.symbols = append([]string{}, symbols...)
	} else {
		c.symbols = nil
	}
	// The session context outlives ctx's deadline; only cancellation ends it.
	c.sessionCtx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.stopWatch = context.AfterFunc(ctx, c.Disconnect)
	c.mu.Unlock()

	return c.connect(gen)
}

// Disconnect ends the session: pending reconnects are cancelled, the
// transport is closed and pending flashes are cleared.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.disconnected = true
	c.gen++
	c.state = StateDisconnected
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	stopWatch := c.stopWatch
	c.mu.Unlock()

	stopWatch()
	cancel()
	if conn != nil {
		conn.Close()
	}
	// Waits for a frame in flight; later frames see the bumped gen.
	c.applyMu.Lock()
	c.store.SetConnected(false)
	if c.flash != nil {
		c.flash.ClearAll()
	}
	c.applyMu.Unlock()

	c.logger.Info("stream disconnected")
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscription returns the codes sent in the most recent subscribe request.
func (c *Client) Subscription() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscription...)
}

func (c *Client) connect(gen uint64) error {
	c.mu.Lock()
	if c.disconnected || gen != c.gen {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	ctx := c.sessionCtx
	symbols := c.symbols
	c.mu.Unlock()

	if !c.catalog.Loaded() {
		c.catalog.Load(ctx)
	}

	codes := symbols
	if codes == nil {
		codes = c.catalog.CodesWithPrefix(c.cfg.QuotePrefix)
	}

	conn := connection.NewClient(connection.ClientConfig{
		URL:          c.cfg.URL,
		PingInterval: c.cfg.PingInterval,
		PingTimeout:  c.cfg.PingTimeout,
		WriteTimeout: c.cfg.WriteTimeout,
		BufferSize:   c.cfg.BufferSize,
	}, c.logger)

	if err := conn.Connect(ctx); err != nil {
		c.logger.Warn("websocket dial failed", "url", c.cfg.URL, "error", err)
		c.store.SetConnected(false)
		c.scheduleReconnect(gen)
		return err
	}

	c.applyMu.Lock()
	c.mu.Lock()
	if c.disconnected || gen != c.gen {
		c.mu.Unlock()
		c.applyMu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.state = StateSubscribed
	c.subscription = append([]string(nil), codes...)
	c.mu.Unlock()
	c.store.SetConnected(true)
	c.applyMu.Unlock()

	payload, err := c.codec.SubscribeMessage(c.newTicket(), codes)
	if err == nil {
		err = conn.Send(payload)
	}
	if err != nil {
		c.logger.Error("subscribe failed", "error", err)
		// run observes Done and schedules the reconnect.
		conn.Close()
	} else {
		c.logger.Info("stream subscribed", "codes", len(codes))
	}

	go c.run(gen, conn)
	return nil
}

// run consumes frames from one transport in arrival order until it ends.
func (c *Client) run(gen uint64, conn connection.Client) {
	for {
		select {
		case msg := <-conn.Messages():
			if !c.process(gen, msg.Data) {
				return
			}
		case err := <-conn.Errors():
			c.drain(gen, conn)
			c.handleClose(gen, conn, err)
			return
		case <-conn.Done():
			c.handleClose(gen, conn, nil)
			return
		}
	}
}

// drain processes frames that arrived before the transport failed.
func (c *Client) drain(gen uint64, conn connection.Client) {
	for {
		select {
		case msg := <-conn.Messages():
			if !c.process(gen, msg.Data) {
				return
			}
		default:
			return
		}
	}
}

// process handles one frame unless the session has ended. It reports false
// once gen is stale.
func (c *Client) process(gen uint64, data []byte) bool {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	c.mu.Lock()
	live := !c.disconnected && gen == c.gen
	c.mu.Unlock()
	if !live {
		return false
	}
	c.handleFrame(data)
	return true
}

func (c *Client) handleFrame(data []byte) {
	updates, err := c.codec.Decode(data)
	if err != nil {
		c.logger.Warn("dropping malformed frame", "error", err, "size", len(data))
		return
	}
	for _, u := range updates {
		c.apply(u)
	}
}

// apply replaces the stored record for u.Code and flashes on a price move.
func (c *Client) apply(u model.TickerUpdate) {
	prev, hadPrev := c.store.Get(c.cfg.Exchange, u.Code)

	rec := model.PriceRecord{
		Symbol:          u.Code,
		BaseCode:        model.BaseCode(u.Code),
		DisplayName:     c.catalog.DisplayName(u.Code),
		Price:           u.TradePrice,
		AbsoluteChange:  u.SignedChangePrice,
		PercentChange:   u.SignedChangeRate * 100,
		FormattedVolume: format.Amount(u.AccTradePrice24h),
		RawVolume:       u.AccTradePrice24h,
		Timestamp:       u.Timestamp,
	}
	c.store.Update(c.cfg.Exchange, u.Code, rec)

	if hadPrev && prev.Price != rec.Price && c.flash != nil {
		c.flash.Emit(u.Code, flash.DirectionOf(prev.Price, rec.Price))
	}
}

func (c *Client) handleClose(gen uint64, conn connection.Client, err error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	if c.disconnected || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.mu.Unlock()

	conn.Close()
	c.store.SetConnected(false)

	switch {
	case err == nil:
		c.logger.Info("websocket closed")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.logger.Info("websocket closed by server", "error", err)
	default:
		c.logger.Warn("websocket error", "error", err)
	}

	c.scheduleReconnect(gen)
}

func (c *Client) scheduleReconnect(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disconnected || gen != c.gen {
		return
	}
	c.state = StateReconnecting
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.cfg.ReconnectDelay, func() { c.reconnect(gen) })
	c.logger.Info("reconnect scheduled", "delay", c.cfg.ReconnectDelay)
}

func (c *Client) reconnect(gen uint64) {
	c.mu.Lock()
	if c.disconnected || gen != c.gen || c.conn != nil {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	c.connect(gen)
}
