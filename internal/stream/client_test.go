package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/tickerfeed/internal/api"
	"github.com/rickgao/tickerfeed/internal/catalog"
	"github.com/rickgao/tickerfeed/internal/flash"
	"github.com/rickgao/tickerfeed/internal/model"
	"github.com/rickgao/tickerfeed/internal/store"
	"github.com/rickgao/tickerfeed/internal/upbit"
)

// feedServer is a mock exchange websocket that records subscribe requests.
type feedServer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn

	mu   sync.Mutex
	subs [][]byte

	accepted atomic.Int32
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	fs := &feedServer{conns: make(chan *websocket.Conn, 16)}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		fs.accepted.Add(1)

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.subs = append(fs.subs, msg)
		fs.mu.Unlock()
		fs.conns <- conn

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *feedServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *feedServer) next(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-fs.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for subscription")
		return nil
	}
}

func (fs *feedServer) subscriptions() [][]byte {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([][]byte(nil), fs.subs...)
}

type staticSource struct {
	calls atomic.Int32
}

func (s *staticSource) GetAllMarkets(ctx context.Context) ([]api.APIMarket, error) {
	s.calls.Add(1)
	return []api.APIMarket{
		{Market: "KRW-ETH", KoreanName: "이더리움", EnglishName: "Ethereum"},
		{Market: "KRW-BTC", KoreanName: "비트코인", EnglishName: "Bitcoin"},
		{Market: "BTC-ETH", KoreanName: "이더리움", EnglishName: "Ethereum"},
	}, nil
}

type flashCall struct {
	Code string
	Dir  flash.Direction
}

type recordingFlash struct {
	mu      sync.Mutex
	calls   []flashCall
	cleared int
}

func (f *recordingFlash) Emit(code string, dir flash.Direction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, flashCall{code, dir})
}

func (f *recordingFlash) ClearAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
}

func (f *recordingFlash) snapshot() ([]flashCall, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]flashCall(nil), f.calls...), f.cleared
}

type harness struct {
	client *Client
	store  *store.Store
	flash  *recordingFlash
	source *staticSource
	server *feedServer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	server := newFeedServer(t)
	source := &staticSource{}
	st := store.New()
	fl := &recordingFlash{}

	cfg := DefaultConfig()
	cfg.URL = server.url()
	cfg.ReconnectDelay = 50 * time.Millisecond

	client := NewClient(cfg, upbit.NewCodec(), catalog.New(source, nil), st, fl, nil)
	var n atomic.Int32
	client.newTicket = func() string { return fmt.Sprintf("ticket-%d", n.Add(1)) }
	t.Cleanup(client.Disconnect)

	return &harness{client: client, store: st, flash: fl, source: source, server: server}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte(frame)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestClient_NilSymbolsUsesQuotePrefix(t *testing.T) {
	h := newHarness(t)

	if err := h.client.Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	h.server.next(t)

	want := []string{"KRW-BTC", "KRW-ETH"}
	if got := h.client.Subscription(); !reflect.DeepEqual(got, want) {
		t.Errorf("Subscription = %v, want %v", got, want)
	}

	payload := string(h.server.subscriptions()[0])
	wantPayload := `[{"ticket":"ticket-1"},{"type":"ticker","codes":["KRW-BTC","KRW-ETH"]},{"format":"SIMPLE_LIST"}]`
	if payload != wantPayload {
		t.Errorf("payload = %s\nwant %s", payload, wantPayload)
	}
	if h.client.State() != StateSubscribed {
		t.Errorf("State = %v, want subscribed", h.client.State())
	}
	if !h.store.IsConnected() {
		t.Error("expected store connected")
	}
}

func TestClient_LatestPriceWinsAndFlashes(t *testing.T) {
	h := newHarness(t)

	if err := h.client.Connect(context.Background(), []string{"KRW-BTC"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	conn := h.server.next(t)

	send(t, conn, `[{"ty":"ticker","cd":"KRW-BTC","tp":100,"scp":1,"scr":0.01,"atp24h":250000000,"tms":1}]`)
	send(t, conn, `[{"ty":"ticker","cd":"KRW-BTC","tp":110,"scp":11,"scr":0.11,"atp24h":1500000000000,"tms":2}]`)
	send(t, conn, `{"ty":"ticker","cd":"KRW-BTC","tp":90,"scp":-10,"scr":-0.25,"atp24h":1500000000000,"tms":3}`)
	send(t, conn, `{"ty":"ticker","cd":"KRW-BTC","tp":90,"scp":-10,"scr":-0.25,"atp24h":1500000000000,"tms":4}`)

	waitFor(t, "fourth ticker", func() bool {
		rec, ok := h.store.Get("upbit", "KRW-BTC")
		return ok && rec.Timestamp == 4
	})

	rec, _ := h.store.Get("upbit", "KRW-BTC")
	if rec.Price != 90 {
		t.Errorf("Price = %v, want 90", rec.Price)
	}
	if rec.DisplayName != "비트코인" {
		t.Errorf("DisplayName = %q, want 비트코인", rec.DisplayName)
	}
	if rec.BaseCode != "BTC" {
		t.Errorf("BaseCode = %q, want BTC", rec.BaseCode)
	}
	if rec.PercentChange != -25 {
		t.Errorf("PercentChange = %v, want -25", rec.PercentChange)
	}
	if rec.AbsoluteChange != -10 {
		t.Errorf("AbsoluteChange = %v, want -10", rec.AbsoluteChange)
	}
	if rec.FormattedVolume != "1조" {
		t.Errorf("FormattedVolume = %q, want 1조", rec.FormattedVolume)
	}
	if rec.RawVolume != 1.5e12 {
		t.Errorf("RawVolume = %v, want 1.5e12", rec.RawVolume)
	}

	calls, _ := h.flash.snapshot()
	want := []flashCall{{"KRW-BTC", flash.Up}, {"KRW-BTC", flash.Down}}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("flash calls = %v, want %v", calls, want)
	}
}

func TestClient_UnknownCodeFallbacks(t *testing.T) {
	h := newHarness(t)

	if err := h.client.Connect(context.Background(), []string{"FOO"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	conn := h.server.next(t)
	send(t, conn, `[{"ty":"ticker","cd":"FOO","tp":5,"atp24h":10}]`)

	waitFor(t, "FOO ticker", func() bool {
		_, ok := h.store.Get("upbit", "FOO")
		return ok
	})

	rec, _ := h.store.Get("upbit", "FOO")
	if rec.DisplayName != "FOO" {
		t.Errorf("DisplayName = %q, want FOO", rec.DisplayName)
	}
	if rec.BaseCode != "FOO" {
		t.Errorf("BaseCode = %q, want FOO", rec.BaseCode)
	}
	if rec.FormattedVolume != "1억" {
		t.Errorf("FormattedVolume = %q, want 1억", rec.FormattedVolume)
	}
	if calls, _ := h.flash.snapshot(); len(calls) != 0 {
		t.Errorf("first observation should not flash, got %v", calls)
	}
}

func TestClient_MalformedFrameKeepsConnection(t *testing.T) {
	h := newHarness(t)

	if err := h.client.Connect(context.Background(), []string{"KRW-ETH"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	conn := h.server.next(t)

	send(t, conn, `not json`)
	send(t, conn, `[{"ty":"ticker","cd":"KRW-ETH"`)
	send(t, conn, `[{"ty":"ticker","cd":"KRW-ETH","tp":4800000}]`)

	waitFor(t, "valid ticker after malformed frames", func() bool {
		_, ok := h.store.Get("upbit", "KRW-ETH")
		return ok
	})

	if h.client.State() != StateSubscribed {
		t.Errorf("State = %v, want subscribed", h.client.State())
	}
	if got := h.server.accepted.Load(); got != 1 {
		t.Errorf("connections = %d, want 1", got)
	}
}

func TestClient_NoReconnectAfterDisconnect(t *testing.T) {
	h := newHarness(t)

	if err := h.client.Connect(context.Background(), []string{"KRW-BTC"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	h.server.next(t)

	h.client.Disconnect()

	if h.client.State() != StateDisconnected {
		t.Errorf("State = %v, want disconnected", h.client.State())
	}
	if h.store.IsConnected() {
		t.Error("expected store disconnected")
	}

	time.Sleep(4 * h.client.cfg.ReconnectDelay)

	if got := h.server.accepted.Load(); got != 1 {
		t.Errorf("connections = %d, want 1", got)
	}
	if _, cleared := h.flash.snapshot(); cleared != 1 {
		t.Errorf("ClearAll calls = %d, want 1", cleared)
	}
}

func TestClient_NoWritesAfterDisconnect(t *testing.T) {
	h := newHarness(t)

	var updates atomic.Int32
	h.store.Observe(store.ObserverFunc(func(string, string, model.PriceRecord) {
		updates.Add(1)
	}))

	if err := h.client.Connect(context.Background(), []string{"KRW-BTC"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	conn := h.server.next(t)

	go func() {
		for i := 0; i < 300; i++ {
			frame := fmt.Sprintf(`[{"ty":"ticker","cd":"KRW-BTC","tp":%d,"tms":%d}]`, 100+i%2, i)
			if err := conn.WriteMessage(websocket.BinaryMessage, []byte(frame)); err != nil {
				return
			}
		}
	}()

	waitFor(t, "first ticker", func() bool { return updates.Load() > 0 })
	h.client.Disconnect()

	seen := updates.Load()
	calls, cleared := h.flash.snapshot()
	if cleared != 1 {
		t.Errorf("ClearAll calls = %d, want 1", cleared)
	}

	time.Sleep(100 * time.Millisecond)

	if got := updates.Load(); got != seen {
		t.Errorf("store updates after Disconnect = %d", got-seen)
	}
	if after, _ := h.flash.snapshot(); len(after) != len(calls) {
		t.Errorf("flash emits after Disconnect = %d", len(after)-len(calls))
	}
	if h.store.IsConnected() {
		t.Error("expected store disconnected")
	}
}

func TestClient_DisconnectDuringConnectLeavesFlagFalse(t *testing.T) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	var delay atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Duration(delay.Load()))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	for i := 0; i < 20; i++ {
		delay.Store(int64(i%5) * int64(time.Millisecond))

		st := store.New()
		cfg := DefaultConfig()
		cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
		client := NewClient(cfg, upbit.NewCodec(), catalog.New(&staticSource{}, nil), st, nil, nil)

		done := make(chan struct{})
		go func() {
			defer close(done)
			client.Connect(context.Background(), []string{"KRW-BTC"})
		}()

		waitFor(t, "session start", func() bool {
			client.mu.Lock()
			defer client.mu.Unlock()
			return client.active
		})
		time.Sleep(time.Duration(i%5) * time.Millisecond)
		client.Disconnect()
		<-done

		if st.IsConnected() {
			t.Fatalf("iteration %d: store connected after Disconnect", i)
		}
		if client.State() != StateDisconnected {
			t.Fatalf("iteration %d: State = %v, want disconnected", i, client.State())
		}
	}
}

func TestNewClient_DefaultQuotePrefix(t *testing.T) {
	server := newFeedServer(t)
	client := NewClient(Config{URL: server.url()}, upbit.NewCodec(), catalog.New(&staticSource{}, nil), store.New(), nil, nil)
	t.Cleanup(client.Disconnect)

	if err := client.Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	server.next(t)

	want := []string{"KRW-BTC", "KRW-ETH"}
	if got := client.Subscription(); !reflect.DeepEqual(got, want) {
		t.Errorf("Subscription = %v, want %v", got, want)
	}
}

func TestClient_ReconnectAfterServerClose(t *testing.T) {
	h := newHarness(t)

	if err := h.client.Connect(context.Background(), []string{"KRW-BTC", "KRW-ETH"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	first := h.server.next(t)
	first.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart"),
		time.Now().Add(time.Second))
	first.Close()

	second := h.server.next(t)
	send(t, second, `[{"ty":"ticker","cd":"KRW-ETH","tp":1}]`)

	waitFor(t, "ticker on reconnected session", func() bool {
		_, ok := h.store.Get("upbit", "KRW-ETH")
		return ok
	})

	if !h.store.IsConnected() {
		t.Error("expected store connected after reconnect")
	}

	subs := h.server.subscriptions()
	if len(subs) != 2 {
		t.Fatalf("subscriptions = %d, want 2", len(subs))
	}
	if codesOf(t, subs[0]) != codesOf(t, subs[1]) {
		t.Errorf("reconnect changed codes: %s vs %s", subs[0], subs[1])
	}
}

func TestClient_ReconnectPayloadIdenticalExceptTicket(t *testing.T) {
	h := newHarness(t)
	symbols := []string{"KRW-BTC", "KRW-ETH"}

	if err := h.client.Connect(context.Background(), symbols); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	h.server.next(t)
	h.client.Disconnect()

	if err := h.client.Connect(context.Background(), symbols); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	h.server.next(t)

	subs := h.server.subscriptions()
	if len(subs) != 2 {
		t.Fatalf("subscriptions = %d, want 2", len(subs))
	}
	if string(subs[0]) == string(subs[1]) {
		t.Error("tickets should differ between sessions")
	}
	if withoutTicket(t, subs[0]) != withoutTicket(t, subs[1]) {
		t.Errorf("payloads differ beyond ticket:\n%s\n%s", subs[0], subs[1])
	}
	if got := h.source.calls.Load(); got != 1 {
		t.Errorf("catalog fetches = %d, want 1", got)
	}
}

func TestClient_AlreadyConnected(t *testing.T) {
	h := newHarness(t)

	if err := h.client.Connect(context.Background(), []string{"KRW-BTC"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := h.client.Connect(context.Background(), []string{"KRW-BTC"}); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestClient_ContextCancelDisconnects(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	if err := h.client.Connect(ctx, []string{"KRW-BTC"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	h.server.next(t)
	cancel()

	waitFor(t, "disconnect on cancel", func() bool {
		return h.client.State() == StateDisconnected
	})

	time.Sleep(4 * h.client.cfg.ReconnectDelay)
	if got := h.server.accepted.Load(); got != 1 {
		t.Errorf("connections = %d, want 1", got)
	}
}

func TestClient_DialFailureSchedulesReconnect(t *testing.T) {
	st := store.New()
	cfg := DefaultConfig()
	cfg.URL = "ws://127.0.0.1:1"
	cfg.ReconnectDelay = time.Hour

	client := NewClient(cfg, upbit.NewCodec(), catalog.New(&staticSource{}, nil), st, nil, nil)
	defer client.Disconnect()

	if err := client.Connect(context.Background(), []string{"KRW-BTC"}); err == nil {
		t.Fatal("expected dial error")
	}
	if client.State() != StateReconnecting {
		t.Errorf("State = %v, want reconnecting", client.State())
	}
	if st.IsConnected() {
		t.Error("expected store disconnected")
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateSubscribed:   "subscribed",
		StateClosed:       "closed",
		StateReconnecting: "reconnecting",
		State(99):         "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func codesOf(t *testing.T, payload []byte) string {
	t.Helper()
	var parts []map[string]json.RawMessage
	if err := json.Unmarshal(payload, &parts); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return string(parts[1]["codes"])
}

func withoutTicket(t *testing.T, payload []byte) string {
	t.Helper()
	var parts []json.RawMessage
	if err := json.Unmarshal(payload, &parts); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	rest, _ := json.Marshal(parts[1:])
	return string(rest)
}
