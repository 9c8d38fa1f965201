package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/tickerfeed/internal/api"
)

const marketsJSON = `[
	{"market":"KRW-BTC","korean_name":"비트코인","english_name":"Bitcoin"},
	{"market":"KRW-ETH","korean_name":"이더리움","english_name":"Ethereum"},
	{"market":"BTC-ETH","korean_name":"이더리움","english_name":"Ethereum"},
	{"market":"USDT-XRP","korean_name":"리플","english_name":"Ripple"},
	{"market":"KRW-XRP","korean_name":"","english_name":"Ripple"}
]`

// mockMarketServer serves marketsJSON and counts requests.
func mockMarketServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Path != "/market/all" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(marketsJSON))
	}))
	t.Cleanup(server.Close)
	return server
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	errs  []error
	list  []api.APIMarket
	delay time.Duration
}

func (f *fakeSource) GetAllMarkets(ctx context.Context) ([]api.APIMarket, error) {
	f.mu.Lock()
	f.calls++
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err != nil {
		return nil, err
	}
	return f.list, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestLoad_OnlyOnce(t *testing.T) {
	var hits int32
	server := mockMarketServer(t, &hits)
	c := New(api.NewClient(server.URL), nil)

	first := c.Load(context.Background())
	second := c.Load(context.Background())

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
	if len(first) != 5 {
		t.Errorf("len(first) = %d, want 5", len(first))
	}
	if reflect.ValueOf(first).Pointer() != reflect.ValueOf(second).Pointer() {
		t.Error("second Load should return the identical mapping")
	}
	if !c.Loaded() {
		t.Error("Loaded() = false after successful load")
	}
	if c.LoadedAt().IsZero() {
		t.Error("LoadedAt() should be set after load")
	}
}

func TestLoad_FailureIsRetried(t *testing.T) {
	src := &fakeSource{
		errs: []error{errors.New("connection refused")},
		list: []api.APIMarket{{Market: "KRW-BTC", KoreanName: "비트코인"}},
	}
	c := New(src, nil)

	got := c.Load(context.Background())
	if got == nil || len(got) != 0 {
		t.Errorf("failed load should return empty non-nil mapping, got %v", got)
	}
	if c.Loaded() {
		t.Error("Loaded() = true after failed load")
	}

	got = c.Load(context.Background())
	if len(got) != 1 {
		t.Errorf("retry should load 1 market, got %d", len(got))
	}
	if !c.Loaded() {
		t.Error("Loaded() = false after retry")
	}
	if src.callCount() != 2 {
		t.Errorf("calls = %d, want 2", src.callCount())
	}
}

func TestLoad_ConcurrentCallersShareRequest(t *testing.T) {
	src := &fakeSource{
		list:  []api.APIMarket{{Market: "KRW-BTC"}},
		delay: 50 * time.Millisecond,
	}
	c := New(src, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := c.Load(context.Background()); len(got) != 1 {
				t.Errorf("len = %d, want 1", len(got))
			}
		}()
	}
	wg.Wait()

	if src.callCount() != 1 {
		t.Errorf("calls = %d, want 1", src.callCount())
	}
}

func TestDisplayName(t *testing.T) {
	var hits int32
	c := New(api.NewClient(mockMarketServer(t, &hits).URL), nil)
	c.Load(context.Background())

	tests := []struct {
		code string
		want string
	}{
		{"KRW-BTC", "비트코인"},
		{"KRW-DOGE", "KRW-DOGE"}, // unknown
		{"KRW-XRP", "KRW-XRP"},   // known but unnamed
	}
	for _, tt := range tests {
		if got := c.DisplayName(tt.code); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestDisplayName_BeforeLoad(t *testing.T) {
	c := New(&fakeSource{}, nil)
	if got := c.DisplayName("KRW-BTC"); got != "KRW-BTC" {
		t.Errorf("DisplayName = %q, want raw code", got)
	}
}

func TestCodesWithPrefix(t *testing.T) {
	var hits int32
	c := New(api.NewClient(mockMarketServer(t, &hits).URL), nil)
	c.Load(context.Background())

	got := c.CodesWithPrefix("KRW-")
	want := []string{"KRW-BTC", "KRW-ETH", "KRW-XRP"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CodesWithPrefix = %v, want %v", got, want)
	}

	if got := c.CodesWithPrefix("EUR-"); len(got) != 0 {
		t.Errorf("CodesWithPrefix(EUR-) = %v, want empty", got)
	}
}

func TestLookup(t *testing.T) {
	var hits int32
	c := New(api.NewClient(mockMarketServer(t, &hits).URL), nil)
	c.Load(context.Background())

	m, ok := c.Lookup("USDT-XRP")
	if !ok {
		t.Fatal("USDT-XRP not found")
	}
	if m.EnglishName != "Ripple" {
		t.Errorf("EnglishName = %q, want Ripple", m.EnglishName)
	}
	if _, ok := c.Lookup("KRW-NOPE"); ok {
		t.Error("unexpected entry for KRW-NOPE")
	}
}
