// Package server exposes the price store, market catalog and flash events
// over HTTP for display processes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/rickgao/tickerfeed/internal/flash"
	"github.com/rickgao/tickerfeed/internal/model"
	"github.com/rickgao/tickerfeed/internal/store"
	"github.com/rickgao/tickerfeed/internal/version"
)

// Catalog is the read side of the market catalog.
type Catalog interface {
	Loaded() bool
	Markets() model.Markets
}

// FlashSource streams flash events.
type FlashSource interface {
	Subscribe(buffer int) (<-chan flash.Event, func())
}

// flashBuffer is the per-client flash event backlog.
const flashBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server serves the read API.
type Server struct {
	store   *store.Store
	catalog Catalog
	flash   FlashSource
	logger  *slog.Logger
	router  chi.Router
}

// New builds the router. fl may be nil, in which case /flash returns 404.
func New(st *store.Store, cat Catalog, fl FlashSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:   st,
		catalog: cat,
		flash:   fl,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/health", s.health)
	r.Get("/markets", s.markets)
	r.Get("/prices/{exchange}", s.exchangePrices)
	r.Get("/prices/{exchange}/{symbol}", s.symbolPrice)
	r.Get("/flash", s.flashStream)
	s.router = r

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("read api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type healthResponse struct {
	Status        string `json:"status"`
	Connected     bool   `json:"connected"`
	CatalogLoaded bool   `json:"catalog_loaded"`
	Markets       int    `json:"markets"`
	Version       string `json:"version"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, healthResponse{
		Status:        "ok",
		Connected:     s.store.IsConnected(),
		CatalogLoaded: s.catalog.Loaded(),
		Markets:       len(s.catalog.Markets()),
		Version:       version.Version,
	})
}

// markets lists catalog entries sorted by code, optionally filtered by
// ?prefix=KRW-.
func (s *Server) markets(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	all := s.catalog.Markets()
	out := make([]model.MarketEntry, 0, len(all))
	for code, m := range all {
		if strings.HasPrefix(code, prefix) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })

	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) exchangePrices(w http.ResponseWriter, r *http.Request) {
	exchange := strings.ToLower(chi.URLParam(r, "exchange"))

	table, ok := s.store.ExchangeTable(exchange)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "unknown exchange")
		return
	}
	s.writeJSON(w, r, http.StatusOK, table)
}

func (s *Server) symbolPrice(w http.ResponseWriter, r *http.Request) {
	exchange := strings.ToLower(chi.URLParam(r, "exchange"))
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	rec, ok := s.store.Get(exchange, symbol)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "unknown symbol")
		return
	}
	s.writeJSON(w, r, http.StatusOK, rec)
}

// flashStream upgrades to a websocket and relays flash events until the
// client goes away.
func (s *Server) flashStream(w http.ResponseWriter, r *http.Request) {
	if s.flash == nil {
		s.writeError(w, r, http.StatusNotFound, "flash events disabled")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("flash upgrade failed", errorAttr(errors.WithStack(err)))
		return
	}
	defer conn.Close()

	events, unsubscribe := s.flash.Subscribe(flashBuffer)
	defer unsubscribe()

	// Detect client close; inbound frames are ignored.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(time.Second))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("flash client write failed", errorAttr(errors.Wrap(err, "write flash event")))
				return
			}
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, r, status, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			errorAttr(errors.WithStack(err)),
		)
	}
}

// errorAttr renders err with its stack trace.
func errorAttr(err error) slog.Attr {
	return slog.String("error", fmt.Sprintf("%+v", err))
}
