// Package marketdata serves a read-only view of the book over HTTP and
// streams executions and depth updates over websocket.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/joripage/matching-engine/pkg/engine"
	"github.com/joripage/matching-engine/pkg/orderbook"
	"github.com/joripage/matching-engine/pkg/stats"
	"go.uber.org/zap"
)

const (
	EventTrade = "trade"
	EventDepth = "depth"

	writeWait = 5 * time.Second
)

// Event is one websocket message.
type Event struct {
	Type      string    `json:"type"`
	Symbol    string    `json:"symbol"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type DepthSource interface {
	Depth(ctx context.Context, n int) (orderbook.Depth, error)
}

// DepthFunc adapts a function to DepthSource.
type DepthFunc func(ctx context.Context, n int) (orderbook.Depth, error)

func (f DepthFunc) Depth(ctx context.Context, n int) (orderbook.Depth, error) {
	return f(ctx, n)
}

type StatsSource interface {
	Summary() (stats.Summary, error)
}

type Config struct {
	Symbol      string
	AuthToken   string // empty disables auth
	Buffer      int
	DepthLevels int // default for GET /api/v1/depth
}

type Server struct {
	cfg      Config
	depth    DepthSource
	stats    StatsSource
	events   *hub[Event]
	upgrader websocket.Upgrader
	router   *mux.Router
}

// NewServer builds the feed. st may be nil.
func NewServer(cfg Config, depth DepthSource, st StatsSource) *Server {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if cfg.DepthLevels <= 0 {
		cfg.DepthLevels = 10
	}
	s := &Server{
		cfg:      cfg,
		depth:    depth,
		stats:    st,
		events:   newHub[Event](),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		router:   mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.withAuth)
	api.HandleFunc("/depth", s.handleDepth).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// NeedsDepth asks the engine to attach depth to every report.
func (s *Server) NeedsDepth() bool { return true }

// OnExecution publishes each trade and, unless the request was rejected, the
// resulting depth. It never blocks the engine.
func (s *Server) OnExecution(_ context.Context, report *engine.ExecutionReport) {
	for _, m := range report.Trades {
		s.publish(Event{Type: EventTrade, Symbol: report.Symbol, Data: m, Timestamp: report.Timestamp})
	}
	if !report.Rejected() {
		s.publish(Event{Type: EventDepth, Symbol: report.Symbol, Data: report.Depth, Timestamp: report.Timestamp})
	}
}

func (s *Server) publish(ev Event) {
	if dropped := s.events.Broadcast(ev); dropped > 0 {
		zap.S().Debugf("%d slow subscribers missed a %s event", dropped, ev.Type)
	}
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	zap.S().Infof("market data listening on %s", addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.cfg.AuthToken {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"symbol":      s.cfg.Symbol,
		"subscribers": s.events.Len(),
	})
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	levels := s.cfg.DepthLevels
	if v := r.URL.Query().Get("levels"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "levels must be a non-negative integer")
			return
		}
		levels = n
	}

	depth, err := s.depth.Depth(r.Context(), levels)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, Event{Type: EventDepth, Symbol: s.cfg.Symbol, Data: depth, Timestamp: time.Now()})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusNotFound, "stats not enabled")
		return
	}
	sum, err := s.stats.Summary()
	if err != nil && !errors.Is(err, stats.ErrNoSamples) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// subscribe before the handshake so nothing published after the client
	// sees the upgrade is lost
	sub := s.events.Subscribe(s.cfg.Buffer)
	defer s.events.Unsubscribe(sub)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close() // nolint

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-sub.ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
