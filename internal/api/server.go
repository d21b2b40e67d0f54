package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"lob/internal/engine"
	"lob/internal/logger"
	"lob/internal/orderbook"
	"lob/internal/snapshot"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// SnapshotLoader reads cached depth written by the snapshot sink.
type SnapshotLoader interface {
	Load(ctx context.Context, instrument string) (snapshot.Snapshot, error)
}

type Options struct {
	CORSOrigins []string // empty allows all
	RateLimit   int      // requests per window per client, 0 disables
	RateWindow  time.Duration
	APIKeyHash  string // bcrypt hash guarding mutating routes, empty disables
	TickSize    string // decimal price increment, empty accepts any price
	Snapshots   SnapshotLoader
}

type Server struct {
	engine      *engine.Engine
	hub         *Hub
	log         *logger.Logger
	snapshots   SnapshotLoader
	rateLimiter *RateLimiter
	auth        *KeyAuth
	tick        decimal.Decimal
	corsOrigins []string
	upgrader    websocket.Upgrader
}

func NewServer(eng *engine.Engine, hub *Hub, log *logger.Logger, opts Options) (*Server, error) {
	s := &Server{
		engine:      eng,
		hub:         hub,
		log:         log,
		snapshots:   opts.Snapshots,
		corsOrigins: opts.CORSOrigins,
	}
	if opts.TickSize != "" {
		tick, err := decimal.NewFromString(opts.TickSize)
		if err != nil || !tick.IsPositive() {
			return nil, fmt.Errorf("tick size must be a positive decimal, got %q", opts.TickSize)
		}
		s.tick = tick
	}
	if opts.APIKeyHash != "" {
		auth, err := NewKeyAuth(opts.APIKeyHash)
		if err != nil {
			return nil, err
		}
		s.auth = auth
	}
	if opts.RateLimit > 0 {
		window := opts.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		s.rateLimiter = NewRateLimiter(opts.RateLimit, window)
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.checkCORSOrigin(r.Header.Get("Origin"))
		},
	}
	return s, nil
}

// checkCORSOrigin allows everything when no origins are configured, and
// same-origin requests always.
func (s *Server) checkCORSOrigin(origin string) bool {
	if len(s.corsOrigins) == 0 || origin == "" {
		return true
	}
	for _, allowed := range s.corsOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	if s.rateLimiter != nil {
		r.Use(s.rateLimiter.Middleware)
	}
	allowedOrigins := s.corsOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", apiKeyHeader},
	}))

	r.Get("/healthz", s.health)

	r.Route("/api/books", func(r chi.Router) {
		r.Get("/", s.listBooks)

		r.Route("/{instrument}", func(r chi.Router) {
			r.Get("/orders", s.listOrders)
			r.Get("/orders/{id}", s.getOrder)
			r.Get("/top", s.getTop)
			r.Get("/spread", s.getSpread)
			r.Get("/levels", s.getLevels)
			r.Get("/levels/{rank}", s.getLevelByRank)
			r.Get("/prices/{price}", s.getPrice)
			r.Get("/snapshot", s.getSnapshot)
			r.Get("/debug", s.getDebug)

			r.Group(func(r chi.Router) {
				if s.auth != nil {
					r.Use(s.auth.Middleware)
				}
				r.Post("/orders", s.submitOrder)
				r.Put("/orders/{id}", s.changeOrder)
				r.Delete("/orders/{id}", s.cancelOrder)
			})
		})
	})

	r.Get("/ws", s.handleWebSocket)

	return r
}

// OrderRequest is the body of a submit.
type OrderRequest struct {
	ID     string              `json:"id,omitempty"`
	Side   orderbook.Side      `json:"side"`
	Type   orderbook.OrderType `json:"type"`
	Flag   orderbook.OrderFlag `json:"flag"`
	Price  decimal.Decimal     `json:"price"`
	Volume decimal.Decimal     `json:"volume"`
}

// ChangeRequest is the body of a modify.
type ChangeRequest struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

// CommandResponse reports an applied command.
type CommandResponse struct {
	Sequence uint64               `json:"sequence"`
	Order    orderbook.Order      `json:"order"`
	Events   []orderbook.Envelope `json:"events"`
}

func newCommandResponse(res engine.Result) CommandResponse {
	return CommandResponse{Sequence: res.Sequence, Order: res.Order, Events: orderbook.Wrap(res.Events)}
}

func (s *Server) market(w http.ResponseWriter, r *http.Request) (*engine.Market, bool) {
	m, err := s.engine.Market(chi.URLParam(r, "instrument"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return m, true
}

func (s *Server) checkTick(price decimal.Decimal) error {
	if s.tick.IsZero() || price.IsZero() {
		return nil
	}
	if !price.Mod(s.tick).IsZero() {
		return fmt.Errorf("%w: price %s is not a multiple of tick %s", orderbook.ErrInvalidOrder, price, s.tick)
	}
	return nil
}

// amounts converts request decimals to the book's floats. Values too large
// for a float64 are rejected rather than rounded to infinity.
func (s *Server) amounts(price, volume decimal.Decimal) (float64, float64, error) {
	if err := s.checkTick(price); err != nil {
		return 0, 0, err
	}
	p, v := price.InexactFloat64(), volume.InexactFloat64()
	if math.IsInf(p, 0) || math.IsInf(v, 0) {
		return 0, 0, fmt.Errorf("%w: price %s or volume %s out of range", orderbook.ErrInvalidOrder, price, volume)
	}
	return p, v, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"instruments": s.engine.Instruments()})
}

func (s *Server) submitOrder(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(w, r)
	if !ok {
		return
	}
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	price, volume, err := s.amounts(req.Price, req.Volume)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := m.Submit(r.Context(), orderbook.Order{
		ID:     req.ID,
		Side:   req.Side,
		Type:   req.Type,
		Flag:   req.Flag,
		Price:  price,
		Volume: volume,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCommandResponse(res))
}

func (s *Server) changeOrder(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(w, r)
	if !ok {
		return
	}
	var req ChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	price, volume, err := s.amounts(req.Price, req.Volume)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := m.Change(r.Context(), orderbook.Order{
		ID:     chi.URLParam(r, "id"),
		Price:  price,
		Volume: volume,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCommandResponse(res))
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(w, r)
	if !ok {
		return
	}
	res, err := m.CancelID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCommandResponse(res))
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(w, r)
	if !ok {
		return
	}
	orders, err := m.Orders(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if orders == nil {
		orders = []orderbook.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(w, r)
	if !ok {
		return
	}
	o, err := m.Lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) getTop(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(w, r)
	if !ok {
		return
	}
	q, err := m.Top(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) getSpread(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(w, r)
	if !ok {
		return
	}
	spread, err := m.Spread(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"spread": spread})
}

func (s *Server) getLevels(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(w, r)
	if !ok {
		return
	}
	depth := 0
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, fmt.Errorf("%w: depth must be a non-negative integer", errBadRequest))
			return
		}
		depth = n
	}
	d, err := m.Depth(r.Context(), depth)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) getLevelByRank(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(w, r)
	if !ok {
		return
	}
	rank, err := strconv.Atoi(chi.URLParam(r, "rank"))
	if err != nil || rank < 1 {
		s.writeError(w, fmt.Errorf("%w: rank must be a positive integer", errBadRequest))
		return
	}
	q, err := m.LevelByRank(r.Context(), rank)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) getPrice(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(w, r)
	if !ok {
		return
	}
	price, err := decimal.NewFromString(chi.URLParam(r, "price"))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: price must be a decimal", errBadRequest))
		return
	}
	levels, err := m.LevelsAtPrice(r.Context(), price.InexactFloat64())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if levels == nil {
		levels = []orderbook.LevelSnapshot{}
	}
	writeJSON(w, http.StatusOK, levels)
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		s.writeError(w, fmt.Errorf("%w: snapshots are not configured", errNotFound))
		return
	}
	snap, err := s.snapshots.Load(r.Context(), chi.URLParam(r, "instrument"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) getDebug(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(w, r)
	if !ok {
		return
	}
	out, err := m.Render(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	instrument := r.URL.Query().Get("instrument")
	var m *engine.Market
	if instrument != "" {
		var err error
		if m, err = s.engine.Market(instrument); err != nil {
			s.writeError(w, err)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := newClient(s.hub, conn, instrument)
	s.hub.Register(client)

	if m != nil {
		if depth, err := m.Depth(r.Context(), 0); err == nil {
			client.sendJSON(Message{Type: MessageDepth, Instrument: instrument, Depth: &depth})
		}
	}

	go client.WritePump()
	go client.ReadPump()
}

// Shutdown stops the server's background goroutines.
func (s *Server) Shutdown() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	s.hub.Stop()
}

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, orderbook.ErrInvalidOrder):
		return http.StatusBadRequest
	case errors.Is(err, errNotFound),
		errors.Is(err, orderbook.ErrOrderNotFound),
		errors.Is(err, orderbook.ErrNoLiquidity),
		errors.Is(err, engine.ErrUnknownInstrument),
		errors.Is(err, snapshot.ErrNoSnapshot):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrMarketHalted), errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(err, logger.NewField("status", status))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
