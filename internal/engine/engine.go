// Package engine runs one order book per instrument, each on its own
// goroutine, and fans every applied command out to a set of sinks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"lob/internal/logger"

	pkgerrors "github.com/pkg/errors"
)

var ErrUnknownInstrument = errors.New("unknown instrument")

type settings struct {
	log    *logger.Logger
	sinks  []Sink
	venue  string
	depth  int
	verify bool
}

type Option func(*settings)

// WithSinks appends sinks. They receive batches in the order given.
func WithSinks(sinks ...Sink) Option {
	return func(s *settings) { s.sinks = append(s.sinks, sinks...) }
}

func WithVenue(venue string) Option {
	return func(s *settings) { s.venue = venue }
}

// WithDepth sets how many levels per side a batch carries.
func WithDepth(n int) Option {
	return func(s *settings) { s.depth = n }
}

// WithVerify runs the book's full consistency check after every command.
func WithVerify(on bool) Option {
	return func(s *settings) { s.verify = on }
}

type Engine struct {
	cfg    settings
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	markets map[string]*Market
	closed  bool
}

func New(log *logger.Logger, opts ...Option) *Engine {
	cfg := settings{log: log, depth: 10}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		markets: make(map[string]*Market),
	}
}

// Open returns the market for name, starting it if needed.
func (e *Engine) Open(name string) (*Market, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrUnknownInstrument)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if m, ok := e.markets[name]; ok {
		return m, nil
	}
	m := newMarket(e.ctx, name, e.cfg)
	e.markets[name] = m
	go m.run()
	e.cfg.log.Info("market opened", logger.NewField("instrument", name))
	return m, nil
}

func (e *Engine) Market(name string) (*Market, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.markets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, name)
	}
	return m, nil
}

// Instruments lists open markets by name.
func (e *Engine) Instruments() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.markets))
	for name := range e.markets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Replay rebuilds every open market from src. Markets must be opened first
// and must not have accepted commands yet.
func (e *Engine) Replay(ctx context.Context, src Source) error {
	for _, name := range e.Instruments() {
		m, err := e.Market(name)
		if err != nil {
			return err
		}
		entries, err := src.Commands(ctx, name)
		if err != nil {
			return pkgerrors.Wrapf(err, "load commands for %s", name)
		}
		if len(entries) == 0 {
			continue
		}
		if err := m.replay(ctx, entries); err != nil {
			return err
		}
		e.cfg.log.Info("market replayed",
			logger.NewField("instrument", name),
			logger.NewField("commands", len(entries)),
		)
	}
	return nil
}

// Close stops every market goroutine and waits for them to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	markets := slices.Collect(maps.Values(e.markets))
	e.mu.Unlock()

	for _, m := range markets {
		m.stop()
	}
	e.cancel()
}
