package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"lob/internal/logger"
	"lob/internal/orderbook"

	"github.com/google/uuid"
)

var (
	ErrMarketHalted = errors.New("market halted")
	ErrClosed       = errors.New("market closed")
)

// Result is what a command returns to its caller.
type Result struct {
	Sequence uint64            `json:"sequence"`
	Order    orderbook.Order   `json:"order"`
	Events   []orderbook.Event `json:"-"`
}

type job struct {
	fn   func() error
	done chan error
}

// Market owns one book and the goroutine that serializes every call on it.
type Market struct {
	name  string
	book  *orderbook.OrderBook
	sinks []Sink
	log   *logger.Logger

	depth  int
	verify bool

	ctx     context.Context
	jobs    chan job
	quit    chan struct{}
	stopped chan struct{}

	// loop goroutine only
	seq     uint64
	pending []orderbook.Event

	mu     sync.Mutex
	halted error
}

func newMarket(ctx context.Context, name string, cfg settings) *Market {
	m := &Market{
		name:    name,
		sinks:   cfg.sinks,
		log:     cfg.log.With(logger.NewField("instrument", name)),
		depth:   cfg.depth,
		verify:  cfg.verify,
		ctx:     ctx,
		jobs:    make(chan job),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	var opts []orderbook.Option
	if cfg.venue != "" {
		opts = append(opts, orderbook.WithVenue(orderbook.Venue{Name: cfg.venue}))
	}
	opts = append(opts, orderbook.WithCallback(func(e orderbook.Event) {
		m.pending = append(m.pending, e)
	}))
	m.book = orderbook.New(orderbook.Instrument{Name: name}, opts...)
	return m
}

func (m *Market) Name() string { return m.name }

func (m *Market) run() {
	defer close(m.stopped)
	for {
		select {
		case j := <-m.jobs:
			m.exec(j)
		case <-m.quit:
			return
		}
	}
}

func (m *Market) stop() {
	close(m.quit)
	<-m.stopped
}

// exec runs one job. A panic from the book means its state can no longer be
// trusted, so the market halts and rejects everything from then on.
func (m *Market) exec(j job) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		var cause error
		switch v := r.(type) {
		case error:
			cause = v
		default:
			cause = fmt.Errorf("%v", v)
		}
		m.halt(cause)
		j.done <- m.Halted()
	}()
	j.done <- j.fn()
}

func (m *Market) halt(cause error) {
	m.mu.Lock()
	m.halted = fmt.Errorf("%w: %s: %w", ErrMarketHalted, m.name, cause)
	m.mu.Unlock()
	m.log.Error(cause, logger.NewField("event", "market_halted"), logger.NewField("sequence", m.seq))
}

// Halted returns the reason the market stopped accepting calls, or nil.
func (m *Market) Halted() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// do runs fn on the market goroutine and waits for it.
func (m *Market) do(ctx context.Context, fn func() error) error {
	if err := m.Halted(); err != nil {
		return err
	}
	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case m.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.quit:
		return ErrClosed
	}
	// Accepted jobs always run to completion.
	return <-j.done
}

func (m *Market) Submit(ctx context.Context, o orderbook.Order) (Result, error) {
	return m.Apply(ctx, Command{Kind: CommandAdd, Order: o})
}

func (m *Market) Change(ctx context.Context, o orderbook.Order) (Result, error) {
	return m.Apply(ctx, Command{Kind: CommandChange, Order: o})
}

func (m *Market) Cancel(ctx context.Context, o orderbook.Order) (Result, error) {
	return m.Apply(ctx, Command{Kind: CommandCancel, Order: o})
}

// CancelID cancels a resting order known only by id.
func (m *Market) CancelID(ctx context.Context, id string) (Result, error) {
	var res Result
	err := m.do(ctx, func() error {
		o, err := m.book.Lookup(id)
		if err != nil {
			return err
		}
		res, err = m.apply(Command{Kind: CommandCancel, Order: o}, true)
		return err
	})
	return res, err
}

// Apply executes cmd and fans the resulting batch out to every sink.
func (m *Market) Apply(ctx context.Context, cmd Command) (Result, error) {
	var res Result
	err := m.do(ctx, func() error {
		var err error
		res, err = m.apply(cmd, true)
		return err
	})
	return res, err
}

func (m *Market) apply(cmd Command, publish bool) (Result, error) {
	if cmd.Kind == CommandAdd {
		// Resolve defaults here so the journaled command replays identically.
		if cmd.Order.ID == "" {
			cmd.Order.ID = uuid.New().String()
		}
		if cmd.Order.Timestamp.IsZero() {
			cmd.Order.Timestamp = time.Now().UTC()
		}
	}

	m.pending = m.pending[:0]
	var (
		out orderbook.Order
		err error
	)
	switch cmd.Kind {
	case CommandAdd:
		out, err = m.book.Add(cmd.Order)
	case CommandChange:
		out, err = m.book.Change(cmd.Order)
	case CommandCancel:
		out = cmd.Order
		if found, ferr := m.book.Find(cmd.Order); ferr == nil {
			out = found
		}
		err = m.book.Cancel(cmd.Order)
	default:
		err = fmt.Errorf("%w: unknown command %q", orderbook.ErrInvalidOrder, cmd.Kind)
	}
	if err != nil {
		return Result{}, err
	}
	if m.verify {
		if verr := m.book.Validate(); verr != nil {
			panic(&orderbook.InvariantError{Instrument: m.book.Instrument(), Detail: verr.Error()})
		}
	}

	m.seq++
	events := slices.Clone(m.pending)
	res := Result{Sequence: m.seq, Order: out, Events: events}
	if !publish {
		return res, nil
	}

	batch := Batch{
		Instrument: m.name,
		Sequence:   m.seq,
		Command:    cmd,
		Result:     out,
		Events:     events,
		Depth:      m.book.Levels(m.depth),
		Time:       time.Now().UTC(),
	}
	for _, s := range m.sinks {
		if err := s.Publish(m.ctx, batch); err != nil {
			m.log.Error(err,
				logger.NewField("sequence", batch.Sequence),
				logger.NewField("sink", fmt.Sprintf("%T", s)),
			)
		}
	}
	m.log.Debug("command applied",
		logger.NewField("kind", cmd.Kind),
		logger.NewField("order", out.ID),
		logger.NewField("sequence", m.seq),
		logger.NewField("events", len(events)),
	)
	return res, nil
}

// replay rebuilds the book from journaled entries without publishing.
func (m *Market) replay(ctx context.Context, entries []Entry) error {
	return m.do(ctx, func() error {
		for _, e := range entries {
			if e.Sequence != m.seq+1 {
				return fmt.Errorf("replay %s: expected sequence %d, got %d", m.name, m.seq+1, e.Sequence)
			}
			if _, err := m.apply(e.Command, false); err != nil {
				return fmt.Errorf("replay %s sequence %d: %w", m.name, e.Sequence, err)
			}
		}
		return nil
	})
}

// Sequence returns the number of commands applied so far.
func (m *Market) Sequence(ctx context.Context) (uint64, error) {
	var seq uint64
	err := m.do(ctx, func() error {
		seq = m.seq
		return nil
	})
	return seq, err
}

func (m *Market) Find(ctx context.Context, o orderbook.Order) (orderbook.Order, error) {
	var out orderbook.Order
	err := m.do(ctx, func() error {
		var err error
		out, err = m.book.Find(o)
		return err
	})
	return out, err
}

func (m *Market) Lookup(ctx context.Context, id string) (orderbook.Order, error) {
	var out orderbook.Order
	err := m.do(ctx, func() error {
		var err error
		out, err = m.book.Lookup(id)
		return err
	})
	return out, err
}

func (m *Market) Top(ctx context.Context) (orderbook.Quote, error) {
	var q orderbook.Quote
	err := m.do(ctx, func() error {
		q = m.book.TopOfBook()
		return nil
	})
	return q, err
}

func (m *Market) Spread(ctx context.Context) (float64, error) {
	var spread float64
	err := m.do(ctx, func() error {
		var err error
		spread, err = m.book.Spread()
		return err
	})
	return spread, err
}

func (m *Market) LevelByRank(ctx context.Context, rank int) (orderbook.Quote, error) {
	var q orderbook.Quote
	err := m.do(ctx, func() error {
		q = m.book.LevelByRank(rank)
		return nil
	})
	return q, err
}

func (m *Market) LevelsAtPrice(ctx context.Context, price float64) ([]orderbook.LevelSnapshot, error) {
	var out []orderbook.LevelSnapshot
	err := m.do(ctx, func() error {
		out = m.book.LevelsAtPrice(price)
		return nil
	})
	return out, err
}

// Depth returns up to n levels per side; n <= 0 uses the market default.
func (m *Market) Depth(ctx context.Context, n int) (orderbook.Depth, error) {
	if n <= 0 {
		n = m.depth
	}
	var d orderbook.Depth
	err := m.do(ctx, func() error {
		d = m.book.Levels(n)
		return nil
	})
	return d, err
}

// Orders returns every resting order in traversal order.
func (m *Market) Orders(ctx context.Context) ([]orderbook.Order, error) {
	var out []orderbook.Order
	err := m.do(ctx, func() error {
		out = slices.Collect(m.book.All())
		return nil
	})
	return out, err
}

func (m *Market) Render(ctx context.Context) (string, error) {
	var s string
	err := m.do(ctx, func() error {
		s = m.book.String()
		return nil
	})
	return s, err
}

// Validate runs the book's structural check on the market goroutine.
func (m *Market) Validate(ctx context.Context) error {
	return m.do(ctx, func() error {
		return m.book.Validate()
	})
}
