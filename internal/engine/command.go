package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lob/internal/orderbook"
)

type CommandKind string

const (
	CommandAdd    CommandKind = "add"
	CommandCancel CommandKind = "cancel"
	CommandChange CommandKind = "change"
)

// Command is one mutating call against a book, recorded in the form that
// reproduces it exactly on replay.
type Command struct {
	Kind  CommandKind     `json:"kind"`
	Order orderbook.Order `json:"order"`
}

// Entry is a journaled command with its market sequence number.
type Entry struct {
	Sequence uint64  `json:"sequence"`
	Command  Command `json:"command"`
}

// Batch is everything one applied command produced.
type Batch struct {
	Instrument string
	Sequence   uint64
	Command    Command
	Result     orderbook.Order
	Events     []orderbook.Event
	Depth      orderbook.Depth
	Time       time.Time
}

type batchJSON struct {
	Instrument string               `json:"instrument"`
	Sequence   uint64               `json:"sequence"`
	Command    Command              `json:"command"`
	Result     orderbook.Order      `json:"result"`
	Events     []orderbook.Envelope `json:"events"`
	Depth      orderbook.Depth      `json:"depth"`
	Time       time.Time            `json:"time"`
}

func (b Batch) MarshalJSON() ([]byte, error) {
	return json.Marshal(batchJSON{
		Instrument: b.Instrument,
		Sequence:   b.Sequence,
		Command:    b.Command,
		Result:     b.Result,
		Events:     orderbook.Wrap(b.Events),
		Depth:      b.Depth,
		Time:       b.Time,
	})
}

func (b *Batch) UnmarshalJSON(data []byte) error {
	var w batchJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode batch: %w", err)
	}
	events := make([]orderbook.Event, len(w.Events))
	for i, env := range w.Events {
		events[i] = env.Event
	}
	*b = Batch{
		Instrument: w.Instrument,
		Sequence:   w.Sequence,
		Command:    w.Command,
		Result:     w.Result,
		Events:     events,
		Depth:      w.Depth,
		Time:       w.Time,
	}
	return nil
}

// Sink receives every batch of every market, in sequence order per market.
// Publish is called from market goroutines and must be safe for concurrent
// use across instruments.
type Sink interface {
	Publish(ctx context.Context, b Batch) error
}

// Source yields the journaled commands of one instrument in sequence order.
type Source interface {
	Commands(ctx context.Context, instrument string) ([]Entry, error)
}
