package orderbook

import (
	"encoding/json"
	"fmt"
)

type EventKind int

const (
	EventOpen EventKind = iota
	EventCancel
	EventChange
	EventFill
	EventTrade
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventCancel:
		return "cancel"
	case EventChange:
		return "change"
	case EventFill:
		return "fill"
	case EventTrade:
		return "trade"
	default:
		return "unknown"
	}
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(text []byte) error {
	for c := EventOpen; c <= EventTrade; c++ {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", text)
}

// Event is one observable state change. The concrete type is one of
// OpenEvent, CancelEvent, ChangeEvent, FillEvent or TradeEvent.
type Event interface {
	Kind() EventKind
	event()
}

// OpenEvent reports an order (or its unmatched remainder) resting on the book.
type OpenEvent struct {
	Order Order `json:"order"`
}

// CancelEvent reports an order leaving the book, or an aggressor's unmatched
// remainder being discarded.
type CancelEvent struct {
	Order  Order  `json:"order"`
	Reason string `json:"reason,omitempty"`
}

// ChangeEvent carries the order's state after a modify. Remaining is zero when
// the modify removed it.
type ChangeEvent struct {
	Order         Order   `json:"order"`
	PreviousPrice float64 `json:"previous_price"`
	PreviousOpen  float64 `json:"previous_open"`
}

// FillEvent summarizes what an aggressing order traded during one command.
type FillEvent struct {
	Order        Order   `json:"order"`
	Volume       float64 `json:"volume"`
	AveragePrice float64 `json:"average_price"`
}

// TradeEvent is one execution between a resting maker and the aggressor.
// Order snapshots are taken after the execution.
type TradeEvent struct {
	Sequence uint64  `json:"sequence"`
	Price    float64 `json:"price"`
	Volume   float64 `json:"volume"`
	Maker    Order   `json:"maker"`
	Taker    Order   `json:"taker"`
}

func (OpenEvent) Kind() EventKind   { return EventOpen }
func (CancelEvent) Kind() EventKind { return EventCancel }
func (ChangeEvent) Kind() EventKind { return EventChange }
func (FillEvent) Kind() EventKind   { return EventFill }
func (TradeEvent) Kind() EventKind  { return EventTrade }

func (OpenEvent) event()   {}
func (CancelEvent) event() {}
func (ChangeEvent) event() {}
func (FillEvent) event()   {}
func (TradeEvent) event()  {}

// Envelope is the tagged wire form of an Event.
type Envelope struct {
	Kind  EventKind `json:"type"`
	Event Event     `json:"data"`
}

func Wrap(events []Event) []Envelope {
	out := make([]Envelope, len(events))
	for i, e := range events {
		out[i] = Envelope{Kind: e.Kind(), Event: e}
	}
	return out
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind EventKind       `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var ev Event
	var err error
	switch raw.Kind {
	case EventOpen:
		var v OpenEvent
		err = json.Unmarshal(raw.Data, &v)
		ev = v
	case EventCancel:
		var v CancelEvent
		err = json.Unmarshal(raw.Data, &v)
		ev = v
	case EventChange:
		var v ChangeEvent
		err = json.Unmarshal(raw.Data, &v)
		ev = v
	case EventFill:
		var v FillEvent
		err = json.Unmarshal(raw.Data, &v)
		ev = v
	case EventTrade:
		var v TradeEvent
		err = json.Unmarshal(raw.Data, &v)
		ev = v
	}
	if err != nil {
		return fmt.Errorf("decode %s event: %w", raw.Kind, err)
	}
	e.Kind = raw.Kind
	e.Event = ev
	return nil
}
