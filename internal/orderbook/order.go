package orderbook

import (
	"fmt"
	"strings"
	"time"
)

// Instrument identifies the tradable the book is for. Compared by value.
type Instrument struct {
	Name string `json:"name"`
}

func (i Instrument) String() string { return i.Name }

// Venue identifies the exchange the book belongs to. The zero value means
// "unspecified".
type Venue struct {
	Name string `json:"name"`
}

func (v Venue) String() string { return v.Name }

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the side an order on s matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) valid() bool { return s == Buy || s == Sell }

func (s Side) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("invalid side %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "buy", "bid":
		*s = Buy
	case "sell", "ask":
		*s = Sell
	default:
		return fmt.Errorf("side must be 'buy' or 'sell', got %q", text)
	}
	return nil
}

type OrderType int

const (
	Limit OrderType = iota
	Market
)

func (t OrderType) String() string {
	if t == Market {
		return "market"
	}
	return "limit"
}

func (t OrderType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *OrderType) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "", "limit":
		*t = Limit
	case "market":
		*t = Market
	default:
		return fmt.Errorf("type must be 'limit' or 'market', got %q", text)
	}
	return nil
}

// OrderFlag modifies how an aggressing order treats unmatched volume.
type OrderFlag int

const (
	NoFlag OrderFlag = iota
	// ImmediateOrCancel matches what it can and cancels the rest.
	ImmediateOrCancel
	// FillOrKill either fills completely on arrival or is canceled untouched.
	FillOrKill
	// PostOnly is rejected if it would take liquidity.
	PostOnly
)

func (f OrderFlag) String() string {
	switch f {
	case ImmediateOrCancel:
		return "ioc"
	case FillOrKill:
		return "fok"
	case PostOnly:
		return "post_only"
	default:
		return "none"
	}
}

func (f OrderFlag) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *OrderFlag) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "", "none":
		*f = NoFlag
	case "ioc":
		*f = ImmediateOrCancel
	case "fok":
		*f = FillOrKill
	case "post_only", "postonly":
		*f = PostOnly
	default:
		return fmt.Errorf("unknown order flag %q", text)
	}
	return nil
}

type Order struct {
	ID         string     `json:"id"`
	Side       Side       `json:"side"`
	Type       OrderType  `json:"type"`
	Flag       OrderFlag  `json:"flag"`
	Price      float64    `json:"price"`
	Volume     float64    `json:"volume"`    // requested
	Remaining  float64    `json:"remaining"` // still open
	Instrument Instrument `json:"instrument"`
	Venue      Venue      `json:"venue"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Filled returns how much of the requested volume has traded.
func (o *Order) Filled() float64 {
	return o.Volume - o.Remaining
}

func (o *Order) IsFilled() bool {
	return o.Remaining <= 0
}

// crosses reports whether o is marketable against a resting price.
func (o *Order) crosses(price float64) bool {
	if o.Type == Market {
		return true
	}
	if o.Side == Buy {
		return o.Price >= price
	}
	return o.Price <= price
}

func (o *Order) String() string {
	return fmt.Sprintf("%s %s %g@%g (%g open) [%s]", o.ID, o.Side, o.Volume, o.Price, o.Remaining, o.Type)
}
