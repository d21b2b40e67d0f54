package orderbook

import (
	"fmt"
	"slices"
	"strings"
)

// String renders the ladder with asks above bids, the spread in the middle.
func (b *OrderBook) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s", b.instrument)
	if b.venue != (Venue{}) {
		fmt.Fprintf(&sb, "@%s", b.venue)
	}
	sb.WriteString("\n")

	asks := summarize(b.asks, 0)
	slices.Reverse(asks)
	for _, lvl := range asks {
		fmt.Fprintf(&sb, "%12s %10g x %-8g (%d)\n", "", lvl.Price, lvl.Volume, lvl.Orders)
	}
	sb.WriteString(strings.Repeat("-", 44) + "\n")
	for _, lvl := range summarize(b.bids, 0) {
		fmt.Fprintf(&sb, "%12g x %-10g (%d)\n", lvl.Volume, lvl.Price, lvl.Orders)
	}
	return sb.String()
}
