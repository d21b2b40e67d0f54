package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceLevelEmpty(t *testing.T) {
	pl := NewPriceLevel(5)
	assert.True(t, pl.Empty())
	assert.Equal(t, 5.0, pl.Price())
	assert.Zero(t, pl.Volume())

	_, ok := pl.Front()
	assert.False(t, ok)
}

func TestPriceLevelQueue(t *testing.T) {
	pl := NewPriceLevel(5)
	a := &Order{ID: "a", Price: 5, Volume: 10, Remaining: 10}
	b := &Order{ID: "b", Price: 5, Volume: 11, Remaining: 11}
	pl.Add(a)
	pl.Add(b)

	assert.Equal(t, 2, pl.Len())
	assert.Equal(t, 21.0, pl.Volume())
	front, ok := pl.Front()
	require.True(t, ok)
	assert.Same(t, a, front)
	assert.Same(t, b, pl.At(1))

	require.NoError(t, pl.Remove(a))
	assert.Equal(t, 11.0, pl.Volume())
	front, _ = pl.Front()
	assert.Same(t, b, front)

	// identity, not equality
	clone := *b
	assert.ErrorIs(t, pl.Remove(&clone), ErrOrderNotFound)
	assert.Equal(t, 1, pl.Len())
}

func TestPriceLevelFill(t *testing.T) {
	pl := NewPriceLevel(5)
	a := &Order{ID: "a", Volume: 10, Remaining: 10}
	b := &Order{ID: "b", Volume: 4, Remaining: 4}
	pl.Add(a)
	pl.Add(b)

	pl.fill(a, 3)
	assert.Equal(t, 7.0, a.Remaining)
	assert.Equal(t, 11.0, pl.Volume())
	assert.Equal(t, 2, pl.Len())

	pl.fill(a, 7)
	assert.Zero(t, a.Remaining)
	assert.Equal(t, 1, pl.Len())
	front, _ := pl.Front()
	assert.Same(t, b, front)

	pl.fill(b, 4)
	assert.True(t, pl.Empty())
	assert.Zero(t, pl.Volume())
}

func TestPriceLevelResize(t *testing.T) {
	pl := NewPriceLevel(5)
	a := &Order{ID: "a", Volume: 10, Remaining: 10}
	b := &Order{ID: "b", Volume: 10, Remaining: 10}
	pl.Add(a)
	pl.Add(b)

	pl.resize(a, 25)
	assert.Equal(t, 35.0, pl.Volume())
	pl.resize(a, 1)
	assert.Equal(t, 11.0, pl.Volume())

	front, _ := pl.Front()
	assert.Same(t, a, front, "resize keeps queue position")

	got, idx := pl.find("b")
	assert.Same(t, b, got)
	assert.Equal(t, 1, idx)
	got, idx = pl.find("nope")
	assert.Nil(t, got)
	assert.Equal(t, -1, idx)
}

func TestPriceLevelSnapshotCopies(t *testing.T) {
	pl := NewPriceLevel(5)
	a := &Order{ID: "a", Side: Buy, Price: 5, Volume: 10, Remaining: 10}
	pl.Add(a)

	snap := pl.snapshot(Buy)
	snap.Orders[0].Remaining = 0
	assert.Equal(t, 10.0, a.Remaining)
	assert.Equal(t, LevelSummary{Price: 5, Volume: 10, Orders: 1}, pl.summary())
}
