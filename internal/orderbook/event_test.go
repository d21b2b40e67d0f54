package orderbook

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeDecodesByKind(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	maker := Order{ID: "m", Side: Sell, Price: 10, Volume: 5, Instrument: testInstrument, Timestamp: ts}
	taker := Order{ID: "t", Side: Buy, Type: Market, Flag: ImmediateOrCancel, Volume: 5, Instrument: testInstrument, Timestamp: ts}

	in := []Event{
		OpenEvent{Order: maker},
		TradeEvent{Sequence: 3, Price: 10, Volume: 5, Maker: maker, Taker: taker},
		FillEvent{Order: taker, Volume: 5, AveragePrice: 10},
		CancelEvent{Order: taker, Reason: "canceled"},
		ChangeEvent{Order: maker, PreviousPrice: 9, PreviousOpen: 2},
	}

	data, err := json.Marshal(Wrap(in))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"trade"`)
	assert.Contains(t, string(data), `"side":"sell"`)

	var out []Envelope
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, len(in))
	for i, env := range out {
		assert.Equal(t, in[i], env.Event)
	}
}

func TestEnvelopeRejectsUnknownKind(t *testing.T) {
	var env Envelope
	err := json.Unmarshal([]byte(`{"type":"bogus","data":{}}`), &env)
	assert.Error(t, err)
}

func TestSideText(t *testing.T) {
	var s Side
	require.NoError(t, s.UnmarshalText([]byte("ASK")))
	assert.Equal(t, Sell, s)
	assert.Error(t, s.UnmarshalText([]byte("up")))

	_, err := Side(4).MarshalText()
	assert.Error(t, err)
}
