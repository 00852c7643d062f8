package depth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossbook/adapter/scale"
	"crossbook/domain/orderbook"
)

func newDecoder() *Decoder {
	return NewDecoder(scale.DefaultPrice, scale.DefaultQuantity)
}

func TestDecodeDiffDepth(t *testing.T) {
	u, err := newDecoder().Decode([]byte(`{
		"e": "depthUpdate", "E": 1700000000000, "s": "BTCUSDT", "U": 1, "u": 2,
		"b": [["100.00", "1.5"], ["99.99", "0.000"]],
		"a": [["100.015", "0.0019"]]
	}`))
	require.NoError(t, err)
	assert.Equal(t, []orderbook.DepthLevel{{Price: 10000, Qty: 1500}, {Price: 9999, Qty: 0}}, u.Bids)
	assert.Equal(t, []orderbook.DepthLevel{{Price: 10001, Qty: 1}}, u.Asks)
}

func TestDecodeCombinedStream(t *testing.T) {
	u, err := newDecoder().Decode([]byte(`{"stream":"btcusdt@depth","data":{"b":[],"a":[["1","2"]]}}`))
	require.NoError(t, err)
	assert.Empty(t, u.Bids)
	assert.Equal(t, []orderbook.DepthLevel{{Price: 100, Qty: 2000}}, u.Asks)
}

func TestDecodeNotDepth(t *testing.T) {
	_, err := newDecoder().Decode([]byte(`{"result":null,"id":1}`))
	assert.ErrorIs(t, err, ErrNotDepth)
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{
		`{"b":[["1"]]}`,
		`{"b":[["x","1"]]}`,
		`{"a":[["1","y"]]}`,
		`{"b":[["1e200000000","1"]]}`,
		`{"a":[["1","-1e200000000"]]}`,
		`not json`,
	} {
		_, err := newDecoder().Decode([]byte(raw))
		assert.Error(t, err, raw)
		assert.NotErrorIs(t, err, ErrNotDepth, raw)
	}
}

func TestDecodedUpdateMergesIntoBook(t *testing.T) {
	u, err := newDecoder().Decode([]byte(`{"b":[["100.00","2"]],"a":[["101.00","3"]]}`))
	require.NoError(t, err)

	book := orderbook.NewBook()
	require.NoError(t, book.MergeDepth(u))
	d := book.Depth(0)
	require.Len(t, d.Bids, 1)
	require.Len(t, d.Asks, 1)
	assert.Equal(t, orderbook.Level{Price: 10000, Quantity: 2000, Orders: 1}, d.Bids[0])
	assert.Equal(t, orderbook.Level{Price: 10100, Quantity: 3000, Orders: 1}, d.Asks[0])
}
