package orderbook

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderFill(t *testing.T) {
	o := NewOrder(1, Buy, 10000, 100)
	require.False(t, o.IsFilled())

	require.NoError(t, o.Fill(40))
	assert.Equal(t, int64(60), o.Remaining)
	assert.Equal(t, int64(100), o.Qty)

	require.NoError(t, o.Fill(60))
	assert.True(t, o.IsFilled())
}

func TestOrderOverfillLeavesOrderUnchanged(t *testing.T) {
	o := NewOrder(7, Sell, 10000, 10)
	require.NoError(t, o.Fill(4))

	err := o.Fill(7)
	require.Error(t, err)

	var of *OverfillError
	require.True(t, errors.As(err, &of))
	assert.Equal(t, uint64(7), of.OrderID)
	assert.Equal(t, int64(7), of.Qty)
	assert.Equal(t, int64(6), of.Remaining)
	assert.Equal(t, int64(6), o.Remaining, "failed fill must not change the order")

	assert.Error(t, o.Fill(-1))
	assert.Equal(t, int64(6), o.Remaining)
}

func TestMustFillPanicsOnOverfill(t *testing.T) {
	o := NewOrder(3, Buy, 100, 5)
	assert.PanicsWithError(t,
		"orderbook: order 3 cannot be filled for 6, only 5 remaining",
		func() { mustFill(&o, 6) },
	)
	assert.Equal(t, int64(5), o.Remaining)
}

func TestSideString(t *testing.T) {
	assert.Equal(t, "BUY", Buy.String())
	assert.Equal(t, "SELL", Sell.String())
	assert.False(t, Side(0).Valid())
}

func TestTradeMakerPrice(t *testing.T) {
	bid := Order{ID: 1, Price: 10100, Seq: 1}
	ask := Order{ID: 2, Price: 10000, Seq: 2}

	tr := newTrade(&bid, &ask, 5)
	assert.Equal(t, Buy, tr.Maker)
	assert.Equal(t, int64(10100), tr.Price)
	assert.Equal(t, int64(10100), tr.Bid.Price)
	assert.Equal(t, int64(10000), tr.Ask.Price)
	assert.Equal(t, tr.Bid.Quantity, tr.Ask.Quantity)

	bid.Seq, ask.Seq = 9, 4
	tr = newTrade(&bid, &ask, 5)
	assert.Equal(t, Sell, tr.Maker)
	assert.Equal(t, int64(10000), tr.Price)
}
