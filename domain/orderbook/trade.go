package orderbook

// TradeInfo is one leg of an execution.
type TradeInfo struct {
	OrderID  uint64
	Price    int64
	Quantity int64
}

// Trade is an immutable execution record. Each leg keeps the price of the
// level it rested on; Price is the canonical execution price, taken from
// the maker (the order that reached the book first).
type Trade struct {
	Bid      TradeInfo
	Ask      TradeInfo
	Price    int64
	Quantity int64
	Maker    Side
}

func newTrade(bid, ask *Order, qty int64) Trade {
	t := Trade{
		Bid:      TradeInfo{OrderID: bid.ID, Price: bid.Price, Quantity: qty},
		Ask:      TradeInfo{OrderID: ask.ID, Price: ask.Price, Quantity: qty},
		Quantity: qty,
	}
	if bid.Seq < ask.Seq {
		t.Maker, t.Price = Buy, bid.Price
	} else {
		t.Maker, t.Price = Sell, ask.Price
	}
	return t
}
