package message

import "crossbook/domain/orderbook"

type LevelView struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
	Orders   int   `json:"orders"`
}

// BookView is the wire form of an aggregated book, best price first.
type BookView struct {
	Instrument string      `json:"instrument"`
	Version    uint64      `json:"version"`
	Bids       []LevelView `json:"bids"`
	Asks       []LevelView `json:"asks"`
}

func Book(instrument string, d orderbook.Depth) BookView {
	return BookView{
		Instrument: instrument,
		Version:    d.Version,
		Bids:       levelViews(d.Bids),
		Asks:       levelViews(d.Asks),
	}
}

func levelViews(in []orderbook.Level) []LevelView {
	out := make([]LevelView, len(in))
	for i, l := range in {
		out[i] = LevelView{Price: l.Price, Quantity: l.Quantity, Orders: l.Orders}
	}
	return out
}
