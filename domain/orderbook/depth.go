package orderbook

import "fmt"

// DepthLevel is one aggregated (price, quantity) entry of an external
// depth snapshot or diff.
type DepthLevel struct {
	Price int64
	Qty   int64
}

type DepthUpdate struct {
	Bids []DepthLevel
	Asks []DepthLevel
}

func (u DepthUpdate) Empty() bool {
	return len(u.Bids) == 0 && len(u.Asks) == 0
}

// MergeDepth mirrors an external aggregated view into the book. For every
// entry a zero quantity removes the level; a positive quantity replaces
// the whole level, including participant orders, with one synthetic order
// of that quantity. Bids are applied before asks.
//
// MergeDepth never matches, so the book may be left crossed until the next
// admission. Invalid entries reject the whole update before any change.
func (b *Book) MergeDepth(u DepthUpdate) error {
	for _, l := range u.Bids {
		if err := checkDepthLevel(Buy, l); err != nil {
			return err
		}
	}
	for _, l := range u.Asks {
		if err := checkDepthLevel(Sell, l); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, l := range u.Bids {
		b.replaceLevel(b.bids, l)
	}
	for _, l := range u.Asks {
		b.replaceLevel(b.asks, l)
	}
	b.version++
	return nil
}

func checkDepthLevel(side Side, l DepthLevel) error {
	if l.Price <= 0 || l.Qty < 0 {
		return fmt.Errorf("%w: %v price=%d qty=%d", ErrInvalidDepth, side, l.Price, l.Qty)
	}
	return nil
}

func (b *Book) replaceLevel(s *bookSide, l DepthLevel) {
	s.clear(b.orders, l.Price)
	if l.Qty == 0 {
		return
	}

	b.seq++
	h := b.orders.alloc(Order{
		ID:        SyntheticID,
		Price:     l.Price,
		Qty:       l.Qty,
		Remaining: l.Qty,
		Side:      s.side,
		Seq:       b.seq,
	})
	s.insert(b.orders, h)
}

// ---- aggregated view ----

// Level is the aggregated remaining quantity at one price.
type Level struct {
	Price    int64
	Quantity int64
	Orders   int
}

// Depth is a consistent aggregated view of both sides, best price first.
type Depth struct {
	Bids    []Level
	Asks    []Level
	Version uint64
}

// Depth returns up to limit levels per side; limit <= 0 means all.
func (b *Book) Depth(limit int) Depth {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Depth{
		Bids:    collectLevels(b.bids, limit),
		Asks:    collectLevels(b.asks, limit),
		Version: b.version,
	}
}

func collectLevels(s *bookSide, limit int) []Level {
	n := s.levels.Size()
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Level, 0, n)
	s.walk(func(lvl *PriceLevel) bool {
		out = append(out, Level{Price: lvl.Price, Quantity: lvl.TotalQty, Orders: lvl.OrderCount})
		return len(out) < n
	})
	return out
}

// Orders returns copies of every resting order at price on side, in time
// priority.
func (b *Book) Orders(side Side, price int64) []Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	lvl := b.sideOf(side).levels.FindLevel(price)
	if lvl == nil {
		return nil
	}
	out := make([]Order, 0, lvl.OrderCount)
	lvl.each(b.orders, func(_ handle, o *Order) bool {
		c := *o
		c.next, c.prev = nilHandle, nilHandle
		out = append(out, c)
		return true
	})
	return out
}
