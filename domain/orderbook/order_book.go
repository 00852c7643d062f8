package orderbook

import (
	"fmt"
	"io"
	"sync"
)

// bookSide is one ordered collection of price levels. Bids are best at
// the maximum price, asks at the minimum.
type bookSide struct {
	side   Side
	levels *RBTree
}

func newBookSide(side Side) *bookSide {
	return &bookSide{side: side, levels: NewRBTree()}
}

func (s *bookSide) best() *PriceLevel {
	if s.side == Buy {
		return s.levels.MaxLevel()
	}
	return s.levels.MinLevel()
}

// walk visits levels best to worst.
func (s *bookSide) walk(fn func(*PriceLevel) bool) {
	if s.side == Buy {
		s.levels.ForEachDescending(fn)
		return
	}
	s.levels.ForEachAscending(fn)
}

func (s *bookSide) insert(a *arena, h handle) {
	s.levels.UpsertLevel(a.get(h).Price).enqueue(a, h)
}

// retireHead pops and frees the head order of lvl, dropping the level
// once its queue is empty.
func (s *bookSide) retireHead(a *arena, lvl *PriceLevel) {
	a.release(lvl.popHead(a))
	if lvl.Empty() {
		s.levels.DeleteLevel(lvl.Price)
	}
}

// clear frees every order at price and removes the level.
func (s *bookSide) clear(a *arena, price int64) {
	lvl := s.levels.FindLevel(price)
	if lvl == nil {
		return
	}
	for !lvl.Empty() {
		a.release(lvl.popHead(a))
	}
	s.levels.DeleteLevel(price)
}

// Book is a single-instrument limit order book. It is safe for concurrent
// use; all operations are serialized by one exclusive lock.
type Book struct {
	mu sync.Mutex

	bids   *bookSide
	asks   *bookSide
	orders *arena

	seq     uint64 // arrival sequence
	version uint64 // bumped on every mutation
}

func NewBook() *Book {
	return &Book{
		bids:   newBookSide(Buy),
		asks:   newBookSide(Sell),
		orders: newArena(1024),
	}
}

func (b *Book) sideOf(s Side) *bookSide {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// ---- admission ----

// Add admits a validated order at the tail of its price level and runs the
// matcher to exhaustion. The returned trades are in execution order.
//
// The order is rejected, and the book left untouched, when it carries the
// reserved synthetic ID, a non-positive price or quantity, an unknown side,
// or the ID of an order still resting in the book.
func (b *Book) Add(o Order) ([]Trade, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.orders.lookup(o.ID); ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateOrderID, o.ID)
	}

	b.seq++
	b.version++
	o.Remaining = o.Qty
	o.Seq = b.seq

	h := b.orders.alloc(o)
	b.sideOf(o.Side).insert(b.orders, h)

	return b.match(), nil
}

// ---- matching ----

// match crosses the best bid against the best ask until the book is no
// longer crossed. Equal prices trade.
func (b *Book) match() []Trade {
	var trades []Trade
	for {
		bidLvl := b.bids.best()
		askLvl := b.asks.best()
		if bidLvl == nil || askLvl == nil || bidLvl.Price < askLvl.Price {
			return trades
		}

		bid := b.orders.get(bidLvl.head)
		ask := b.orders.get(askLvl.head)
		qty := min(bid.Remaining, ask.Remaining)

		mustFill(bid, qty)
		mustFill(ask, qty)
		bidLvl.TotalQty -= qty
		askLvl.TotalQty -= qty

		trades = append(trades, newTrade(bid, ask, qty))

		if bid.IsFilled() {
			b.bids.retireHead(b.orders, bidLvl)
		}
		if ask.IsFilled() {
			b.asks.retireHead(b.orders, askLvl)
		}
	}
}

// mustFill panics on overfill: the book can no longer be trusted.
func mustFill(o *Order, qty int64) {
	if err := o.Fill(qty); err != nil {
		panic(err)
	}
}

// ---- queries ----

// Resting reports whether a participant order with this ID is in the book.
func (b *Book) Resting(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.orders.lookup(id)
	return ok
}

// Lookup returns a copy of the resting participant order with the given ID.
func (b *Book) Lookup(id uint64) (Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.orders.lookup(id)
	if !ok {
		return Order{}, false
	}
	o := *b.orders.get(h)
	o.next, o.prev = nilHandle, nilHandle
	return o, true
}

// BestBid returns the highest bid price.
func (b *Book) BestBid() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bestPrice(b.bids)
}

// BestAsk returns the lowest ask price.
func (b *Book) BestAsk() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bestPrice(b.asks)
}

func bestPrice(s *bookSide) (int64, bool) {
	lvl := s.best()
	if lvl == nil {
		return 0, false
	}
	return lvl.Price, true
}

// Version increases on every mutation of the book.
func (b *Book) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

type Stats struct {
	BidLevels int
	AskLevels int
	Orders    int
	BestBid   int64
	BestAsk   int64
	Version   uint64
}

func (b *Book) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := Stats{
		BidLevels: b.bids.levels.Size(),
		AskLevels: b.asks.levels.Size(),
		Orders:    b.orders.live,
		Version:   b.version,
	}
	st.BestBid, _ = bestPrice(b.bids)
	st.BestAsk, _ = bestPrice(b.asks)
	return st
}

// Fprint writes the unfilled quantity of every level, bids then asks,
// best price first.
func (b *Book) Fprint(w io.Writer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}
	level := func(lvl *PriceLevel) bool {
		printf("Price: %d, Total Quantity: %d\n", lvl.Price, lvl.TotalQty)
		return err == nil
	}

	printf("Order Book:\n")
	printf("Bids:\n")
	b.bids.walk(level)
	printf("Asks:\n")
	b.asks.walk(level)
	return err
}
