package orderbook

import "fmt"

type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// SyntheticID is carried by orders the depth-merge path fabricates.
const SyntheticID uint64 = 0

// Order is a pure domain entity. Orders resting in a Book are owned by
// its arena; callers only ever hold copies.
type Order struct {
	ID        uint64
	Price     int64
	Qty       int64
	Remaining int64
	Side      Side

	// Seq is the arrival sequence assigned by the book on admission.
	Seq uint64

	next handle
	prev handle
}

// NewOrder returns an unfilled order ready for Book.Add.
func NewOrder(id uint64, side Side, price, qty int64) Order {
	return Order{
		ID:        id,
		Price:     price,
		Qty:       qty,
		Remaining: qty,
		Side:      side,
	}
}

// Validate checks the fields a participant order must carry before it can
// be admitted.
func (o Order) Validate() error {
	if o.ID == SyntheticID || o.Price <= 0 || o.Qty <= 0 || !o.Side.Valid() {
		return fmt.Errorf("%w: id=%d side=%v price=%d qty=%d",
			ErrInvalidOrder, o.ID, o.Side, o.Price, o.Qty)
	}
	return nil
}

func (o *Order) IsFilled() bool {
	return o.Remaining == 0
}

func (o *Order) Synthetic() bool {
	return o.ID == SyntheticID
}

// Fill reduces the remaining quantity by qty. A fill larger than the
// remaining quantity leaves the order untouched and returns an
// *OverfillError.
func (o *Order) Fill(qty int64) error {
	if qty < 0 || qty > o.Remaining {
		return &OverfillError{OrderID: o.ID, Qty: qty, Remaining: o.Remaining}
	}
	o.Remaining -= qty
	return nil
}
