package orderbook

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrder     = errors.New("orderbook: invalid order")
	ErrDuplicateOrderID = errors.New("orderbook: duplicate order id")
	ErrInvalidDepth     = errors.New("orderbook: invalid depth level")
)

// OverfillError reports an attempt to fill an order beyond its remaining
// quantity. Inside the matcher it means the book is corrupt.
type OverfillError struct {
	OrderID   uint64
	Qty       int64
	Remaining int64
}

func (e *OverfillError) Error() string {
	return fmt.Sprintf(
		"orderbook: order %d cannot be filled for %d, only %d remaining",
		e.OrderID, e.Qty, e.Remaining,
	)
}
