// Package message validates order requests from the wire and builds the
// response envelope.
package message

import (
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"crossbook/adapter/scale"
	"crossbook/domain/orderbook"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	NoTradeMessage = "Order added, no trades executed"
)

// ValidationError is a request rejected before it reached the book.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

var requiredFields = []string{"OrderId", "Pair", "Price", "Quantity", "Side"}

// Adapter turns request bodies into validated orders for one instrument.
type Adapter struct {
	Pair     string
	Price    scale.Factor
	Quantity scale.Factor
}

func New(pair string, price, qty scale.Factor) *Adapter {
	return &Adapter{Pair: pair, Price: price, Quantity: qty}
}

// Decode validates body and returns the order it describes. Checks run in
// a fixed order and the first failure is returned as a *ValidationError.
func (a *Adapter) Decode(body []byte) (orderbook.Order, error) {
	if !gjson.ValidBytes(body) {
		return orderbook.Order{}, invalid("", "Invalid message format")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return orderbook.Order{}, invalid("", "Invalid message format")
	}

	fields := root.Map()
	for _, name := range requiredFields {
		if _, ok := fields[name]; !ok {
			return orderbook.Order{}, invalid(name, "Invalid message format: missing %s", name)
		}
	}

	if pair := fields["Pair"]; pair.Type != gjson.String || pair.Str != a.Pair {
		return orderbook.Order{}, invalid("Pair", "Unsupported pair %s", pair.String())
	}

	var side orderbook.Side
	switch s := fields["Side"]; {
	case s.Type == gjson.String && s.Str == "BUY":
		side = orderbook.Buy
	case s.Type == gjson.String && s.Str == "SELL":
		side = orderbook.Sell
	default:
		return orderbook.Order{}, invalid("Side", "Invalid side value")
	}

	price, err := parseScaled(fields["Price"], a.Price)
	if err != nil {
		return orderbook.Order{}, invalid("Price", "Invalid price value")
	}
	qty, err := parseScaled(fields["Quantity"], a.Quantity)
	if err != nil {
		return orderbook.Order{}, invalid("Quantity", "Invalid quantity value")
	}
	id, err := parseID(fields["OrderId"])
	if err != nil {
		return orderbook.Order{}, invalid("OrderId", "OrderId must be a positive integer")
	}

	if qty <= 0 {
		return orderbook.Order{}, invalid("Quantity", "Quantity cannot be zero or negative")
	}
	if price <= 0 {
		return orderbook.Order{}, invalid("Price", "Price cannot be zero or negative")
	}

	return orderbook.NewOrder(id, side, price, qty), nil
}

// parseScaled accepts both "100.5" and 100.5.
func parseScaled(r gjson.Result, f scale.Factor) (int64, error) {
	switch r.Type {
	case gjson.String:
		return f.Parse(r.Str)
	case gjson.Number:
		return f.Parse(r.Raw)
	default:
		return 0, fmt.Errorf("not a number: %s", r.Raw)
	}
}

func parseID(r gjson.Result) (uint64, error) {
	var raw string
	switch r.Type {
	case gjson.Number:
		raw = r.Raw
	case gjson.String:
		raw = r.Str
	default:
		return 0, fmt.Errorf("not an integer: %s", r.Raw)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, fmt.Errorf("zero id")
	}
	return id, nil
}
