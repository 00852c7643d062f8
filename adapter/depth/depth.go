// Package depth decodes exchange diff-depth messages into book depth
// updates.
package depth

import (
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"crossbook/adapter/scale"
	"crossbook/domain/orderbook"
)

// ErrNotDepth marks a well-formed message that carries no depth, such as a
// subscription ack.
var ErrNotDepth = errors.New("depth: not a depth message")

type Decoder struct {
	Price    scale.Factor
	Quantity scale.Factor
}

func NewDecoder(price, qty scale.Factor) *Decoder {
	return &Decoder{Price: price, Quantity: qty}
}

// Decode reads {"b":[[price,qty],...],"a":[...]}; combined-stream
// envelopes ({"stream":..,"data":{..}}) are unwrapped.
func (d *Decoder) Decode(raw []byte) (orderbook.DepthUpdate, error) {
	if !gjson.ValidBytes(raw) {
		return orderbook.DepthUpdate{}, errors.New("depth: invalid json")
	}
	msg := gjson.ParseBytes(raw)
	if data := msg.Get("data"); data.IsObject() {
		msg = data
	}

	bids, asks := msg.Get("b"), msg.Get("a")
	if !bids.IsArray() && !asks.IsArray() {
		return orderbook.DepthUpdate{}, ErrNotDepth
	}

	var (
		u   orderbook.DepthUpdate
		err error
	)
	if u.Bids, err = d.levels(bids); err != nil {
		return orderbook.DepthUpdate{}, errors.Wrap(err, "bids")
	}
	if u.Asks, err = d.levels(asks); err != nil {
		return orderbook.DepthUpdate{}, errors.Wrap(err, "asks")
	}
	return u, nil
}

func (d *Decoder) levels(arr gjson.Result) ([]orderbook.DepthLevel, error) {
	if !arr.Exists() {
		return nil, nil
	}
	entries := arr.Array()
	out := make([]orderbook.DepthLevel, 0, len(entries))
	for i, e := range entries {
		pair := e.Array()
		if len(pair) < 2 {
			return nil, errors.Errorf("entry %d: want [price, quantity], got %s", i, e.Raw)
		}
		price, err := d.Price.Parse(text(pair[0]))
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d price", i)
		}
		qty, err := d.Quantity.Parse(text(pair[1]))
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d quantity", i)
		}
		out = append(out, orderbook.DepthLevel{Price: price, Qty: qty})
	}
	return out, nil
}

func text(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.Str
	}
	return r.Raw
}
