package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"crossbook/domain/orderbook"
)

// Journal payloads are plain text so segments stay greppable:
//
//	place: id|side|price|qty
//	depth: bids;asks, each a comma list of price:qty

func encodePlace(o orderbook.Order) []byte {
	return []byte(fmt.Sprintf("%d|%d|%d|%d", o.ID, o.Side, o.Price, o.Qty))
}

func decodePlace(b []byte) (orderbook.Order, error) {
	parts := strings.Split(string(b), "|")
	if len(parts) != 4 {
		return orderbook.Order{}, errors.Errorf("invalid place payload %q", b)
	}

	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return orderbook.Order{}, errors.Wrap(err, "order id")
	}
	side, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return orderbook.Order{}, errors.Wrap(err, "side")
	}
	price, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return orderbook.Order{}, errors.Wrap(err, "price")
	}
	qty, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return orderbook.Order{}, errors.Wrap(err, "qty")
	}
	return orderbook.NewOrder(id, orderbook.Side(side), price, qty), nil
}

func encodeDepth(u orderbook.DepthUpdate) []byte {
	var sb strings.Builder
	writeLevels(&sb, u.Bids)
	sb.WriteByte(';')
	writeLevels(&sb, u.Asks)
	return []byte(sb.String())
}

func writeLevels(sb *strings.Builder, levels []orderbook.DepthLevel) {
	for i, l := range levels {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatInt(l.Price, 10))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatInt(l.Qty, 10))
	}
}

func decodeDepth(b []byte) (orderbook.DepthUpdate, error) {
	sides := strings.Split(string(b), ";")
	if len(sides) != 2 {
		return orderbook.DepthUpdate{}, errors.Errorf("invalid depth payload %q", b)
	}
	bids, err := readLevels(sides[0])
	if err != nil {
		return orderbook.DepthUpdate{}, errors.Wrap(err, "bids")
	}
	asks, err := readLevels(sides[1])
	if err != nil {
		return orderbook.DepthUpdate{}, errors.Wrap(err, "asks")
	}
	return orderbook.DepthUpdate{Bids: bids, Asks: asks}, nil
}

func readLevels(s string) ([]orderbook.DepthLevel, error) {
	if s == "" {
		return nil, nil
	}
	items := strings.Split(s, ",")
	out := make([]orderbook.DepthLevel, 0, len(items))
	for _, it := range items {
		p, q, ok := strings.Cut(it, ":")
		if !ok {
			return nil, errors.Errorf("invalid level %q", it)
		}
		price, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		qty, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, orderbook.DepthLevel{Price: price, Qty: qty})
	}
	return out, nil
}

// TradeEvent is the outbox payload published for every execution.
type TradeEvent struct {
	V          int    `json:"v"`
	Type       string `json:"type"`
	Instrument string `json:"instrument"`
	TradeID    uint64 `json:"tradeId"`
	BidOrderID uint64 `json:"bidOrderId"`
	AskOrderID uint64 `json:"askOrderId"`
	Price      int64  `json:"price"`
	Quantity   int64  `json:"quantity"`
	Maker      string `json:"maker"`
	Time       int64  `json:"time"`
}

func newTradeEvent(instrument string, id uint64, t orderbook.Trade, now int64) TradeEvent {
	return TradeEvent{
		V:          1,
		Type:       "trade",
		Instrument: instrument,
		TradeID:    id,
		BidOrderID: t.Bid.OrderID,
		AskOrderID: t.Ask.OrderID,
		Price:      t.Price,
		Quantity:   t.Quantity,
		Maker:      t.Maker.String(),
		Time:       now,
	}
}

func (e TradeEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
