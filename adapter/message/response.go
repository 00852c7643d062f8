package message

import (
	"encoding/json"
	"errors"

	"crossbook/domain/orderbook"
)

// Response is the envelope returned for every request.
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Trades  []TradeView `json:"trades,omitempty"`
}

// TradeView is the wire form of one execution. Prices and quantities are
// integer engine units.
type TradeView struct {
	TradeID     uint64 `json:"tradeId"`
	BidOrderID  uint64 `json:"bidOrderId"`
	BidPrice    int64  `json:"bidPrice"`
	BidQuantity int64  `json:"bidQuantity"`
	AskOrderID  uint64 `json:"askOrderId"`
	AskPrice    int64  `json:"askPrice"`
	AskQuantity int64  `json:"askQuantity"`
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
	Maker       string `json:"maker"`
}

func View(id uint64, t orderbook.Trade) TradeView {
	return TradeView{
		TradeID:     id,
		BidOrderID:  t.Bid.OrderID,
		BidPrice:    t.Bid.Price,
		BidQuantity: t.Bid.Quantity,
		AskOrderID:  t.Ask.OrderID,
		AskPrice:    t.Ask.Price,
		AskQuantity: t.Ask.Quantity,
		Price:       t.Price,
		Quantity:    t.Quantity,
		Maker:       t.Maker.String(),
	}
}

// Success reports an accepted order. Without trades the fixed no-trade
// message is used instead of an empty list.
func Success(trades []TradeView) Response {
	if len(trades) == 0 {
		return Response{Status: StatusSuccess, Message: NoTradeMessage}
	}
	return Response{Status: StatusSuccess, Trades: trades}
}

func Failure(err error) Response {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return Response{Status: StatusError, Message: ve.Reason}
	}
	return Response{Status: StatusError, Message: err.Error()}
}

func (r Response) OK() bool {
	return r.Status == StatusSuccess
}

func (r Response) Marshal() []byte {
	b, err := json.Marshal(r)
	if err != nil {
		// only plain fields, cannot fail
		panic(err)
	}
	return b
}
