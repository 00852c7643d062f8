// Command replay re-runs a request journal against an empty book and prints
// the resulting book.
package main

import (
	"flag"
	"fmt"
	"os"

	"crossbook/domain/orderbook"
	"crossbook/infra/logger"
	"crossbook/service"
)

func main() {
	dir := flag.String("dir", "./journal", "journal directory")
	trades := flag.Bool("trades", false, "print every trade")
	flag.Parse()

	log := logger.Get()
	defer logger.Sync()

	book := orderbook.NewBook()

	var onTrade func(uint64, orderbook.Trade)
	if *trades {
		onTrade = func(seq uint64, t orderbook.Trade) {
			fmt.Printf("seq=%d bid=%d ask=%d price=%d qty=%d\n",
				seq, t.Bid.OrderID, t.Ask.OrderID, t.Price, t.Quantity)
		}
	}

	res, err := service.Replay(*dir, book, onTrade)
	if err != nil {
		log.Errorw("replay failed", "dir", *dir, "last_seq", res.LastSeq, "error", err)
		logger.Sync()
		os.Exit(1)
	}

	if err := book.Fprint(os.Stdout); err != nil {
		log.Errorw("print book", "error", err)
	}
	log.Infow("replay complete",
		"last_seq", res.LastSeq,
		"orders", res.Orders,
		"merges", res.Merges,
		"rejected", res.Rejected,
		"trades", res.Trades,
	)
}
