package service

import (
	"github.com/pkg/errors"

	"crossbook/domain/orderbook"
	"crossbook/infra/journal"
)

// ReplayResult summarizes one journal replay.
type ReplayResult struct {
	LastSeq  uint64
	Orders   int
	Merges   int
	Rejected int
	Trades   int
}

/*
Replay re-runs a request journal against book, which is normally fresh.
It is an offline audit tool; the engine never calls it at start-up.

Orders the book rejects (the journal only holds accepted requests, so this
means book state differs from the recording run) are counted, not fatal.
onTrade may be nil.
*/
func Replay(dir string, book *orderbook.Book, onTrade func(seq uint64, t orderbook.Trade)) (ReplayResult, error) {
	var res ReplayResult

	last, err := journal.Replay(dir, func(rec *journal.Record) error {
		switch rec.Type {
		case journal.RecordPlace:
			o, err := decodePlace(rec.Data)
			if err != nil {
				return errors.Wrapf(err, "record %d", rec.Seq)
			}
			trades, err := book.Add(o)
			if err != nil {
				res.Rejected++
				return nil
			}
			res.Orders++
			res.Trades += len(trades)
			if onTrade != nil {
				for _, t := range trades {
					onTrade(rec.Seq, t)
				}
			}

		case journal.RecordDepth:
			u, err := decodeDepth(rec.Data)
			if err != nil {
				return errors.Wrapf(err, "record %d", rec.Seq)
			}
			if err := book.MergeDepth(u); err != nil {
				return errors.Wrapf(err, "record %d", rec.Seq)
			}
			res.Merges++

		default:
			return errors.Errorf("record %d: unknown type %d", rec.Seq, rec.Type)
		}
		return nil
	})
	res.LastSeq = last
	return res, err
}
