package service

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"crossbook/adapter/depth"
	"crossbook/adapter/message"
	"crossbook/domain/orderbook"
	"crossbook/infra/journal"
	"crossbook/infra/outbox"
	"crossbook/infra/sequence"
)

/*
OrderService is the ONLY write entry point into the book.

Every mutation runs under one mutex in this order:
  - validate (no I/O)
  - append to the request journal; a failed append rejects the request
  - apply to the book
  - store the resulting trades in the outbox; a failure is only logged,
    the book has already moved
*/
type OrderService struct {
	mu sync.Mutex

	book    *orderbook.Book
	orders  *message.Adapter
	depth   *depth.Decoder
	journal *journal.Journal
	outbox  *outbox.Outbox

	journalSeq *sequence.Sequencer
	tradeSeq   *sequence.Sequencer

	log *zap.SugaredLogger
	now func() time.Time
}

type Option func(*OrderService)

func WithJournal(j *journal.Journal) Option {
	return func(s *OrderService) { s.journal = j }
}

func WithOutbox(o *outbox.Outbox) Option {
	return func(s *OrderService) { s.outbox = o }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *OrderService) { s.log = l }
}

// New wires the service. Sequencers resume after whatever the journal and
// outbox already hold.
func New(
	book *orderbook.Book,
	orders *message.Adapter,
	depthDecoder *depth.Decoder,
	opts ...Option,
) (*OrderService, error) {
	s := &OrderService{
		book:       book,
		orders:     orders,
		depth:      depthDecoder,
		journalSeq: sequence.New(0),
		tradeSeq:   sequence.New(0),
		log:        zap.NewNop().Sugar(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "service")

	if s.journal != nil {
		s.journalSeq.Observe(s.journal.LastSeq())
	}
	if s.outbox != nil {
		last, err := s.outbox.LastSeq()
		if err != nil {
			return nil, errors.Wrap(err, "read outbox sequence")
		}
		s.tradeSeq.Observe(last)
	}
	return s, nil
}

func (s *OrderService) Book() *orderbook.Book { return s.book }

func (s *OrderService) Instrument() string { return s.orders.Pair }

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// Submit handles one raw order request and always returns an envelope.
func (s *OrderService) Submit(body []byte) message.Response {
	o, err := s.orders.Decode(body)
	if err != nil {
		s.log.Debugw("order rejected", "reason", err.Error())
		return message.Failure(err)
	}
	trades, err := s.Place(o)
	if err != nil {
		return message.Failure(err)
	}
	return message.Success(trades)
}

// Place admits a decoded order and returns its executions with trade IDs
// assigned.
func (s *OrderService) Place(o orderbook.Order) ([]message.TradeView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := o.Validate(); err != nil {
		return nil, err
	}
	if s.book.Resting(o.ID) {
		return nil, errors.Wrapf(orderbook.ErrDuplicateOrderID, "order %d", o.ID)
	}

	if err := s.record(journal.RecordPlace, encodePlace(o)); err != nil {
		s.log.Errorw("journal append failed", "order", o.ID, "error", err)
		return nil, err
	}

	trades, err := s.book.Add(o)
	if err != nil {
		return nil, err
	}

	views := make([]message.TradeView, len(trades))
	events := make([]outbox.Entry, 0, len(trades))
	now := s.now().UnixNano()
	for i, t := range trades {
		id := s.tradeSeq.Next()
		views[i] = message.View(id, t)
		if s.outbox == nil {
			continue
		}
		payload, err := newTradeEvent(s.Instrument(), id, t, now).Marshal()
		if err != nil {
			s.log.Errorw("encode trade event", "trade", id, "error", err)
			continue
		}
		events = append(events, outbox.Entry{Seq: id, Payload: payload})
	}
	if s.outbox != nil {
		if err := s.outbox.PutBatch(events); err != nil {
			s.log.Errorw("outbox write failed", "trades", len(events), "error", err)
		}
	}

	if len(trades) > 0 {
		s.log.Debugw("order matched", "order", o.ID, "side", o.Side, "trades", len(trades))
	}
	return views, nil
}

// MergeDepth applies an external depth update. It never matches.
func (s *OrderService) MergeDepth(u orderbook.DepthUpdate) error {
	if u.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkDepth(u); err != nil {
		return err
	}
	if err := s.record(journal.RecordDepth, encodeDepth(u)); err != nil {
		s.log.Errorw("journal append failed", "error", err)
		return err
	}
	return s.book.MergeDepth(u)
}

// MergeDepthMessage decodes and applies a raw feed message. Messages that
// carry no depth return depth.ErrNotDepth.
func (s *OrderService) MergeDepthMessage(raw []byte) error {
	u, err := s.depth.Decode(raw)
	if err != nil {
		return err
	}
	return s.MergeDepth(u)
}

func checkDepth(u orderbook.DepthUpdate) error {
	for _, side := range [][]orderbook.DepthLevel{u.Bids, u.Asks} {
		for _, l := range side {
			if l.Price <= 0 || l.Qty < 0 {
				return errors.Wrapf(orderbook.ErrInvalidDepth, "price=%d qty=%d", l.Price, l.Qty)
			}
		}
	}
	return nil
}

func (s *OrderService) record(t journal.RecordType, payload []byte) error {
	if s.journal == nil {
		return nil
	}
	rec := journal.NewRecord(t, s.journalSeq.Next(), payload)
	return errors.Wrapf(s.journal.Append(rec), "journal %s", t)
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

// Depth returns up to limit aggregated levels per side.
func (s *OrderService) Depth(limit int) orderbook.Depth {
	return s.book.Depth(limit)
}

func (s *OrderService) Stats() orderbook.Stats {
	return s.book.Stats()
}
