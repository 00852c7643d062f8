// Package marketdata periodically publishes the aggregated book.
package marketdata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"crossbook/adapter/message"
	"crossbook/domain/orderbook"
)

// Publisher is satisfied by infra/kafka.Producer.
type Publisher interface {
	Send(ctx context.Context, key, value []byte) error
}

// Source is satisfied by *orderbook.Book and *service.OrderService.
type Source interface {
	Depth(limit int) orderbook.Depth
}

// Snapshot is the published message.
type Snapshot struct {
	message.BookView
	Time int64 `json:"time"`
}

func NewSnapshot(instrument string, d orderbook.Depth, now time.Time) Snapshot {
	return Snapshot{BookView: message.Book(instrument, d), Time: now.UnixNano()}
}

type Job struct {
	source     Source
	pub        Publisher
	instrument string
	levels     int
	interval   time.Duration
	log        *zap.SugaredLogger
	now        func() time.Time

	published uint64
	sentAny   bool
}

func New(source Source, pub Publisher, instrument string, levels int, interval time.Duration, log *zap.SugaredLogger) *Job {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Job{
		source:     source,
		pub:        pub,
		instrument: instrument,
		levels:     levels,
		interval:   interval,
		log:        log.With("component", "marketdata"),
		now:        time.Now,
	}
}

func (j *Job) Run(ctx context.Context) {
	t := time.NewTicker(j.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := j.PublishOnce(ctx); err != nil {
				j.log.Warnw("publish depth failed", "error", err)
			}
		}
	}
}

// PublishOnce sends a snapshot if the book changed since the last one.
func (j *Job) PublishOnce(ctx context.Context) (bool, error) {
	d := j.source.Depth(j.levels)
	if j.sentAny && d.Version == j.published {
		return false, nil
	}

	value, err := json.Marshal(NewSnapshot(j.instrument, d, j.now()))
	if err != nil {
		return false, errors.Wrap(err, "encode snapshot")
	}
	if err := j.pub.Send(ctx, []byte(j.instrument), value); err != nil {
		return false, err
	}
	j.published, j.sentAny = d.Version, true
	return true, nil
}
