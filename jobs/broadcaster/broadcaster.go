// Package broadcaster publishes outbox trade events to Kafka.
package broadcaster

import (
	"context"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"crossbook/infra/outbox"
)

type Config struct {
	Topic    string
	Interval time.Duration
	// Batch caps the records published per flush.
	Batch int
	// MaxRetries parks a FAILED record once reached.
	MaxRetries uint32
}

type Broadcaster struct {
	outbox   *outbox.Outbox
	producer sarama.SyncProducer
	cfg      Config
	log      *zap.SugaredLogger
}

// ProducerConfig is the sarama configuration the engine publishes with.
func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "crossbook"
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	return cfg
}

func NewProducer(brokers []string) (sarama.SyncProducer, error) {
	p, err := sarama.NewSyncProducer(brokers, ProducerConfig())
	if err != nil {
		return nil, errors.Wrap(err, "kafka sync producer")
	}
	return p, nil
}

func New(ob *outbox.Outbox, producer sarama.SyncProducer, cfg Config, log *zap.SugaredLogger) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 512
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Broadcaster{
		outbox:   ob,
		producer: producer,
		cfg:      cfg,
		log:      log.With("component", "broadcaster"),
	}
}

// Run flushes on every tick until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Infow("started", "topic", b.cfg.Topic, "interval", b.cfg.Interval)

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("stopped")
			return
		case <-ticker.C:
			if _, err := b.Flush(); err != nil {
				b.log.Errorw("flush failed", "error", err)
			}
		}
	}
}

// Flush publishes pending records oldest first. A record is marked SENT
// before the send and deleted once Kafka acknowledges it, so a crash in
// between resends it: delivery is at least once.
func (b *Broadcaster) Flush() (int, error) {
	var pending []outbox.Record
	err := b.outbox.ScanPending(b.cfg.Batch, b.cfg.MaxRetries, func(r outbox.Record) error {
		pending = append(pending, r)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "scan outbox")
	}

	sent := 0
	for _, rec := range pending {
		if err := b.outbox.UpdateState(rec.Seq, outbox.StateSent, rec.Retries); err != nil {
			return sent, err
		}

		_, _, err := b.producer.SendMessage(&sarama.ProducerMessage{
			Topic: b.cfg.Topic,
			Key:   sarama.StringEncoder(strconv.FormatUint(rec.Seq, 10)),
			Value: sarama.ByteEncoder(rec.Payload),
		})
		if err != nil {
			b.log.Warnw("publish failed", "seq", rec.Seq, "retries", rec.Retries+1, "error", err)
			if err := b.outbox.UpdateState(rec.Seq, outbox.StateFailed, rec.Retries+1); err != nil {
				return sent, err
			}
			continue
		}

		if err := b.outbox.Delete(rec.Seq); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
