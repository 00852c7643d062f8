// Package config loads engine settings from an optional YAML file, then
// CROSSBOOK_* environment overrides.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Instrument    string `yaml:"instrument"`
	PriceScale    int64  `yaml:"price_scale"`
	QuantityScale int64  `yaml:"quantity_scale"`

	TCPAddr  string `yaml:"tcp_addr"`
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`

	Journal JournalConfig `yaml:"journal"`
	Outbox  OutboxConfig  `yaml:"outbox"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Feed    FeedConfig    `yaml:"feed"`

	LogLevel    string `yaml:"log_level"`
	Development bool   `yaml:"development"`
}

type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dir         string `yaml:"dir"`
	SegmentSize int64  `yaml:"segment_size"`
}

type OutboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type KafkaConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Brokers        []string      `yaml:"brokers"`
	TradeTopic     string        `yaml:"trade_topic"`
	DepthTopic     string        `yaml:"depth_topic"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
	DepthInterval  time.Duration `yaml:"depth_interval"`
	DepthLevels    int           `yaml:"depth_levels"`
	MaxSendRetries uint32        `yaml:"max_send_retries"`
}

type FeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

func Default() Config {
	return Config{
		Instrument:    "BTC/USDT",
		PriceScale:    100,
		QuantityScale: 1000,
		TCPAddr:       ":9000",
		HTTPAddr:      ":8080",
		GRPCAddr:      ":50051",
		Journal: JournalConfig{
			Enabled:     true,
			Dir:         "./journal",
			SegmentSize: 2 * 1024 * 1024,
		},
		Outbox: OutboxConfig{
			Enabled: true,
			Dir:     "./outbox",
		},
		Kafka: KafkaConfig{
			Brokers:        []string{"localhost:9092"},
			TradeTopic:     "crossbook.trades",
			DepthTopic:     "crossbook.depth",
			FlushInterval:  250 * time.Millisecond,
			DepthInterval:  time.Second,
			DepthLevels:    20,
			MaxSendRetries: 5,
		},
		Feed: FeedConfig{
			URL: "wss://fstream.binance.com/ws/btcusdt@depth",
		},
		LogLevel: "info",
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "failed to read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "failed to parse config %s", path)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup("CROSSBOOK_" + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int64) error {
		v, ok := lookup("CROSSBOOK_" + key)
		if !ok {
			return nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "CROSSBOOK_%s", key)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := lookup("CROSSBOOK_" + key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "CROSSBOOK_%s", key)
		}
		*dst = b
		return nil
	}

	str("INSTRUMENT", &c.Instrument)
	str("TCP_ADDR", &c.TCPAddr)
	str("HTTP_ADDR", &c.HTTPAddr)
	str("GRPC_ADDR", &c.GRPCAddr)
	str("JOURNAL_DIR", &c.Journal.Dir)
	str("OUTBOX_DIR", &c.Outbox.Dir)
	str("FEED_URL", &c.Feed.URL)
	str("LOG_LEVEL", &c.LogLevel)
	if v, ok := lookup("CROSSBOOK_KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = strings.Split(v, ",")
	}

	for _, f := range []func() error{
		func() error { return num("PRICE_SCALE", &c.PriceScale) },
		func() error { return num("QUANTITY_SCALE", &c.QuantityScale) },
		func() error { return flag("JOURNAL_ENABLED", &c.Journal.Enabled) },
		func() error { return flag("OUTBOX_ENABLED", &c.Outbox.Enabled) },
		func() error { return flag("KAFKA_ENABLED", &c.Kafka.Enabled) },
		func() error { return flag("FEED_ENABLED", &c.Feed.Enabled) },
		func() error { return flag("DEVELOPMENT", &c.Development) },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case c.Instrument == "":
		return errors.New("config: instrument is required")
	case !powerOfTen(c.PriceScale):
		return errors.Errorf("config: price_scale %d is not a positive power of ten", c.PriceScale)
	case !powerOfTen(c.QuantityScale):
		return errors.Errorf("config: quantity_scale %d is not a positive power of ten", c.QuantityScale)
	case c.Journal.Enabled && c.Journal.Dir == "":
		return errors.New("config: journal.dir is required")
	case c.Journal.Enabled && c.Journal.SegmentSize <= 0:
		return errors.New("config: journal.segment_size must be positive")
	case c.Outbox.Enabled && c.Outbox.Dir == "":
		return errors.New("config: outbox.dir is required")
	case c.Kafka.Enabled && len(c.Kafka.Brokers) == 0:
		return errors.New("config: kafka.brokers is required")
	case c.Kafka.Enabled && (c.Kafka.FlushInterval <= 0 || c.Kafka.DepthInterval <= 0):
		return errors.New("config: kafka flush_interval and depth_interval must be positive")
	case c.Kafka.Enabled && !c.Outbox.Enabled:
		return errors.New("config: kafka requires the outbox")
	case c.Feed.Enabled && c.Feed.URL == "":
		return errors.New("config: feed.url is required")
	}
	return nil
}

func powerOfTen(n int64) bool {
	if n <= 0 {
		return false
	}
	for n%10 == 0 {
		n /= 10
	}
	return n == 1
}
