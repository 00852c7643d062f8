package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"crossbook/adapter/depth"
	"crossbook/adapter/message"
	"crossbook/adapter/scale"
	"crossbook/api/grpcserver"
	"crossbook/api/httpserver"
	"crossbook/api/tcpserver"
	"crossbook/config"
	"crossbook/domain/orderbook"
	"crossbook/infra/feed"
	"crossbook/infra/journal"
	"crossbook/infra/kafka"
	"crossbook/infra/logger"
	"crossbook/infra/outbox"
	"crossbook/jobs/broadcaster"
	"crossbook/jobs/marketdata"
	"crossbook/service"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Set(log)
	defer logger.Sync()

	if err := run(cfg, log); err != nil {
		log.Errorw("engine stopped", "error", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------- Storage ----------------

	opts := []service.Option{service.WithLogger(log)}

	if cfg.Journal.Enabled {
		j, err := journal.Open(journal.Config{
			Dir:         cfg.Journal.Dir,
			SegmentSize: cfg.Journal.SegmentSize,
		})
		if err != nil {
			return errors.Wrap(err, "journal init failed")
		}
		defer j.Close()
		opts = append(opts, service.WithJournal(j))
	}

	var ob *outbox.Outbox
	if cfg.Outbox.Enabled {
		var err error
		ob, err = outbox.Open(cfg.Outbox.Dir)
		if err != nil {
			return errors.Wrap(err, "outbox init failed")
		}
		defer ob.Close()
		opts = append(opts, service.WithOutbox(ob))
	}

	// ---------------- Service ----------------

	price, qty := scale.Factor(cfg.PriceScale), scale.Factor(cfg.QuantityScale)
	svc, err := service.New(
		orderbook.NewBook(),
		message.New(cfg.Instrument, price, qty),
		depth.NewDecoder(price, qty),
		opts...,
	)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	// ---------------- Jobs ----------------

	if cfg.Kafka.Enabled {
		producer, err := broadcaster.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			return err
		}
		b := broadcaster.New(ob, producer, broadcaster.Config{
			Topic:      cfg.Kafka.TradeTopic,
			Interval:   cfg.Kafka.FlushInterval,
			MaxRetries: cfg.Kafka.MaxSendRetries,
		}, log)
		defer b.Close()
		spawn(func() { b.Run(ctx) })

		depthWriter := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.DepthTopic)
		defer depthWriter.Close()
		md := marketdata.New(svc, depthWriter, cfg.Instrument, cfg.Kafka.DepthLevels, cfg.Kafka.DepthInterval, log)
		spawn(func() { md.Run(ctx) })
	}

	if cfg.Feed.Enabled {
		client := feed.New(feed.Config{URL: cfg.Feed.URL}, func(raw []byte) error {
			if err := svc.MergeDepthMessage(raw); err != nil && !errors.Is(err, depth.ErrNotDepth) {
				return err
			}
			return nil
		}, log)
		spawn(func() { _ = client.Run(ctx) })
	}

	// ---------------- Transports ----------------

	errc := make(chan error, 3)

	tcp := tcpserver.New(svc, log)
	spawn(func() {
		if err := tcp.ListenAndServe(cfg.TCPAddr); err != nil && !errors.Is(err, tcpserver.ErrServerClosed) {
			errc <- errors.Wrap(err, "tcp")
		}
	})

	api := httpserver.New(svc, httpserver.Config{}, log)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	spawn(func() { api.Run(ctx) })
	spawn(func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Wrap(err, "http")
		}
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return errors.Wrap(err, "grpc listen")
	}
	grpcSrv := grpcserver.NewGRPCServer(svc, log)
	spawn(func() {
		if err := grpcSrv.Serve(lis); err != nil {
			errc <- errors.Wrap(err, "grpc")
		}
	})

	log.Infow("engine started",
		"instrument", cfg.Instrument,
		"tcp", cfg.TCPAddr,
		"http", cfg.HTTPAddr,
		"grpc", cfg.GRPCAddr,
		"journal", cfg.Journal.Enabled,
		"kafka", cfg.Kafka.Enabled,
		"feed", cfg.Feed.Enabled,
	)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errc:
		stop()
	}

	// ---------------- Shutdown ----------------

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := tcp.Shutdown(shutdownCtx); err != nil {
		log.Warnw("tcp shutdown", "error", err)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown", "error", err)
	}
	grpcSrv.GracefulStop()

	wg.Wait()
	return runErr
}
