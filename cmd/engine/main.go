package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/quantbay/optexec/config"
	"github.com/quantbay/optexec/pkg/broker"
	"github.com/quantbay/optexec/pkg/broker/dummy"
	"github.com/quantbay/optexec/pkg/broker/fixgw"
	"github.com/quantbay/optexec/pkg/broker/model"
	"github.com/quantbay/optexec/pkg/broker/xts"
	"github.com/quantbay/optexec/pkg/bus"
	"github.com/quantbay/optexec/pkg/engine"
	"github.com/quantbay/optexec/pkg/instrument"
	redis_wrapper "github.com/quantbay/optexec/pkg/infra/redis"
	"github.com/quantbay/optexec/pkg/journal"
	"github.com/quantbay/optexec/pkg/kafka"
	"github.com/quantbay/optexec/pkg/logging"
	"github.com/quantbay/optexec/pkg/pricefeed"
	"github.com/quantbay/optexec/pkg/strategy"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}
	logging.Init(logging.INFO, cfg.LogDev)
	defer logging.Sync()

	directory, err := instrument.LoadMaster(cfg.Engine.MasterPath)
	if err != nil {
		zap.S().Fatalf("load instrument master: %v", err)
	}

	feed := pricefeed.NewWSFeed(cfg.Feed, directory.Tokens())

	redisClient, err := redis_wrapper.InitRedis(cfg.Redis)
	if err != nil {
		zap.S().Fatalf("init redis: %v", err)
	}
	redisBus := bus.NewRedisBus(redisClient, cfg.EngineID)

	sinks := []engine.EventSink{redisBus}
	var recorder *journal.Recorder
	if cfg.Kafka != nil {
		sinks = append(sinks, bus.NewKafkaEvents(
			kafka.NewProducer(cfg.Kafka.Producer()), cfg.Kafka.EventsTopic, cfg.EngineID))
		recorder = journal.NewRecorder(
			kafka.NewProducer(cfg.Kafka.Producer()), cfg.Kafka.JournalTopic)
	}

	registry := broker.NewRegistry()
	registry.Register("DUMMY", func(ctx context.Context) (broker.Broker, error) {
		return dummy.New(feed), nil
	})
	registry.Register("XTS", func(ctx context.Context) (broker.Broker, error) {
		return xts.New(cfg.XTS, directory)
	})
	registry.Register("FIX", func(ctx context.Context) (broker.Broker, error) {
		return fixgw.New(cfg.Fix, directory)
	})

	opts, err := engineOptions(cfg.Engine)
	if err != nil {
		zap.S().Fatalf("engine config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		zap.S().Info("shutting down...")
		cancel()
	}()

	e := engine.New(opts, registry, redisBus, feed, directory, recorder, sinks...)
	if err := e.Run(ctx); err != nil && err != context.Canceled {
		zap.S().Errorf("engine stopped: %v", err)
	}
	_ = feed.Close()
	zap.S().Info("exited cleanly")
}

func engineOptions(cfg *config.EngineConfig) (engine.Options, error) {
	start, err := strategy.ParseClock(cfg.MarketStart)
	if err != nil {
		return engine.Options{}, err
	}
	end, err := strategy.ParseClock(cfg.MarketEnd)
	if err != nil {
		return engine.Options{}, err
	}

	product := model.ProductNormal
	if strings.EqualFold(cfg.Product, "MIS") {
		product = model.ProductIntraday
	}
	orderType := model.OrderTypeMarket
	if strings.EqualFold(cfg.OrderType, "LIMIT") {
		orderType = model.OrderTypeLimit
	}

	return engine.Options{
		Venue:       strings.ToUpper(cfg.Venue),
		Product:     product,
		OrderType:   orderType,
		MarketStart: start,
		MarketEnd:   end,
		MarginURL:   cfg.MarginURL,
	}, nil
}
