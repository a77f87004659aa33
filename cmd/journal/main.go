package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/quantbay/optexec/config"
	postgres_wrapper "github.com/quantbay/optexec/pkg/infra/postgres"
	"github.com/quantbay/optexec/pkg/journal"
	"github.com/quantbay/optexec/pkg/kafka"
	"github.com/quantbay/optexec/pkg/logging"
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

	db, err := postgres_wrapper.InitPostgresWithBackoff(cfg.JournalDB)
	if err != nil {
		zap.S().Fatalf("init postgres: %v", err)
	}

	cg := kafka.NewConsumerGroup(cfg.Kafka.Consumer())
	defer cg.Close() // nolint

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		zap.S().Info("shutting down...")
		cancel()
	}()

	worker := journal.NewWorker(journal.NewOrderEventSQLRepo(db))
	if err := worker.Run(ctx, cg); err != nil && err != context.Canceled {
		zap.S().Errorf("journal worker stopped: %v", err)
	}
	zap.S().Info("exited cleanly")
}
