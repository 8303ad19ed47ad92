package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/seatledger/config"
	"github.com/Domenick1991/seatledger/internal/kafka"
	"github.com/Domenick1991/seatledger/internal/logging"
	"github.com/Domenick1991/seatledger/internal/notify"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/spf13/pflag"
)

func main() {
	cfgPath := pflag.StringP("config", "c", "", "path to the YAML config (default $CONFIG_PATH or config.yaml)")
	pflag.Parse()

	path := *cfgPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(os.Stderr, cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if !cfg.Kafka.Enabled {
		logger.Error("worker needs kafka.enabled: receipts are read from the ledger event topic")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.NotificationsGroup, cfg.Kafka.EventsTopic,
		kafka.WithStartOffset(kafkaGo.FirstOffset))
	defer consumer.Close()

	sender := notify.NewSender(logger)

	logger.Info("worker started", "topic", cfg.Kafka.EventsTopic, "group", cfg.Kafka.NotificationsGroup)
	if err := consumer.Subscribe(ctx, sender.Send); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
