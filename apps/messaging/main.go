package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mahaj/careerchat/pkg/bus"
	"github.com/mahaj/careerchat/pkg/config"
	"github.com/mahaj/careerchat/pkg/logger"
	"github.com/mahaj/careerchat/pkg/notify"
	"github.com/mahaj/careerchat/pkg/snowflake"
	"github.com/mahaj/careerchat/pkg/store"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logg, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logg.Sync()
	logg = logg.With(zap.String("service", "messaging"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Note: In production, schema creation should be handled by migration tools.
	// The worker owns it here so that a fresh cluster comes up usable.
	st, err := store.Open(cfg, true, logg)
	if err != nil {
		logg.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	ids, err := snowflake.NewNode(cfg.Messaging.SnowflakeNode)
	if err != nil {
		logg.Fatal("failed to initialize snowflake node", zap.Error(err))
	}

	pushes := bus.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.PushTopic)
	defer pushes.Close()
	svc := notify.NewService(st, bus.NewPushPublisher(pushes, logg), ids, logg)

	reader := bus.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.NotifyTopic, cfg.Kafka.GroupID, false, logg)
	consumer := NewConsumer(reader, svc, logg)
	defer consumer.Close()

	if err := consumer.Consume(ctx); err != nil {
		logg.Error("notify consumer stopped", zap.Error(err))
	}
	logg.Info("messaging service stopped")
}
