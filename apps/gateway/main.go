package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mahaj/careerchat/pkg/auth"
	"github.com/mahaj/careerchat/pkg/bus"
	"github.com/mahaj/careerchat/pkg/chat"
	"github.com/mahaj/careerchat/pkg/config"
	"github.com/mahaj/careerchat/pkg/logger"
	"github.com/mahaj/careerchat/pkg/metrics"
	"github.com/mahaj/careerchat/pkg/notify"
	"github.com/mahaj/careerchat/pkg/presence"
	"github.com/mahaj/careerchat/pkg/snowflake"
	"github.com/mahaj/careerchat/pkg/store"
	"github.com/redis/go-redis/v9"
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
	logg = logg.With(zap.String("service", "gateway"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg, false, logg)
	if err != nil {
		logg.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	// Node ids must be unique per running gateway and messaging worker.
	ids, err := snowflake.NewNode(cfg.Messaging.SnowflakeNode)
	if err != nil {
		logg.Fatal("failed to initialize snowflake node", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logg.Warn("redis unreachable, presence mirror will lag", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}

	pushes := bus.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.PushTopic)
	defer pushes.Close()

	registry := presence.NewRegistry()
	notifier := notify.NewService(st, notify.Chain{
		notify.NewRegistryPusher(registry, logg),
		bus.NewPushPublisher(pushes, logg),
	}, ids, logg)
	guard := chat.NewGuard(st, st, ids)
	pipeline := chat.NewPipeline(st, guard, registry, notifier, ids, cfg.Messaging.MaxMessageLength, logg)
	relay := chat.NewRelay(st, guard, registry, logg)
	svc := chat.NewService(registry, presence.NewMirror(rdb), guard, pipeline, relay, logg)

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	hub := NewHub(ctx, svc, auth.NewGate(tokens, st), logg)

	// Unique group for fanout: every gateway sees every push.
	consumer := bus.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.PushTopic, "gateway-group-"+uuid.NewString(), true, logg)
	go func() {
		if err := hub.ConsumePushes(ctx, consumer); err != nil {
			logg.Error("push consumer stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Gateway.Addr,
		Handler:           newRouter(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Hijacked websocket connections are not tracked by Shutdown.
		registry.Close()
		srv.Shutdown(shutdownCtx)
	}()

	logg.Info("gateway service starting", zap.String("addr", cfg.Gateway.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Fatal("gateway server failed", zap.Error(err))
	}
	logg.Info("gateway service stopped")
}

func newRouter(hub *Hub) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", hub.serveWs)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}
