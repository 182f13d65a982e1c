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

	"github.com/gorilla/mux"
	"github.com/mahaj/careerchat/pkg/auth"
	"github.com/mahaj/careerchat/pkg/bus"
	"github.com/mahaj/careerchat/pkg/chat"
	"github.com/mahaj/careerchat/pkg/config"
	"github.com/mahaj/careerchat/pkg/logger"
	"github.com/mahaj/careerchat/pkg/metrics"
	"github.com/mahaj/careerchat/pkg/model"
	"github.com/mahaj/careerchat/pkg/presence"
	"github.com/mahaj/careerchat/pkg/snowflake"
	"github.com/mahaj/careerchat/pkg/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*") // Allow all for dev, or specific origin
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}

// deps are the collaborators the HTTP surface is built from.
type deps struct {
	store    store.Store
	tokens   *auth.Tokens
	ids      chat.IDSource
	presence PresenceReader
	notify   Publisher
	devLogin bool
	log      *zap.Logger
}

func newRouter(d deps) http.Handler {
	gate := auth.NewGate(d.tokens, d.store)
	guard := chat.NewGuard(d.store, d.store, d.ids)

	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	if d.devLogin {
		r.Handle("/login", LoginHandler(d.store, d.tokens, d.log)).Methods(http.MethodPost)
	}

	// Protected endpoints
	api := r.NewRoute().Subrouter()
	api.Use(AuthMiddleware(gate, d.log))
	api.Handle("/conversations", ConversationsHandler(d.store, d.log)).Methods(http.MethodGet)
	api.Handle("/conversations/{id:[0-9]+}/messages", NewHistoryHandler(d.store, guard, d.log)).Methods(http.MethodGet)
	api.Handle("/notifications", NotificationsHandler(d.store, d.log)).Methods(http.MethodGet)
	api.Handle("/notifications/read-all", ReadAllHandler(d.store, d.log)).Methods(http.MethodPost)
	api.Handle("/notifications/{id:[0-9]+}/read", ReadHandler(d.store, d.log)).Methods(http.MethodPost)
	api.Handle("/presence", NewPresenceHandler(d.presence, d.log)).Methods(http.MethodGet)

	// Collaborator seam for the rest of the application.
	internal := api.NewRoute().Subrouter()
	internal.Use(RequireRole(d.log, model.RoleService, model.RoleAdmin))
	internal.Handle("/notify", NotifyHandler(d.notify, d.log)).Methods(http.MethodPost)

	return CORSMiddleware(logger.Requests(d.log, r))
}

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
	logg = logg.With(zap.String("service", "api"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg, false, logg)
	if err != nil {
		logg.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	ids, err := snowflake.NewNode(cfg.Messaging.SnowflakeNode)
	if err != nil {
		logg.Fatal("failed to initialize snowflake node", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()

	requests := bus.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.NotifyTopic)
	defer requests.Close()

	if cfg.Auth.DevLogin {
		logg.Warn("dev login enabled, POST /login issues tokens without credentials")
	}

	srv := &http.Server{
		Addr: cfg.API.Addr,
		Handler: newRouter(deps{
			store:    st,
			tokens:   auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
			ids:      ids,
			presence: presence.NewMirror(rdb),
			notify:   requests,
			devLogin: cfg.Auth.DevLogin,
			log:      logg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logg.Info("api service starting", zap.String("addr", cfg.API.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Fatal("api server failed", zap.Error(err))
	}
	logg.Info("api service stopped")
}
