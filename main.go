package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"studyhubgo/internal/auth"
	"studyhubgo/internal/chat"
	"studyhubgo/internal/config"
	"studyhubgo/internal/database/db_client"
	"studyhubgo/internal/http/http_server"
	"studyhubgo/internal/http/presencehandler"
	"studyhubgo/internal/membership"
	"studyhubgo/internal/presence"
	"studyhubgo/internal/redis/redis_client"
	"studyhubgo/internal/services/history"
	"studyhubgo/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

//go:generate go tool swag init -g main.go -o api_specs --outputTypes json

//	@title						StudyHub realtime API
//	@version					1.0
//	@description				Read views over the realtime presence and room server. The realtime protocol itself runs on GET /ws?token=<jwt>.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
func main() {
	zap.ReplaceGlobals(Log)

	var err error
	var cfg *config.Config
	var redisClient *redis.Client
	var pgDb *sql.DB

	// 1. Load configuration
	cfg, err = config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.LogMode == "production" {
		if prod, err := zap.NewProduction(); err == nil {
			Log = prod
			zap.ReplaceGlobals(Log)
		}
	}
	defer Log.Sync()
	Log.Debug("Configuration loaded successfully",
		zap.Uint16("port", cfg.HttpServerPort),
		zap.String("presence_policy", cfg.PresencePolicy),
		zap.Bool("redis", cfg.RedisEnabled),
		zap.Bool("postgres", cfg.PostgresEnabled),
	)

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Shared state: presence registry and group arena
	policy, err := presence.ParsePolicy(cfg.PresencePolicy)
	if err != nil {
		Log.Fatal("presence-policy", zap.Error(err))
	}
	registry := presence.NewRegistry(policy)
	groups := membership.NewArena()

	// 4. Redis presence mirror
	if cfg.RedisEnabled {
		redisClient, err = redis_client.NewRedisClient(ctx, cfg.RedisHost, int(cfg.RedisPort))
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		Log.Debug("Redis client created successfully")

		mirror := presence.NewRedisMirror(redisClient, 3*cfg.PresenceSyncInterval)
		presence.RunMirror(ctx, registry, mirror, cfg.PresenceSyncInterval)
	}

	// 5. Postgres message history
	var store chat.HistoryStore = chat.NopStore{}
	var restHistory presencehandler.History
	if cfg.PostgresEnabled {
		pgDb, err = db_client.Open(ctx, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
		if err != nil {
			Log.Fatal("pg-open", zap.Error(err))
		}
		defer pgDb.Close()

		historyService := history.NewHistoryService(pgDb)
		store = historyService
		restHistory = historyService
	}

	// 6. Realtime server
	authenticator := auth.NewAuthenticator(cfg.JwtSecret)
	wsSrv := ws.NewWsServer(authenticator, registry, groups, store, ws.Options{
		ReadLimit:      cfg.WsReadLimit,
		PingPeriod:     cfg.WsPingPeriod,
		PongWait:       cfg.WsPongWait,
		SendBuffer:     cfg.WsSendBuffer,
		RateLimit:      rate.Limit(cfg.WsRateLimit),
		RateBurst:      cfg.WsRateBurst,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	// 7. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, authenticator, restHistory)
	go func() {
		if err := httpServer.Start(); err != nil {
			Log.Error("Failed to start HTTP server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	Log.Info("shutting down")

	_ = httpServer.Dispose()
	wsSrv.Close()
}
