package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"collabhub/internal/config"
	"collabhub/internal/database/db_client"
	"collabhub/internal/eventlog"
	"collabhub/internal/http/http_server"
	"collabhub/internal/hub"
	"collabhub/internal/redis/redis_client"
	"collabhub/internal/redis/watcher/roomwatcher"
	"collabhub/internal/roomfeed"
	"collabhub/internal/router"
	"collabhub/internal/syncevents"
	"collabhub/internal/ws"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func newLogger() *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if os.Getenv("LOG_DEVELOPMENT") == "true" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func main() {
	Log := newLogger()
	defer Log.Sync()
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
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis
	if cfg.RedisEnabled {
		redisClient, err = redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort), cfg.RedisPassword, cfg.RedisDb)
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		Log.Debug("Redis client created successfully")
	}

	// 4. Postgres db client
	if cfg.PostgresEnabled {
		pgDb, err = db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb, cfg.PostgresMaxOpenConns)
		if err != nil {
			Log.Fatal("pg-open", zap.Error(err))
		}
		defer pgDb.Close()
	}

	// 5. Session event log
	var sink eventlog.Sink
	switch cfg.EventLogSink {
	case config.SinkRedis:
		sink = eventlog.NewRedisStreamSink(redisClient, cfg.EventStream, cfg.EventStreamMaxLen)
	case config.SinkPostgres:
		sink = eventlog.NewPostgresSink(pgDb)
	default:
		sink = eventlog.LogSink{}
	}
	events := eventlog.NewGateway(sink, cfg.EventLogWorkers, cfg.EventLogQueue, cfg.EventLogTimeout)
	defer events.Close()

	// Background: stream ➜ session_events
	if cfg.EventLogSink == config.SinkRedis && pgDb != nil {
		syncevents.Run(ctx, redisClient, pgDb, cfg.EventStream)
	}

	// 6. Collaboration hub
	h := hub.New(hub.Options{
		QueueDepth: cfg.OutboundQueueDepth,
		Limits:     router.Limits{Rate: rate.Limit(cfg.PoseRateHz), Burst: cfg.PoseBurst},
	}, events)
	defer h.Shutdown()

	// 7. Redis fan‑in: per-room external feeds and the teardown channel
	if redisClient != nil {
		feed := roomfeed.NewManager(redisClient, h, cfg.RoomFeedPrefix)
		defer feed.Close()
		h.SetRoomFeed(feed)
		go roomwatcher.Run(ctx, redisClient, cfg.RoomTeardownChannel, h)
	}

	// 8. Initialize the WS server
	wsSrv := ws.NewWsServer(h, ws.Options{
		WriteWait:       cfg.WsWriteWait,
		PongWait:        cfg.WsPongWait,
		MaxMessageBytes: cfg.WsMaxMessageBytes,
	})

	// 9. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, h)
	go func() {
		<-ctx.Done()
		Log.Info("shutdown_requested")
		_ = httpServer.Dispose()
	}()
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
	// deferred: feeds, hub shutdown, event log drain, then the clients
}
