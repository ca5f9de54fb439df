package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	SinkRedis    = "redis"
	SinkPostgres = "postgres"
	SinkLog      = "log"
)

var (
	ErrSinkNeedsRedis    = errors.New("EVENT_LOG_SINK=redis requires REDIS_ENABLED=true")
	ErrSinkNeedsPostgres = errors.New("EVENT_LOG_SINK=postgres requires POSTGRES_ENABLED=true")
)

type Config struct {
	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT"  envDefault:"false"`

	RedisEnabled  bool   `env:"REDIS_ENABLED"  envDefault:"true"`
	RedisHost     string `env:"REDIS_HOST"     envDefault:"localhost"`
	RedisPort     uint16 `env:"REDIS_PORT"     envDefault:"6379" validate:"min=1000,max=65535"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDb       int    `env:"REDIS_DB"       envDefault:"0"    validate:"min=0,max=15"`

	PostgresEnabled      bool   `env:"POSTGRES_ENABLED"        envDefault:"true"`
	PostgresHost         string `env:"POSTGRES_HOST"           envDefault:"localhost"`
	PostgresPort         string `env:"POSTGRES_PORT"           envDefault:"5432"`
	PostgresUser         string `env:"POSTGRES_USER"           envDefault:"collab_user"`
	PostgresPassword     string `env:"POSTGRES_PASSWORD"       envDefault:"collab_password"`
	PostgresDb           string `env:"POSTGRES_DB"             envDefault:"collab_db"`
	PostgresMaxOpenConns int    `env:"POSTGRES_MAX_OPEN_CONNS" envDefault:"20" validate:"min=1"`

	EventLogSink      string        `env:"EVENT_LOG_SINK"      envDefault:"redis" validate:"oneof=redis postgres log"`
	EventLogWorkers   int           `env:"EVENT_LOG_WORKERS"   envDefault:"4"     validate:"min=1,max=256"`
	EventLogQueue     int           `env:"EVENT_LOG_QUEUE"     envDefault:"1024"  validate:"min=1"`
	EventLogTimeout   time.Duration `env:"EVENT_LOG_TIMEOUT"   envDefault:"2s"    validate:"gt=0"`
	EventStream       string        `env:"EVENT_STREAM"        envDefault:"session_events_stream" validate:"required"`
	EventStreamMaxLen int64         `env:"EVENT_STREAM_MAXLEN" envDefault:"100000" validate:"min=0"`

	OutboundQueueDepth int           `env:"OUTBOUND_QUEUE_DEPTH" envDefault:"256"   validate:"min=1"`
	WsMaxMessageBytes  int64         `env:"WS_MAX_MESSAGE_BYTES" envDefault:"65536" validate:"min=512"`
	WsWriteWait        time.Duration `env:"WS_WRITE_WAIT"        envDefault:"10s"   validate:"gt=0"`
	WsPongWait         time.Duration `env:"WS_PONG_WAIT"         envDefault:"60s"   validate:"gt=0"`

	PoseRateHz float64 `env:"POSE_RATE_HZ" envDefault:"30" validate:"gt=0"`
	PoseBurst  int     `env:"POSE_BURST"   envDefault:"10" validate:"min=1"`

	RoomFeedPrefix      string `env:"ROOM_FEED_PREFIX"      envDefault:"room:"          validate:"required"`
	RoomTeardownChannel string `env:"ROOM_TEARDOWN_CHANNEL" envDefault:"rooms:teardown" validate:"required"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	if err = cfg.Validate(); err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and the sink/backend combination.
func (cfg *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	switch {
	case cfg.EventLogSink == SinkRedis && !cfg.RedisEnabled:
		return ErrSinkNeedsRedis
	case cfg.EventLogSink == SinkPostgres && !cfg.PostgresEnabled:
		return ErrSinkNeedsPostgres
	}
	return nil
}
