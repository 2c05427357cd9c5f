package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HttpServerPort uint16   `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"  envDefault:"*"    envSeparator:","`
	LogMode        string   `env:"LOG_MODE"         envDefault:"development" validate:"oneof=development production"`

	JwtSecret string `env:"JWT_SECRET" validate:"required"`

	PresencePolicy       string        `env:"PRESENCE_POLICY"        envDefault:"last_write_wins" validate:"oneof=last_write_wins multi_device close_displaced"`
	PresenceSyncInterval time.Duration `env:"PRESENCE_SYNC_INTERVAL" envDefault:"10s"             validate:"gt=0"`

	WsReadLimit    int64         `env:"WS_READ_LIMIT"  envDefault:"65536" validate:"min=1024"`
	WsPingPeriod   time.Duration `env:"WS_PING_PERIOD" envDefault:"25s"   validate:"gt=0"`
	WsPongWait     time.Duration `env:"WS_PONG_WAIT"   envDefault:"60s"   validate:"gtfield=WsPingPeriod"`
	WsSendBuffer   int           `env:"WS_SEND_BUFFER" envDefault:"256"   validate:"min=1"`
	WsRateLimit    float64       `env:"WS_RATE_LIMIT"  envDefault:"20"    validate:"gt=0"`
	WsRateBurst    int           `env:"WS_RATE_BURST"  envDefault:"40"    validate:"min=1"`

	RedisEnabled bool   `env:"REDIS_ENABLED" envDefault:"true"`
	RedisHost    string `env:"REDIS_HOST"    envDefault:"localhost"`
	RedisPort    uint16 `env:"REDIS_PORT"    envDefault:"6379" validate:"min=1000,max=65535"`

	PostgresEnabled  bool   `env:"POSTGRES_ENABLED"  envDefault:"true"`
	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"study_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"study_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"study_db"`
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

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
