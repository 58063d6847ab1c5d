package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/pkg/configparser"
)

// Flags
var (
	modeFlag = flag.String("mode", "", "application mode")
)

// Errors
var (
	ErrModeNotProvided = errors.New("mode flag not provided")
)

// Config contains all configuration variables of the application
type (
	Config struct {
		Mode types.ServiceMode

		Database DatabaseConfig
		Redis    RedisConfig
		RabbitMQ RabbitMQConfig
		Routing  RoutingConfig
		Traffic  TrafficConfig
		Dispatch DispatchConfig
		Services ServicesConfig
		Auth     Auth
	}

	DatabaseConfig struct {
		Host     string `env:"DATABASE_HOST" default:"localhost"`
		Port     string `env:"DATABASE_PORT" default:"5432"`
		User     string `env:"DATABASE_USER" default:"velodrop_user"`
		Password string `env:"DATABASE_PASSWORD" default:"velodrop_pass"`
		Database string `env:"DATABASE_DATABASE" default:"velodrop_db"`

		MaxConns        int32         `env:"DATABASE_MAXCONNS" default:"20"`
		MinConns        int32         `env:"DATABASE_MINCONNS" default:"2"`
		MaxConnLifetime time.Duration `env:"DATABASE_MAXCONNLIFETIME" default:"30m"`
		MaxConnIdleTime time.Duration `env:"DATABASE_MAXCONNIDLETIME" default:"5m"`
	}

	RedisConfig struct {
		Host     string `env:"REDIS_HOST" default:"localhost"`
		Port     string `env:"REDIS_PORT" default:"6379"`
		Password string `env:"REDIS_PASSWORD" default:""`
		DB       int    `env:"REDIS_DB" default:"0"`
	}

	RabbitMQConfig struct {
		Host     string `env:"RABBITMQ_HOST" default:"localhost"`
		Port     string `env:"RABBITMQ_PORT" default:"5672"`
		User     string `env:"RABBITMQ_USER" default:"guest"`
		Password string `env:"RABBITMQ_PASSWORD" default:"guest"`
	}

	RoutingConfig struct {
		OSRMBaseURL string        `env:"ROUTING_OSRM_BASE_URL" default:"http://localhost:5000"`
		Timeout     time.Duration `env:"ROUTING_TIMEOUT" default:"5s"`
	}

	TrafficConfig struct {
		// Store selects where fixes and cells live: "memory" or "redis".
		Store string `env:"TRAFFIC_STORE" default:"memory"`

		CellSizeM    float64 `env:"TRAFFIC_CELL_SIZE_M" default:"200"`
		OperatingLat float64 `env:"TRAFFIC_OPERATING_LAT" default:"14.7167"`

		MaxSpeedKmh     float64       `env:"TRAFFIC_MAX_SPEED_KMH" default:"120"`
		WindowSize      int           `env:"TRAFFIC_WINDOW_SIZE" default:"20"`
		MinObservations int           `env:"TRAFFIC_MIN_OBSERVATIONS" default:"2"`
		StaleAfter      time.Duration `env:"TRAFFIC_STALE_AFTER" default:"10m"`
		FixTTL          time.Duration `env:"TRAFFIC_FIX_TTL" default:"10m"`
		CellTTL         time.Duration `env:"TRAFFIC_CELL_TTL" default:"30m"`
		SweepInterval   time.Duration `env:"TRAFFIC_SWEEP_INTERVAL" default:"1m"`
	}

	DispatchConfig struct {
		OfferTimeout time.Duration `env:"DISPATCH_OFFER_TIMEOUT" default:"30s"`
		TopN         int           `env:"DISPATCH_TOP_N" default:"3"`
	}

	ServicesConfig struct {
		TrafficService  string `env:"SERVICES_TRAFFIC_SERVICE" default:"3000"`
		DispatchService string `env:"SERVICES_DISPATCH_SERVICE" default:"3001"`
	}

	Auth struct {
		AccessTokenTTL time.Duration `env:"AUTH_ACCESS_TOKEN_TTL" default:"15m"`
		JWTSecret      string        `env:"AUTH_JWT_SECRET" default:"supersecretkey"`
	}
)

// PoolLimits feeds the pgx pool configuration.
func (c DatabaseConfig) PoolLimits() (int32, int32, time.Duration, time.Duration) {
	return c.MaxConns, c.MinConns, c.MaxConnLifetime, c.MaxConnIdleTime
}

func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

func (c RabbitMQConfig) GetDSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.User,
		c.Password,
		c.Host,
		c.Port,
	)
}

func (c RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func NewConfig(filepath string) (*Config, error) {
	cfg := &Config{}

	// Loading enviromental variables and parsing to config struct.
	if err := configparser.LoadAndParseYaml(filepath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load and parse config: %w", err)
	}

	// Parsing flags
	if err := parseFlags(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	return cfg, nil
}

func parseFlags(cfg *Config) error {
	if modeFlag == nil || *modeFlag == "" {
		return ErrModeNotProvided
	}

	cfg.Mode = types.ServiceMode(*modeFlag)

	return nil
}
